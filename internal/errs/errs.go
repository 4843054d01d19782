// Package errs holds the error taxonomy shared by the fetch, transform, cache and
// HTTP layers. Callers wrap a sentinel with %w and match with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrGenericSource      = errors.New("generic source image")
	ErrNetwork            = errors.New("network error")
	ErrPayloadTooLarge    = errors.New("payload too large")
	ErrInvalidContentType = errors.New("invalid content type")
	ErrDecode             = errors.New("decode error")
	ErrEncode             = errors.New("encode error")
	ErrCacheUnavailable   = errors.New("cache unavailable")
)

// codes is ordered: the first matching sentinel wins.
var codes = []struct {
	err  error
	code string
}{
	{ErrValidation, "validation_error"},
	{ErrGenericSource, "generic_source_rejected"},
	{ErrPayloadTooLarge, "payload_too_large"},
	{ErrInvalidContentType, "invalid_content_type"},
	{ErrNetwork, "network_error"},
	{ErrDecode, "decode_error"},
	{ErrEncode, "encode_error"},
	{ErrCacheUnavailable, "cache_unavailable"},
}

// Code returns the stable snake_case identifier reported as error_type.
// Unclassified errors map to "internal_error".
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal_error"
}

// Wrap attaches kind to err with a short operation label.
//
//	errs.Wrap(errs.ErrDecode, "decode config", err) -> "decode config: decode error: <err>"
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", op, kind)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// Newf builds an error of the given kind with a formatted message.
func Newf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// IsValidation reports whether err is a user-facing input problem.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsFetch reports whether err originated in the fetch stage.
func IsFetch(err error) bool {
	return errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrPayloadTooLarge) ||
		errors.Is(err, ErrInvalidContentType)
}

// IsTransform reports whether err originated in the decode/encode stage.
func IsTransform(err error) bool {
	return errors.Is(err, ErrDecode) || errors.Is(err, ErrEncode)
}
