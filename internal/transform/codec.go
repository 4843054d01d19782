package transform

import (
	"strings"

	"imgopt-gateway/internal/errs"
)

// Codec is an output image format.
type Codec string

const (
	WEBP Codec = "WEBP"
	JPEG Codec = "JPEG"
	AVIF Codec = "AVIF"
	PNG  Codec = "PNG"
)

// Codecs lists the supported output formats.
var Codecs = []Codec{WEBP, JPEG, AVIF, PNG}

// ParseCodec is case-insensitive; "JPG" is accepted as JPEG.
func ParseCodec(s string) (Codec, error) {
	c := Codec(strings.ToUpper(strings.TrimSpace(s)))
	if c == "JPG" {
		c = JPEG
	}
	if !c.Valid() {
		return "", errs.Newf(errs.ErrValidation, "unsupported format %q (supported: WEBP, JPEG, AVIF, PNG)", s)
	}
	return c, nil
}

func (c Codec) Valid() bool {
	switch c {
	case WEBP, JPEG, AVIF, PNG:
		return true
	}
	return false
}

func (c Codec) Lower() string { return strings.ToLower(string(c)) }

func (c Codec) MIME() string { return "image/" + c.Lower() }

// Ext is the file extension used for reference paths.
func (c Codec) Ext() string { return c.Lower() }

// DefaultQuality is the quality used when a request does not set one.
// PNG is lossless so its quality only takes part in cache keys.
func (c Codec) DefaultQuality() int {
	switch c {
	case JPEG:
		return 90
	case AVIF:
		return 80
	case PNG:
		return 100
	default:
		return 85
	}
}
