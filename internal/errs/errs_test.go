package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"validation", Newf(ErrValidation, "quality %d out of range", 0), "validation_error"},
		{"wrapped network", fmt.Errorf("fetch: %w", Wrap(ErrNetwork, "get", errors.New("dial tcp"))), "network_error"},
		{"too large", Newf(ErrPayloadTooLarge, "%d bytes", 10), "payload_too_large"},
		{"content type", Newf(ErrInvalidContentType, "text/html"), "invalid_content_type"},
		{"decode", Wrap(ErrDecode, "decode", errors.New("bad magic")), "decode_error"},
		{"encode", Wrap(ErrEncode, "encode webp", nil), "encode_error"},
		{"generic", ErrGenericSource, "generic_source_rejected"},
		{"plain", errors.New("boom"), "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("unexpected EOF")
	err := Wrap(ErrDecode, "decode image", cause)

	assert.ErrorIs(t, err, ErrDecode)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "decode image: decode error: unexpected EOF", err.Error())
	assert.True(t, IsTransform(err))
	assert.False(t, IsFetch(err))
}
