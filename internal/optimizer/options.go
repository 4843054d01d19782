package optimizer

import (
	"encoding/json"

	"imgopt-gateway/internal/errs"
	"imgopt-gateway/internal/transform"
)

// Options are the per-request knobs. Zero values select the configured defaults:
// empty Format is the default format, zero Quality is the format's default
// quality, zero MaxWidth/MaxHeight is the configured max box, and output is
// inline base64 unless ReturnReference is set.
type Options struct {
	Format          transform.Codec
	Quality         int
	IsThumbnail     bool
	ReturnReference bool
	MaxWidth        int
	MaxHeight       int
}

// canonicalOptions fixes field order for the request fingerprint.
type canonicalOptions struct {
	Format       transform.Codec `json:"format"`
	Quality      int             `json:"quality"`
	IsThumbnail  bool            `json:"is_thumbnail"`
	ReturnBase64 bool            `json:"return_base64"`
	MaxWidth     int             `json:"max_width"`
	MaxHeight    int             `json:"max_height"`
}

// Validate checks explicitly set fields.
func (o Options) Validate() error {
	if o.Format != "" && !o.Format.Valid() {
		return errs.Newf(errs.ErrValidation, "unsupported format %q (supported: WEBP, JPEG, AVIF, PNG)", o.Format)
	}
	if o.Quality != 0 && (o.Quality < 1 || o.Quality > 100) {
		return errs.Newf(errs.ErrValidation, "quality must be between 1 and 100, got %d", o.Quality)
	}
	if o.MaxWidth < 0 || o.MaxHeight < 0 {
		return errs.Newf(errs.ErrValidation, "max_width and max_height must not be negative")
	}
	return nil
}

// Resolve fills defaults; the result has every field set. qualities overrides
// the per-codec default quality and may be nil.
func (o Options) Resolve(defaultFormat transform.Codec, qualities map[transform.Codec]int, box transform.Config) (Options, error) {
	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	if o.Format == "" {
		o.Format = defaultFormat
	}
	if o.Quality == 0 {
		o.Quality = qualities[o.Format]
	}
	if o.Quality == 0 {
		o.Quality = o.Format.DefaultQuality()
	}
	if o.MaxWidth == 0 {
		o.MaxWidth = box.MaxWidth
	}
	if o.MaxHeight == 0 {
		o.MaxHeight = box.MaxHeight
	}
	return o, nil
}

// Canonical is the field-ordered JSON form used in request keys. Call it on
// resolved options so explicit and defaulted requests share a key.
func (o Options) Canonical() string {
	b, _ := json.Marshal(canonicalOptions{
		Format:       o.Format,
		Quality:      o.Quality,
		IsThumbnail:  o.IsThumbnail,
		ReturnBase64: !o.ReturnReference,
		MaxWidth:     o.MaxWidth,
		MaxHeight:    o.MaxHeight,
	})
	return string(b)
}

// standardGeometry reports whether the output size depends only on the source
// and the configured box, which is what content keys assume.
func (o Options) standardGeometry(box transform.Config) bool {
	return !o.IsThumbnail && o.MaxWidth == box.MaxWidth && o.MaxHeight == box.MaxHeight
}

func (o Options) transformRequest() transform.Request {
	return transform.Request{
		Codec:     o.Format,
		Quality:   o.Quality,
		Thumbnail: o.IsThumbnail,
		MaxWidth:  o.MaxWidth,
		MaxHeight: o.MaxHeight,
	}
}
