// Package transform decodes, orients, resizes and re-encodes images.
//
// Output is a pure function of the input bytes and the Request: the same pair
// always yields identical bytes and Metadata.
package transform

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"
	"go.uber.org/zap"

	// decoders for image.DecodeConfig / imaging.Decode
	_ "image/gif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"imgopt-gateway/internal/errs"
	"imgopt-gateway/internal/metrics"
)

type Config struct {
	MaxWidth        int
	MaxHeight       int
	ThumbnailWidth  int
	ThumbnailHeight int
	// ThumbnailFill produces exact ThumbnailWidth x ThumbnailHeight thumbnails by
	// center-cropping instead of fitting inside the box.
	ThumbnailFill bool
}

func (c Config) WithDefaults() Config {
	if c.MaxWidth <= 0 {
		c.MaxWidth = 1920
	}
	if c.MaxHeight <= 0 {
		c.MaxHeight = 1080
	}
	if c.ThumbnailWidth <= 0 {
		c.ThumbnailWidth = 800
	}
	if c.ThumbnailHeight <= 0 {
		c.ThumbnailHeight = 800
	}
	return c
}

// Request describes one transform. Zero MaxWidth/MaxHeight use the engine config.
type Request struct {
	Codec     Codec
	Quality   int
	Thumbnail bool
	MaxWidth  int
	MaxHeight int
}

type Metadata struct {
	OriginalSize         [2]int  `json:"original_size"`
	NewSize              [2]int  `json:"new_size"`
	OriginalFormat       string  `json:"original_format"`
	OriginalMode         string  `json:"original_mode"`
	NewFormat            Codec   `json:"new_format"`
	OriginalBytes        int     `json:"original_bytes"`
	OptimizedBytes       int     `json:"optimized_bytes"`
	SizeReductionPercent float64 `json:"size_reduction_percent"`
	CompressionRatio     float64 `json:"compression_ratio"`
}

type Result struct {
	Data     []byte
	Metadata Metadata
}

type Engine struct {
	cfg    Config
	logger *zap.Logger
}

func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{cfg: cfg.WithDefaults(), logger: logger.Named("transform")}
}

func (e *Engine) Config() Config { return e.cfg }

// Optimize runs decode, orientation, colour normalisation, resize and encode.
func (e *Engine) Optimize(data []byte, req Request) (*Result, error) {
	if !req.Codec.Valid() {
		return nil, errs.Newf(errs.ErrValidation, "unsupported format %q", req.Codec)
	}
	if req.Quality < 1 || req.Quality > 100 {
		return nil, errs.Newf(errs.ErrValidation, "quality %d out of range 1-100", req.Quality)
	}

	start := time.Now()

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errs.Wrap(errs.ErrDecode, "decode image header", err)
	}
	mode := colorMode(cfg.ColorModel)

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errs.Wrap(errs.ErrDecode, "decode image", err)
	}

	if req.Codec == JPEG && (mode == "RGBA" || mode == "LA" || mode == "P") {
		img = flatten(img)
	}

	b := img.Bounds()
	var out image.Image
	if req.Thumbnail && e.cfg.ThumbnailFill {
		out = SmartCrop(img, e.cfg.ThumbnailWidth, e.cfg.ThumbnailHeight)
	} else {
		w, h := e.TargetSize(b.Dx(), b.Dy(), req)
		out = img
		if w != b.Dx() || h != b.Dy() {
			out = imaging.Resize(img, w, h, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := encode(&buf, out, req.Codec, req.Quality); err != nil {
		return nil, errs.Wrap(errs.ErrEncode, "encode "+req.Codec.Lower(), err)
	}

	nb := out.Bounds()
	md := Metadata{
		OriginalSize:   [2]int{cfg.Width, cfg.Height},
		NewSize:        [2]int{nb.Dx(), nb.Dy()},
		OriginalFormat: strings.ToUpper(format),
		OriginalMode:   mode,
		NewFormat:      req.Codec,
		OriginalBytes:  len(data),
		OptimizedBytes: buf.Len(),
	}
	md.SizeReductionPercent, md.CompressionRatio = sizeMetrics(md.OriginalBytes, md.OptimizedBytes)

	metrics.TransformSeconds.WithLabelValues(req.Codec.Lower()).Observe(time.Since(start).Seconds())
	e.logger.Debug("image transformed",
		zap.String("from", md.OriginalFormat),
		zap.String("to", string(req.Codec)),
		zap.Ints("original_size", md.OriginalSize[:]),
		zap.Ints("new_size", md.NewSize[:]),
		zap.Float64("size_reduction_percent", md.SizeReductionPercent),
	)

	return &Result{Data: buf.Bytes(), Metadata: md}, nil
}

// TargetSize returns output dimensions for an ow x oh source. Thumbnails fit the
// thumbnail box without upscaling; other images keep their size unless they
// exceed the max box. Both dimensions stay >= 1.
func (e *Engine) TargetSize(ow, oh int, req Request) (int, int) {
	if ow <= 0 || oh <= 0 {
		return max(ow, 1), max(oh, 1)
	}

	var ratio float64
	if req.Thumbnail {
		ratio = math.Min(
			float64(e.cfg.ThumbnailWidth)/float64(ow),
			float64(e.cfg.ThumbnailHeight)/float64(oh),
		)
		ratio = math.Min(ratio, 1)
	} else {
		mw, mh := req.MaxWidth, req.MaxHeight
		if mw <= 0 {
			mw = e.cfg.MaxWidth
		}
		if mh <= 0 {
			mh = e.cfg.MaxHeight
		}
		if ow <= mw && oh <= mh {
			return ow, oh
		}
		ratio = math.Min(float64(mw)/float64(ow), float64(mh)/float64(oh))
	}

	w := max(int(float64(ow)*ratio), 1)
	h := max(int(float64(oh)*ratio), 1)
	return w, h
}

// encode writes img in codec. JPEG output is baseline: image/jpeg has no
// progressive or optimised-Huffman mode.
func encode(w io.Writer, img image.Image, codec Codec, quality int) error {
	switch codec {
	case WEBP:
		return webp.Encode(w, img, webp.Options{Quality: quality, Method: 6})
	case JPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case AVIF:
		return avif.Encode(w, img, avif.Options{Quality: quality, QualityAlpha: quality, Speed: 0})
	case PNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		return enc.Encode(w, img)
	}
	return errs.Newf(errs.ErrValidation, "unsupported format %q", codec)
}

// flatten composites img over opaque white.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

func sizeMetrics(original, optimized int) (reduction, ratio float64) {
	if original > 0 {
		reduction = Round2(float64(original-optimized) / float64(original) * 100)
	}
	if optimized > 0 {
		ratio = Round2(float64(original) / float64(optimized))
	}
	return reduction, ratio
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// colorMode names a colour model the way image tooling usually reports modes.
func colorMode(m color.Model) string {
	if _, ok := m.(color.Palette); ok {
		return "P"
	}
	// Decoders report opaque truecolor as premultiplied RGBA.
	switch m {
	case color.NRGBAModel, color.NRGBA64Model, color.NYCbCrAModel:
		return "RGBA"
	case color.GrayModel, color.Gray16Model:
		return "L"
	case color.AlphaModel, color.Alpha16Model:
		return "A"
	case color.CMYKModel:
		return "CMYK"
	}
	return "RGB"
}
