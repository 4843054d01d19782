package transform

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"strings"

	"imgopt-gateway/internal/errs"
)

var responsiveBreakpoints = []int{320, 640, 768, 1024, 1280, 1920}

const (
	worthMinBytes      = 50 * 1024
	worthMinDimension  = 200
	optimizedWebPBytes = 500 * 1024
	compressAboveMB    = 2.0
)

// Info describes an encoded image without decoding its pixels.
type Info struct {
	Format          string  `json:"format"`
	Mode            string  `json:"mode"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	HasTransparency bool    `json:"has_transparency"`
	FileSizeBytes   int     `json:"file_size_bytes"`
	FileSizeMB      float64 `json:"file_size_mb"`
	AspectRatio     float64 `json:"aspect_ratio"`
	Orientation     string  `json:"orientation"`
}

type Recommendation struct {
	Action           string  `json:"action"`
	Reason           string  `json:"reason"`
	EstimatedSavings float64 `json:"estimated_savings,omitempty"`
	SuggestedSize    *[2]int `json:"suggested_size,omitempty"`
	SuggestedQuality int     `json:"suggested_quality,omitempty"`
}

type Analysis struct {
	CurrentFormat   string            `json:"current_format"`
	CurrentSizeMB   float64           `json:"current_size_mb"`
	Dimensions      [2]int            `json:"dimensions"`
	QualityScore    float64           `json:"quality_score"`
	WorthOptimizing bool              `json:"worth_optimizing"`
	WorthReason     string            `json:"worth_optimizing_reason"`
	ResponsiveSizes map[string][2]int `json:"responsive_sizes"`
	Recommendations []Recommendation  `json:"recommendations"`
}

type Report struct {
	Info     Info     `json:"info"`
	Analysis Analysis `json:"analysis"`
}

// Inspect reads the image header.
func Inspect(data []byte) (*Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errs.Wrap(errs.ErrDecode, "decode image header", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errs.Newf(errs.ErrDecode, "image has no pixels (%dx%d)", cfg.Width, cfg.Height)
	}

	mode := colorMode(cfg.ColorModel)
	model := cfg.ColorModel
	if mode == "P" {
		// palette alpha (tRNS) is only visible after a full decode
		if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
			model = img.ColorModel()
		}
	}

	info := &Info{
		Format:          strings.ToUpper(format),
		Mode:            mode,
		Width:           cfg.Width,
		Height:          cfg.Height,
		HasTransparency: hasTransparency(mode, model),
		FileSizeBytes:   len(data),
		FileSizeMB:      Round2(float64(len(data)) / (1024 * 1024)),
		AspectRatio:     Round2(float64(cfg.Width) / float64(cfg.Height)),
	}

	switch {
	case cfg.Width > cfg.Height:
		info.Orientation = "landscape"
	case cfg.Height > cfg.Width:
		info.Orientation = "portrait"
	default:
		info.Orientation = "square"
	}
	return info, nil
}

// Analyze reports optimisation potential for data against the engine's max box.
func (e *Engine) Analyze(data []byte) (*Report, error) {
	info, err := Inspect(data)
	if err != nil {
		return nil, err
	}

	a := Analysis{
		CurrentFormat:   info.Format,
		CurrentSizeMB:   info.FileSizeMB,
		Dimensions:      [2]int{info.Width, info.Height},
		QualityScore:    QualityScore(info.Width, info.Height, info.Mode),
		ResponsiveSizes: ResponsiveSizes(info.Width, info.Height),
		Recommendations: []Recommendation{},
	}
	a.WorthOptimizing, a.WorthReason = worthOptimizing(info)

	if info.Format == "PNG" && !info.HasTransparency {
		a.Recommendations = append(a.Recommendations, Recommendation{
			Action:           "convert_to_webp",
			Reason:           "PNG without transparency can be converted to WebP",
			EstimatedSavings: EstimateSavings(info.Format, WEBP, WEBP.DefaultQuality()),
		})
	}

	if info.Width > e.cfg.MaxWidth || info.Height > e.cfg.MaxHeight {
		w, h := e.TargetSize(info.Width, info.Height, Request{})
		a.Recommendations = append(a.Recommendations, Recommendation{
			Action:        "resize",
			Reason:        fmt.Sprintf("image is larger than %dx%d (%dx%d)", e.cfg.MaxWidth, e.cfg.MaxHeight, info.Width, info.Height),
			SuggestedSize: &[2]int{w, h},
		})
	}

	if info.FileSizeMB > compressAboveMB {
		q := 85
		if info.Format == "JPEG" {
			q = 80
		}
		a.Recommendations = append(a.Recommendations, Recommendation{
			Action:           "compress",
			Reason:           fmt.Sprintf("large file (%.2fMB)", info.FileSizeMB),
			SuggestedQuality: q,
		})
	}

	return &Report{Info: *info, Analysis: a}, nil
}

// QualityScore rates an image 0-100 from its resolution, aspect ratio and alpha.
func QualityScore(w, h int, mode string) float64 {
	if w <= 0 || h <= 0 {
		return 50
	}

	var score float64
	switch pixels := w * h; {
	case pixels >= 1920*1080:
		score = 100
	case pixels >= 1280*720:
		score = 80
	case pixels >= 640*480:
		score = 60
	default:
		score = 40
	}
	if w < 100 || h < 100 {
		score *= 0.5
	}

	if ar := float64(w) / float64(h); ar >= 0.5 && ar <= 2.0 {
		score += 10
	}
	if mode == "RGBA" || mode == "LA" {
		score -= 5
	}
	return min(score, 100)
}

// EstimateSavings returns the expected size reduction percent (0-95) for a
// conversion, from empirical per-pair size factors.
func EstimateSavings(from string, to Codec, quality int) float64 {
	q := float64(quality) / 100
	factor := 0.8
	switch strings.ToUpper(from) + ">" + string(to) {
	case "PNG>WEBP":
		factor = 0.3 + q*0.4
	case "PNG>JPEG":
		factor = 0.2 + q*0.5
	case "JPEG>WEBP":
		factor = 0.7 + q*0.2
	case "JPEG>AVIF":
		factor = 0.5 + q*0.3
	case "PNG>AVIF":
		factor = 0.25 + q*0.35
	}
	return Round2(min(max((1-factor)*100, 0), 95))
}

// ResponsiveSizes maps "<bp>w" to the size at each breakpoint, never upscaling.
func ResponsiveSizes(w, h int) map[string][2]int {
	sizes := make(map[string][2]int, len(responsiveBreakpoints))
	if w <= 0 || h <= 0 {
		return sizes
	}
	aspect := float64(w) / float64(h)
	for _, bp := range responsiveBreakpoints {
		key := fmt.Sprintf("%dw", bp)
		if bp >= w {
			sizes[key] = [2]int{w, h}
			continue
		}
		sizes[key] = [2]int{bp, int(float64(bp) / aspect)}
	}
	return sizes
}

func worthOptimizing(info *Info) (bool, string) {
	kb := float64(info.FileSizeBytes) / 1024
	if info.FileSizeBytes < worthMinBytes {
		return false, fmt.Sprintf("file too small (%.1fKB < %dKB)", kb, worthMinBytes/1024)
	}
	if info.Width < worthMinDimension || info.Height < worthMinDimension {
		return false, fmt.Sprintf("dimensions too small (%dx%d < %dx%d)",
			info.Width, info.Height, worthMinDimension, worthMinDimension)
	}
	if info.Format == "WEBP" && info.FileSizeBytes < optimizedWebPBytes {
		return false, fmt.Sprintf("already optimized (WebP %.1fKB)", kb)
	}
	return true, "image is suitable for optimization"
}

func hasTransparency(mode string, m color.Model) bool {
	switch mode {
	case "RGBA", "LA", "A":
		return true
	case "P":
		p, _ := m.(color.Palette)
		for _, c := range p {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}
