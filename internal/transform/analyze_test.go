package transform

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgopt-gateway/internal/errs"
)

func TestInspect(t *testing.T) {
	info, err := Inspect(pngBytes(t, gradient(400, 200, 128)))
	require.NoError(t, err)

	assert.Equal(t, "PNG", info.Format)
	assert.Equal(t, "RGBA", info.Mode)
	assert.True(t, info.HasTransparency)
	assert.Equal(t, 400, info.Width)
	assert.Equal(t, 200, info.Height)
	assert.Equal(t, 2.0, info.AspectRatio)
	assert.Equal(t, "landscape", info.Orientation)

	_, err = Inspect([]byte("nope"))
	assert.ErrorIs(t, err, errs.ErrDecode)
}

func TestInspectPaletteTransparency(t *testing.T) {
	opaque := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Black, color.White})
	info, err := Inspect(pngBytes(t, opaque))
	require.NoError(t, err)
	assert.Equal(t, "P", info.Mode)
	assert.False(t, info.HasTransparency)

	clear := image.NewPaletted(image.Rect(0, 0, 4, 4), color.Palette{color.Transparent, color.White})
	info, err = Inspect(pngBytes(t, clear))
	require.NoError(t, err)
	assert.True(t, info.HasTransparency)
}

func TestAnalyzeRecommendations(t *testing.T) {
	e := NewEngine(Config{}, nil)
	img := image.NewNRGBA(image.Rect(0, 0, 2400, 1200))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}

	report, err := e.Analyze(pngBytes(t, img))
	require.NoError(t, err)

	a := report.Analysis
	assert.Equal(t, "PNG", a.CurrentFormat)
	assert.Equal(t, [2]int{2400, 1200}, a.Dimensions)
	assert.Equal(t, 100.0, a.QualityScore)

	actions := map[string]Recommendation{}
	for _, r := range a.Recommendations {
		actions[r.Action] = r
	}
	require.Contains(t, actions, "convert_to_webp")
	assert.Equal(t, 36.0, actions["convert_to_webp"].EstimatedSavings)
	require.Contains(t, actions, "resize")
	assert.Equal(t, &[2]int{1920, 960}, actions["resize"].SuggestedSize)
	assert.NotContains(t, actions, "compress")

	assert.Equal(t, [2]int{320, 160}, a.ResponsiveSizes["320w"])
	assert.Equal(t, [2]int{1920, 960}, a.ResponsiveSizes["1920w"])
}

func TestAnalyzeSmallFileNotWorthOptimizing(t *testing.T) {
	e := NewEngine(Config{}, nil)

	report, err := e.Analyze(pngBytes(t, gradient(10, 10, 128)))
	require.NoError(t, err)
	assert.False(t, report.Analysis.WorthOptimizing)
	assert.Contains(t, report.Analysis.WorthReason, "too small")
	assert.Empty(t, report.Analysis.Recommendations)
}

func TestQualityScore(t *testing.T) {
	assert.Equal(t, 100.0, QualityScore(1920, 1080, "RGB"))
	assert.Equal(t, 90.0, QualityScore(1280, 720, "RGB"))
	assert.Equal(t, 65.0, QualityScore(640, 480, "RGBA"))
	assert.Equal(t, 25.0, QualityScore(50, 50, "RGBA"))
	assert.Equal(t, 40.0, QualityScore(3000, 100, "RGB"))
}

func TestEstimateSavings(t *testing.T) {
	assert.Equal(t, 36.0, EstimateSavings("PNG", WEBP, 85))
	assert.Equal(t, 13.0, EstimateSavings("jpeg", WEBP, 85))
	assert.Equal(t, 20.0, EstimateSavings("GIF", WEBP, 85))
}

func TestResponsiveSizesNeverUpscale(t *testing.T) {
	sizes := ResponsiveSizes(500, 250)
	assert.Len(t, sizes, len(responsiveBreakpoints))
	assert.Equal(t, [2]int{320, 160}, sizes["320w"])
	assert.Equal(t, [2]int{500, 250}, sizes["640w"])
	assert.Equal(t, [2]int{500, 250}, sizes["1920w"])
}
