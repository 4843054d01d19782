package handlers

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"imgopt-gateway/internal/cache"
	"imgopt-gateway/internal/fetcher"
	"imgopt-gateway/internal/optimizer"
	"imgopt-gateway/internal/transform"
)

func pngFixture(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

// newOrigin serves a PNG at /img.png and 404 elsewhere.
func newOrigin(t *testing.T) *httptest.Server {
	t.Helper()
	body := pngFixture(t, 48, 32)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/img.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestImageHandler(t *testing.T) (*ImageHandler, *cache.Coordinator) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	f, err := fetcher.New(fetcher.Options{Timeout: 5 * time.Second}, logger)
	if err != nil {
		t.Fatalf("fetcher.New: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })

	store := cache.NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })
	coord := cache.NewCoordinator(store, time.Hour, logger)

	o := optimizer.New(optimizer.Config{DefaultFormat: transform.JPEG, MaxBatchSize: 3},
		f, transform.NewEngine(transform.Config{}, logger), coord, logger)
	return NewImageHandler(o), coord
}

func post(t *testing.T, h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected JSON content type, got %q", ct)
	}
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (body %s)", err, rr.Body.String())
	}
	return out
}

func TestOptimizeImageSuccessThenCacheHit(t *testing.T) {
	origin := newOrigin(t)
	h, _ := newTestImageHandler(t)
	body := `{"image_url":"` + origin.URL + `/img.png","format":"png"}`

	rr := post(t, h.OptimizeImage, "/optimize-image", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	out := decode(t, rr)
	if out["success"] != true || out["from_cache"] != false {
		t.Fatalf("unexpected first response: %v", out)
	}
	if !strings.HasPrefix(out["optimized_base64"].(string), "data:image/png;base64,") {
		t.Fatalf("unexpected payload prefix")
	}
	md := out["metadata"].(map[string]any)
	if md["new_format"] != "PNG" {
		t.Fatalf("unexpected metadata: %v", md)
	}

	rr = post(t, h.OptimizeImage, "/optimize-image", body)
	out = decode(t, rr)
	if out["from_cache"] != true {
		t.Fatalf("expected cache hit on second call: %v", out)
	}
}

func TestOptimizeImageReturnsReference(t *testing.T) {
	origin := newOrigin(t)
	h, _ := newTestImageHandler(t)

	rr := post(t, h.OptimizeImage, "/optimize-image",
		`{"image_url":"`+origin.URL+`/img.png","return_base64":false,"format":"JPEG"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	out := decode(t, rr)
	ref, _ := out["optimized_url"].(string)
	if !strings.HasPrefix(ref, "/optimized/") || !strings.HasSuffix(ref, ".jpeg") {
		t.Fatalf("unexpected reference %q", ref)
	}
	if _, ok := out["optimized_base64"]; ok {
		t.Fatalf("did not expect base64 payload")
	}
}

func TestOptimizeImageValidation(t *testing.T) {
	h, _ := newTestImageHandler(t)

	cases := map[string]string{
		"empty body":     ``,
		"not json":       `{nope`,
		"missing url":    `{"format":"WEBP"}`,
		"empty url":      `{"image_url":""}`,
		"blank url":      `{"image_url":"   "}`,
		"bad format":     `{"image_url":"http://x/a.png","format":"GIF"}`,
		"quality low":    `{"image_url":"http://x/a.png","quality":0}`,
		"quality high":   `{"image_url":"http://x/a.png","quality":101}`,
		"negative width": `{"image_url":"http://x/a.png","max_width":-5}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := post(t, h.OptimizeImage, "/optimize-image", body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
			out := decode(t, rr)
			if out["success"] != false {
				t.Fatalf("expected success=false: %v", out)
			}
			if out["error_type"] != "validation_error" {
				t.Fatalf("expected validation_error, got %v", out["error_type"])
			}
		})
	}
}

func TestOptimizeImageTrimsURL(t *testing.T) {
	origin := newOrigin(t)
	h, _ := newTestImageHandler(t)

	rr := post(t, h.OptimizeImage, "/optimize-image", `{"image_url":"  `+origin.URL+`/img.png  ","format":"PNG"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	out := decode(t, rr)
	if out["original_url"] != origin.URL+"/img.png" {
		t.Fatalf("expected trimmed original_url, got %v", out["original_url"])
	}
}

func TestOptimizeImagePipelineFailure(t *testing.T) {
	origin := newOrigin(t)
	h, _ := newTestImageHandler(t)

	rr := post(t, h.OptimizeImage, "/optimize-image", `{"image_url":"https://telesco.pe/file/x.jpg"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for generic source, got %d", rr.Code)
	}
	out := decode(t, rr)
	if out["is_generic"] != true || out["error_type"] != "generic_source_rejected" {
		t.Fatalf("unexpected generic response: %v", out)
	}

	rr = post(t, h.OptimizeImage, "/optimize-image", `{"image_url":"`+origin.URL+`/missing.png"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for fetch failure, got %d", rr.Code)
	}
	if out := decode(t, rr); out["error_type"] != "network_error" {
		t.Fatalf("unexpected error type: %v", out["error_type"])
	}
}

func TestBatchOptimize(t *testing.T) {
	origin := newOrigin(t)
	h, _ := newTestImageHandler(t)

	body := `{"image_urls":["` + origin.URL + `/img.png","` + origin.URL + `/missing.png"],"format":"PNG"}`
	rr := post(t, h.BatchOptimize, "/batch-optimize", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	out := decode(t, rr)
	if out["total_images"] != 2.0 || out["successful"] != 1.0 || out["failed"] != 1.0 || out["success_rate"] != 50.0 {
		t.Fatalf("unexpected batch summary: %v", out)
	}
	results := out["results"].([]any)
	if results[0].(map[string]any)["success"] != true || results[1].(map[string]any)["success"] != false {
		t.Fatalf("results out of order: %v", results)
	}
}

func TestBatchOptimizeUnresolvableHost(t *testing.T) {
	origin := newOrigin(t)
	h, _ := newTestImageHandler(t)

	body := `{"image_urls":["` + origin.URL + `/img.png","http://nonexistent.invalid/a.png","` + origin.URL + `/img.png"]}`
	rr := post(t, h.BatchOptimize, "/batch-optimize", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	out := decode(t, rr)
	if out["total_images"] != 3.0 || out["successful"] != 2.0 || out["failed"] != 1.0 || out["success_rate"] != 66.67 {
		t.Fatalf("unexpected batch summary: %v", out)
	}
	failed := out["results"].([]any)[1].(map[string]any)
	if failed["success"] != false || failed["error_type"] != "network_error" {
		t.Fatalf("expected network_error for unresolvable host: %v", failed)
	}
}

func TestBatchOptimizeValidation(t *testing.T) {
	h, _ := newTestImageHandler(t)

	cases := map[string]string{
		"missing list": `{}`,
		"empty list":   `{"image_urls":[]}`,
		"not a list":   `{"image_urls":"http://x/a.png"}`,
		"over cap":     `{"image_urls":["a","b","c","d"]}`,
		"bad quality":  `{"image_urls":["a"],"quality":500}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := post(t, h.BatchOptimize, "/batch-optimize", body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestAnalyzeImage(t *testing.T) {
	origin := newOrigin(t)
	h, _ := newTestImageHandler(t)

	rr := post(t, h.AnalyzeImage, "/analyze-image", `{"image_url":"`+origin.URL+`/img.png"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	out := decode(t, rr)
	info := out["image_info"].(map[string]any)
	if info["width"] != 48.0 || info["format"] != "PNG" {
		t.Fatalf("unexpected info: %v", info)
	}
	if _, ok := out["optimization_analysis"].(map[string]any); !ok {
		t.Fatalf("missing analysis: %v", out)
	}

	rr = post(t, h.AnalyzeImage, "/analyze-image", `{}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without image_url, got %d", rr.Code)
	}

	rr = post(t, h.AnalyzeImage, "/analyze-image", `{"image_url":"`+origin.URL+`/missing.png"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on fetch failure, got %d", rr.Code)
	}
}
