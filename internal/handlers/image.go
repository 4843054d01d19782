package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"imgopt-gateway/internal/errs"
	"imgopt-gateway/internal/optimizer"
	"imgopt-gateway/internal/transform"
	"imgopt-gateway/pkg/logging/logging"
)

// ImageHandler serves the optimisation and analysis endpoints.
type ImageHandler struct {
	Optimizer *optimizer.Optimizer
}

func NewImageHandler(o *optimizer.Optimizer) *ImageHandler {
	return &ImageHandler{Optimizer: o}
}

// optionFields are the knobs shared by single and batch requests.
type optionFields struct {
	Format       string `json:"format"`
	Quality      *int   `json:"quality"`
	IsThumbnail  bool   `json:"is_thumbnail"`
	ReturnBase64 *bool  `json:"return_base64"`
	MaxWidth     int    `json:"max_width"`
	MaxHeight    int    `json:"max_height"`
}

type optimizeRequest struct {
	ImageURL *string `json:"image_url"`
	optionFields
}

type batchRequest struct {
	ImageURLs json.RawMessage `json:"image_urls"`
	optionFields
}

type analyzeRequest struct {
	ImageURL *string `json:"image_url"`
}

func (f optionFields) toOptions() (optimizer.Options, error) {
	var opts optimizer.Options
	if strings.TrimSpace(f.Format) != "" {
		c, err := transform.ParseCodec(f.Format)
		if err != nil {
			return opts, errs.Newf(errs.ErrValidation, "unsupported format, use: WEBP, JPEG, AVIF, PNG")
		}
		opts.Format = c
	}
	if f.Quality != nil {
		if *f.Quality < 1 || *f.Quality > 100 {
			return opts, errs.Newf(errs.ErrValidation, "quality must be between 1 and 100")
		}
		opts.Quality = *f.Quality
	}
	opts.IsThumbnail = f.IsThumbnail
	opts.ReturnReference = f.ReturnBase64 != nil && !*f.ReturnBase64
	opts.MaxWidth = f.MaxWidth
	opts.MaxHeight = f.MaxHeight
	return opts, opts.Validate()
}

// OptimizeImage handles POST /optimize-image.
func (h *ImageHandler) OptimizeImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	var req optimizeRequest
	if err := decodeBody(r, &req, false); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid or empty JSON body", "validation_error")
		return
	}
	if req.ImageURL == nil {
		writeError(w, http.StatusBadRequest, "image_url is required", "validation_error")
		return
	}
	url := strings.TrimSpace(*req.ImageURL)
	if url == "" {
		writeError(w, http.StatusBadRequest, "image_url must not be empty", "validation_error")
		return
	}
	opts, err := req.toOptions()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), errs.Code(err))
		return
	}

	res := h.Optimizer.Optimize(ctx, url, opts)
	if !res.Success {
		writeJSON(w, http.StatusBadRequest, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// BatchOptimize handles POST /batch-optimize.
func (h *ImageHandler) BatchOptimize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)

	var req batchRequest
	if err := decodeBody(r, &req, false); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid or empty JSON body", "validation_error")
		return
	}

	var urls []string
	if err := json.Unmarshal(req.ImageURLs, &urls); err != nil || len(urls) == 0 {
		writeError(w, http.StatusBadRequest, "image_urls must be a non-empty list", "validation_error")
		return
	}
	if limit := h.Optimizer.Config().MaxBatchSize; len(urls) > limit {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("maximum %d images per batch", limit), "validation_error")
		return
	}
	opts, err := req.toOptions()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), errs.Code(err))
		return
	}

	logger.Info("batch started", zap.Int("images", len(urls)))
	out, err := h.Optimizer.OptimizeBatch(ctx, urls, opts)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), errs.Code(err))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// AnalyzeImage handles POST /analyze-image.
func (h *ImageHandler) AnalyzeImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req analyzeRequest
	if err := decodeBody(r, &req, false); err != nil || req.ImageURL == nil || strings.TrimSpace(*req.ImageURL) == "" {
		writeError(w, http.StatusBadRequest, "image_url is required", "validation_error")
		return
	}
	url := strings.TrimSpace(*req.ImageURL)

	res, err := h.Optimizer.Analyze(ctx, url)
	if err != nil {
		logging.L(ctx).Warn("analysis failed", zap.String("image_url", url), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error(), errs.Code(err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
