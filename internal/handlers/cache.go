package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"imgopt-gateway/internal/cache"
	"imgopt-gateway/internal/errs"
	"imgopt-gateway/pkg/logging/logging"
)

type CacheHandler struct {
	Cache *cache.Coordinator
}

func NewCacheHandler(c *cache.Coordinator) *CacheHandler {
	return &CacheHandler{Cache: c}
}

type statsResponse struct {
	Success            bool    `json:"success"`
	CacheEnabled       bool    `json:"cache_enabled"`
	TotalKeys          int     `json:"total_keys"`
	RequestKeys        int     `json:"request_keys"`
	ContentKeys        int     `json:"content_keys"`
	SampledKeys        int     `json:"sampled_keys"`
	EstimatedSizeBytes int64   `json:"estimated_size_bytes"`
	EstimatedSizeMB    float64 `json:"estimated_size_mb"`
	TTLHours           float64 `json:"ttl_hours"`
}

type clearRequest struct {
	Pattern string `json:"pattern"`
}

type clearResponse struct {
	Success      bool   `json:"success"`
	CacheEnabled bool   `json:"cache_enabled"`
	DeletedKeys  int64  `json:"deleted_keys"`
	Pattern      string `json:"pattern"`
	Message      string `json:"message,omitempty"`
}

// Stats handles GET /cache-stats.
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.Cache.Enabled() {
		writeJSON(w, http.StatusOK, map[string]bool{"success": true, "cache_enabled": false})
		return
	}

	st, err := h.Cache.Stats(ctx)
	if err != nil {
		logging.L(ctx).Error("cache stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error(), errs.Code(err))
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Success:            true,
		CacheEnabled:       true,
		TotalKeys:          st.TotalKeys,
		RequestKeys:        st.RequestKeys,
		ContentKeys:        st.ContentKeys,
		SampledKeys:        st.SampledKeys,
		EstimatedSizeBytes: st.EstimatedSizeBytes,
		EstimatedSizeMB:    st.EstimatedSizeMB,
		TTLHours:           h.Cache.TTL().Hours(),
	})
}

// Clear handles POST /clear-cache. The body is optional.
func (h *CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req clearRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "validation_error")
		return
	}
	if req.Pattern == "" {
		req.Pattern = cache.DefaultClearPattern
	}

	resp := clearResponse{Success: true, CacheEnabled: h.Cache.Enabled(), Pattern: req.Pattern}
	if !resp.CacheEnabled {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	n, err := h.Cache.Clear(ctx, req.Pattern)
	if err != nil {
		logging.L(ctx).Error("cache clear failed", zap.String("pattern", req.Pattern), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error(), errs.Code(err))
		return
	}

	resp.DeletedKeys = n
	if n == 0 {
		resp.Message = "no keys matched"
	}
	writeJSON(w, http.StatusOK, resp)
}
