package optimizer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"imgopt-gateway/internal/errs"
	"imgopt-gateway/internal/transform"
	"imgopt-gateway/pkg/logging/logging"
)

type BatchResult struct {
	TotalImages int       `json:"total_images"`
	Successful  int       `json:"successful"`
	Failed      int       `json:"failed"`
	SuccessRate float64   `json:"success_rate"`
	Results     []*Result `json:"results"`
}

// OptimizeBatch runs Optimize over urls one at a time, in input order. A failing
// item never stops the batch. Exceeding the configured cap is a validation error.
func (o *Optimizer) OptimizeBatch(ctx context.Context, urls []string, opts Options) (*BatchResult, error) {
	if len(urls) > o.cfg.MaxBatchSize {
		return nil, errs.Newf(errs.ErrValidation, "batch of %d exceeds maximum of %d images", len(urls), o.cfg.MaxBatchSize)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	logger := logging.FromContext(ctx, o.logger)
	start := time.Now()

	out := &BatchResult{
		TotalImages: len(urls),
		Results:     make([]*Result, 0, len(urls)),
	}
	for _, u := range urls {
		res := o.Optimize(ctx, u, opts)
		if res.Success {
			out.Successful++
		} else {
			out.Failed++
		}
		out.Results = append(out.Results, res)
	}
	if out.TotalImages > 0 {
		out.SuccessRate = transform.Round2(float64(out.Successful) / float64(out.TotalImages) * 100)
	}

	logger.Info("batch finished",
		zap.Int("total", out.TotalImages),
		zap.Int("successful", out.Successful),
		zap.Int("failed", out.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}
