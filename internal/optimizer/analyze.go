package optimizer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"imgopt-gateway/internal/classifier"
	"imgopt-gateway/internal/transform"
	"imgopt-gateway/pkg/logging/logging"
)

type AnalyzeResult struct {
	Success     bool               `json:"success"`
	ImageURL    string             `json:"image_url"`
	ContentType string             `json:"content_type"`
	ImageInfo   transform.Info     `json:"image_info"`
	Analysis    transform.Analysis `json:"optimization_analysis"`
	IsGeneric   bool               `json:"is_generic"`
	Timestamp   time.Time          `json:"timestamp"`
}

// Analyze fetches url and reports on it without transforming. Generic sources are
// analysed too; the flag is reported rather than enforced.
func (o *Optimizer) Analyze(ctx context.Context, url string) (*AnalyzeResult, error) {
	logger := logging.FromContext(ctx, o.logger).With(zap.String("image_url", url))

	raw, err := o.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	report, err := o.engine.Analyze(raw.Data)
	if err != nil {
		return nil, err
	}

	logger.Debug("image analysed",
		zap.String("format", report.Info.Format),
		zap.Int("recommendations", len(report.Analysis.Recommendations)),
	)
	return &AnalyzeResult{
		Success:     true,
		ImageURL:    url,
		ContentType: raw.ContentType,
		ImageInfo:   report.Info,
		Analysis:    report.Analysis,
		IsGeneric:   classifier.IsGenericSource(url),
		Timestamp:   time.Now().UTC(),
	}, nil
}
