// Package fetcher downloads raw image bytes from origin URLs with size, timeout and
// content-type limits. It never caches.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"imgopt-gateway/internal/errs"
	"imgopt-gateway/internal/metrics"
)

// RawImage is an origin response body that passed the fetch checks.
type RawImage struct {
	URL         string
	Data        []byte
	ContentType string
	Size        int
	FetchedAt   time.Time
}

type Client struct {
	opts       Options
	httpClient *http.Client
	limiter    *HostRateLimiter
	logger     *zap.Logger
}

// New creates a fetch client with the given options.
func New(opts Options, logger *zap.Logger) (*Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("fetcher: invalid options: %w", err)
	}
	opts = opts.WithDefaults()

	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: defaultTransport(opts),
		}
	}

	var limiter *HostRateLimiter
	if opts.HostInterval > 0 {
		limiter = NewHostRateLimiter(opts.HostInterval)
	}

	return &Client{
		opts:       opts,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger.Named("fetcher"),
	}, nil
}

// Options returns the effective (defaulted) options.
func (c *Client) Options() Options {
	return c.opts
}

// Fetch GETs rawURL and returns its body. Failures wrap errs.ErrNetwork,
// errs.ErrInvalidContentType or errs.ErrPayloadTooLarge.
func (c *Client) Fetch(parentCtx context.Context, rawURL string) (*RawImage, error) {
	start := time.Now()

	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, errs.Newf(errs.ErrValidation, "invalid image url %q", rawURL)
	}

	// One deadline covers pacing, every attempt and the body read.
	ctx, cancel := context.WithTimeout(parentCtx, c.opts.Timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, u.Host); err != nil {
			return nil, errs.Wrap(errs.ErrNetwork, "fetch: host pacing", err)
		}
	}

	c.logger.Debug("fetch starting", zap.String("url", rawURL))

	// doOnce builds a fresh *http.Request for each attempt
	doOnce := func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("build HTTP request: %w", err)
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)
		req.Header.Set("Accept", "image/*,*/*;q=0.8")
		return c.httpClient.Do(req)
	}

	data, contentType, err := c.fetch(ctx, doOnce)
	if err != nil {
		metrics.FetchSeconds.WithLabelValues(errs.Code(err)).Observe(time.Since(start).Seconds())
		c.logger.Warn("fetch failed",
			zap.String("url", rawURL),
			zap.String("error_type", errs.Code(err)),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, err
	}

	metrics.FetchSeconds.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	c.logger.Info("fetch completed",
		zap.String("url", rawURL),
		zap.String("content_type", contentType),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(start)),
	)

	return &RawImage{
		URL:         rawURL,
		Data:        data,
		ContentType: contentType,
		Size:        len(data),
		FetchedAt:   time.Now(),
	}, nil
}

func (c *Client) fetch(ctx context.Context, doOnce func(context.Context) (*http.Response, error)) ([]byte, string, error) {
	resp, err := c.doWithRetry(ctx, doOnce)
	if err != nil {
		return nil, "", errs.Wrap(errs.ErrNetwork, "fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", errs.Newf(errs.ErrNetwork, "origin returned status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
		return nil, "", errs.Newf(errs.ErrInvalidContentType, "url does not serve an image: %q", contentType)
	}

	// ContentLength is -1 when the origin did not declare it.
	if resp.ContentLength > c.opts.MaxBytes {
		return nil, "", errs.Newf(errs.ErrPayloadTooLarge, "declared %d bytes, max %d", resp.ContentLength, c.opts.MaxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBytes+1)) // +1 to detect overflow
	if err != nil {
		return nil, "", errs.Wrap(errs.ErrNetwork, "read body", err)
	}
	if int64(len(data)) > c.opts.MaxBytes {
		return nil, "", errs.Newf(errs.ErrPayloadTooLarge, "body exceeds %d bytes", c.opts.MaxBytes)
	}

	return data, contentType, nil
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
