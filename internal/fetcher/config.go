package fetcher

import (
	"errors"
	"net"
	"net/http"
	"time"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxBytes  = 15 * 1024 * 1024
	DefaultUserAgent = "imgopt-gateway/1.0"
)

type Options struct {
	Timeout   time.Duration // whole-fetch deadline, retries included (default: 30s)
	MaxBytes  int64         // declared or streamed body limit (default: 15MB)
	UserAgent string

	Retries     int           // extra attempts on transient failures; 0 disables
	BaseBackoff time.Duration // initial backoff (default: 100ms)

	// HostInterval paces requests to the same origin host; 0 disables pacing.
	HostInterval time.Duration

	// Optional connection pool settings
	MaxIdleConns        int // default: 100
	MaxIdleConnsPerHost int // default: 10

	// Custom HTTP client (for testing or special configs)
	HTTPClient *http.Client
}

// Validate rejects option values that cannot be defaulted.
func (o *Options) Validate() error {
	if o.Retries < 0 {
		return errors.New("retries must not be negative")
	}
	if o.MaxBytes < 0 {
		return errors.New("max bytes must not be negative")
	}
	return nil
}

// WithDefaults returns a copy of Options with sane defaults applied.
func (o *Options) WithDefaults() Options {
	opts := *o

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBytes == 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 100 * time.Millisecond
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 100
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = 10
	}

	return opts
}

// defaultTransport creates a pooled transport with bounded dial and TLS timeouts.
// Compression is left to the origin: image bodies are already compressed.
func defaultTransport(opts Options) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        opts.MaxIdleConns,
		MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
