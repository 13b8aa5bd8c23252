// Package httpclient provides the shared HTTP client used for manifests,
// probes and media fetches.
package httpclient

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// burstBytes is the rate limiter burst; reads are chunked to fit it.
const burstBytes = 64 * 1024

// Config holds HTTP client configuration.
type Config struct {
	Timeout         time.Duration
	MaxConnsPerHost int
	DisableHTTP2    bool
	Headers         map[string]string
	// BytesPerSec caps body throughput; 0 means unlimited.
	BytesPerSec int64
}

// New creates an HTTP client from cfg. Configured headers are added to
// every request that does not already set them.
func New(cfg Config) *http.Client {
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = 16
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	var rt http.RoundTripper = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		DisableCompression: true, // Media is already compressed
		ForceAttemptHTTP2:  !cfg.DisableHTTP2,
		DialContext:        dialer.DialContext,

		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	if cfg.BytesPerSec > 0 {
		rt = &rateLimitedTransport{
			base:    rt,
			limiter: rate.NewLimiter(rate.Limit(cfg.BytesPerSec), burstBytes),
		}
	}
	if len(cfg.Headers) > 0 {
		rt = &headerTransport{base: rt, headers: cfg.Headers}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   cfg.Timeout,
	}
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

// rateLimitedTransport wraps a transport with rate limiting.
type rateLimitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	resp.Body = &rateLimitedReader{
		r:       resp.Body,
		limiter: t.limiter,
		ctx:     req.Context(),
	}
	return resp, nil
}

// rateLimitedReader wraps an io.ReadCloser with rate limiting.
type rateLimitedReader struct {
	r       io.ReadCloser
	limiter *rate.Limiter
	ctx     context.Context
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	if len(p) > burstBytes {
		p = p[:burstBytes]
	}
	if err := r.limiter.WaitN(r.ctx, len(p)); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

func (r *rateLimitedReader) Close() error {
	return r.r.Close()
}
