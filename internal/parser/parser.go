// Package parser provides manifest parsing for DASH and HLS sources.
package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mohaanymo/rainbow/internal/models"
)

// Parser defines the interface for manifest parsers.
type Parser interface {
	Parse(ctx context.Context, url string) (*models.Manifest, error)
	CanParse(url string) bool
}

// Registry manages available parsers.
type Registry struct {
	parsers []Parser
}

// NewRegistry creates a registry with the DASH and HLS parsers sharing
// client and headers.
func NewRegistry(client *http.Client, headers map[string]string) *Registry {
	f := &fetcher{client: client, headers: headers}
	return &Registry{
		parsers: []Parser{
			&DASHParser{fetcher: f},
			&HLSParser{fetcher: f},
		},
	}
}

// Parse finds an appropriate parser and parses the manifest.
func (r *Registry) Parse(ctx context.Context, urlStr string) (*models.Manifest, error) {
	for _, p := range r.parsers {
		if p.CanParse(urlStr) {
			return p.Parse(ctx, urlStr)
		}
	}
	return nil, fmt.Errorf("no parser found for URL: %s", urlStr)
}

type fetcher struct {
	client  *http.Client
	headers map[string]string
}

// fetch downloads a manifest or playlist body.
func (f *fetcher) fetch(ctx context.Context, urlStr string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", err
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	client := f.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	return string(body), err
}

// resolveURL resolves a relative URL against a base URL.
func resolveURL(base *url.URL, relative string) string {
	if strings.HasPrefix(relative, "http://") || strings.HasPrefix(relative, "https://") {
		return relative
	}
	rel, err := url.Parse(relative)
	if err != nil || base == nil {
		return relative
	}
	return base.ResolveReference(rel).String()
}

// parseByteRange parses a byte range ("length@offset" for HLS, "start-end" for DASH).
func parseByteRange(s string) *models.ByteRange {
	s = strings.Trim(s, "\"")

	if length, offset, ok := strings.Cut(s, "@"); ok || !strings.Contains(s, "-") {
		n, err := strconv.ParseInt(length, 10, 64)
		if err != nil {
			return nil
		}
		start, _ := strconv.ParseInt(offset, 10, 64)
		return &models.ByteRange{Start: start, End: start + n - 1}
	}

	first, last, _ := strings.Cut(s, "-")
	start, err1 := strconv.ParseInt(first, 10, 64)
	end, err2 := strconv.ParseInt(last, 10, 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	return &models.ByteRange{Start: start, End: end}
}

// parseFrameRate parses "30", "30000/1001" or "29.97".
func parseFrameRate(s string) models.FrameRate {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.FrameRate{}
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, _ := strconv.Atoi(num)
		d, _ := strconv.Atoi(den)
		return models.FrameRate{Num: n, Den: d}
	}
	if n, err := strconv.Atoi(s); err == nil {
		return models.FrameRate{Num: n, Den: 1}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return models.FrameRate{Num: int(f * 1000), Den: 1000}
	}
	return models.FrameRate{}
}

// assignStarts fills Segment.Start from the running sum of durations.
func assignStarts(segments []*models.Segment) {
	var t time.Duration
	for _, s := range segments {
		s.Start = t
		t += s.Duration
	}
}
