// Package probe resolves media durations out of band: from the server's
// ffprobe JSON endpoint or from an MP4 movie header.
package probe

import (
	"context"
	"encoding/base32"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/mohaanymo/rainbow/internal/models"
)

// Probe errors.
var (
	ErrNoProbeURL  = errors.New("probe: descriptor has no probe URL")
	ErrNoDuration  = errors.New("probe: response has no usable duration")
	ErrBadResponse = errors.New("probe: unexpected response")
)

// Result mirrors the subset of `ffprobe -print_format json -show_format`
// that the player reads.
type Result struct {
	Format struct {
		Duration json.RawMessage `json:"duration"`
	} `json:"format"`
}

// Seconds returns the parsed duration. ffprobe renders it as a string;
// plain numbers are accepted too.
func (r Result) Seconds() (float64, error) {
	raw := strings.Trim(strings.TrimSpace(string(r.Format.Duration)), `"`)
	if raw == "" || raw == "null" || raw == "N/A" {
		return 0, ErrNoDuration
	}
	d, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNoDuration, raw)
	}
	if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrNoDuration, d)
	}
	return d, nil
}

// URLFor builds the probe endpoint for a media path on server. The path
// is base32 encoded so it survives as a single URL segment.
func URLFor(server, mediaPath string) string {
	return strings.TrimRight(server, "/") + "/ffprobe_json/" +
		base32.StdEncoding.EncodeToString([]byte(mediaPath))
}

// Client fetches durations over HTTP. Concurrent probes for the same URL
// share one request.
type Client struct {
	http  *http.Client
	group singleflight.Group
	log   zerolog.Logger
}

// NewClient returns a probe client using hc (http.DefaultClient if nil).
func NewClient(hc *http.Client, logger zerolog.Logger) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{http: hc, log: logger}
}

// ProbeDuration returns the duration in seconds for desc.
func (c *Client) ProbeDuration(ctx context.Context, desc models.MediaDescriptor) (float64, error) {
	if desc.ProbeURL == "" {
		return 0, ErrNoProbeURL
	}

	ch := c.group.DoChan(desc.ProbeURL, func() (any, error) {
		// Detached so one caller cancelling does not fail the others.
		return c.fetch(context.WithoutCancel(ctx), desc.ProbeURL)
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		d := res.Val.(float64)
		c.log.Debug().Str("media_id", desc.ID).Float64("duration", d).Bool("shared", res.Shared).Msg("probe complete")
		return d, nil
	}
}

func (c *Client) fetch(ctx context.Context, url string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build probe request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: HTTP %d", ErrBadResponse, resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return result.Seconds()
}
