package httpclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadersApplied(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	client := New(Config{Headers: map[string]string{"X-Token": "abc", "User-Agent": "rainbow"}})
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "explicit")

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "abc", got.Get("X-Token"))
	assert.Equal(t, "explicit", got.Get("User-Agent"), "request headers win")
}

func TestRateLimitedBody(t *testing.T) {
	body := make([]byte, 3*burstBytes)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	// One burst is free; the other two take at least a second at one
	// burst per second.
	client := New(Config{BytesPerSec: burstBytes})
	start := time.Now()
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Len(t, data, len(body))
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}
