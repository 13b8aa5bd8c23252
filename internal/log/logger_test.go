package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAttachesServiceAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Output: &buf, Service: "player-test"})

	l.Info().Msg("dropped")
	assert.Zero(t, buf.Len(), "info must be filtered at warn level")

	l.Warn().Str("component", "scrub").Msg("kept")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "player-test", entry["service"])
	assert.Equal(t, "scrub", entry["component"])
	assert.Equal(t, "kept", entry["message"])
}

func TestNewDefaultsToDiscard(t *testing.T) {
	l := New(Config{Level: "debug"})
	// Must not panic or write anywhere observable.
	l.Debug().Msg("nothing")
}
