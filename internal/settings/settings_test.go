package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohaanymo/rainbow/internal/capability"
)

func TestOpenMissingFileUsesDefaults(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), s.Get())
	assert.Equal(t, capability.TierBasic, s.Tier())
}

func TestOpenClampsLevel(t *testing.T) {
	tests := []struct {
		body string
		want capability.Tier
	}{
		{`{"clevel": 1}`, capability.TierBest},
		{`{"clevel": 9}`, capability.TierMinimal},
		{`{"clevel": -2}`, capability.TierBest},
		{`{}`, capability.TierBasic},
	}
	for _, tt := range tests {
		path := filepath.Join(t.TempDir(), "settings.json")
		require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
		s, err := Open(path)
		require.NoError(t, err)
		assert.Equal(t, tt.want, s.Tier(), tt.body)
	}
}

func TestOpenCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err := Open(path)
	assert.Error(t, err)
}

func TestSetTierPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	s, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, s.SetTier(capability.TierModern))
	assert.Equal(t, capability.TierModern, s.Tier())

	reopened, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, capability.TierModern, reopened.Tier())
}

func TestUpdateFailureKeepsCache(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	// The parent "directory" is a regular file, so the write must fail.
	s := &Store{path: filepath.Join(blocker, "settings.json"), current: Defaults()}
	err := s.Update(func(st *Settings) { st.CompatLevel = 1 })
	require.Error(t, err)
	assert.Equal(t, int(capability.TierBasic), s.Get().CompatLevel)
}

func TestWatchReloadsOnExternalWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := Open(path)
	require.NoError(t, err)

	changed := make(chan Settings, 4)
	w, err := s.Watch(context.Background(), zerolog.Nop(), func(st Settings) { changed <- st })
	require.NoError(t, err)
	defer w.Close()

	other, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, other.SetTier(capability.TierMinimal))

	select {
	case st := <-changed:
		assert.Equal(t, int(capability.TierMinimal), st.CompatLevel)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the change")
	}
	assert.Equal(t, capability.TierMinimal, s.Tier())
}
