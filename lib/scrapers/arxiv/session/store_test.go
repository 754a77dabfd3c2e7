package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"scholar-seeker-ai/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) Store {
	return NewStore(filepath.Join(t.TempDir(), "auth_state.json"))
}

func TestLoadMissingFile(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:arxiv/session")
	defer cleanup()

	store := testStore(t)
	_, ok := store.Load()
	require.False(t, ok)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:arxiv/session")
	defer cleanup()

	store := testStore(t)
	saved := Session{
		Cookies: []Cookie{
			{Name: "tapir_session", Value: "abc123", Domain: "arxiv.org", Path: "/"},
		},
		ObtainedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(saved))

	loaded, ok := store.Load()
	require.True(t, ok)
	require.Equal(t, saved.Cookies, loaded.Cookies)
	require.True(t, saved.ObtainedAt.Equal(loaded.ObtainedAt))
}

func TestLoadCorruptFile(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:arxiv/session")
	defer cleanup()

	store := testStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte("{ not json"), 0600))

	_, ok := store.Load()
	require.False(t, ok)
}

func TestLoadEmptySession(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:arxiv/session")
	defer cleanup()

	// parses fine but holds no cookies, must read as absent
	store := testStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"cookies":[]}`), 0600))

	_, ok := store.Load()
	require.False(t, ok)
}

func TestClearIsIdempotent(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:arxiv/session")
	defer cleanup()

	store := testStore(t)
	require.NoError(t, store.Save(Session{
		Cookies:    []Cookie{{Name: "tapir_session", Value: "v"}},
		ObtainedAt: time.Now().UTC(),
	}))

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())

	_, ok := store.Load()
	require.False(t, ok)
}
