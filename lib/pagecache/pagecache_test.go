package pagecache

import (
	"context"
	"testing"
	"time"

	"scholar-seeker-ai/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func TestCacheRoundTrip(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:pagecache")
	defer cleanup()

	cache, err := Open(":memory:")
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()

	_, err = cache.Get(ctx, "https://example.org/list/cs.AI/recent")
	require.ErrorIs(t, err, ErrNotFound)

	err = cache.Set(ctx, "https://example.org/list/cs.AI/recent", []byte("<html>listing</html>"), time.Minute)
	require.NoError(t, err)

	contents, err := cache.Get(ctx, "https://example.org/list/cs.AI/recent")
	require.NoError(t, err)
	require.Equal(t, []byte("<html>listing</html>"), contents)

	// urls that normalize identically share an entry
	contents, err = cache.Get(ctx, "https://example.org/list/cs.AI/recent#fragment")
	require.NoError(t, err)
	require.Equal(t, []byte("<html>listing</html>"), contents)
}

func TestCacheExpiry(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:pagecache")
	defer cleanup()

	cache, err := Open(":memory:")
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()

	err = cache.Set(ctx, "https://example.org/expired", []byte("stale"), -time.Minute)
	require.NoError(t, err)

	_, err = cache.Get(ctx, "https://example.org/expired")
	require.ErrorIs(t, err, ErrNotFound)
}
