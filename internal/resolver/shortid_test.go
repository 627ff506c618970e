package resolver

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/burrow/internal/events"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLedger(t *testing.T, ids ...string) *events.Client {
	t.Helper()
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	ctx := context.Background()
	for i, id := range ids {
		c, err := events.NewClient(&redis.Options{Addr: mr.Addr()}, id)
		require.NoError(t, err)
		require.NoError(t, c.StartRun(ctx, &events.Run{ID: id, Status: events.RunStatusRunning, StartedAtMs: int64(i + 1)}))
		c.Close()
	}

	reader, err := events.NewClient(&redis.Options{Addr: mr.Addr()}, "reader")
	require.NoError(t, err)
	t.Cleanup(func() { reader.Close() })
	return reader
}

func TestResolveRunID(t *testing.T) {
	first := "3f2a9c11-5b6d-4e7f-8a9b-0c1d2e3f4a5b"
	second := "3f2a9c22-5b6d-4e7f-8a9b-0c1d2e3f4a5b"
	client := setupLedger(t, first, second)
	ctx := context.Background()

	t.Run("full uuid", func(t *testing.T) {
		id, err := ResolveRunID(ctx, client, first)
		require.NoError(t, err)
		assert.Equal(t, first, id)
	})

	t.Run("full uuid not found", func(t *testing.T) {
		_, err := ResolveRunID(ctx, client, "00000000-0000-4000-8000-000000000000")
		assert.True(t, IsNotFoundError(err))
	})

	t.Run("unique prefix", func(t *testing.T) {
		id, err := ResolveRunID(ctx, client, "3f2a9c2")
		require.NoError(t, err)
		assert.Equal(t, second, id)
	})

	t.Run("ambiguous prefix", func(t *testing.T) {
		_, err := ResolveRunID(ctx, client, "3f2a9c")
		require.Error(t, err)
		assert.True(t, IsAmbiguousError(err))
		assert.Equal(t, []string{first, second}, err.(*AmbiguousError).Matches)
	})

	t.Run("no match", func(t *testing.T) {
		_, err := ResolveRunID(ctx, client, "ffffff")
		assert.True(t, IsNotFoundError(err))
		assert.Contains(t, err.Error(), "no runs found matching 'ffffff'")
	})

	t.Run("too short", func(t *testing.T) {
		_, err := ResolveRunID(ctx, client, "3f2a")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 6 characters")
	})
}

func TestFormatAmbiguousError(t *testing.T) {
	t.Run("few matches", func(t *testing.T) {
		msg := FormatAmbiguousError(&AmbiguousError{ShortID: "abcdef", Matches: []string{"abcdef-1", "abcdef-2"}})
		assert.Contains(t, msg, "matches 2 runs")
		assert.Contains(t, msg, "  abcdef-1\n")
		assert.NotContains(t, msg, "more")
	})

	t.Run("truncates after ten", func(t *testing.T) {
		matches := make([]string, 13)
		for i := range matches {
			matches[i] = fmt.Sprintf("abcdef-%02d", i)
		}
		msg := FormatAmbiguousError(&AmbiguousError{ShortID: "abcdef", Matches: matches})
		assert.Equal(t, 10, strings.Count(msg, "  abcdef-"))
		assert.Contains(t, msg, "...and 3 more")
	})
}
