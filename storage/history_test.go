package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoChat/core"
)

func turn(role core.Role, text string) core.ChatTurn {
	return core.ChatTurn{ID: uuid.NewString(), Role: role, Text: text, At: time.Now().UTC().Truncate(time.Millisecond)}
}

// exerciseHistory runs the same checks against any HistoryStore.
func exerciseHistory(t *testing.T, h HistoryStore, session string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.Clear(ctx, session))

	require.NoError(t, h.Append(ctx, session, turn(core.RoleUser, "q1"), turn(core.RoleAssistant, "a1")))
	require.NoError(t, h.Append(ctx, session, turn(core.RoleUser, "q2"), turn(core.RoleAssistant, "a2")))

	recent, err := h.Recent(ctx, session, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "a1", recent[0].Text)
	assert.Equal(t, "q2", recent[1].Text)
	assert.Equal(t, core.RoleAssistant, recent[2].Role)

	none, err := h.Recent(ctx, session, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, h.Clear(ctx, session))
	recent, err = h.Recent(ctx, session, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestMemoryHistory(t *testing.T) {
	exerciseHistory(t, NewMemoryHistory(), "dQw4w9WgXcQ")
}

func TestMemoryHistoryIsolatesSessions(t *testing.T) {
	ctx := context.Background()
	h := NewMemoryHistory()
	require.NoError(t, h.Append(ctx, "v1", turn(core.RoleUser, "hello")))
	require.NoError(t, h.Append(ctx, "v2", turn(core.RoleUser, "other")))
	require.NoError(t, h.Clear(ctx, "v1"))

	recent, err := h.Recent(ctx, "v2", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "other", recent[0].Text)
}

func TestRedisHistory(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	h := NewRedisHistory(redis.NewClient(opt))
	defer h.Close()

	exerciseHistory(t, h, "test-"+uuid.NewString())
}
