package processors

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoChat/core"
	"videoChat/storage"
)

const (
	vidA = "aaaaaaaaaaa"
	vidB = "bbbbbbbbbbb"
)

func storedText(t *testing.T, h *harness, id string) string {
	t.Helper()
	hits, err := h.store.List(context.Background(), id, 0)
	require.NoError(t, err)
	parts := make([]string, len(hits))
	for i, hit := range hits {
		parts[i] = hit.Text
	}
	return strings.Join(parts, " ")
}

func exists(t *testing.T, h *harness, id string) bool {
	t.Helper()
	ok, err := h.store.Exists(context.Background(), KeyPrefix(id))
	require.NoError(t, err)
	return ok
}

func TestAskBeforeIngest(t *testing.T) {
	h := newHarness()
	_, err := h.manager.Ask(context.Background(), "what is this about?")
	assert.ErrorIs(t, err, core.ErrNoActiveContext)

	_, ok := h.manager.Active()
	assert.False(t, ok)
}

func TestIngestThenAsk(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	summary, err := h.manager.Ingest(ctx, vidA, meta("Cooking pasta", "A recipe"), transcript("boil water", "add salt", "cook pasta"))
	require.NoError(t, err)
	assert.Equal(t, "a short summary", summary)

	id, ok := h.manager.Active()
	require.True(t, ok)
	assert.Equal(t, vidA, id)

	answer, err := h.manager.Ask(ctx, "how much salt?")
	require.NoError(t, err)
	assert.Equal(t, "an answer", answer)
	assert.Contains(t, h.completer.lastSystem(), "salt")
}

func TestIngestReplacesPreviousContext(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.manager.Ingest(ctx, vidA, meta("Cooking pasta", "Italian food"), transcript("boil water with salt"))
	require.NoError(t, err)
	_, err = h.manager.Ingest(ctx, vidB, meta("Fixing bikes", "Repair guide"), transcript("replace the chain"))
	require.NoError(t, err)

	assert.False(t, exists(t, h, vidA), "previous context must be evicted")
	assert.True(t, exists(t, h, vidB))

	_, err = h.manager.Ask(ctx, "what about pasta?")
	require.NoError(t, err)
	system := h.completer.lastSystem()
	assert.Contains(t, system, "Fixing bikes")
	assert.NotContains(t, system, "Cooking pasta")
}

func TestReingestSameVideoDropsStaleChunks(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	long := strings.Repeat("word ", 40)

	_, err := h.manager.Ingest(ctx, vidA, meta("Title", "Desc"), transcript(long))
	require.NoError(t, err)
	before := h.store.Len()

	_, err = h.manager.Ingest(ctx, vidA, meta("Title", "Desc"), transcript("short"))
	require.NoError(t, err)
	assert.Less(t, h.store.Len(), before)
}

func TestIngestWithoutTranscriptStoresFallback(t *testing.T) {
	h := newHarness()
	d := 125.0
	m := meta("Silent film", "No captions here")
	m.DurationSeconds = &d

	_, err := h.manager.Ingest(context.Background(), vidA, m, core.TranscriptFound(nil))
	require.NoError(t, err)

	text := storedText(t, h, vidA)
	assert.Contains(t, text, "Transcript: not available.")
	assert.Contains(t, text, "duration: 2:05.")
}

func TestIngestRejectsInvalidInput(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.manager.Ingest(ctx, vidA, meta("First", "ok"), transcript("hello"))
	require.NoError(t, err)

	_, err = h.manager.Ingest(ctx, "short", meta("Title", ""), transcript("x"))
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = h.manager.Ingest(ctx, vidB, meta("  ", ""), transcript("x"))
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	// 参数错误不影响当前上下文
	id, ok := h.manager.Active()
	require.True(t, ok)
	assert.Equal(t, vidA, id)
	assert.True(t, exists(t, h, vidA))
}

func TestStoreWriteFailureFailsClosed(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.manager.Ingest(ctx, vidA, meta("First", ""), transcript("hello"))
	require.NoError(t, err)

	h.store.set(true, false)
	_, err = h.manager.Ingest(ctx, vidB, meta("Second", ""), transcript("world"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUpstreamUnavailable)

	_, ok := h.manager.Active()
	assert.False(t, ok, "no context may be active after a failed write")
	assert.False(t, exists(t, h, vidA))
	assert.False(t, exists(t, h, vidB))

	_, err = h.manager.Ask(ctx, "anything?")
	assert.ErrorIs(t, err, core.ErrNoActiveContext)
}

func TestEvictionFailureIsRetried(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.manager.Ingest(ctx, vidA, meta("First", ""), transcript("hello"))
	require.NoError(t, err)

	h.store.set(false, true)
	_, err = h.manager.Ingest(ctx, vidB, meta("Second", ""), transcript("world"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUpstreamUnavailable)

	_, ok := h.manager.Active()
	assert.False(t, ok)
	assert.True(t, exists(t, h, vidA), "records survive a failed delete")
	assert.False(t, exists(t, h, vidB))

	h.store.set(false, false)
	_, err = h.manager.Ingest(ctx, vidB, meta("Second", ""), transcript("world"))
	require.NoError(t, err)

	assert.False(t, exists(t, h, vidA), "pending eviction runs on the next ingest")
	assert.True(t, exists(t, h, vidB))
}

func TestSummaryFailureKeepsContext(t *testing.T) {
	h := newHarness()
	h.completer.reply = func(context.Context, string, []core.ChatTurn) (string, error) {
		return "", errors.New("model overloaded")
	}

	_, err := h.manager.Ingest(context.Background(), vidA, meta("Title", ""), transcript("hello"))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUpstreamUnavailable)

	id, ok := h.manager.Active()
	require.True(t, ok)
	assert.Equal(t, vidA, id)
	assert.True(t, exists(t, h, vidA))
}

func TestIngestClearsHistory(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.manager.Ingest(ctx, vidA, meta("First", ""), transcript("hello"))
	require.NoError(t, err)
	_, err = h.manager.Ask(ctx, "hi")
	require.NoError(t, err)

	turns, err := h.history.Recent(ctx, vidA, 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)

	_, err = h.manager.Ingest(ctx, vidB, meta("Second", ""), transcript("world"))
	require.NoError(t, err)
	turns, err = h.history.Recent(ctx, vidA, 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestAskAs(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.manager.Ingest(ctx, vidA, meta("First", ""), transcript("hello"))
	require.NoError(t, err)

	_, err = h.manager.AskAs(ctx, vidB, "hi")
	assert.ErrorIs(t, err, core.ErrContextMismatch)

	_, err = h.manager.AskAs(ctx, vidA, "   ")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	answer, err := h.manager.AskAs(ctx, vidA, "hi")
	require.NoError(t, err)
	assert.Equal(t, "an answer", answer)
}

func TestConcurrentIngests(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := newHarness()
		ctx := context.Background()

		var wg sync.WaitGroup
		for _, id := range []string{vidA, vidB} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := h.manager.Ingest(ctx, id, meta("Video "+id, "desc"), transcript("content of", id))
				assert.NoError(t, err)
			}(id)
		}
		wg.Wait()

		active, ok := h.manager.Active()
		require.True(t, ok)
		other := vidA
		if active == vidA {
			other = vidB
		}
		assert.True(t, exists(t, h, active))
		assert.False(t, exists(t, h, other), "loser's records must be absent")
		assert.NotContains(t, storedText(t, h, active), other)
	}
}

func TestConcurrentAsks(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.manager.Ingest(ctx, vidA, meta("First", ""), transcript("hello"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.manager.Ask(ctx, "hi")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	turns, err := h.history.Recent(ctx, vidA, 100)
	require.NoError(t, err)
	assert.Len(t, turns, 20)
}

func TestUpstreamTimeout(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.manager.Ingest(ctx, vidA, meta("First", ""), transcript("hello"))
	require.NoError(t, err)

	h.completer.reply = func(ctx context.Context, _ string, _ []core.ChatTurn) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	h.manager.timeout = 20 * time.Millisecond

	_, err = h.manager.Ask(ctx, "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStatus(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	status, err := h.manager.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Active)

	_, err = h.manager.Ingest(ctx, vidA, meta("First", ""), transcript("hello"))
	require.NoError(t, err)
	status, err = h.manager.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.ContextStatusResponse{Active: true, VideoID: vidA, Stored: true}, status)
}

func TestIngestWaitsForAskInFlight(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.manager.Ingest(ctx, vidA, meta("First", ""), transcript("hello"))
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.completer.reply = func(_ context.Context, system string, _ []core.ChatTurn) (string, error) {
		if strings.HasPrefix(system, "You summarize") {
			return "a short summary", nil
		}
		once.Do(func() { close(started) })
		<-release
		return "an answer", nil
	}

	askDone := make(chan error, 1)
	go func() {
		_, err := h.manager.Ask(ctx, "secret question")
		askDone <- err
	}()
	<-started

	ingestDone := make(chan error, 1)
	go func() {
		_, err := h.manager.Ingest(ctx, vidB, meta("Second", ""), transcript("world"))
		ingestDone <- err
	}()
	select {
	case <-ingestDone:
		t.Fatal("ingest finished while an ask on the old context was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-askDone)
	require.NoError(t, <-ingestDone)

	_, err = h.manager.Ingest(ctx, vidA, meta("First again", ""), transcript("hello"))
	require.NoError(t, err)
	turns, err := h.history.Recent(ctx, vidA, 10)
	require.NoError(t, err)
	assert.Empty(t, turns, "the new context must not inherit the old conversation")
}

func TestIngestClearsLeftoverHistoryOfIncomingVideo(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	require.NoError(t, h.history.Append(ctx, vidB, core.ChatTurn{Role: core.RoleUser, Text: "left over"}))

	_, err := h.manager.Ingest(ctx, vidB, meta("Second", ""), transcript("world"))
	require.NoError(t, err)

	turns, err := h.history.Recent(ctx, vidB, 10)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestHistory(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	_, err := h.manager.History(ctx)
	assert.ErrorIs(t, err, core.ErrNoActiveContext)

	_, err = h.manager.Ingest(ctx, vidA, meta("First", ""), transcript("hello"))
	require.NoError(t, err)
	resp, err := h.manager.History(ctx)
	require.NoError(t, err)
	assert.Equal(t, vidA, resp.VideoID)
	assert.Empty(t, resp.Messages)
	assert.NotNil(t, resp.Messages)

	_, err = h.manager.Ask(ctx, "hi")
	require.NoError(t, err)
	resp, err = h.manager.History(ctx)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, core.RoleUser, resp.Messages[0].Role)
	assert.Equal(t, "hi", resp.Messages[0].Text)
	assert.Equal(t, core.RoleAssistant, resp.Messages[1].Role)
}

// restart builds a second manager over the same stores, as a new process would.
func restart(t *testing.T, h *harness, pointers storage.PointerStore) *Manager {
	t.Helper()
	chat := NewRAGChat(h.index, h.completer, h.history, 3, 10, nil)
	m := NewManager(h.index, chat, h.history, 0, nil)
	require.NoError(t, m.Restore(context.Background(), pointers))
	return m
}

func TestRestoreEvictsContextOfPreviousProcess(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	pointers := storage.NewMemoryPointer()
	require.NoError(t, h.manager.Restore(ctx, pointers))

	_, err := h.manager.Ingest(ctx, vidA, meta("First", ""), transcript("hello"))
	require.NoError(t, err)
	_, err = h.manager.Ask(ctx, "hi")
	require.NoError(t, err)

	m := restart(t, h, pointers)
	id, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, vidA, id)

	_, err = m.Ingest(ctx, vidB, meta("Second", ""), transcript("world"))
	require.NoError(t, err)
	assert.False(t, exists(t, h, vidA), "context of the previous process must be evicted")
	assert.True(t, exists(t, h, vidB))
	turns, err := h.history.Recent(ctx, vidA, 10)
	require.NoError(t, err)
	assert.Empty(t, turns)

	active, pending, err := pointers.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, vidB, active)
	assert.Empty(t, pending)
}

func TestRestoreRetriesPendingEviction(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	pointers := storage.NewMemoryPointer()
	require.NoError(t, h.manager.Restore(ctx, pointers))

	_, err := h.manager.Ingest(ctx, vidA, meta("First", ""), transcript("hello"))
	require.NoError(t, err)
	h.store.set(false, true)
	_, err = h.manager.Ingest(ctx, vidB, meta("Second", ""), transcript("world"))
	require.Error(t, err)

	active, pending, err := pointers.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Equal(t, []string{vidA}, pending)

	h.store.set(false, false)
	m := restart(t, h, pointers)
	_, ok := m.Active()
	assert.False(t, ok)

	_, err = m.Ingest(ctx, vidB, meta("Second", ""), transcript("world"))
	require.NoError(t, err)
	assert.False(t, exists(t, h, vidA))
	assert.True(t, exists(t, h, vidB))
}

func TestFailedWriteStaysPendingAcrossRestart(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	pointers := storage.NewMemoryPointer()
	require.NoError(t, h.manager.Restore(ctx, pointers))

	h.store.set(true, false)
	_, err := h.manager.Ingest(ctx, vidA, meta("First", ""), transcript("hello"))
	require.Error(t, err)

	_, pending, err := pointers.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{vidA}, pending)
}
