package processors

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"

	"videoChat/core"
	"videoChat/storage"
)

// bagEmbedder hashes words into a small vector so similar texts score close.
type bagEmbedder struct{}

func (bagEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 16)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			h := fnv.New32a()
			h.Write([]byte(w))
			v[h.Sum32()%16]++
		}
		out[i] = v
	}
	return out, nil
}

// scriptedCompleter records calls and answers from a function.
type scriptedCompleter struct {
	mu      sync.Mutex
	systems []string
	turns   [][]core.ChatTurn
	reply   func(ctx context.Context, system string, turns []core.ChatTurn) (string, error)
}

func (c *scriptedCompleter) Complete(ctx context.Context, system string, turns []core.ChatTurn) (string, error) {
	c.mu.Lock()
	c.systems = append(c.systems, system)
	c.turns = append(c.turns, turns)
	reply := c.reply
	c.mu.Unlock()
	if reply == nil {
		if strings.HasPrefix(system, "You summarize") {
			return "a short summary", nil
		}
		return "an answer", nil
	}
	return reply(ctx, system, turns)
}

func (c *scriptedCompleter) lastSystem() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.systems) == 0 {
		return ""
	}
	return c.systems[len(c.systems)-1]
}

// flakyStore wraps the memory store with switchable failures.
type flakyStore struct {
	*storage.MemoryVectorStore
	mu         sync.Mutex
	failUpsert bool
	failDelete bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryVectorStore: storage.NewMemoryVectorStore()}
}

func (s *flakyStore) set(upsert, del bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUpsert, s.failDelete = upsert, del
}

func (s *flakyStore) Upsert(ctx context.Context, chunks []core.Chunk) error {
	s.mu.Lock()
	fail := s.failUpsert
	s.mu.Unlock()
	if fail {
		return errors.New("store write refused")
	}
	return s.MemoryVectorStore.Upsert(ctx, chunks)
}

func (s *flakyStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	s.mu.Lock()
	fail := s.failDelete
	s.mu.Unlock()
	if fail {
		return 0, errors.New("store delete refused")
	}
	return s.MemoryVectorStore.DeletePrefix(ctx, prefix)
}

// harness wires a Manager over in-memory collaborators.
type harness struct {
	store     *flakyStore
	index     *ContextIndex
	completer *scriptedCompleter
	history   *storage.MemoryHistory
	manager   *Manager
}

func newHarness() *harness {
	h := &harness{
		store:     newFlakyStore(),
		completer: &scriptedCompleter{},
		history:   storage.NewMemoryHistory(),
	}
	h.index = NewContextIndex(h.store, bagEmbedder{}, 8, nil)
	chat := NewRAGChat(h.index, h.completer, h.history, 3, 10, nil)
	h.manager = NewManager(h.index, chat, h.history, 0, nil)
	return h
}

func meta(title, description string) core.VideoMetadata {
	return core.VideoMetadata{Title: title, Description: description}
}

func transcript(texts ...string) core.TranscriptResult {
	segs := make([]core.TranscriptSegment, len(texts))
	for i, t := range texts {
		segs[i] = core.TranscriptSegment{Text: t, StartOffsetSeconds: float64(i * 5), DurationSeconds: 5}
	}
	return core.TranscriptFound(segs)
}
