package processors

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"videoChat/core"
	"videoChat/storage"
)

// ContextStore is the durable home of ingested context documents.
type ContextStore interface {
	Add(ctx context.Context, contextID, document string) (int, error)
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	Exists(ctx context.Context, prefix string) (bool, error)
}

// ChatHistory is the part of the history store the manager uses.
type ChatHistory interface {
	Recent(ctx context.Context, sessionID string, n int) ([]core.ChatTurn, error)
	Clear(ctx context.Context, sessionID string) error
}

// historyPage matches the amount of history the chat UI shows.
const historyPage = 100

// Manager owns the single active video context. Ingests are serialized;
// asks read a snapshot of the active id and may run concurrently with each
// other, and an ingest waits for running asks before evicting.
type Manager struct {
	store    ContextStore
	chat     ChatProvider
	history  ChatHistory
	pointers storage.PointerStore
	timeout  time.Duration
	logger   *slog.Logger

	ingestMu sync.Mutex
	// asks hold the read side for their whole run; ingest takes the write
	// side to drain them before the old context is evicted.
	askMu sync.RWMutex

	mu      sync.RWMutex
	active  string
	pending []string // ids whose stored records may still exist
}

func NewManager(store ContextStore, chat ChatProvider, history ChatHistory, timeout time.Duration, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, chat: chat, history: history, timeout: timeout, logger: logger}
}

// Ingest replaces the active context with the given video and returns its
// summary. Anything stored for the previous context is removed first; if the
// new context cannot be written the manager is left with no active context.
func (m *Manager) Ingest(ctx context.Context, videoID string, meta core.VideoMetadata, transcript core.TranscriptResult) (string, error) {
	if !IsValidVideoID(videoID) {
		return "", core.InvalidInput("invalid video id %q", videoID)
	}
	if strings.TrimSpace(meta.Title) == "" {
		return "", core.InvalidInput("video %s has no title", videoID)
	}

	m.ingestMu.Lock()
	defer m.ingestMu.Unlock()

	// 先清空指针，之后任何失败都不会留下可查询的旧上下文
	m.askMu.Lock()
	m.mu.Lock()
	if m.active != "" && !slices.Contains(m.pending, m.active) {
		m.pending = append(m.pending, m.active)
	}
	m.active = ""
	evict := slices.Clone(m.pending)
	m.mu.Unlock()
	m.askMu.Unlock()
	m.persist(ctx)

	if err := m.evict(ctx, evict); err != nil {
		return "", err
	}

	// write-ahead: a crash during Add leaves the new id pending
	m.markPending(videoID)
	m.persist(ctx)
	m.clearHistory(ctx, videoID)

	doc := BuildDocument(core.NewVideoContext(videoID, meta, transcript))

	addCtx, cancel := m.bounded(ctx)
	n, err := m.store.Add(addCtx, videoID, doc)
	cancel()
	if err != nil {
		m.logger.Error("Failed to store video context", "video_id", videoID, "error", err)
		return "", core.Upstream("context store", err)
	}

	m.mu.Lock()
	m.active = videoID
	m.pending = slices.DeleteFunc(m.pending, func(id string) bool { return id == videoID })
	m.mu.Unlock()
	m.persist(ctx)
	m.logger.Info("Active context set", "video_id", videoID, "chunks", n, "transcript_available", transcript.Available)

	sumCtx, cancel := m.bounded(ctx)
	defer cancel()
	summary, err := m.chat.Summarize(sumCtx, videoID)
	if err != nil {
		m.logger.Error("Failed to summarize video", "video_id", videoID, "error", err)
		return "", core.Upstream("chat", err)
	}
	return summary, nil
}

// evict removes the stored records and chat history of every id in ids.
// Ids stay pending until their records are gone.
func (m *Manager) evict(ctx context.Context, ids []string) error {
	for _, id := range ids {
		delCtx, cancel := m.bounded(ctx)
		n, err := m.store.DeletePrefix(delCtx, KeyPrefix(id))
		cancel()
		if err != nil {
			m.logger.Error("Failed to evict previous context", "video_id", id, "error", err)
			return core.Upstream("context store", fmt.Errorf("evict %s: %w", id, err))
		}
		m.logger.Info("Previous context evicted", "video_id", id, "deleted", n)
		m.clearHistory(ctx, id)

		m.mu.Lock()
		m.pending = slices.DeleteFunc(m.pending, func(p string) bool { return p == id })
		m.mu.Unlock()
		m.persist(ctx)
	}
	return nil
}

func (m *Manager) clearHistory(ctx context.Context, id string) {
	if m.history == nil {
		return
	}
	hCtx, cancel := m.bounded(ctx)
	defer cancel()
	if err := m.history.Clear(hCtx, id); err != nil {
		m.logger.Warn("Failed to clear chat history", "video_id", id, "error", err)
	}
}

// Ask answers message against the active context.
func (m *Manager) Ask(ctx context.Context, message string) (string, error) {
	return m.AskAs(ctx, "", message)
}

// AskAs is Ask with the video id the caller believes is active. A non-empty
// id that differs from the active one is rejected; it is never used as the
// retrieval filter.
func (m *Manager) AskAs(ctx context.Context, videoID, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", core.InvalidInput("message is required")
	}
	m.askMu.RLock()
	defer m.askMu.RUnlock()

	active, ok := m.Active()
	if !ok {
		return "", core.ErrNoActiveContext
	}
	if videoID != "" && videoID != active {
		return "", fmt.Errorf("%w: asked about %s, active is %s", core.ErrContextMismatch, videoID, active)
	}

	askCtx, cancel := m.bounded(ctx)
	defer cancel()
	answer, err := m.chat.Ask(askCtx, active, message)
	if err != nil {
		return "", core.Upstream("chat", err)
	}
	return answer, nil
}

// Active returns the active video id, if any.
func (m *Manager) Active() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active, m.active != ""
}

// Status reports the active id and whether the store still holds its records.
func (m *Manager) Status(ctx context.Context) (core.ContextStatusResponse, error) {
	id, ok := m.Active()
	if !ok {
		return core.ContextStatusResponse{}, nil
	}
	exCtx, cancel := m.bounded(ctx)
	defer cancel()
	stored, err := m.store.Exists(exCtx, KeyPrefix(id))
	if err != nil {
		return core.ContextStatusResponse{}, core.Upstream("context store", err)
	}
	return core.ContextStatusResponse{Active: true, VideoID: id, Stored: stored}, nil
}

// History returns the recent chat turns of the active context.
func (m *Manager) History(ctx context.Context) (core.HistoryResponse, error) {
	id, ok := m.Active()
	if !ok {
		return core.HistoryResponse{}, core.ErrNoActiveContext
	}
	if m.history == nil {
		return core.HistoryResponse{VideoID: id, Messages: []core.ChatTurn{}}, nil
	}
	hCtx, cancel := m.bounded(ctx)
	defer cancel()
	turns, err := m.history.Recent(hCtx, id, historyPage)
	if err != nil {
		return core.HistoryResponse{}, core.Upstream("chat history", err)
	}
	if turns == nil {
		turns = []core.ChatTurn{}
	}
	return core.HistoryResponse{VideoID: id, Messages: turns}, nil
}

// Restore loads the pointer state saved by a previous process and keeps
// saving to pointers from then on. Call it before serving requests.
func (m *Manager) Restore(ctx context.Context, pointers storage.PointerStore) error {
	m.ingestMu.Lock()
	defer m.ingestMu.Unlock()

	m.pointers = pointers
	if pointers == nil {
		return nil
	}
	loadCtx, cancel := m.bounded(ctx)
	defer cancel()
	active, pending, err := pointers.Load(loadCtx)
	if err != nil {
		return core.Upstream("pointer store", err)
	}

	m.mu.Lock()
	m.active = active
	m.pending = nil
	for _, id := range pending {
		if id != active && !slices.Contains(m.pending, id) {
			m.pending = append(m.pending, id)
		}
	}
	m.mu.Unlock()
	m.logger.Info("Context pointer restored", "video_id", active, "pending", len(m.pending))
	return nil
}

func (m *Manager) markPending(ids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if !slices.Contains(m.pending, id) {
			m.pending = append(m.pending, id)
		}
	}
}

// persist saves the current pointer state. Failures are logged only; the
// in-memory state stays authoritative for this process.
func (m *Manager) persist(ctx context.Context) {
	if m.pointers == nil {
		return
	}
	m.mu.RLock()
	active, pending := m.active, slices.Clone(m.pending)
	m.mu.RUnlock()

	saveCtx, cancel := m.bounded(ctx)
	defer cancel()
	if err := m.pointers.Save(saveCtx, active, pending); err != nil {
		m.logger.Warn("Failed to persist context pointer", "video_id", active, "error", err)
	}
}

func (m *Manager) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.timeout)
}
