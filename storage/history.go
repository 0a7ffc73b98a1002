package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"videoChat/config"
	"videoChat/core"
)

// HistoryStore keeps chat turns per session. The session id is the video
// context id, so clearing a context also clears its conversation.
type HistoryStore interface {
	Append(ctx context.Context, sessionID string, turns ...core.ChatTurn) error
	// Recent returns the last n turns in chronological order.
	Recent(ctx context.Context, sessionID string, n int) ([]core.ChatTurn, error)
	Clear(ctx context.Context, sessionID string) error
	Close() error
}

// ---------------- Memory implementation ----------------

type MemoryHistory struct {
	mu    sync.Mutex
	turns map[string][]core.ChatTurn
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{turns: map[string][]core.ChatTurn{}}
}

func (h *MemoryHistory) Append(_ context.Context, sessionID string, turns ...core.ChatTurn) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns[sessionID] = append(h.turns[sessionID], turns...)
	return nil
}

func (h *MemoryHistory) Recent(_ context.Context, sessionID string, n int) ([]core.ChatTurn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	all := h.turns[sessionID]
	if n <= 0 {
		return nil, nil
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	out := make([]core.ChatTurn, len(all))
	copy(out, all)
	return out, nil
}

func (h *MemoryHistory) Clear(_ context.Context, sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.turns, sessionID)
	return nil
}

func (h *MemoryHistory) Close() error { return nil }

// ---------------- Redis implementation ----------------

// RedisHistory stores each session as a Redis list of JSON turns.
type RedisHistory struct {
	client *redis.Client
	prefix string
}

// ConnectRedisHistory connects using a redis:// or rediss:// URL. A token,
// when set, is used as the password (hosted Redis REST tokens work this way).
func ConnectRedisHistory(ctx context.Context, cfg *config.Config) (*RedisHistory, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.RedisToken != "" {
		opt.Password = cfg.RedisToken
	}
	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisHistory(client), nil
}

func NewRedisHistory(client *redis.Client) *RedisHistory {
	return &RedisHistory{client: client, prefix: "chat-history:"}
}

func (h *RedisHistory) key(sessionID string) string { return h.prefix + sessionID }

func (h *RedisHistory) Append(ctx context.Context, sessionID string, turns ...core.ChatTurn) error {
	if len(turns) == 0 {
		return nil
	}
	values := make([]any, 0, len(turns))
	for _, t := range turns {
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal turn: %w", err)
		}
		values = append(values, string(b))
	}
	if err := h.client.RPush(ctx, h.key(sessionID), values...).Err(); err != nil {
		return fmt.Errorf("error appending history: %w", err)
	}
	return nil
}

func (h *RedisHistory) Recent(ctx context.Context, sessionID string, n int) ([]core.ChatTurn, error) {
	if n <= 0 {
		return nil, nil
	}
	raw, err := h.client.LRange(ctx, h.key(sessionID), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("error reading history: %w", err)
	}
	turns := make([]core.ChatTurn, 0, len(raw))
	for _, r := range raw {
		var t core.ChatTurn
		if err := json.Unmarshal([]byte(r), &t); err != nil {
			return nil, fmt.Errorf("failed to decode turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (h *RedisHistory) Clear(ctx context.Context, sessionID string) error {
	if err := h.client.Del(ctx, h.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("error clearing history: %w", err)
	}
	return nil
}

func (h *RedisHistory) Close() error { return h.client.Close() }
