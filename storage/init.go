package storage

import (
	"context"
	"log/slog"

	"videoChat/config"
)

// NewVectorStore picks the backend named by cfg.Store. An explicit backend
// that cannot be reached falls back to the memory store with a warning.
func NewVectorStore(ctx context.Context, cfg *config.Config) VectorStore {
	switch cfg.Store {
	case "milvus":
		s, err := NewMilvusVectorStore(ctx, cfg)
		if err != nil {
			slog.Warn("Failed to initialize Milvus store, falling back to memory store", "error", err)
			return NewMemoryVectorStore()
		}
		return s
	case "pgvector":
		s, err := NewPgVectorStore(ctx, cfg)
		if err != nil {
			slog.Warn("Failed to initialize PgVector store, falling back to memory store", "error", err)
			return NewMemoryVectorStore()
		}
		return s
	default:
		return NewMemoryVectorStore()
	}
}

// NewHistoryStore uses Redis when configured, memory otherwise.
func NewHistoryStore(ctx context.Context, cfg *config.Config) HistoryStore {
	if !cfg.HasRedis() {
		return NewMemoryHistory()
	}
	h, err := ConnectRedisHistory(ctx, cfg)
	if err != nil {
		slog.Warn("Failed to connect to Redis, keeping chat history in memory", "error", err)
		return NewMemoryHistory()
	}
	return h
}

// NewPointerStore shares the Redis connection of history when there is one.
// Without Redis the pointer only lives as long as the process.
func NewPointerStore(history HistoryStore) PointerStore {
	if h, ok := history.(*RedisHistory); ok {
		return NewRedisPointer(h.client)
	}
	return NewMemoryPointer()
}
