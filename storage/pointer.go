package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/redis/go-redis/v9"
)

// PointerStore persists the active context id and the ids still awaiting
// eviction, so a restarted process can finish what the previous one left.
type PointerStore interface {
	Load(ctx context.Context) (active string, pending []string, err error)
	Save(ctx context.Context, active string, pending []string) error
}

// MemoryPointer keeps the context pointer in process memory. It survives a
// Manager but not the process.
type MemoryPointer struct {
	mu      sync.Mutex
	active  string
	pending []string
}

func NewMemoryPointer() *MemoryPointer { return &MemoryPointer{} }

func (p *MemoryPointer) Load(context.Context) (string, []string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active, slices.Clone(p.pending), nil
}

func (p *MemoryPointer) Save(_ context.Context, active string, pending []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active, p.pending = active, slices.Clone(pending)
	return nil
}

// RedisPointer stores the active id as a string key and the pending ids as
// a set, written together in one MULTI/EXEC.
type RedisPointer struct {
	client     *redis.Client
	activeKey  string
	pendingKey string
}

func NewRedisPointer(client *redis.Client) *RedisPointer {
	return &RedisPointer{client: client, activeKey: "video-chat:active", pendingKey: "video-chat:pending"}
}

func (p *RedisPointer) Load(ctx context.Context) (string, []string, error) {
	active, err := p.client.Get(ctx, p.activeKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", nil, fmt.Errorf("error reading active context: %w", err)
	}
	pending, err := p.client.SMembers(ctx, p.pendingKey).Result()
	if err != nil {
		return "", nil, fmt.Errorf("error reading pending contexts: %w", err)
	}
	slices.Sort(pending)
	return active, pending, nil
}

func (p *RedisPointer) Save(ctx context.Context, active string, pending []string) error {
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if active == "" {
			pipe.Del(ctx, p.activeKey)
		} else {
			pipe.Set(ctx, p.activeKey, active, 0)
		}
		pipe.Del(ctx, p.pendingKey)
		if len(pending) > 0 {
			members := make([]any, len(pending))
			for i, id := range pending {
				members[i] = id
			}
			pipe.SAdd(ctx, p.pendingKey, members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error saving context pointer: %w", err)
	}
	return nil
}
