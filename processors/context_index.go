package processors

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"videoChat/core"
	"videoChat/storage"
)

// KeyPrefix is the prefix shared by every stored key of one context.
func KeyPrefix(contextID string) string { return contextID + ":" }

// ChunkID is the store key of the n-th chunk of a context. Zero padding
// keeps lexical order equal to document order.
func ChunkID(contextID string, n int) string { return fmt.Sprintf("%s:%04d", contextID, n) }

// ContextIndex is the context store adapter: it chunks documents, embeds the
// chunks and keeps them in a vector store under context-scoped keys.
type ContextIndex struct {
	store      storage.VectorStore
	embedder   Embedder
	chunkWords int
	logger     *slog.Logger
}

func NewContextIndex(store storage.VectorStore, embedder Embedder, chunkWords int, logger *slog.Logger) *ContextIndex {
	if chunkWords <= 0 {
		chunkWords = 200
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContextIndex{store: store, embedder: embedder, chunkWords: chunkWords, logger: logger}
}

// Add writes document under contextID. On failure it removes whatever was
// written so the context is never left half-stored.
func (x *ContextIndex) Add(ctx context.Context, contextID, document string) (int, error) {
	texts := ChunkWords(document, x.chunkWords)
	if len(texts) == 0 {
		return 0, core.InvalidInput("empty context document")
	}
	vectors, err := x.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, core.Upstream("embeddings", err)
	}
	if len(vectors) != len(texts) {
		return 0, core.Upstream("embeddings", fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(texts)))
	}

	chunks := make([]core.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = core.Chunk{ID: ChunkID(contextID, i), ContextID: contextID, Text: t, Vector: vectors[i]}
	}
	if err := x.store.Upsert(ctx, chunks); err != nil {
		if _, cleanupErr := x.store.DeletePrefix(context.WithoutCancel(ctx), KeyPrefix(contextID)); cleanupErr != nil {
			x.logger.Error("Failed to remove partially written context", "context_id", contextID, "error", cleanupErr)
		}
		return 0, core.Upstream(x.store.Backend(), err)
	}
	x.logger.Info("Context stored", "context_id", contextID, "chunks", len(chunks), "backend", x.store.Backend())
	return len(chunks), nil
}

func (x *ContextIndex) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	n, err := x.store.DeletePrefix(ctx, prefix)
	if err != nil {
		return 0, core.Upstream(x.store.Backend(), err)
	}
	return n, nil
}

func (x *ContextIndex) Exists(ctx context.Context, prefix string) (bool, error) {
	ok, err := x.store.Exists(ctx, prefix)
	if err != nil {
		return false, core.Upstream(x.store.Backend(), err)
	}
	return ok, nil
}

// Retrieve returns the chunks of contextID most similar to query.
func (x *ContextIndex) Retrieve(ctx context.Context, contextID, query string, topK int) ([]core.Hit, error) {
	vectors, err := x.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, core.Upstream("embeddings", err)
	}
	if len(vectors) == 0 {
		return nil, core.Upstream("embeddings", fmt.Errorf("no embedding returned for query"))
	}
	hits, err := x.store.Search(ctx, contextID, vectors[0], topK)
	if err != nil {
		return nil, core.Upstream(x.store.Backend(), err)
	}
	return hits, nil
}

// Document returns the leading chunks of contextID in document order.
func (x *ContextIndex) Document(ctx context.Context, contextID string, limit int) ([]core.Hit, error) {
	hits, err := x.store.List(ctx, contextID, limit)
	if err != nil {
		return nil, core.Upstream(x.store.Backend(), err)
	}
	return hits, nil
}

// MaxChunkBytes caps the UTF-8 size of one chunk; stores keep chunk text in
// bounded columns.
const MaxChunkBytes = 8192

// ChunkWords splits text into pieces of at most n words and MaxChunkBytes
// bytes. A single word longer than MaxChunkBytes (captions without spaces)
// is cut at rune boundaries.
func ChunkWords(text string, n int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var (
		chunks []string
		cur    []string
		size   int
	)
	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, " "))
			cur, size = cur[:0], 0
		}
	}
	for _, w := range words {
		for len(w) > MaxChunkBytes {
			flush()
			cut := MaxChunkBytes
			for cut > 0 && !utf8.RuneStart(w[cut]) {
				cut--
			}
			chunks = append(chunks, w[:cut])
			w = w[cut:]
		}
		extra := len(w)
		if len(cur) > 0 {
			extra++
		}
		if len(cur) == n || size+extra > MaxChunkBytes {
			flush()
			extra = len(w)
		}
		cur = append(cur, w)
		size += extra
	}
	flush()
	return chunks
}
