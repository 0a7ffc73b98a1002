package processors

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"videoChat/core"
	"videoChat/storage"
)

// ChatProvider answers questions and writes summaries grounded on one
// stored context.
type ChatProvider interface {
	Summarize(ctx context.Context, contextID string) (string, error)
	Ask(ctx context.Context, contextID, message string) (string, error)
}

// Retriever reads stored context chunks.
type Retriever interface {
	Retrieve(ctx context.Context, contextID, query string, topK int) ([]core.Hit, error)
	Document(ctx context.Context, contextID string, limit int) ([]core.Hit, error)
}

// summaryChunks bounds how much of the document is sent for a summary.
const summaryChunks = 8

// RAGChat is a retrieval-augmented chat provider: every call is restricted
// to the chunks of a single context id.
type RAGChat struct {
	retriever    Retriever
	completer    Completer
	history      storage.HistoryStore
	topK         int
	historyLimit int
	logger       *slog.Logger
	now          func() time.Time
}

func NewRAGChat(retriever Retriever, completer Completer, history storage.HistoryStore, topK, historyLimit int, logger *slog.Logger) *RAGChat {
	if logger == nil {
		logger = slog.Default()
	}
	return &RAGChat{
		retriever:    retriever,
		completer:    completer,
		history:      history,
		topK:         topK,
		historyLimit: historyLimit,
		logger:       logger,
		now:          time.Now,
	}
}

func (c *RAGChat) Summarize(ctx context.Context, contextID string) (string, error) {
	hits, err := c.retriever.Document(ctx, contextID, summaryChunks)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "", fmt.Errorf("no stored content for %s", contextID)
	}

	system := "You summarize YouTube videos from their title, description and transcript."
	prompt := "Summarize the following video content in 3 to 5 sentences.\n\n" + joinHits(hits)
	summary, err := c.completer.Complete(ctx, system, []core.ChatTurn{{Role: core.RoleUser, Text: prompt}})
	if err != nil {
		return "", core.Upstream("chat", err)
	}
	return summary, nil
}

func (c *RAGChat) Ask(ctx context.Context, contextID, message string) (string, error) {
	hits, err := c.retriever.Retrieve(ctx, contextID, message, c.topK)
	if err != nil {
		return "", err
	}
	past, err := c.history.Recent(ctx, contextID, c.historyLimit)
	if err != nil {
		c.logger.Warn("Failed to read chat history", "context_id", contextID, "error", err)
		past = nil
	}

	system := "You answer questions about a YouTube video using only the context below. " +
		"If the context does not contain the answer, say so.\n\nContext:\n" + joinHits(hits)
	question := core.ChatTurn{ID: uuid.NewString(), Role: core.RoleUser, Text: message, At: c.now()}
	turns := append(past, question)

	answer, err := c.completer.Complete(ctx, system, turns)
	if err != nil {
		return "", core.Upstream("chat", err)
	}

	reply := core.ChatTurn{ID: uuid.NewString(), Role: core.RoleAssistant, Text: answer, At: c.now()}
	if err := c.history.Append(ctx, contextID, question, reply); err != nil {
		c.logger.Warn("Failed to record chat history", "context_id", contextID, "error", err)
	}
	return answer, nil
}

func joinHits(hits []core.Hit) string {
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		parts = append(parts, h.Text)
	}
	return strings.Join(parts, "\n\n")
}
