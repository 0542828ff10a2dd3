// Package memory gives the pipeline a sense of history. Accepted brief
// summaries are embedded and stored in a vector collection; before a new
// synthesis run, the most similar past summaries are recalled and offered
// to the context assembler as the historical memory component.
package memory

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/loomworks/loom/internal/brief"
)

// Memory ties an embedder to a vector store.
type Memory struct {
	embedder Embedder
	store    VectorStore
	topK     int
	logger   *zap.Logger
}

// New creates a memory over the given embedder and store.
func New(embedder Embedder, store VectorStore, topK int, logger *zap.Logger) *Memory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topK <= 0 {
		topK = 5
	}
	return &Memory{embedder: embedder, store: store, topK: topK, logger: logger}
}

// Remember stores an accepted brief's summary for future recall.
func (m *Memory) Remember(ctx context.Context, b *brief.Brief) error {
	summary := b.Summary()
	if strings.TrimSpace(summary) == "" {
		return nil
	}

	vectors, err := m.embedder.Embed(ctx, []string{summary})
	if err != nil {
		return fmt.Errorf("embedding brief summary: %w", err)
	}

	err = m.store.Insert(ctx, Entry{
		BriefID:     b.ID.String(),
		Topic:       b.Topic,
		Text:        summary,
		GeneratedAt: b.Metadata.GeneratedAt,
	}, vectors[0])
	if err != nil {
		return fmt.Errorf("storing brief summary: %w", err)
	}

	m.logger.Debug("brief remembered",
		zap.String("brief_id", b.ID.String()),
		zap.String("topic", b.Topic))
	return nil
}

// Recall returns past brief summaries relevant to the query, rendered as
// the historical memory text block. An empty return means no history.
func (m *Memory) Recall(ctx context.Context, query, topic string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", nil
	}

	vectors, err := m.embedder.Embed(ctx, []string{query})
	if err != nil {
		return "", fmt.Errorf("embedding recall query: %w", err)
	}

	entries, err := m.store.Search(ctx, vectors[0], m.topK, topic)
	if err != nil {
		return "", fmt.Errorf("searching brief history: %w", err)
	}
	if len(entries) == 0 {
		return "", nil
	}

	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "From %s", e.GeneratedAt.Format("2006-01-02"))
		if e.Topic != "" {
			fmt.Fprintf(&sb, " (%s)", e.Topic)
		}
		sb.WriteString(":\n")
		sb.WriteString(e.Text)
	}

	m.logger.Debug("history recalled",
		zap.Int("entries", len(entries)),
		zap.String("topic", topic))
	return sb.String(), nil
}
