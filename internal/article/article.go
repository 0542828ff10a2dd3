// Package article defines the subject records the synthesis pipeline consumes.
// Feed ingestion and storage live behind the Source interface; the pipeline
// only depends on the ordered record list a Source returns.
package article

import (
	"context"
	"time"
)

// Article is one subject record supplied by a feed or storage collaborator.
type Article struct {
	ID            int64     `json:"id"`
	Title         string    `json:"title"`
	Source        string    `json:"source"`
	URL           string    `json:"url"`
	Content       string    `json:"content"`
	PublishedAt   time.Time `json:"published_at"`
	PriorityScore float64   `json:"priority_score"`
}

// Source supplies ordered article records for a synthesis run.
// Implementations decide recency windows and priority filtering.
type Source interface {
	// Recent returns up to limit articles, highest priority first.
	Recent(ctx context.Context, window time.Duration, limit int) ([]Article, error)
}

// StaticSource is a fixed in-memory Source, used by tests and the CLI
// when articles arrive from a file rather than a live feed store.
type StaticSource struct {
	Articles []Article
}

func (s *StaticSource) Recent(ctx context.Context, window time.Duration, limit int) ([]Article, error) {
	if limit <= 0 || limit > len(s.Articles) {
		limit = len(s.Articles)
	}
	out := make([]Article, limit)
	copy(out, s.Articles[:limit])
	return out, nil
}
