// Package triage assesses raw articles for relevance before synthesis.
// Articles go to the model in batches; each comes back with a relevance
// score and a stance label. Records from a failed batch are excluded from
// the result, never backfilled, so the synthesis stage only ever sees
// articles that were actually assessed.
package triage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/loomworks/loom/internal/article"
	"github.com/loomworks/loom/internal/llm"
	"github.com/loomworks/loom/internal/repair"
)

// Stance labels an article's orientation toward its subject. The model
// must pick one; an article whose stance cannot be recovered is dropped
// rather than labeled by default.
const (
	StanceSupportive = "supportive"
	StanceCritical   = "critical"
	StanceNeutral    = "neutral"
	StanceMixed      = "mixed"
)

var validStances = map[string]bool{
	StanceSupportive: true,
	StanceCritical:   true,
	StanceNeutral:    true,
	StanceMixed:      true,
}

// Assessment is the per-record triage outcome.
type Assessment struct {
	Article   article.Article
	Relevance float64
	Stance    string
	Rationale string
}

// Triage runs batch relevance assessment through the dispatcher.
type Triage struct {
	dispatcher *llm.Dispatcher
	parser     *repair.Parser
	model      string
	logger     *zap.Logger
}

// New creates a triage stage. model names the assessment model, normally
// the cheaper secondary one.
func New(dispatcher *llm.Dispatcher, model string, logger *zap.Logger) *Triage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Triage{
		dispatcher: dispatcher,
		// Relevance 0.5 is a documented structural default for a missing
		// number; stance has no default because it is a domain label.
		parser: repair.NewParser(logger.Named("repair"),
			repair.FieldSpec{Name: "ordinal", Kind: repair.KindNumber, Required: true},
			repair.FieldSpec{Name: "relevance", Kind: repair.KindNumber, Default: 0.5},
			repair.FieldSpec{Name: "stance", Kind: repair.KindString, Required: true},
			repair.FieldSpec{Name: "rationale", Kind: repair.KindString},
		),
		model:  model,
		logger: logger,
	}
}

// Assess scores every article against the topic. Results keep article
// input order; articles from failed batches or with unrecoverable
// assessments are absent from the result.
func (t *Triage) Assess(ctx context.Context, topic string, articles []article.Article) ([]Assessment, error) {
	if len(articles) == 0 {
		return nil, nil
	}

	batches, err := t.dispatcher.Dispatch(ctx, assessSystemPrompt(topic), articles, batchPrompt)
	if err != nil {
		return nil, err
	}

	var out []Assessment
	assessed := 0
	for _, batch := range batches {
		if batch.Err != nil {
			t.logger.Warn("triage batch failed, excluding its articles",
				zap.Int("batch", batch.Index),
				zap.Int("articles", len(batch.Records)),
				zap.Error(batch.Err))
			continue
		}
		out = append(out, t.decodeBatch(batch)...)
		assessed += len(batch.Records)
	}

	t.logger.Info("articles assessed",
		zap.Int("input", len(articles)),
		zap.Int("assessed", assessed),
		zap.Int("kept", len(out)))
	return out, nil
}

// decodeBatch maps one batch response back onto its records by the
// 1-based ordinal the prompt assigned within the batch.
func (t *Triage) decodeBatch(batch llm.BatchResult) []Assessment {
	result, _, err := t.parser.Parse(batch.Response.Text)
	if err != nil {
		t.logger.Warn("triage response unparseable, excluding batch",
			zap.Int("batch", batch.Index),
			zap.Error(err))
		return nil
	}

	items := result.List("results")
	if items == nil {
		// Field extraction yields a flat single-record result.
		items = []any{map[string]any(result)}
	}

	out := make([]Assessment, 0, len(batch.Records))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		ordinal, ok := m["ordinal"].(float64)
		if !ok || int(ordinal) < 1 || int(ordinal) > len(batch.Records) {
			continue
		}
		stance, _ := m["stance"].(string)
		stance = strings.ToLower(strings.TrimSpace(stance))
		if !validStances[stance] {
			// A record without a recoverable stance is excluded, not
			// defaulted.
			t.logger.Warn("assessment missing valid stance, excluding article",
				zap.Int("batch", batch.Index),
				zap.Int("ordinal", int(ordinal)))
			continue
		}

		a := Assessment{
			Article: batch.Records[int(ordinal)-1],
			Stance:  stance,
		}
		if rel, ok := m["relevance"].(float64); ok {
			a.Relevance = clamp01(rel)
		} else {
			a.Relevance = 0.5
		}
		if r, ok := m["rationale"].(string); ok {
			a.Rationale = r
		}
		out = append(out, a)
	}
	return out
}

// Select returns the articles worth synthesizing: relevance at or above
// minRelevance, highest first, capped at limit. Ties keep input order.
func Select(assessments []Assessment, minRelevance float64, limit int) []article.Article {
	kept := make([]Assessment, 0, len(assessments))
	for _, a := range assessments {
		if a.Relevance >= minRelevance {
			kept = append(kept, a)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Relevance > kept[j].Relevance
	})
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	out := make([]article.Article, len(kept))
	for i, a := range kept {
		out[i] = a.Article
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func assessSystemPrompt(topic string) string {
	var sb strings.Builder
	sb.WriteString("You assess news articles for a personal intelligence brief")
	if topic != "" {
		fmt.Fprintf(&sb, " on %q", topic)
	}
	sb.WriteString(`.

For each article, report:
- ordinal: the article's number as presented, starting at 1
- relevance: 0.0 to 1.0, how much this article matters for the brief
- stance: exactly one of "supportive", "critical", "neutral", "mixed"
- rationale: one sentence

Respond with a single JSON object and nothing else:
{"results": [{"ordinal": 1, "relevance": 0.0, "stance": "neutral", "rationale": "..."}]}

Include every article exactly once.`)
	return sb.String()
}

func batchPrompt(batch []article.Article) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Assess these %d articles.\n", len(batch))
	for i, a := range batch {
		fmt.Fprintf(&sb, "\n### Article %d\nTitle: %s\nSource: %s\n", i+1, a.Title, a.Source)
		content := a.Content
		if len(content) > 2000 {
			content = content[:2000]
		}
		if content != "" {
			fmt.Fprintf(&sb, "Content: %s\n", content)
		}
	}
	return sb.String()
}
