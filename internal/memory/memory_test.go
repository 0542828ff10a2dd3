package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/internal/brief"
)

type fakeEmbedder struct {
	calls [][]string
	fail  bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.fail {
		return nil, errors.New("embedding service down")
	}
	f.calls = append(f.calls, texts)
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return 3 }

type fakeStore struct {
	inserted []Entry
	results  []Entry
}

func (f *fakeStore) Insert(ctx context.Context, e Entry, vector []float32) error {
	f.inserted = append(f.inserted, e)
	return nil
}

func (f *fakeStore) Search(ctx context.Context, vector []float32, topK int, topic string) ([]Entry, error) {
	return f.results, nil
}

func (f *fakeStore) Close() error { return nil }

func acceptedBrief() *brief.Brief {
	return &brief.Brief{
		ID:         uuid.New(),
		Topic:      "freight",
		BottomLine: "Rates are stabilizing after the strike.",
		PriorityEvents: []brief.Event{
			{Title: "Port strike ends", Severity: brief.SeverityHigh},
			{Title: "Minor schedule change", Severity: brief.SeverityLow},
		},
		Metadata: brief.Metadata{GeneratedAt: time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)},
	}
}

func TestMemory_Remember_StoresSummary(t *testing.T) {
	emb := &fakeEmbedder{}
	st := &fakeStore{}
	m := New(emb, st, 5, nil)

	b := acceptedBrief()
	if err := m.Remember(context.Background(), b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(st.inserted) != 1 {
		t.Fatalf("inserted %d entries", len(st.inserted))
	}
	e := st.inserted[0]
	if e.BriefID != b.ID.String() || e.Topic != "freight" {
		t.Errorf("entry = %+v", e)
	}
	// The summary carries the bottom line and high-severity events only.
	if !strings.Contains(e.Text, "stabilizing") || !strings.Contains(e.Text, "Port strike ends") {
		t.Errorf("summary = %q", e.Text)
	}
	if strings.Contains(e.Text, "Minor schedule change") {
		t.Errorf("low severity event leaked into summary: %q", e.Text)
	}
}

func TestMemory_Remember_EmptySummarySkipped(t *testing.T) {
	st := &fakeStore{}
	m := New(&fakeEmbedder{}, st, 5, nil)

	if err := m.Remember(context.Background(), &brief.Brief{ID: uuid.New()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.inserted) != 0 {
		t.Error("blank brief was stored")
	}
}

func TestMemory_Recall_FormatsHistory(t *testing.T) {
	st := &fakeStore{results: []Entry{
		{Topic: "freight", Text: "strike loomed", GeneratedAt: time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)},
		{Topic: "freight", Text: "talks stalled", GeneratedAt: time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC)},
	}}
	m := New(&fakeEmbedder{}, st, 5, nil)

	out, err := m.Recall(context.Background(), "port strike", "freight")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "From 2026-08-24 (freight):") {
		t.Errorf("recall header missing: %q", out)
	}
	if !strings.Contains(out, "strike loomed") || !strings.Contains(out, "talks stalled") {
		t.Errorf("recall body missing entries: %q", out)
	}
}

func TestMemory_Recall_EmptyCases(t *testing.T) {
	m := New(&fakeEmbedder{}, &fakeStore{}, 5, nil)

	if out, err := m.Recall(context.Background(), "  ", "t"); err != nil || out != "" {
		t.Errorf("blank query: out=%q err=%v", out, err)
	}
	if out, err := m.Recall(context.Background(), "query", "t"); err != nil || out != "" {
		t.Errorf("no history: out=%q err=%v", out, err)
	}
}

func TestMemory_Remember_EmbedderError(t *testing.T) {
	m := New(&fakeEmbedder{fail: true}, &fakeStore{}, 5, nil)

	if err := m.Remember(context.Background(), acceptedBrief()); err == nil {
		t.Fatal("expected error from embedder")
	}
}
