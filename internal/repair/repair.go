// Package repair turns raw generation output into a validated structured
// result. Strict parsing is tried first; on failure an ordered cascade of
// increasingly aggressive strategies runs, each an independent function with
// its own success contract. The cascade recovers as much valid structure as
// possible but never fabricates domain values: a response from which the
// expected fields cannot be recovered fails loudly instead of defaulting.
package repair

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var ErrUnparseable = errors.New("response unparseable after all repair strategies")

// Result is the validated structured output recovered from a response.
// A metadata sub-map is always present after parsing.
type Result map[string]any

// Metadata returns the metadata sub-map, creating it if a repair strategy
// produced a result without one.
func (r Result) Metadata() map[string]any {
	if m, ok := r["metadata"].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	r["metadata"] = m
	return m
}

// String returns the named field as a string, or "" when absent.
func (r Result) String(name string) string {
	s, _ := r[name].(string)
	return s
}

// Float returns the named field as a float64 and whether it was present.
func (r Result) Float(name string) (float64, bool) {
	switch v := r[name].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// List returns the named field as a slice, or nil when absent.
func (r Result) List(name string) []any {
	l, _ := r[name].([]any)
	return l
}

// Attempt records one strategy tried against a raw response. Attempts are
// diagnostic only and never persisted.
type Attempt struct {
	Strategy  string
	Succeeded bool
}

// strategyFunc rewrites the raw text into a parse candidate. ok=false means
// the strategy does not apply to this input and the cascade moves on.
type strategyFunc func(raw string) (candidate string, ok bool)

type strategy struct {
	name string
	fn   strategyFunc
}

// Parser applies the repair cascade. The zero value is not usable; create
// with NewParser.
type Parser struct {
	logger     *zap.Logger
	strategies []strategy
	fields     []FieldSpec
}

// NewParser creates a parser. fields configures strategy 5 (aggressive
// field extraction); an empty spec disables that strategy.
func NewParser(logger *zap.Logger, fields ...FieldSpec) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Parser{logger: logger, fields: fields}
	p.strategies = []strategy{
		{"strict", func(raw string) (string, bool) { return raw, true }},
		{"strip_wrappers", stripWrappers},
		{"punctuation_repair", repairPunctuation},
		{"truncation_repair", repairTruncation},
	}
	return p
}

// Parse runs the cascade against raw text. The first strategy to yield a
// valid structure wins; remaining strategies are skipped. The returned
// attempts record every strategy tried, in order.
func (p *Parser) Parse(raw string) (Result, []Attempt, error) {
	var attempts []Attempt

	for ordinal, s := range p.strategies {
		candidate, ok := s.fn(raw)
		if !ok {
			attempts = append(attempts, Attempt{Strategy: s.name})
			continue
		}
		result, err := decode(candidate)
		if err != nil {
			attempts = append(attempts, Attempt{Strategy: s.name})
			continue
		}
		attempts = append(attempts, Attempt{Strategy: s.name, Succeeded: true})
		p.logger.Info("response parsed",
			zap.String("strategy", s.name),
			zap.Int("strategy_ordinal", ordinal+1))
		result.Metadata()
		return result, attempts, nil
	}

	// Strategy 5: aggressive field extraction, independent of overall
	// structural validity.
	if len(p.fields) > 0 {
		result, err := extractFields(raw, p.fields)
		if err == nil {
			attempts = append(attempts, Attempt{Strategy: "field_extraction", Succeeded: true})
			p.logger.Info("response parsed",
				zap.String("strategy", "field_extraction"),
				zap.Int("strategy_ordinal", len(p.strategies)+1))
			result.Metadata()
			return result, attempts, nil
		}
		attempts = append(attempts, Attempt{Strategy: "field_extraction"})
	}

	// Final fallback: fail loudly with enough detail to log and retry at a
	// higher level. No placeholder domain values are ever synthesized here.
	excerpt := raw
	if len(excerpt) > 200 {
		excerpt = excerpt[:200] + "..."
	}
	return nil, attempts, fmt.Errorf("%w: %d bytes, excerpt: %q", ErrUnparseable, len(raw), excerpt)
}

// decode parses candidate text into a Result. Top-level arrays are accepted
// and carried under a "results" key; any other top-level value is rejected.
func decode(candidate string) (Result, error) {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return nil, errors.New("empty candidate")
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	// Trailing non-whitespace after a valid document is a parse failure,
	// not a partial success.
	if dec.More() {
		return nil, errors.New("trailing content after structure")
	}

	switch v := value.(type) {
	case map[string]any:
		return Result(v), nil
	case []any:
		return Result{"results": v}, nil
	default:
		return nil, fmt.Errorf("top-level value is %T, expected object or array", value)
	}
}
