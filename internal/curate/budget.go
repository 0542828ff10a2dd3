package curate

import (
	"sort"
	"strings"

	"go.uber.org/zap"
)

// TruncationMarker is appended to any component compressed by the budget
// enforcer so downstream consumers and the model know data is incomplete.
const TruncationMarker = "\n\n[...truncated for budget...]"

// BudgetConfig allocates the total ceiling across components.
type BudgetConfig struct {
	Ceiling      int
	Instructions int
	Articles     int
	Memory       int
	Reference    int
}

// DefaultBudgetConfig mirrors the allocation used for a 200k-context model
// with a generous safety margin.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		Ceiling:      73000,
		Instructions: 8000,
		Articles:     50000,
		Memory:       10000,
		Reference:    5000,
	}
}

// BudgetEnforcer compresses a bundle until its estimated size fits the
// ceiling. Enforcement is idempotent: a compliant bundle passes unchanged.
type BudgetEnforcer struct {
	config BudgetConfig
	logger *zap.Logger
}

// NewBudgetEnforcer creates an enforcer for the given allocation.
func NewBudgetEnforcer(config BudgetConfig, logger *zap.Logger) *BudgetEnforcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BudgetEnforcer{config: config, logger: logger}
}

// Ceiling returns the total token ceiling.
func (e *BudgetEnforcer) Ceiling() int { return e.config.Ceiling }

// Allocations returns the per-component token ceilings by component name.
func (e *BudgetEnforcer) Allocations() map[string]int {
	return map[string]int{
		ComponentInstructions: e.config.Instructions,
		ComponentArticles:     e.config.Articles,
		ComponentMemory:       e.config.Memory,
		ComponentReference:    e.config.Reference,
	}
}

// Enforce compresses the bundle in place until its total estimate fits the
// ceiling. Components are visited in ascending priority order and truncated
// to their per-component allocation. The instructions component is never
// dropped; if even maximal truncation cannot fit the ceiling the bundle is
// flagged Degraded and kept at its smallest feasible size.
func (e *BudgetEnforcer) Enforce(bundle *Bundle) {
	if bundle.TotalTokens() <= e.config.Ceiling {
		return
	}

	e.logger.Warn("context bundle exceeds budget, compressing",
		zap.Int("tokens", bundle.TotalTokens()),
		zap.Int("ceiling", e.config.Ceiling))

	// Ascending priority: lowest priority compressed first.
	order := make([]int, len(bundle.Components))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return bundle.Components[order[a]].Priority < bundle.Components[order[b]].Priority
	})

	for _, idx := range order {
		if bundle.TotalTokens() <= e.config.Ceiling {
			return
		}
		c := &bundle.Components[idx]
		if c.Allocation <= 0 || c.EstimatedTokens <= c.Allocation {
			continue
		}
		c.Text = truncateToTokens(c.Text, c.Allocation)
		c.EstimatedTokens = EstimateTokens(c.Text)
		e.logger.Info("component truncated for budget",
			zap.String("component", c.Name),
			zap.Int("allocation", c.Allocation))
	}

	if bundle.TotalTokens() > e.config.Ceiling {
		// Second pass: shrink non-instruction components toward the marker
		// alone. Instructions always survive intact to their allocation.
		for _, idx := range order {
			if bundle.TotalTokens() <= e.config.Ceiling {
				return
			}
			c := &bundle.Components[idx]
			if c.Name == ComponentInstructions {
				continue
			}
			over := bundle.TotalTokens() - e.config.Ceiling
			target := c.EstimatedTokens - over
			if target < EstimateTokens(TruncationMarker) {
				target = EstimateTokens(TruncationMarker)
			}
			if target >= c.EstimatedTokens {
				continue
			}
			c.Text = truncateToTokens(c.Text, target)
			c.EstimatedTokens = EstimateTokens(c.Text)
		}
	}

	if bundle.TotalTokens() > e.config.Ceiling {
		// Pathological: the ceiling is smaller than instructions plus
		// markers. Proceed with the smallest feasible bundle.
		bundle.Degraded = true
		e.logger.Warn("bundle degraded: ceiling unreachable after maximal truncation",
			zap.Int("tokens", bundle.TotalTokens()),
			zap.Int("ceiling", e.config.Ceiling))
	}
}

// truncateToTokens cuts text to approximately target tokens and appends the
// truncation marker. The marker's own size is carved out of the target so
// the result stays within the allocation.
func truncateToTokens(text string, target int) string {
	targetChars := target*4 - len(TruncationMarker)
	if targetChars < 0 {
		targetChars = 0
	}
	if len(text) <= targetChars {
		return text
	}

	cut := text[:targetChars]
	// Cut on a line boundary when one is reasonably close.
	if nl := strings.LastIndexByte(cut, '\n'); nl > targetChars/2 {
		cut = cut[:nl]
	}
	return cut + TruncationMarker
}
