package brief

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loomworks/loom/internal/article"
	"github.com/loomworks/loom/internal/curate"
	"github.com/loomworks/loom/internal/llm"
	"github.com/loomworks/loom/internal/profile"
	"github.com/loomworks/loom/internal/reflection"
	"github.com/loomworks/loom/internal/repair"
	"github.com/loomworks/loom/internal/trust"
)

// State names the stages of one synthesis attempt, in order.
type State string

const (
	StateAssembling  State = "ASSEMBLING"
	StateDispatching State = "DISPATCHING"
	StateParsing     State = "PARSING"
	StateReflecting  State = "REFLECTING"
	StateVerifying   State = "VERIFYING"
	StateAccepted    State = "ACCEPTED"
	StateFailed      State = "FAILED"
)

// Config tunes the synthesis controller.
type Config struct {
	// Model names the primary synthesis model.
	Model string

	// MaxRetries bounds the total attempts per job.
	MaxRetries int

	// FirstTemperature is used on the first attempt; RetryTemperature on
	// every subsequent one, trading creativity for compliance.
	FirstTemperature float64
	RetryTemperature float64

	MaxTokens int
}

// DefaultConfig returns the standard controller settings.
func DefaultConfig() Config {
	return Config{
		MaxRetries:       3,
		FirstTemperature: 1.0,
		RetryTemperature: 0.7,
		MaxTokens:        8192,
	}
}

// Job is one synthesis request.
type Job struct {
	Topic        string
	Instructions string
	Articles     []article.Article
	Memory       string
	Reference    string
	Profile      *profile.Profile
}

// Controller runs the synthesis state machine: assemble context once,
// then dispatch, parse, reflect, and verify per attempt until a draft is
// accepted or the retry budget runs out.
type Controller struct {
	assembler  *curate.Assembler
	dispatcher *llm.Dispatcher
	parser     *repair.Parser
	evaluator  *reflection.Evaluator
	verifier   *trust.Verifier
	config     Config
	logger     *zap.Logger

	now func() time.Time
}

// NewController wires the synthesis pipeline.
func NewController(
	assembler *curate.Assembler,
	dispatcher *llm.Dispatcher,
	evaluator *reflection.Evaluator,
	verifier *trust.Verifier,
	config Config,
	logger *zap.Logger,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 1
	}
	return &Controller{
		assembler:  assembler,
		dispatcher: dispatcher,
		parser:     repair.NewParser(logger.Named("repair")),
		evaluator:  evaluator,
		verifier:   verifier,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

// Run executes one job. A parse failure retries with the prompt
// unmodified; a trust failure retries with accumulated constraints; a
// draft below the depth threshold gets exactly one refinement pass and
// the refined draft is never re-scored. Context cancellation aborts with
// ErrJobCancelled.
func (c *Controller) Run(ctx context.Context, job Job) (*Brief, error) {
	if len(job.Articles) == 0 {
		return nil, ErrNoArticles
	}

	logger := c.logger
	if job.Topic != "" {
		logger = logger.With(zap.String("topic", job.Topic))
	}
	logger.Info("synthesis job starting", zap.String("state", string(StateAssembling)),
		zap.Int("articles", len(job.Articles)))

	bundle, err := c.assembler.Assemble(curate.Inputs{
		Instructions: job.Instructions,
		Articles:     job.Articles,
		Memory:       job.Memory,
		Reference:    job.Reference,
		Profile:      job.Profile,
	})
	if err != nil {
		return nil, fmt.Errorf("assembling context: %w", err)
	}

	sources := ""
	if comp := bundle.Component(curate.ComponentArticles); comp != nil {
		sources = comp.Text
	}
	task := synthesisTask(job.Topic, len(job.Articles))

	var constraints Constraints
	var attempts []AttemptRecord
	lastFailure := "no attempts executed"

	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrJobCancelled, ctx.Err())
		}

		rec := AttemptRecord{Attempt: attempt}
		temperature := c.config.FirstTemperature
		if attempt > 1 {
			temperature = c.config.RetryTemperature
		}
		system := bundle.SystemPrompt() + constraints.Render()

		logger.Info("dispatching synthesis request",
			zap.String("state", string(StateDispatching)),
			zap.Int("attempt", attempt),
			zap.Float64("temperature", temperature),
			zap.Int("constraints", constraints.Len()))

		resp, err := c.dispatcher.Send(ctx, llm.Request{
			Model:       c.config.Model,
			System:      system,
			User:        task,
			Temperature: temperature,
			MaxTokens:   c.config.MaxTokens,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrJobCancelled, ctx.Err())
			}
			rec.Outcome = "transport_failed"
			rec.Failure = err.Error()
			lastFailure = rec.Failure
			attempts = append(attempts, rec)
			continue
		}

		result, parseAttempts, err := c.parser.Parse(resp.Text)
		if err != nil {
			// Parse failures retry with the prompt unmodified: the same
			// request can yield well-formed output on another sample.
			logger.Warn("draft unparseable, retrying with unmodified prompt",
				zap.String("state", string(StateParsing)),
				zap.Int("attempt", attempt),
				zap.Error(err))
			rec.Outcome = "parse_failed"
			rec.Failure = err.Error()
			lastFailure = rec.Failure
			attempts = append(attempts, rec)
			continue
		}
		rec.ParseStrategy = winningStrategy(parseAttempts)
		draft := resp.Text

		eval, evalErr := c.evaluator.Evaluate(ctx, draft)
		if evalErr != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrJobCancelled, ctx.Err())
			}
			// A broken scorer must not sink an otherwise good draft; skip
			// refinement and verify as-is.
			logger.Warn("reflection scoring unavailable, skipping refinement",
				zap.String("state", string(StateReflecting)), zap.Error(evalErr))
		} else {
			rec.DepthScore = eval.Aggregate
			if !eval.Passed(c.evaluator.Threshold()) {
				refined, refinedResult, ok := c.refine(ctx, logger, system, draft, eval)
				if ctx.Err() != nil {
					return nil, fmt.Errorf("%w: %w", ErrJobCancelled, ctx.Err())
				}
				if ok {
					draft, result = refined, refinedResult
					rec.Refined = true
				}
			}
		}

		analysis, report, err := c.verifier.Verify(ctx, draft, sources)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrJobCancelled, ctx.Err())
			}
			rec.Outcome = "verify_error"
			rec.Failure = err.Error()
			lastFailure = rec.Failure
			attempts = append(attempts, rec)
			continue
		}
		rec.TrustPassed = report.Passed

		if !report.Passed {
			constraints.Augment(report)
			logger.Warn("draft failed trust verification, retrying with constraints",
				zap.String("state", string(StateVerifying)),
				zap.Int("attempt", attempt),
				zap.Strings("violations", report.Violations),
				zap.Int("constraints", constraints.Len()),
				zap.Int("claims", analysis.TotalClaims()))
			rec.Outcome = "trust_failed"
			rec.Failure = strings.Join(report.Violations, "; ")
			lastFailure = rec.Failure
			attempts = append(attempts, rec)
			continue
		}

		rec.Outcome = string(StateAccepted)
		attempts = append(attempts, rec)

		b := decodeBrief(result)
		b.Topic = job.Topic
		b.Metadata = Metadata{
			GeneratedAt: c.now().UTC(),
			Model:       c.config.Model,
			Degraded:    bundle.Degraded,
			Attempts:    attempts,
		}
		BindCitations(b, job.Articles)
		PruneDanglingCitations(b)

		logger.Info("brief accepted",
			zap.String("state", string(StateAccepted)),
			zap.Int("attempt", attempt),
			zap.Float64("depth_score", rec.DepthScore),
			zap.Bool("refined", rec.Refined))
		return b, nil
	}

	logger.Error("synthesis job failed",
		zap.String("state", string(StateFailed)),
		zap.Int("attempts", len(attempts)))
	return nil, &Failure{Reason: lastFailure, Attempts: attempts}
}

// refine runs the single refinement pass for a draft that scored below
// the depth threshold. The refined draft is used only when it parses;
// otherwise the original stands. The refined draft is never re-scored.
func (c *Controller) refine(ctx context.Context, logger *zap.Logger, system, draft string, eval reflection.Evaluation) (string, repair.Result, bool) {
	logger.Info("draft below depth threshold, refining once",
		zap.String("state", string(StateReflecting)),
		zap.Float64("aggregate", eval.Aggregate),
		zap.Strings("shallow_areas", eval.ShallowAreas))

	user := "Here is your previous draft:\n\n" + draft + "\n\n" +
		c.evaluator.RefinementPrompt(eval) +
		"\n\nRespond with the full revised brief in the same JSON schema, nothing else."

	resp, err := c.dispatcher.Send(ctx, llm.Request{
		Model:       c.config.Model,
		System:      system,
		User:        user,
		Temperature: c.config.RetryTemperature,
		MaxTokens:   c.config.MaxTokens,
	})
	if err != nil {
		logger.Warn("refinement request failed, keeping original draft", zap.Error(err))
		return "", nil, false
	}
	result, _, err := c.parser.Parse(resp.Text)
	if err != nil {
		logger.Warn("refined draft unparseable, keeping original draft", zap.Error(err))
		return "", nil, false
	}
	return resp.Text, result, true
}

func winningStrategy(attempts []repair.Attempt) string {
	for _, a := range attempts {
		if a.Succeeded {
			return a.Strategy
		}
	}
	return ""
}
