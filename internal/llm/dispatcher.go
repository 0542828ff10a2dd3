package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/loomworks/loom/internal/article"
)

// DispatchConfig controls batching and transport retry for one job.
type DispatchConfig struct {
	// BatchSize is the maximum number of records per generation request.
	BatchSize int

	// BatchDelay is the pause between consecutive batch dispatches within
	// one job, skipped after the final batch.
	BatchDelay time.Duration

	// RequestTimeout bounds each individual generation request.
	RequestTimeout time.Duration

	// MaxTransportRetries is how many times a timed-out or failed request
	// is retried before the batch is marked failed.
	MaxTransportRetries int

	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration
}

// DefaultDispatchConfig returns dispatch settings suitable for the
// generation service's published rate limits.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		BatchSize:           10,
		BatchDelay:          time.Second,
		RequestTimeout:      120 * time.Second,
		MaxTransportRetries: 3,
		BackoffBase:         2 * time.Second,
	}
}

// BatchPromptFunc renders the user message for one batch of records.
type BatchPromptFunc func(batch []article.Article) string

// BatchResult is the outcome of one batch dispatch. A batch that exhausted
// its transport retries carries Err and an empty Response; its records are
// excluded from downstream processing rather than backfilled.
type BatchResult struct {
	Index    int
	Records  []article.Article
	Response Response
	Err      error
}

// Dispatcher partitions records into ordered batches and sends one
// generation request per batch, throttled by the shared rate limiter.
type Dispatcher struct {
	client  Client
	limiter *RateLimiter
	config  DispatchConfig
	logger  *zap.Logger

	// sleep is swappable for deterministic tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a dispatcher. limiter may be nil when no cross-job
// throttling is wanted.
func NewDispatcher(client Client, limiter *RateLimiter, config DispatchConfig, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 1
	}
	return &Dispatcher{
		client:  client,
		limiter: limiter,
		config:  config,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// Partition splits records into ordered batches of at most BatchSize.
// Batch boundaries never split a record.
func Partition(records []article.Article, batchSize int) [][]article.Article {
	if batchSize <= 0 {
		batchSize = 1
	}
	var batches [][]article.Article
	for start := 0; start < len(records); start += batchSize {
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, records[start:end])
	}
	return batches
}

// Dispatch sends one generation request per batch in input order and
// returns per-batch results in that same order. A batch whose transport
// retries are exhausted is returned with Err set; remaining batches
// continue independently.
func (d *Dispatcher) Dispatch(ctx context.Context, system string, records []article.Article, prompt BatchPromptFunc) ([]BatchResult, error) {
	batches := Partition(records, d.config.BatchSize)
	results := make([]BatchResult, 0, len(batches))

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		req := Request{
			System:  system,
			User:    prompt(batch),
			Timeout: d.config.RequestTimeout,
		}

		resp, err := d.send(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			d.logger.Warn("batch dispatch failed, excluding records",
				zap.Int("batch", i),
				zap.Int("records", len(batch)),
				zap.Error(err))
			results = append(results, BatchResult{Index: i, Records: batch, Err: err})
		} else {
			results = append(results, BatchResult{Index: i, Records: batch, Response: resp})
		}

		// Inter-batch delay respects upstream rate limits; skipped after
		// the final batch.
		if i < len(batches)-1 && d.config.BatchDelay > 0 {
			if err := d.sleep(ctx, d.config.BatchDelay); err != nil {
				return results, err
			}
		}
	}

	return results, nil
}

// Send dispatches a single request with rate limiting and transport retry.
func (d *Dispatcher) Send(ctx context.Context, req Request) (Response, error) {
	if req.Timeout == 0 {
		req.Timeout = d.config.RequestTimeout
	}
	return d.send(ctx, req)
}

func (d *Dispatcher) send(ctx context.Context, req Request) (Response, error) {
	retries := d.config.MaxTransportRetries
	if retries < 0 {
		retries = 0
	}
	backoff := d.config.BackoffBase
	if backoff <= 0 {
		backoff = time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			d.logger.Info("retrying generation request",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff))
			if err := d.sleep(ctx, backoff); err != nil {
				return Response{}, err
			}
			backoff *= 2
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return Response{}, err
			}
		}

		resp, err := d.client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
	}

	return Response{}, fmt.Errorf("%w: exhausted %d transport retries: %w", ErrTransport, retries, lastErr)
}
