package brief

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TopicResult pairs one job with its outcome. Failed jobs carry Err; the
// rest of the run continues independently.
type TopicResult struct {
	Job   Job
	Brief *Brief
	Err   error
}

// RunTopics executes several synthesis jobs concurrently, bounded by
// limit. The shared dispatcher's rate limiter spaces requests across
// jobs. Results come back in job order; only context cancellation aborts
// the whole run.
func RunTopics(ctx context.Context, c *Controller, jobs []Job, limit int, logger *zap.Logger) ([]TopicResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit <= 0 {
		limit = 1
	}

	results := make([]TopicResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, job := range jobs {
		g.Go(func() error {
			b, err := c.Run(gctx, job)
			results[i] = TopicResult{Job: job, Brief: b, Err: err}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logger.Warn("topic synthesis failed",
					zap.String("topic", job.Topic),
					zap.Error(err))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
