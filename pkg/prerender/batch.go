package prerender

import (
	"context"

	"github.com/wehubfusion/Daedalus/pkg/build"
	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	"go.uber.org/zap"
)

// Job is one template to render
type Job struct {
	Request string
	Content string
}

// Outcome is the result of one Job
type Outcome struct {
	Request string
	Output  string
	Err     error
}

// Batch renders jobs concurrently. Each job owns its own document or workspace; they share
// only parent. A nil limiter is built from the environment. Outcomes are in job order.
func (l *Loader) Batch(ctx context.Context, parent *build.Compilation, limiter *concurrency.Limiter, jobs []Job) []Outcome {
	if limiter == nil {
		config := concurrency.LoadConfig()
		l.logger.Debug("Concurrency configured", zap.String("config", config.String()))
		limiter = concurrency.NewLimiterFromConfig(config)
	}

	outcomes := make([]Outcome, len(jobs))
	errs := limiter.Each(ctx, len(jobs), func(ctx context.Context, i int) error {
		out, err := l.Load(ctx, parent, jobs[i].Request, jobs[i].Content)
		outcomes[i].Output = out
		return err
	})
	for i := range jobs {
		outcomes[i].Request = jobs[i].Request
		outcomes[i].Err = errs[i]
	}

	stats := limiter.Stats()
	l.logger.Info("Batch finished",
		zap.Int("jobs", len(jobs)),
		zap.Int64("failed", stats.Failed),
		zap.Int64("peak_concurrency", stats.Peak),
		zap.Duration("waited", stats.Waited))
	return outcomes
}
