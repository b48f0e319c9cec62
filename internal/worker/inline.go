package worker

import (
	"context"

	"github.com/rs/zerolog"

	"slack-relay/internal/metrics"
)

// Inline runs tasks on the caller's goroutine before Submit returns. It suits
// runtimes that freeze once the response is written.
type Inline struct {
	log zerolog.Logger
}

func NewInline(log zerolog.Logger) *Inline {
	return &Inline{log: log.With().Str("component", "inline-runner").Logger()}
}

// Submit runs the task and reports only scheduling problems, which never occur
// here. Task failures are logged.
func (i *Inline) Submit(ctx context.Context, name string, run func(ctx context.Context) error) error {
	if err := runSafely(ctx, run); err != nil {
		metrics.WorkerTasksTotal.WithLabelValues("failed").Inc()
		i.log.Warn().Err(err).Str("task", name).Msg("task failed")
		return nil
	}
	metrics.WorkerTasksTotal.WithLabelValues("succeeded").Inc()
	return nil
}
