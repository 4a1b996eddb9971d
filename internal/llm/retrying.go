package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/dgallion1/paperdigest/internal/retry"
)

// Retrying retries transient failures of the wrapped Completer. Context
// length errors are not transient and pass straight through.
type Retrying struct {
	next   Completer
	policy retry.Policy
	log    *slog.Logger
}

func WithRetry(next Completer, policy retry.Policy, log *slog.Logger) *Retrying {
	if log == nil {
		log = slog.Default()
	}
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		log.Warn("llm call failed, retrying",
			"model", next.Model(),
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
	}
	return &Retrying{next: next, policy: policy, log: log}
}

func (c *Retrying) Model() string { return c.next.Model() }

func (c *Retrying) Complete(ctx context.Context, req Request) (*Response, error) {
	return retry.Value(ctx, c.policy, func(ctx context.Context) (*Response, error) {
		return c.next.Complete(ctx, req)
	})
}
