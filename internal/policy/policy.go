// Package policy implements the ordered pipeline of spec.md §4.7: a
// list of (before, after) function pairs, grounded on go-coffee's
// preference for small composable function values over inheritance
// (see pkg/concurrency's circuit breaker / rate limiter, which favor
// config structs plus methods over a class hierarchy).
package policy

import (
	"context"

	"go.uber.org/zap"

	"github.com/DimaJoyti/queue-autoscaler/internal/engine"
)

// Policy is a named pair of hooks threaded through the pipeline.
// Before may rewrite a decision; After runs purely for side effects
// (events, metrics) after the physical scale action and must not
// mutate state visible to the control loop.
type Policy interface {
	Name() string
	Before(d engine.Decision) (*engine.Decision, error)
	After(ctx context.Context, d engine.Decision) error
}

// Pipeline runs an ordered list of policies.
type Pipeline struct {
	logger   *zap.Logger
	policies []Policy
}

// New builds a Pipeline from an ordered policy list.
func New(logger *zap.Logger, policies []Policy) *Pipeline {
	return &Pipeline{logger: logger, policies: policies}
}

// RunBefore threads d through each policy's Before hook in order. A
// policy that errors is logged and treated as identity for that
// policy (spec.md §7), never aborting the pipeline.
func (p *Pipeline) RunBefore(d engine.Decision) engine.Decision {
	current := d
	for _, pol := range p.policies {
		rewritten, err := pol.Before(current)
		if err != nil {
			p.logger.Warn("policy before-hook failed, treating as identity",
				zap.String("policy", pol.Name()), zap.Error(err))
			continue
		}
		if rewritten != nil {
			current = *rewritten
		}
	}
	return current
}

// RunAfter runs every policy's After hook, continuing past individual
// failures (spec.md §7).
func (p *Pipeline) RunAfter(ctx context.Context, d engine.Decision) {
	for _, pol := range p.policies {
		if err := pol.After(ctx, d); err != nil {
			p.logger.Warn("policy after-hook failed, continuing",
				zap.String("policy", pol.Name()), zap.Error(err))
		}
	}
}
