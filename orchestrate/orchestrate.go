// Package orchestrate executes AI analysis queries against an ordered
// provider list with retry, backoff, and failover.
//
// Each provider attempt acquires a network slot from the concurrency
// gate, runs under a bounded timeout, and appends exactly one usage
// record regardless of outcome. Transient failures retry with
// exponential backoff and jitter up to a small budget before failing
// over to the next provider; permanent failures fail over immediately.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/halverson/binwise/gate"
	"github.com/halverson/binwise/ledger"
	"github.com/halverson/binwise/llm"
	"github.com/halverson/binwise/model"
	"github.com/halverson/binwise/registry"
)

// ErrProvidersExhausted reports that every candidate provider failed.
var ErrProvidersExhausted = errors.New("orchestrate: all providers exhausted")

// ErrNoProviders reports that no provider satisfied the requirements.
var ErrNoProviders = errors.New("orchestrate: no candidate providers")

// RetryPolicy bounds per-provider retries.
type RetryPolicy struct {
	// MaxRetries is the retry count after the first attempt, per provider.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy retries twice per provider with sub-second backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  250 * time.Millisecond,
		MaxDelay:   4 * time.Second,
	}
}

// delay computes the backoff before retry n (0-based), with jitter.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt)
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	// up to 50% jitter so synchronized retries spread out
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}

// Query is one AI analysis request.
type Query struct {
	Operation    string
	Messages     []llm.ChatMessage
	Requirements registry.Requirements
	// AttemptTimeout bounds a single provider invocation.
	AttemptTimeout time.Duration
}

// Outcome is a successful orchestration result plus the attempt trail.
type Outcome struct {
	Content  string
	Provider string
	Model    string
	Usage    *llm.TokenUsage
	Cost     float64
	Attempts []model.ProviderAttempt
}

// Orchestrator drives fallback execution.
type Orchestrator struct {
	registry *registry.Registry
	gate     *gate.Gate
	ledger   ledger.Ledger
	policy   RetryPolicy
	log      *logrus.Logger
}

// New creates an orchestrator. A zero policy gets defaults.
func New(reg *registry.Registry, g *gate.Gate, led ledger.Ledger, policy RetryPolicy, log *logrus.Logger) *Orchestrator {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.BaseDelay <= 0 {
		policy = DefaultRetryPolicy()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Orchestrator{
		registry: reg,
		gate:     g,
		ledger:   led,
		policy:   policy,
		log:      log,
	}
}

const defaultAttemptTimeout = 120 * time.Second

// Execute runs the query against candidates in registry order. On
// success it returns the first provider's content; when every provider
// is exhausted it returns the attempt trail alongside
// ErrProvidersExhausted so the caller can build a degraded envelope.
func (o *Orchestrator) Execute(ctx context.Context, q Query) (Outcome, error) {
	candidates := o.registry.Candidates(q.Requirements)
	if len(candidates) == 0 {
		return Outcome{}, ErrNoProviders
	}

	timeout := q.AttemptTimeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}

	var attempts []model.ProviderAttempt
	for _, desc := range candidates {
		outcome, attempt, err := o.tryProvider(ctx, q, desc, timeout)
		attempts = append(attempts, attempt)
		if err == nil {
			o.registry.ReportSuccess(desc.ID)
			outcome.Attempts = attempts
			return outcome, nil
		}
		if ctx.Err() != nil {
			return Outcome{Attempts: attempts}, ctx.Err()
		}
		o.registry.ReportFailure(desc.ID)
		o.log.WithFields(logrus.Fields{
			"provider":  desc.ID,
			"operation": q.Operation,
			"class":     Classify(err).String(),
		}).WithError(err).Warn("provider failed, trying next")
	}

	return Outcome{Attempts: attempts}, ErrProvidersExhausted
}

// tryProvider runs one provider through its retry budget. It returns
// the final attempt record for the envelope metadata.
func (o *Orchestrator) tryProvider(ctx context.Context, q Query, desc registry.Descriptor, timeout time.Duration) (Outcome, model.ProviderAttempt, error) {
	var lastErr error
	for attempt := 0; attempt <= o.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, o.policy.delay(attempt-1)); err != nil {
				return Outcome{}, attemptRecord(desc.ID, lastErr), err
			}
		}

		outcome, err := o.invoke(ctx, q, desc, timeout)
		if err == nil {
			return outcome, model.ProviderAttempt{Provider: desc.ID, Outcome: "success"}, nil
		}
		lastErr = err
		if Classify(err) == Permanent {
			break
		}
	}
	return Outcome{}, attemptRecord(desc.ID, lastErr), lastErr
}

func attemptRecord(provider string, err error) model.ProviderAttempt {
	rec := model.ProviderAttempt{Provider: provider, Outcome: "transient"}
	if err != nil {
		rec.Error = err.Error()
		if Classify(err) == Permanent {
			rec.Outcome = "permanent"
		}
	}
	return rec
}

// invoke performs exactly one gated, timed provider call and appends
// one usage record.
func (o *Orchestrator) invoke(ctx context.Context, q Query, desc registry.Descriptor, timeout time.Duration) (Outcome, error) {
	lease, err := o.gate.Acquire(ctx, gate.ClassNetwork)
	if err != nil {
		o.appendRecord(ctx, q.Operation, desc.ID, 0, false, 0, err)
		return Outcome{}, err
	}
	defer lease.Release()

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := desc.Provider.Chat(attemptCtx, q.Messages)
	latency := time.Since(start)

	if err != nil {
		o.appendRecord(ctx, q.Operation, desc.ID, latency, false, 0, err)
		return Outcome{}, err
	}
	if resp.Content == "" {
		err = fmt.Errorf("empty completion from %s", desc.ID)
		o.appendRecord(ctx, q.Operation, desc.ID, latency, false, 0, err)
		return Outcome{}, err
	}

	cost := llm.EstimateCost(desc.Provider.Model(), resp.Usage)
	o.appendRecord(ctx, q.Operation, desc.ID, latency, true, cost, nil)

	return Outcome{
		Content:  resp.Content,
		Provider: desc.ID,
		Model:    desc.Provider.Model(),
		Usage:    resp.Usage,
		Cost:     cost,
	}, nil
}

func (o *Orchestrator) appendRecord(ctx context.Context, op, provider string, latency time.Duration, success bool, cost float64, attemptErr error) {
	rec := ledger.Record{
		Operation:     op,
		Provider:      provider,
		Latency:       latency,
		Success:       success,
		EstimatedCost: cost,
	}
	if attemptErr != nil {
		rec.Detail = attemptErr.Error()
	}
	// Ledger writes use the parent context so a timed-out attempt still
	// gets accounted for.
	if err := o.ledger.Append(context.WithoutCancel(ctx), rec); err != nil {
		o.log.WithError(err).Warn("usage record append failed")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
