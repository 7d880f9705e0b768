// Package gate bounds simultaneous expensive backend invocations.
//
// Subprocess backends (disassembler runs) and network providers (AI
// calls) have different cost profiles, so each resource class gets an
// independent bounded counter. Acquisition blocks until a slot frees or
// the configured wait timeout elapses.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Resource classes known to the gate.
const (
	ClassSubprocess = "subprocess"
	ClassNetwork    = "network"
)

// ErrGateTimeout is returned when no slot frees within the wait budget.
// Callers treat it as a transient failure.
var ErrGateTimeout = errors.New("gate: wait timeout elapsed")

// Gate holds one weighted semaphore per resource class.
type Gate struct {
	classes map[string]*semaphore.Weighted
	wait    time.Duration
}

// Limits maps resource class to maximum concurrent holders.
type Limits map[string]int64

// New creates a gate. Classes with non-positive limits are rejected.
func New(limits Limits, wait time.Duration) (*Gate, error) {
	if wait <= 0 {
		wait = 30 * time.Second
	}
	classes := make(map[string]*semaphore.Weighted, len(limits))
	for class, n := range limits {
		if n <= 0 {
			return nil, fmt.Errorf("gate: class %q needs a positive limit, got %d", class, n)
		}
		classes[class] = semaphore.NewWeighted(n)
	}
	return &Gate{classes: classes, wait: wait}, nil
}

// Lease is a held slot. Release is idempotent and must be called on
// every exit path, typically via defer.
type Lease struct {
	sem  *semaphore.Weighted
	once sync.Once
}

// Release returns the slot to the gate.
func (l *Lease) Release() {
	if l == nil || l.sem == nil {
		return
	}
	l.once.Do(func() { l.sem.Release(1) })
}

// Acquire blocks until a slot in the class frees, the wait timeout
// elapses (ErrGateTimeout), or ctx is cancelled.
func (g *Gate) Acquire(ctx context.Context, class string) (*Lease, error) {
	sem, ok := g.classes[class]
	if !ok {
		return nil, fmt.Errorf("gate: unknown resource class %q", class)
	}

	waitCtx, cancel := context.WithTimeout(ctx, g.wait)
	defer cancel()

	if err := sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrGateTimeout
	}
	return &Lease{sem: sem}, nil
}

// TryAcquire takes a slot without blocking, returning nil when the
// class is saturated.
func (g *Gate) TryAcquire(class string) *Lease {
	sem, ok := g.classes[class]
	if !ok {
		return nil
	}
	if !sem.TryAcquire(1) {
		return nil
	}
	return &Lease{sem: sem}
}
