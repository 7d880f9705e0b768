// Package registry tracks AI provider health, cost, and capability metadata.
//
// The registry owns the ordered provider list consumed by the fallback
// orchestrator. Ordering combines configured priority with a cost-aware
// policy: among providers whose capability tags satisfy a request, the
// cheapest is tried first. Health state transitions only through explicit
// failure-threshold logic or probes, never silently.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/halverson/binwise/llm"
)

// Health describes the registry's view of a provider.
type Health string

const (
	Available   Health = "available"
	Degraded    Health = "degraded"
	Unavailable Health = "unavailable"
)

// Capability tags a provider can carry.
const (
	CapLongContext  = "long-context"
	CapLocalOnly    = "local-only"
	CapCodeAnalysis = "code-analysis"
)

// Descriptor holds the static metadata for a registered provider.
type Descriptor struct {
	ID           string
	Provider     llm.Provider
	Capabilities []string
	// CostWeight is a relative cost rank; lower is cheaper.
	CostWeight float64
	// Priority breaks cost ties; lower runs first.
	Priority int
}

// Status is a point-in-time health snapshot for one provider.
type Status struct {
	Descriptor
	Health      Health
	LastChecked time.Time
	Failures    int
}

type entry struct {
	desc             Descriptor
	health           Health
	lastChecked      time.Time
	failures         []time.Time
	unavailableUntil time.Time
}

// Options configures failure-threshold behavior.
type Options struct {
	// FailureThreshold marks a provider Degraded after this many failures
	// inside FailureWindow, and Unavailable at twice the count.
	FailureThreshold int
	FailureWindow    time.Duration
	// Cooldown is how long an Unavailable provider is skipped before a
	// probe attempt is allowed again.
	Cooldown time.Duration

	Log *logrus.Logger
}

const (
	defaultFailureThreshold = 3
	defaultFailureWindow    = 2 * time.Minute
	defaultCooldown         = 5 * time.Minute
)

// Registry is safe for concurrent use. Health state is read on every
// request ordering and written only on outcome reports, so a RWMutex
// keeps the common path cheap.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	failureThreshold int
	failureWindow    time.Duration
	cooldown         time.Duration
	log              *logrus.Logger

	now func() time.Time
}

// New creates an empty registry.
func New(opts Options) *Registry {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = defaultFailureThreshold
	}
	if opts.FailureWindow <= 0 {
		opts.FailureWindow = defaultFailureWindow
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = defaultCooldown
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{
		entries:          make(map[string]*entry),
		failureThreshold: opts.FailureThreshold,
		failureWindow:    opts.FailureWindow,
		cooldown:         opts.Cooldown,
		log:              log,
		now:              time.Now,
	}
}

// Register adds or replaces a provider descriptor. New providers start
// Available.
func (r *Registry) Register(desc Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[desc.ID] = &entry{
		desc:        desc,
		health:      Available,
		lastChecked: r.now(),
	}
}

// Requirements narrows the candidate list for one request.
type Requirements struct {
	// Capabilities that a provider must carry to qualify.
	Capabilities []string
	// PinnedProvider, when set, restricts the list to that single provider
	// regardless of cost ordering (health is still honored).
	PinnedProvider string
	// Preferred moves one provider to the front without excluding others.
	Preferred string
}

// Candidates returns healthy providers satisfying the requirements, in
// invocation order: cheapest first, priority rank breaking ties.
// Unavailable providers inside their cooldown are skipped; one past its
// cooldown is re-admitted at the end of the list as a probe.
func (r *Registry) Candidates(req Requirements) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	var ready, demoted, probes []Descriptor
	for _, e := range r.entries {
		if req.PinnedProvider != "" && e.desc.ID != req.PinnedProvider {
			continue
		}
		if !hasCapabilities(e.desc.Capabilities, req.Capabilities) {
			continue
		}
		switch e.health {
		case Unavailable:
			if now.Before(e.unavailableUntil) {
				continue
			}
			probes = append(probes, e.desc)
		case Degraded:
			demoted = append(demoted, e.desc)
		default:
			ready = append(ready, e.desc)
		}
	}

	sortDescriptors(ready)
	sortDescriptors(demoted)
	sortDescriptors(probes)

	if req.Preferred != "" {
		moveToFront(ready, req.Preferred)
	}
	return append(append(ready, demoted...), probes...)
}

func sortDescriptors(list []Descriptor) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CostWeight != list[j].CostWeight {
			return list[i].CostWeight < list[j].CostWeight
		}
		return list[i].Priority < list[j].Priority
	})
}

func moveToFront(list []Descriptor, id string) {
	for i, d := range list {
		if d.ID == id {
			copy(list[1:i+1], list[:i])
			list[0] = d
			return
		}
	}
}

func hasCapabilities(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ReportSuccess clears a provider's failure window and marks it
// Available. A success from a probing provider ends its cooldown.
func (r *Registry) ReportSuccess(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return
	}
	prev := e.health
	e.failures = nil
	e.health = Available
	e.lastChecked = r.now()
	e.unavailableUntil = time.Time{}
	if prev != Available {
		r.log.WithFields(logrus.Fields{
			"provider": id,
			"from":     prev,
		}).Info("provider recovered")
	}
}

// ReportFailure records a failed invocation. Crossing the failure
// threshold inside the sliding window marks the provider Degraded;
// crossing twice the threshold marks it Unavailable for the cooldown.
func (r *Registry) ReportFailure(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return
	}
	now := r.now()
	e.lastChecked = now

	cutoff := now.Add(-r.failureWindow)
	kept := e.failures[:0]
	for _, t := range e.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	e.failures = append(kept, now)

	switch {
	case len(e.failures) >= 2*r.failureThreshold:
		if e.health != Unavailable {
			r.log.WithField("provider", id).Warn("provider marked unavailable")
		}
		e.health = Unavailable
		e.unavailableUntil = now.Add(r.cooldown)
	case len(e.failures) >= r.failureThreshold:
		if e.health == Available {
			r.log.WithField("provider", id).Warn("provider marked degraded")
		}
		e.health = Degraded
	}
}

// HealthOf returns a provider's current health, or Unavailable for
// unknown IDs.
func (r *Registry) HealthOf(id string) Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Unavailable
	}
	return e.health
}

// Snapshot returns the status of every registered provider, sorted by
// cost ordering. Used by status reporting.
func (r *Registry) Snapshot() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Status, 0, len(r.entries))
	for _, e := range r.entries {
		result = append(result, Status{
			Descriptor:  e.desc,
			Health:      e.health,
			LastChecked: e.lastChecked,
			Failures:    len(e.failures),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CostWeight != result[j].CostWeight {
			return result[i].CostWeight < result[j].CostWeight
		}
		return result[i].Priority < result[j].Priority
	})
	return result
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
