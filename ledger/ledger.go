// Package ledger records every backend invocation for cost accounting.
//
// The ledger is append-only: records are never updated or deleted, and
// rollups are computed from the full record stream. Cache hits do not
// append records; only actual backend work carries cost.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Pseudo-providers recorded for work that involved no remote call.
const (
	ProviderLocalFallback = "local-fallback"
)

// Record is one backend invocation.
type Record struct {
	ID            string        `json:"id"`
	Timestamp     time.Time     `json:"timestamp"`
	Operation     string        `json:"operation"`
	Provider      string        `json:"provider"`
	Latency       time.Duration `json:"latency"`
	Success       bool          `json:"success"`
	EstimatedCost float64       `json:"estimated_cost"`
	Detail        string        `json:"detail,omitempty"`
}

// ProviderStats aggregates records for one provider.
type ProviderStats struct {
	Invocations  int           `json:"invocations"`
	Successes    int           `json:"successes"`
	Failures     int           `json:"failures"`
	TotalCost    float64       `json:"total_cost"`
	TotalLatency time.Duration `json:"total_latency"`
}

// Stats is a rollup over the full ledger.
type Stats struct {
	TotalRecords int                      `json:"total_records"`
	TotalCost    float64                  `json:"total_cost"`
	ByProvider   map[string]ProviderStats `json:"by_provider"`
	ByOperation  map[string]int           `json:"by_operation"`
}

// Ledger is the append-only usage store.
type Ledger interface {
	// Append stores one record. The record's ID and Timestamp are filled
	// in when unset.
	Append(ctx context.Context, rec Record) error

	// Records returns all records in append order.
	Records(ctx context.Context) ([]Record, error)

	// Stats computes the rollup over all records.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

func stamp(rec *Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
}

func rollup(records []Record) Stats {
	stats := Stats{
		ByProvider:  make(map[string]ProviderStats),
		ByOperation: make(map[string]int),
	}
	for _, rec := range records {
		stats.TotalRecords++
		stats.TotalCost += rec.EstimatedCost
		stats.ByOperation[rec.Operation]++

		ps := stats.ByProvider[rec.Provider]
		ps.Invocations++
		if rec.Success {
			ps.Successes++
		} else {
			ps.Failures++
		}
		ps.TotalCost += rec.EstimatedCost
		ps.TotalLatency += rec.Latency
		stats.ByProvider[rec.Provider] = ps
	}
	return stats
}

// MemoryLedger keeps records in process memory. Thread-safe.
type MemoryLedger struct {
	mu      sync.Mutex
	records []Record
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *MemoryLedger {
	return &MemoryLedger{}
}

// Append stores one record.
func (l *MemoryLedger) Append(_ context.Context, rec Record) error {
	stamp(&rec)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

// Records returns a copy of all records in append order.
func (l *MemoryLedger) Records(_ context.Context) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out, nil
}

// Stats computes the rollup.
func (l *MemoryLedger) Stats(ctx context.Context) (Stats, error) {
	records, err := l.Records(ctx)
	if err != nil {
		return Stats{}, err
	}
	return rollup(records), nil
}

// Close is a no-op for the in-memory ledger.
func (l *MemoryLedger) Close() error { return nil }

var _ Ledger = (*MemoryLedger)(nil)
