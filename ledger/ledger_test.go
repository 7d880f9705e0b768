package ledger

import (
	"context"
	"testing"
	"time"
)

// backends runs a test against both ledger implementations.
func backends(t *testing.T, fn func(t *testing.T, l Ledger)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		l := NewMemory()
		defer l.Close()
		fn(t, l)
	})

	t.Run("sqlite", func(t *testing.T) {
		l, err := NewSqliteInMemory()
		if err != nil {
			t.Fatalf("failed to create in-memory sqlite: %v", err)
		}
		defer l.Close()
		fn(t, l)
	})
}

func TestAppendAndRecords(t *testing.T) {
	backends(t, func(t *testing.T, l Ledger) {
		ctx := context.Background()

		recs := []Record{
			{Operation: "re_query", Provider: "anthropic", Latency: 1200 * time.Millisecond, Success: false, Detail: "rate limited"},
			{Operation: "re_query", Provider: "openai", Latency: 900 * time.Millisecond, Success: true, EstimatedCost: 0.021},
			{Operation: "strings_scan", Provider: ProviderLocalFallback, Latency: 40 * time.Millisecond, Success: true},
		}
		for _, rec := range recs {
			if err := l.Append(ctx, rec); err != nil {
				t.Fatalf("append failed: %v", err)
			}
		}

		got, err := l.Records(ctx)
		if err != nil {
			t.Fatalf("records failed: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 records, got %d", len(got))
		}
		// Append order is preserved.
		if got[0].Provider != "anthropic" || got[1].Provider != "openai" || got[2].Provider != ProviderLocalFallback {
			t.Errorf("append order not preserved: %v", got)
		}
		for i, rec := range got {
			if rec.ID == "" {
				t.Errorf("record %d missing generated ID", i)
			}
			if rec.Timestamp.IsZero() {
				t.Errorf("record %d missing timestamp", i)
			}
		}
	})
}

func TestStatsRollup(t *testing.T) {
	backends(t, func(t *testing.T, l Ledger) {
		ctx := context.Background()

		_ = l.Append(ctx, Record{Operation: "re_query", Provider: "anthropic", Success: false, Latency: time.Second})
		_ = l.Append(ctx, Record{Operation: "re_query", Provider: "anthropic", Success: true, EstimatedCost: 0.05, Latency: 2 * time.Second})
		_ = l.Append(ctx, Record{Operation: "ghidra_binary", Provider: "openai", Success: true, EstimatedCost: 0.02, Latency: time.Second})

		stats, err := l.Stats(ctx)
		if err != nil {
			t.Fatalf("stats failed: %v", err)
		}
		if stats.TotalRecords != 3 {
			t.Errorf("TotalRecords = %d, want 3", stats.TotalRecords)
		}
		if diff := stats.TotalCost - 0.07; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("TotalCost = %f, want 0.07", stats.TotalCost)
		}

		anth := stats.ByProvider["anthropic"]
		if anth.Invocations != 2 || anth.Successes != 1 || anth.Failures != 1 {
			t.Errorf("anthropic stats wrong: %+v", anth)
		}
		if anth.TotalLatency != 3*time.Second {
			t.Errorf("anthropic latency = %v, want 3s", anth.TotalLatency)
		}
		if stats.ByOperation["re_query"] != 2 || stats.ByOperation["ghidra_binary"] != 1 {
			t.Errorf("operation rollup wrong: %+v", stats.ByOperation)
		}
	})
}

func TestEmptyLedgerStats(t *testing.T) {
	backends(t, func(t *testing.T, l Ledger) {
		stats, err := l.Stats(context.Background())
		if err != nil {
			t.Fatalf("stats failed: %v", err)
		}
		if stats.TotalRecords != 0 || stats.TotalCost != 0 {
			t.Errorf("expected zero stats, got %+v", stats)
		}
	})
}

func TestExplicitIDPreserved(t *testing.T) {
	backends(t, func(t *testing.T, l Ledger) {
		ctx := context.Background()
		when := time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC)
		rec := Record{ID: "fixed-id", Timestamp: when, Operation: "file_info", Provider: ProviderLocalFallback, Success: true}
		if err := l.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
		got, err := l.Records(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got[0].ID != "fixed-id" {
			t.Errorf("explicit ID overwritten: %q", got[0].ID)
		}
		if !got[0].Timestamp.Equal(when) {
			t.Errorf("explicit timestamp overwritten: %v", got[0].Timestamp)
		}
	})
}
