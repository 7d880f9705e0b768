package ops

import (
	"context"
	"fmt"

	"github.com/halverson/binwise/llm"
	"github.com/halverson/binwise/model"
	"github.com/halverson/binwise/registry"
)

// providerStatusOp reports configured providers, their health, and
// accumulated usage. Not cacheable: health and spend change constantly.
type providerStatusOp struct{}

func (providerStatusOp) Spec() Spec {
	return Spec{
		Name:        "provider_status",
		Description: "Report provider configuration, health, and usage statistics",
	}
}

func (providerStatusOp) Execute(ctx context.Context, b *Backends, _ Request) (*model.Envelope, error) {
	configured := map[string]bool{}
	for _, pt := range llm.AllProviderTypes {
		configured[pt.String()] = pt.KeyFromEnv() != ""
	}

	providers := []map[string]interface{}{}
	healthy := 0
	for _, st := range b.Registry.Snapshot() {
		if st.Health == registry.Available {
			healthy++
		}
		providers = append(providers, map[string]interface{}{
			"id":          st.ID,
			"model":       st.Provider.Model(),
			"health":      string(st.Health),
			"failures":    st.Failures,
			"cost_weight": st.CostWeight,
			"priority":    st.Priority,
		})
	}

	findings := map[string]interface{}{
		"api_keys_configured": configured,
		"providers":           providers,
	}
	if b.Ledger != nil {
		stats, err := b.Ledger.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("ledger stats: %w", err)
		}
		findings["usage"] = stats
	}

	return &model.Envelope{
		Metadata: model.Metadata{ProviderUsed: "local-fallback"},
		Summary:  fmt.Sprintf("%d providers registered, %d available", b.Registry.Len(), healthy),
		Findings: findings,
	}, nil
}
