// Registry bootstrap from environment credentials.

package registry

import (
	"github.com/sirupsen/logrus"

	"github.com/halverson/binwise/llm"
)

// BuildFromEnv registers one provider per configured API key, in the
// default fallback order. Providers without credentials are skipped,
// not registered as unavailable: a missing key is configuration, not a
// health event.
func BuildFromEnv(r *Registry, log *logrus.Logger) int {
	registered := 0
	for rank, pt := range llm.AllProviderTypes {
		if pt.KeyFromEnv() == "" {
			continue
		}
		provider, err := pt.FromEnv()
		if err != nil {
			log.WithError(err).WithField("provider", pt.String()).
				Warn("provider construction failed")
			continue
		}
		r.Register(Descriptor{
			ID:           pt.String(),
			Provider:     provider,
			Capabilities: capabilitiesFor(pt),
			CostWeight:   costWeightFor(pt),
			Priority:     rank,
		})
		registered++
	}
	return registered
}

func capabilitiesFor(pt llm.ProviderType) []string {
	switch pt {
	case llm.ProviderGemini:
		return []string{CapCodeAnalysis, CapLongContext}
	default:
		return []string{CapCodeAnalysis}
	}
}

// costWeightFor ranks providers by the output rate of their default
// model, so the cost-aware ordering falls out of the pricing table.
func costWeightFor(pt llm.ProviderType) float64 {
	pricing, ok := llm.PricingFor(pt.DefaultModel())
	if !ok {
		return 1.0
	}
	return pricing.OutputPer1K
}
