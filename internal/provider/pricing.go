package provider

import "strings"

// PriceTier prices one family of models, matched by substring against the
// model id. Input and Output are USD per million tokens.
type PriceTier struct {
	Match  string
	Input  float64
	Output float64
}

// PriceTable is an adapter's static pricing knowledge. Tiers are consulted
// in declaration order and the first substring match wins, so more specific
// ids must be listed before their prefixes ("gemini-1.5-flash-8b" before
// "gemini-1.5-flash"). Ids matching no tier fall back to Default, which is
// never zero: an unknown model yields a plausible estimate rather than a
// free one.
type PriceTable struct {
	Tiers   []PriceTier
	Default PriceTier
}

// Lookup resolves the tier for a model id.
func (t PriceTable) Lookup(modelID string) PriceTier {
	for _, tier := range t.Tiers {
		if strings.Contains(modelID, tier.Match) {
			return tier
		}
	}
	return t.Default
}

// Cost prices an exchange: tokens/1e6 times the per-million rate, summed
// over both directions.
func (t PriceTable) Cost(inputTokens, outputTokens int, modelID string) float64 {
	tier := t.Lookup(modelID)
	return float64(inputTokens)/1e6*tier.Input + float64(outputTokens)/1e6*tier.Output
}
