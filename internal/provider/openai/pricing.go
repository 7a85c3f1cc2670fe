package openai

import "github.com/KuzeyMurathan/shadchat/internal/provider"

// Static pricing tables, USD per million tokens. Tier order matters:
// "chatgpt-4o" must be checked before "gpt-4o", and "gpt-4-turbo" before
// "gpt-4" (substring matching, first hit wins).

var openAIPricing = provider.PriceTable{
	Tiers: []provider.PriceTier{
		{Match: "chatgpt-4o", Input: 5, Output: 15},
		{Match: "gpt-4o-mini", Input: 0.15, Output: 0.60},
		{Match: "gpt-4o", Input: 2.50, Output: 10},
		{Match: "gpt-4-turbo", Input: 10, Output: 30},
		{Match: "gpt-4", Input: 30, Output: 60},
		{Match: "gpt-3.5-turbo", Input: 0.50, Output: 1.50},
		{Match: "o1-mini", Input: 3, Output: 12},
		{Match: "o1", Input: 15, Output: 60},
	},
	Default: provider.PriceTier{Input: 2.50, Output: 10},
}

var xaiPricing = provider.PriceTable{
	Tiers: []provider.PriceTier{
		{Match: "grok-2-vision", Input: 2, Output: 10},
		{Match: "grok-2", Input: 2, Output: 10},
		{Match: "grok-vision-beta", Input: 5, Output: 15},
		{Match: "grok-beta", Input: 5, Output: 15},
	},
	Default: provider.PriceTier{Input: 5, Output: 15},
}

var groqPricing = provider.PriceTable{
	Tiers: []provider.PriceTier{
		{Match: "llama-3.3-70b", Input: 0.59, Output: 0.79},
		{Match: "llama-3.1-70b", Input: 0.59, Output: 0.79},
		{Match: "llama-3.1-8b", Input: 0.05, Output: 0.08},
		{Match: "llama3-70b", Input: 0.59, Output: 0.79},
		{Match: "llama3-8b", Input: 0.05, Output: 0.08},
		{Match: "mixtral-8x7b", Input: 0.24, Output: 0.24},
		{Match: "gemma2-9b", Input: 0.20, Output: 0.20},
		{Match: "gemma-7b", Input: 0.07, Output: 0.07},
	},
	Default: provider.PriceTier{Input: 0.59, Output: 0.79},
}

// OpenRouter fronts hundreds of upstream models; per-model pricing comes
// from its catalog at fetch time, so the static table only knows the
// OpenRouter-native ids and a generic default for everything namespaced.
var openRouterPricing = provider.PriceTable{
	Tiers: []provider.PriceTier{
		{Match: ":free", Input: 0, Output: 0},
		{Match: "openrouter/auto", Input: 5, Output: 15},
	},
	Default: provider.PriceTier{Input: 1, Output: 3},
}
