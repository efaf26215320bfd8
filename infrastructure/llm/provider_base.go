package llm

import "sync"

// DefaultMaxTokens bounds response length when callers do not specify
// a max_tokens option.
const DefaultMaxTokens = 1024

// BaseProvider supplies thread-safe model-name handling shared by all
// provider implementations.
type BaseProvider struct {
	mu    sync.RWMutex
	model string
}

// GetModel returns the configured model name.
func (b *BaseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// RequestOptions is the provider-agnostic subset of request settings
// extracted from the options map.
type RequestOptions struct {
	MaxTokens   int
	Model       string
	Temperature *float64
}

// ParseRequestOptions extracts standardized request parameters from an
// options map, applying defaults for missing or invalid entries.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	options := RequestOptions{
		MaxTokens: DefaultMaxTokens,
		Model:     defaultModel,
	}

	if v, ok := opts["max_tokens"].(int); ok && v > 0 {
		options.MaxTokens = v
	}
	if v, ok := opts["model"].(string); ok && v != "" {
		options.Model = v
	}
	if v, ok := opts["temperature"].(float64); ok && v >= 0 && v <= 2 {
		options.Temperature = &v
	}

	return options
}

// clamp restricts a float64 value to a range.
func clamp(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
