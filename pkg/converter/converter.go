// pkg/converter/converter.go
package converter

import (
	"strings"
)

// Converter coerces raw source cells into typed values. Every conversion
// yields either a valid value or nil; it never fails.
type Converter struct {
	config Config
	tokens map[string]struct{}
}

// Config provides configuration options for value conversion
type Config struct {
	// Cell values meaning "not reported" (compared after trimming)
	SentinelTokens []string
	// Decimal places kept for computed fractions
	RoundingPlaces int
	// Scheme prepended to websites that have none
	DefaultScheme string
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		SentinelTokens: []string{"."},
		RoundingPlaces: 4,
		DefaultScheme:  "https://",
	}
}

// New creates a Converter with default configuration
func New() *Converter {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a Converter with custom configuration
func NewWithConfig(config Config) *Converter {
	if config.RoundingPlaces <= 0 {
		config.RoundingPlaces = DefaultConfig().RoundingPlaces
	}
	if config.DefaultScheme == "" {
		config.DefaultScheme = DefaultConfig().DefaultScheme
	}

	tokens := make(map[string]struct{}, len(config.SentinelTokens))
	for _, token := range config.SentinelTokens {
		tokens[strings.TrimSpace(token)] = struct{}{}
	}

	return &Converter{
		config: config,
		tokens: tokens,
	}
}

// IsMissing reports whether a raw cell carries no value: empty, blank,
// or one of the configured sentinel tokens.
func (c *Converter) IsMissing(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return true
	}
	_, sentinel := c.tokens[trimmed]
	return sentinel
}

// Places returns the number of decimal places used for fractions
func (c *Converter) Places() int {
	return c.config.RoundingPlaces
}
