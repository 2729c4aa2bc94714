package session

import (
	"fmt"

	"github.com/Veraticus/fattura-reconcile/internal/common"
	"github.com/Veraticus/fattura-reconcile/internal/service"
)

// Config holds the matching policy knobs sent along with every matching request.
// The session does not interpret them.
type Config struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	MaxSuggestions      int     `json:"max_suggestions"`
	AutoApply           bool    `json:"auto_apply"`
	PatternLearning     bool    `json:"pattern_learning"`
}

// DefaultConfig returns the policy used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.8,
		AutoApply:           false,
		PatternLearning:     true,
		MaxSuggestions:      20,
	}
}

// ValidThreshold reports whether t is a confidence in [0,1]. NaN is not.
func ValidThreshold(t float64) bool {
	return t >= 0 && t <= 1
}

// Validate rejects values the backend would refuse.
func (c Config) Validate() error {
	if !ValidThreshold(c.ConfidenceThreshold) {
		return fmt.Errorf("%w: confidence threshold %.2f outside [0,1]", common.ErrInvalidConfig, c.ConfidenceThreshold)
	}
	if c.MaxSuggestions < 1 || c.MaxSuggestions > 100 {
		return fmt.Errorf("%w: max suggestions %d outside [1,100]", common.ErrInvalidConfig, c.MaxSuggestions)
	}
	return nil
}

// MatchOptions converts the config to the gateway's request options.
func (c Config) MatchOptions() service.MatchOptions {
	return service.MatchOptions{
		ConfidenceThreshold: c.ConfidenceThreshold,
		AutoApply:           c.AutoApply,
		PatternLearning:     c.PatternLearning,
		MaxSuggestions:      c.MaxSuggestions,
	}
}
