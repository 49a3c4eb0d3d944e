// Package config provides the configuration structures for medication spotting.
// It defines the target vocabulary, negation triggers and context defaults
// consumed by the matcher bank and the scan engine.
package config

import (
	"fmt"
	"strings"

	"github.com/gcbaptista/medlex-spotter/internal/errors"
)

const (
	// DefaultDosageUnits matches the unit word following a dose number.
	DefaultDosageUnits = `(?:mg|g|iu|units|u)`
	// DefaultForms matches medication form words.
	DefaultForms = `(?:tab(?:let)?s?|xr|er|sr|inj|inject(?:ion)?|pen|vial)`
	// DefaultNegationPattern is used when the configuration supplies no patterns.
	DefaultNegationPattern = `\b(no|not|without|stop|stopped|discontinued|allergic to|avoid|denies)\b`
	// DefaultNegationWindow is the radius, in characters, searched for negation cues.
	DefaultNegationWindow = 40
	// DefaultContextWindow is the radius used for display context and context scoring.
	DefaultContextWindow = 30
)

// Defaults holds regex fragments shared by all targets.
type Defaults struct {
	DosageUnits string `json:"dosage_units"` // e.g. (?:mg|g|iu|units|u)
	Forms       string `json:"forms"`        // e.g. (?:tab(?:let)?s?|xr|er|sr)
}

// Negation holds the negation trigger patterns, applied in order, and the
// window radius around a hit in which they are searched.
type Negation struct {
	Patterns []string `json:"patterns"`
	Window   *int     `json:"window,omitempty"` // nil means DefaultNegationWindow; 0 searches the hit only
}

// Radius returns the configured window, or DefaultNegationWindow when unset.
func (n Negation) Radius() int {
	if n.Window == nil {
		return DefaultNegationWindow
	}
	return *n.Window
}

// Target is one medication to spot.
type Target struct {
	Canonical        string   `json:"canonical"`                   // Identifier, stored uppercase (e.g. "METFORMIN")
	Terms            []string `json:"terms"`                       // Surface forms, matched verbatim on word boundaries
	Fuzzy            *int     `json:"fuzzy,omitempty"`             // Optional similarity threshold 0-100; enables the fuzzy matcher
	GeneratePhonetic bool     `json:"generate_phonetic,omitempty"` // Enables the phonetic matcher
	ShortTokenGuard  bool     `json:"short_token_guard,omitempty"` // Reserved; accepted and ignored
}

// FlagKey returns the result column name for the target, e.g. "has_metformin".
func (t Target) FlagKey() string {
	return FlagKey(t.Canonical)
}

// FlagKey returns the result column name for a canonical.
func FlagKey(canonical string) string {
	return "has_" + strings.ToLower(canonical)
}

// Config is the complete build-time configuration. It is read-only once the
// engine has been built from it.
type Config struct {
	Defaults Defaults `json:"defaults"`
	Negation Negation `json:"negation"`
	Targets  []Target `json:"targets"`
}

// ApplyDefaults applies default values to the configuration
func (c *Config) ApplyDefaults() {
	if c.Defaults.DosageUnits == "" {
		c.Defaults.DosageUnits = DefaultDosageUnits
	}
	if c.Defaults.Forms == "" {
		c.Defaults.Forms = DefaultForms
	}
	if len(c.Negation.Patterns) == 0 {
		c.Negation.Patterns = []string{DefaultNegationPattern}
	}
	if c.Negation.Window == nil {
		window := DefaultNegationWindow
		c.Negation.Window = &window
	}

	for i := range c.Targets {
		c.Targets[i].Canonical = strings.ToUpper(strings.TrimSpace(c.Targets[i].Canonical))
		if c.Targets[i].Terms == nil {
			c.Targets[i].Terms = []string{}
		}
	}
}

// Validate checks the configuration for problems that would prevent building
// a matcher bank. It returns a *errors.ConfigError naming the first offending
// field, or nil.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return errors.NewConfigError("targets", "at least one target is required")
	}
	if c.Negation.Radius() < 0 {
		return errors.NewConfigError("negation.window", "must not be negative")
	}

	seen := make(map[string]int, len(c.Targets))
	for i, t := range c.Targets {
		field := fmt.Sprintf("targets[%d]", i)
		canonical := strings.ToUpper(strings.TrimSpace(t.Canonical))
		if canonical == "" {
			return errors.NewConfigError(field+".canonical", "each target needs a non-empty 'canonical'")
		}
		if len(t.Terms) == 0 {
			return errors.NewConfigError(field+".terms", fmt.Sprintf("target '%s' needs a non-empty 'terms' list", canonical))
		}
		if t.Fuzzy != nil && (*t.Fuzzy < 0 || *t.Fuzzy > 100) {
			return errors.NewConfigError(field+".fuzzy", fmt.Sprintf("must be between 0 and 100, got %d", *t.Fuzzy))
		}
		if prev, dup := seen[canonical]; dup {
			return errors.NewConfigError(field+".canonical",
				fmt.Sprintf("duplicate canonical '%s' (already defined by targets[%d])", canonical, prev))
		}
		seen[canonical] = i
	}

	return nil
}

// Canonicals returns the canonical names in configuration order.
func (c *Config) Canonicals() []string {
	out := make([]string, len(c.Targets))
	for i, t := range c.Targets {
		out[i] = strings.ToUpper(strings.TrimSpace(t.Canonical))
	}
	return out
}
