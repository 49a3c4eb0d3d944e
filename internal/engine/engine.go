package engine

import (
	"sort"

	"github.com/gcbaptista/medlex-spotter/config"
	"github.com/gcbaptista/medlex-spotter/internal/classify"
	"github.com/gcbaptista/medlex-spotter/internal/errors"
	"github.com/gcbaptista/medlex-spotter/internal/matcher"
	"github.com/gcbaptista/medlex-spotter/model"
)

// Engine scans notes against a compiled target vocabulary.
// It implements the services.Scanner interface.
//
// An Engine is immutable once built and safe for concurrent use: the matcher
// bank and classifiers are shared read-only by every Scan call.
type Engine struct {
	bank     *matcher.Bank
	negation *classify.Negation
	context  *classify.Context
	display  int
	flagKeys map[string]string // canonical -> has_<canonical>
	sorted   []string
}

type options struct {
	negationWindow int
	contextWindow  int
}

// Option customises an Engine.
type Option func(*options)

// WithNegationWindow overrides the configured negation radius.
func WithNegationWindow(radius int) Option {
	return func(o *options) { o.negationWindow = radius }
}

// WithContextWindow sets the radius used for both the display context and the
// context score (default 30).
func WithContextWindow(radius int) Option {
	return func(o *options) { o.contextWindow = radius }
}

// New builds the matcher bank and classifiers from cfg. cfg is not modified;
// defaults are applied to a copy. Any configuration problem is returned as a
// *errors.ConfigError before anything is compiled.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, errors.NewConfigError("", "configuration is required")
	}

	c := *cfg
	c.Targets = append([]config.Target(nil), cfg.Targets...)
	c.Negation.Patterns = append([]string(nil), cfg.Negation.Patterns...)
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	o := options{
		negationWindow: c.Negation.Radius(),
		contextWindow:  config.DefaultContextWindow,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.negationWindow < 0 {
		return nil, errors.NewConfigError("negation.window", "must not be negative")
	}
	if o.contextWindow < 0 {
		return nil, errors.NewConfigError("context.window", "must not be negative")
	}

	bank, err := matcher.Build(c.Targets)
	if err != nil {
		return nil, err
	}
	negation, err := classify.NewNegation(c.Negation.Patterns, o.negationWindow)
	if err != nil {
		return nil, err
	}
	scorer, err := classify.NewContext(c.Defaults.DosageUnits, c.Defaults.Forms, o.contextWindow)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		bank:     bank,
		negation: negation,
		context:  scorer,
		display:  o.contextWindow,
		flagKeys: make(map[string]string, bank.Len()),
	}
	for _, canonical := range bank.Canonicals() {
		key := config.FlagKey(canonical)
		e.flagKeys[canonical] = key
		e.sorted = append(e.sorted, key)
	}
	sort.Strings(e.sorted)

	return e, nil
}

// Scan runs every matcher over text and classifies each hit. Every canonical
// gets a flag, set to 1 when at least one of its hits is not negated. Every
// hit, negated or not, becomes a span, in discovery order. Span offsets
// count characters (runes), not bytes.
func (e *Engine) Scan(text string) model.NoteResult {
	result := model.NoteResult{
		Flags: make(map[string]int, len(e.flagKeys)),
		Spans: make([]model.Span, 0),
	}
	for _, key := range e.flagKeys {
		result.Flags[key] = 0
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return result
	}

	for _, entry := range e.bank.Entries() {
		key := e.flagKeys[entry.Canonical]
		for _, hit := range entry.FindAll(runes) {
			negated := e.negation.IsNegated(runes, hit.Start, hit.End)
			result.Spans = append(result.Spans, model.Span{
				Matched:      string(runes[hit.Start:hit.End]),
				Span:         [2]int{hit.Start, hit.End},
				Context:      classify.Snippet(runes, hit.Start, hit.End, e.display),
				Source:       hit.Canonical,
				IsNegated:    negated,
				Variant:      hit.Variant,
				Score:        hit.Score,
				Method:       string(hit.Method),
				ContextScore: e.context.Score(runes, hit.Start, hit.End),
			})
			if !negated {
				result.Flags[key] = 1
			}
		}
	}

	return result
}

// Canonicals returns the canonical names in configuration order.
func (e *Engine) Canonicals() []string {
	return e.bank.Canonicals()
}

// FlagKeys returns the has_<canonical> keys, sorted.
func (e *Engine) FlagKeys() []string {
	return append([]string(nil), e.sorted...)
}

// NegationWindow returns the radius searched for negation cues.
func (e *Engine) NegationWindow() int {
	return e.negation.Window()
}
