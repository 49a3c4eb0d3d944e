package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/gcbaptista/medlex-spotter/internal/errors"
)

const (
	maxConfigFileSize = 4 * 1024 * 1024 // 4MB

	// EnvPrefix is the prefix of environment variables that override scalar settings.
	EnvPrefix = "MEDLEX_"
)

// envOverridable lists the keys environment variables may set. Lists such as
// targets and negation patterns can only come from the YAML document.
var envOverridable = map[string]bool{
	"defaults.dosage_units": true,
	"defaults.forms":        true,
	"negation.window":       true,
}

// Load reads a YAML target configuration from path, applies environment
// overrides and defaults, and validates it.
//
// Environment variables use the MEDLEX_ prefix and split section from field
// on the first underscore:
//
//	MEDLEX_DEFAULTS_DOSAGE_UNITS -> defaults.dosage_units
//	MEDLEX_NEGATION_WINDOW       -> negation.window
//
// Every failure is returned as a *errors.ConfigError.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.WrapConfigError("", "cannot read config file "+path, err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, errors.NewConfigError("", fmt.Sprintf("config file %s exceeds %d bytes", path, maxConfigFileSize))
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfigError("", "cannot read config file "+path, err)
	}
	return Parse(content)
}

// Parse builds a validated Config from YAML content.
func Parse(content []byte) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, errors.WrapConfigError("", "top-level YAML must be a mapping", err)
	}
	if err := normalizeNegation(k); err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.WrapConfigError("", "failed to load environment overrides", err)
	}

	cfg, err := fromKoanf(k)
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps MEDLEX_DEFAULTS_FORMS to defaults.forms. Unknown keys return ""
// so the provider skips them.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) != 2 {
		return ""
	}
	key := parts[0] + "." + parts[1]
	if !envOverridable[key] {
		return ""
	}
	return key
}

// normalizeNegation rewrites the bare-list and single-string forms of the
// negation section into {patterns: ...}, so that a MEDLEX_NEGATION_WINDOW
// override merges next to the patterns instead of replacing them.
func normalizeNegation(k *koanf.Koanf) error {
	switch v := k.Get("negation").(type) {
	case []interface{}, string:
		k.Delete("negation")
		if err := k.Set("negation.patterns", asStringList(v)); err != nil {
			return errors.WrapConfigError("negation", "cannot normalize negation patterns", err)
		}
	}
	return nil
}

// fromKoanf converts the loosely typed document into a Config, reporting
// shape problems as ConfigErrors.
func fromKoanf(k *koanf.Koanf) (*Config, error) {
	cfg := &Config{}

	if err := parseDefaults(k.Get("defaults"), &cfg.Defaults); err != nil {
		return nil, err
	}
	if err := parseNegation(k.Get("negation"), &cfg.Negation); err != nil {
		return nil, err
	}

	rawTargets := k.Get("targets")
	if rawTargets == nil {
		return nil, errors.NewConfigError("targets", "config must have a 'targets' list")
	}
	list, ok := rawTargets.([]interface{})
	if !ok {
		return nil, errors.NewConfigError("targets", fmt.Sprintf("must be a list, got %T", rawTargets))
	}
	if len(list) == 0 {
		return nil, errors.NewConfigError("targets", "at least one target is required")
	}

	cfg.Targets = make([]Target, 0, len(list))
	for i, raw := range list {
		t, err := parseTarget(i, raw)
		if err != nil {
			return nil, err
		}
		cfg.Targets = append(cfg.Targets, t)
	}
	return cfg, nil
}

func parseDefaults(raw interface{}, out *Defaults) error {
	if raw == nil {
		return nil
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return errors.NewConfigError("defaults", fmt.Sprintf("must be a mapping, got %T", raw))
	}
	if v, ok := m["dosage_units"]; ok && v != nil {
		out.DosageUnits = fmt.Sprint(v)
	}
	if v, ok := m["forms"]; ok && v != nil {
		out.Forms = fmt.Sprint(v)
	}
	return nil
}

func parseNegation(raw interface{}, out *Negation) error {
	switch v := raw.(type) {
	case nil:
		return nil
	case []interface{}:
		out.Patterns = asStringList(v)
		return nil
	case string:
		out.Patterns = asStringList(v)
		return nil
	case map[string]interface{}:
		out.Patterns = asStringList(v["patterns"])
		if w, ok := v["window"]; ok && w != nil {
			window, err := asInt(w)
			if err != nil {
				return errors.WrapConfigError("negation.window", "must be an integer", err)
			}
			out.Window = &window
		}
		return nil
	default:
		return errors.NewConfigError("negation", fmt.Sprintf("must be a mapping or a list, got %T", raw))
	}
}

func parseTarget(i int, raw interface{}) (Target, error) {
	field := fmt.Sprintf("targets[%d]", i)

	m, ok := raw.(map[string]interface{})
	if !ok {
		return Target{}, errors.NewConfigError(field, fmt.Sprintf("target entries must be mappings, got %T", raw))
	}

	canonical := asString(m["canonical"])
	if canonical == "" {
		canonical = asString(m["canon"])
	}
	terms := asStringList(m["terms"])
	if strings.TrimSpace(canonical) == "" || len(terms) == 0 {
		return Target{}, errors.NewConfigError(field,
			fmt.Sprintf("each target needs 'canonical' and non-empty 'terms', problematic entry: %v", m))
	}

	t := Target{
		Canonical: strings.ToUpper(strings.TrimSpace(canonical)),
		Terms:     terms,
	}

	if v, ok := m["fuzzy"]; ok && v != nil {
		fuzzy, err := asInt(v)
		if err != nil {
			return Target{}, errors.WrapConfigError(field+".fuzzy", "'fuzzy' must be an integer", err)
		}
		t.Fuzzy = &fuzzy
	}

	var err error
	if t.GeneratePhonetic, err = asBool(m["generate_phonetic"]); err != nil {
		return Target{}, errors.WrapConfigError(field+".generate_phonetic", "must be a boolean", err)
	}
	if t.ShortTokenGuard, err = asBool(m["short_token_guard"]); err != nil {
		return Target{}, errors.WrapConfigError(field+".short_token_guard", "must be a boolean", err)
	}

	return t, nil
}

func asString(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// asStringList accepts a list or a single scalar.
func asStringList(v interface{}) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, item := range x {
			out = append(out, asString(item))
		}
		return out
	case []string:
		return append([]string(nil), x...)
	default:
		return []string{asString(x)}
	}
}

// asInt coerces YAML and environment scalars to an integer. Floats are
// truncated toward zero.
func asInt(v interface{}) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case uint64:
		return int(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("invalid number %v", x)
		}
		return int(x), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q", x)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func asBool(v interface{}) (bool, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, fmt.Errorf("cannot parse %q", x)
		}
		return b, nil
	case int:
		return x != 0, nil
	default:
		return false, fmt.Errorf("unsupported type %T", v)
	}
}
