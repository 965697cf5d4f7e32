package pricing

import (
	"strings"

	"sellconfig/internal/apperr"
)

// Option is an admin-defined priced factor offered by a workflow step,
// e.g. a defect or an accessory. Evaluations reference it by Key.
type Option struct {
	Key   string `json:"key" yaml:"key"`
	Step  string `json:"step" yaml:"step"`
	Label string `json:"label" yaml:"label"`
	Delta Delta  `json:"delta" yaml:"delta"`
}

// Adjustment returns the option as an evaluable adjustment.
func (o Option) Adjustment() Adjustment {
	return Adjustment{Label: o.Label, Delta: o.Delta}
}

// ValidateOptions checks keys are present, trimmed and unique and every
// delta is valid.
// validStep reports whether a step key may offer options.
func ValidateOptions(options []Option, validStep func(string) bool) error {
	seen := make(map[string]struct{}, len(options))
	for i, o := range options {
		key := strings.TrimSpace(o.Key)
		if key == "" {
			return apperr.New(apperr.KindInvalidInput, "option %d: key is required", i)
		}
		if key != o.Key {
			return apperr.New(apperr.KindInvalidInput, "option %d: key %q has surrounding whitespace", i, o.Key)
		}
		if _, dup := seen[key]; dup {
			return apperr.New(apperr.KindInvalidInput, "option key %q is duplicated", key)
		}
		seen[key] = struct{}{}
		if validStep != nil && !validStep(o.Step) {
			return apperr.New(apperr.KindInvalidEnum, "option %q: step %q cannot offer options", key, o.Step)
		}
		if err := o.Delta.Validate(); err != nil {
			return apperr.New(apperr.KindOf(err), "option %q: %v", key, err)
		}
	}
	return nil
}

// ResolveOptions maps keys to adjustments, keeping the order of keys.
func ResolveOptions(options []Option, keys []string) ([]Adjustment, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	byKey := make(map[string]Option, len(options))
	for _, o := range options {
		byKey[o.Key] = o
	}
	out := make([]Adjustment, 0, len(keys))
	for _, k := range keys {
		o, ok := byKey[strings.TrimSpace(k)]
		if !ok {
			return nil, apperr.New(apperr.KindInvalidInput, "unknown option %q", k)
		}
		out = append(out, o.Adjustment())
	}
	return out, nil
}
