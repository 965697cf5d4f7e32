package sellconfigsdk

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Delta types and signs accepted by the API.
const (
	DeltaPercent  = "percent"
	DeltaAbsolute = "absolute"
	SignPlus      = "+"
	SignMinus     = "-"
)

// Step keys accepted by the API, in their default order.
const (
	StepVariant     = "variant"
	StepQuestions   = "questions"
	StepDefects     = "defects"
	StepAccessories = "accessories"
	StepSummary     = "summary"
)

var stepKeys = []string{StepVariant, StepQuestions, StepDefects, StepAccessories, StepSummary}

// Delta is the priced effect of one factor.
type Delta struct {
	Type  string  `json:"type"`
	Sign  string  `json:"sign"`
	Value float64 `json:"value"`
}

// Adjustment is a named price delta.
type Adjustment struct {
	Label string `json:"label"`
	Delta Delta  `json:"delta"`
}

// RuleSet bounds and rounds evaluated prices. CapPrice is optional.
type RuleSet struct {
	RoundToNearest int      `json:"roundToNearest"`
	FloorPrice     float64  `json:"floorPrice"`
	CapPrice       *float64 `json:"capPrice,omitempty"`
	MinPercent     float64  `json:"minPercent"`
	MaxPercent     float64  `json:"maxPercent"`
}

// Step is one screen of the seller flow. Orders run 1..n.
type Step struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Order int    `json:"order"`
}

// Option is a priced answer offered by a step.
type Option struct {
	Key   string `json:"key"`
	Step  string `json:"step"`
	Label string `json:"label"`
	Delta Delta  `json:"delta"`
}

// SellConfig is a product's stored configuration.
type SellConfig struct {
	ProductID string   `json:"productId"`
	Steps     []Step   `json:"steps"`
	Rules     RuleSet  `json:"rules"`
	Options   []Option `json:"options"`
	Version   int64    `json:"version"`
	UpdatedBy string   `json:"updatedBy,omitempty"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
}

// SellConfigSummary is one row of the product listing.
type SellConfigSummary struct {
	ProductID   string `json:"productId"`
	StepCount   int    `json:"stepCount"`
	OptionCount int    `json:"optionCount"`
	Version     int64  `json:"version"`
	UpdatedBy   string `json:"updatedBy,omitempty"`
	UpdatedAt   string `json:"updatedAt"`
}

// BreakdownLine explains one adjustment's contribution.
type BreakdownLine struct {
	Label  string  `json:"label"`
	Delta  Delta   `json:"delta"`
	Amount float64 `json:"amount"`
}

// PricingResult is the outcome of a test-pricing call.
type PricingResult struct {
	BasePrice       float64         `json:"basePrice"`
	TotalAdjustment float64         `json:"totalAdjustment"`
	RawPrice        float64         `json:"rawPrice"`
	FinalPrice      float64         `json:"finalPrice"`
	Breakdown       []BreakdownLine `json:"breakdown"`
	AppliedBounds   []string        `json:"appliedBounds,omitempty"`
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Validate mirrors the server's adjustment checks.
func (d Delta) Validate() error {
	if d.Type != DeltaPercent && d.Type != DeltaAbsolute {
		return newError(KindInvalidEnum, "delta type %q must be percent or absolute", d.Type)
	}
	if d.Sign != SignPlus && d.Sign != SignMinus {
		return newError(KindInvalidEnum, "sign %q must be + or -", d.Sign)
	}
	if !finite(d.Value) {
		return newError(KindInvalidAdjustment, "delta value must be a finite number")
	}
	if d.Value < 0 {
		return newError(KindInvalidAdjustment, "delta value %v must not be negative; use sign for direction", d.Value)
	}
	return nil
}

func (a Adjustment) Validate() error { return a.Delta.Validate() }

// Validate mirrors the server's rule checks, including that some multiple of
// RoundToNearest fits between floor and cap.
func (r RuleSet) Validate() error {
	if r.RoundToNearest < 1 {
		return newError(KindInvalidRuleSet, "roundToNearest must be at least 1, got %d", r.RoundToNearest)
	}
	if !finite(r.FloorPrice) || !finite(r.MinPercent) || !finite(r.MaxPercent) {
		return newError(KindInvalidRuleSet, "rule values must be finite numbers")
	}
	if r.FloorPrice < 0 {
		return newError(KindInvalidRuleSet, "floorPrice %v must not be negative", r.FloorPrice)
	}
	if r.MinPercent > r.MaxPercent {
		return newError(KindInvalidRuleSet, "minPercent %v exceeds maxPercent %v", r.MinPercent, r.MaxPercent)
	}
	if r.CapPrice == nil {
		return nil
	}
	cp := *r.CapPrice
	if !finite(cp) {
		return newError(KindInvalidRuleSet, "capPrice must be a finite number")
	}
	if r.FloorPrice > cp {
		return newError(KindInvalidRuleSet, "floorPrice %v exceeds capPrice %v", r.FloorPrice, cp)
	}
	step := float64(r.RoundToNearest)
	if math.Ceil(r.FloorPrice/step)*step > cp {
		return newError(KindInvalidRuleSet, "no multiple of %d lies between floorPrice %v and capPrice %v", r.RoundToNearest, r.FloorPrice, cp)
	}
	return nil
}

// ValidateSteps checks keys are known and orders are exactly 1..n.
func ValidateSteps(steps []Step) error {
	sorted := append([]Step(nil), steps...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	for i, s := range sorted {
		if !validStepKey(s.Key) {
			return newError(KindInvalidEnum, "step %d: key %q must be one of %s", i, s.Key, strings.Join(stepKeys, ", "))
		}
		if s.Order != i+1 {
			return newError(KindInvalidInput, "step orders must be contiguous from 1, got %d at position %d", s.Order, i+1)
		}
	}
	return nil
}

// ValidateOptions checks option keys are trimmed and unique, the step can
// offer options and every delta is valid.
func ValidateOptions(options []Option) error {
	seen := make(map[string]struct{}, len(options))
	for i, o := range options {
		key := strings.TrimSpace(o.Key)
		if key == "" {
			return newError(KindInvalidInput, "option %d: key is required", i)
		}
		if key != o.Key {
			return newError(KindInvalidInput, "option %d: key %q has surrounding whitespace", i, o.Key)
		}
		if _, dup := seen[key]; dup {
			return newError(KindInvalidInput, "option key %q is duplicated", key)
		}
		seen[key] = struct{}{}
		if !validStepKey(o.Step) || o.Step == StepSummary {
			return newError(KindInvalidEnum, "option %q: step %q cannot offer options", key, o.Step)
		}
		if err := o.Delta.Validate(); err != nil {
			return newError(KindOf(err), "option %q: %v", key, err)
		}
	}
	return nil
}

func validStepKey(k string) bool {
	for _, s := range stepKeys {
		if s == k {
			return true
		}
	}
	return false
}

// Kind classifies a failure; values match the server's error codes.
type Kind string

const (
	KindInvalidAdjustment Kind = "invalid_adjustment"
	KindInvalidEnum       Kind = "invalid_enum"
	KindInvalidRuleSet    Kind = "invalid_rule_set"
	KindInvalidInput      Kind = "invalid_input"
	KindMissingRuleSet    Kind = "missing_rule_set"
	KindIndexOutOfRange   Kind = "index_out_of_range"
	KindVersionConflict   Kind = "version_conflict"
	KindNotFound          Kind = "not_found"
	KindNetwork           Kind = "network_error"
)

// Sentinels for errors.Is. They match local validation errors, APIError
// values carrying the same code and, for ErrNetwork, NetworkError.
var (
	ErrInvalidAdjustment = &Error{Kind: KindInvalidAdjustment}
	ErrInvalidEnum       = &Error{Kind: KindInvalidEnum}
	ErrInvalidRuleSet    = &Error{Kind: KindInvalidRuleSet}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrMissingRuleSet    = &Error{Kind: KindMissingRuleSet}
	ErrIndexOutOfRange   = &Error{Kind: KindIndexOutOfRange}
	ErrVersionConflict   = &Error{Kind: KindVersionConflict}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrNetwork           = &Error{Kind: KindNetwork}
)

// Error is a classified failure raised before a request is sent.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return e.Msg
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind carried by err, or "".
func KindOf(err error) Kind {
	switch e := err.(type) {
	case *Error:
		return e.Kind
	case *APIError:
		return e.Kind()
	case *NetworkError:
		return KindNetwork
	}
	return ""
}
