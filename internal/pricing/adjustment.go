package pricing

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"sellconfig/internal/apperr"
)

// DeltaType says how an adjustment value is interpreted.
type DeltaType string

const (
	DeltaPercent  DeltaType = "percent"
	DeltaAbsolute DeltaType = "absolute"
)

// Sign carries the direction of an adjustment.
type Sign string

const (
	SignPlus  Sign = "+"
	SignMinus Sign = "-"
)

// ParseDeltaType accepts the wire names plus the "abs" shorthand.
func ParseDeltaType(s string) (DeltaType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(DeltaPercent), "pct", "%":
		return DeltaPercent, nil
	case string(DeltaAbsolute), "abs":
		return DeltaAbsolute, nil
	}
	return "", apperr.New(apperr.KindInvalidEnum, "delta type %q must be percent or absolute", s)
}

// ParseSign accepts "+" or "-".
func ParseSign(s string) (Sign, error) {
	switch strings.TrimSpace(s) {
	case string(SignPlus):
		return SignPlus, nil
	case string(SignMinus):
		return SignMinus, nil
	}
	return "", apperr.New(apperr.KindInvalidEnum, "sign %q must be + or -", s)
}

// Delta is the priced effect of one factor. Value is never negative.
type Delta struct {
	Type  DeltaType `json:"type" yaml:"type"`
	Sign  Sign      `json:"sign" yaml:"sign"`
	Value float64   `json:"value" yaml:"value"`
}

// Adjustment is a single named price delta, e.g. a defect penalty.
type Adjustment struct {
	Label string `json:"label" yaml:"label"`
	Delta Delta  `json:"delta" yaml:"delta"`
}

// NewAdjustment validates and builds an adjustment.
func NewAdjustment(label string, typ DeltaType, sign Sign, value float64) (Adjustment, error) {
	a := Adjustment{Label: label, Delta: Delta{Type: typ, Sign: sign, Value: value}}
	if err := a.Validate(); err != nil {
		return Adjustment{}, err
	}
	return a, nil
}

// Validate checks the enum fields, then the value.
func (a Adjustment) Validate() error {
	return a.Delta.Validate()
}

func (d Delta) Validate() error {
	switch d.Type {
	case DeltaPercent, DeltaAbsolute:
	default:
		return apperr.New(apperr.KindInvalidEnum, "delta type %q must be percent or absolute", d.Type)
	}
	switch d.Sign {
	case SignPlus, SignMinus:
	default:
		return apperr.New(apperr.KindInvalidEnum, "sign %q must be + or -", d.Sign)
	}
	if math.IsNaN(d.Value) || math.IsInf(d.Value, 0) {
		return apperr.New(apperr.KindInvalidAdjustment, "delta value must be a finite number")
	}
	if d.Value < 0 {
		return apperr.New(apperr.KindInvalidAdjustment, "delta value %v must not be negative; use sign for direction", d.Value)
	}
	return nil
}

// amount is the signed monetary delta relative to base.
func (d Delta) amount(base decimal.Decimal) decimal.Decimal {
	v := decimal.NewFromFloat(d.Value)
	if d.Type == DeltaPercent {
		v = base.Mul(v).Div(hundred)
	}
	if d.Sign == SignMinus {
		return v.Neg()
	}
	return v
}
