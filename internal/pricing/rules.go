package pricing

import (
	"math"

	"github.com/shopspring/decimal"

	"sellconfig/internal/apperr"
)

// RuleSet bounds and rounds the computed price of one product.
type RuleSet struct {
	RoundToNearest int      `json:"roundToNearest" yaml:"roundToNearest"`
	FloorPrice     float64  `json:"floorPrice" yaml:"floorPrice"`
	CapPrice       *float64 `json:"capPrice,omitempty" yaml:"capPrice,omitempty"`
	MinPercent     float64  `json:"minPercent" yaml:"minPercent"`
	MaxPercent     float64  `json:"maxPercent" yaml:"maxPercent"`
}

// DefaultRuleSet is applied to new products and on reset.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		RoundToNearest: 10,
		FloorPrice:     0,
		MinPercent:     -90,
		MaxPercent:     50,
	}
}

// SetRules validates candidate as a whole and returns an independent copy.
// Invalid candidates are rejected without partial application.
func SetRules(candidate RuleSet) (RuleSet, error) {
	if err := candidate.Validate(); err != nil {
		return RuleSet{}, err
	}
	return candidate.Clone(), nil
}

// Clone copies the rule set including the cap pointer.
func (r RuleSet) Clone() RuleSet {
	out := r
	if r.CapPrice != nil {
		c := *r.CapPrice
		out.CapPrice = &c
	}
	return out
}

// HasCap reports whether a maximum price is configured.
func (r RuleSet) HasCap() bool { return r.CapPrice != nil }

func (r RuleSet) Validate() error {
	if r.RoundToNearest < 1 {
		return apperr.New(apperr.KindInvalidRuleSet, "roundToNearest must be at least 1, got %d", r.RoundToNearest)
	}
	for _, f := range []struct {
		name string
		v    float64
	}{{"floorPrice", r.FloorPrice}, {"minPercent", r.MinPercent}, {"maxPercent", r.MaxPercent}} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return apperr.New(apperr.KindInvalidRuleSet, "%s must be a finite number", f.name)
		}
	}
	if r.FloorPrice < 0 {
		return apperr.New(apperr.KindInvalidRuleSet, "floorPrice must not be negative, got %v", r.FloorPrice)
	}
	if r.MinPercent > r.MaxPercent {
		return apperr.New(apperr.KindInvalidRuleSet, "minPercent %v exceeds maxPercent %v", r.MinPercent, r.MaxPercent)
	}
	if r.CapPrice == nil {
		return nil
	}
	capPrice := *r.CapPrice
	if math.IsNaN(capPrice) || math.IsInf(capPrice, 0) {
		return apperr.New(apperr.KindInvalidRuleSet, "capPrice must be a finite number")
	}
	if r.FloorPrice > capPrice {
		return apperr.New(apperr.KindInvalidRuleSet, "floorPrice %v exceeds capPrice %v", r.FloorPrice, capPrice)
	}
	step := decimal.NewFromInt(int64(r.RoundToNearest))
	lowest := ceilToMultiple(decimal.NewFromFloat(r.FloorPrice), step)
	if lowest.GreaterThan(decimal.NewFromFloat(capPrice)) {
		return apperr.New(apperr.KindInvalidRuleSet, "no multiple of %d lies between floorPrice %v and capPrice %v", r.RoundToNearest, r.FloorPrice, capPrice)
	}
	return nil
}
