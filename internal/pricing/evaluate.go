package pricing

import (
	"math"

	"github.com/shopspring/decimal"

	"sellconfig/internal/apperr"
)

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.NewFromFloat(0.5)
)

// Bound names reported in Result.AppliedBounds.
const (
	BoundMinPercent = "minPercent"
	BoundMaxPercent = "maxPercent"
	BoundFloor      = "floorPrice"
	BoundCap        = "capPrice"
)

// BreakdownLine explains one adjustment's contribution.
type BreakdownLine struct {
	Label  string  `json:"label"`
	Delta  Delta   `json:"delta"`
	Amount float64 `json:"amount"`
}

// Result is the outcome of one evaluation. It is a pure function of the
// inputs and carries no hidden state.
type Result struct {
	BasePrice       float64         `json:"basePrice"`
	TotalAdjustment float64         `json:"totalAdjustment"`
	RawPrice        float64         `json:"rawPrice"`
	FinalPrice      float64         `json:"finalPrice"`
	Breakdown       []BreakdownLine `json:"breakdown"`
	AppliedBounds   []string        `json:"appliedBounds,omitempty"`
}

// Evaluate prices basePrice through the ordered adjustments under rules.
// A nil rules pointer is a configuration error, never a default.
func Evaluate(basePrice float64, adjustments []Adjustment, rules *RuleSet) (Result, error) {
	if rules == nil {
		return Result{}, apperr.New(apperr.KindMissingRuleSet, "no rule set configured")
	}
	if math.IsNaN(basePrice) || math.IsInf(basePrice, 0) || basePrice <= 0 {
		return Result{}, apperr.New(apperr.KindInvalidInput, "basePrice must be greater than zero, got %v", basePrice)
	}
	if err := rules.Validate(); err != nil {
		return Result{}, err
	}
	base := decimal.NewFromFloat(basePrice)
	total := decimal.Zero
	breakdown := make([]BreakdownLine, 0, len(adjustments))
	for i, adj := range adjustments {
		if err := adj.Validate(); err != nil {
			return Result{}, apperr.New(apperr.KindOf(err), "adjustment %d (%s): %v", i, adj.Label, err)
		}
		amt := adj.Delta.amount(base)
		total = total.Add(amt)
		breakdown = append(breakdown, BreakdownLine{
			Label:  adj.Label,
			Delta:  adj.Delta,
			Amount: amt.InexactFloat64(),
		})
	}
	raw := base.Add(total)

	var applied []string
	price := raw
	lower := base.Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(rules.MinPercent).Div(hundred)))
	upper := base.Mul(decimal.NewFromInt(1).Add(decimal.NewFromFloat(rules.MaxPercent).Div(hundred)))
	if price.LessThan(lower) {
		price = lower
		applied = append(applied, BoundMinPercent)
	}
	if price.GreaterThan(upper) {
		price = upper
		applied = append(applied, BoundMaxPercent)
	}

	floor := decimal.NewFromFloat(rules.FloorPrice)
	if price.LessThan(floor) {
		price = floor
		applied = append(applied, BoundFloor)
	}
	var capPrice decimal.Decimal
	if rules.CapPrice != nil {
		capPrice = decimal.NewFromFloat(*rules.CapPrice)
		if price.GreaterThan(capPrice) {
			price = capPrice
			applied = append(applied, BoundCap)
		}
	}

	step := decimal.NewFromInt(int64(rules.RoundToNearest))
	final := roundHalfUp(price, step)
	// Rounding may step past a bound; pull back to the nearest multiple inside.
	if rules.CapPrice != nil && final.GreaterThan(capPrice) {
		final = floorToMultiple(capPrice, step)
	}
	if final.LessThan(floor) {
		final = ceilToMultiple(floor, step)
	}

	return Result{
		BasePrice:       basePrice,
		TotalAdjustment: total.InexactFloat64(),
		RawPrice:        raw.InexactFloat64(),
		FinalPrice:      final.InexactFloat64(),
		Breakdown:       breakdown,
		AppliedBounds:   applied,
	}, nil
}

// roundHalfUp rounds v to the nearest multiple of step; ties go up.
func roundHalfUp(v, step decimal.Decimal) decimal.Decimal {
	return v.Div(step).Add(half).Floor().Mul(step)
}

func floorToMultiple(v, step decimal.Decimal) decimal.Decimal {
	return v.Div(step).Floor().Mul(step)
}

func ceilToMultiple(v, step decimal.Decimal) decimal.Decimal {
	return v.Div(step).Ceil().Mul(step)
}
