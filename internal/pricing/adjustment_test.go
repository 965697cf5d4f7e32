package pricing_test

import (
	"errors"
	"math"
	"testing"

	"sellconfig/internal/apperr"
	"sellconfig/internal/pricing"
)

func TestNewAdjustmentValidation(t *testing.T) {
	if _, err := pricing.NewAdjustment("Box", pricing.DeltaAbsolute, pricing.SignPlus, 0); err != nil {
		t.Fatalf("zero value should be accepted: %v", err)
	}
	if _, err := pricing.NewAdjustment("Crack", pricing.DeltaAbsolute, pricing.SignMinus, -5); !errors.Is(err, apperr.ErrInvalidAdjustment) {
		t.Fatalf("expected invalid adjustment, got %v", err)
	}
	if _, err := pricing.NewAdjustment("Crack", pricing.DeltaPercent, pricing.SignMinus, math.Inf(1)); !errors.Is(err, apperr.ErrInvalidAdjustment) {
		t.Fatalf("expected invalid adjustment for inf, got %v", err)
	}
	if _, err := pricing.NewAdjustment("Crack", "ratio", pricing.SignMinus, 5); !errors.Is(err, apperr.ErrInvalidEnum) {
		t.Fatalf("expected invalid enum for type, got %v", err)
	}
	if _, err := pricing.NewAdjustment("Crack", pricing.DeltaPercent, "~", 5); !errors.Is(err, apperr.ErrInvalidEnum) {
		t.Fatalf("expected invalid enum for sign, got %v", err)
	}
}

func TestParseDeltaTypeAndSign(t *testing.T) {
	for in, want := range map[string]pricing.DeltaType{"percent": pricing.DeltaPercent, "PCT": pricing.DeltaPercent, "abs": pricing.DeltaAbsolute, " absolute ": pricing.DeltaAbsolute} {
		got, err := pricing.ParseDeltaType(in)
		if err != nil || got != want {
			t.Fatalf("ParseDeltaType(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := pricing.ParseDeltaType("flat"); !errors.Is(err, apperr.ErrInvalidEnum) {
		t.Fatalf("expected invalid enum, got %v", err)
	}
	if s, err := pricing.ParseSign("-"); err != nil || s != pricing.SignMinus {
		t.Fatalf("ParseSign(-) = %q, %v", s, err)
	}
	if _, err := pricing.ParseSign("minus"); !errors.Is(err, apperr.ErrInvalidEnum) {
		t.Fatalf("expected invalid enum, got %v", err)
	}
}

func TestOptionsValidateAndResolve(t *testing.T) {
	offers := func(step string) bool { return step == "defects" || step == "accessories" }
	options := []pricing.Option{
		{Key: "screen-crack", Step: "defects", Label: "Screen Crack", Delta: pricing.Delta{Type: pricing.DeltaAbsolute, Sign: pricing.SignMinus, Value: 500}},
		{Key: "charger", Step: "accessories", Label: "Charger", Delta: pricing.Delta{Type: pricing.DeltaPercent, Sign: pricing.SignPlus, Value: 2}},
	}
	if err := pricing.ValidateOptions(options, offers); err != nil {
		t.Fatalf("validate: %v", err)
	}

	dup := append(append([]pricing.Option(nil), options...), options[0])
	if err := pricing.ValidateOptions(dup, offers); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input for duplicate, got %v", err)
	}
	padded := []pricing.Option{{Key: " crack ", Step: "defects", Label: "Crack", Delta: options[0].Delta}}
	if err := pricing.ValidateOptions(padded, offers); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input for padded key, got %v", err)
	}
	badStep := []pricing.Option{{Key: "k", Step: "summary", Label: "x", Delta: options[0].Delta}}
	if err := pricing.ValidateOptions(badStep, offers); !errors.Is(err, apperr.ErrInvalidEnum) {
		t.Fatalf("expected invalid enum for step, got %v", err)
	}
	badDelta := []pricing.Option{{Key: "k", Step: "defects", Label: "x", Delta: pricing.Delta{Type: pricing.DeltaAbsolute, Sign: pricing.SignMinus, Value: -1}}}
	if err := pricing.ValidateOptions(badDelta, offers); !errors.Is(err, apperr.ErrInvalidAdjustment) {
		t.Fatalf("expected invalid adjustment, got %v", err)
	}

	adjs, err := pricing.ResolveOptions(options, []string{"charger", "screen-crack"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(adjs) != 2 || adjs[0].Label != "Charger" || adjs[1].Label != "Screen Crack" {
		t.Fatalf("unexpected adjustments %+v", adjs)
	}
	adjs, err = pricing.ResolveOptions(options, []string{" charger "})
	if err != nil || len(adjs) != 1 || adjs[0].Label != "Charger" {
		t.Fatalf("resolve padded selection: %+v, %v", adjs, err)
	}
	if _, err := pricing.ResolveOptions(options, []string{"battery"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
