package sellconfigsdk

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func defaultSteps() []Step {
	return []Step{
		{Key: StepVariant, Title: "Select Variant", Order: 1},
		{Key: StepDefects, Title: "Select Defects", Order: 2},
		{Key: StepSummary, Title: "Summary", Order: 3},
	}
}

func defaultRules() RuleSet {
	return RuleSet{RoundToNearest: 10, MinPercent: -90, MaxPercent: 50}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestTestPricingDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/admin/sell-config/iphone-13/test-pricing" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected auth header %q", got)
		}
		var body PricingRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.BasePrice != 10000 || len(body.Selected) != 1 {
			t.Errorf("unexpected body %+v", body)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"basePrice": 10000, "totalAdjustment": -1500, "rawPrice": 8500, "finalPrice": 8500},
		})
	}))
	defer srv.Close()

	c := New(srv.URL+"/api/admin", "tok")
	adj := Adjustment{Label: "Good Condition", Delta: Delta{Type: DeltaPercent, Sign: SignMinus, Value: 10}}
	res, err := c.TestPricing(context.Background(), "iphone-13", PricingRequest{
		BasePrice:   10000,
		Adjustments: []Adjustment{adj},
		Selected:    []string{"screen-crack"},
	})
	if err != nil {
		t.Fatalf("test pricing: %v", err)
	}
	if res.FinalPrice != 8500 || res.TotalAdjustment != -1500 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestLocalValidationSkipsNetwork(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}))
	defer srv.Close()
	c := New(srv.URL, "tok")
	ctx := context.Background()

	capPrice := 100.0
	rules := RuleSet{RoundToNearest: 10, FloorPrice: 500, CapPrice: &capPrice, MinPercent: -90, MaxPercent: 50}
	_, err := c.SaveSellConfig(ctx, SaveRequest{ProductID: "p1", Steps: defaultSteps(), Rules: rules})
	if !errors.Is(err, ErrInvalidRuleSet) {
		t.Fatalf("expected invalid rule set, got %v", err)
	}
	_, err = c.SaveSellConfig(ctx, SaveRequest{
		ProductID: "p1",
		Steps:     []Step{{Key: "payment", Title: "Pay", Order: 1}},
		Rules:     defaultRules(),
	})
	if !errors.Is(err, ErrInvalidEnum) {
		t.Fatalf("expected invalid enum, got %v", err)
	}
	_, err = c.SaveSellConfig(ctx, SaveRequest{
		ProductID: "p1",
		Steps:     defaultSteps(),
		Rules:     defaultRules(),
		Options:   []Option{{Key: "tip", Step: StepSummary, Label: "Tip", Delta: Delta{Type: DeltaAbsolute, Sign: SignPlus, Value: 1}}},
	})
	if !errors.Is(err, ErrInvalidEnum) {
		t.Fatalf("expected summary step to reject options, got %v", err)
	}
	_, err = c.TestPricing(ctx, "p1", PricingRequest{BasePrice: 100, Adjustments: []Adjustment{
		{Label: "bad", Delta: Delta{Type: DeltaAbsolute, Sign: SignMinus, Value: -5}},
	}})
	if !errors.Is(err, ErrInvalidAdjustment) {
		t.Fatalf("expected invalid adjustment, got %v", err)
	}
	_, err = c.TestPricing(ctx, "p1", PricingRequest{BasePrice: 0})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}
}

func TestAPIErrorCarriesKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"success": false,
			"code":    "version_conflict",
			"message": "version 2 does not match stored version 3",
		})
	}))
	defer srv.Close()
	c := New(srv.URL, "tok")

	_, err := c.SaveSellConfig(context.Background(), SaveRequest{
		ProductID: "p1",
		Steps:     defaultSteps(),
		Rules:     defaultRules(),
		Version:   2,
	})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T %v", err, err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Kind() != KindVersionConflict {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected errors.Is version conflict")
	}
	if IsRetryable(err) {
		t.Fatalf("409 should not be retryable")
	}
}

func TestNetworkErrorIsRetryable(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := New("http://"+addr, "tok")
	_, err = c.GetSellConfig(context.Background(), "p1")
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %T %v", err, err)
	}
	if !errors.Is(err, ErrNetwork) || !IsRetryable(err) {
		t.Fatalf("network error should match ErrNetwork and be retryable")
	}
}

func TestEventsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "5" || r.URL.Query().Get("cursor") != "42" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"items":      []map[string]any{{"id": 41, "type": "sellconfig.saved", "productId": "p1"}},
				"nextCursor": "41",
			},
		})
	}))
	defer srv.Close()
	page, err := New(srv.URL, "tok").Events(context.Background(), "p1", 5, "42")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != 41 || page.NextCursor != "41" {
		t.Fatalf("unexpected page %+v", page)
	}
}
