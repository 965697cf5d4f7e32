package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"sellconfig/internal/apperr"
	"sellconfig/internal/config"
	"sellconfig/internal/pricing"
)

func TestParseAdjustment(t *testing.T) {
	cases := []struct {
		raw   string
		label string
		delta pricing.Delta
	}{
		{"Good Condition:-10%", "Good Condition", pricing.Delta{Type: pricing.DeltaPercent, Sign: pricing.SignMinus, Value: 10}},
		{"Charger:+200", "Charger", pricing.Delta{Type: pricing.DeltaAbsolute, Sign: pricing.SignPlus, Value: 200}},
		{"Grade: A:-2.5%", "Grade: A", pricing.Delta{Type: pricing.DeltaPercent, Sign: pricing.SignMinus, Value: 2.5}},
		{"Battery:-5pct", "Battery", pricing.Delta{Type: pricing.DeltaPercent, Sign: pricing.SignMinus, Value: 5}},
		{"Case:+30 abs", "Case", pricing.Delta{Type: pricing.DeltaAbsolute, Sign: pricing.SignPlus, Value: 30}},
	}
	for _, tc := range cases {
		adj, err := parseAdjustment(tc.raw)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.raw, err)
		}
		if adj.Label != tc.label || adj.Delta != tc.delta {
			t.Fatalf("parse %q = %+v", tc.raw, adj)
		}
	}
}

func TestParseAdjustmentErrors(t *testing.T) {
	if _, err := parseAdjustment("no-delta"); err == nil {
		t.Fatalf("expected error for missing delta")
	}
	for _, raw := range []string{"Screen Crack: ", "Screen Crack:", ":-10%", "x:-"} {
		if _, err := parseAdjustment(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
	if _, err := parseAdjustment("x:+5kg"); !errors.Is(err, apperr.ErrInvalidEnum) {
		t.Fatalf("expected invalid enum for unknown unit, got %v", err)
	}
	if _, err := parseAdjustment("x:*10"); !errors.Is(err, apperr.ErrInvalidEnum) {
		t.Fatalf("expected invalid enum, got %v", err)
	}
	if _, err := parseAdjustment("x:+abc"); err == nil {
		t.Fatalf("expected error for bad value")
	}
}

func TestSetEnvValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("A=1\nSELLCTL_JWT_SECRET=old\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := setEnvValue(path, "SELLCTL_JWT_SECRET", "new"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := setEnvValue(path, "B", "2"); err != nil {
		t.Fatalf("set: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), "A=1\nSELLCTL_JWT_SECRET=new\nB=2\n"; got != want {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestPriceRemoteSendsWireAdjustments(t *testing.T) {
	var got struct {
		BasePrice   float64 `json:"basePrice"`
		Adjustments []struct {
			Label string `json:"label"`
			Delta struct {
				Type  string  `json:"type"`
				Sign  string  `json:"sign"`
				Value float64 `json:"value"`
			} `json:"delta"`
		} `json:"adjustments"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/admin/sell-config/iphone-13/test-pricing" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"basePrice": 1000, "totalAdjustment": -100, "rawPrice": 900, "finalPrice": 900,
				"breakdown": []map[string]any{{"label": "Good", "delta": map[string]any{"type": "percent", "sign": "-", "value": 10}, "amount": -100}},
			},
		})
	}))
	defer srv.Close()

	cmd := priceCmd()
	cmd.SetArgs([]string{"iphone-13", "--base", "1000", "-a", "Good:-10%", "--remote", srv.URL + "/api/admin", "--token", "tok"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("price: %v", err)
	}
	if got.BasePrice != 1000 || len(got.Adjustments) != 1 {
		t.Fatalf("unexpected body %+v", got)
	}
	a := got.Adjustments[0]
	if a.Label != "Good" || a.Delta.Type != "percent" || a.Delta.Sign != "-" || a.Delta.Value != 10 {
		t.Fatalf("unexpected adjustment %+v", a)
	}
}

func TestDefaultsCheck(t *testing.T) {
	ws := t.TempDir()
	viper.Set("workspace", ws)
	defer viper.Set("workspace", "")

	cmd := defaultsCheckCmd()
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "defaults init") {
		t.Fatalf("expected missing file error, got %v", err)
	}

	broken := filepath.Join(ws, "broken.yml")
	body := strings.Replace(config.GenerateDefault(), "roundToNearest: 10", "roundToNearest: 0", 1)
	if err := os.WriteFile(broken, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cmd = defaultsCheckCmd()
	cmd.SetArgs([]string{"-f", broken})
	if err := cmd.Execute(); !errors.Is(err, apperr.ErrInvalidRuleSet) {
		t.Fatalf("expected invalid rule set, got %v", err)
	}

	if err := os.WriteFile(config.Path(ws), []byte(config.GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	cmd = defaultsCheckCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out.String(), "ok: 5 steps") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestExecuteReportsErrorsOnStderr(t *testing.T) {
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"--no-such-flag"})
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()

	if code := execute(context.Background(), &stderr); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "error: unknown flag") {
		t.Fatalf("expected error on stderr, got %q", stderr.String())
	}
	if strings.Contains(stdout.String(), "error") {
		t.Fatalf("error leaked to stdout: %q", stdout.String())
	}
	if n := strings.Count(stderr.String(), "unknown flag"); n != 1 {
		t.Fatalf("expected a single error report, got %d in %q", n, stderr.String())
	}
}
