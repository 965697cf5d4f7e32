package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"sellconfig/internal/pricing"
	"sellconfig/internal/workflow"
)

func TestDefaultMatchesBuiltins(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if !reflect.DeepEqual(cfg.DefaultRules(), pricing.DefaultRuleSet()) {
		t.Fatalf("rules = %+v", cfg.DefaultRules())
	}
	if !reflect.DeepEqual(cfg.DefaultSteps(), workflow.DefaultSteps()) {
		t.Fatalf("steps = %+v", cfg.DefaultSteps())
	}
}

func TestFromYAMLRejectsInvalidDefaults(t *testing.T) {
	cases := map[string]string{
		"bad rules": `defaults:
  rules: {roundToNearest: 0, minPercent: 0, maxPercent: 0}
  steps: [{key: summary, title: Summary, order: 1}]`,
		"no steps": `defaults:
  rules: {roundToNearest: 10}`,
		"gap in steps": `defaults:
  rules: {roundToNearest: 10}
  steps: [{key: variant, title: V, order: 1}, {key: summary, title: S, order: 3}]`,
		"bad webhook": `defaults:
  rules: {roundToNearest: 10}
  steps: [{key: summary, title: S, order: 1}]
webhooks:
  - url: ftp://example.com`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromYAML([]byte(body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadOptional(t *testing.T) {
	ws := t.TempDir()
	cfg, err := LoadOptional(ws)
	if err != nil || cfg != nil {
		t.Fatalf("expected nil,nil for missing file, got %v, %v", cfg, err)
	}
	if _, err := Load(ws); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	body := strings.Replace(GenerateDefault(), "floorPrice: 0", "floorPrice: 100", 1)
	body = strings.Replace(body, "# capPrice: 50000", "capPrice: 50000", 1)
	if err := os.WriteFile(filepath.Join(ws, FileName), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(ws)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Defaults.Rules.FloorPrice != 100 || cfg.Defaults.Rules.CapPrice == nil || *cfg.Defaults.Rules.CapPrice != 50000 {
		t.Fatalf("unexpected rules %+v", cfg.Defaults.Rules)
	}
}
