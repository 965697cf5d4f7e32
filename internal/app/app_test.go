package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sellconfig/internal/config"
)

func TestOpenUsesBuiltinDefaults(t *testing.T) {
	ws := t.TempDir()
	rt, err := Open(context.Background(), ws, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	if rt.SchemaVersion != 1 {
		t.Fatalf("expected schema version 1, got %d", rt.SchemaVersion)
	}
	if rt.Defaults.Defaults.Rules.RoundToNearest != 10 {
		t.Fatalf("unexpected defaults %+v", rt.Defaults.Defaults.Rules)
	}
	c, err := rt.Engine.ResetSellConfig(context.Background(), "p1", "tester")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(c.Steps) != 5 {
		t.Fatalf("expected default steps, got %+v", c.Steps)
	}
}

func TestOpenUsesWorkspaceDefaults(t *testing.T) {
	ws := t.TempDir()
	body := strings.Replace(config.GenerateDefault(), "roundToNearest: 10", "roundToNearest: 25", 1)
	if err := os.WriteFile(filepath.Join(ws, config.FileName), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	rt, err := Open(context.Background(), ws, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	c, err := rt.Engine.ResetSellConfig(context.Background(), "p1", "tester")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if c.Rules.RoundToNearest != 25 {
		t.Fatalf("workspace defaults not applied: %+v", c.Rules)
	}
}

func TestOpenRejectsBrokenDefaults(t *testing.T) {
	ws := t.TempDir()
	if err := os.WriteFile(filepath.Join(ws, config.FileName), []byte("defaults: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(context.Background(), ws, nil); err == nil {
		t.Fatalf("expected error for broken yaml")
	}
}
