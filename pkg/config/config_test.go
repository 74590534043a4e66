package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Grimnirrrr/keratin/pkg/fault"
	"github.com/Grimnirrrr/keratin/pkg/tier"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.History.MaxCommands != 50 {
		t.Errorf("maxCommands = %d, want 50", cfg.History.MaxCommands)
	}
	if cfg.Backups.MaxBackups != 5 {
		t.Errorf("maxBackups = %d, want 5", cfg.Backups.MaxBackups)
	}
	if got := cfg.Suggestions.TTL().Seconds(); got != 3 {
		t.Errorf("suggestion TTL = %vs, want 3s", got)
	}
	if cfg.Tiers[tier.Pro].OverageRate != 0.02 {
		t.Errorf("pro overage = %v, want 0.02", cfg.Tiers[tier.Pro].OverageRate)
	}
	if cfg.Tiers[tier.Studio].MaxCustomPieces != tier.Unlimited {
		t.Errorf("studio custom cap = %d, want unlimited", cfg.Tiers[tier.Studio].MaxCustomPieces)
	}
	if cfg.Yarn.Consumption["sc"] != 3.5 {
		t.Errorf("sc consumption = %v, want 3.5", cfg.Yarn.Consumption["sc"])
	}
	if len(cfg.Yarn.Catalog) != 4 {
		t.Errorf("catalog size = %d, want 4", len(cfg.Yarn.Catalog))
	}
}

func TestParse_PartialOverlay(t *testing.T) {
	cfg, err := Parse([]byte("history:\n  maxCommands: 10\ngeometry:\n  snapGrid: 0.5\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.History.MaxCommands != 10 {
		t.Errorf("maxCommands = %d, want 10", cfg.History.MaxCommands)
	}
	if cfg.Geometry.SnapGrid != 0.5 {
		t.Errorf("snapGrid = %v, want 0.5", cfg.Geometry.SnapGrid)
	}
	// Untouched sections keep their defaults.
	if cfg.History.IdleMinutes != 30 {
		t.Errorf("idleMinutes = %d, want 30", cfg.History.IdleMinutes)
	}
	if cfg.Billing.AutoBillLevel != 10 {
		t.Errorf("autoBillLevel = %v, want 10", cfg.Billing.AutoBillLevel)
	}
}

func TestParse_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"zero history", "history:\n  maxCommands: 0\n"},
		{"negative snap", "geometry:\n  snapGrid: -1\n"},
		{"inverted billing", "billing:\n  warningLevel: 0.5\n"},
		{"negative consumption", "yarn:\n  consumption:\n    sc: -1\n"},
		{"not yaml", "::::\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.in)); !fault.Is(err, fault.ValidationFailed) {
				t.Errorf("Parse(%q) err = %v, want validation_failed", tc.in, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keratin.yaml")
	if err := os.WriteFile(path, []byte("suggestions:\n  ttlSeconds: 9\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.Suggestions.TTL().Seconds(); got != 9 {
		t.Errorf("ttl = %vs, want 9s", got)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !fault.Is(err, fault.NotFound) {
		t.Errorf("missing file err = %v, want not_found", err)
	}
}
