package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OutputFormat != "text" {
		t.Errorf("OutputFormat = %q, want %q", cfg.OutputFormat, "text")
	}
	if cfg.Verbose {
		t.Error("Verbose default should be false")
	}
	if cfg.CaseInsensitive {
		t.Error("CaseInsensitive default should be false")
	}
}
