package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault_Validates(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	if cfg.Store.QueryTimeout <= 0 {
		t.Error("expected a positive default query timeout")
	}
	if cfg.Validation.MaxFutureSkew <= 0 {
		t.Error("expected a positive default clock-skew tolerance")
	}
	if cfg.Validation.MinValidTime.IsZero() {
		t.Error("expected a default minimum valid time")
	}
}

func TestLoad_Overlay(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	data := `
store:
  path: /var/lib/apcstore/readings.db
  max_open_conns: 10
validation:
  min_valid_time: 2023-06-01T00:00:00Z
  bounds:
    aqi:
      min: 1
      max: 3
export:
  compression: snappy
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Store.Path != "/var/lib/apcstore/readings.db" {
		t.Errorf("store path not applied: %q", cfg.Store.Path)
	}
	if cfg.Store.MaxOpenConns != 10 {
		t.Errorf("max_open_conns not applied: %d", cfg.Store.MaxOpenConns)
	}

	// Unset fields keep their defaults.
	if cfg.Store.MaxIdleConns != 5 {
		t.Errorf("max_idle_conns default lost: %d", cfg.Store.MaxIdleConns)
	}
	if cfg.Store.QueryTimeout != 30*time.Second {
		t.Errorf("query_timeout default lost: %v", cfg.Store.QueryTimeout)
	}

	want := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	if !cfg.Validation.MinValidTime.Equal(want) {
		t.Errorf("min_valid_time: got %v, want %v", cfg.Validation.MinValidTime, want)
	}

	if b, ok := cfg.Validation.Bounds["aqi"]; !ok || b.Min != 1 || b.Max != 3 {
		t.Errorf("bounds override not applied: %+v", cfg.Validation.Bounds)
	}

	if cfg.Export.Compression != "snappy" {
		t.Errorf("export compression not applied: %q", cfg.Export.Compression)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate_BadBounds(t *testing.T) {
	cfg := Default()
	cfg.Validation.Bounds = map[string]Bound{
		"tvoc": {Min: 100, Max: 0},
	}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for inverted bounds")
	}
}

func TestValidate_BadCompression(t *testing.T) {
	cfg := Default()
	cfg.Export.Compression = "bzip2"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown compression")
	}
}
