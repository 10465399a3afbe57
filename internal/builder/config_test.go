package builder

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "build.yaml")
	data := []byte("min_zoom: 2\nmax_zoom: 9\ntolerance: 0.5\nkeep_properties: true\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	want := DefaultConfig()
	want.MinZoom, want.MaxZoom, want.Tolerance, want.KeepProperties = 2, 9, 0.5, true
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		mutate func(*Config)
	}{
		{"inverted zoom", func(c *Config) { c.MinZoom, c.MaxZoom = 5, 2 }},
		{"negative zoom", func(c *Config) { c.MinZoom = -1 }},
		{"too many levels", func(c *Config) { c.MaxZoom = 300 }},
		{"negative tolerance", func(c *Config) { c.Tolerance = -1 }},
		{"zero tile size", func(c *Config) { c.TileSize = 0 }},
		{"inverted block sizes", func(c *Config) { c.MinSizeBytes, c.MaxSizeBytes = 10, 5 }},
		{"fraction above one", func(c *Config) { c.ReductionFraction = 1.5 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate = %v, want ErrInvalidConfig", err)
			}
			if _, err := New(cfg, Options{}); err == nil {
				t.Error("New accepted an invalid config")
			}
		})
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}
