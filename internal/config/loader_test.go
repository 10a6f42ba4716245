package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/debrief/internal/aggregate"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAggregator_Formats(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"yaml", "aggregator.yaml", "time_tolerance: 2.5\nanchor_min_matches: 5\nbaseline: lead.xml\n"},
		{"yml", "aggregator.yml", "time_tolerance: 2.5\nanchor_min_matches: 5\nbaseline: lead.xml\n"},
		{"toml", "aggregator.toml", "time_tolerance = 2.5\nanchor_min_matches = 5\nbaseline = \"lead.xml\"\n"},
		{"json", "aggregator.json", `{"time_tolerance": 2.5, "anchor_min_matches": 5, "baseline": "lead.xml"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := LoadAggregator(writeConfig(t, tt.file, tt.body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if opts.TimeTolerance != 2.5 {
				t.Errorf("expected time_tolerance 2.5, got %g", opts.TimeTolerance)
			}
			if opts.AnchorMinMatches != 5 {
				t.Errorf("expected anchor_min_matches 5, got %d", opts.AnchorMinMatches)
			}
			if opts.Baseline != "lead.xml" {
				t.Errorf("expected baseline lead.xml, got %s", opts.Baseline)
			}
			// untouched keys keep their defaults
			if opts.MaxAnchorOffset != 14400 {
				t.Errorf("expected default max_anchor_offset, got %g", opts.MaxAnchorOffset)
			}
		})
	}
}

func TestLoadAggregator_Defaults(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing.yaml")} {
		opts, err := LoadAggregator(path)
		if err != nil {
			t.Fatalf("path %q: unexpected error: %v", path, err)
		}
		if opts != aggregate.DefaultOptions() {
			t.Errorf("path %q: expected defaults, got %+v", path, opts)
		}
	}
}

func TestLoadAggregator_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"unknown yaml key", "a.yaml", "time_tolerence: 2\n", "time_tolerence"},
		{"unknown toml key", "a.toml", "time_tolerence = 2\n", "time_tolerence"},
		{"unknown json key", "a.json", `{"time_tolerence": 2}`, "time_tolerence"},
		{"negative tolerance", "a.yaml", "time_tolerance: -1\n", "time_tolerance must be >= 0"},
		{"nan tolerance", "a.yaml", "anchor_tolerance: .nan\n", "anchor_tolerance must be a finite number"},
		{"infinite offset", "a.yaml", "max_fallback_offset: .inf\n", "max_fallback_offset must be a finite number"},
		{"zero min matches", "a.json", `{"anchor_min_matches": 0}`, "anchor_min_matches must be >= 1"},
		{"bad syntax", "a.toml", "time_tolerance = \n", "decode TOML"},
		{"unsupported extension", "a.ini", "x=1", "unsupported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadAggregator(writeConfig(t, tt.file, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
