package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/debrief/internal/aggregate"
)

// LoadAggregator reads aggregator tuning from a .yaml/.yml, .toml or .json
// file on top of aggregate.DefaultOptions. An empty path or a missing file
// yields the defaults. Keys the tuning record does not know are rejected.
func LoadAggregator(path string) (aggregate.Options, error) {
	opts := aggregate.DefaultOptions()
	if path == "" {
		return opts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return opts, nil
		}
		return opts, fmt.Errorf("read aggregator config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
			return opts, fmt.Errorf("decode YAML: %w", err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), &opts)
		if err != nil {
			return opts, fmt.Errorf("decode TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return opts, fmt.Errorf("decode TOML: unknown keys %s", strings.Join(keys, ", "))
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
			return opts, fmt.Errorf("decode JSON: %w", err)
		}
	default:
		return opts, fmt.Errorf("unsupported aggregator config format %q", ext)
	}

	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("validation failed: %w", err)
	}
	return opts, nil
}
