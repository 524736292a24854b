package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidBackendNames lists the backend names with built-in constructors.
// Used by [Validate] to warn about unrecognised names.
var ValidBackendNames = []string{"service", "openai"}

// validCommandNames lists the command names a voice phrase may map to.
var validCommandNames = []string{"accept", "reject", "cancel_edit", "submit_edit"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Logging.Level != "" && !cfg.Logging.Level.IsValid() {
		errs = append(errs, fmt.Errorf("logging.level %q is invalid; valid values: debug, info, warn, error", cfg.Logging.Level))
	}

	if len(cfg.Backends) == 0 {
		errs = append(errs, errors.New("backends must list at least one backend"))
	}

	namesSeen := make(map[string]int, len(cfg.Backends))
	for i, b := range cfg.Backends {
		prefix := fmt.Sprintf("backends[%d]", i)
		if b.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := namesSeen[b.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of backends[%d]", prefix, b.Name, prev))
		}
		namesSeen[b.Name] = i
		if !slices.Contains(ValidBackendNames, b.Name) {
			slog.Warn("unknown backend name, may be a typo or an externally registered backend",
				"name", b.Name,
				"known", ValidBackendNames,
			)
		}
		if b.Name == "service" && b.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.base_url is required for the service backend", prefix))
		}
	}

	e := cfg.Engine
	for _, d := range []struct {
		name  string
		value int
	}{
		{"engine.debounce_ms", e.DebounceMs},
		{"engine.min_prefix_len", e.MinPrefixLen},
		{"engine.first_byte_timeout_ms", e.FirstByteTimeoutMs},
		{"engine.idle_timeout_ms", e.IdleTimeoutMs},
		{"engine.view_flush_interval_ms", e.ViewFlushIntervalMs},
		{"engine.request_timeout_ms", e.RequestTimeoutMs},
	} {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", d.name, d.value))
		}
	}

	if t := cfg.Voice.PhoneticThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("voice.phonetic_threshold %.2f is out of range [0, 1]", t))
	}
	if t := cfg.Voice.FuzzyThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("voice.fuzzy_threshold %.2f is out of range [0, 1]", t))
	}
	for i, p := range cfg.Voice.Phrases {
		prefix := fmt.Sprintf("voice.phrases[%d]", i)
		if p.Text == "" {
			errs = append(errs, fmt.Errorf("%s.text is required", prefix))
		}
		if !slices.Contains(validCommandNames, p.Command) {
			errs = append(errs, fmt.Errorf("%s.command %q is invalid; valid values: accept, reject, cancel_edit, submit_edit", prefix, p.Command))
		}
	}

	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures must not be negative, got %d", cfg.Resilience.MaxFailures))
	}
	if cfg.Resilience.ResetTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("resilience.reset_timeout_ms must not be negative, got %d", cfg.Resilience.ResetTimeoutMs))
	}

	return errors.Join(errs...)
}
