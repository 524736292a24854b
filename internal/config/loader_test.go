package config

import (
	"strings"
	"testing"
)

const validYAML = `
logging:
  level: debug
metrics:
  listen_addr: ":9090"
backends:
  - name: service
    base_url: http://localhost:8000
    api_key: secret
  - name: openai
    api_key: sk-test
    model: gpt-4o-mini
engine:
  debounce_ms: 250
  min_prefix_len: 4
  locale: ru
voice:
  phonetic_threshold: 0.7
  phrases:
    - text: scratch that
      command: reject
feedback:
  spool_path: /tmp/ghostline-feedback.jsonl
resilience:
  max_failures: 3
  reset_timeout_ms: 10000
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Logging.Level != LogDebug {
		t.Errorf("logging.level = %q", cfg.Logging.Level)
	}
	if len(cfg.Backends) != 2 {
		t.Fatalf("backends = %d entries, want 2", len(cfg.Backends))
	}
	if cfg.Backends[0].Name != "service" || cfg.Backends[0].BaseURL != "http://localhost:8000" {
		t.Errorf("primary backend = %+v", cfg.Backends[0])
	}
	if cfg.Backends[1].Model != "gpt-4o-mini" {
		t.Errorf("fallback backend = %+v", cfg.Backends[1])
	}
	if cfg.Engine.DebounceMs != 250 || cfg.Engine.Locale != "ru" {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if len(cfg.Voice.Phrases) != 1 || cfg.Voice.Phrases[0].Command != "reject" {
		t.Errorf("voice.phrases = %+v", cfg.Voice.Phrases)
	}
	if cfg.Resilience.MaxFailures != 3 {
		t.Errorf("resilience = %+v", cfg.Resilience)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	yaml := `
backends:
  - name: service
    base_url: http://localhost:8000
banana: true
`
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Error("expected unknown top-level field to be rejected")
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Logging: LoggingConfig{Level: "loud"},
		Backends: []BackendEntry{
			{Name: "service"}, // missing base_url
			{Name: "service"}, // duplicate
		},
		Engine: EngineConfig{DebounceMs: -1},
		Voice: VoiceConfig{
			PhoneticThreshold: 1.5,
			Phrases:           []PhraseConfig{{Text: "", Command: "explode"}},
		},
		Resilience: ResilienceConfig{MaxFailures: -2},
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{
		"logging.level",
		"base_url is required",
		"duplicate",
		"engine.debounce_ms",
		"voice.phonetic_threshold",
		"voice.phrases[0].text",
		"voice.phrases[0].command",
		"resilience.max_failures",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q does not mention %q", msg, want)
		}
	}
}

func TestValidate_NoBackends(t *testing.T) {
	t.Parallel()

	err := Validate(&Config{})
	if err == nil || !strings.Contains(err.Error(), "at least one backend") {
		t.Errorf("err = %v, want missing-backends failure", err)
	}
}
