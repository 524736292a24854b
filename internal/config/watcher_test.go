package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

const watcherYAMLv1 = `
logging:
  level: info
backends:
  - name: service
    base_url: http://localhost:8000
`

const watcherYAMLv2 = `
logging:
  level: debug
backends:
  - name: service
    base_url: http://localhost:8000
`

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ghostline.yaml")
	writeConfigFile(t, path, watcherYAMLv1)

	w, err := NewWatcher(path, nil, WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if w.Current().Logging.Level != LogInfo {
		t.Errorf("initial config = %+v", w.Current())
	}
}

func TestWatcher_InitialLoadFailure(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ghostline.yaml")
	writeConfigFile(t, path, "logging: {level: loud}\n")

	if _, err := NewWatcher(path, nil); err == nil {
		t.Error("expected invalid initial config to fail")
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ghostline.yaml")
	writeConfigFile(t, path, watcherYAMLv1)

	var (
		mu       sync.Mutex
		newLevel LogLevel
	)
	onChange := func(old, new *Config) {
		mu.Lock()
		newLevel = new.Logging.Level
		mu.Unlock()
	}

	w, err := NewWatcher(path, onChange, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Ensure the mtime visibly differs even on coarse-grained filesystems.
	time.Sleep(20 * time.Millisecond)
	writeConfigFile(t, path, watcherYAMLv2)
	now := time.Now()
	os.Chtimes(path, now, now)

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		got := newLevel
		mu.Unlock()
		if got == LogDebug {
			break
		}
		select {
		case <-deadline:
			t.Fatal("watcher did not pick up the change")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if w.Current().Logging.Level != LogDebug {
		t.Errorf("Current() = %+v after reload", w.Current())
	}
}

func TestWatcher_KeepsOldConfigOnInvalidReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ghostline.yaml")
	writeConfigFile(t, path, watcherYAMLv1)

	w, err := NewWatcher(path, nil, WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(20 * time.Millisecond)
	writeConfigFile(t, path, "logging: {level: loud}\n")
	now := time.Now()
	os.Chtimes(path, now, now)

	// Give the watcher a few polling cycles to (not) swap the config.
	time.Sleep(100 * time.Millisecond)

	if w.Current().Logging.Level != LogInfo {
		t.Errorf("Current() = %+v, want the last valid config retained", w.Current())
	}
}
