package config

import (
	"context"
	"errors"
	"testing"

	"github.com/pkravets/ghostline/pkg/backend"
	"github.com/pkravets/ghostline/pkg/backend/mock"
)

func TestRegistry_CreateUnknown(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.Create(BackendEntry{Name: "nope"})
	if !errors.Is(err, ErrBackendNotRegistered) {
		t.Errorf("err = %v, want ErrBackendNotRegistered", err)
	}
}

func TestRegistry_CreateUsesFactory(t *testing.T) {
	t.Parallel()

	want := &mock.Client{}
	r := NewRegistry()
	r.Register("service", func(entry BackendEntry) (backend.Client, error) {
		if entry.BaseURL != "http://localhost:8000" {
			t.Errorf("entry = %+v", entry)
		}
		return want, nil
	})

	got, err := r.Create(BackendEntry{Name: "service", BaseURL: "http://localhost:8000"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got != backend.Client(want) {
		t.Error("Create returned a different client than the factory produced")
	}
}

func TestRegistry_BuildChain(t *testing.T) {
	t.Parallel()

	primary := &mock.Client{CompleteText: "from primary"}
	fallback := &mock.Client{CompleteText: "from fallback"}

	r := NewRegistry()
	r.Register("service", func(BackendEntry) (backend.Client, error) { return primary, nil })
	r.Register("openai", func(BackendEntry) (backend.Client, error) { return fallback, nil })

	cfg := &Config{
		Backends: []BackendEntry{
			{Name: "service", BaseURL: "http://localhost:8000"},
			{Name: "openai"},
		},
	}

	chain, err := r.BuildChain(cfg)
	if err != nil {
		t.Fatalf("BuildChain: %v", err)
	}

	text, err := chain.Complete(context.Background(), "Hello wor", "en")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "from primary" {
		t.Errorf("Complete = %q, want the primary to serve", text)
	}
	if len(fallback.Calls()) != 0 {
		t.Errorf("fallback received %d calls, want 0", len(fallback.Calls()))
	}
}

func TestRegistry_BuildChainUnknownBackend(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.BuildChain(&Config{Backends: []BackendEntry{{Name: "mystery"}}})
	if !errors.Is(err, ErrBackendNotRegistered) {
		t.Errorf("err = %v, want ErrBackendNotRegistered", err)
	}
}
