package app

import (
	"context"
	"testing"
)

func TestNewDependenciesMemory(t *testing.T) {
	cfg := DefaultConfig()

	deps, err := NewDependencies(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new dependencies: %v", err)
	}
	defer deps.Close()

	if deps.Pending == nil || deps.Orders == nil || deps.Outbox == nil || deps.Timeline == nil || deps.Idempotency == nil {
		t.Fatal("all repositories must be initialized")
	}
	if deps.Registrar == nil {
		t.Fatal("registrar client must be initialized")
	}
	if deps.Store != nil {
		t.Fatal("memory storage must not open a postgres store")
	}
}

func TestNewDependenciesUnknownDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "cassandra"

	if _, err := NewDependencies(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for unknown storage driver")
	}
}

func TestNewDependenciesRealRegistrarClient(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RegistrarBaseURL = "https://test.httpapi.com"
	cfg.RegistrarUserID = "user-1"
	cfg.RegistrarAPIKey = "key-1"

	deps, err := NewDependencies(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("new dependencies: %v", err)
	}
	defer deps.Close()

	if deps.Registrar == nil {
		t.Fatal("registrar client must be initialized")
	}
}
