package config_test

import (
	"testing"

	"github.com/greenrow/allocator/config"
)

func TestLoad_DefaultsToWorkstationWithoutExplicitEnv(t *testing.T) {
	// GIVEN: no ALLOCATOR_ENV override and a non-batch-host test runner
	// WHEN: Load resolves the environment
	// THEN: it falls back to workstation defaults and passes validation

	t.Setenv("ALLOCATOR_ENV", "")
	t.Setenv("ALLOCATOR_DB_PATH", "")
	t.Setenv("ALLOCATOR_WINDOW_DAYS", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Environment != "workstation" {
		t.Errorf("expected workstation environment by default, got %q", cfg.Environment)
	}
	if cfg.DBPath != "allocator.db" {
		t.Errorf("expected default db path, got %q", cfg.DBPath)
	}
	if cfg.AllocationWindowDays != 10 {
		t.Errorf("expected default window of 10 days, got %d", cfg.AllocationWindowDays)
	}
}

func TestLoad_HonorsExplicitEnvironmentOverride(t *testing.T) {
	t.Setenv("ALLOCATOR_ENV", "production")
	t.Setenv("ALLOCATOR_DB_PATH", "/var/lib/allocator/allocator.db")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Environment != "production" {
		t.Errorf("expected production environment, got %q", cfg.Environment)
	}
}

func TestLoad_RejectsInMemoryDatabaseInProduction(t *testing.T) {
	t.Setenv("ALLOCATOR_ENV", "production")
	t.Setenv("ALLOCATOR_DB_PATH", ":memory:")

	_, err := config.Load()
	if err == nil {
		t.Fatal("expected an error when production points at an in-memory database")
	}
}

func TestLoad_ReadsWindowDaysFromEnv(t *testing.T) {
	t.Setenv("ALLOCATOR_ENV", "workstation")
	t.Setenv("ALLOCATOR_WINDOW_DAYS", "21")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AllocationWindowDays != 21 {
		t.Errorf("expected window of 21 days from env, got %d", cfg.AllocationWindowDays)
	}
}

func TestLoad_IgnoresUnparseableWindowDaysAndFallsBackToDefault(t *testing.T) {
	t.Setenv("ALLOCATOR_ENV", "workstation")
	t.Setenv("ALLOCATOR_WINDOW_DAYS", "not-a-number")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.AllocationWindowDays != 10 {
		t.Errorf("expected default of 10 when env value is unparseable, got %d", cfg.AllocationWindowDays)
	}
}

func TestValidate_RejectsUnrecognizedEnvironment(t *testing.T) {
	cfg := &config.Config{Environment: "staging", AllocationWindowDays: 10}
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for an unrecognized environment")
	}
}

func TestValidate_RejectsNonPositiveWindow(t *testing.T) {
	cfg := &config.Config{Environment: "workstation", AllocationWindowDays: 0}
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for a non-positive allocation window")
	}
}

func TestValidate_AcceptsWellFormedWorkstationConfig(t *testing.T) {
	cfg := &config.Config{Environment: "workstation", DBPath: ":memory:", AllocationWindowDays: 5}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
