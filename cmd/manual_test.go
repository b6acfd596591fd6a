package main

import (
	"context"
	"errors"
	"testing"
)

func TestRunOnceManual(t *testing.T) {
	t.Parallel()

	stub := &stubScheduler{}
	builds := 0
	cleanups := 0

	err := runOnceManual(context.Background(), AppConfig{}, func(AppConfig) (appDeps, func(), error) {
		builds++
		return appDeps{sched: stub}, func() { cleanups++ }, nil
	})
	if err != nil {
		t.Fatalf("runOnceManual error: %v", err)
	}
	if builds != 1 {
		t.Fatalf("expected builder called once, got %d", builds)
	}
	if stub.runOnceCalls != 1 {
		t.Fatalf("expected RunOnce called once, got %d", stub.runOnceCalls)
	}
	if cleanups != 1 {
		t.Fatalf("expected cleanup called once, got %d", cleanups)
	}
}

func TestRunOnceManualBuilderError(t *testing.T) {
	t.Parallel()

	err := runOnceManual(context.Background(), AppConfig{}, func(AppConfig) (appDeps, func(), error) {
		return appDeps{}, func() {}, errors.New("build fail")
	})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
}

// --- stubs ---

type stubScheduler struct {
	runOnceCalls int
}

func (s *stubScheduler) RunOnce(context.Context) {
	s.runOnceCalls++
}

func (s *stubScheduler) Start(context.Context) error {
	return nil
}
