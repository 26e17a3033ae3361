// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

package services

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

type fakeEngine struct {
	started  atomic.Int32
	stopped  atomic.Int32
	startErr error
}

func (f *fakeEngine) Start(ctx context.Context) error {
	f.started.Add(1)
	return f.startErr
}

func (f *fakeEngine) Stop() error {
	f.stopped.Add(1)
	return nil
}

func TestSyncService_LifecycleFollowsContext(t *testing.T) {
	engine := &fakeEngine{}
	svc := NewSyncService(engine)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	// Give Serve a moment to start the engine.
	deadline := time.After(time.Second)
	for engine.started.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("engine never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if engine.stopped.Load() != 1 {
		t.Errorf("engine stopped %d times, want 1", engine.stopped.Load())
	}
}

func TestSyncService_StartFailurePropagates(t *testing.T) {
	engine := &fakeEngine{startErr: errors.New("boom")}
	svc := NewSyncService(engine)

	if err := svc.Serve(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	if engine.stopped.Load() != 0 {
		t.Error("Stop must not run after failed Start")
	}
}

type fakeSweeper struct {
	sweeps atomic.Int32
}

func (f *fakeSweeper) Sweep() int {
	f.sweeps.Add(1)
	return 1
}

func TestCacheJanitorService_SweepsOnInterval(t *testing.T) {
	sweeper := &fakeSweeper{}
	svc := NewCacheJanitorService(sweeper, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.After(time.Second)
	for sweeper.sweeps.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("janitor never swept twice")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestHTTPService_ServeAndShutdown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	svc := NewHTTPService("127.0.0.1:0", mux, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	// The listener binds asynchronously; canceling immediately after still
	// has to shut it down cleanly.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
