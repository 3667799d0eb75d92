// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lease

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/dirlease/lib/testutil"
	"golang.org/x/sys/unix"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	dispatcher, err := NewDispatcher()
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	t.Cleanup(func() { dispatcher.Close() })
	return dispatcher
}

func makeFIFO(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := unix.Mkfifo(path, 0o600); err != nil {
		t.Fatalf("Mkfifo: %v", err)
	}
	return path
}

func openWriter(t *testing.T, path string) *os.File {
	t.Helper()
	file, err := os.OpenFile(path, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("opening write end of %s: %v", path, err)
	}
	return file
}

// waitAsync runs one Wait on a separate goroutine. The caller must not
// touch the dispatcher again until the result has been received.
func waitAsync(t *testing.T, dispatcher *Dispatcher) <-chan []Event {
	t.Helper()
	results := make(chan []Event, 1)
	go func() {
		events, err := dispatcher.Wait()
		if err != nil {
			t.Errorf("Wait: %v", err)
		}
		results <- events
	}()
	return results
}

func TestDispatcherReportsClosure(t *testing.T) {
	dispatcher := newTestDispatcher(t)
	sentinel := makeFIFO(t, "lease-1")

	if err := dispatcher.Register("lease-1", sentinel); err != nil {
		t.Fatalf("Register: %v", err)
	}
	writer := openWriter(t, sentinel)

	results := waitAsync(t, dispatcher)
	testutil.RequireNoReceive(t, results, 100*time.Millisecond, "Wait returned while a writer was open")

	writer.Close()
	events := testutil.RequireReceive(t, results, 5*time.Second, "closure not reported")
	if len(events) != 1 || events[0].ID != "lease-1" || !events[0].Closed {
		t.Fatalf("events = %+v, want one closure for lease-1", events)
	}
	if dispatcher.Watching("lease-1") || dispatcher.Len() != 0 {
		t.Error("watch still armed after closure")
	}
}

func TestDispatcherReportsDataWithoutClosing(t *testing.T) {
	dispatcher := newTestDispatcher(t)
	sentinel := makeFIFO(t, "noisy")

	if err := dispatcher.Register("noisy", sentinel); err != nil {
		t.Fatalf("Register: %v", err)
	}
	writer := openWriter(t, sentinel)
	defer writer.Close()

	if _, err := writer.Write([]byte("noise")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	events := testutil.RequireReceive(t, waitAsync(t, dispatcher), 5*time.Second, "data not reported")
	if len(events) != 1 || events[0].Data != 5 || events[0].Closed {
		t.Fatalf("events = %+v, want 5 bytes of data and no closure", events)
	}
	if !dispatcher.Watching("noisy") {
		t.Fatal("watch removed after data")
	}

	writer.Close()
	events = testutil.RequireReceive(t, waitAsync(t, dispatcher), 5*time.Second, "closure not reported")
	if len(events) != 1 || !events[0].Closed {
		t.Fatalf("events = %+v, want closure", events)
	}
}

func TestDispatcherWriterExitedBeforeRegister(t *testing.T) {
	dispatcher := newTestDispatcher(t)
	sentinel := makeFIFO(t, "orphan")

	if err := dispatcher.Register("orphan", sentinel); err != nil {
		t.Fatalf("Register: %v", err)
	}

	events := testutil.RequireReceive(t, waitAsync(t, dispatcher), 5*time.Second, "sentinel with no writer not reported")
	if len(events) != 1 || !events[0].Closed {
		t.Fatalf("events = %+v, want closure", events)
	}
}

func TestDispatcherWriterOpenedBeforeRegister(t *testing.T) {
	dispatcher := newTestDispatcher(t)
	sentinel := makeFIFO(t, "survivor")

	// A write end can only be opened non-blocking while a reader
	// exists. This reader stands in for a previous service instance.
	previous, err := os.OpenFile(sentinel, os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		t.Fatalf("opening previous reader: %v", err)
	}
	writer := openWriter(t, sentinel)
	previous.Close()

	if err := dispatcher.Register("survivor", sentinel); err != nil {
		t.Fatalf("Register: %v", err)
	}

	results := waitAsync(t, dispatcher)
	testutil.RequireNoReceive(t, results, 100*time.Millisecond, "live holder reported after re-arm")

	writer.Close()
	events := testutil.RequireReceive(t, results, 5*time.Second, "closure after re-arm not reported")
	if len(events) != 1 || !events[0].Closed {
		t.Fatalf("events = %+v, want closure", events)
	}
}

func TestDispatcherWake(t *testing.T) {
	dispatcher := newTestDispatcher(t)
	results := waitAsync(t, dispatcher)

	dispatcher.Wake()
	events := testutil.RequireReceive(t, results, 5*time.Second, "Wake did not interrupt Wait")
	if len(events) != 0 {
		t.Errorf("events = %+v, want none", events)
	}
}

func TestDispatcherWakeAfterClose(t *testing.T) {
	dispatcher, err := NewDispatcher()
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	if err := dispatcher.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	dispatcher.Wake()
	if err := dispatcher.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestDispatcherRegisterErrors(t *testing.T) {
	dispatcher := newTestDispatcher(t)

	regular := filepath.Join(t.TempDir(), "regular")
	if err := os.WriteFile(regular, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{regular, filepath.Join(t.TempDir(), "missing")} {
		err := dispatcher.Register(filepath.Base(path), path)
		var watchErr *WatchRegistrationError
		if !errors.As(err, &watchErr) {
			t.Errorf("Register(%s) error = %v, want *WatchRegistrationError", path, err)
		}
	}

	sentinel := makeFIFO(t, "twice")
	if err := dispatcher.Register("twice", sentinel); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := dispatcher.Register("twice", sentinel); err == nil {
		t.Error("second Register of the same lease succeeded")
	}
	if dispatcher.Len() != 1 {
		t.Errorf("Len = %d, want 1", dispatcher.Len())
	}
}

func TestDispatcherAttributesEventsAmongManyWatches(t *testing.T) {
	dispatcher := newTestDispatcher(t)

	writers := make(map[string]*os.File)
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		sentinel := makeFIFO(t, id)
		if err := dispatcher.Register(id, sentinel); err != nil {
			t.Fatalf("Register(%s): %v", id, err)
		}
		writers[id] = openWriter(t, sentinel)
		t.Cleanup(func() { writers[id].Close() })
	}

	writers["b"].Close()
	writers["d"].Close()

	events := testutil.RequireReceive(t, waitAsync(t, dispatcher), 5*time.Second, "Wait did not return")
	if len(events) != 2 || events[0].ID != "b" || events[1].ID != "d" {
		t.Fatalf("events = %+v, want closures for b and d", events)
	}
	for _, event := range events {
		if !event.Closed {
			t.Errorf("event for %s not marked closed", event.ID)
		}
	}
	for _, id := range []string{"a", "c", "e"} {
		if !dispatcher.Watching(id) {
			t.Errorf("watch for %s was dropped", id)
		}
	}
	if dispatcher.Len() != 3 {
		t.Errorf("Len = %d, want 3", dispatcher.Len())
	}
}
