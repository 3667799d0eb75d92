// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

// recordingT captures Fatalf instead of stopping the goroutine, so the
// failure paths of the helpers can be asserted.
type recordingT struct {
	failed  bool
	message string
}

func (r *recordingT) Helper() {}

func (r *recordingT) Fatalf(format string, args ...any) {
	r.failed = true
	r.message = fmt.Sprintf(format, args...)
	panic(r)
}

func catchFatal(run func()) (recovered any) {
	defer func() { recovered = recover() }()
	run()
	return nil
}

func TestRequireReceiveReturnsValue(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 7
	if got := RequireReceive(t, ch, time.Second, "value"); got != 7 {
		t.Errorf("RequireReceive = %d, want 7", got)
	}
}

func TestRequireReceiveClosedChannelFails(t *testing.T) {
	ch := make(chan int)
	close(ch)
	recorder := &recordingT{}
	catchFatal(func() { RequireReceive(recorder, ch, time.Second, "waiting for %s", "lease") })
	if !recorder.failed || !strings.Contains(recorder.message, "waiting for lease") {
		t.Errorf("failed=%v message=%q", recorder.failed, recorder.message)
	}
}

func TestRequireNoReceiveFailsOnValue(t *testing.T) {
	ch := make(chan string, 1)
	ch <- "tmp123"
	recorder := &recordingT{}
	catchFatal(func() { RequireNoReceive(recorder, ch, time.Second, "premature") })
	if !recorder.failed || !strings.Contains(recorder.message, "tmp123") {
		t.Errorf("failed=%v message=%q", recorder.failed, recorder.message)
	}
}

func TestRequireNoReceivePassesOnSilence(t *testing.T) {
	RequireNoReceive(t, make(chan int), 10*time.Millisecond, "silent channel")
}

func TestUniqueIDIncreases(t *testing.T) {
	first := UniqueID("lease")
	second := UniqueID("lease")
	if first == second {
		t.Errorf("UniqueID returned %q twice", first)
	}
	if !strings.HasPrefix(first, "lease-") {
		t.Errorf("UniqueID = %q, want lease- prefix", first)
	}
}
