// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"testing"
)

func TestRenderGate_FirstMarkWakes(t *testing.T) {
	g := NewRenderGate()

	if !g.Mark() {
		t.Error("first Mark() should request a wake-up")
	}
	if g.Mark() {
		t.Error("second Mark() while awake should not request another wake-up")
	}
}

func TestRenderGate_TakeDrainsDirty(t *testing.T) {
	g := NewRenderGate()

	if g.Take() {
		t.Error("Take() on a clean gate should report nothing")
	}

	g.Mark()
	if !g.Take() {
		t.Error("Take() after Mark() should report dirty")
	}
	if g.Take() {
		t.Error("Take() should clear the dirty flag")
	}
}

func TestRenderGate_TrySleepRefusesWithPendingWork(t *testing.T) {
	g := NewRenderGate()
	g.Mark()
	g.Take()

	// A mark lands between the last Take and the sleep decision.
	g.Mark()
	if g.TrySleep() {
		t.Error("TrySleep() should fail while dirty")
	}

	g.Take()
	if !g.TrySleep() {
		t.Error("TrySleep() should succeed once drained")
	}

	// Asleep again: next mark requests a fresh wake-up.
	if !g.Mark() {
		t.Error("Mark() after sleep should request a wake-up")
	}
}

func TestRenderGate_ConcurrentMarks(t *testing.T) {
	g := NewRenderGate()

	var wg sync.WaitGroup
	wakes := make(chan struct{}, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Mark() {
				wakes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wakes)

	count := 0
	for range wakes {
		count++
	}
	if count != 1 {
		t.Errorf("%d wake-ups for a burst of marks, want exactly 1", count)
	}
	if !g.Take() {
		t.Error("gate should be dirty after the burst")
	}
}
