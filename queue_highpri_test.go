package main

import (
	"testing"
	"time"
)

// waitMarkCount polls until the execution log reaches n entries.
func (r *queueTestRig) waitMarkCount(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(r.marks()) >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

// TestHighpriPreemptsAtCommandBoundary stalls the consumer inside a
// gated command with two normal commands already queued behind it, then
// opens the high-priority channel. The burst must run before the queued
// normal commands but never mid-command.
func TestHighpriPreemptsAtCommandBoundary(t *testing.T) {
	rig := newQueueTestRig(t)

	rig.emitMark(1)
	rig.armGate()
	rig.emitGate()
	rig.emitMark(2)
	rig.emitMark(3)
	rig.q.Flush()

	if !rig.waitMarkCount(1, 2*time.Second) {
		t.Fatal("consumer never reached the gate")
	}

	rig.q.HighpriBegin()
	rig.emitMark(100)
	rig.emitMark(101)
	rig.q.HighpriEnd()

	rig.releaseGate()
	rig.expectMarks([]uint32{1, 100, 101, 2, 3})
}

// TestHighpriBurstIsNotInterleaved keeps the channel open across two
// separate writes with a deliberate pause between them; the parked-open
// consumer must not slip back to the normal queue in the gap.
func TestHighpriBurstIsNotInterleaved(t *testing.T) {
	rig := newQueueTestRig(t)

	rig.armGate()
	rig.emitGate()
	rig.emitMark(2)
	rig.q.Flush()

	rig.q.HighpriBegin()
	rig.emitMark(100)
	rig.q.Flush()
	rig.releaseGate()
	time.Sleep(50 * time.Millisecond) // channel runs dry but stays open
	rig.emitMark(101)
	rig.q.HighpriEnd()

	rig.expectMarks([]uint32{100, 101, 2})
}

// TestHighpriBufferSwitch pushes enough commands through the open
// channel to force its own ping-pong switch.
func TestHighpriBufferSwitch(t *testing.T) {
	rig := newQueueTestRig(t)

	const n = 200
	rig.q.HighpriBegin()
	for i := 0; i < n; i++ {
		rig.emitMark(uint32(i))
	}
	rig.q.HighpriEnd()
	rig.q.HighpriSync()

	if got := rig.marks(); len(got) != n {
		t.Fatalf("%d of %d high-priority commands executed", len(got), n)
	}
	rig.expectMarks(seq(n))
}

// TestHighpriRepeatedCycles runs several begin/end cycles interleaved
// with normal traffic; every command must execute exactly once and
// normal-queue order must survive the detours.
func TestHighpriRepeatedCycles(t *testing.T) {
	rig := newQueueTestRig(t)

	for cycle := 0; cycle < 5; cycle++ {
		rig.emitMark(uint32(cycle))
		rig.q.HighpriBegin()
		rig.emitMark(uint32(1000 + cycle))
		rig.q.HighpriEnd()
		rig.q.HighpriSync()
	}
	rig.q.Sync()

	got := rig.marks()
	if len(got) != 10 {
		t.Fatalf("%d commands executed, expected 10: %v", len(got), got)
	}
	// HighpriSync between cycles makes each burst's position exact
	// relative to its own cycle; normal marks must still be in order.
	var normal []uint32
	seen := map[uint32]bool{}
	for _, v := range got {
		if seen[v] {
			t.Fatalf("command %d executed twice: %v", v, got)
		}
		seen[v] = true
		if v < 1000 {
			normal = append(normal, v)
		}
	}
	for i, v := range normal {
		if v != uint32(i) {
			t.Fatalf("normal queue reordered: %v", normal)
		}
	}
}

// TestHighpriSignalLifecycle watches the request/running bits settle
// back to zero after a full cycle.
func TestHighpriSignalLifecycle(t *testing.T) {
	rig := newQueueTestRig(t)

	rig.q.HighpriBegin()
	rig.emitMark(1)
	rig.q.HighpriEnd()
	rig.q.HighpriSync()

	if bits := rig.q.Signals() & (SIG_HIGHPRI_REQUESTED | SIG_HIGHPRI_RUNNING); bits != 0 {
		t.Fatalf("high-priority signals still raised after sync: 0x%02X", bits)
	}
	rig.expectMarks([]uint32{1})
}

func TestHighpriMisusePanics(t *testing.T) {
	rig := newQueueTestRig(t)

	expectPanic(t, func() { rig.q.HighpriEnd() }) // never opened

	rig.q.HighpriBegin()
	expectPanic(t, func() { rig.q.HighpriBegin() })   // double open
	expectPanic(t, func() { rig.q.HighpriSync() })    // sync with channel open
	expectPanic(t, func() { rig.q.NewSyncpoint() })   // no syncpoints in the channel
	expectPanic(t, func() { rig.q.BlockBegin() })     // no recording in the channel
	rig.q.HighpriEnd()
	rig.q.HighpriSync()
}
