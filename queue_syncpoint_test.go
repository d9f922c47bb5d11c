package main

import (
	"testing"
	"time"
)

// TestSyncpointNoFalsePositive parks the consumer inside a gated command
// ahead of the syncpoint: the check must stay false until the marker has
// actually executed.
func TestSyncpointNoFalsePositive(t *testing.T) {
	rig := newQueueTestRig(t)

	rig.armGate()
	rig.emitGate()
	sp := rig.q.NewSyncpoint()
	rig.q.Flush()

	time.Sleep(50 * time.Millisecond)
	if rig.q.SyncpointDone(sp) {
		t.Fatal("syncpoint reported done while the consumer was still gated before it")
	}

	rig.releaseGate()
	rig.q.WaitSyncpoint(sp)
	if !rig.q.SyncpointDone(sp) {
		t.Fatal("syncpoint not done after WaitSyncpoint returned")
	}
	// Done is sticky.
	if !rig.q.SyncpointDone(sp) {
		t.Fatal("completed syncpoint was retracted")
	}
}

// TestSyncpointHandlesAreMonotonic also checks that an earlier handle
// completes no later than a newer one.
func TestSyncpointHandlesAreMonotonic(t *testing.T) {
	rig := newQueueTestRig(t)

	a := rig.q.NewSyncpoint()
	b := rig.q.NewSyncpoint()
	if b <= a || a == 0 {
		t.Fatalf("handles not monotonically increasing from >0: %d then %d", a, b)
	}

	rig.q.WaitSyncpoint(b)
	if !rig.q.SyncpointDone(a) {
		t.Fatal("older syncpoint incomplete after newer one finished")
	}
}

// TestSyncDrainsEverything: after Sync returns, every previously written
// command has executed.
func TestSyncDrainsEverything(t *testing.T) {
	rig := newQueueTestRig(t)
	const n = 120
	for i := 0; i < n; i++ {
		rig.emitMark(uint32(i))
	}
	rig.q.Sync()
	if got := rig.marks(); len(got) != n {
		t.Fatalf("%d of %d commands executed after Sync", len(got), n)
	}
}

func TestWaitSyncpointAlreadySatisfied(t *testing.T) {
	rig := newQueueTestRig(t)
	sp := rig.q.NewSyncpoint()
	rig.q.WaitSyncpoint(sp)
	rig.q.WaitSyncpoint(sp) // immediate second wait must not block
}

func TestSyncSeenRegister(t *testing.T) {
	rig := newQueueTestRig(t)
	rig.q.Sync()
	rig.q.Sync()
	if got := rig.bus.Read32(QUEUE_SYNC_SEEN); got != 2 {
		t.Fatalf("QUEUE_SYNC_SEEN %d after two drains, expected 2", got)
	}
}

func TestSyncpointMisusePanics(t *testing.T) {
	rig := newQueueTestRig(t)
	expectPanic(t, func() { rig.q.SyncpointDone(0) })

	rig.q.HighpriBegin()
	expectPanic(t, func() { rig.q.NewSyncpoint() })
	rig.q.HighpriEnd()
}

// TestWaitSyncpointAbandonedOnHalt: a waiter must not hang forever on a
// dead pipeline.
func TestWaitSyncpointAbandonedOnHalt(t *testing.T) {
	rig := newQueueTestRig(t)

	w := rig.q.WriteBegin()
	w.Put(CMD_RET << 24) // return with an empty call stack: fatal
	rig.q.WriteEnd(w)
	sp := rig.q.NewSyncpoint()

	done := make(chan struct{})
	go func() {
		rig.q.WaitSyncpoint(sp)
		close(done)
	}()
	rig.q.Flush()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitSyncpoint hung on a halted consumer")
	}
	if code := rig.q.HaltCode(); code != HALT_RET_UNDERFLOW {
		t.Fatalf("halt code %d, expected HALT_RET_UNDERFLOW", code)
	}
}
