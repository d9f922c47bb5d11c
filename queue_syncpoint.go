// queue_syncpoint.go - Syncpoint engine for the Copper Engine

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

/*
queue_syncpoint.go - Syncpoints

A syncpoint marks a position in the command stream. Creating one emits a
CMD_SYNC_INCR command; when the consumer executes it, the sync interrupt
advances the shared completion counter and broadcasts to waiters. A
syncpoint is done exactly when the counter has reached its number, so
handles created earlier complete earlier and completion is never
retracted.

Handles are plain integers: valid ones are strictly positive, the zero
value is recognisably never issued, and comparing a handle against the
counter is a single atomic load. Checking is non-blocking; waiting parks
the caller on the sync condition variable rather than spinning.
*/

package main

import "fmt"

// Syncpoint identifies one marker in the command stream. Valid values
// are positive; the zero value is never returned by NewSyncpoint.
type Syncpoint uint32

// NewSyncpoint emits a syncpoint command into the normal queue and
// returns its handle. Must not be called while recording a block (a
// replayed syncpoint would fire once per run, ruining the counter) or
// while the high-priority channel is open.
func (q *CommandQueue) NewSyncpoint() Syncpoint {
	if q.recBlock != nil {
		panic("queue: cannot create a syncpoint while recording a block")
	}
	if q.highpriOpen.Load() {
		panic("queue: cannot create a syncpoint in the high-priority channel")
	}
	id := q.nextSync.Add(1)
	q.emit1(CMD_SYNC_INCR<<24 | id&CMD_ADDR_MASK)
	return Syncpoint(id)
}

// SyncpointDone reports whether the consumer has executed past the
// syncpoint. Non-blocking; a done syncpoint stays done.
func (q *CommandQueue) SyncpointDone(sp Syncpoint) bool {
	if sp == 0 {
		panic("queue: zero syncpoint handle")
	}
	return q.syncSeen.Load() >= uint32(sp)
}

// WaitSyncpoint blocks the caller until the syncpoint completes. The
// stream is flushed first, otherwise the consumer could be parked short
// of the marker forever. Waiters abandoned by Close or a consumer halt
// return early with a warning; callers watching for that check Halted.
func (q *CommandQueue) WaitSyncpoint(sp Syncpoint) {
	if q.SyncpointDone(sp) {
		return
	}
	q.Flush()
	q.syncMu.Lock()
	defer q.syncMu.Unlock()
	for q.syncSeen.Load() < uint32(sp) {
		if q.closed.Load() {
			fmt.Printf("Warning: abandoning wait for syncpoint %d: queue closed\n", sp)
			return
		}
		if q.Halted() {
			fmt.Printf("Warning: abandoning wait for syncpoint %d: consumer halted (%s)\n",
				sp, haltCodeName(q.HaltCode()))
			return
		}
		q.syncCond.Wait()
	}
}

// Sync drains the normal queue: emits a fresh syncpoint and waits for
// it. On return every previously submitted command has executed.
func (q *CommandQueue) Sync() {
	q.WaitSyncpoint(q.NewSyncpoint())
}
