// queue_highpri.go - High-priority channel for the Copper Engine

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

/*
queue_highpri.go - High-priority channel

The high-priority channel carries urgent work past whatever is queued in
the normal stream. It has its own ping-pong buffer pair and read cursor;
opening it redirects the producer's writer, raises the request signal
and lets the consumer preempt at the next command boundary. The consumer
saves the normal cursor on entry and restores it on exit, so the normal
stream resumes at exactly the command it was about to fetch.

While the channel is open the consumer stays inside it even when it runs
dry, parked, so a burst split across several writes never interleaves
with normal commands. Interleaving between separate begin/end cycles is
fair game.
*/

package main

import "runtime"

// HighpriBegin opens the high-priority channel and redirects subsequent
// writes into it. Panics if the channel is already open or a block is
// being recorded.
func (q *CommandQueue) HighpriBegin() {
	if q.recBlock != nil {
		panic("queue: cannot open the high-priority channel while recording a block")
	}
	if q.highpriOpen.Load() {
		panic("queue: high-priority channel already open")
	}
	q.highpriOpen.Store(true)
	q.active = &q.highCtx
	q.setSignalsRaw(SIG_HIGHPRI_REQUESTED)
	q.kickConsumer()
}

// HighpriEnd closes the channel and returns the writer to the normal
// queue. Written commands are already published; the kick covers a
// consumer parked inside the open channel waiting for more input.
func (q *CommandQueue) HighpriEnd() {
	if !q.highpriOpen.Load() {
		panic("queue: high-priority channel is not open")
	}
	q.active = &q.lowCtx
	q.highpriOpen.Store(false)
	q.kickConsumer()
}

// HighpriSync busy-waits until every submitted high-priority command has
// executed: the request and running signals are both down and the read
// cursor has caught the write cursor. Panics if called with the channel
// still open, or if the consumer halts while it spins.
func (q *CommandQueue) HighpriSync() {
	if q.highpriOpen.Load() {
		panic("queue: HighpriSync with the channel still open")
	}
	for {
		if q.sigBits.Load()&(SIG_HIGHPRI_REQUESTED|SIG_HIGHPRI_RUNNING) == 0 &&
			q.highpriPos.Load() == q.wposHigh.Load() {
			return
		}
		if q.Halted() {
			panic("queue: consumer halted during HighpriSync: " + haltCodeName(q.HaltCode()))
		}
		runtime.Gosched()
	}
}
