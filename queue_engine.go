// queue_engine.go - Command queue engine core for the Copper Engine

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

/*
queue_engine.go - Command Queue Engine

The CommandQueue is the process-wide context through which a producer (the
controlling program) hands command streams to the consumer (the copper, a
dedicated worker goroutine emulating the coprocessor's dispatch loop).

The two sides share no mutex. The producer only ever advances its write
cursor and publishes command words into bus RAM; the consumer only ever
advances its read cursor and raises interrupts. The producer blocks in
exactly two situations: buffer-reuse backpressure (a spin on the consumer's
published read position) and syncpoint waits (a condition variable serviced
by the sync interrupt). The consumer suspends only when it reads a zero
word at its cursor, and is woken by the producer's flush signal.

Engine state is observable through the QUEUE_* MMIO registers so monitors
and bus-level tooling can watch the queue like any other hardware block.
*/

package main

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// QueueConfig sizes the queue at creation time. The zero value is not
// valid; use DefaultQueueConfig.
type QueueConfig struct {
	LowpriWords  uint32 // words per lowpri ping-pong buffer
	HighpriWords uint32 // words per highpri ping-pong buffer
	TraceDepth   int    // dispatch flight-recorder entries, 0 disables
}

func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		LowpriWords:  QUEUE_LOWPRI_WORDS,
		HighpriWords: QUEUE_HIGHPRI_WORDS,
		TraceDepth:   256,
	}
}

// queueWorker tracks the consumer goroutine, mirroring the stop/done shape
// used by every worker in the engine.
type queueWorker struct {
	stop func()
	done chan struct{}
}

// CommandQueue is the engine context. One instance per process; create
// with NewCommandQueue, start the consumer with Start, tear down with
// Close.
type CommandQueue struct {
	bus *MachineBus
	mem []byte // bus.GetMemory(), cached for bulk copies
	cfg QueueConfig

	arena *busArena // block chunks + overlay state mirrors

	// Overlay table. Slots are keyed by overlay ID; a multi-ID overlay
	// occupies consecutive slots pointing at the same entry. Append-only.
	overlays [QUEUE_MAX_OVERLAYS]*overlaySlot

	// Producer-side writer state. Single producer: no locking, the caller
	// serializes access per the queue contract.
	cursor   WriteCursor
	lowCtx   writeContext
	highCtx  writeContext
	blockCtx writeContext
	active   *writeContext
	recBlock *Block // non-nil while recording

	// Writer positions published for monitors and highpri drain checks.
	wposLow  atomic.Uint32
	wposHigh atomic.Uint32

	// Consumer-published read positions (absolute bus addresses). The
	// producer's backpressure spin reads these; nothing else is shared.
	lowpriPos  atomic.Uint32
	highpriPos atomic.Uint32

	// Status register: bits 0-7 signal bits, consumer state and halt code
	// kept separately and composed on MMIO reads.
	sigBits   atomic.Uint32
	consState atomic.Uint32
	haltCode  atomic.Uint32
	dispatchN atomic.Uint64

	// Overlay currently loaded on the consumer (base ID), NO_OVERLAY none.
	loadedOverlay atomic.Uint32

	// Highpri channel open for writing (between HighpriBegin/End).
	highpriOpen atomic.Bool

	// Consumer wake protocol: the consumer parks on wakeCond when it
	// reads a zero word; Flush broadcasts only if consumerParked is set.
	wakeMu         sync.Mutex
	wakeCond       *sync.Cond
	consumerParked atomic.Bool

	// Syncpoint engine. nextSync is producer-owned; syncSeen advances on
	// the consumer when CMD_SYNC_INCR executes and its interrupt fires.
	nextSync atomic.Uint32
	syncSeen atomic.Uint32
	syncMu   sync.Mutex
	syncCond *sync.Cond

	local []byte // coprocessor-local memory, consumer-owned

	trace *dispatchTrace

	worker   *queueWorker
	stopFlag atomic.Bool
	closed   atomic.Bool
}

const NO_OVERLAY = 0xFFFFFFFF

// NewCommandQueue wires a queue engine onto the bus: allocates the
// ping-pong buffers at their fixed bases, sets up the block arena, maps
// the QUEUE_* registers and installs the lock-free status reader. The
// consumer is not running until Start.
func NewCommandQueue(bus *MachineBus, cfg QueueConfig) (*CommandQueue, error) {
	if cfg.LowpriWords < MAX_COMMAND_SIZE+QUEUE_SENTINEL_MARGIN || cfg.HighpriWords < MAX_COMMAND_SIZE+QUEUE_SENTINEL_MARGIN {
		return nil, fmt.Errorf("queue buffers too small: lowpri %d highpri %d words (minimum %d)",
			cfg.LowpriWords, cfg.HighpriWords, MAX_COMMAND_SIZE+QUEUE_SENTINEL_MARGIN)
	}
	mem := bus.GetMemory()
	queueEnd := QUEUE_RAM_BASE + 2*cfg.LowpriWords*WORD_SIZE + 2*cfg.HighpriWords*WORD_SIZE
	if queueEnd > BLOCK_ARENA_BASE {
		return nil, fmt.Errorf("queue buffers overflow their region: end 0x%06X exceeds 0x%06X", queueEnd, uint32(BLOCK_ARENA_BASE))
	}

	q := &CommandQueue{
		bus:   bus,
		mem:   mem,
		cfg:   cfg,
		arena: newBusArena(mem, BLOCK_ARENA_BASE, BLOCK_ARENA_END),
		local: make([]byte, LOCAL_MEMORY_SIZE),
	}
	q.wakeCond = sync.NewCond(&q.wakeMu)
	q.syncCond = sync.NewCond(&q.syncMu)
	q.loadedOverlay.Store(NO_OVERLAY)
	if cfg.TraceDepth > 0 {
		q.trace = newDispatchTrace(cfg.TraceDepth)
	}

	low0 := uint32(QUEUE_RAM_BASE)
	low1 := low0 + cfg.LowpriWords*WORD_SIZE
	high0 := low1 + cfg.LowpriWords*WORD_SIZE
	high1 := high0 + cfg.HighpriWords*WORD_SIZE
	q.lowCtx.init(q, [2]uint32{low0, low1}, cfg.LowpriWords, false)
	q.highCtx.init(q, [2]uint32{high0, high1}, cfg.HighpriWords, true)
	q.active = &q.lowCtx

	clear(mem[low0 : high1+cfg.HighpriWords*WORD_SIZE])
	q.lowpriPos.Store(low0)
	q.highpriPos.Store(high0)
	q.wposLow.Store(low0)
	q.wposHigh.Store(high0)

	bus.MapIO(QUEUE_REGION_BASE, QUEUE_REGION_END, q.registerRead, q.registerWrite)
	bus.SetStatusReader(QUEUE_STATUS, q.registerRead)
	return q, nil
}

// Start launches the consumer worker. The bus mapping set is expected to
// be complete; callers seal it themselves once all devices are wired.
func (q *CommandQueue) Start() error {
	if q.closed.Load() {
		return fmt.Errorf("command queue is closed")
	}
	if q.worker != nil {
		return fmt.Errorf("command queue already started")
	}
	done := make(chan struct{})
	q.worker = &queueWorker{
		done: done,
		stop: func() {
			q.stopFlag.Store(true)
			q.kickConsumer()
		},
	}
	go func() {
		defer close(done)
		q.dispatchLoop()
	}()
	return nil
}

// Close stops the consumer and marks the queue unusable. Outstanding
// syncpoint waiters are woken and return unsatisfied with a warning.
func (q *CommandQueue) Close() {
	if q.closed.Swap(true) {
		return
	}
	if q.worker != nil {
		q.worker.stop()
		select {
		case <-q.worker.done:
		case <-time.After(2 * time.Second):
			fmt.Println("Warning: command queue consumer did not stop within timeout")
		}
		q.worker = nil
	}
	q.syncMu.Lock()
	q.syncCond.Broadcast()
	q.syncMu.Unlock()
}

// Halted reports whether the consumer hit a fatal condition and stopped.
func (q *CommandQueue) Halted() bool {
	return q.haltCode.Load() != HALT_NONE
}

// HaltCode returns the HALT_* code, HALT_NONE while healthy.
func (q *CommandQueue) HaltCode() uint32 {
	return q.haltCode.Load()
}

// Signals returns the current signal byte (SIG_* bits).
func (q *CommandQueue) Signals() uint32 {
	return q.sigBits.Load()
}

func (q *CommandQueue) setSignalsRaw(bits uint32) {
	q.sigBits.Or(bits)
}

func (q *CommandQueue) clearSignalsRaw(bits uint32) {
	q.sigBits.And(^bits)
}

func (q *CommandQueue) setState(state uint32) {
	q.consState.Store(state)
}

// kickConsumer wakes the consumer if it is parked. The parked check keeps
// the common case (consumer busy) down to one atomic load.
func (q *CommandQueue) kickConsumer() {
	if q.consumerParked.Load() {
		q.wakeMu.Lock()
		q.wakeCond.Broadcast()
		q.wakeMu.Unlock()
	}
}

// raiseSyncInterrupt runs on the consumer goroutine when CMD_SYNC_INCR
// executes: the interrupt handler advances the completion counter and
// releases any waiters. The command payload carries the low 24 bits of
// the syncpoint number purely as a stream-order check; the counter itself
// only ever increments.
func (q *CommandQueue) raiseSyncInterrupt(id uint32) {
	q.setSignalsRaw(SIG_SYNCPOINT)
	seen := q.syncSeen.Add(1)
	if seen&CMD_ADDR_MASK != id {
		fmt.Printf("Warning: syncpoint %d fired out of order (counter %d)\n", id, seen)
	}
	q.syncMu.Lock()
	q.syncCond.Broadcast()
	q.syncMu.Unlock()
	q.clearSignalsRaw(SIG_SYNCPOINT)
}

// registerRead services the QUEUE_* MMIO block.
func (q *CommandQueue) registerRead(addr uint32) uint32 {
	switch addr {
	case QUEUE_STATUS:
		return q.sigBits.Load() | q.consState.Load()<<8
	case QUEUE_LOWPRI_POS:
		return q.lowpriPos.Load()
	case QUEUE_HIGHPRI_POS:
		return q.highpriPos.Load()
	case QUEUE_SYNC_SEEN:
		return q.syncSeen.Load()
	case QUEUE_OVERLAY:
		return q.loadedOverlay.Load()
	case QUEUE_HALT_CODE:
		return q.haltCode.Load()
	case QUEUE_DISPATCH_COUNT:
		return uint32(q.dispatchN.Load())
	}
	return 0
}

func (q *CommandQueue) registerWrite(addr uint32, value uint32) {
	fmt.Printf("Warning: write to read-only queue register 0x%06X (value 0x%08X)\n", addr, value)
}

func haltCodeName(code uint32) string {
	switch code {
	case HALT_NONE:
		return "none"
	case HALT_CALL_OVERFLOW:
		return "block call depth exceeded"
	case HALT_RET_UNDERFLOW:
		return "return with empty call stack"
	case HALT_BAD_COMMAND:
		return "undefined command"
	case HALT_BAD_DMA:
		return "invalid transfer"
	}
	return fmt.Sprintf("code %d", code)
}
