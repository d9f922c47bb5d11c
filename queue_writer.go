// queue_writer.go - Producer-side writer for the Copper Engine command queue

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"runtime"
)

// writeContext tracks one output stream: the lowpri ping-pong pair, the
// highpri pair, or a block recording. The active context is swapped by
// HighpriBegin/End and BlockBegin/End; all writer output goes through it.
type writeContext struct {
	q        *CommandQueue
	bufs     [2]uint32 // ping-pong buffer base addresses (unused for blocks)
	words    uint32    // words per buffer / current chunk
	bufIdx   int
	cur      uint32 // absolute address of the next word to write
	sentinel uint32 // crossing this after a commit forces a buffer switch
	highpri  bool
	block    *Block // non-nil when this context records a block
}

func (ctx *writeContext) init(q *CommandQueue, bufs [2]uint32, words uint32, highpri bool) {
	ctx.q = q
	ctx.bufs = bufs
	ctx.words = words
	ctx.highpri = highpri
	ctx.bufIdx = 0
	ctx.cur = bufs[0]
	ctx.sentinel = bufs[0] + (words-QUEUE_SENTINEL_MARGIN)*WORD_SIZE
}

func (ctx *writeContext) publishWpos() {
	if ctx.block != nil {
		return
	}
	if ctx.highpri {
		ctx.q.wposHigh.Store(ctx.cur)
	} else {
		ctx.q.wposLow.Store(ctx.cur)
	}
}

// WriteCursor stages one command between WriteBegin and WriteEnd. At most
// MAX_COMMAND_SIZE words; the first word must carry the command byte in
// its top 8 bits.
type WriteCursor struct {
	active bool
	n      int
	buf    [MAX_COMMAND_SIZE]uint32
}

// Put appends one word to the staged command.
func (w *WriteCursor) Put(word uint32) {
	if !w.active {
		panic("queue writer: Put outside WriteBegin/WriteEnd")
	}
	if w.n >= MAX_COMMAND_SIZE {
		panic(fmt.Sprintf("queue writer: command exceeds %d words", MAX_COMMAND_SIZE))
	}
	w.buf[w.n] = word
	w.n++
}

// WriteBegin opens a command. The queue is single-producer: the caller
// serializes WriteBegin/WriteEnd pairs. Nested begins panic.
func (q *CommandQueue) WriteBegin() *WriteCursor {
	if q.cursor.active {
		panic("queue writer: WriteBegin while previous command uncommitted")
	}
	q.cursor.active = true
	q.cursor.n = 0
	return &q.cursor
}

// WriteEnd commits the staged command to the active stream. Argument words
// are stored first and the command's first word is published last with a
// release store, so a consumer that observes the first word sees the rest.
// Commits past the sentinel switch to the next buffer (or grow the block
// chunk) before the next command.
func (q *CommandQueue) WriteEnd(w *WriteCursor) {
	if w != &q.cursor || !w.active {
		panic("queue writer: WriteEnd with stale cursor")
	}
	w.active = false
	if w.n == 0 {
		return
	}

	ctx := q.active
	addr := ctx.cur
	for i := 1; i < w.n; i++ {
		q.bus.PutWord32(addr+uint32(i)*WORD_SIZE, w.buf[i])
	}
	q.bus.StoreWord32(addr, w.buf[0])

	ctx.cur = addr + uint32(w.n)*WORD_SIZE
	if ctx.block != nil {
		ctx.block.words += w.n
	}
	ctx.publishWpos()
	if ctx.cur >= ctx.sentinel {
		q.nextBuffer(ctx)
	}
}

// emit1 commits a single-word command. Shorthand used by the engine's own
// command emitters and the demo overlays.
func (q *CommandQueue) emit1(word uint32) {
	w := q.WriteBegin()
	w.Put(word)
	q.WriteEnd(w)
}

// nextBuffer advances the context to its other ping-pong buffer, waiting
// for the consumer to vacate it first. The switch is in-band: the old
// buffer's tail gets a jump command the consumer follows. Block contexts
// grow a fresh chunk instead and never block.
func (q *CommandQueue) nextBuffer(ctx *writeContext) {
	if ctx.block != nil {
		q.growBlockChunk(ctx)
		return
	}

	target := ctx.bufs[1-ctx.bufIdx]
	limit := target + ctx.words*WORD_SIZE

	// The consumer may be parked mid-stream; it has to run to vacate the
	// target buffer, so raise the wake signal before spinning.
	q.flushInternal()

	pos := q.readPos(ctx)
	for pos >= target && pos < limit {
		if q.Halted() {
			panic(fmt.Sprintf("command queue: consumer halted during backpressure (%s)", haltCodeName(q.haltCode.Load())))
		}
		runtime.Gosched()
		pos = q.readPos(ctx)
	}

	// Target vacated. Zero it so anything past the producer's progress
	// reads as the idle marker, then publish the jump; the release store
	// of the jump word orders the zeroing for the consumer.
	clear(q.mem[target:limit])
	q.bus.StoreWord32(ctx.cur, CMD_JUMP<<24|target)

	ctx.bufIdx = 1 - ctx.bufIdx
	ctx.cur = target
	ctx.sentinel = target + (ctx.words-QUEUE_SENTINEL_MARGIN)*WORD_SIZE
	ctx.publishWpos()

	// The consumer may have parked on the very word the jump landed in.
	q.kickConsumer()
}

func (q *CommandQueue) readPos(ctx *writeContext) uint32 {
	if ctx.highpri {
		return q.highpriPos.Load()
	}
	return q.lowpriPos.Load()
}

// Flush wakes the consumer if it has gone idle. Near-constant-time: one
// atomic or plus a parked-flag check. No-op while recording a block,
// since block contents are never directly executed.
func (q *CommandQueue) Flush() {
	if q.recBlock != nil {
		return
	}
	q.flushInternal()
}

func (q *CommandQueue) flushInternal() {
	q.setSignalsRaw(SIG_WAKEUP)
	q.kickConsumer()
}

// Noop enqueues an engine no-op command.
func (q *CommandQueue) Noop() {
	q.emit1(CMD_NOOP << 24)
}

// EmitSignal enqueues a command that sets and clears caller-usable signal
// bits when the consumer reaches it. Only SIG_USER0 and SIG_USER1 may be
// touched; the remaining bits belong to the engine.
func (q *CommandQueue) EmitSignal(setBits, clearBits uint32) {
	if (setBits|clearBits)&^uint32(SIG_USER_MASK) != 0 {
		panic(fmt.Sprintf("queue writer: signal command may only touch user bits (set 0x%02X clear 0x%02X)", setBits, clearBits))
	}
	q.emit1(CMD_WRITE_STATUS<<24 | setBits<<8 | clearBits)
}

// TransferToLocal enqueues a transfer of length bytes from bus RAM into
// coprocessor-local memory. Addresses and length must be 8-byte aligned
// multiples; async skips the completion wait on hardware-style consumers
// (the software consumer completes transfers inline either way).
func (q *CommandQueue) TransferToLocal(busAddr, localOff, length uint32, async bool) {
	q.emitTransfer(busAddr, localOff, length, async, false)
}

// TransferToBus enqueues a transfer of length bytes from coprocessor-local
// memory into bus RAM. Same alignment rules as TransferToLocal.
func (q *CommandQueue) TransferToBus(localOff, busAddr, length uint32, async bool) {
	q.emitTransfer(busAddr, localOff, length, async, true)
}

func (q *CommandQueue) emitTransfer(busAddr, localOff, length uint32, async, toBus bool) {
	if busAddr%DMA_ALIGN != 0 || localOff%DMA_ALIGN != 0 || length%DMA_ALIGN != 0 {
		panic(fmt.Sprintf("queue transfer: bus 0x%06X local 0x%04X length %d must be %d-byte aligned multiples",
			busAddr, localOff, length, DMA_ALIGN))
	}
	if length == 0 {
		return
	}
	// Overflow-safe range checks: the sums can wrap in uint32.
	if length > LOCAL_MEMORY_SIZE || localOff > LOCAL_MEMORY_SIZE-length {
		panic(fmt.Sprintf("queue transfer: local range 0x%04X+%d exceeds local memory", localOff, length))
	}
	if memSize := uint32(len(q.mem)); length > memSize || busAddr > memSize-length {
		panic(fmt.Sprintf("queue transfer: bus range 0x%06X+%d exceeds memory", busAddr, length))
	}
	var flags uint32
	if toBus {
		flags |= DMA_FLAG_TO_BUS
	}
	if async {
		flags |= DMA_FLAG_ASYNC
	}
	w := q.WriteBegin()
	w.Put(CMD_DMA<<24 | busAddr)
	w.Put(localOff)
	w.Put(length)
	w.Put(flags)
	q.WriteEnd(w)
}
