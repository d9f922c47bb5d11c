// queue_block.go - Block recording and playback for the Copper Engine

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

package main

import "fmt"

// Block is a prerecorded, replayable command sequence: a display list for
// the queue. Storage is a chain of arena chunks ending in CMD_RET; the
// consumer runs it as a subroutine when a CMD_CALL referencing it is
// dispatched. Blocks may call other finished blocks; the recorded nesting
// depth is tracked for inspection, but the load-bearing depth check is the
// consumer's call stack.
type Block struct {
	head    uint32
	chunks  []uint32
	nesting int // deepest chain of block calls recorded inside
	words   int // committed command words, for the monitor
	freed   bool
}

// Nesting returns the deepest block-call chain this block makes.
func (b *Block) Nesting() int {
	return b.nesting
}

// BlockBegin starts recording. Writer output is diverted into a private
// chunk chain until BlockEnd, and Flush becomes a no-op. Reentrant
// recording is fatal, as is recording while the high-priority channel is
// open; nesting is expressed by running finished blocks from inside a
// recording, not by nesting begin/end.
func (q *CommandQueue) BlockBegin() {
	if q.recBlock != nil {
		panic("block begin: a block is already being recorded")
	}
	if q.highpriOpen.Load() {
		panic("block begin: high-priority channel is active")
	}
	chunkWords := uint32(BLOCK_CHUNK_MIN_WORDS)
	addr := q.arena.alloc(chunkWords * WORD_SIZE)
	blk := &Block{head: addr, chunks: []uint32{addr}}

	q.recBlock = blk
	q.blockCtx = writeContext{
		q:        q,
		words:    chunkWords,
		cur:      addr,
		sentinel: addr + (chunkWords-QUEUE_SENTINEL_MARGIN)*WORD_SIZE,
		block:    blk,
	}
	q.active = &q.blockCtx
}

// growBlockChunk chains a fresh, larger chunk onto the recording when the
// current one crosses its sentinel. The old chunk's tail jumps to the new
// one exactly like a live buffer switch, so playback walks the chain with
// the consumer's ordinary jump handling.
func (q *CommandQueue) growBlockChunk(ctx *writeContext) {
	words := ctx.words * 2
	if words > BLOCK_CHUNK_MAX_WORDS {
		words = BLOCK_CHUNK_MAX_WORDS
	}
	addr := q.arena.alloc(words * WORD_SIZE)
	ctx.block.chunks = append(ctx.block.chunks, addr)

	q.bus.PutWord32(ctx.cur, CMD_JUMP<<24|addr)
	ctx.words = words
	ctx.cur = addr
	ctx.sentinel = addr + (words-QUEUE_SENTINEL_MARGIN)*WORD_SIZE
}

// BlockEnd finalizes the recording and returns the replayable handle.
// The chain is terminated with CMD_RET and normal writing resumes. The
// terminator is written in place rather than through WriteEnd: playback
// never advances past it, so a sentinel crossing here must not chain a
// chunk nothing can reach.
func (q *CommandQueue) BlockEnd() *Block {
	if q.recBlock == nil {
		panic("block end: no block is being recorded")
	}
	q.bus.PutWord32(q.blockCtx.cur, CMD_RET<<24)
	q.blockCtx.cur += WORD_SIZE

	blk := q.recBlock
	blk.words++
	q.recBlock = nil
	q.blockCtx.block = nil
	q.active = &q.lowCtx
	return blk
}

// BlockRun emits a call to the block into the active stream: the live
// queue, or the recording of another block. Calling a block from the
// high-priority queue is unsupported (FIXME in the queue design: the
// interaction between the call stack and preemption save/restore is
// unresolved, so it stays fatal rather than silently misbehaving).
func (q *CommandQueue) BlockRun(blk *Block) {
	if blk == nil || blk.freed {
		panic("block run: block is freed or nil")
	}
	if q.highpriOpen.Load() || q.active == &q.highCtx {
		panic("block run: cannot call a block from the high-priority queue")
	}
	if q.recBlock != nil {
		if depth := blk.nesting + 1; depth > q.recBlock.nesting {
			q.recBlock.nesting = depth
		}
	}
	q.emit1(CMD_CALL<<24 | blk.head)
}

// BlockFree releases the block's storage. The caller guarantees nothing
// still references it: not the live queue (drain with a syncpoint first)
// and not another un-freed block. A violated guarantee is a dangling
// reference the consumer will walk into undefined territory.
func (q *CommandQueue) BlockFree(blk *Block) {
	if blk == nil || blk.freed {
		panic("block free: block is freed or nil")
	}
	if q.recBlock == blk {
		panic("block free: block is still being recorded")
	}
	blk.freed = true
	for _, chunk := range blk.chunks {
		q.arena.free(chunk)
	}
	blk.chunks = nil
}

// String describes the block for the monitor.
func (b *Block) String() string {
	if b.freed {
		return "block(freed)"
	}
	return fmt.Sprintf("block(0x%06X, %d chunks, %d words, nesting %d)", b.head, len(b.chunks), b.words, b.nesting)
}
