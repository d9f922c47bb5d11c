// queue_constants.go - Command queue protocol constants for the Copper Engine

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

/*
queue_constants.go - Command Queue Protocol Reference

Central reference for the command-queue wire protocol and the engine's
memory map. Individual subsystems define their own detailed constants in
separate *_constants.go files (see gfx_constants.go, mixer_constants.go).

MEMORY MAP OVERVIEW
===================

Address Range       Size    Region              Owner
---------------------------------------------------------------------------
0x000000-0x00FFFF   64KB    Scratch RAM         callers/tests
0x010000-0x0107FF   2KB     Lowpri buffer 0     queue engine
0x010800-0x010FFF   2KB     Lowpri buffer 1     queue engine
0x011000-0x0111FF   512B    Highpri buffer 0    queue engine
0x011200-0x0113FF   512B    Highpri buffer 1    queue engine
0x011400-0x01FFFF   -       reserved            queue engine
0x020000-0x17FFFF   1.4MB   Block arena         queue engine (blocks + overlay state mirrors)
0x180000-0x3FFFFF   2.5MB   Framebuffer         gfx overlay
0x400000-0x7FFFFF   4MB     Free RAM            callers/tests

0x0F0000-0x0F00FF   256B    Queue registers     queue engine (MMIO)
0x0F0100-0x0F01FF   256B    Display registers   gfx overlay (MMIO)
0x0F0200-0x0F02FF   256B    Mixer registers     mixer overlay (MMIO)

COMMAND WORD FORMAT
===================

The first word of every command carries the command byte in its top 8 bits:
high nibble = overlay ID (0-15), low nibble = command index. Overlay 0 is
the engine itself; its command set is closed (see CMD_* below). A command
occupies 1..MAX_COMMAND_SIZE words; the length is fixed per command and
known to both sides through the overlay's command table.

The producer writes argument words first and publishes the first word last
with a release store; the consumer fetches first words with acquire loads.
A zero first word is not a command: it marks the end of written input and
parks the consumer until the producer signals more work.
*/

package main

// =============================================================================
// Queue geometry
// =============================================================================

const (
	MAX_COMMAND_SIZE = 16 // words, including the first
	WORD_SIZE        = 4

	QUEUE_LOWPRI_WORDS  = 0x200 // per ping-pong buffer
	QUEUE_HIGHPRI_WORDS = 0x80

	// A switch is forced once the cursor passes size - QUEUE_SENTINEL_MARGIN,
	// leaving room for the command that crossed it plus the buffer jump.
	QUEUE_SENTINEL_MARGIN = MAX_COMMAND_SIZE + 1

	QUEUE_MAX_OVERLAYS   = 16
	QUEUE_OVERLAY_ENGINE = 0 // reserved: engine control commands
	QUEUE_CALL_DEPTH     = 8 // block call nesting bound

	LOCAL_MEMORY_SIZE = 8 * 1024 // coprocessor-local store
)

// =============================================================================
// Engine control commands (overlay 0)
// =============================================================================

const (
	CMD_NOOP         = 0x01
	CMD_JUMP         = 0x02 // w0 low 24 bits = target bus address
	CMD_CALL         = 0x03 // w0 low 24 bits = block address, pushes return
	CMD_RET          = 0x04 // pops return stack
	CMD_DMA          = 0x05 // w0 low24 bus addr, w1 local offset, w2 length, w3 flags
	CMD_WRITE_STATUS = 0x06 // w0 bits 0-7 clear mask, bits 8-15 set mask
	CMD_SYNC_INCR    = 0x07 // w0 low 24 bits = syncpoint id

	CMD_ADDR_MASK = 0x00FFFFFF // jump/call target field

	DMA_FLAG_TO_BUS = 1 << 0 // local -> bus (default is bus -> local)
	DMA_FLAG_ASYNC  = 1 << 1 // consumer need not wait for completion
	DMA_ALIGN       = 8      // addresses and lengths are 8-byte multiples
)

// Engine command word lengths, indexed by command index. Zero = invalid.
var engineCmdWords = [16]int{
	CMD_NOOP:         1,
	CMD_JUMP:         1,
	CMD_CALL:         1,
	CMD_RET:          1,
	CMD_DMA:          4,
	CMD_WRITE_STATUS: 1,
	CMD_SYNC_INCR:    1,
}

// =============================================================================
// Signal bits (low byte of QUEUE_STATUS)
// =============================================================================

const (
	SIG_USER0             = 1 << 0 // caller-usable
	SIG_USER1             = 1 << 1 // caller-usable
	SIG_HIGHPRI_REQUESTED = 1 << 2
	SIG_HIGHPRI_RUNNING   = 1 << 3
	SIG_SYNCPOINT         = 1 << 4
	SIG_WAKEUP            = 1 << 5

	SIG_USER_MASK   = SIG_USER0 | SIG_USER1
	SIG_ENGINE_MASK = 0xFF &^ SIG_USER_MASK
)

// =============================================================================
// Consumer states (bits 8-15 of QUEUE_STATUS)
// =============================================================================

const (
	QSTATE_IDLE = iota
	QSTATE_FETCH
	QSTATE_LOAD_OVERLAY
	QSTATE_EXEC
	QSTATE_HALTED
)

// Halt codes (QUEUE_HALT_CODE register)
const (
	HALT_NONE          = 0
	HALT_CALL_OVERFLOW = 1 // block call depth exceeded QUEUE_CALL_DEPTH
	HALT_RET_UNDERFLOW = 2 // return with empty call stack
	HALT_BAD_COMMAND   = 3 // unknown engine command or empty overlay slot
	HALT_BAD_DMA       = 4 // misaligned or out-of-range transfer
)

// =============================================================================
// Queue memory regions
// =============================================================================

const (
	QUEUE_RAM_BASE = 0x010000

	QUEUE_LOWPRI_BUF0  = QUEUE_RAM_BASE
	QUEUE_LOWPRI_BUF1  = QUEUE_LOWPRI_BUF0 + QUEUE_LOWPRI_WORDS*WORD_SIZE
	QUEUE_HIGHPRI_BUF0 = QUEUE_LOWPRI_BUF1 + QUEUE_LOWPRI_WORDS*WORD_SIZE
	QUEUE_HIGHPRI_BUF1 = QUEUE_HIGHPRI_BUF0 + QUEUE_HIGHPRI_WORDS*WORD_SIZE

	BLOCK_ARENA_BASE = 0x020000
	BLOCK_ARENA_END  = 0x17FFFF

	// Recorded blocks grow in chunks chained with CMD_JUMP.
	BLOCK_CHUNK_MIN_WORDS = 128
	BLOCK_CHUNK_MAX_WORDS = 4096
)

// =============================================================================
// Queue registers (MMIO, read-only observability)
// =============================================================================

const (
	QUEUE_REGION_BASE = 0x0F0000
	QUEUE_REGION_END  = 0x0F00FF

	QUEUE_STATUS         = 0x0F0000 // bits 0-7 signals, bits 8-15 consumer state
	QUEUE_LOWPRI_POS     = 0x0F0004 // consumer lowpri fetch address
	QUEUE_HIGHPRI_POS    = 0x0F0008 // consumer highpri fetch address
	QUEUE_SYNC_SEEN      = 0x0F000C // completion counter
	QUEUE_OVERLAY        = 0x0F0010 // loaded overlay base ID, 0xFFFFFFFF none
	QUEUE_HALT_CODE      = 0x0F0014
	QUEUE_DISPATCH_COUNT = 0x0F0018 // commands executed since Start
)
