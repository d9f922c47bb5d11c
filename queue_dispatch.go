// queue_dispatch.go - Consumer dispatch loop for the Copper Engine

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

/*
queue_dispatch.go - The copper's dispatch loop

Runs on the consumer worker goroutine and emulates the coprocessor's
fetch/decode/execute machine:

    IDLE          parked on a zero word until the producer's wake signal
    FETCH         acquire the word at the cursor, decode the command byte
    LOAD_OVERLAY  swap persistent state and local image on overlay change
    EXEC          run the handler; commands are never preempted mid-run
    HALTED        fatal: call stack overflow, undefined command, bad DMA

High-priority preemption happens only between commands: when the request
signal is up, the loop saves the normal cursor, drains the high-priority
stream (waiting, not exiting, while the channel is still open), then
resumes the normal queue exactly where it left off.
*/

package main

import "fmt"

// dispatchState is the consumer's private machine state. Everything here
// is goroutine-local; the only cross-thread traffic is the published read
// positions, the signal bits and the status registers.
type dispatchState struct {
	q         *CommandQueue
	pc        uint32
	inHighpri bool
	savedPC   uint32 // normal-queue cursor while draining highpri
	stack     [QUEUE_CALL_DEPTH]uint32
	depth     int
	slot      *overlaySlot // loaded overlay, nil before first load
	ctx       OverlayContext
	args      [MAX_COMMAND_SIZE]uint32
}

func (q *CommandQueue) dispatchLoop() {
	st := &dispatchState{q: q, pc: q.lowCtx.bufs[0]}
	q.setState(QSTATE_IDLE)

	for {
		if q.stopFlag.Load() {
			q.setState(QSTATE_IDLE)
			return
		}

		// Command boundary: preemption point.
		if !st.inHighpri && q.sigBits.Load()&SIG_HIGHPRI_REQUESTED != 0 {
			st.enterHighpri()
		}

		w := q.bus.LoadWord32(st.pc)
		if w == 0 {
			if st.inHighpri && !q.highpriOpen.Load() {
				st.exitHighpri()
				continue
			}
			if !q.consumerPark(st) {
				q.setState(QSTATE_IDLE)
				return
			}
			continue
		}

		q.setState(QSTATE_FETCH)
		cmdByte := w >> 24
		ovlID := cmdByte >> 4

		if ovlID == QUEUE_OVERLAY_ENGINE {
			if !st.runEngineCommand(w) {
				return
			}
			continue
		}

		slot := q.overlays[ovlID]
		if slot == nil {
			st.halt(HALT_BAD_COMMAND, w)
			return
		}
		if slot != st.slot {
			st.loadOverlay(slot)
		}
		idx := int(cmdByte) - int(slot.baseID)<<4
		if idx >= len(slot.ovl.Commands) || slot.ovl.Commands[idx].Handler == nil {
			st.halt(HALT_BAD_COMMAND, w)
			return
		}
		cmd := &slot.ovl.Commands[idx]

		st.args[0] = w
		for i := 1; i < cmd.Words; i++ {
			st.args[i] = q.bus.PlainWord32(st.pc + uint32(i)*WORD_SIZE)
		}

		q.setState(QSTATE_EXEC)
		cmd.Handler(&st.ctx, st.args[:cmd.Words])

		seq := q.dispatchN.Add(1)
		if q.trace != nil {
			q.trace.record(seq, st.pc, w, cmd.Words)
		}
		st.setPC(st.pc + uint32(cmd.Words)*WORD_SIZE)
	}
}

// setPC moves the cursor and publishes it. The published position is what
// the producer's backpressure spin and the monitor observe, so it has to
// be conservative: while the consumer is inside a block call the normal
// stream's position stays frozen at the depth-0 call site. The buffer
// holding the pending return address is still occupied even though the
// cursor itself is off in the block arena; publishing an arena address
// would let the producer reuse that buffer with commands unread in it.
func (st *dispatchState) setPC(pc uint32) {
	st.pc = pc
	if st.inHighpri {
		st.q.highpriPos.Store(pc)
		return
	}
	if st.depth == 0 {
		st.q.lowpriPos.Store(pc)
	}
}

func (st *dispatchState) enterHighpri() {
	q := st.q
	st.savedPC = st.pc
	st.inHighpri = true
	st.pc = q.highpriPos.Load()
	// Running must be visible before the request drops, or a drain check
	// between the two could see the channel as already quiescent.
	q.setSignalsRaw(SIG_HIGHPRI_RUNNING)
	q.clearSignalsRaw(SIG_HIGHPRI_REQUESTED)
}

func (st *dispatchState) exitHighpri() {
	q := st.q
	st.inHighpri = false
	st.pc = st.savedPC
	q.clearSignalsRaw(SIG_HIGHPRI_RUNNING)
}

// consumerPark suspends the consumer on its zero-word cursor. Returns
// false when woken for shutdown. The parked flag plus the re-check of the
// cursor word under the lock closes the race against a producer that
// publishes and checks the flag concurrently.
func (q *CommandQueue) consumerPark(st *dispatchState) bool {
	q.wakeMu.Lock()
	q.consumerParked.Store(true)
	q.setState(QSTATE_IDLE)
	for {
		if q.stopFlag.Load() {
			q.consumerParked.Store(false)
			q.wakeMu.Unlock()
			return false
		}
		if q.bus.LoadWord32(st.pc) != 0 {
			break
		}
		if st.inHighpri {
			if !q.highpriOpen.Load() {
				break
			}
		} else if q.sigBits.Load()&SIG_HIGHPRI_REQUESTED != 0 {
			break
		}
		q.wakeCond.Wait()
	}
	q.consumerParked.Store(false)
	q.clearSignalsRaw(SIG_WAKEUP)
	q.wakeMu.Unlock()
	return true
}

// runEngineCommand executes the overlay-0 control set. Returns false when
// the consumer halted.
func (st *dispatchState) runEngineCommand(w uint32) bool {
	q := st.q
	idx := (w >> 24) & 0xF

	switch idx {
	case CMD_NOOP:
		st.setPC(st.pc + WORD_SIZE)

	case CMD_JUMP:
		st.setPC(w & CMD_ADDR_MASK)

	case CMD_CALL:
		if st.depth >= QUEUE_CALL_DEPTH {
			st.halt(HALT_CALL_OVERFLOW, w)
			return false
		}
		st.stack[st.depth] = st.pc + WORD_SIZE
		st.depth++
		st.setPC(w & CMD_ADDR_MASK)

	case CMD_RET:
		if st.depth == 0 {
			st.halt(HALT_RET_UNDERFLOW, w)
			return false
		}
		st.depth--
		st.setPC(st.stack[st.depth])

	case CMD_DMA:
		busAddr := w & CMD_ADDR_MASK
		localOff := q.bus.PlainWord32(st.pc + 1*WORD_SIZE)
		length := q.bus.PlainWord32(st.pc + 2*WORD_SIZE)
		flags := q.bus.PlainWord32(st.pc + 3*WORD_SIZE)
		if !st.execTransfer(busAddr, localOff, length, flags) {
			return false
		}
		st.setPC(st.pc + 4*WORD_SIZE)

	case CMD_WRITE_STATUS:
		q.setSignalsRaw((w >> 8) & 0xFF)
		q.clearSignalsRaw(w & 0xFF)
		st.setPC(st.pc + WORD_SIZE)

	case CMD_SYNC_INCR:
		q.raiseSyncInterrupt(w & CMD_ADDR_MASK)
		st.setPC(st.pc + WORD_SIZE)

	default:
		st.halt(HALT_BAD_COMMAND, w)
		return false
	}

	seq := q.dispatchN.Add(1)
	if q.trace != nil {
		q.trace.record(seq, st.pc, w, engineCmdWords[idx])
	}
	return true
}

// execTransfer moves bytes between bus RAM and local memory. The producer
// API validates before emitting; this re-check catches hand-written
// streams and block replay against stale geometry, and halting is the only
// recovery the machine has.
func (st *dispatchState) execTransfer(busAddr, localOff, length, flags uint32) bool {
	q := st.q
	memSize := uint32(len(q.mem))
	// Range sums can wrap in uint32; compare against the remaining room.
	if busAddr%DMA_ALIGN != 0 || localOff%DMA_ALIGN != 0 || length%DMA_ALIGN != 0 ||
		length > LOCAL_MEMORY_SIZE || localOff > LOCAL_MEMORY_SIZE-length ||
		length > memSize || busAddr > memSize-length {
		st.halt(HALT_BAD_DMA, CMD_DMA<<24|busAddr)
		return false
	}
	if flags&DMA_FLAG_TO_BUS != 0 {
		copy(q.mem[busAddr:busAddr+length], q.local[localOff:localOff+length])
	} else {
		copy(q.local[localOff:localOff+length], q.mem[busAddr:busAddr+length])
	}
	return true
}

// loadOverlay swaps the consumer onto another overlay: flush the outgoing
// persistent state to its mirror, copy in the new image, restore its
// persistent state from the mirror.
func (st *dispatchState) loadOverlay(slot *overlaySlot) {
	q := st.q
	q.setState(QSTATE_LOAD_OVERLAY)

	if st.slot != nil && st.slot.mirror != 0 {
		out := st.slot.ovl
		copy(q.mem[st.slot.mirror:st.slot.mirror+uint32(out.StateSize)],
			q.local[out.StateOffset:out.StateOffset+out.StateSize])
	}

	in := slot.ovl
	clear(q.local)
	copy(q.local, in.Data)
	if slot.mirror != 0 {
		copy(q.local[in.StateOffset:in.StateOffset+in.StateSize],
			q.mem[slot.mirror:slot.mirror+uint32(in.StateSize)])
	}

	st.slot = slot
	st.ctx = OverlayContext{q: q, slot: slot}
	q.loadedOverlay.Store(slot.baseID)
}

// halt stops the pipeline for good. There is no unwinding mechanism on
// the consumer; waiters are woken so they can observe the corpse.
func (st *dispatchState) halt(code uint32, w uint32) {
	q := st.q
	q.haltCode.Store(code)
	q.setState(QSTATE_HALTED)
	fmt.Printf("Warning: copper halted at 0x%06X on word 0x%08X: %s\n", st.pc, w, haltCodeName(code))
	q.syncMu.Lock()
	q.syncCond.Broadcast()
	q.syncMu.Unlock()
}
