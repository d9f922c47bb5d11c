// queue_monitor.go - Queue state monitor for the Copper Engine

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

/*
queue_monitor.go - Queue monitor

Text dump of the live engine for the interactive console and post-mortem
prints. Everything here goes through the QUEUE_* MMIO registers and the
published atomics, never the consumer's private state, so dumping a
running machine is always safe.
*/

package main

import (
	"fmt"
	"io"
)

func queueStateName(state uint32) string {
	switch state {
	case QSTATE_IDLE:
		return "IDLE"
	case QSTATE_FETCH:
		return "FETCH"
	case QSTATE_LOAD_OVERLAY:
		return "LOAD_OVERLAY"
	case QSTATE_EXEC:
		return "EXEC"
	case QSTATE_HALTED:
		return "HALTED"
	}
	return fmt.Sprintf("state %d", state)
}

func signalNames(bits uint32) string {
	if bits == 0 {
		return "-"
	}
	names := ""
	add := func(bit uint32, name string) {
		if bits&bit != 0 {
			if names != "" {
				names += ","
			}
			names += name
		}
	}
	add(SIG_USER0, "USER0")
	add(SIG_USER1, "USER1")
	add(SIG_HIGHPRI_REQUESTED, "HP_REQ")
	add(SIG_HIGHPRI_RUNNING, "HP_RUN")
	add(SIG_SYNCPOINT, "SYNC")
	add(SIG_WAKEUP, "WAKE")
	return names
}

// DumpState writes a monitor-style report of the engine to w. The
// register values are read back through the bus so the dump exercises
// the same path a bus-level debugger would.
func (q *CommandQueue) DumpState(w io.Writer) {
	status := q.bus.Read32(QUEUE_STATUS)
	sig := status & 0xFF
	state := status >> 8

	fmt.Fprintf(w, "Command queue: %s  signals=%s\n", queueStateName(state), signalNames(sig))
	fmt.Fprintf(w, "  lowpri : read %06X  write %06X\n",
		q.bus.Read32(QUEUE_LOWPRI_POS), q.wposLow.Load())
	fmt.Fprintf(w, "  highpri: read %06X  write %06X  open=%v\n",
		q.bus.Read32(QUEUE_HIGHPRI_POS), q.wposHigh.Load(), q.highpriOpen.Load())
	fmt.Fprintf(w, "  sync   : issued %d  seen %d\n",
		q.nextSync.Load(), q.bus.Read32(QUEUE_SYNC_SEEN))
	fmt.Fprintf(w, "  dispatched %d commands\n", q.bus.Read32(QUEUE_DISPATCH_COUNT))

	if ovl := q.bus.Read32(QUEUE_OVERLAY); ovl == NO_OVERLAY {
		fmt.Fprintf(w, "  overlay: none loaded\n")
	} else if slot := q.overlays[ovl&0xF]; slot != nil {
		fmt.Fprintf(w, "  overlay: %d (%s)\n", ovl, slot.ovl.Name)
	} else {
		fmt.Fprintf(w, "  overlay: %d\n", ovl)
	}

	if code := q.bus.Read32(QUEUE_HALT_CODE); code != HALT_NONE {
		fmt.Fprintf(w, "  HALTED: %s\n", haltCodeName(code))
	}

	st := q.arena.stats()
	fmt.Fprintf(w, "  arena  : %d allocations, %d bytes used, %d free (largest span %d)\n",
		st.Allocations, st.UsedBytes, st.FreeBytes, st.LargestFree)

	fmt.Fprintf(w, "  overlays registered:\n")
	seen := map[*overlaySlot]bool{}
	for id, slot := range q.overlays {
		if slot == nil || seen[slot] {
			continue
		}
		seen[slot] = true
		span := int(slot.ovl.span())
		stateStr := "stateless"
		if slot.ovl.StateSize > 0 {
			stateStr = fmt.Sprintf("state %d bytes at +%04X (mirror %06X)",
				slot.ovl.StateSize, slot.ovl.StateOffset, slot.mirror)
		}
		fmt.Fprintf(w, "    %X..%X %-12s %2d commands, %s\n",
			id, id+span-1, slot.ovl.Name, len(slot.ovl.Commands), stateStr)
	}
}

// DumpTrace writes the flight recorder tail to w, newest last. n limits
// the output, 0 dumps everything recorded.
func (q *CommandQueue) DumpTrace(w io.Writer, n int) {
	if q.trace == nil {
		fmt.Fprintln(w, "Flight recorder disabled")
		return
	}
	entries := q.trace.snapshot()
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "Flight recorder empty")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "  #%-8d %06X: %08X %-12s (%d words)\n",
			e.Seq, e.PC, e.Word, traceCmdName(e.Word), e.Words)
	}
}
