// queue_overlay.go - Overlay table and persistent state for the Copper Engine

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

package main

import "fmt"

// OverlayCommand describes one command an overlay can execute. Words is
// the full command length including the first word; both sides of the
// queue derive argument counts from it. A nil Handler marks the index
// invalid, and dispatching it halts the consumer.
type OverlayCommand struct {
	Name    string
	Words   int // 1..MAX_COMMAND_SIZE
	Handler func(*OverlayContext, []uint32)
}

// Overlay is a pluggable command module. More than 16 commands spill into
// consecutive overlay IDs at registration. Data is the image copied into
// coprocessor-local memory whenever the overlay is loaded; the window
// [StateOffset, StateOffset+StateSize) inside it persists across loads
// through a main-memory mirror.
type Overlay struct {
	Name        string
	Commands    []OverlayCommand
	Data        []byte
	StateOffset int
	StateSize   int // 8-byte multiple, 0 for stateless overlays
}

// span returns how many consecutive overlay IDs the command set occupies.
func (ovl *Overlay) span() uint32 {
	return uint32((len(ovl.Commands) + 15) / 16)
}

// overlaySlot is one entry of the engine's ID table. Multi-ID overlays
// alias the same slot from each ID they occupy, so an overlay switch is
// detected by slot identity, not ID equality.
type overlaySlot struct {
	ovl    *Overlay
	baseID uint32
	mirror uint32 // bus address of the persistent-state mirror, 0 if stateless
}

// RegisterOverlay assigns the overlay the given ID, or the consecutive ID
// range starting there when it has more than 16 commands. Misuse is fatal:
// ID 0 belongs to the engine, occupied slots cannot be reused, and the
// table is append-only for the life of the process. Producer context only.
func (q *CommandQueue) RegisterOverlay(ovl *Overlay, id uint32) {
	if ovl == nil {
		panic("overlay register: nil overlay")
	}
	if len(ovl.Commands) == 0 {
		panic(fmt.Sprintf("overlay register: %q has no commands", ovl.Name))
	}
	span := ovl.span()
	if id == QUEUE_OVERLAY_ENGINE {
		panic(fmt.Sprintf("overlay register: %q requested engine-reserved ID 0", ovl.Name))
	}
	if id >= QUEUE_MAX_OVERLAYS || id+span > QUEUE_MAX_OVERLAYS {
		panic(fmt.Sprintf("overlay register: %q ID range %d..%d out of bounds", ovl.Name, id, id+span-1))
	}
	for i := id; i < id+span; i++ {
		if q.overlays[i] != nil {
			panic(fmt.Sprintf("overlay register: ID %d already occupied by %q", i, q.overlays[i].ovl.Name))
		}
	}
	for i, cmd := range ovl.Commands {
		if cmd.Handler == nil {
			continue
		}
		if cmd.Words < 1 || cmd.Words > MAX_COMMAND_SIZE {
			panic(fmt.Sprintf("overlay register: %q command %d length %d out of range", ovl.Name, i, cmd.Words))
		}
	}
	if len(ovl.Data) > LOCAL_MEMORY_SIZE {
		panic(fmt.Sprintf("overlay register: %q image %d bytes exceeds local memory", ovl.Name, len(ovl.Data)))
	}
	if ovl.StateSize < 0 || ovl.StateOffset < 0 || ovl.StateOffset+ovl.StateSize > len(ovl.Data) {
		panic(fmt.Sprintf("overlay register: %q state window %d+%d outside image", ovl.Name, ovl.StateOffset, ovl.StateSize))
	}
	if ovl.StateSize%DMA_ALIGN != 0 || ovl.StateOffset%DMA_ALIGN != 0 {
		panic(fmt.Sprintf("overlay register: %q state window %d+%d must be %d-byte aligned", ovl.Name, ovl.StateOffset, ovl.StateSize, DMA_ALIGN))
	}

	slot := &overlaySlot{ovl: ovl, baseID: id}
	if ovl.StateSize > 0 {
		slot.mirror = q.arena.alloc(uint32(ovl.StateSize))
		copy(q.mem[slot.mirror:slot.mirror+uint32(ovl.StateSize)], ovl.Data[ovl.StateOffset:ovl.StateOffset+ovl.StateSize])
	}
	for i := id; i < id+span; i++ {
		q.overlays[i] = slot
	}
}

// OverlayState returns the bus address of the overlay's persistent-state
// mirror. The producer may read or write it at any time; it is
// authoritative only while the overlay is not loaded on the consumer
// (synchronize with a syncpoint before touching live state).
func (q *CommandQueue) OverlayState(ovl *Overlay) uint32 {
	for _, slot := range q.overlays {
		if slot != nil && slot.ovl == ovl {
			if slot.mirror == 0 {
				panic(fmt.Sprintf("overlay state: %q is stateless", ovl.Name))
			}
			return slot.mirror
		}
	}
	panic(fmt.Sprintf("overlay state: %q is not registered", ovl.Name))
}

// OverlayContext is the execution environment handlers receive. It is
// only valid for the duration of the handler call, on the consumer
// goroutine, with the handler's overlay loaded.
type OverlayContext struct {
	q    *CommandQueue
	slot *overlaySlot
}

// State returns the overlay's persistent-state window in local memory.
func (c *OverlayContext) State() []byte {
	ovl := c.slot.ovl
	return c.q.local[ovl.StateOffset : ovl.StateOffset+ovl.StateSize]
}

// Local returns the whole coprocessor-local memory image.
func (c *OverlayContext) Local() []byte {
	return c.q.local
}

// Bus returns the machine bus for main-memory access.
func (c *OverlayContext) Bus() *MachineBus {
	return c.q.bus
}

// Memory returns raw bus RAM for bulk work. Like a hardware DMA engine,
// accesses through this slice bypass MMIO mappings.
func (c *OverlayContext) Memory() []byte {
	return c.q.mem
}

// Signals returns the current signal byte.
func (c *OverlayContext) Signals() uint32 {
	return c.q.sigBits.Load()
}

// SetSignals raises caller-usable signal bits from handler context.
func (c *OverlayContext) SetSignals(bits uint32) {
	if bits&^uint32(SIG_USER_MASK) != 0 {
		panic(fmt.Sprintf("overlay context: handlers may only set user signal bits (0x%02X)", bits))
	}
	c.q.setSignalsRaw(bits)
}

// ClearSignals lowers caller-usable signal bits from handler context.
func (c *OverlayContext) ClearSignals(bits uint32) {
	if bits&^uint32(SIG_USER_MASK) != 0 {
		panic(fmt.Sprintf("overlay context: handlers may only clear user signal bits (0x%02X)", bits))
	}
	c.q.clearSignalsRaw(bits)
}
