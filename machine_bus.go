// machine_bus.go - Machine bus for the Copper Engine

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

/*
machine_bus.go - Machine Bus for the Copper Engine

This module implements the memory bus the command-queue engine runs on. It
provides a unified interface for 8/16/32-bit memory operations, including
memory-mapped I/O, over a contiguous little-endian RAM block.

Core Features:

    8MB of main memory allocated as a contiguous block.
    Memory-mapped I/O via a page-granular region table with a lock-free
    page bitmap on the fast path.
    Aligned 32-bit word access with atomic load/store variants for the
    command-queue buffers (producer publishes, consumer acquires).
    Mapping table sealed once execution starts so the fast path stays
    stable without a mutex.

The queue's ping-pong buffers, block arena and overlay state mirrors all
live in this RAM, so jump and call commands carry real bus addresses and
transfers move real bytes. MMIO regions must not overlap the queue buffer
regions: the word-atomic accessors deliberately bypass the region table.
*/

package main

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"
)

const (
	DEFAULT_MEMORY_SIZE = 8 * 1024 * 1024
	PAGE_SIZE           = 0x100
	PAGE_MASK           = 0xFFFF00
)

// Bus32 defines the interface for memory operations within the Copper
// Engine. Implementations must support memory-mapped I/O and keep plain
// RAM access safe for one writer and one reader per word.
type Bus32 interface {
	Read8(addr uint32) uint8
	Write8(addr uint32, value uint8)
	Read16(addr uint32) uint16
	Write16(addr uint32, value uint16)
	Read32(addr uint32) uint32
	Write32(addr uint32, value uint32)
	Reset()
	GetMemory() []byte
}

// MachineBus implements Bus32 and serves as the primary memory bus.
// It maintains a contiguous block of main memory and a mapping of
// memory-mapped I/O regions, with a bitmap marking pages that have any
// I/O so the common RAM case never consults the map.
type MachineBus struct {
	memory  []byte
	mapping map[uint32][]IORegion

	// Fast I/O page bitmap - indexed by (addr >> 8), true if page has I/O
	// mappings. Stable after SealMappings.
	ioPageBitmap []bool

	// Lock-free fast path for one hot status register (queue status
	// polling must not take the MMIO slow path).
	statusAddr   uint32
	statusReader func(addr uint32) uint32

	// Sealed state to prevent I/O mapping after execution has started
	sealed atomic.Bool
}

// IORegion represents a memory-mapped I/O region. Each region is defined
// by its start and end addresses and includes callback functions invoked
// when a memory access falls within the region's boundaries.
type IORegion struct {
	start   uint32
	end     uint32
	onRead  func(addr uint32) uint32
	onWrite func(addr uint32, value uint32)
}

func NewMachineBus() *MachineBus {
	return &MachineBus{
		memory:       make([]byte, DEFAULT_MEMORY_SIZE),
		mapping:      make(map[uint32][]IORegion),
		ioPageBitmap: make([]bool, DEFAULT_MEMORY_SIZE/PAGE_SIZE),
	}
}

// GetMemory returns a direct reference to the underlying memory slice.
// Subsystems cache this for non-I/O bulk operations (framebuffer scans,
// DMA copies) while MMIO still goes through the bus.
func (bus *MachineBus) GetMemory() []byte {
	return bus.memory
}

// SetStatusReader registers a lock-free callback for one register address.
// Reads of that address bypass the region table entirely, so a producer
// polling the register never contends with other I/O.
func (bus *MachineBus) SetStatusReader(addr uint32, reader func(addr uint32) uint32) {
	bus.statusAddr = addr
	bus.statusReader = reader
}

// SealMappings prevents further MapIO calls. Called when execution starts
// so the ioPageBitmap remains stable during hot-path access.
func (bus *MachineBus) SealMappings() {
	bus.sealed.CompareAndSwap(false, true)
}

func (bus *MachineBus) MapIO(start, end uint32, onRead func(addr uint32) uint32, onWrite func(addr uint32, value uint32)) {
	if bus.sealed.Load() {
		panic(fmt.Sprintf("MapIO called after execution started (mapping range $%06X-$%06X)", start, end))
	}
	if end < start {
		panic(fmt.Sprintf("MapIO range inverted ($%06X-$%06X)", start, end))
	}
	region := IORegion{
		start:   start,
		end:     end,
		onRead:  onRead,
		onWrite: onWrite,
	}

	firstPage := start & PAGE_MASK
	lastPage := end & PAGE_MASK
	for page := firstPage; page <= lastPage; page += PAGE_SIZE {
		bus.mapping[page] = append(bus.mapping[page], region)
		pageIdx := page >> 8
		if pageIdx < uint32(len(bus.ioPageBitmap)) {
			bus.ioPageBitmap[pageIdx] = true
		}
	}
}

func (bus *MachineBus) Write32(addr uint32, value uint32) {
	// addr+4 can wrap near the top of the address space.
	if addr > uint32(len(bus.memory))-4 {
		fmt.Printf("Warning: Write32 to out-of-bounds address 0x%08X\n", addr)
		return
	}

	// Lock-free fast path: check bitmap for I/O mappings
	if !bus.ioPageBitmap[addr>>8] {
		if addr&3 == 0 {
			*(*uint32)(unsafe.Pointer(&bus.memory[addr])) = value
		} else {
			binary.LittleEndian.PutUint32(bus.memory[addr:addr+4], value)
		}
		return
	}

	bus.write32Slow(addr, value)
}

func (bus *MachineBus) write32Slow(addr uint32, value uint32) {
	if regions, exists := bus.mapping[addr&PAGE_MASK]; exists {
		for _, region := range regions {
			if addr >= region.start && addr <= region.end && region.onWrite != nil {
				region.onWrite(addr, value)
				binary.LittleEndian.PutUint32(bus.memory[addr:addr+4], value)
				return
			}
		}
	}
	binary.LittleEndian.PutUint32(bus.memory[addr:addr+4], value)
}

func (bus *MachineBus) Read32(addr uint32) uint32 {
	if addr == bus.statusAddr && bus.statusReader != nil {
		return bus.statusReader(addr)
	}
	if addr > uint32(len(bus.memory))-4 {
		fmt.Printf("Warning: Read32 from out-of-bounds address 0x%08X\n", addr)
		return 0
	}

	if !bus.ioPageBitmap[addr>>8] {
		if addr&3 == 0 {
			return *(*uint32)(unsafe.Pointer(&bus.memory[addr]))
		}
		return binary.LittleEndian.Uint32(bus.memory[addr : addr+4])
	}

	return bus.read32Slow(addr)
}

func (bus *MachineBus) read32Slow(addr uint32) uint32 {
	if regions, exists := bus.mapping[addr&PAGE_MASK]; exists {
		for _, region := range regions {
			if addr >= region.start && addr <= region.end && region.onRead != nil {
				value := region.onRead(addr)
				binary.LittleEndian.PutUint32(bus.memory[addr:addr+4], value)
				return value
			}
		}
	}
	return binary.LittleEndian.Uint32(bus.memory[addr : addr+4])
}

func (bus *MachineBus) Write16(addr uint32, value uint16) {
	if addr > uint32(len(bus.memory))-2 {
		fmt.Printf("Warning: Write16 to out-of-bounds address 0x%08X\n", addr)
		return
	}
	if bus.ioPageBitmap[addr>>8] {
		if regions, exists := bus.mapping[addr&PAGE_MASK]; exists {
			for _, region := range regions {
				if addr >= region.start && addr <= region.end && region.onWrite != nil {
					region.onWrite(addr, uint32(value))
					binary.LittleEndian.PutUint16(bus.memory[addr:addr+2], value)
					return
				}
			}
		}
	}
	binary.LittleEndian.PutUint16(bus.memory[addr:addr+2], value)
}

func (bus *MachineBus) Read16(addr uint32) uint16 {
	if addr > uint32(len(bus.memory))-2 {
		fmt.Printf("Warning: Read16 from out-of-bounds address 0x%08X\n", addr)
		return 0
	}
	if bus.ioPageBitmap[addr>>8] {
		if regions, exists := bus.mapping[addr&PAGE_MASK]; exists {
			for _, region := range regions {
				if addr >= region.start && addr <= region.end && region.onRead != nil {
					return uint16(region.onRead(addr))
				}
			}
		}
	}
	return binary.LittleEndian.Uint16(bus.memory[addr : addr+2])
}

func (bus *MachineBus) Write8(addr uint32, value uint8) {
	if addr >= uint32(len(bus.memory)) {
		fmt.Printf("Warning: Write8 to out-of-bounds address 0x%08X\n", addr)
		return
	}
	if bus.ioPageBitmap[addr>>8] {
		if regions, exists := bus.mapping[addr&PAGE_MASK]; exists {
			for _, region := range regions {
				if addr >= region.start && addr <= region.end && region.onWrite != nil {
					region.onWrite(addr, uint32(value))
					bus.memory[addr] = value
					return
				}
			}
		}
	}
	bus.memory[addr] = value
}

func (bus *MachineBus) Read8(addr uint32) uint8 {
	if addr >= uint32(len(bus.memory)) {
		fmt.Printf("Warning: Read8 from out-of-bounds address 0x%08X\n", addr)
		return 0
	}
	if bus.ioPageBitmap[addr>>8] {
		if regions, exists := bus.mapping[addr&PAGE_MASK]; exists {
			for _, region := range regions {
				if addr >= region.start && addr <= region.end && region.onRead != nil {
					return uint8(region.onRead(addr))
				}
			}
		}
	}
	return bus.memory[addr]
}

// LoadWord32 performs an acquire load of an aligned RAM word. This is the
// consumer side of the queue publishing protocol: once the first word of a
// command is observed here, the argument words written before it are
// plainly readable. Bypasses MMIO; addr must be 4-aligned RAM.
func (bus *MachineBus) LoadWord32(addr uint32) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&bus.memory[addr])))
}

// StoreWord32 performs a release store of an aligned RAM word. This is the
// producer side: argument words stored plainly before this call become
// visible to any consumer that acquires this word. Bypasses MMIO.
func (bus *MachineBus) StoreWord32(addr uint32, value uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&bus.memory[addr])), value)
}

// PlainWord32 reads an aligned RAM word without ordering. Used for
// argument words after the first word of a command has been acquired.
func (bus *MachineBus) PlainWord32(addr uint32) uint32 {
	return *(*uint32)(unsafe.Pointer(&bus.memory[addr]))
}

// PutWord32 stores an aligned RAM word without ordering. Used for
// argument words before the first word of a command is released.
func (bus *MachineBus) PutWord32(addr uint32, value uint32) {
	*(*uint32)(unsafe.Pointer(&bus.memory[addr])) = value
}

// Reset clears main memory. I/O mappings and the seal are preserved;
// peripherals reset themselves.
func (bus *MachineBus) Reset() {
	clear(bus.memory)
}
