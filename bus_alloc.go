// bus_alloc.go - Bus RAM arena allocator for the Copper Engine

package main

import (
	"fmt"
	"sync"
)

// busArena hands out 8-byte-aligned regions of bus RAM between base and
// end. Recorded block chunks and overlay state mirrors live here. First
// fit over an address-ordered free list, coalescing on free; simple and
// predictable, which matters more than speed since allocation only happens
// at registration time and at block-chunk growth.
type busArena struct {
	mem  []byte
	base uint32
	end  uint32 // inclusive

	mu    sync.Mutex
	frees []arenaSpan       // address-ordered, coalesced
	used  map[uint32]uint32 // addr -> size, for free() and stats
}

type arenaSpan struct {
	addr uint32
	size uint32
}

func newBusArena(mem []byte, base, end uint32) *busArena {
	a := &busArena{
		mem:  mem,
		base: base,
		end:  end,
		used: make(map[uint32]uint32),
	}
	a.frees = []arenaSpan{{addr: base, size: end - base + 1}}
	return a
}

func arenaAlign(n uint32) uint32 {
	return (n + DMA_ALIGN - 1) &^ (DMA_ALIGN - 1)
}

// alloc returns the bus address of a zeroed region of at least size bytes.
// Exhaustion is a fatal configuration problem: the arena is sized for far
// more block storage than the queue design anticipates.
func (a *busArena) alloc(size uint32) uint32 {
	if size == 0 {
		panic("bus arena: zero-size allocation")
	}
	size = arenaAlign(size)

	a.mu.Lock()
	defer a.mu.Unlock()

	for i, span := range a.frees {
		if span.size < size {
			continue
		}
		addr := span.addr
		if span.size == size {
			a.frees = append(a.frees[:i], a.frees[i+1:]...)
		} else {
			a.frees[i] = arenaSpan{addr: span.addr + size, size: span.size - size}
		}
		a.used[addr] = size
		clear(a.mem[addr : addr+size])
		return addr
	}
	panic(fmt.Sprintf("bus arena exhausted: %d bytes requested, largest free span %d", size, a.largestLocked()))
}

// free returns a region to the arena. Freeing an address that was not
// allocated is a caller bug and panics.
func (a *busArena) free(addr uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	size, ok := a.used[addr]
	if !ok {
		panic(fmt.Sprintf("bus arena: free of unallocated address 0x%06X", addr))
	}
	delete(a.used, addr)

	// Insert keeping address order, then coalesce with neighbours.
	i := 0
	for i < len(a.frees) && a.frees[i].addr < addr {
		i++
	}
	a.frees = append(a.frees, arenaSpan{})
	copy(a.frees[i+1:], a.frees[i:])
	a.frees[i] = arenaSpan{addr: addr, size: size}

	if i+1 < len(a.frees) && a.frees[i].addr+a.frees[i].size == a.frees[i+1].addr {
		a.frees[i].size += a.frees[i+1].size
		a.frees = append(a.frees[:i+1], a.frees[i+2:]...)
	}
	if i > 0 && a.frees[i-1].addr+a.frees[i-1].size == a.frees[i].addr {
		a.frees[i-1].size += a.frees[i].size
		a.frees = append(a.frees[:i], a.frees[i+1:]...)
	}
}

func (a *busArena) largestLocked() uint32 {
	var largest uint32
	for _, span := range a.frees {
		if span.size > largest {
			largest = span.size
		}
	}
	return largest
}

// arenaStats is a point-in-time view for the monitor.
type arenaStats struct {
	UsedBytes   uint32
	FreeBytes   uint32
	Allocations int
	LargestFree uint32
}

func (a *busArena) stats() arenaStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	var st arenaStats
	for _, size := range a.used {
		st.UsedBytes += size
	}
	for _, span := range a.frees {
		st.FreeBytes += span.size
	}
	st.Allocations = len(a.used)
	st.LargestFree = a.largestLocked()
	return st
}
