package main

import "testing"

func newTestArena(size uint32) *busArena {
	mem := make([]byte, 0x1000+size)
	return newBusArena(mem, 0x1000, 0x1000+size-1)
}

func TestArenaAllocAligns(t *testing.T) {
	a := newTestArena(0x1000)

	p := a.alloc(5)
	q := a.alloc(1)
	if p%DMA_ALIGN != 0 || q%DMA_ALIGN != 0 {
		t.Fatalf("allocations not %d-aligned: 0x%X, 0x%X", DMA_ALIGN, p, q)
	}
	if q-p < 8 {
		t.Fatalf("5-byte allocation rounded to %d bytes", q-p)
	}
}

func TestArenaAllocZeroes(t *testing.T) {
	a := newTestArena(0x100)
	p := a.alloc(16)
	for i := uint32(0); i < 16; i++ {
		a.mem[p+i] = 0xFF
	}
	a.free(p)
	p2 := a.alloc(16)
	if p2 != p {
		t.Fatalf("first fit did not reuse the freed span: 0x%X then 0x%X", p, p2)
	}
	for i := uint32(0); i < 16; i++ {
		if a.mem[p2+i] != 0 {
			t.Fatalf("reused span not zeroed at +%d", i)
		}
	}
}

// TestArenaCoalescing frees three adjacent spans out of order and then
// asks for their combined size in one piece.
func TestArenaCoalescing(t *testing.T) {
	a := newTestArena(0x100) // 256 bytes total

	p1 := a.alloc(64)
	p2 := a.alloc(64)
	p3 := a.alloc(64)
	a.alloc(64) // pin the tail so coalescing must happen among p1..p3

	a.free(p1)
	a.free(p3)
	a.free(p2) // middle last: must merge both neighbours

	if got := a.alloc(192); got != p1 {
		t.Fatalf("coalesced span starts at 0x%X, expected 0x%X", got, p1)
	}
}

func TestArenaStats(t *testing.T) {
	a := newTestArena(0x100)
	st := a.stats()
	if st.UsedBytes != 0 || st.FreeBytes != 0x100 || st.Allocations != 0 || st.LargestFree != 0x100 {
		t.Fatalf("fresh arena stats wrong: %+v", st)
	}

	p := a.alloc(32)
	st = a.stats()
	if st.UsedBytes != 32 || st.FreeBytes != 0x100-32 || st.Allocations != 1 {
		t.Fatalf("stats after alloc wrong: %+v", st)
	}

	a.free(p)
	st = a.stats()
	if st.UsedBytes != 0 || st.FreeBytes != 0x100 || st.LargestFree != 0x100 {
		t.Fatalf("stats after free wrong: %+v", st)
	}
}

func TestArenaMisusePanics(t *testing.T) {
	a := newTestArena(0x100)
	expectPanic(t, func() { a.alloc(0) })
	expectPanic(t, func() { a.free(0x1000) }) // never allocated

	p := a.alloc(16)
	a.free(p)
	expectPanic(t, func() { a.free(p) }) // double free
}

func TestArenaExhaustionPanics(t *testing.T) {
	a := newTestArena(0x100)
	a.alloc(0x80)
	expectPanic(t, func() { a.alloc(0x81) })
	a.alloc(0x80) // exactly the remainder still fits
}
