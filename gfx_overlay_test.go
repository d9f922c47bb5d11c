package main

import (
	"encoding/binary"
	"sync"
	"testing"
)

// fakeDisplay records frames instead of opening a window.
type fakeDisplay struct {
	mu      sync.Mutex
	cfg     DisplayConfig
	frames  int
	lastLen int
	started bool
}

func (d *fakeDisplay) Start() error    { d.started = true; return nil }
func (d *fakeDisplay) Stop() error     { d.started = false; return nil }
func (d *fakeDisplay) Close() error    { return nil }
func (d *fakeDisplay) IsStarted() bool { return d.started }

func (d *fakeDisplay) SetDisplayConfig(cfg DisplayConfig) error {
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
	return nil
}

func (d *fakeDisplay) GetDisplayConfig() DisplayConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

func (d *fakeDisplay) UpdateFrame(buffer []byte) error {
	d.mu.Lock()
	d.frames++
	d.lastLen = len(buffer)
	d.mu.Unlock()
	return nil
}

func (d *fakeDisplay) WaitForVSync() error   { return nil }
func (d *fakeDisplay) GetFrameCount() uint64 { return uint64(d.frames) }
func (d *fakeDisplay) GetRefreshRate() int   { return 60 }

type gfxTestRig struct {
	*queueTestRig
	gfx     *GfxUnit
	display *fakeDisplay
}

const gfxTestOverlayID = 1

func newGfxTestRig(t *testing.T) *gfxTestRig {
	t.Helper()
	rig := buildQueueTestRig(t, testQueueConfig())

	display := &fakeDisplay{}
	gfx := NewGfxUnit(rig.bus, display)
	gfx.Register(rig.q, gfxTestOverlayID)

	rig.bus.SealMappings()
	if err := rig.q.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(rig.q.Close)
	return &gfxTestRig{queueTestRig: rig, gfx: gfx, display: display}
}

// pixel reads the RGBA word drawn at (x, y) in 320x240 mode.
func (r *gfxTestRig) pixel(x, y int) uint32 {
	mem := r.bus.GetMemory()
	off := FRAMEBUFFER_BASE + (y*320+x)*4
	return binary.BigEndian.Uint32(mem[off : off+4]) // framebuffer is R,G,B,A in memory order
}

func TestGfxFillAndRect(t *testing.T) {
	rig := newGfxTestRig(t)
	g, q := rig.gfx, rig.q

	g.EmitSetColor(q, 0x112233FF)
	g.EmitFill(q)
	g.EmitSetColor(q, 0xFF0000FF)
	g.EmitRect(q, 10, 20, 4, 3)
	q.Sync()

	if got := rig.pixel(0, 0); got != 0x112233FF {
		t.Fatalf("background pixel 0x%08X, want 0x112233FF", got)
	}
	if got := rig.pixel(10, 20); got != 0xFF0000FF {
		t.Fatalf("rect corner 0x%08X, want 0xFF0000FF", got)
	}
	if got := rig.pixel(13, 22); got != 0xFF0000FF {
		t.Fatalf("rect far corner 0x%08X, want 0xFF0000FF", got)
	}
	if got := rig.pixel(14, 20); got != 0x112233FF {
		t.Fatalf("pixel right of rect 0x%08X, rect leaked", got)
	}
}

func TestGfxRectClipsToMode(t *testing.T) {
	rig := newGfxTestRig(t)
	g, q := rig.gfx, rig.q

	g.EmitSetColor(q, 0x00FF00FF)
	g.EmitRect(q, 318, 238, 10, 10) // hangs off the bottom-right corner
	g.EmitRect(q, 500, 500, 4, 4)   // fully outside
	q.Sync()

	if got := rig.pixel(319, 239); got != 0x00FF00FF {
		t.Fatalf("clipped rect missing at edge: 0x%08X", got)
	}
}

func TestGfxPaletteRoundTrip(t *testing.T) {
	rig := newGfxTestRig(t)
	g, q := rig.gfx, rig.q

	g.EmitPalette(q, 5, 0xAABBCCFF)
	g.EmitUsePal(q, 5)
	g.EmitRect(q, 0, 0, 1, 1)
	q.Sync()

	if got := rig.pixel(0, 0); got != 0xAABBCCFF {
		t.Fatalf("palette ink 0x%08X, want 0xAABBCCFF", got)
	}
}

func TestGfxPresentCountsFrames(t *testing.T) {
	rig := newGfxTestRig(t)
	g, q := rig.gfx, rig.q

	g.EmitFill(q)
	g.EmitPresent(q, false)
	g.EmitPresent(q, true)
	q.Sync()

	if rig.display.frames != 2 {
		t.Fatalf("backend received %d frames, expected 2", rig.display.frames)
	}
	if rig.display.lastLen != 320*240*4 {
		t.Fatalf("frame length %d, expected %d", rig.display.lastLen, 320*240*4)
	}
	if got := rig.bus.Read32(DISPLAY_FRAMES); got != 2 {
		t.Fatalf("DISPLAY_FRAMES %d, expected 2", got)
	}
}

func TestGfxBlitFromBusRAM(t *testing.T) {
	rig := newGfxTestRig(t)
	g, q := rig.gfx, rig.q
	mem := rig.bus.GetMemory()

	// 2x2 RGBA sprite staged in plain RAM.
	const src = 0x400000
	colors := []uint32{0x11000000, 0x22000000, 0x33000000, 0x44000000}
	for i, c := range colors {
		binary.BigEndian.PutUint32(mem[src+i*4:], c)
	}

	g.EmitBlit(q, src, 100, 100, 2, 2, 0)
	q.Sync()

	if got := rig.pixel(100, 100); got != 0x11000000 {
		t.Fatalf("blit pixel (100,100) 0x%08X", got)
	}
	if got := rig.pixel(101, 101); got != 0x44000000 {
		t.Fatalf("blit pixel (101,101) 0x%08X", got)
	}
}

func TestGfxBlitRejectsOutOfRange(t *testing.T) {
	rig := newGfxTestRig(t)
	g, q := rig.gfx, rig.q

	g.EmitSetColor(q, 0x01020304)
	g.EmitFill(q)
	g.EmitBlit(q, 0x400000, 319, 239, 10, 10, 0) // would overrun the mode
	q.Sync()

	if rig.q.Halted() {
		t.Fatal("gfx overlay halted the machine on a bad blit")
	}
	if got := rig.pixel(319, 239); got != 0x01020304 {
		t.Fatalf("rejected blit still wrote pixels: 0x%08X", got)
	}
}

func TestGfxDisplayRegisters(t *testing.T) {
	rig := newGfxTestRig(t)

	if got := rig.bus.Read32(DISPLAY_MODE); got != GFX_MODE_320x240 {
		t.Fatalf("DISPLAY_MODE 0x%02X at reset", got)
	}
	if w, h := rig.bus.Read32(DISPLAY_WIDTH), rig.bus.Read32(DISPLAY_HEIGHT); w != 320 || h != 240 {
		t.Fatalf("DISPLAY_WIDTH/HEIGHT %dx%d, expected 320x240", w, h)
	}

	rig.gfx.EmitSetMode(rig.q, GFX_MODE_640x480)
	rig.q.Sync()
	if got := rig.bus.Read32(DISPLAY_MODE); got != GFX_MODE_640x480 {
		t.Fatalf("DISPLAY_MODE 0x%02X after setmode", got)
	}
	if got := rig.display.GetDisplayConfig(); got.Width != 640 || got.Height != 480 {
		t.Fatalf("backend config %dx%d after setmode", got.Width, got.Height)
	}
}

func TestGfxUnknownModeIsIgnored(t *testing.T) {
	rig := newGfxTestRig(t)
	rig.gfx.EmitSetMode(rig.q, 0x7F)
	rig.q.Sync()
	if got := rig.bus.Read32(DISPLAY_MODE); got != GFX_MODE_320x240 {
		t.Fatalf("unknown mode was applied: 0x%02X", got)
	}
	if rig.q.Halted() {
		t.Fatal("unknown mode halted the machine")
	}
}
