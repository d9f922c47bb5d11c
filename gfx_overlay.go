// gfx_overlay.go - Gfx command overlay for the Copper Engine

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

/*
gfx_overlay.go - Gfx overlay

Drawing commands for the copper: mode set, palette, solid fills, rects,
blits from bus RAM and frame presentation. All rendering happens on the
consumer goroutine straight into the framebuffer region of bus RAM; the
PRESENT command hands the finished frame to the display backend.

Mode, draw colour and palette live in the overlay's persistent state, so
a stream can switch to another overlay and back without losing them.
Handlers never halt the machine; a bad argument gets a warning and the
command becomes a no-op, which on real hardware would just draw garbage.
*/

package main

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

type GfxUnit struct {
	output DisplayOutput
	id     uint32 // overlay ID once registered

	// Mirrors for MMIO reads; authoritative values live in overlay state.
	mode     atomic.Uint32
	presents atomic.Uint64
}

var gfxDefaultPalette = [GFX_PALETTE_SIZE]uint32{
	0x000000FF, 0xFFFFFFFF, 0xFF5555FF, 0x55FF55FF,
	0x5555FFFF, 0xFFFF55FF, 0xFF55FFFF, 0x55FFFFFF,
	0x884400FF, 0xCC8800FF, 0x008844FF, 0x0088CCFF,
	0x440088FF, 0x888888FF, 0x444444FF, 0xCCCCCCFF,
}

// NewGfxUnit wires the drawing overlay to a display backend and maps the
// DISPLAY_* registers.
func NewGfxUnit(bus *MachineBus, output DisplayOutput) *GfxUnit {
	g := &GfxUnit{output: output}
	g.mode.Store(GFX_MODE_320x240)
	bus.MapIO(DISPLAY_REGION_BASE, DISPLAY_REGION_END, g.registerRead, g.registerWrite)
	return g
}

// Overlay builds the overlay definition. The initial image seeds the
// persistent state with mode 320x240, white ink and the stock palette.
func (g *GfxUnit) Overlay() *Overlay {
	data := make([]byte, GFX_STATE_SIZE)
	binary.LittleEndian.PutUint32(data[GFX_STATE_MODE:], GFX_MODE_320x240)
	binary.LittleEndian.PutUint32(data[GFX_STATE_COLOR:], 0xFFFFFFFF)
	for i, c := range gfxDefaultPalette {
		binary.LittleEndian.PutUint32(data[GFX_STATE_PALETTE+i*4:], c)
	}

	return &Overlay{
		Name: "gfx",
		Commands: []OverlayCommand{
			GFX_CMD_SETMODE:  {Name: "setmode", Words: 1, Handler: g.cmdSetMode},
			GFX_CMD_SETCOLOR: {Name: "setcolor", Words: 2, Handler: g.cmdSetColor},
			GFX_CMD_PALETTE:  {Name: "palette", Words: 2, Handler: g.cmdPalette},
			GFX_CMD_USEPAL:   {Name: "usepal", Words: 1, Handler: g.cmdUsePal},
			GFX_CMD_FILL:     {Name: "fill", Words: 1, Handler: g.cmdFill},
			GFX_CMD_RECT:     {Name: "rect", Words: 3, Handler: g.cmdRect},
			GFX_CMD_BLIT:     {Name: "blit", Words: 4, Handler: g.cmdBlit},
			GFX_CMD_PRESENT:  {Name: "present", Words: 1, Handler: g.cmdPresent},
		},
		Data:        data,
		StateOffset: 0,
		StateSize:   GFX_STATE_SIZE,
	}
}

func gfxStateU32(state []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(state[off:])
}

func gfxPutStateU32(state []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(state[off:], v)
}

func (g *GfxUnit) curMode(state []byte) GfxMode {
	return GfxModes[gfxStateU32(state, GFX_STATE_MODE)]
}

func (g *GfxUnit) cmdSetMode(ctx *OverlayContext, args []uint32) {
	mode := args[0] & 0xFF
	if _, ok := GfxModes[mode]; !ok {
		fmt.Printf("Warning: gfx setmode: unknown mode 0x%02X\n", mode)
		return
	}
	gfxPutStateU32(ctx.State(), GFX_STATE_MODE, mode)
	g.mode.Store(mode)
	m := GfxModes[mode]
	g.output.SetDisplayConfig(DisplayConfig{
		Width:  m.width,
		Height: m.height,
		Scale:  2,
		VSync:  true,
	})
}

func (g *GfxUnit) cmdSetColor(ctx *OverlayContext, args []uint32) {
	gfxPutStateU32(ctx.State(), GFX_STATE_COLOR, args[1])
}

func (g *GfxUnit) cmdPalette(ctx *OverlayContext, args []uint32) {
	idx := args[0] & 0xF
	gfxPutStateU32(ctx.State(), GFX_STATE_PALETTE+int(idx)*4, args[1])
}

func (g *GfxUnit) cmdUsePal(ctx *OverlayContext, args []uint32) {
	state := ctx.State()
	idx := args[0] & 0xF
	gfxPutStateU32(state, GFX_STATE_COLOR, gfxStateU32(state, GFX_STATE_PALETTE+int(idx)*4))
}

// putPixelRun writes n copies of an RGBA colour starting at fb offset.
func putPixelRun(fb []byte, off int, color uint32, n int) {
	r := byte(color >> 24)
	gc := byte(color >> 16)
	b := byte(color >> 8)
	a := byte(color)
	for i := 0; i < n; i++ {
		fb[off] = r
		fb[off+1] = gc
		fb[off+2] = b
		fb[off+3] = a
		off += 4
	}
}

func (g *GfxUnit) cmdFill(ctx *OverlayContext, args []uint32) {
	state := ctx.State()
	m := g.curMode(state)
	color := gfxStateU32(state, GFX_STATE_COLOR)
	fb := ctx.Memory()[FRAMEBUFFER_BASE : FRAMEBUFFER_BASE+m.totalSize]
	putPixelRun(fb, 0, color, m.width*m.height)
}

func (g *GfxUnit) cmdRect(ctx *OverlayContext, args []uint32) {
	state := ctx.State()
	m := g.curMode(state)
	color := gfxStateU32(state, GFX_STATE_COLOR)

	x := int(args[1] >> 16)
	y := int(args[1] & 0xFFFF)
	w := int(args[2] >> 16)
	h := int(args[2] & 0xFFFF)

	// Clip to the mode; a rect fully outside just vanishes.
	if x >= m.width || y >= m.height {
		return
	}
	if x+w > m.width {
		w = m.width - x
	}
	if y+h > m.height {
		h = m.height - y
	}

	fb := ctx.Memory()[FRAMEBUFFER_BASE : FRAMEBUFFER_BASE+m.totalSize]
	for row := 0; row < h; row++ {
		putPixelRun(fb, (y+row)*m.bytesPerRow+x*4, color, w)
	}
}

func (g *GfxUnit) cmdBlit(ctx *OverlayContext, args []uint32) {
	state := ctx.State()
	m := g.curMode(state)
	mem := ctx.Memory()

	src := args[0] & CMD_ADDR_MASK
	x := int(args[1] >> 16)
	y := int(args[1] & 0xFFFF)
	w := int(args[2] >> 16)
	h := int(args[2] & 0xFFFF)
	stride := int(args[3])

	if stride == 0 {
		stride = w * 4
	}
	if x+w > m.width || y+h > m.height || stride < w*4 ||
		int(src)+h*stride > len(mem) {
		fmt.Printf("Warning: gfx blit: out of range (src 0x%06X %dx%d at %d,%d)\n", src, w, h, x, y)
		return
	}

	fb := mem[FRAMEBUFFER_BASE : FRAMEBUFFER_BASE+m.totalSize]
	for row := 0; row < h; row++ {
		srcOff := int(src) + row*stride
		dstOff := (y+row)*m.bytesPerRow + x*4
		copy(fb[dstOff:dstOff+w*4], mem[srcOff:srcOff+w*4])
	}
}

func (g *GfxUnit) cmdPresent(ctx *OverlayContext, args []uint32) {
	state := ctx.State()
	m := g.curMode(state)
	g.output.UpdateFrame(ctx.Memory()[FRAMEBUFFER_BASE : FRAMEBUFFER_BASE+m.totalSize])
	gfxPutStateU32(state, GFX_STATE_PRESENTS, gfxStateU32(state, GFX_STATE_PRESENTS)+1)
	g.presents.Add(1)
	if args[0]&GFX_PRESENT_VSYNC != 0 {
		g.output.WaitForVSync()
	}
}

// Register installs the overlay on the queue and remembers the ID the
// producer-side emitters encode into command words.
func (g *GfxUnit) Register(q *CommandQueue, id uint32) {
	q.RegisterOverlay(g.Overlay(), id)
	g.id = id
}

func (g *GfxUnit) word0(idx uint32) uint32 {
	return (g.id<<4 | idx) << 24
}

func (g *GfxUnit) EmitSetMode(q *CommandQueue, mode uint32) {
	w := q.WriteBegin()
	w.Put(g.word0(GFX_CMD_SETMODE) | mode&0xFF)
	q.WriteEnd(w)
}

func (g *GfxUnit) EmitSetColor(q *CommandQueue, rgba uint32) {
	w := q.WriteBegin()
	w.Put(g.word0(GFX_CMD_SETCOLOR))
	w.Put(rgba)
	q.WriteEnd(w)
}

func (g *GfxUnit) EmitPalette(q *CommandQueue, idx, rgba uint32) {
	w := q.WriteBegin()
	w.Put(g.word0(GFX_CMD_PALETTE) | idx&0xF)
	w.Put(rgba)
	q.WriteEnd(w)
}

func (g *GfxUnit) EmitUsePal(q *CommandQueue, idx uint32) {
	w := q.WriteBegin()
	w.Put(g.word0(GFX_CMD_USEPAL) | idx&0xF)
	q.WriteEnd(w)
}

func (g *GfxUnit) EmitFill(q *CommandQueue) {
	w := q.WriteBegin()
	w.Put(g.word0(GFX_CMD_FILL))
	q.WriteEnd(w)
}

func (g *GfxUnit) EmitRect(q *CommandQueue, x, y, width, height int) {
	w := q.WriteBegin()
	w.Put(g.word0(GFX_CMD_RECT))
	w.Put(uint32(x)<<16 | uint32(y)&0xFFFF)
	w.Put(uint32(width)<<16 | uint32(height)&0xFFFF)
	q.WriteEnd(w)
}

func (g *GfxUnit) EmitBlit(q *CommandQueue, src uint32, x, y, width, height, stride int) {
	w := q.WriteBegin()
	w.Put(g.word0(GFX_CMD_BLIT) | src&CMD_ADDR_MASK)
	w.Put(uint32(x)<<16 | uint32(y)&0xFFFF)
	w.Put(uint32(width)<<16 | uint32(height)&0xFFFF)
	w.Put(uint32(stride))
	q.WriteEnd(w)
}

func (g *GfxUnit) EmitPresent(q *CommandQueue, vsync bool) {
	flags := uint32(0)
	if vsync {
		flags = GFX_PRESENT_VSYNC
	}
	w := q.WriteBegin()
	w.Put(g.word0(GFX_CMD_PRESENT) | flags)
	q.WriteEnd(w)
}

func (g *GfxUnit) registerRead(addr uint32) uint32 {
	switch addr {
	case DISPLAY_MODE:
		return g.mode.Load()
	case DISPLAY_FRAMES:
		return uint32(g.presents.Load())
	case DISPLAY_WIDTH:
		return uint32(GfxModes[g.mode.Load()].width)
	case DISPLAY_HEIGHT:
		return uint32(GfxModes[g.mode.Load()].height)
	}
	return 0
}

func (g *GfxUnit) registerWrite(addr uint32, value uint32) {
	fmt.Printf("Warning: write to read-only display register 0x%06X (value 0x%08X)\n", addr, value)
}
