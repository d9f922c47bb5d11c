// gfx_constants.go - Gfx overlay constants for the Copper Engine

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

package main

const (
	FRAMEBUFFER_BASE = 0x180000
	FRAMEBUFFER_END  = 0x3FFFFF

	GFX_MODE_320x240 = 0x00
	GFX_MODE_640x480 = 0x01

	GFX_PALETTE_SIZE = 16

	// Persistent overlay state layout (offsets into the state window).
	GFX_STATE_MODE     = 0x00
	GFX_STATE_COLOR    = 0x04
	GFX_STATE_FLAGS    = 0x08
	GFX_STATE_PRESENTS = 0x0C
	GFX_STATE_PALETTE  = 0x10 // 16 RGBA entries
	GFX_STATE_SIZE     = GFX_STATE_PALETTE + GFX_PALETTE_SIZE*4

	// Command indexes within the gfx overlay.
	GFX_CMD_SETMODE  = 0 // 1 word:  w0 bits 0-7 mode
	GFX_CMD_SETCOLOR = 1 // 2 words: w1 RGBA
	GFX_CMD_PALETTE  = 2 // 2 words: w0 bits 0-3 index, w1 RGBA
	GFX_CMD_USEPAL   = 3 // 1 word:  w0 bits 0-3 index
	GFX_CMD_FILL     = 4 // 1 word
	GFX_CMD_RECT     = 5 // 3 words: w1 x<<16|y, w2 w<<16|h
	GFX_CMD_BLIT     = 6 // 4 words: w0 low 24 src, w1 x<<16|y, w2 w<<16|h, w3 stride
	GFX_CMD_PRESENT  = 7 // 1 word:  w0 bit 0 = wait for vsync

	GFX_PRESENT_VSYNC = 1 << 0

	// Display registers (MMIO, read-only observability).
	DISPLAY_REGION_BASE = 0x0F0100
	DISPLAY_REGION_END  = 0x0F01FF

	DISPLAY_MODE   = 0x0F0100
	DISPLAY_FRAMES = 0x0F0104
	DISPLAY_WIDTH  = 0x0F0108
	DISPLAY_HEIGHT = 0x0F010C
)

type GfxMode struct {
	width       int
	height      int
	bytesPerRow int
	totalSize   int
}

var GfxModes = map[uint32]GfxMode{
	GFX_MODE_320x240: {
		width:       320,
		height:      240,
		bytesPerRow: 320 * 4,
		totalSize:   320 * 240 * 4,
	},
	GFX_MODE_640x480: {
		width:       640,
		height:      480,
		bytesPerRow: 640 * 4,
		totalSize:   640 * 480 * 4,
	},
}
