// mixer_constants.go - Mixer overlay constants for the Copper Engine

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

package main

const (
	SAMPLE_RATE    = 44100
	MIXER_CHANNELS = 4

	WAVE_SQUARE   = 0
	WAVE_TRIANGLE = 1
	WAVE_SAW      = 2
	WAVE_NOISE    = 3

	CHANNEL_MIX_LEVEL = 0.25 // 1/4 for 4 channels

	NOISE_LFSR_SEED = 0x7FFFFF // 23-bit LFSR seed
	NOISE_LFSR_MASK = 0x7FFFFF

	// Persistent overlay state: 4 words per channel.
	MIXER_STATE_FREQ   = 0x00 // Hz, 16.16 fixed point
	MIXER_STATE_VOLUME = 0x04 // 0-255
	MIXER_STATE_WAVE   = 0x08
	MIXER_STATE_GATE   = 0x0C
	MIXER_STATE_STRIDE = 0x10
	MIXER_STATE_SIZE   = MIXER_CHANNELS * MIXER_STATE_STRIDE

	// Command indexes within the mixer overlay.
	MIX_CMD_TONE    = 0 // 2 words: w0 bits 0-1 chan, bits 8-9 wave; w1 freq 16.16
	MIX_CMD_VOLUME  = 1 // 1 word:  w0 bits 0-1 chan, bits 8-15 volume
	MIX_CMD_GATE    = 2 // 1 word:  w0 bits 0-1 chan, bit 8 on
	MIX_CMD_SILENCE = 3 // 1 word:  all gates off

	// Mixer registers (MMIO, read-only observability).
	MIXER_REGION_BASE = 0x0F0200
	MIXER_REGION_END  = 0x0F02FF

	MIXER_STATUS  = 0x0F0200 // bits 0-3 channel gates, bit 8 enabled
	MIXER_SAMPLES = 0x0F0204 // samples generated since Start
)
