// mixer_overlay.go - Mixer command overlay for the Copper Engine

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

/*
mixer_overlay.go - Mixer overlay

A four-channel tone generator driven from the command stream: square,
triangle, saw and noise, each with frequency, volume and a gate. Command
handlers run on the consumer goroutine and poke the live channel bank;
the audio backend pulls mixed samples from its own playback goroutine,
so the bank is guarded by a mutex exactly like a register write racing a
DAC fetch would be on silicon.

Channel settings are mirrored into the overlay's persistent state, so a
stream that hops between gfx and mixer commands finds its tones where it
left them. The chip itself keeps sounding while the overlay is swapped
out; only the command window moves.
*/

package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

type mixerChannel struct {
	frequency float32
	phase     float32
	volume    float32
	waveType  int
	noiseSR   uint32
	noiseVal  float32
	gate      bool
}

type MixerUnit struct {
	mutex    sync.RWMutex
	channels [MIXER_CHANNELS]mixerChannel
	enabled  bool
	output   AudioOutput
	samples  atomic.Uint64
	id       uint32 // overlay ID once registered
}

// NewMixerUnit builds the mixer, binds the audio backend and maps the
// MIXER_* registers.
func NewMixerUnit(bus *MachineBus, backend int) (*MixerUnit, error) {
	m := newMixerUnit(bus)
	output, err := NewAudioOutput(backend, SAMPLE_RATE, m)
	if err != nil {
		return nil, fmt.Errorf("mixer: audio backend: %v", err)
	}
	m.output = output
	return m, nil
}

// newMixerUnit builds the chip without a backend; the caller attaches one.
func newMixerUnit(bus *MachineBus) *MixerUnit {
	m := &MixerUnit{}
	for i := range m.channels {
		m.channels[i] = mixerChannel{
			waveType: WAVE_SQUARE,
			volume:   1.0,
			noiseSR:  NOISE_LFSR_SEED,
		}
	}
	bus.MapIO(MIXER_REGION_BASE, MIXER_REGION_END, m.registerRead, m.registerWrite)
	return m
}

// Overlay builds the overlay definition. The initial image carries the
// reset channel bank: full volume, square wave, gates closed.
func (m *MixerUnit) Overlay() *Overlay {
	data := make([]byte, MIXER_STATE_SIZE)
	for ch := 0; ch < MIXER_CHANNELS; ch++ {
		base := ch * MIXER_STATE_STRIDE
		binary.LittleEndian.PutUint32(data[base+MIXER_STATE_VOLUME:], 255)
		binary.LittleEndian.PutUint32(data[base+MIXER_STATE_WAVE:], WAVE_SQUARE)
	}
	return &Overlay{
		Name: "mixer",
		Commands: []OverlayCommand{
			MIX_CMD_TONE:    {Name: "tone", Words: 2, Handler: m.cmdTone},
			MIX_CMD_VOLUME:  {Name: "volume", Words: 1, Handler: m.cmdVolume},
			MIX_CMD_GATE:    {Name: "gate", Words: 1, Handler: m.cmdGate},
			MIX_CMD_SILENCE: {Name: "silence", Words: 1, Handler: m.cmdSilence},
		},
		Data:        data,
		StateOffset: 0,
		StateSize:   MIXER_STATE_SIZE,
	}
}

func (m *MixerUnit) Start() {
	m.mutex.Lock()
	m.enabled = true
	m.mutex.Unlock()
	if m.output != nil {
		m.output.Start()
	}
}

func (m *MixerUnit) Stop() {
	m.mutex.Lock()
	m.enabled = false
	m.mutex.Unlock()
	if m.output != nil {
		m.output.Stop()
		m.output.Close()
	}
}

func (m *MixerUnit) cmdTone(ctx *OverlayContext, args []uint32) {
	ch := int(args[0] & 0x3)
	wave := int(args[0]>>8) & 0x3
	freq := float32(args[1]) / 65536.0

	m.mutex.Lock()
	m.channels[ch].frequency = freq
	m.channels[ch].waveType = wave
	m.mutex.Unlock()

	state := ctx.State()[ch*MIXER_STATE_STRIDE:]
	binary.LittleEndian.PutUint32(state[MIXER_STATE_FREQ:], args[1])
	binary.LittleEndian.PutUint32(state[MIXER_STATE_WAVE:], uint32(wave))
}

func (m *MixerUnit) cmdVolume(ctx *OverlayContext, args []uint32) {
	ch := int(args[0] & 0x3)
	vol := args[0] >> 8 & 0xFF

	m.mutex.Lock()
	m.channels[ch].volume = float32(vol) / 255.0
	m.mutex.Unlock()

	state := ctx.State()[ch*MIXER_STATE_STRIDE:]
	binary.LittleEndian.PutUint32(state[MIXER_STATE_VOLUME:], vol)
}

func (m *MixerUnit) cmdGate(ctx *OverlayContext, args []uint32) {
	ch := int(args[0] & 0x3)
	on := args[0]&0x100 != 0

	m.mutex.Lock()
	m.channels[ch].gate = on
	if on {
		m.channels[ch].phase = 0
	}
	m.mutex.Unlock()

	state := ctx.State()[ch*MIXER_STATE_STRIDE:]
	gate := uint32(0)
	if on {
		gate = 1
	}
	binary.LittleEndian.PutUint32(state[MIXER_STATE_GATE:], gate)
}

func (m *MixerUnit) cmdSilence(ctx *OverlayContext, args []uint32) {
	m.mutex.Lock()
	for i := range m.channels {
		m.channels[i].gate = false
	}
	m.mutex.Unlock()

	state := ctx.State()
	for ch := 0; ch < MIXER_CHANNELS; ch++ {
		binary.LittleEndian.PutUint32(state[ch*MIXER_STATE_STRIDE+MIXER_STATE_GATE:], 0)
	}
}

// Register installs the overlay on the queue and remembers the ID the
// producer-side emitters encode into command words.
func (m *MixerUnit) Register(q *CommandQueue, id uint32) {
	q.RegisterOverlay(m.Overlay(), id)
	m.id = id
}

func (m *MixerUnit) word0(idx uint32) uint32 {
	return (m.id<<4 | idx) << 24
}

// EmitTone programs a channel's oscillator. hz is converted to the
// 16.16 fixed-point wire format.
func (m *MixerUnit) EmitTone(q *CommandQueue, ch int, wave int, hz float64) {
	w := q.WriteBegin()
	w.Put(m.word0(MIX_CMD_TONE) | uint32(wave&0x3)<<8 | uint32(ch&0x3))
	w.Put(uint32(hz * 65536.0))
	q.WriteEnd(w)
}

func (m *MixerUnit) EmitVolume(q *CommandQueue, ch int, vol uint32) {
	w := q.WriteBegin()
	w.Put(m.word0(MIX_CMD_VOLUME) | (vol&0xFF)<<8 | uint32(ch&0x3))
	q.WriteEnd(w)
}

func (m *MixerUnit) EmitGate(q *CommandQueue, ch int, on bool) {
	word := m.word0(MIX_CMD_GATE) | uint32(ch&0x3)
	if on {
		word |= 0x100
	}
	w := q.WriteBegin()
	w.Put(word)
	q.WriteEnd(w)
}

func (m *MixerUnit) EmitSilence(q *CommandQueue) {
	w := q.WriteBegin()
	w.Put(m.word0(MIX_CMD_SILENCE))
	q.WriteEnd(w)
}

func (ch *mixerChannel) generateSample() float32 {
	step := ch.frequency / SAMPLE_RATE
	ch.phase += step
	wrapped := false
	for ch.phase >= 1.0 {
		ch.phase -= 1.0
		wrapped = true
	}

	var raw float32
	switch ch.waveType {
	case WAVE_SQUARE:
		if ch.phase < 0.5 {
			raw = 1.0
		} else {
			raw = -1.0
		}
	case WAVE_TRIANGLE:
		if ch.phase < 0.5 {
			raw = 4.0*ch.phase - 1.0
		} else {
			raw = 3.0 - 4.0*ch.phase
		}
	case WAVE_SAW:
		raw = 2.0*ch.phase - 1.0
	case WAVE_NOISE:
		if wrapped {
			bit := (ch.noiseSR ^ ch.noiseSR>>5) & 1
			ch.noiseSR = (ch.noiseSR>>1 | bit<<22) & NOISE_LFSR_MASK
			if ch.noiseSR&1 != 0 {
				ch.noiseVal = 1.0
			} else {
				ch.noiseVal = -1.0
			}
		}
		raw = ch.noiseVal
	}
	return raw * ch.volume
}

// GenerateSample mixes one output sample. Called from the audio
// backend's playback goroutine.
func (m *MixerUnit) GenerateSample() float32 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.enabled {
		return 0
	}
	var sample float32
	for i := range m.channels {
		ch := &m.channels[i]
		if ch.gate {
			sample += ch.generateSample() * CHANNEL_MIX_LEVEL
		}
	}
	m.samples.Add(1)
	return float32(math.Max(math.Min(float64(sample), 1.0), -1.0))
}

func (m *MixerUnit) ReadSample() float32 {
	return m.GenerateSample()
}

func (m *MixerUnit) registerRead(addr uint32) uint32 {
	switch addr {
	case MIXER_STATUS:
		m.mutex.RLock()
		defer m.mutex.RUnlock()
		var status uint32
		for i := range m.channels {
			if m.channels[i].gate {
				status |= 1 << i
			}
		}
		if m.enabled {
			status |= 1 << 8
		}
		return status
	case MIXER_SAMPLES:
		return uint32(m.samples.Load())
	}
	return 0
}

func (m *MixerUnit) registerWrite(addr uint32, value uint32) {
	fmt.Printf("Warning: write to read-only mixer register 0x%06X (value 0x%08X)\n", addr, value)
}
