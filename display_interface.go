// display_interface.go - Display output abstraction for the Copper Engine

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

/*
display_interface.go - Display output abstraction

The gfx overlay renders into bus RAM; a DisplayOutput puts those pixels
on an actual screen. Backends are selected at build time: the Ebiten
window in normal builds, a frame counter under the headless tag. Both
export the same constructor so call sites never change.
*/

package main

import "fmt"

// DisplayConfig carries backend-independent window parameters.
type DisplayConfig struct {
	Width       int
	Height      int
	Scale       int // integer output scaling
	RefreshRate int // target Hz
	VSync       bool
}

// DisplayOutput is the minimal surface a backend must provide. Frames
// are raw RGBA; anything fancier lives behind the optional interfaces.
type DisplayOutput interface {
	Start() error
	Stop() error
	Close() error
	IsStarted() bool

	SetDisplayConfig(config DisplayConfig) error
	GetDisplayConfig() DisplayConfig
	UpdateFrame(buffer []byte) error

	WaitForVSync() error
	GetFrameCount() uint64
	GetRefreshRate() int
}

// DisplayStatus feeds the status bar overlay in windowed backends.
type DisplayStatus struct {
	StateName  string
	Signals    string
	Overlay    string
	Dispatched uint64
	SyncIssued uint32
	SyncSeen   uint32
	Halted     bool
}

// StatusCapable backends render a live engine status bar.
type StatusCapable interface {
	SetStatusSource(fn func() DisplayStatus)
}

// SnapshotCapable backends can copy an engine snapshot to the system
// clipboard on a hotkey.
type SnapshotCapable interface {
	SetSnapshotSource(fn func() []byte)
}

// KeyCapable backends deliver raw key bytes to a handler.
type KeyCapable interface {
	SetKeyHandler(fn func(byte))
}

func ClampScale(scale int) int {
	if scale < 1 {
		return 1
	}
	if scale > 8 {
		return 8
	}
	return scale
}

const (
	DISPLAY_BACKEND_EBITEN = iota
)

// NewDisplayOutput creates a display backend instance.
func NewDisplayOutput(backend int) (DisplayOutput, error) {
	switch backend {
	case DISPLAY_BACKEND_EBITEN:
		return NewEbitenDisplay()
	default:
		return nil, fmt.Errorf("unsupported display backend: %d", backend)
	}
}

// queueStatusSource adapts a CommandQueue into the status bar feed.
func queueStatusSource(q *CommandQueue) func() DisplayStatus {
	return func() DisplayStatus {
		st := DisplayStatus{
			StateName:  queueStateName(q.consState.Load()),
			Signals:    signalNames(q.sigBits.Load()),
			Overlay:    "none",
			Dispatched: q.dispatchN.Load(),
			SyncIssued: q.nextSync.Load(),
			SyncSeen:   q.syncSeen.Load(),
			Halted:     q.Halted(),
		}
		if ovl := q.loadedOverlay.Load(); ovl != NO_OVERLAY {
			if slot := q.overlays[ovl&0xF]; slot != nil {
				st.Overlay = slot.ovl.Name
			}
		}
		return st
	}
}
