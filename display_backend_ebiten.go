//go:build !headless

// display_backend_ebiten.go - Ebiten display backend for the Copper Engine

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"image/color"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"golang.design/x/clipboard"
	"golang.org/x/image/font/basicfont"
)

type EbitenDisplay struct {
	running     bool
	window      *ebiten.Image
	width       int
	height      int
	fullscreen  bool
	scale       int
	windowedW   int
	windowedH   int
	frameBuffer []byte
	bufferMutex sync.RWMutex
	frameCount  uint64
	refreshRate int
	vsyncChan   chan struct{}
	done        chan struct{}

	statusSource   func() DisplayStatus
	snapshotSource func() []byte
	keyHandler     func(byte)

	clipboardOnce sync.Once
	clipboardOK   bool
	showStatusBar bool
}

func NewEbitenDisplay() (DisplayOutput, error) {
	return &EbitenDisplay{
		width:         320,
		height:        240,
		scale:         2,
		windowedW:     640,
		windowedH:     480,
		frameBuffer:   make([]byte, 320*240*4),
		refreshRate:   60,
		vsyncChan:     make(chan struct{}, 1),
		done:          make(chan struct{}),
		showStatusBar: true,
	}, nil
}

func (eo *EbitenDisplay) Start() error {
	if eo.running {
		return nil
	}
	eo.bufferMutex.Lock()
	eo.done = make(chan struct{})
	eo.bufferMutex.Unlock()
	eo.running = true
	ebiten.SetWindowSize(eo.windowedW, eo.windowedH)
	ebiten.SetWindowTitle("Copper Engine (c) 2024 - 2026 Zayn Otley")
	ebiten.SetWindowResizable(true)
	ebiten.SetRunnableOnUnfocused(true)
	ebiten.SetVsyncEnabled(true)
	if eo.fullscreen {
		ebiten.SetFullscreen(true)
	}

	go func() {
		defer func() {
			eo.running = false
			eo.bufferMutex.RLock()
			done := eo.done
			eo.bufferMutex.RUnlock()
			select {
			case <-done:
			default:
				close(done)
			}
		}()
		if err := ebiten.RunGame(eo); err != nil {
			fmt.Printf("Ebiten error: %v\n", err)
		}
	}()

	// Wait for first Draw call to ensure Ebiten is ready
	<-eo.vsyncChan
	return nil
}

func (eo *EbitenDisplay) Stop() error {
	eo.running = false
	return nil
}

func (eo *EbitenDisplay) Close() error {
	return eo.Stop()
}

func (eo *EbitenDisplay) Done() <-chan struct{} {
	eo.bufferMutex.RLock()
	done := eo.done
	eo.bufferMutex.RUnlock()
	return done
}

func (eo *EbitenDisplay) IsStarted() bool {
	return eo.running
}

func (eo *EbitenDisplay) SetDisplayConfig(config DisplayConfig) error {
	eo.bufferMutex.Lock()
	defer eo.bufferMutex.Unlock()

	width := config.Width
	height := config.Height
	if width <= 0 {
		width = eo.width
	}
	if height <= 0 {
		height = eo.height
	}
	eo.width = width
	eo.height = height
	eo.scale = ClampScale(config.Scale)
	newSize := eo.width * eo.height * 4

	if len(eo.frameBuffer) != newSize {
		eo.frameBuffer = make([]byte, newSize)
	}

	eo.windowedW = eo.width * eo.scale
	eo.windowedH = eo.height * eo.scale
	if eo.running && !eo.fullscreen {
		ebiten.SetWindowSize(eo.windowedW, eo.windowedH)
	}
	if eo.window != nil {
		eo.window.Dispose()
		eo.window = nil
	}
	return nil
}

func (eo *EbitenDisplay) GetDisplayConfig() DisplayConfig {
	return DisplayConfig{
		Width:       eo.width,
		Height:      eo.height,
		Scale:       eo.scale,
		RefreshRate: eo.refreshRate,
		VSync:       true,
	}
}

func (eo *EbitenDisplay) UpdateFrame(data []byte) error {
	eo.bufferMutex.Lock()
	copy(eo.frameBuffer, data)
	eo.bufferMutex.Unlock()
	return nil
}

func (eo *EbitenDisplay) WaitForVSync() error {
	<-eo.vsyncChan
	return nil
}

func (eo *EbitenDisplay) GetFrameCount() uint64 {
	return eo.frameCount
}

func (eo *EbitenDisplay) GetRefreshRate() int {
	return eo.refreshRate
}

func (eo *EbitenDisplay) SetStatusSource(fn func() DisplayStatus) {
	eo.bufferMutex.Lock()
	eo.statusSource = fn
	eo.bufferMutex.Unlock()
}

func (eo *EbitenDisplay) SetSnapshotSource(fn func() []byte) {
	eo.bufferMutex.Lock()
	eo.snapshotSource = fn
	eo.bufferMutex.Unlock()
}

func (eo *EbitenDisplay) SetKeyHandler(fn func(byte)) {
	eo.bufferMutex.Lock()
	eo.keyHandler = fn
	eo.bufferMutex.Unlock()
}

func (eo *EbitenDisplay) emitByte(b byte) {
	eo.bufferMutex.RLock()
	handler := eo.keyHandler
	eo.bufferMutex.RUnlock()
	if handler != nil {
		handler(b)
	}
}

func (eo *EbitenDisplay) Update() error {
	if ebiten.IsWindowBeingClosed() {
		return ebiten.Termination
	}
	if !eo.running {
		return ebiten.Termination
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF11) {
		eo.bufferMutex.Lock()
		eo.fullscreen = !eo.fullscreen
		ebiten.SetFullscreen(eo.fullscreen)
		if !eo.fullscreen {
			ebiten.SetWindowSize(eo.windowedW, eo.windowedH)
		}
		eo.bufferMutex.Unlock()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		eo.bufferMutex.Lock()
		eo.showStatusBar = !eo.showStatusBar
		eo.bufferMutex.Unlock()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF9) {
		eo.handleSnapshotCopy()
	}
	for _, r := range ebiten.AppendInputChars(nil) {
		if r > 0 && r <= 0xFF {
			eo.emitByte(byte(r))
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		eo.emitByte('\n')
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		eo.emitByte(0x1B)
	}
	return nil
}

// handleSnapshotCopy puts the engine snapshot JSON on the clipboard so a
// bug report is one F9 and one paste away.
func (eo *EbitenDisplay) handleSnapshotCopy() {
	eo.bufferMutex.RLock()
	src := eo.snapshotSource
	eo.bufferMutex.RUnlock()
	if src == nil {
		return
	}
	eo.clipboardOnce.Do(func() {
		eo.clipboardOK = clipboard.Init() == nil
	})
	if !eo.clipboardOK {
		return
	}
	data := src()
	if len(data) == 0 {
		return
	}
	clipboard.Write(clipboard.FmtText, data)
}

func (eo *EbitenDisplay) Draw(screen *ebiten.Image) {
	if eo.window == nil {
		eo.window = ebiten.NewImage(eo.width, eo.height)
	}

	eo.bufferMutex.RLock()
	eo.window.WritePixels(eo.frameBuffer)
	showStatusBar := eo.showStatusBar
	eo.bufferMutex.RUnlock()
	screen.DrawImage(eo.window, nil)
	if showStatusBar {
		eo.drawQueueStatusBar(screen)
	}

	eo.frameCount++
	select {
	case eo.vsyncChan <- struct{}{}:
	default:
	}
}

func (eo *EbitenDisplay) Layout(_, _ int) (int, int) {
	return eo.width, eo.height
}

type statusCell struct {
	name    string
	enabled bool
}

func drawStatusRow(screen *ebiten.Image, x, baselineY int, label string, cells []statusCell) {
	face := basicfont.Face7x13
	labelColor := color.RGBA{190, 190, 190, 255}
	offColor := color.RGBA{120, 120, 120, 255}
	onColor := color.RGBA{0, 220, 90, 255}

	text.Draw(screen, label, face, x, baselineY, labelColor)
	cursorX := x + text.BoundString(face, label).Dx() + 6

	for _, cell := range cells {
		c := offColor
		if cell.enabled {
			c = onColor
		}
		text.Draw(screen, cell.name, face, cursorX, baselineY, c)
		cursorX += text.BoundString(face, cell.name).Dx() + 8
	}
}

func (eo *EbitenDisplay) drawQueueStatusBar(screen *ebiten.Image) {
	eo.bufferMutex.RLock()
	src := eo.statusSource
	eo.bufferMutex.RUnlock()
	if src == nil {
		return
	}
	s := src()

	barHeight := 31
	if barHeight >= eo.height {
		return
	}
	y := eo.height - barHeight
	ebitenutil.DrawRect(screen, 0, float64(y), float64(eo.width), float64(barHeight), color.RGBA{0, 0, 0, 180})

	stateColor := color.RGBA{0, 220, 90, 255}
	if s.Halted {
		stateColor = color.RGBA{255, 85, 85, 255}
	}
	face := basicfont.Face7x13
	text.Draw(screen, "QUEUE "+s.StateName, face, 6, y+13, stateColor)

	drawStatusRow(screen, 6, y+26, fmt.Sprintf("DISP %-8d", s.Dispatched), []statusCell{
		{name: fmt.Sprintf("SYNC %d/%d", s.SyncSeen, s.SyncIssued), enabled: s.SyncSeen == s.SyncIssued},
		{name: "OVL " + s.Overlay, enabled: s.Overlay != "none"},
		{name: "SIG " + s.Signals, enabled: s.Signals != "-"},
	})

	legendColor := color.RGBA{160, 160, 160, 255}
	legend := "F9 Snapshot  F11 Fullscreen  F12 Status Bar"
	legendW := text.BoundString(face, legend).Dx()
	legendX := max(eo.width-legendW-6, 6)
	text.Draw(screen, legend, face, legendX, y+13, legendColor)
}
