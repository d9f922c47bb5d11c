//go:build headless

// display_backend_headless.go - Headless display backend for the Copper Engine

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

package main

import "sync/atomic"

type HeadlessDisplay struct {
	started     bool
	config      DisplayConfig
	frameCount  uint64
	refreshRate int
}

func NewEbitenDisplay() (DisplayOutput, error) {
	return &HeadlessDisplay{refreshRate: 60}, nil
}

func (h *HeadlessDisplay) Start() error {
	h.started = true
	return nil
}

func (h *HeadlessDisplay) Stop() error {
	h.started = false
	return nil
}

func (h *HeadlessDisplay) Close() error {
	h.started = false
	return nil
}

func (h *HeadlessDisplay) IsStarted() bool {
	return h.started
}

func (h *HeadlessDisplay) SetDisplayConfig(config DisplayConfig) error {
	h.config = config
	return nil
}

func (h *HeadlessDisplay) GetDisplayConfig() DisplayConfig {
	return h.config
}

func (h *HeadlessDisplay) UpdateFrame(buffer []byte) error {
	atomic.AddUint64(&h.frameCount, 1)
	return nil
}

func (h *HeadlessDisplay) WaitForVSync() error {
	return nil
}

func (h *HeadlessDisplay) GetFrameCount() uint64 {
	return atomic.LoadUint64(&h.frameCount)
}

func (h *HeadlessDisplay) GetRefreshRate() int {
	if h.refreshRate == 0 {
		return 60
	}
	return h.refreshRate
}
