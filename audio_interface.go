// audio_interface.go - Audio output abstraction for the Copper Engine

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

package main

import "fmt"

// AudioOutput is what the mixer needs from a playback backend. The
// backend pulls samples from the mixer; the mixer never pushes.
type AudioOutput interface {
	SetupPlayer(chip *MixerUnit)
	Start()
	Stop()
	Close()
	IsStarted() bool
}

const (
	AUDIO_BACKEND_OTO = iota // Pure Go oto backend
)

// NewAudioOutput creates an audio backend and binds it to the mixer.
func NewAudioOutput(backend int, sampleRate int, chip *MixerUnit) (AudioOutput, error) {
	switch backend {
	case AUDIO_BACKEND_OTO:
		player, err := NewOtoPlayer(sampleRate)
		if err != nil {
			return nil, err
		}
		player.SetupPlayer(chip)
		return player, nil
	default:
		return nil, fmt.Errorf("unsupported audio backend: %d", backend)
	}
}
