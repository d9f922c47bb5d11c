// main.go - Main entry point for the Copper Engine

/*
 ▄████▄   ▒█████   ██▓███   ██▓███  ▓█████  ██▀███      ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████
▒██▀ ▀█  ▒██▒  ██▒▓██░  ██▒▓██░  ██▒▓█   ▀ ▓██ ▒ ██▒    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀
▒▓█    ▄ ▒██░  ██▒▓██░ ██▓▒▓██░ ██▓▒▒███   ▓██ ░▄█ ▒    ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███
▒▓▓▄ ▄██▒▒██   ██░▒██▄█▓▒ ▒▒██▄█▓▒ ▒▒▓█  ▄ ▒██▀▀█▄      ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄
▒ ▓███▀ ░░ ████▓▒░▒██▒ ░  ░▒██▒ ░  ░░▒████▒░██▓ ▒██▒    ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒
░ ░▒ ▒  ░░ ▒░▒░▒░ ▒▓▒░ ░  ░▒▓▒░ ░  ░░░ ▒░ ░░ ▒▓ ░▒▓░    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░

(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/sugawarayuuta/sonnet"
	"golang.org/x/sync/errgroup"
)

// Demo overlay IDs. Anything 1-15 works; these are the wiring main.go
// chooses for its own machine.
const (
	GFX_OVERLAY_ID   = 1
	MIXER_OVERLAY_ID = 2
)

func boilerPlate() {
	fmt.Println("\nCopper Engine - a coprocessor command-queue machine.")
	fmt.Println("(c) 2024 - 2026 Zayn Otley")
	fmt.Println("https://github.com/IntuitionAmiga/CopperEngine")
	fmt.Println("License: GPLv3 or later")
}

// errConsoleExit signals a clean user-requested shutdown through the
// errgroup without being reported as a failure.
var errConsoleExit = errors.New("console exit")

func main() {
	var (
		demo       = flag.Bool("demo", true, "run the copper-bars demo loop")
		withAudio  = flag.Bool("audio", true, "enable the mixer overlay and audio output")
		console    = flag.Bool("console", true, "interactive Lua console on stdin")
		script     = flag.String("script", "", "Lua script to run after startup")
		soak       = flag.Int("soak", 0, "soak mode: push N commands through the queue and exit")
		traceDepth = flag.Int("trace-depth", 256, "dispatch flight-recorder entries (0 disables)")
		exportDB   = flag.String("export-trace", "", "write the dispatch trace to this SQLite file on exit")
		snapshot   = flag.String("snapshot", "", "write an engine snapshot JSON to this file on exit")
	)
	flag.Parse()

	if *soak > 0 {
		os.Exit(runSoak(*soak))
	}

	boilerPlate()

	bus := NewMachineBus()
	cfg := DefaultQueueConfig()
	cfg.TraceDepth = *traceDepth
	q, err := NewCommandQueue(bus, cfg)
	if err != nil {
		fmt.Printf("Failed to initialize command queue: %v\n", err)
		os.Exit(1)
	}

	display, err := NewDisplayOutput(DISPLAY_BACKEND_EBITEN)
	if err != nil {
		fmt.Printf("Failed to initialize display: %v\n", err)
		os.Exit(1)
	}
	gfx := NewGfxUnit(bus, display)
	gfx.Register(q, GFX_OVERLAY_ID)

	var mix *MixerUnit
	if *withAudio {
		mix, err = NewMixerUnit(bus, AUDIO_BACKEND_OTO)
		if err != nil {
			fmt.Printf("Audio disabled: %v\n", err)
			mix = nil
		} else {
			mix.Register(q, MIXER_OVERLAY_ID)
		}
	}

	bus.SealMappings()
	if err := q.Start(); err != nil {
		fmt.Printf("Failed to start consumer: %v\n", err)
		os.Exit(1)
	}
	if err := display.Start(); err != nil {
		fmt.Printf("Failed to start display: %v\n", err)
		os.Exit(1)
	}
	if mix != nil {
		mix.Start()
	}

	if sc, ok := display.(StatusCapable); ok {
		sc.SetStatusSource(queueStatusSource(q))
	}
	if sc, ok := display.(SnapshotCapable); ok {
		sc.SetSnapshotSource(func() []byte {
			data, err := sonnet.MarshalIndent(q.Snapshot(), "", "  ")
			if err != nil {
				return nil
			}
			return data
		})
	}

	// The queue is single-producer: the demo loop and the console take
	// turns under this mutex.
	var producerMu sync.Mutex

	sc := NewScriptConsole(q, gfx, mix, os.Stdout)
	defer sc.Close()

	if *script != "" {
		producerMu.Lock()
		err := sc.RunFile(*script)
		producerMu.Unlock()
		if err != nil {
			fmt.Printf("Script error: %v\n", err)
		}
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	g, ctx := errgroup.WithContext(rootCtx)

	if *demo {
		g.Go(func() error {
			return runCopperBars(ctx, q, gfx, mix, &producerMu)
		})
	}

	var host *ConsoleHost
	if *console {
		host = NewConsoleHost()
		host.Start()
		fmt.Println("Console ready; type 'help' for commands, 'exit' to quit.")
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case line := <-host.Lines():
					if line == "exit" {
						return errConsoleExit
					}
					producerMu.Lock()
					err := sc.Eval(line)
					producerMu.Unlock()
					if err != nil {
						fmt.Printf("error: %v\r\n", err)
					}
				}
			}
		})
	}

	err = g.Wait()
	if host != nil {
		host.Stop()
	}
	if err != nil && !errors.Is(err, errConsoleExit) && !errors.Is(err, context.Canceled) {
		fmt.Printf("Engine stopped: %v\n", err)
	}

	if *snapshot != "" {
		if err := q.SaveSnapshot(*snapshot); err != nil {
			fmt.Printf("Snapshot failed: %v\n", err)
		}
	}
	if *exportDB != "" {
		if err := q.ExportTrace(*exportDB); err != nil {
			fmt.Printf("Trace export failed: %v\n", err)
		}
	}

	if mix != nil {
		mix.Stop()
	}
	display.Close()
	q.Close()

	if q.Halted() {
		fmt.Printf("Consumer halted: %s\n", haltCodeName(q.HaltCode()))
		q.DumpTrace(os.Stdout, 16)
		os.Exit(1)
	}
}

// copperBarColors is the classic raster-bar gradient, rotated through
// the palette once per frame.
var copperBarColors = [GFX_PALETTE_SIZE]uint32{
	0x110000FF, 0x330000FF, 0x660000FF, 0x990000FF,
	0xCC1100FF, 0xFF3300FF, 0xFF6600FF, 0xFF9933FF,
	0xFFCC66FF, 0xFF9933FF, 0xFF6600FF, 0xFF3300FF,
	0xCC1100FF, 0x990000FF, 0x660000FF, 0x330000FF,
}

// recordCopperBars captures the static frame as a block: sixteen
// palette-indexed bars. The palette rotation outside the block is what
// animates it, so the block itself never needs re-recording.
func recordCopperBars(q *CommandQueue, gfx *GfxUnit) *Block {
	mode := GfxModes[GFX_MODE_320x240]
	barH := mode.height / GFX_PALETTE_SIZE

	q.BlockBegin()
	for i := 0; i < GFX_PALETTE_SIZE; i++ {
		gfx.EmitUsePal(q, uint32(i))
		gfx.EmitRect(q, 0, i*barH, mode.width, barH)
	}
	return q.BlockEnd()
}

// runCopperBars replays the bars block at 60 Hz with a rotating palette
// and a slow two-note bass figure on the mixer.
func runCopperBars(ctx context.Context, q *CommandQueue, gfx *GfxUnit, mix *MixerUnit, producerMu *sync.Mutex) error {
	producerMu.Lock()
	gfx.EmitSetMode(q, GFX_MODE_320x240)
	bars := recordCopperBars(q, gfx)
	if mix != nil {
		mix.EmitVolume(q, 0, 160)
		mix.EmitTone(q, 0, WAVE_TRIANGLE, 110)
		mix.EmitGate(q, 0, true)
	}
	q.Flush()
	producerMu.Unlock()

	ticker := time.NewTicker(time.Second / 60)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-ctx.Done():
			producerMu.Lock()
			if mix != nil {
				mix.EmitSilence(q)
			}
			q.Sync()
			q.BlockFree(bars)
			producerMu.Unlock()
			return ctx.Err()
		case <-ticker.C:
		}

		producerMu.Lock()
		for i := 0; i < GFX_PALETTE_SIZE; i++ {
			gfx.EmitPalette(q, uint32(i), copperBarColors[(i+frame)%GFX_PALETTE_SIZE])
		}
		q.BlockRun(bars)
		gfx.EmitPresent(q, false)
		if mix != nil && frame%30 == 0 {
			hz := 110.0
			if frame%60 == 30 {
				hz = 165.0
			}
			mix.EmitTone(q, 0, WAVE_TRIANGLE, hz)
		}
		// Drain each frame so a stalled display cannot wedge the queue
		// arbitrarily deep.
		q.Sync()
		producerMu.Unlock()

		if q.Halted() {
			return fmt.Errorf("consumer halted: %s", haltCodeName(q.HaltCode()))
		}
		frame++
	}
}
