// stress_soak.go - Long-run soak harness for the Copper Engine queue

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

/*
stress_soak.go - Soak harness

Pushes millions of sequence-stamped commands through a live queue and
has the consumer verify FIFO order as they retire. The traffic mix is
deliberately hostile: single-word commands by the thousand to force
ping-pong switches and backpressure, a recorded block replayed on a
stride, a syncpoint drain every few thousand commands and periodic
high-priority bursts.

Run with `CopperEngine --soak N`. Exits non-zero on any ordering
violation or consumer halt.
*/

package main

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
)

const (
	SOAK_OVERLAY_ID    = 5
	SOAK_SYNC_STRIDE   = 4096  // commands between syncpoint drains
	SOAK_BLOCK_STRIDE  = 1000  // commands between block replays
	SOAK_BURST_STRIDE  = 16384 // commands between high-priority bursts
	SOAK_BURST_LEN     = 8
	SOAK_BLOCK_MARKS   = 16
	SOAK_SEQ_MASK      = CMD_ADDR_MASK // sequence stamps wrap at 24 bits
	SOAK_PROGRESS_STEP = 8192
)

// soakProbe is the verifying overlay: command 0 carries a 24-bit
// sequence stamp the handler checks against the last one seen, command
// 1 is an unstamped filler used inside blocks and bursts.
type soakProbe struct {
	seen     atomic.Uint64
	fillers  atomic.Uint64
	lastSeq  uint32
	haveLast bool
	errs     atomic.Uint64
}

func (p *soakProbe) overlay() *Overlay {
	return &Overlay{
		Name: "soak",
		Commands: []OverlayCommand{
			{Name: "stamp", Words: 1, Handler: p.cmdStamp},
			{Name: "filler", Words: 1, Handler: p.cmdFiller},
		},
	}
}

func (p *soakProbe) cmdStamp(ctx *OverlayContext, args []uint32) {
	seq := args[0] & SOAK_SEQ_MASK
	if p.haveLast {
		want := (p.lastSeq + 1) & SOAK_SEQ_MASK
		if seq != want {
			if p.errs.Add(1) <= 10 {
				fmt.Printf("soak: out of order: got %d, want %d\n", seq, want)
			}
		}
	}
	p.lastSeq = seq
	p.haveLast = true
	p.seen.Add(1)
}

func (p *soakProbe) cmdFiller(ctx *OverlayContext, args []uint32) {
	p.fillers.Add(1)
}

// runSoak soaks the queue with total stamped commands. Returns a process
// exit code.
func runSoak(total int) int {
	bus := NewMachineBus()
	cfg := DefaultQueueConfig()
	cfg.TraceDepth = 64 // enough for a post-mortem, cheap enough to soak with
	q, err := NewCommandQueue(bus, cfg)
	if err != nil {
		fmt.Printf("soak: %v\n", err)
		return 1
	}
	defer q.Close()

	probe := &soakProbe{}
	q.RegisterOverlay(probe.overlay(), SOAK_OVERLAY_ID)
	bus.SealMappings()
	if err := q.Start(); err != nil {
		fmt.Printf("soak: %v\n", err)
		return 1
	}

	stampWord := func(seq uint32) uint32 {
		return uint32(SOAK_OVERLAY_ID)<<28 | seq&SOAK_SEQ_MASK
	}
	fillerWord := uint32(SOAK_OVERLAY_ID)<<28 | 1<<24

	q.BlockBegin()
	for i := 0; i < SOAK_BLOCK_MARKS; i++ {
		q.emit1(fillerWord)
	}
	blk := q.BlockEnd()
	defer q.BlockFree(blk)

	bar := progressbar.Default(int64(total), "soaking")
	start := time.Now()
	blockRuns := 0
	bursts := 0

	for i := 0; i < total; i++ {
		q.emit1(stampWord(uint32(i)))

		if (i+1)%SOAK_BLOCK_STRIDE == 0 {
			q.BlockRun(blk)
			blockRuns++
		}
		if (i+1)%SOAK_BURST_STRIDE == 0 {
			q.HighpriBegin()
			for j := 0; j < SOAK_BURST_LEN; j++ {
				q.emit1(fillerWord)
			}
			q.HighpriEnd()
			q.HighpriSync()
			bursts++
		}
		if (i+1)%SOAK_SYNC_STRIDE == 0 {
			q.Sync()
		}
		if (i+1)%SOAK_PROGRESS_STEP == 0 {
			bar.Add(SOAK_PROGRESS_STEP)
			if q.Halted() {
				break
			}
		}
	}
	q.Sync()
	bar.Finish()
	elapsed := time.Since(start)

	seen := probe.seen.Load()
	fillers := probe.fillers.Load()
	wantFillers := uint64(blockRuns*SOAK_BLOCK_MARKS + bursts*SOAK_BURST_LEN)
	fmt.Printf("soak: %d stamped + %d filler commands in %v (%.0f cmds/s)\n",
		seen, fillers, elapsed.Round(time.Millisecond),
		float64(seen+fillers)/elapsed.Seconds())

	failed := false
	if q.Halted() {
		fmt.Printf("soak: FAILED: consumer halted: %s\n", haltCodeName(q.HaltCode()))
		q.DumpTrace(os.Stdout, 32)
		failed = true
	}
	if seen != uint64(total) {
		fmt.Printf("soak: FAILED: %d of %d stamped commands executed\n", seen, total)
		failed = true
	}
	if fillers != wantFillers {
		fmt.Printf("soak: FAILED: %d of %d filler commands executed\n", fillers, wantFillers)
		failed = true
	}
	if n := probe.errs.Load(); n != 0 {
		fmt.Printf("soak: FAILED: %d ordering violations\n", n)
		failed = true
	}
	if failed {
		return 1
	}
	fmt.Println("soak: PASSED")
	return 0
}
