// queue_snapshot.go - Engine state snapshots for the Copper Engine

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

/*
queue_snapshot.go - State snapshots

A QueueSnapshot is a JSON-serialisable picture of the observable engine
state: registers, cursors, signals, overlay table, arena accounting and
the flight recorder tail. Snapshots feed golden-file comparisons in the
stress harness and give bug reports something better than a screenshot.

The snapshot captures only published state. Taking one while the machine
runs is safe; the fields are individually coherent, not a single frozen
instant.
*/

package main

import (
	"fmt"
	"os"

	"github.com/sugawarayuuta/sonnet"
)

type OverlaySnapshot struct {
	BaseID      uint32 `json:"base_id"`
	Span        int    `json:"span"`
	Name        string `json:"name"`
	Commands    int    `json:"commands"`
	StateOffset int    `json:"state_offset"`
	StateSize   int    `json:"state_size"`
	Mirror      uint32 `json:"mirror"`
}

type QueueSnapshot struct {
	State         string            `json:"state"`
	Signals       uint32            `json:"signals"`
	HaltCode      string            `json:"halt_code"`
	LowpriRead    uint32            `json:"lowpri_read"`
	LowpriWrite   uint32            `json:"lowpri_write"`
	HighpriRead   uint32            `json:"highpri_read"`
	HighpriWrite  uint32            `json:"highpri_write"`
	HighpriOpen   bool              `json:"highpri_open"`
	SyncIssued    uint32            `json:"sync_issued"`
	SyncSeen      uint32            `json:"sync_seen"`
	Dispatched    uint64            `json:"dispatched"`
	LoadedOverlay uint32            `json:"loaded_overlay"`
	Overlays      []OverlaySnapshot `json:"overlays"`
	ArenaUsed     uint32            `json:"arena_used"`
	ArenaFree     uint32            `json:"arena_free"`
	ArenaAllocs   int               `json:"arena_allocs"`
	Trace         []traceEntry      `json:"trace,omitempty"`
}

// Snapshot captures the engine's observable state.
func (q *CommandQueue) Snapshot() QueueSnapshot {
	snap := QueueSnapshot{
		State:         queueStateName(q.consState.Load()),
		Signals:       q.sigBits.Load(),
		HaltCode:      haltCodeName(q.haltCode.Load()),
		LowpriRead:    q.lowpriPos.Load(),
		LowpriWrite:   q.wposLow.Load(),
		HighpriRead:   q.highpriPos.Load(),
		HighpriWrite:  q.wposHigh.Load(),
		HighpriOpen:   q.highpriOpen.Load(),
		SyncIssued:    q.nextSync.Load(),
		SyncSeen:      q.syncSeen.Load(),
		Dispatched:    q.dispatchN.Load(),
		LoadedOverlay: q.loadedOverlay.Load(),
	}

	seen := map[*overlaySlot]bool{}
	for _, slot := range q.overlays {
		if slot == nil || seen[slot] {
			continue
		}
		seen[slot] = true
		snap.Overlays = append(snap.Overlays, OverlaySnapshot{
			BaseID:      slot.baseID,
			Span:        int(slot.ovl.span()),
			Name:        slot.ovl.Name,
			Commands:    len(slot.ovl.Commands),
			StateOffset: slot.ovl.StateOffset,
			StateSize:   slot.ovl.StateSize,
			Mirror:      slot.mirror,
		})
	}

	st := q.arena.stats()
	snap.ArenaUsed = st.UsedBytes
	snap.ArenaFree = st.FreeBytes
	snap.ArenaAllocs = st.Allocations

	if q.trace != nil {
		snap.Trace = q.trace.snapshot()
	}
	return snap
}

// SaveSnapshot writes the snapshot as indented JSON to path.
func (q *CommandQueue) SaveSnapshot(path string) error {
	data, err := sonnet.MarshalIndent(q.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("snapshot: write %s: %v", path, err)
	}
	return nil
}

// LoadQueueSnapshot reads a snapshot back, for diffing tools.
func LoadQueueSnapshot(path string) (QueueSnapshot, error) {
	var snap QueueSnapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, fmt.Errorf("snapshot: read %s: %v", path, err)
	}
	if err := sonnet.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("snapshot: parse %s: %v", path, err)
	}
	return snap, nil
}
