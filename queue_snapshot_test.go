package main

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestSnapshotReflectsActivity drives some traffic and reads the
// published counters back through a snapshot.
func TestSnapshotReflectsActivity(t *testing.T) {
	rig := newQueueTestRig(t)

	rig.emitMark(1)
	rig.emitMark(2)
	rig.q.Sync()

	snap := rig.q.Snapshot()
	if snap.Dispatched != 3 { // two marks plus the drain syncpoint
		t.Fatalf("snapshot reports %d dispatches, expected 3", snap.Dispatched)
	}
	if snap.SyncIssued != 1 || snap.SyncSeen != 1 {
		t.Fatalf("sync counters issued=%d seen=%d, expected 1/1", snap.SyncIssued, snap.SyncSeen)
	}
	if snap.HaltCode != "none" {
		t.Fatalf("healthy machine reports halt code %q", snap.HaltCode)
	}
	if snap.HighpriOpen {
		t.Fatal("snapshot reports the high-priority channel open")
	}
	if snap.LowpriRead != snap.LowpriWrite {
		t.Fatalf("drained queue has read %06X != write %06X", snap.LowpriRead, snap.LowpriWrite)
	}
	if snap.LoadedOverlay != probeOverlayID {
		t.Fatalf("loaded overlay %d, expected the probe at %d", snap.LoadedOverlay, probeOverlayID)
	}

	var probe *OverlaySnapshot
	for i := range snap.Overlays {
		if snap.Overlays[i].Name == "probe" {
			probe = &snap.Overlays[i]
		}
	}
	if probe == nil {
		t.Fatalf("probe overlay missing from snapshot: %+v", snap.Overlays)
	}
	if probe.BaseID != probeOverlayID || probe.Span != 1 || probe.Commands != 5 {
		t.Fatalf("probe overlay snapshot wrong: %+v", *probe)
	}
	if probe.Mirror == 0 {
		t.Fatal("stateful probe overlay has no mirror address")
	}
	if len(snap.Trace) == 0 {
		t.Fatal("snapshot carries no trace tail with the recorder enabled")
	}
}

// TestSnapshotRoundTrip saves to disk and loads back.
func TestSnapshotRoundTrip(t *testing.T) {
	rig := newQueueTestRig(t)
	rig.emitMark(42)
	rig.q.Sync()

	path := filepath.Join(t.TempDir(), "snap.json")
	if err := rig.q.SaveSnapshot(path); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	loaded, err := LoadQueueSnapshot(path)
	if err != nil {
		t.Fatalf("LoadQueueSnapshot: %v", err)
	}
	want := rig.q.Snapshot()
	if loaded.Dispatched != want.Dispatched || loaded.SyncSeen != want.SyncSeen ||
		loaded.LowpriWrite != want.LowpriWrite || len(loaded.Overlays) != len(want.Overlays) {
		t.Fatalf("round-trip drifted:\n loaded %+v\n live   %+v", loaded, want)
	}
}

func TestLoadSnapshotMissingFile(t *testing.T) {
	if _, err := LoadQueueSnapshot(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("loading a missing snapshot succeeded")
	}
}

// TestDumpStateContents checks the monitor report carries the facts a
// post-mortem needs.
func TestDumpStateContents(t *testing.T) {
	rig := newQueueTestRig(t)
	rig.emitMark(1)
	rig.q.Sync()

	var sb strings.Builder
	rig.q.DumpState(&sb)
	out := sb.String()

	for _, want := range []string{"Command queue:", "lowpri", "highpri", "probe", "arena"} {
		if !strings.Contains(out, want) {
			t.Fatalf("DumpState output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "HALTED:") {
		t.Fatalf("healthy machine dumped as halted:\n%s", out)
	}
}

func TestDumpStateShowsHalt(t *testing.T) {
	rig := newQueueTestRig(t)

	w := rig.q.WriteBegin()
	w.Put(CMD_RET << 24)
	rig.q.WriteEnd(w)
	rig.q.Flush()
	if !rig.waitHalted(2 * time.Second) {
		t.Fatal("consumer did not halt")
	}

	var sb strings.Builder
	rig.q.DumpState(&sb)
	if !strings.Contains(sb.String(), "HALTED:") {
		t.Fatalf("halted machine not reported:\n%s", sb.String())
	}
}

func TestDumpTraceContents(t *testing.T) {
	rig := newQueueTestRig(t)
	rig.emitMark(1)
	rig.q.Sync()

	var sb strings.Builder
	rig.q.DumpTrace(&sb, 0)
	out := sb.String()
	if !strings.Contains(out, "ovl3_cmd0") || !strings.Contains(out, "sync") {
		t.Fatalf("DumpTrace missing dispatches:\n%s", out)
	}

	sb.Reset()
	rig.q.DumpTrace(&sb, 1)
	if lines := strings.Count(sb.String(), "\n"); lines != 1 {
		t.Fatalf("DumpTrace limit 1 wrote %d lines", lines)
	}
}
