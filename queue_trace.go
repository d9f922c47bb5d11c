// queue_trace.go - Dispatch flight recorder for the Copper Engine

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

/*
queue_trace.go - Dispatch flight recorder

A fixed-depth ring of the most recent dispatches, recorded by the
consumer as each command retires. The ring answers the question every
halted-copper session starts with: what ran just before it died. Snap
reads are taken under the same small mutex the recorder uses; the
recorder runs on the consumer goroutine only, so contention is one
reader poking a live machine.

ExportTrace writes the ring to a SQLite database so a post-mortem can be
queried offline (join against the block arena dump, group by overlay,
the usual archaeology).
*/

package main

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

type traceEntry struct {
	Seq   uint64 `json:"seq"`   // dispatch sequence number, 1-based
	PC    uint32 `json:"pc"`    // bus address the command was fetched from
	Word  uint32 `json:"word"`  // first command word
	Words int    `json:"words"` // command length
}

type dispatchTrace struct {
	mu      sync.Mutex
	entries []traceEntry
	next    int
	wrapped bool
}

func newDispatchTrace(depth int) *dispatchTrace {
	return &dispatchTrace{entries: make([]traceEntry, depth)}
}

func (t *dispatchTrace) record(seq uint64, pc, word uint32, words int) {
	t.mu.Lock()
	t.entries[t.next] = traceEntry{Seq: seq, PC: pc, Word: word, Words: words}
	t.next++
	if t.next == len(t.entries) {
		t.next = 0
		t.wrapped = true
	}
	t.mu.Unlock()
}

// snapshot returns the recorded entries oldest-first.
func (t *dispatchTrace) snapshot() []traceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.wrapped {
		out := make([]traceEntry, t.next)
		copy(out, t.entries[:t.next])
		return out
	}
	out := make([]traceEntry, 0, len(t.entries))
	out = append(out, t.entries[t.next:]...)
	out = append(out, t.entries[:t.next]...)
	return out
}

var engineCmdNames = [16]string{
	CMD_NOOP:         "noop",
	CMD_JUMP:         "jump",
	CMD_CALL:         "call",
	CMD_RET:          "ret",
	CMD_DMA:          "dma",
	CMD_WRITE_STATUS: "status",
	CMD_SYNC_INCR:    "sync",
}

func traceCmdName(word uint32) string {
	ovl := word >> 28
	idx := (word >> 24) & 0xF
	if ovl == QUEUE_OVERLAY_ENGINE {
		if name := engineCmdNames[idx]; name != "" {
			return name
		}
		return fmt.Sprintf("engine_%X", idx)
	}
	return fmt.Sprintf("ovl%d_cmd%d", ovl, idx)
}

// TraceEnabled reports whether the flight recorder was configured.
func (q *CommandQueue) TraceEnabled() bool {
	return q.trace != nil
}

// ExportTrace dumps the flight recorder into a SQLite database at path.
// The dispatch table is replaced wholesale; one export per file.
func (q *CommandQueue) ExportTrace(path string) error {
	if q.trace == nil {
		return fmt.Errorf("trace export: flight recorder disabled (TraceDepth 0)")
	}
	entries := q.trace.snapshot()

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("trace export: open %s: %v", path, err)
	}
	defer db.Close()

	if _, err := db.Exec(`
		DROP TABLE IF EXISTS dispatch;
		CREATE TABLE dispatch (
			seq     INTEGER PRIMARY KEY,
			pc      INTEGER NOT NULL,
			word    INTEGER NOT NULL,
			words   INTEGER NOT NULL,
			overlay INTEGER NOT NULL,
			name    TEXT NOT NULL
		);`); err != nil {
		return fmt.Errorf("trace export: create table: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("trace export: begin: %v", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO dispatch (seq, pc, word, words, overlay, name) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("trace export: prepare: %v", err)
	}
	for _, e := range entries {
		if _, err := stmt.Exec(int64(e.Seq), int64(e.PC), int64(e.Word), e.Words,
			int64(e.Word>>28), traceCmdName(e.Word)); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("trace export: insert seq %d: %v", e.Seq, err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("trace export: commit: %v", err)
	}
	return nil
}
