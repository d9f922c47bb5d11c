package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func newConsoleTestRig(t *testing.T) (*queueTestRig, *ScriptConsole, *strings.Builder) {
	t.Helper()
	rig := newQueueTestRig(t)
	out := &strings.Builder{}
	console := NewScriptConsole(rig.q, nil, nil, out)
	t.Cleanup(console.Close)
	return rig, console, out
}

func TestConsoleLuaDrivesQueue(t *testing.T) {
	rig, console, _ := newConsoleTestRig(t)

	// The probe's mark command, written word by word from Lua.
	word := probeWord(probeCmdMark, 42)
	if err := console.Eval("queue.write(" + itoa(word) + "); queue.sync()"); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	rig.expectMarks([]uint32{42})
}

func TestConsoleLuaLoop(t *testing.T) {
	rig, console, _ := newConsoleTestRig(t)

	script := "for i = 0, 9 do queue.write(" + itoa(probeWord(probeCmdMark, 0)) + " + i) end queue.sync()"
	if err := console.Eval(script); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	rig.expectMarks(seq(10))
}

func TestConsoleSyncpointBindings(t *testing.T) {
	_, console, _ := newConsoleTestRig(t)

	script := `
sp = queue.syncpoint()
queue.wait(sp)
if not queue.done(sp) then error("syncpoint not done after wait") end
`
	if err := console.Eval(script); err != nil {
		t.Fatalf("Eval: %v", err)
	}
}

func TestConsoleBlockHandles(t *testing.T) {
	rig, console, _ := newConsoleTestRig(t)

	script := `
queue.block_begin()
queue.write(` + itoa(probeWord(probeCmdMark, 7)) + `)
h = queue.block_end()
queue.block_run(h)
queue.block_run(h)
queue.sync()
queue.block_free(h)
`
	if err := console.Eval(script); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	rig.expectMarks([]uint32{7, 7})

	if err := console.Eval("queue.block_run(h)"); err == nil {
		t.Fatal("running a freed block handle succeeded")
	}
}

func TestConsoleStaleHandleIsLuaError(t *testing.T) {
	_, console, _ := newConsoleTestRig(t)
	if err := console.Eval("queue.block_run(99)"); err == nil {
		t.Fatal("unknown block handle did not error")
	}
}

// TestConsoleRecoversPanics: queue API misuse must come back as an
// error, not kill the process.
func TestConsoleRecoversPanics(t *testing.T) {
	_, console, _ := newConsoleTestRig(t)

	if err := console.Eval("queue.highpri_end()"); err == nil {
		t.Fatal("highpri_end without begin did not report an error")
	}
	// The console is still usable afterwards.
	if err := console.Eval("queue.noop(); queue.sync()"); err != nil {
		t.Fatalf("console broken after recovered panic: %v", err)
	}
}

func TestConsoleBuiltins(t *testing.T) {
	_, console, out := newConsoleTestRig(t)

	if err := console.Eval("status"); err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out.String(), "Command queue:") {
		t.Fatalf("status wrote no state dump:\n%s", out.String())
	}

	out.Reset()
	if err := console.Eval("help"); err != nil {
		t.Fatalf("help: %v", err)
	}
	if !strings.Contains(out.String(), "queue.sync()") {
		t.Fatal("help text missing examples")
	}

	if err := console.Eval("snapshot"); err == nil {
		t.Fatal("snapshot without a path did not error")
	}
	if err := console.Eval(""); err != nil {
		t.Fatalf("empty line: %v", err)
	}
}

func TestConsoleLuaSyntaxError(t *testing.T) {
	_, console, _ := newConsoleTestRig(t)
	if err := console.Eval("queue.sync((("); err == nil {
		t.Fatal("syntax error not reported")
	}
}

func TestConsoleRunFile(t *testing.T) {
	rig, console, _ := newConsoleTestRig(t)

	path := filepath.Join(t.TempDir(), "demo.lua")
	script := "queue.write(" + itoa(probeWord(probeCmdMark, 5)) + ")\nqueue.sync()\n"
	if err := os.WriteFile(path, []byte(script), 0644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	if err := console.RunFile(path); err != nil {
		t.Fatalf("RunFile: %v", err)
	}
	rig.expectMarks([]uint32{5})

	if err := console.RunFile(filepath.Join(t.TempDir(), "absent.lua")); err == nil {
		t.Fatal("running a missing script succeeded")
	}
}

func TestConsolePeekPoke(t *testing.T) {
	_, console, _ := newConsoleTestRig(t)

	script := `
queue.poke(0x400000, 0xABCD)
if queue.peek(0x400000) ~= 0xABCD then error("peek mismatch") end
`
	if err := console.Eval(script); err != nil {
		t.Fatalf("Eval: %v", err)
	}
}

// itoa renders a uint32 as a Lua integer literal.
func itoa(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}
