// script_console.go - Lua bindings and interactive console for the Copper Engine

/*
(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/CopperEngine
License: GPLv3 or later
*/

/*
script_console.go - Script console

Lua bindings over the queue API so command streams can be produced
interactively or from a script file instead of compiled-in demo code.
The bindings run on whichever goroutine evaluates the script; since the
queue is single-producer, the console owns the producer role while a
script runs and the demo loop must be paused (main.go serializes this).

Console grammar: a handful of built-in words (status, trace, snapshot,
export, help, exit); anything else is handed to the Lua interpreter, so
`queue.sync()` and `for i=0,15 do gfx.pal(i, 0xFF0000FF) end` both work
at the prompt.
*/

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// ScriptConsole binds a Lua interpreter to the engine. Not safe for
// concurrent use; one console per producer context.
type ScriptConsole struct {
	q   *CommandQueue
	gfx *GfxUnit
	mix *MixerUnit
	out io.Writer
	L   *lua.LState

	blocks    map[int]*Block
	nextBlock int
}

// NewScriptConsole builds the console and installs the queue, gfx and
// mixer binding tables into a fresh Lua state. gfx and mix may be nil
// when the demo units are not wired (soak runs).
func NewScriptConsole(q *CommandQueue, gfx *GfxUnit, mix *MixerUnit, out io.Writer) *ScriptConsole {
	c := &ScriptConsole{
		q:         q,
		gfx:       gfx,
		mix:       mix,
		out:       out,
		L:         lua.NewState(),
		blocks:    make(map[int]*Block),
		nextBlock: 1,
	}
	c.installQueueTable()
	if gfx != nil {
		c.installGfxTable()
	}
	if mix != nil {
		c.installMixerTable()
	}
	return c
}

// Close releases the Lua state. Recorded-but-unfreed script blocks stay
// allocated in the arena; the queue owns that storage.
func (c *ScriptConsole) Close() {
	c.L.Close()
}

// Eval runs one line of console input. Misuse of the queue API panics
// by design; the console catches it and turns it into a printed error
// so an interactive typo does not take the whole machine down.
func (c *ScriptConsole) Eval(line string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	if handled, berr := c.builtin(line); handled {
		return berr
	}
	return c.L.DoString(line)
}

// RunFile executes a Lua script file against the engine.
func (c *ScriptConsole) RunFile(path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %v", path, r)
		}
	}()
	return c.L.DoFile(path)
}

// builtin handles the non-Lua console words. Returns handled=false when
// the line should go to the interpreter instead.
func (c *ScriptConsole) builtin(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true, nil
	}
	switch fields[0] {
	case "status":
		c.q.DumpState(c.out)
		return true, nil
	case "trace":
		n := 16
		if len(fields) > 1 {
			if v, err := strconv.Atoi(fields[1]); err == nil {
				n = v
			}
		}
		c.q.DumpTrace(c.out, n)
		return true, nil
	case "snapshot":
		if len(fields) < 2 {
			return true, fmt.Errorf("usage: snapshot <file.json>")
		}
		return true, c.q.SaveSnapshot(fields[1])
	case "export":
		if len(fields) < 2 {
			return true, fmt.Errorf("usage: export <trace.db>")
		}
		return true, c.q.ExportTrace(fields[1])
	case "help":
		fmt.Fprint(c.out, consoleHelp)
		return true, nil
	}
	return false, nil
}

const consoleHelp = `Console words:
  status            dump queue state
  trace [n]         dump the last n dispatches (default 16)
  snapshot <file>   save an engine snapshot as JSON
  export <file>     export the dispatch trace to SQLite
  help              this text
  exit              leave the console
Anything else is Lua. Tables: queue, gfx, mixer. Examples:
  queue.noop(); queue.flush()
  sp = queue.syncpoint(); queue.wait(sp)
  h = queue.block_begin() ... queue.block_end(); queue.block_run(h)
  gfx.color(0xFF0000FF); gfx.rect(10, 10, 64, 64); gfx.present(false)
  mixer.tone(0, 0, 440); mixer.gate(0, true)
`

func (c *ScriptConsole) installQueueTable() {
	L := c.L
	mod := L.NewTable()
	L.SetGlobal("queue", mod)

	set := func(name string, fn lua.LGFunction) {
		L.SetField(mod, name, L.NewFunction(fn))
	}

	set("noop", func(L *lua.LState) int {
		c.q.Noop()
		return 0
	})
	set("flush", func(L *lua.LState) int {
		c.q.Flush()
		return 0
	})
	set("write", func(L *lua.LState) int {
		w := c.q.WriteBegin()
		for i := 1; i <= L.GetTop(); i++ {
			w.Put(uint32(L.CheckInt64(i)))
		}
		c.q.WriteEnd(w)
		return 0
	})
	set("signal", func(L *lua.LState) int {
		c.q.EmitSignal(uint32(L.CheckInt(1)), uint32(L.CheckInt(2)))
		return 0
	})
	set("signals", func(L *lua.LState) int {
		L.Push(lua.LNumber(c.q.Signals()))
		return 1
	})
	set("sync", func(L *lua.LState) int {
		c.q.Sync()
		return 0
	})
	set("syncpoint", func(L *lua.LState) int {
		L.Push(lua.LNumber(c.q.NewSyncpoint()))
		return 1
	})
	set("done", func(L *lua.LState) int {
		L.Push(lua.LBool(c.q.SyncpointDone(Syncpoint(L.CheckInt(1)))))
		return 1
	})
	set("wait", func(L *lua.LState) int {
		c.q.WaitSyncpoint(Syncpoint(L.CheckInt(1)))
		return 0
	})
	set("block_begin", func(L *lua.LState) int {
		c.q.BlockBegin()
		return 0
	})
	set("block_end", func(L *lua.LState) int {
		blk := c.q.BlockEnd()
		h := c.nextBlock
		c.nextBlock++
		c.blocks[h] = blk
		L.Push(lua.LNumber(h))
		return 1
	})
	set("block_run", func(L *lua.LState) int {
		c.q.BlockRun(c.block(L, 1))
		return 0
	})
	set("block_free", func(L *lua.LState) int {
		h := L.CheckInt(1)
		c.q.BlockFree(c.block(L, 1))
		delete(c.blocks, h)
		return 0
	})
	set("highpri_begin", func(L *lua.LState) int {
		c.q.HighpriBegin()
		return 0
	})
	set("highpri_end", func(L *lua.LState) int {
		c.q.HighpriEnd()
		return 0
	})
	set("highpri_sync", func(L *lua.LState) int {
		c.q.HighpriSync()
		return 0
	})
	set("dma_to_local", func(L *lua.LState) int {
		c.q.TransferToLocal(uint32(L.CheckInt64(1)), uint32(L.CheckInt64(2)), uint32(L.CheckInt64(3)), L.OptBool(4, false))
		return 0
	})
	set("dma_to_bus", func(L *lua.LState) int {
		c.q.TransferToBus(uint32(L.CheckInt64(1)), uint32(L.CheckInt64(2)), uint32(L.CheckInt64(3)), L.OptBool(4, false))
		return 0
	})
	set("peek", func(L *lua.LState) int {
		L.Push(lua.LNumber(c.q.bus.Read32(uint32(L.CheckInt64(1)))))
		return 1
	})
	set("poke", func(L *lua.LState) int {
		c.q.bus.Write32(uint32(L.CheckInt64(1)), uint32(L.CheckInt64(2)))
		return 0
	})
}

// block resolves a Lua block handle, raising a Lua error on a stale one
// so scripts fail with a stack trace instead of a Go panic.
func (c *ScriptConsole) block(L *lua.LState, arg int) *Block {
	h := L.CheckInt(arg)
	blk, ok := c.blocks[h]
	if !ok {
		L.RaiseError("unknown block handle %d", h)
	}
	return blk
}

func (c *ScriptConsole) installGfxTable() {
	L := c.L
	mod := L.NewTable()
	L.SetGlobal("gfx", mod)

	set := func(name string, fn lua.LGFunction) {
		L.SetField(mod, name, L.NewFunction(fn))
	}

	set("mode", func(L *lua.LState) int {
		c.gfx.EmitSetMode(c.q, uint32(L.CheckInt(1)))
		return 0
	})
	set("color", func(L *lua.LState) int {
		c.gfx.EmitSetColor(c.q, uint32(L.CheckInt64(1)))
		return 0
	})
	set("pal", func(L *lua.LState) int {
		c.gfx.EmitPalette(c.q, uint32(L.CheckInt(1)), uint32(L.CheckInt64(2)))
		return 0
	})
	set("usepal", func(L *lua.LState) int {
		c.gfx.EmitUsePal(c.q, uint32(L.CheckInt(1)))
		return 0
	})
	set("fill", func(L *lua.LState) int {
		c.gfx.EmitFill(c.q)
		return 0
	})
	set("rect", func(L *lua.LState) int {
		c.gfx.EmitRect(c.q, L.CheckInt(1), L.CheckInt(2), L.CheckInt(3), L.CheckInt(4))
		return 0
	})
	set("blit", func(L *lua.LState) int {
		c.gfx.EmitBlit(c.q, uint32(L.CheckInt64(1)), L.CheckInt(2), L.CheckInt(3), L.CheckInt(4), L.CheckInt(5), L.OptInt(6, 0))
		return 0
	})
	set("present", func(L *lua.LState) int {
		c.gfx.EmitPresent(c.q, L.OptBool(1, false))
		return 0
	})
}

func (c *ScriptConsole) installMixerTable() {
	L := c.L
	mod := L.NewTable()
	L.SetGlobal("mixer", mod)

	set := func(name string, fn lua.LGFunction) {
		L.SetField(mod, name, L.NewFunction(fn))
	}

	set("tone", func(L *lua.LState) int {
		c.mix.EmitTone(c.q, L.CheckInt(1), L.CheckInt(2), float64(L.CheckNumber(3)))
		return 0
	})
	set("volume", func(L *lua.LState) int {
		c.mix.EmitVolume(c.q, L.CheckInt(1), uint32(L.CheckInt(2)))
		return 0
	})
	set("gate", func(L *lua.LState) int {
		c.mix.EmitGate(c.q, L.CheckInt(1), L.CheckBool(2))
		return 0
	})
	set("silence", func(L *lua.LState) int {
		c.mix.EmitSilence(c.q)
		return 0
	})
}
