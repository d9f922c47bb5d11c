package main

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"
)

func expectPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic, got none")
		}
	}()
	fn()
}

// Small buffers so buffer switches and backpressure happen within a few
// dozen commands instead of a few hundred.
func testQueueConfig() QueueConfig {
	return QueueConfig{
		LowpriWords:  64,
		HighpriWords: 64,
		TraceDepth:   32,
	}
}

const (
	probeOverlayID = 3

	probeCmdMark  = 0 // 1 word:  records w0 low 24 bits
	probeCmdMark2 = 1 // 2 words: records w1
	probeCmdPeek  = 2 // 1 word:  records the state word at offset w0 low byte
	probeCmdPoke  = 3 // 2 words: writes w1 to the state word at offset w0 low byte
	probeCmdGate  = 4 // 1 word:  blocks until the rig's gate is released

	probeStateSize = 16
)

// queueTestRig is a live machine with a recording overlay at ID 3. The
// probe's handlers run on the consumer goroutine and append to the log;
// tests drain with Sync before reading it.
type queueTestRig struct {
	t     *testing.T
	bus   *MachineBus
	q     *CommandQueue
	probe *Overlay

	mu  sync.Mutex
	log []uint32

	gateMu      sync.Mutex
	gate        chan struct{}
	gateEntered chan struct{}
}

func buildQueueTestRig(t *testing.T, cfg QueueConfig) *queueTestRig {
	t.Helper()
	rig := &queueTestRig{t: t, bus: NewMachineBus()}

	q, err := NewCommandQueue(rig.bus, cfg)
	if err != nil {
		t.Fatalf("NewCommandQueue: %v", err)
	}
	rig.q = q

	rig.probe = &Overlay{
		Name: "probe",
		Commands: []OverlayCommand{
			probeCmdMark:  {Name: "mark", Words: 1, Handler: rig.cmdMark},
			probeCmdMark2: {Name: "mark2", Words: 2, Handler: rig.cmdMark2},
			probeCmdPeek:  {Name: "peek", Words: 1, Handler: rig.cmdPeek},
			probeCmdPoke:  {Name: "poke", Words: 2, Handler: rig.cmdPoke},
			probeCmdGate:  {Name: "gate", Words: 1, Handler: rig.cmdGate},
		},
		Data:      make([]byte, probeStateSize),
		StateSize: probeStateSize,
	}
	q.RegisterOverlay(rig.probe, probeOverlayID)
	return rig
}

// newQueueTestRig builds, seals and starts a rig.
func newQueueTestRig(t *testing.T) *queueTestRig {
	t.Helper()
	rig := buildQueueTestRig(t, testQueueConfig())
	rig.bus.SealMappings()
	if err := rig.q.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(rig.q.Close)
	return rig
}

// newStoppedQueueTestRig builds a rig whose consumer is not running, for
// backpressure tests. The caller starts it when ready.
func newStoppedQueueTestRig(t *testing.T) *queueTestRig {
	t.Helper()
	rig := buildQueueTestRig(t, testQueueConfig())
	rig.bus.SealMappings()
	t.Cleanup(rig.q.Close)
	return rig
}

func (r *queueTestRig) cmdMark(ctx *OverlayContext, args []uint32) {
	r.mu.Lock()
	r.log = append(r.log, args[0]&CMD_ADDR_MASK)
	r.mu.Unlock()
}

func (r *queueTestRig) cmdMark2(ctx *OverlayContext, args []uint32) {
	r.mu.Lock()
	r.log = append(r.log, args[1])
	r.mu.Unlock()
}

func (r *queueTestRig) cmdPeek(ctx *OverlayContext, args []uint32) {
	off := int(args[0] & 0xFF)
	v := binary.LittleEndian.Uint32(ctx.State()[off:])
	r.mu.Lock()
	r.log = append(r.log, v)
	r.mu.Unlock()
}

func (r *queueTestRig) cmdPoke(ctx *OverlayContext, args []uint32) {
	off := int(args[0] & 0xFF)
	binary.LittleEndian.PutUint32(ctx.State()[off:], args[1])
}

func (r *queueTestRig) cmdGate(ctx *OverlayContext, args []uint32) {
	r.gateMu.Lock()
	gate := r.gate
	entered := r.gateEntered
	r.gateMu.Unlock()
	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}
}

// armGate makes the next gate command block until releaseGate.
func (r *queueTestRig) armGate() {
	r.gateMu.Lock()
	r.gate = make(chan struct{})
	r.gateEntered = make(chan struct{}, 1)
	r.gateMu.Unlock()
}

// waitGateEntered blocks until the consumer has reached an armed gate
// command, for tests that need the consumer pinned at a known point.
func (r *queueTestRig) waitGateEntered(timeout time.Duration) {
	r.t.Helper()
	r.gateMu.Lock()
	entered := r.gateEntered
	r.gateMu.Unlock()
	select {
	case <-entered:
	case <-time.After(timeout):
		r.t.Fatal("consumer never reached the gate command")
	}
}

func (r *queueTestRig) releaseGate() {
	r.gateMu.Lock()
	if r.gate != nil {
		close(r.gate)
		r.gate = nil
	}
	r.gateMu.Unlock()
}

func probeWord(cmd uint32, payload uint32) uint32 {
	return (probeOverlayID<<4|cmd)<<24 | payload&CMD_ADDR_MASK
}

// emitMark enqueues a mark command carrying v.
func (r *queueTestRig) emitMark(v uint32) {
	w := r.q.WriteBegin()
	w.Put(probeWord(probeCmdMark, v))
	r.q.WriteEnd(w)
}

// emitGate enqueues a command that parks the consumer until releaseGate.
func (r *queueTestRig) emitGate() {
	w := r.q.WriteBegin()
	w.Put(probeWord(probeCmdGate, 0))
	r.q.WriteEnd(w)
}

// marks returns a copy of the execution log.
func (r *queueTestRig) marks() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint32, len(r.log))
	copy(out, r.log)
	return out
}

func (r *queueTestRig) clearMarks() {
	r.mu.Lock()
	r.log = r.log[:0]
	r.mu.Unlock()
}

// expectMarks drains the queue and compares the log against want.
func (r *queueTestRig) expectMarks(want []uint32) {
	r.t.Helper()
	r.q.Sync()
	got := r.marks()
	if len(got) != len(want) {
		r.t.Fatalf("executed %d commands, expected %d\n got:  %v\n want: %v", len(got), len(want), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			r.t.Fatalf("command %d executed out of order: got 0x%06X, want 0x%06X\n got:  %v\n want: %v",
				i, got[i], want[i], got, want)
		}
	}
}

// waitHalted polls for a consumer halt.
func (r *queueTestRig) waitHalted(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if r.q.Halted() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

// seq builds [0, 1, ... n-1] for FIFO expectations.
func seq(n int) []uint32 {
	out := make([]uint32, n)
	for i := range out {
		out[i] = uint32(i)
	}
	return out
}
