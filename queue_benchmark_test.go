package main

import "testing"

func newBenchRig(b *testing.B) (*MachineBus, *CommandQueue) {
	bus := NewMachineBus()
	cfg := DefaultQueueConfig()
	cfg.TraceDepth = 0 // keep the flight recorder out of the hot path
	q, err := NewCommandQueue(bus, cfg)
	if err != nil {
		b.Fatalf("NewCommandQueue: %v", err)
	}
	sink := &Overlay{
		Name: "sink",
		Commands: []OverlayCommand{
			{Name: "nop", Words: 1, Handler: func(*OverlayContext, []uint32) {}},
		},
	}
	q.RegisterOverlay(sink, 3)
	bus.SealMappings()
	if err := q.Start(); err != nil {
		b.Fatalf("Start: %v", err)
	}
	b.Cleanup(q.Close)
	return bus, q
}

// BenchmarkEnqueue measures the producer path alone: begin, one word,
// commit. The consumer drains concurrently.
func BenchmarkEnqueue(b *testing.B) {
	_, q := newBenchRig(b)
	word := uint32(0x30 << 24)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := q.WriteBegin()
		w.Put(word)
		q.WriteEnd(w)
	}
	b.StopTimer()
	q.Sync()
}

func BenchmarkEnqueue4Words(b *testing.B) {
	_, q := newBenchRig(b)
	word := uint32(0x30 << 24)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := q.WriteBegin()
		w.Put(word)
		w.Put(1)
		w.Put(2)
		w.Put(3)
		q.WriteEnd(w)
	}
	b.StopTimer()
	q.Sync()
}

// BenchmarkSyncRoundTrip measures a full producer-consumer handshake:
// one command plus a syncpoint wait.
func BenchmarkSyncRoundTrip(b *testing.B) {
	_, q := newBenchRig(b)
	word := uint32(0x30 << 24)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := q.WriteBegin()
		w.Put(word)
		q.WriteEnd(w)
		q.Sync()
	}
}

// BenchmarkBlockReplay measures replaying a 64-command recorded block,
// amortizing the CALL/RET overhead across its contents.
func BenchmarkBlockReplay(b *testing.B) {
	_, q := newBenchRig(b)
	word := uint32(0x30 << 24)

	q.BlockBegin()
	for i := 0; i < 64; i++ {
		w := q.WriteBegin()
		w.Put(word)
		q.WriteEnd(w)
	}
	blk := q.BlockEnd()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.BlockRun(blk)
		if i%64 == 0 {
			q.Sync() // keep the backlog bounded
		}
	}
	b.StopTimer()
	q.Sync()
	q.BlockFree(blk)
}

// BenchmarkHighpriCycle measures a full open/write/close/drain cycle of
// the high-priority channel.
func BenchmarkHighpriCycle(b *testing.B) {
	_, q := newBenchRig(b)
	word := uint32(0x30 << 24)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.HighpriBegin()
		w := q.WriteBegin()
		w.Put(word)
		q.WriteEnd(w)
		q.HighpriEnd()
		q.HighpriSync()
	}
}
