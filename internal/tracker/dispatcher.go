package tracker

import (
	"context"
	"hash/fnv"
	"sync"

	"voicestats/internal/telemetry"
)

// Applier handles one transition at a time.
type Applier interface {
	Apply(ctx context.Context, tr Transition) TransitionKind
}

// Dispatcher delivers transitions to an Applier. Transitions for the same
// guild and user always land on the same worker, so they are applied in the
// order they were dispatched; different users proceed in parallel.
type Dispatcher struct {
	applier Applier
	shards  []chan Transition

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(applier Applier, workers, buffer int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	d := &Dispatcher{
		applier: applier,
		shards:  make([]chan Transition, workers),
	}
	for i := range d.shards {
		d.shards[i] = make(chan Transition, buffer)
	}
	return d
}

// Start launches one goroutine per shard.
func (d *Dispatcher) Start(ctx context.Context) {
	for _, ch := range d.shards {
		d.wg.Add(1)
		go d.worker(ctx, ch)
	}
}

func (d *Dispatcher) worker(ctx context.Context, ch <-chan Transition) {
	defer d.wg.Done()
	for tr := range ch {
		d.applier.Apply(ctx, tr)
	}
}

func (d *Dispatcher) shard(tr Transition) chan Transition {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tr.GuildID))
	_, _ = h.Write([]byte{':'})
	_, _ = h.Write([]byte(tr.UserID))
	return d.shards[h.Sum32()%uint32(len(d.shards))]
}

// Dispatch queues tr. It blocks while the shard's buffer is full and returns
// false once the dispatcher has been stopped.
func (d *Dispatcher) Dispatch(tr Transition) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		telemetry.IncDispatchDropped()
		return false
	}
	d.shard(tr) <- tr
	return true
}

// Stop rejects new transitions, drains the queued ones and waits for workers.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, ch := range d.shards {
			close(ch)
		}
	}
	d.mu.Unlock()
	d.wg.Wait()
}
