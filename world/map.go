package world

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/df-mc/goleveldb/leveldb"
	"github.com/google/uuid"
	"github.com/segmentio/fasthash/fnv1a"
)

// ErrClosed is returned by Request when the Map is closed before the
// requested stage is reached.
var ErrClosed = errors.New("chunk map closed")

// shardCount is the amount of shards the position table is split into. Must
// be a power of two.
const shardCount = 16

// Map is the top-level chunk registry of a world: it maps positions to
// Holders, admits chunks by loading or generating them on demand, retains
// them while tickets or generation tasks need them, and unloads them once
// nothing does. Create a Map using Config.New; a Map must be closed using
// Close once it is no longer needed.
//
// All methods are safe for use by any amount of goroutines: network
// handlers, a simulation loop and the Map's own generation workers operate
// on it in parallel.
type Map struct {
	conf Config

	// shards splits the position table to reduce contention between
	// concurrent lookups. A shard lock is only ever held for map accesses,
	// never while waiting on a Holder's locks.
	shards [shardCount]shard

	tasks   chan *task
	closing chan struct{}
	running sync.WaitGroup
	o       sync.Once

	// saturation counts how often tasks had to be enqueued asynchronously
	// because the worker queue was full, to rate-limit backpressure warnings
	// so operators can tune queue/worker sizes.
	saturation        atomic.Uint64
	lastSaturationLog atomic.Uint64
}

type shard struct {
	mu      sync.Mutex
	holders map[ChunkPos]*Holder
}

func (m *Map) shardOf(pos ChunkPos) *shard {
	return &m.shards[fnv1a.HashUint64(pos.packed())&(shardCount-1)]
}

// GetOrCreate returns the Holder at the position passed, creating it if no
// Holder exists there yet. It is idempotent and safe under concurrent
// callers racing on the same new position: exactly one Holder is created.
func (m *Map) GetOrCreate(pos ChunkPos) *Holder {
	sh := m.shardOf(pos)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if h, ok := sh.holders[pos]; ok {
		return h
	}
	h := newHolder(pos, m)
	sh.holders[pos] = h
	return h
}

// Holder returns the Holder at the position passed, if one is currently
// loaded.
func (m *Map) Holder(pos ChunkPos) (*Holder, bool) {
	sh := m.shardOf(pos)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	h, ok := sh.holders[pos]
	return h, ok
}

// LoadedCount returns the amount of Holders currently kept by the Map.
func (m *Map) LoadedCount() int {
	n := 0
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		n += len(sh.holders)
		sh.mu.Unlock()
	}
	return n
}

// holderForDependency returns a live Holder at the position passed with a
// dependency reference taken, retrying if the unload sweep removes the
// holder between lookup and reference.
func (m *Map) holderForDependency(pos ChunkPos) *Holder {
	for {
		h := m.GetOrCreate(pos)
		if h.addRef() {
			return h
		}
	}
}

// Request adds a retention ticket for the owner passed, drives generation of
// the chunk up to min and returns a read handle on the chunk once min is
// reached. The ticket keeps the chunk loaded until Release is called with
// the same owner, regardless of how the request itself ends.
//
// Requesting a stage beyond the pipeline's terminal stage is a programming
// error and panics. A generation failure is returned to every requester
// currently waiting on the chunk; requesting again retries from the last
// successfully committed stage.
func (m *Map) Request(ctx context.Context, pos ChunkPos, min Stage, owner uuid.UUID) (*ReadHandle, error) {
	if min > m.conf.Pipeline.Terminal() {
		panic(fmt.Sprintf("world: request for stage %v beyond terminal stage %v", min, m.conf.Pipeline.Terminal()))
	}
	var h *Holder
	for {
		h = m.GetOrCreate(pos)
		if h.addTicket(owner, min) {
			break
		}
	}
	if c, scheduled := m.ensure(h, min); c != nil {
		if scheduled != nil {
			m.enqueue(scheduled)
		}
		select {
		case err := <-c:
			if err != nil {
				return nil, err
			}
		case <-m.closing:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return h.AcquireRead(ctx, min)
}

// Release drops the ticket the owner passed holds on the position. Dropping
// the last ticket makes the chunk eligible for unloading in a future sweep;
// an in-flight generation task is never aborted by a release.
func (m *Map) Release(pos ChunkPos, owner uuid.UUID) {
	if h, ok := m.Holder(pos); ok {
		h.removeTicket(owner)
	}
}

// ensure registers a waiter for the holder to reach min and schedules a
// generation task if none is in flight, raising the target of an existing
// task instead of scheduling a second one. It returns a nil channel if min
// is already reached. The returned task, if any, must be enqueued by the
// caller outside of any locks.
func (m *Map) ensure(h *Holder, min Stage) (<-chan error, *task) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stage.AtLeast(min) {
		return nil, nil
	}
	c := make(chan error, 1)
	h.waiters = append(h.waiters, waiter{min: min, c: c})
	if h.task == nil {
		h.task = &task{pos: h.pos, h: h, target: min}
		return c, h.task
	}
	if h.task.target.Before(min) {
		h.task.target = min
	}
	return c, nil
}

// enqueue hands a task to the worker pool. If the queue is full, the task is
// enqueued asynchronously so no caller, in particular a worker notifying
// dependents, ever blocks on the queue. Once the Map is closing, tasks are
// abandoned instead, failing their waiters so nothing blocks forever.
func (m *Map) enqueue(t *task) {
	select {
	case <-m.closing:
		m.abandon(t)
	case m.tasks <- t:
	default:
		go m.enqueueBlocking(t)
		m.handleSaturation()
	}
}

func (m *Map) enqueueBlocking(t *task) {
	select {
	case <-m.closing:
		m.abandon(t)
	case m.tasks <- t:
	}
}

// abandon fails a task that will never run because the Map is closing.
func (m *Map) abandon(t *task) {
	m.failTask(t, ErrClosed)
}

// worker continuously processes generation tasks until the Map closes, then
// drains the queue so every remaining task fails fast instead of leaving
// waiters blocked.
func (m *Map) worker() {
	defer m.running.Done()
	for {
		select {
		case t := <-m.tasks:
			m.advance(t)
		case <-m.closing:
			m.drainTasks()
			return
		}
	}
}

func (m *Map) drainTasks() {
	for {
		select {
		case t := <-m.tasks:
			m.abandon(t)
		default:
			return
		}
	}
}

// handleSaturation increments backpressure counters and emits a throttled
// warning when the task queue saturates, giving operators concrete guidance
// on adjusting worker parallelism or queue sizing.
func (m *Map) handleSaturation() {
	count := m.saturation.Add(1)
	now := uint64(time.Now().UnixNano())
	last := m.lastSaturationLog.Load()
	if last != 0 && time.Duration(now-last) < time.Minute {
		return
	}
	if !m.lastSaturationLog.CompareAndSwap(last, now) {
		return
	}
	m.conf.Log.Warn("generation queue saturated: task backlog detected.",
		"queued_tasks", count,
		"queue_size", cap(m.tasks),
		"workers", m.conf.Workers,
	)
}

// sweeper periodically unloads chunks nothing retains.
func (m *Map) sweeper() {
	defer m.running.Done()
	t := time.NewTicker(m.conf.UnloadInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			m.RunUnloadSweep()
		case <-m.closing:
			return
		}
	}
}

// RunUnloadSweep scans for Holders with no tickets, no dependency
// references, no in-flight task and nothing waiting on them, removes them
// from the Map and hands their modified chunks to the Provider. It returns
// the amount of chunks unloaded. The removal from the table and the
// teardown of the Holder are atomic with respect to new lookups.
func (m *Map) RunUnloadSweep() int {
	type save struct {
		pos ChunkPos
		col *Column
	}
	var saves []save
	unloaded := 0
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		for pos, h := range sh.holders {
			h.mu.Lock()
			idle := len(h.tickets) == 0 && h.refs == 0 && h.task == nil &&
				len(h.waiters) == 0 && len(h.dependents) == 0
			if idle {
				h.dead = true
				delete(sh.holders, pos)
				unloaded++
				if h.col != nil && h.col.modified {
					saves = append(saves, save{pos: pos, col: h.col})
				}
			}
			h.mu.Unlock()
		}
		sh.mu.Unlock()
	}
	if m.conf.ReadOnly {
		return unloaded
	}
	for _, s := range saves {
		s.col.c.Compact()
		if err := m.conf.Provider.StoreColumn(s.pos, s.col.c); err != nil {
			m.conf.Log.Error("save chunk: "+err.Error(), "X", s.pos[0], "Z", s.pos[1])
		}
	}
	return unloaded
}

// Close stops the Map's workers and sweep, fails everything still waiting on
// generation, saves all modified chunks and closes the Provider. Close
// blocks until all of that has finished and may be called more than once.
func (m *Map) Close() error {
	m.o.Do(m.close)
	return nil
}

func (m *Map) close() {
	close(m.closing)
	m.running.Wait()

	// Workers have exited; fail every remaining in-flight or parked task so
	// no goroutine stays blocked on a stage that will never commit.
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		holders := make([]*Holder, 0, len(sh.holders))
		for _, h := range sh.holders {
			holders = append(holders, h)
		}
		sh.mu.Unlock()
		for _, h := range holders {
			h.mu.Lock()
			t := h.task
			h.mu.Unlock()
			if t != nil {
				m.abandon(t)
			} else {
				m.failWaiters(h)
			}
		}
	}

	if !m.conf.ReadOnly {
		m.conf.Log.Debug("Saving chunks in memory to disk...")
		for i := range m.shards {
			sh := &m.shards[i]
			sh.mu.Lock()
			for pos, h := range sh.holders {
				h.mu.Lock()
				col := h.col
				h.mu.Unlock()
				if col == nil || !col.modified {
					continue
				}
				col.c.Compact()
				if err := m.conf.Provider.StoreColumn(pos, col.c); err != nil {
					m.conf.Log.Error("save chunk: "+err.Error(), "X", pos[0], "Z", pos[1])
				}
			}
			sh.mu.Unlock()
		}
	}
	m.conf.Log.Debug("Closing provider...")
	if err := m.conf.Provider.Close(); err != nil {
		m.conf.Log.Error("close chunk provider: " + err.Error())
	}
}

// failWaiters fails every waiter of a holder that has no task to resolve
// them, used during Close.
func (m *Map) failWaiters(h *Holder) {
	h.mu.Lock()
	waiters := h.waiters
	dependents := h.dependents
	h.waiters = nil
	h.dependents = nil
	h.mu.Unlock()
	for _, w := range waiters {
		w.c <- ErrClosed
	}
	for _, dep := range dependents {
		dep.t.fail(ErrClosed)
		dep.t.prerequisiteDone(m)
	}
}

// isNotFound reports whether a Provider error means that no chunk was saved
// at the position, which is the signal to generate it instead.
func isNotFound(err error) bool {
	return errors.Is(err, leveldb.ErrNotFound)
}
