package world

import (
	"context"
	"sync"

	"github.com/df-mc/stratum/world/chunk"
	"github.com/google/uuid"
)

// Holder is the per-position control block of a chunk. It tracks the stage
// the chunk has been generated up to, owns the chunk's data in either its
// proto (generating) or column (playable) form, and records the tickets and
// dependency references that keep the chunk loaded.
//
// Holders are created by a Map the first time a position is requested and
// removed by the Map's unload sweep once nothing retains them. All methods
// are safe for concurrent use.
type Holder struct {
	pos ChunkPos
	m   *Map

	// mu guards every field below. It is a control lock only: it is never
	// held while waiting on dataMu, and nothing blocks while holding it.
	mu    sync.Mutex
	stage Stage
	// proto holds the chunk data while the chunk is generating. Once the
	// terminal stage commits, the data moves to col and proto becomes nil;
	// the transition is one-way and happens exactly once.
	proto *chunk.Chunk
	col   *Column

	tickets map[uuid.UUID]Stage
	// refs counts dependency references held by generation tasks of other
	// chunks that currently rely on this one. A referenced holder is never
	// unloaded, even with an empty ticket set.
	refs int

	task      *task
	triedLoad bool
	// dead marks a holder removed from the Map. Racing requesters that still
	// hold the pointer detect it and look the position up again.
	dead bool

	waiters    []waiter
	dependents []dependent

	// dataMu guards the chunk data itself. Stage logic holds it exclusively
	// for the chunk being advanced and shared for area chunks; read and
	// write handles hold it for their lifetime.
	dataMu sync.RWMutex
}

// waiter is a goroutine blocked in Request, AcquireRead or AcquireWrite
// until the holder reaches min. It receives nil once min commits, or the
// generation error if the promotion fails.
type waiter struct {
	min Stage
	c   chan error
}

// dependent is a generation task of another chunk parked until this holder
// reaches min.
type dependent struct {
	min Stage
	t   *task
}

// Column is the playable form of a chunk: the data of a chunk that has
// reached the terminal stage, plus bookkeeping for saving.
type Column struct {
	c        *chunk.Chunk
	modified bool
}

func newHolder(pos ChunkPos, m *Map) *Holder {
	return &Holder{
		pos:     pos,
		m:       m,
		proto:   chunk.New(m.conf.Air, m.conf.Range),
		tickets: make(map[uuid.UUID]Stage),
	}
}

// Pos returns the position of the chunk the Holder controls.
func (h *Holder) Pos() ChunkPos {
	return h.pos
}

// Stage returns the stage the chunk has currently been committed up to.
func (h *Holder) Stage() Stage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stage
}

// TicketCount returns the amount of tickets currently retaining the chunk.
func (h *Holder) TicketCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.tickets)
}

// chunkData returns the chunk data in whichever form it currently exists.
func (h *Holder) chunkData() *chunk.Chunk {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.col != nil {
		return h.col.c
	}
	return h.proto
}

// addTicket registers a retention ticket for the owner passed, overwriting
// any ticket the owner already holds. It reports false if the holder has
// been removed from the Map, in which case the caller must look the
// position up again.
func (h *Holder) addTicket(owner uuid.UUID, min Stage) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dead {
		return false
	}
	h.tickets[owner] = min
	return true
}

// removeTicket drops the ticket of the owner passed. Dropping the last
// ticket makes the holder eligible for unloading by the Map's sweep; the
// holder itself never initiates removal.
func (h *Holder) removeTicket(owner uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.tickets, owner)
}

// addRef takes a dependency reference on the holder, reporting false if the
// holder is dead.
func (h *Holder) addRef() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dead {
		return false
	}
	h.refs++
	return true
}

// removeRef drops a dependency reference.
func (h *Holder) removeRef() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refs--
}

// waitStage returns a channel that receives nil once the holder's stage
// reaches min, or an error if the promotion fails first. If min is already
// reached, the channel is pre-filled. waitStage does not drive generation;
// use Map.Request for that.
func (h *Holder) waitStage(min Stage) <-chan error {
	c := make(chan error, 1)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stage.AtLeast(min) {
		c <- nil
		return c
	}
	h.waiters = append(h.waiters, waiter{min: min, c: c})
	return c
}

// requireStage registers the task passed as a dependent to be resumed once
// the holder reaches min. It reports whether the task was registered at all:
// false means min is already reached and the task need not wait. If the
// holder needs a generation task of its own to reach min, requireStage
// creates (or extends) it and returns it for the caller to enqueue outside
// of any locks.
func (h *Holder) requireStage(min Stage, t *task) (registered bool, scheduled *task) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stage.AtLeast(min) {
		return false, nil
	}
	h.dependents = append(h.dependents, dependent{min: min, t: t})
	if h.task == nil {
		h.task = &task{pos: h.pos, h: h, target: min}
		return true, h.task
	}
	if h.task.target.Before(min) {
		h.task.target = min
	}
	return true, nil
}

// AcquireRead blocks until the chunk's stage is at least min, then returns a
// handle for reading the chunk's data. The handle holds the chunk's data
// lock shared until released; callers must call Release on every path.
// AcquireRead does not drive generation: if nothing else requests the stage,
// it blocks until ctx is cancelled.
func (h *Holder) AcquireRead(ctx context.Context, min Stage) (*ReadHandle, error) {
	select {
	case err := <-h.waitStage(min):
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	h.dataMu.RLock()
	return &ReadHandle{h: h, c: h.chunkData()}, nil
}

// AcquireWrite blocks until the chunk has reached the terminal stage, then
// returns a handle for mutating the chunk's data. The handle holds the data
// lock exclusively until released: writers are serialised and exclude all
// readers, including generation tasks of neighbouring chunks.
func (h *Holder) AcquireWrite(ctx context.Context) (*WriteHandle, error) {
	select {
	case err := <-h.waitStage(h.m.conf.Pipeline.Terminal()):
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	h.dataMu.Lock()
	h.mu.Lock()
	col := h.col
	col.modified = true
	h.mu.Unlock()
	return &WriteHandle{h: h, c: col.c}, nil
}

// ReadHandle is a shared handle on a chunk's data. Its lifetime bounds the
// critical section: the data may only be read between acquisition and
// Release.
type ReadHandle struct {
	h    *Holder
	c    *chunk.Chunk
	once sync.Once
}

// Chunk returns the chunk data. It must only be read.
func (r *ReadHandle) Chunk() *chunk.Chunk {
	return r.c
}

// Release returns the handle. Releasing more than once is a no-op.
func (r *ReadHandle) Release() {
	r.once.Do(r.h.dataMu.RUnlock)
}

// WriteHandle is an exclusive handle on a fully generated chunk's data.
type WriteHandle struct {
	h    *Holder
	c    *chunk.Chunk
	once sync.Once
}

// Chunk returns the chunk data for reading and writing.
func (w *WriteHandle) Chunk() *chunk.Chunk {
	return w.c
}

// Release returns the handle. Releasing more than once is a no-op.
func (w *WriteHandle) Release() {
	w.once.Do(w.h.dataMu.Unlock)
}
