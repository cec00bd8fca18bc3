package world

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/df-mc/stratum/world/chunk"
)

// task is the unit of scheduled generation work: advance the chunk at pos
// from its current stage to at least target, stage by stage, each gated by
// the pipeline's neighbour requirements. At most one task exists per
// position at a time; concurrent requests for the same position raise the
// existing task's target instead of scheduling a second one.
//
// A task is only ever advanced by one worker at a time. While its neighbour
// prerequisites are outstanding it is parked: no worker blocks on it, and
// the last prerequisite to commit re-enqueues it.
type task struct {
	pos ChunkPos
	h   *Holder

	// target is the stage the task must reach before completing. Guarded by
	// h.mu; it may be raised while the task is in flight.
	target Stage

	// waiting counts outstanding neighbour prerequisites plus a guard
	// reference held by the worker registering them. The transition to zero
	// happens exactly once per parking and resumes the task.
	waiting atomic.Int32

	// deps holds the holders this task keeps dependency references on for
	// the stage currently being advanced. Only the worker advancing the task
	// touches it.
	deps []*Holder

	mu  sync.Mutex
	err error
}

// fail records a prerequisite failure. The first error wins; later ones are
// dropped, as every dependent of a failed chunk receives the same broadcast.
func (t *task) fail(err error) {
	t.mu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.mu.Unlock()
}

// failure returns the recorded prerequisite failure, if any.
func (t *task) failure() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// prerequisiteDone marks one outstanding prerequisite as satisfied (or
// failed, if fail was called first). The final prerequisite re-enqueues the
// task with the Map.
func (t *task) prerequisiteDone(m *Map) {
	if t.waiting.Add(-1) == 0 {
		m.enqueue(t)
	}
}

// advance runs on a worker goroutine and advances the task as far as it can
// without blocking: it executes ready stages in order and returns either
// when the target is reached, when the task parks on neighbour
// prerequisites, or when a stage fails.
func (m *Map) advance(t *task) {
	if err := t.failure(); err != nil {
		m.failTask(t, err)
		return
	}
	h := t.h
	for {
		h.mu.Lock()
		if h.stage == StageEmpty && !h.triedLoad {
			h.triedLoad = true
			h.mu.Unlock()
			if m.tryLoad(t) {
				return
			}
			continue
		}
		if !h.stage.Before(t.target) {
			if h.task == t {
				h.task = nil
			}
			h.mu.Unlock()
			m.releaseDeps(t)
			return
		}
		next := h.stage + 1
		h.mu.Unlock()

		spec := m.conf.Pipeline.Requirements(next)
		if spec.Radius > 0 && len(t.deps) == 0 {
			if parked := m.gatherPrerequisites(t, spec); parked {
				return
			}
		}
		// A prerequisite may have failed while the task was parked.
		if err := t.failure(); err != nil {
			m.failTask(t, err)
			return
		}

		if err := m.runStage(t, next, spec); err != nil {
			m.failTask(t, fmt.Errorf("generate chunk %v: stage %v: %w", t.pos, next, err))
			return
		}
		m.releaseDeps(t)
		m.commit(h, next)
	}
}

// gatherPrerequisites takes dependency references on every chunk within the
// stage's radius and registers the task as a dependent of those that have
// not yet reached the required neighbour stage, scheduling generation for
// them as needed. It reports whether the task parked: a parked task is
// resumed by the last prerequisite committing, not by this worker.
func (m *Map) gatherPrerequisites(t *task, spec StageSpec) (parked bool) {
	// The guard reference keeps the counter above zero until registration
	// finishes, so a neighbour committing mid-loop cannot resume the task
	// before all prerequisites are registered.
	t.waiting.Store(1)
	var scheduled []*task
	t.pos.neighbours(spec.Radius, func(np ChunkPos) {
		nh := m.holderForDependency(np)
		t.deps = append(t.deps, nh)
		t.waiting.Add(1)
		registered, nt := nh.requireStage(spec.NeighbourStage, t)
		if !registered {
			t.waiting.Add(-1)
		}
		if nt != nil {
			scheduled = append(scheduled, nt)
		}
	})
	for _, nt := range scheduled {
		m.enqueue(nt)
	}
	return t.waiting.Add(-1) != 0
}

// runStage executes the stage logic for the stage passed on the task's own
// chunk. Data locks are taken in global position order, exclusively for the
// chunk being advanced and shared for its area chunks, so concurrent stages
// on overlapping areas cannot deadlock. A failing stage leaves the chunk
// exactly as the last committed stage left it.
func (m *Map) runStage(t *task, next Stage, spec StageSpec) error {
	h := t.h
	ordered := append([]*Holder{h}, t.deps...)
	sortHolders(ordered)
	area := &Area{centre: t.pos, radius: spec.Radius, chunks: make(map[ChunkPos]*chunk.Chunk, len(t.deps))}
	for _, held := range ordered {
		if held == h {
			held.dataMu.Lock()
			continue
		}
		held.dataMu.RLock()
		area.chunks[held.pos] = held.chunkData()
	}
	defer func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			if ordered[i] == h {
				ordered[i].dataMu.Unlock()
				continue
			}
			ordered[i].dataMu.RUnlock()
		}
	}()

	c := h.chunkData()
	snapshot := c.Clone()
	err := runLogic(spec.Logic, t.pos, c, area)
	if err != nil {
		// Discard everything the failed stage wrote: the chunk data reverts
		// to the snapshot taken before the stage ran.
		h.mu.Lock()
		h.proto = snapshot
		h.mu.Unlock()
	}
	return err
}

// runLogic invokes stage logic, converting a panic into an error so a
// broken generator cannot take a worker goroutine down with it.
func runLogic(logic StageLogic, pos ChunkPos, c *chunk.Chunk, area *Area) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage logic panic: %v", r)
		}
	}()
	return logic.Advance(pos, c, area)
}

// commit records that the chunk reached the stage passed, promoting it to
// its playable Column form if the stage is terminal, and wakes every waiter
// and parked dependent task satisfied by the new stage.
func (m *Map) commit(h *Holder, s Stage) {
	h.mu.Lock()
	h.stage = s
	if s == m.conf.Pipeline.Terminal() && h.col == nil {
		h.col = &Column{c: h.proto, modified: true}
		h.proto = nil
	}
	waiters, dependents := h.extractReached(s)
	h.mu.Unlock()

	for _, w := range waiters {
		w.c <- nil
	}
	for _, dep := range dependents {
		dep.t.prerequisiteDone(m)
	}
}

// commitLoaded installs a chunk restored from the Provider, which is always
// fully generated, and wakes everything waiting on the holder.
func (m *Map) commitLoaded(h *Holder, c *chunk.Chunk) {
	h.mu.Lock()
	h.stage = m.conf.Pipeline.Terminal()
	h.col = &Column{c: c}
	h.proto = nil
	waiters, dependents := h.extractReached(h.stage)
	h.mu.Unlock()

	for _, w := range waiters {
		w.c <- nil
	}
	for _, dep := range dependents {
		dep.t.prerequisiteDone(m)
	}
}

// extractReached removes and returns every waiter and dependent satisfied
// by the holder having reached s. Callers notify them outside of h.mu.
func (h *Holder) extractReached(s Stage) ([]waiter, []dependent) {
	var waiters []waiter
	remaining := h.waiters[:0]
	for _, w := range h.waiters {
		if s.AtLeast(w.min) {
			waiters = append(waiters, w)
			continue
		}
		remaining = append(remaining, w)
	}
	h.waiters = remaining

	var dependents []dependent
	remainingDeps := h.dependents[:0]
	for _, dep := range h.dependents {
		if s.AtLeast(dep.min) {
			dependents = append(dependents, dep)
			continue
		}
		remainingDeps = append(remainingDeps, dep)
	}
	h.dependents = remainingDeps
	return waiters, dependents
}

// failTask aborts the task, keeping the chunk's last committed stage. The
// failure is broadcast: every waiter and every task depending on the chunk
// receives it, so all consumers of the failed chunk observe the same error.
// Later requests schedule a fresh task that resumes from the committed
// stage.
func (m *Map) failTask(t *task, err error) {
	m.releaseDeps(t)
	h := t.h
	h.mu.Lock()
	if h.task == t {
		h.task = nil
	}
	waiters := h.waiters
	dependents := h.dependents
	h.waiters = nil
	h.dependents = nil
	h.mu.Unlock()

	for _, w := range waiters {
		w.c <- err
	}
	for _, dep := range dependents {
		dep.t.fail(err)
		dep.t.prerequisiteDone(m)
	}
}

// releaseDeps drops the dependency references the task holds, making the
// referenced chunks eligible for unloading again.
func (m *Map) releaseDeps(t *task) {
	for _, nh := range t.deps {
		nh.removeRef()
	}
	t.deps = nil
}

// tryLoad attempts to restore the chunk from the Provider before any
// generation is run on it. It reports whether the task completed: a loaded
// chunk is fully generated, so no stages remain to run.
func (m *Map) tryLoad(t *task) bool {
	h := t.h
	c, err := m.conf.Provider.LoadColumn(t.pos)
	switch {
	case err == nil:
		m.commitLoaded(h, c)
		h.mu.Lock()
		if h.task == t {
			h.task = nil
		}
		h.mu.Unlock()
		m.releaseDeps(t)
		return true
	case isNotFound(err):
		// Nothing saved at this position: generate from scratch.
		return false
	default:
		// An unexpected provider error is recoverable: a later request
		// re-attempts the load before generating.
		h.mu.Lock()
		h.triedLoad = false
		h.mu.Unlock()
		m.conf.Log.Error("load chunk: "+err.Error(), "X", t.pos[0], "Z", t.pos[1])
		m.failTask(t, fmt.Errorf("load chunk %v: %w", t.pos, err))
		return true
	}
}

// sortHolders orders holders by position, Z first, then X. All workers
// acquire data locks in this order.
func sortHolders(holders []*Holder) {
	for i := 1; i < len(holders); i++ {
		for j := i; j > 0 && holderBefore(holders[j].pos, holders[j-1].pos); j-- {
			holders[j], holders[j-1] = holders[j-1], holders[j]
		}
	}
}

func holderBefore(a, b ChunkPos) bool {
	if a[1] != b[1] {
		return a[1] < b[1]
	}
	return a[0] < b[0]
}
