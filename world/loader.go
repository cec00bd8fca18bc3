package world

import (
	"context"
	"math"
	"slices"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// Loader implements the loading of the world around a viewer, such as a
// player connection: it keeps the chunks within a radius around a centre
// position retained through tickets of its own and releases those that move
// out of the radius. The network layer moves the Loader as its viewer moves
// and calls Load each tick to request a bounded amount of new chunks at the
// terminal stage.
type Loader struct {
	m  *Map
	id uuid.UUID
	r  int32

	mu       sync.Mutex
	pos      ChunkPos
	loadList []ChunkPos
	loaded   map[ChunkPos]struct{}
	closed   bool
}

// NewLoader creates a Loader on the Map passed, loading chunks within a
// radius of r chunks around its centre. The Loader starts at the origin;
// call Move before the first Load to position it.
func NewLoader(m *Map, r int32) *Loader {
	l := &Loader{m: m, id: uuid.New(), r: r, loaded: make(map[ChunkPos]struct{})}
	l.populateLoadList(ChunkPos{})
	return l
}

// Move updates the centre of the Loader to the world position passed,
// releasing every loaded chunk that falls outside of the radius around the
// new centre.
func (l *Loader) Move(pos mgl64.Vec3) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	chunkPos := ChunkPos{int32(math.Floor(pos[0])) >> 4, int32(math.Floor(pos[2])) >> 4}
	if chunkPos == l.pos {
		return
	}
	l.pos = chunkPos
	l.populateLoadList(chunkPos)
	for p := range l.loaded {
		if !l.within(p, chunkPos) {
			delete(l.loaded, p)
			l.m.Release(p, l.id)
		}
	}
}

// Load requests up to n not yet loaded chunks within the radius at the
// terminal stage, closest chunks first. Load blocks until the requested
// chunks are available; spreading the work over ticks with a small n keeps
// the caller's loop responsive while generation proceeds on the Map's
// workers.
func (l *Loader) Load(ctx context.Context, n int) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	toLoad := make([]ChunkPos, 0, n)
	for _, pos := range l.loadList {
		if len(toLoad) >= n {
			break
		}
		if _, ok := l.loaded[pos]; ok {
			continue
		}
		toLoad = append(toLoad, pos)
	}
	l.mu.Unlock()

	for _, pos := range toLoad {
		handle, err := l.m.Request(ctx, pos, l.m.conf.Pipeline.Terminal(), l.id)
		if err != nil {
			l.m.Release(pos, l.id)
			return err
		}
		handle.Release()
		l.mu.Lock()
		if l.closed || !l.within(pos, l.pos) {
			// The loader moved or closed while the chunk generated.
			l.m.Release(pos, l.id)
			l.mu.Unlock()
			continue
		}
		l.loaded[pos] = struct{}{}
		l.mu.Unlock()
	}
	return nil
}

// Chunk reports whether the chunk at the position passed is currently
// loaded by the Loader.
func (l *Loader) Chunk(pos ChunkPos) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.loaded[pos]
	return ok
}

// Close releases every chunk the Loader holds. The Loader is unusable
// afterwards.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	for pos := range l.loaded {
		l.m.Release(pos, l.id)
	}
	l.loaded = nil
	return nil
}

// populateLoadList computes the chunk positions within the radius around
// the centre passed, ordered by distance so the closest chunks load first.
func (l *Loader) populateLoadList(centre ChunkPos) {
	list := make([]ChunkPos, 0, (l.r*2+1)*(l.r*2+1))
	for x := -l.r; x <= l.r; x++ {
		for z := -l.r; z <= l.r; z++ {
			pos := ChunkPos{centre[0] + x, centre[1] + z}
			if l.within(pos, centre) {
				list = append(list, pos)
			}
		}
	}
	slices.SortFunc(list, func(a, b ChunkPos) int {
		return int(distSq(a, centre) - distSq(b, centre))
	})
	l.loadList = list
}

// within reports whether pos lies inside the loader's circular radius
// around centre.
func (l *Loader) within(pos, centre ChunkPos) bool {
	return distSq(pos, centre) <= int64(l.r)*int64(l.r)
}

func distSq(a, b ChunkPos) int64 {
	dx, dz := int64(a[0]-b[0]), int64(a[1]-b[1])
	return dx*dx + dz*dz
}
