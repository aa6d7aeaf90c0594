package collision

import (
	"github.com/go-gl/mathgl/mgl32"

	ember "github.com/emberfx/ember"
)

// QueryID identifies one submitted trace for later retrieval. IDs are unique
// per batch for its lifetime.
type QueryID uint64

// Channel is an opaque trace channel understood by the collision world.
type Channel uint32

// World performs traces. It is a boundary handle: the batch never validates
// its lifetime, and a submitting caller must not query a destroyed world.
type World interface {
	Trace(start, end mgl32.Vec3, channel Channel) Hit
}

// Hit is the outcome of one trace against a world.
type Hit struct {
	Blocked  bool
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Distance float32
	Friction float32
}

// Query is one pending trace request.
type Query struct {
	ID      QueryID
	Start   mgl32.Vec3
	End     mgl32.Vec3
	Channel Channel
	World   World
}

// Result pairs a query id with its trace outcome. Valid is false until
// PerformQueries has run for the buffer holding the query.
type Result struct {
	ID    QueryID
	Valid bool
	Hit   Hit
}

type slot struct {
	queries []Query
	results []Result
	lookup  map[QueryID]int
}

// Batch owns two ping-ponged arrays of pending trace requests and results.
// It is confined to the owning system instance's tick task; it is not safe
// for concurrent use.
type Batch struct {
	buffers ember.Double[slot]
	nextID  QueryID
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	b := &Batch{}
	for i := 0; i < 2; i++ {
		b.buffers.Slot(i).lookup = make(map[QueryID]int)
	}
	return b
}

// Tick flips the current/opposite buffer selector exactly once per
// simulation tick. The previous write buffer becomes the new read buffer;
// queries submitted last tick become retrievable once performed.
func (b *Batch) Tick() {
	b.buffers.Swap()
}

// ClearWrite empties the write-side arrays in place, retaining capacity.
// Memory growth is bounded by the high-water mark of any single tick.
func (b *Batch) ClearWrite() {
	w := b.buffers.Write()
	w.queries = w.queries[:0]
	w.results = w.results[:0]
	clear(w.lookup)
}

// SubmitQuery appends a trace request to the current write buffer and
// returns its id. The result is never retrievable within the same tick.
func (b *Batch) SubmitQuery(world World, start, end mgl32.Vec3, channel Channel) QueryID {
	b.nextID++
	id := b.nextID
	w := b.buffers.Write()
	w.lookup[id] = len(w.queries)
	w.queries = append(w.queries, Query{
		ID:      id,
		Start:   start,
		End:     end,
		Channel: channel,
		World:   world,
	})
	return id
}

// NumPending returns how many queries are waiting in the write buffer.
func (b *Batch) NumPending() int {
	return len(b.buffers.Write().queries)
}

// PerformQueries traces every query in the read buffer against its world
// handle and records the results. Queries with a nil world resolve to a
// miss; a missing world is routine during teardown, not an error.
func (b *Batch) PerformQueries() {
	r := b.buffers.Read()
	if cap(r.results) < len(r.queries) {
		r.results = make([]Result, len(r.queries))
	} else {
		r.results = r.results[:len(r.queries)]
	}
	for i, q := range r.queries {
		res := Result{ID: q.ID, Valid: true}
		if q.World != nil {
			res.Hit = q.World.Trace(q.Start, q.End, q.Channel)
		}
		r.results[i] = res
	}
}

// GetQueryResult looks up id in the current read buffer only. A query
// submitted this tick is not found; one submitted last tick is found once
// PerformQueries has run after the flip.
func (b *Batch) GetQueryResult(id QueryID) (Result, bool) {
	r := b.buffers.Read()
	idx, ok := r.lookup[id]
	if !ok || idx >= len(r.results) {
		return Result{}, false
	}
	res := r.results[idx]
	if !res.Valid {
		return Result{}, false
	}
	return res, true
}
