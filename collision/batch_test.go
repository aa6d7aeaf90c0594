package collision

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

// planeWorld blocks every trace crossing y=0.
type planeWorld struct {
	traces int
}

func (w *planeWorld) Trace(start, end mgl32.Vec3, channel Channel) Hit {
	w.traces++
	if start[1] >= 0 && end[1] < 0 {
		return Hit{
			Blocked:  true,
			Position: mgl32.Vec3{start[0], 0, start[2]},
			Normal:   mgl32.Vec3{0, 1, 0},
			Distance: start[1],
		}
	}
	return Hit{}
}

func TestBatch_SameTickNeverResolves(t *testing.T) {
	b := NewBatch()
	w := &planeWorld{}

	id := b.SubmitQuery(w, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, -1, 0}, 0)
	if id == 0 {
		t.Fatal("expected a non-zero query id")
	}

	// Same tick, before the flip: must not resolve, even after performing.
	b.PerformQueries()
	if _, ok := b.GetQueryResult(id); ok {
		t.Fatal("query resolved in the tick it was submitted")
	}
}

func TestBatch_ResolvesAfterOneFlip(t *testing.T) {
	b := NewBatch()
	w := &planeWorld{}

	id := b.SubmitQuery(w, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, -1, 0}, 0)

	b.Tick()
	b.PerformQueries()

	res, ok := b.GetQueryResult(id)
	if !ok {
		t.Fatal("query submitted last tick should resolve after the flip")
	}
	if !res.Hit.Blocked {
		t.Fatal("plane world should block the trace")
	}
	if res.Hit.Normal != (mgl32.Vec3{0, 1, 0}) {
		t.Fatalf("unexpected normal %v", res.Hit.Normal)
	}
	if w.traces != 1 {
		t.Fatalf("expected exactly one trace, got %d", w.traces)
	}
}

func TestBatch_ResultExpiresAfterSecondFlip(t *testing.T) {
	b := NewBatch()
	w := &planeWorld{}
	id := b.SubmitQuery(w, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, -1, 0}, 0)

	b.Tick()
	b.PerformQueries()
	b.Tick()
	b.ClearWrite()

	if _, ok := b.GetQueryResult(id); ok {
		t.Fatal("result should be gone one full cycle later")
	}
}

func TestBatch_NilWorldIsAMiss(t *testing.T) {
	b := NewBatch()
	id := b.SubmitQuery(nil, mgl32.Vec3{}, mgl32.Vec3{0, -1, 0}, 0)

	b.Tick()
	b.PerformQueries()

	res, ok := b.GetQueryResult(id)
	if !ok {
		t.Fatal("query should still resolve")
	}
	if res.Hit.Blocked {
		t.Fatal("nil world must resolve to a miss")
	}
}

func TestBatch_ClearWriteRetainsCapacity(t *testing.T) {
	b := NewBatch()
	w := &planeWorld{}
	for i := 0; i < 100; i++ {
		b.SubmitQuery(w, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, -1, 0}, 0)
	}
	capBefore := cap(b.buffers.Write().queries)

	b.ClearWrite()
	if b.NumPending() != 0 {
		t.Fatal("clear should empty the write side")
	}
	if cap(b.buffers.Write().queries) != capBefore {
		t.Fatal("clear should retain capacity")
	}
}

func TestBatch_IDsAreUniqueAcrossTicks(t *testing.T) {
	b := NewBatch()
	seen := map[QueryID]bool{}
	for tick := 0; tick < 3; tick++ {
		for i := 0; i < 10; i++ {
			id := b.SubmitQuery(nil, mgl32.Vec3{}, mgl32.Vec3{}, 0)
			if seen[id] {
				t.Fatalf("id %d reused", id)
			}
			seen[id] = true
		}
		b.Tick()
		b.ClearWrite()
	}
}
