package gputick

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/emberfx/ember/emitter"
)

func submitPacket(t *testing.T, d *Dispatcher, e *emitter.Instance, run func(*Packet), onFinalize func()) *Pending {
	t.Helper()
	p := Package([]*emitter.Instance{e})
	if p == nil {
		t.Fatal("expected a packet")
	}
	return d.Submit(p, run, onFinalize)
}

func TestDispatcher_RunsSubmissionsInOrder(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	var order []int
	var pendings []*Pending
	for i := 0; i < 3; i++ {
		i := i
		e := gpuEmitter(t, "seq", 16)
		pendings = append(pendings, submitPacket(t, d, e, func(*Packet) {
			order = append(order, i)
		}, nil))
	}
	for _, p := range pendings {
		p.Join()
	}

	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("execution order = %v, want [0 1 2]", order)
	}
}

func TestPending_JoinHasNoSideEffects(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	var finalized atomic.Int32
	e := gpuEmitter(t, "join", 16)
	p := submitPacket(t, d, e, nil, func() { finalized.Add(1) })

	p.Join()
	p.Join()
	if finalized.Load() != 0 {
		t.Fatal("Join must never run the completion path")
	}

	p.Finalize()
	p.Finalize()
	if finalized.Load() != 1 {
		t.Fatalf("completion ran %d times, want exactly once", finalized.Load())
	}
}

func TestPending_DoneIsNonBlocking(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	release := make(chan struct{})
	e := gpuEmitter(t, "poll", 16)
	p := submitPacket(t, d, e, func(*Packet) { <-release }, nil)

	if p.Done() {
		t.Fatal("tick still running, Done must report false")
	}
	close(release)
	p.Join()
	if !p.Done() {
		t.Fatal("Done must report true after the join")
	}
}

func TestDispatcher_CloseDrainsOutstandingWork(t *testing.T) {
	d := NewDispatcher()

	var ran atomic.Int32
	var pendings []*Pending
	for i := 0; i < 5; i++ {
		e := gpuEmitter(t, "drain", 16)
		pendings = append(pendings, submitPacket(t, d, e, func(*Packet) {
			time.Sleep(time.Millisecond)
			ran.Add(1)
		}, nil))
	}
	d.Close()

	if ran.Load() != 5 {
		t.Fatalf("ran %d commands, want all 5 drained before Close returns", ran.Load())
	}
	for _, p := range pendings {
		if !p.Done() {
			t.Fatal("every pending must be done after Close")
		}
	}
}

func TestDispatcher_SubmitAfterClosePanics(t *testing.T) {
	d := NewDispatcher()
	d.Close()

	e := gpuEmitter(t, "late", 16)
	p := Package([]*emitter.Instance{e})
	defer func() {
		if recover() == nil {
			t.Fatal("submit after Close should panic")
		}
	}()
	d.Submit(p, nil, nil)
}
