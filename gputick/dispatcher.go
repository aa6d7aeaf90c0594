package gputick

import (
	"sync"
)

// Dispatcher owns the consumer goroutine standing in for the render thread.
// Commands run in submission order on that single goroutine.
type Dispatcher struct {
	commands chan func()
	wg       sync.WaitGroup
	closed   bool
	mu       sync.Mutex
}

// NewDispatcher starts the consumer goroutine.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		commands: make(chan func(), 64),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for cmd := range d.commands {
			cmd()
		}
	}()
	return d
}

// Close drains outstanding commands and stops the consumer. Submitting
// after Close panics.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.commands)
	d.mu.Unlock()
	d.wg.Wait()
}

// Pending tracks one in-flight async tick. The two join primitives are
// deliberately separate: Join blocks until the tick's results are safe to
// read and has no side effects; Finalize additionally runs the deferred
// completion path exactly once. Deactivation mid-flight never aborts the
// tick; teardown waits for a finalizing join.
type Pending struct {
	done chan struct{}

	finalizeOnce sync.Once
	onFinalize   func()
}

// Join blocks until the async tick has executed. Safe to call repeatedly
// and from multiple goroutines; it never triggers completion side effects.
func (p *Pending) Join() {
	<-p.done
}

// Done reports without blocking whether the tick has executed. The scheduler
// polls this each frame; no deadline is modeled.
func (p *Pending) Done() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Finalize joins and then runs the completion path. Only the first call
// runs it.
func (p *Pending) Finalize() {
	<-p.done
	p.finalizeOnce.Do(func() {
		if p.onFinalize != nil {
			p.onFinalize()
		}
	})
}

// Submit hands a packet to the consumer thread. run executes the packet's
// simulation work on that thread; the packet is destroyed right after,
// consumed exactly once. onFinalize is deferred until someone performs a
// finalizing join.
//
// After Submit the simulation task must not touch the packaged emitters'
// datasets or GPU contexts until the returned Pending has been joined.
func (d *Dispatcher) Submit(packet *Packet, run func(*Packet), onFinalize func()) *Pending {
	p := &Pending{
		done:       make(chan struct{}),
		onFinalize: onFinalize,
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		panic("gputick: submit on closed dispatcher")
	}
	d.commands <- func() {
		if run != nil {
			run(packet)
		}
		packet.Destroy()
		close(p.done)
	}
	d.mu.Unlock()
	return p
}
