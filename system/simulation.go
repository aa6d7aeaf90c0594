package system

import (
	"context"
	"sync"

	ember "github.com/emberfx/ember"
	"github.com/emberfx/ember/gputick"
)

// Simulation is the frame scheduler. It advances the simulation clock, fans
// system instances out across a worker pool and runs the completion pass.
// One instance's emitters always tick together on one worker.
type Simulation struct {
	cfg        Config
	dispatcher *gputick.Dispatcher

	mu        sync.Mutex
	instances []*Instance
	clock     ember.Clock
}

// NewSimulation creates a scheduler with its dispatcher thread.
func NewSimulation(cfg Config) *Simulation {
	return &Simulation{
		cfg:        cfg,
		dispatcher: NewDispatcherFor(cfg),
	}
}

// NewDispatcherFor returns the dispatcher a simulation with this config
// uses. Split out so tests can drive packets directly.
func NewDispatcherFor(cfg Config) *gputick.Dispatcher {
	return gputick.NewDispatcher()
}

// AddInstance attaches a system instance to the schedule.
func (s *Simulation) AddInstance(si *Instance) {
	s.mu.Lock()
	s.instances = append(s.instances, si)
	s.mu.Unlock()
}

// Clock returns the current simulation clock value.
func (s *Simulation) Clock() ember.Clock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// Instances returns a snapshot of the scheduled instances.
func (s *Simulation) Instances() []*Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Instance, len(s.instances))
	copy(out, s.instances)
	return out
}

// Tick advances every instance by dt. Instances run in parallel across the
// worker pool; within one instance emitters stay strictly ordered. After all
// workers finish, completed instances are finalized and dropped from the
// schedule.
func (s *Simulation) Tick(ctx context.Context, dt float32) {
	s.mu.Lock()
	s.clock = s.clock.Advance(dt)
	clock := s.clock
	work := make([]*Instance, len(s.instances))
	copy(work, s.instances)
	s.mu.Unlock()

	queue := make(chan *Instance)
	var wg sync.WaitGroup
	workers := s.cfg.workers()
	if workers > len(work) && len(work) > 0 {
		workers = len(work)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for si := range queue {
				si.Tick(ctx, clock, s.dispatcher)
			}
		}()
	}
	for _, si := range work {
		queue <- si
	}
	close(queue)
	wg.Wait()

	// Completion pass: polled each frame, not awaited with a deadline. A
	// completed instance leaves the schedule, so this is the last point the
	// scheduler can run its interface teardown.
	s.mu.Lock()
	kept := s.instances[:0]
	for _, si := range s.instances {
		if si.HandleCompletion(false) {
			si.Destroy()
			continue
		}
		kept = append(kept, si)
	}
	s.instances = kept
	s.mu.Unlock()
}

// Close finalizes all instances and stops the dispatcher.
func (s *Simulation) Close() {
	s.mu.Lock()
	instances := s.instances
	s.instances = nil
	s.mu.Unlock()

	for _, si := range instances {
		si.Destroy()
	}
	s.dispatcher.Close()
}
