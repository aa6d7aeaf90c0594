package gputick

import (
	"fmt"

	ember "github.com/emberfx/ember"
	"github.com/emberfx/ember/datainterface"
	"github.com/emberfx/ember/emitter"
)

// paramAlign aligns each emitter's parameter region for direct upload.
const paramAlign = 16

// InstanceData is one per-GPU-emitter record inside a packet.
type InstanceData struct {
	Emitter *emitter.Instance

	// ParamOffset and ParamSize locate this emitter's snapshot inside the
	// packet's shared parameter blob.
	ParamOffset int
	ParamSize   int

	// SpawnTotal is the frame's requested spawn count, captured at package
	// time so the consumer does not chase live spawn state.
	SpawnTotal int

	// ParamVersion detects stale snapshots during debugging.
	ParamVersion uint64

	destroyed bool
}

// Packet is a single self-contained snapshot of every active GPU emitter in
// one system instance: the instance-data records back to back with one
// contiguous parameter blob.
type Packet struct {
	records   []InstanceData
	params    []byte
	proxies   []any
	destroyed bool
}

// Package snapshots the active GPU emitters. An emitter participates when
// its target is GPU, it has a GPU context and it is not Complete. Must be
// called from the owning simulation task; the packet may then cross to the
// consumer thread.
//
// The declared active count is recomputed while packaging; a mismatch is a
// programming invariant violation and panics.
func Package(emitters []*emitter.Instance) *Packet {
	declared := 0
	paramBytes := 0
	for _, e := range emitters {
		if !gpuActive(e) {
			continue
		}
		declared++
		paramBytes = alignUp(paramBytes, paramAlign) + e.GPUContext().Parameters().Size()
	}
	if declared == 0 {
		return nil
	}

	p := &Packet{
		records: make([]InstanceData, 0, declared),
		params:  make([]byte, alignUp(paramBytes, paramAlign)),
	}

	seen := make(map[any]bool)
	offset := 0
	for _, e := range emitters {
		if !gpuActive(e) {
			continue
		}
		ctx := e.GPUContext()
		store := ctx.Parameters()
		size := store.Size()
		offset = alignUp(offset, paramAlign)
		copy(p.params[offset:offset+size], store.Bytes())

		spawnTotal := 0
		for _, info := range e.SpawnInfos() {
			spawnTotal += info.Count
		}

		p.records = append(p.records, InstanceData{
			Emitter:      e,
			ParamOffset:  offset,
			ParamSize:    size,
			SpawnTotal:   spawnTotal,
			ParamVersion: store.Version(),
		})
		offset += size

		for _, di := range ctx.Interfaces() {
			prox, ok := di.(datainterface.GPUProxied)
			if !ok {
				continue
			}
			v := prox.GPUProxy()
			if v == nil || seen[v] {
				continue
			}
			seen[v] = true
			p.proxies = append(p.proxies, v)
		}
	}

	if len(p.records) != declared {
		panic(fmt.Sprintf("gputick: packaged %d instance records, declared %d", len(p.records), declared))
	}
	return p
}

func gpuActive(e *emitter.Instance) bool {
	return e != nil &&
		e.Definition().Target == ember.SimTargetGPU &&
		e.GPUContext() != nil &&
		e.State() != emitter.Complete
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// NumInstances returns the packaged record count.
func (p *Packet) NumInstances() int {
	return len(p.records)
}

// Record returns the i-th instance-data record.
func (p *Packet) Record(i int) *InstanceData {
	return &p.records[i]
}

// Params returns one record's parameter snapshot within the shared blob.
func (p *Packet) Params(rec *InstanceData) []byte {
	return p.params[rec.ParamOffset : rec.ParamOffset+rec.ParamSize]
}

// ParamBytes returns the size of the shared parameter blob.
func (p *Packet) ParamBytes() int {
	return len(p.params)
}

// Proxies returns the distinct data-interface proxies referenced by the
// packaged emitters' GPU contexts.
func (p *Packet) Proxies() []any {
	return p.proxies
}

// Destroy tears down every instance-data record in order, then releases the
// blob. A packet is destroyed exactly once; destroying twice is a caller
// contract violation and panics.
func (p *Packet) Destroy() {
	if p.destroyed {
		panic("gputick: packet destroyed twice")
	}
	for i := range p.records {
		rec := &p.records[i]
		if rec.destroyed {
			panic("gputick: instance record destroyed twice")
		}
		rec.destroyed = true
		rec.Emitter = nil
	}
	p.destroyed = true
	p.params = nil
	p.proxies = nil
}
