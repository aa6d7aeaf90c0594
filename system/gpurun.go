package system

import (
	"context"

	"go.uber.org/zap"

	"github.com/emberfx/ember/gputick"
)

// runGPUTick executes one tick packet on the dispatcher's consumer thread.
// Each record's GPU program runs over the surviving records plus the
// packaged spawn total, reading the packet's parameter snapshot rather than
// the live store; the produced count is posted back as the emitter's latent
// readback.
//
// The simulation task guaranteed exclusive access to these datasets by
// suspending at the submit boundary, so the writes here are race-free.
func runGPUTick(p *gputick.Packet) {
	ctx := context.Background()
	for i := 0; i < p.NumInstances(); i++ {
		rec := p.Record(i)
		e := rec.Emitter
		gpu := e.GPUContext()

		if err := gpu.Tick(); err != nil {
			Logger().Warn("gpu context tick failed",
				zap.String("emitter", e.Definition().Name),
				zap.Error(err))
			continue
		}

		numCur := e.Data().NumInstances()
		total := numCur + rec.SpawnTotal
		if e.Data().BeginSimulate(total) == nil {
			continue
		}
		if err := gpu.BindData(0, e.Data(), 0, true); err != nil {
			continue
		}
		produced, err := gpu.ExecuteWithParams(ctx, total, p.Params(rec))
		if err != nil {
			Logger().Warn("gpu program failed",
				zap.String("emitter", e.Definition().Name),
				zap.Error(err))
			// Buffers were not swapped; the current data stays valid.
			continue
		}
		e.Data().EndSimulate(produced)
		e.SetGPUReadback(produced)
	}
}
