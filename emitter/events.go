package emitter

import (
	"context"

	"github.com/emberfx/ember/datainterface"
	"github.com/emberfx/ember/dataset"
	"github.com/emberfx/ember/script"
)

// eventHandler pairs one event script with the event dataset it consumes.
// Handlers run after the update pass, in declaration order.
type eventHandler struct {
	def    EventHandlerDef
	ctx    *script.ExecutionContext
	events *dataset.Dataset

	// pendingSpawn is this frame's capped spawn count, computed in PreTick.
	pendingSpawn int
}

func newEventHandler(owner *Definition, def EventHandlerDef, arena *datainterface.Arena) (*eventHandler, error) {
	h := &eventHandler{def: def}

	h.events = dataset.New(owner.Name+"."+def.Name, owner.Target, owner.Name+"."+def.Name+".events")
	for _, v := range def.Variables {
		if err := h.events.AddVariable(v.Name, v.Type); err != nil {
			return nil, err
		}
	}
	if err := h.events.Finalize(); err != nil {
		return nil, err
	}

	h.ctx = script.NewContext(owner.Name + ".event." + def.Name)
	if err := h.ctx.Init(def.Program, owner.Target); err != nil {
		return nil, err
	}
	h.ctx.SetDataInterfaces(owner.Interfaces, arena)
	return h, nil
}

// run executes the handler: particles spawn at start in the particle
// dataset's destination buffer, with the event dataset bound as a secondary
// input. Returns how many records the script actually produced.
func (h *eventHandler) run(ctx context.Context, particles *dataset.Dataset, start, count int) (int, error) {
	if err := h.ctx.Tick(); err != nil {
		return 0, err
	}
	if err := h.ctx.BindData(0, particles, start, false); err != nil {
		return 0, err
	}
	if err := h.ctx.BindData(1, h.events, 0, false); err != nil {
		return 0, err
	}
	defer h.ctx.UnbindData(1)
	return h.ctx.Execute(ctx, count)
}
