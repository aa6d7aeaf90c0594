package script

import (
	"context"

	"go.uber.org/zap"

	ember "github.com/emberfx/ember"
	"github.com/emberfx/ember/datainterface"
	"github.com/emberfx/ember/dataset"
	"github.com/emberfx/ember/errors"
	"github.com/emberfx/ember/vm"
)

// MaxBoundDataSets caps how many datasets one invocation can touch: the
// primary particle set plus event-generated sets.
const MaxBoundDataSets = 4

type boundSet struct {
	ds            *dataset.Dataset
	startInstance int
	updateCounts  bool
	inputFromDest bool
	bound         bool
}

// ExecutionContext binds one compiled program, a parameter store, a table of
// resolved external functions and the per-interface instance-data offsets.
// It persists across many ticks; the function table is rebuilt only when the
// interface set is marked dirty.
type ExecutionContext struct {
	name    string
	program vm.Program
	target  ember.SimTarget
	params  *vm.ParameterStore

	interfaces  []datainterface.Interface
	arena       *datainterface.Arena
	dataOffsets []int // per-interface arena offsets, fixed at rebuild

	funcTable []vm.ExternalFunc

	data [MaxBoundDataSets]boundSet
}

// NewContext returns an unbound context. Init must succeed before any tick.
func NewContext(name string) *ExecutionContext {
	return &ExecutionContext{name: name}
}

// Name returns the debug name supplied at construction.
func (c *ExecutionContext) Name() string {
	return c.name
}

// Init binds a compiled program and allocates the parameter store from its
// declared uniform layout. The context starts dirty so the first tick
// resolves external functions.
func (c *ExecutionContext) Init(program vm.Program, target ember.SimTarget) error {
	if program == nil {
		return errors.NotInitialized(errors.PhaseBind, c.name)
	}
	c.program = program
	c.target = target
	c.params = vm.NewParameterStore(program.Uniforms())
	c.params.MarkInterfacesDirty()
	c.funcTable = nil
	return nil
}

// Program returns the bound program, nil while unbound.
func (c *ExecutionContext) Program() vm.Program {
	return c.program
}

// Parameters returns the context's parameter store, nil while unbound.
func (c *ExecutionContext) Parameters() *vm.ParameterStore {
	return c.params
}

// Target returns the bound simulation target.
func (c *ExecutionContext) Target() ember.SimTarget {
	return c.target
}

// SetDataInterfaces replaces the live interface set and marks the context
// dirty. Blocks for any stateful interface are reserved in the arena now so
// offsets stay stable across rebuilds.
func (c *ExecutionContext) SetDataInterfaces(ifaces []datainterface.Interface, arena *datainterface.Arena) {
	c.interfaces = ifaces
	c.arena = arena
	c.dataOffsets = make([]int, len(ifaces))
	for i, di := range ifaces {
		c.dataOffsets[i] = arena.Bind(di)
	}
	if c.params != nil {
		c.params.MarkInterfacesDirty()
	}
}

// Interfaces returns the live data-interface set.
func (c *ExecutionContext) Interfaces() []datainterface.Interface {
	return c.interfaces
}

// Tick prepares the context for this frame's execution. If the bound program
// is not runnable it fails without side effects; the caller must not invoke
// Execute this frame. If the interface set is dirty, the external-function
// table is rebuilt; any resolution failure empties the table and fails the
// tick.
func (c *ExecutionContext) Tick() error {
	if c.program == nil || c.params == nil {
		return errors.NotInitialized(errors.PhaseBind, c.name)
	}
	if !c.program.Runnable() {
		return errors.NotRunnable(c.name)
	}
	if !c.params.InterfacesDirty() {
		return nil
	}
	if err := c.rebuildFunctionTable(); err != nil {
		c.funcTable = nil
		return err
	}
	c.params.ClearInterfacesDirty()
	return nil
}

// rebuildFunctionTable re-resolves every compiled external call site against
// the live interface array by owner name.
func (c *ExecutionContext) rebuildFunctionTable() error {
	declared := c.program.DataInterfaces()
	if len(declared) != len(c.interfaces) {
		return errors.CountMismatch(errors.PhaseBind, "data interfaces for "+c.name,
			len(declared), len(c.interfaces))
	}

	byName := make(map[string]int, len(c.interfaces))
	for i, di := range c.interfaces {
		byName[di.Name()] = i
	}
	for _, d := range declared {
		if _, ok := byName[d.Name]; !ok {
			return errors.NotFound(errors.PhaseBind, "data interface", d.Name)
		}
	}

	sites := c.program.ExternalFunctions()
	table := make([]vm.ExternalFunc, len(sites))
	var unresolved []errors.UnresolvedFunction

	for i, site := range sites {
		idx, ok := byName[site.Owner]
		if !ok {
			unresolved = append(unresolved, errors.UnresolvedFunction{Owner: site.Owner, Function: site.Function})
			continue
		}
		di := c.interfaces[idx]
		var block []byte
		if c.arena != nil {
			block = c.arena.Block(c.dataOffsets[idx])
		}
		fn, err := di.GetExternalFunction(site, block)
		if err != nil || fn == nil {
			unresolved = append(unresolved, errors.UnresolvedFunction{Owner: site.Owner, Function: site.Function})
			continue
		}
		table[i] = fn
	}

	if len(unresolved) > 0 {
		return &errors.UnresolvedFunctionsError{Functions: unresolved}
	}

	c.funcTable = table
	Logger().Debug("rebuilt external function table",
		zap.String("context", c.name),
		zap.Int("functions", len(table)))
	return nil
}

// BindData attaches a dataset as execution-time input/output at the given
// slot. startInstance offsets the register view into the destination buffer,
// which is how spawn output lands after the surviving records. updateCounts
// requests that the dataset be told the interpreter's produced record count
// after execution.
func (c *ExecutionContext) BindData(index int, ds *dataset.Dataset, startInstance int, updateCounts bool) error {
	if index < 0 || index >= MaxBoundDataSets {
		return errors.OutOfBounds(errors.PhaseBind, c.name, index, MaxBoundDataSets)
	}
	c.data[index] = boundSet{
		ds:            ds,
		startInstance: startInstance,
		updateCounts:  updateCounts,
		bound:         ds != nil,
	}
	return nil
}

// BindDataFromDestination attaches a dataset whose input registers view the
// destination buffer instead of the current one. This is how the outputs of
// the spawn pass feed the update pass for newly spawned records within the
// same frame.
func (c *ExecutionContext) BindDataFromDestination(index int, ds *dataset.Dataset, startInstance int, updateCounts bool) error {
	if err := c.BindData(index, ds, startInstance, updateCounts); err != nil {
		return err
	}
	c.data[index].inputFromDest = ds != nil
	return nil
}

// UnbindData clears a slot.
func (c *ExecutionContext) UnbindData(index int) {
	if index >= 0 && index < MaxBoundDataSets {
		c.data[index] = boundSet{}
	}
}

// Execute assembles register tables from every bound dataset and invokes the
// interpreter once over numInstances records. Exceeding the register cap is
// a hard failure, not a truncation. After execution, each dataset that
// requested count tracking is told how many records the interpreter actually
// produced.
func (c *ExecutionContext) Execute(ctx context.Context, numInstances int) (int, error) {
	var params []byte
	if c.params != nil {
		params = c.params.Bytes()
	}
	return c.ExecuteWithParams(ctx, numInstances, params)
}

// ExecuteWithParams runs like Execute but with an externally captured
// parameter block instead of the live store. The async GPU path feeds the
// tick packet's snapshot here, so a simulation-side parameter write landing
// after packaging is not observed by the consumer thread.
func (c *ExecutionContext) ExecuteWithParams(ctx context.Context, numInstances int, params []byte) (int, error) {
	if c.program == nil {
		return 0, errors.NotInitialized(errors.PhaseExecute, c.name)
	}
	if len(c.funcTable) != len(c.program.ExternalFunctions()) {
		return 0, errors.CountMismatch(errors.PhaseExecute, "external function table for "+c.name,
			len(c.program.ExternalFunctions()), len(c.funcTable))
	}
	if numInstances <= 0 {
		return 0, nil
	}

	in := vm.ExecInput{
		NumInstances: numInstances,
		Params:       params,
		Externals:    c.funcTable,
	}

	total := 0
	for s := range c.data {
		set := &c.data[s]
		if !set.bound {
			continue
		}
		cur := set.ds.GetCurrentData()
		dst := set.ds.GetDestinationData()
		if cur == nil || dst == nil {
			continue
		}
		if set.inputFromDest {
			cur = dst
		}
		start := set.startInstance
		for _, ch := range cur.FloatChannels() {
			in.FloatIn = append(in.FloatIn, sliceFrom(ch, start))
		}
		for _, ch := range dst.FloatChannels() {
			in.FloatOut = append(in.FloatOut, sliceFrom(ch, start))
		}
		for _, ch := range cur.IntChannels() {
			in.IntIn = append(in.IntIn, sliceFromInt(ch, start))
		}
		for _, ch := range dst.IntChannels() {
			in.IntOut = append(in.IntOut, sliceFromInt(ch, start))
		}
		total += len(cur.FloatChannels()) + len(dst.FloatChannels()) +
			len(cur.IntChannels()) + len(dst.IntChannels())
	}

	if total > vm.MaxRegisters {
		return 0, errors.RegisterOverflow(c.name, total, vm.MaxRegisters)
	}

	result, err := c.program.Execute(ctx, &in)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseExecute, errors.KindInvalidInput, err, c.name)
	}

	for s := range c.data {
		set := &c.data[s]
		if !set.bound || !set.updateCounts {
			continue
		}
		if dst := set.ds.GetDestinationData(); dst != nil {
			dst.SetNumInstances(set.startInstance + result.NumInstancesOut)
		}
	}
	return result.NumInstancesOut, nil
}

func sliceFrom(ch []float32, start int) []float32 {
	if start >= len(ch) {
		return nil
	}
	return ch[start:]
}

func sliceFromInt(ch []int32, start int) []int32 {
	if start >= len(ch) {
		return nil
	}
	return ch[start:]
}
