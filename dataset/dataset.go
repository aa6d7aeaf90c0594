package dataset

import (
	ember "github.com/emberfx/ember"
	"github.com/emberfx/ember/errors"
)

// ValueType enumerates the column types a dataset supports.
type ValueType uint8

const (
	Float ValueType = iota
	Int
	Vec2
	Vec3
	Vec4
)

// FloatComponents returns how many float channels the type occupies.
func (t ValueType) FloatComponents() int {
	switch t {
	case Float:
		return 1
	case Vec2:
		return 2
	case Vec3:
		return 3
	case Vec4:
		return 4
	default:
		return 0
	}
}

// IntComponents returns how many int channels the type occupies.
func (t ValueType) IntComponents() int {
	if t == Int {
		return 1
	}
	return 0
}

func (t ValueType) String() string {
	switch t {
	case Float:
		return "float"
	case Int:
		return "int"
	case Vec2:
		return "vec2"
	case Vec3:
		return "vec3"
	case Vec4:
		return "vec4"
	default:
		return "invalid"
	}
}

// Variable is one named, typed column in the schema.
type Variable struct {
	Name string
	Type ValueType
}

// gpuAllocGranularity pads GPU-visible buffers so uploads are whole blocks.
const gpuAllocGranularity = 64

// Dataset is the ordered set of named, typed columns backing one particle
// population, with exactly two backing buffers.
type Dataset struct {
	id        string
	debugName string
	target    ember.SimTarget

	vars      []Variable
	varIndex  map[string]int
	floatBase []int
	intBase   []int
	numFloat  int
	numInt    int
	finalized bool

	buffers ember.Double[Buffer]

	persistentIDs bool
	freeIDs       []int32
	nextID        int32
}

// New creates a dataset and declares its identity. The column layout is
// declared afterwards through AddVariable and locked by Finalize.
func New(id string, target ember.SimTarget, debugName string) *Dataset {
	return &Dataset{
		id:        id,
		debugName: debugName,
		target:    target,
		varIndex:  make(map[string]int),
	}
}

// ID returns the dataset identifier.
func (d *Dataset) ID() string {
	return d.id
}

// DebugName returns the human-readable name used in errors and logs.
func (d *Dataset) DebugName() string {
	return d.debugName
}

// Target returns the simulation target declared at creation.
func (d *Dataset) Target() ember.SimTarget {
	return d.target
}

// Finalized reports whether the schema is locked.
func (d *Dataset) Finalized() bool {
	return d.finalized
}

// RequirePersistentIDs enables the free-id/used-id table. Must be called
// before Finalize.
func (d *Dataset) RequirePersistentIDs() error {
	if d.finalized {
		return errors.SchemaLocked(d.debugName, "persistent-ids")
	}
	d.persistentIDs = true
	return nil
}

// AddVariable appends a column to the schema. Adding a variable after
// Finalize is an error; column count is stable for the dataset's lifetime
// once locked.
func (d *Dataset) AddVariable(name string, typ ValueType) error {
	if d.finalized {
		return errors.SchemaLocked(d.debugName, name)
	}
	if _, exists := d.varIndex[name]; exists {
		return errors.New(errors.PhaseSchema, errors.KindInvalidInput).
			Component(d.debugName).
			Name(name).
			Detail("variable already declared").
			Build()
	}
	d.varIndex[name] = len(d.vars)
	d.floatBase = append(d.floatBase, d.numFloat)
	d.intBase = append(d.intBase, d.numInt)
	d.vars = append(d.vars, Variable{Name: name, Type: typ})
	d.numFloat += typ.FloatComponents()
	d.numInt += typ.IntComponents()
	return nil
}

// NumVariables returns the declared column count.
func (d *Dataset) NumVariables() int {
	return len(d.vars)
}

// Variables returns the declared schema in order.
func (d *Dataset) Variables() []Variable {
	return d.vars
}

// Finalize locks the schema and initializes both backing buffers. For GPU
// targets the buffers allocate in upload-sized blocks so the render thread
// can consume them without repacking.
func (d *Dataset) Finalize() error {
	if d.finalized {
		return errors.SchemaLocked(d.debugName, "")
	}
	d.finalized = true
	for i := 0; i < 2; i++ {
		b := d.buffers.Slot(i)
		b.owner = d
		b.floats = make([][]float32, d.numFloat)
		b.ints = make([][]int32, d.numInt)
	}
	return nil
}

// GetCurrentData returns the immutable, renderer-readable buffer, or nil if
// the dataset was never finalized.
func (d *Dataset) GetCurrentData() *Buffer {
	if !d.finalized {
		return nil
	}
	return d.buffers.Read()
}

// GetDestinationData returns the mutable buffer exclusively owned by the
// simulating task, or nil if the dataset was never finalized.
func (d *Dataset) GetDestinationData() *Buffer {
	if !d.finalized {
		return nil
	}
	return d.buffers.Write()
}

// BeginSimulate prepares the destination buffer for up to capacity records
// and returns it. Backing storage grows but never shrinks.
func (d *Dataset) BeginSimulate(capacity int) *Buffer {
	if !d.finalized {
		return nil
	}
	if d.target == ember.SimTargetGPU && capacity > 0 {
		capacity = (capacity + gpuAllocGranularity - 1) / gpuAllocGranularity * gpuAllocGranularity
	}
	dst := d.buffers.Write()
	dst.reserve(capacity)
	dst.numInstances = 0
	return dst
}

// EndSimulate records how many instances the tick actually produced and
// swaps the buffers, publishing the destination as the new current buffer.
func (d *Dataset) EndSimulate(numInstances int) {
	if !d.finalized {
		return
	}
	dst := d.buffers.Write()
	if numInstances > dst.capacity {
		numInstances = dst.capacity
	}
	dst.numInstances = numInstances
	d.buffers.Swap()
}

// NumInstances returns the live record count visible to readers.
func (d *Dataset) NumInstances() int {
	if !d.finalized {
		return 0
	}
	return d.buffers.Read().numInstances
}

// ResetBuffers zeroes both record counts without reallocating backing
// storage. This is the cheap reset path, distinct from schema
// reinitialization.
func (d *Dataset) ResetBuffers() {
	for i := 0; i < 2; i++ {
		d.buffers.Slot(i).numInstances = 0
	}
	d.freeIDs = d.freeIDs[:0]
	d.nextID = 0
}

// AcquireID returns a stable particle id, reusing released slots first.
// Returns -1 when the dataset does not track persistent ids.
func (d *Dataset) AcquireID() int32 {
	if !d.persistentIDs {
		return -1
	}
	if n := len(d.freeIDs); n > 0 {
		id := d.freeIDs[n-1]
		d.freeIDs = d.freeIDs[:n-1]
		return id
	}
	id := d.nextID
	d.nextID++
	return id
}

// ReleaseID returns an id to the free table for reuse.
func (d *Dataset) ReleaseID(id int32) {
	if !d.persistentIDs || id < 0 {
		return
	}
	d.freeIDs = append(d.freeIDs, id)
}

// NumFreeIDs returns the reusable slot count.
func (d *Dataset) NumFreeIDs() int {
	return len(d.freeIDs)
}

func (d *Dataset) variableOffset(name string) (Variable, int, int, bool) {
	idx, ok := d.varIndex[name]
	if !ok {
		return Variable{}, 0, 0, false
	}
	return d.vars[idx], d.floatBase[idx], d.intBase[idx], true
}
