package dataset

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Buffer is one of a dataset's two backing stores. Channels are stored
// column-wise: one float32 slice per scalar component, one int32 slice per
// integer component.
type Buffer struct {
	owner        *Dataset
	floats       [][]float32
	ints         [][]int32
	numInstances int
	capacity     int
}

// NumInstances returns the live record count, not the allocated capacity.
func (b *Buffer) NumInstances() int {
	if b == nil {
		return 0
	}
	return b.numInstances
}

// Capacity returns the allocated record capacity.
func (b *Buffer) Capacity() int {
	if b == nil {
		return 0
	}
	return b.capacity
}

// SetNumInstances overrides the live record count. Execution contexts call
// this after the interpreter reports how many records it actually produced.
func (b *Buffer) SetNumInstances(n int) {
	if b == nil {
		return
	}
	if n < 0 {
		n = 0
	}
	if n > b.capacity {
		n = b.capacity
	}
	b.numInstances = n
}

func (b *Buffer) reserve(capacity int) {
	if capacity <= b.capacity {
		return
	}
	for i := range b.floats {
		next := make([]float32, capacity)
		copy(next, b.floats[i])
		b.floats[i] = next
	}
	for i := range b.ints {
		next := make([]int32, capacity)
		copy(next, b.ints[i])
		b.ints[i] = next
	}
	b.capacity = capacity
}

// FloatChannel returns the backing column for one scalar component of a
// named variable, or nil when the variable is absent or the buffer
// unallocated. The returned slice spans the full capacity.
func (b *Buffer) FloatChannel(name string, component int) []float32 {
	if b == nil || b.owner == nil {
		return nil
	}
	v, base, _, ok := b.owner.variableOffset(name)
	if !ok || component < 0 || component >= v.Type.FloatComponents() {
		return nil
	}
	return b.floats[base+component]
}

// IntChannel returns the backing column for a named integer variable.
func (b *Buffer) IntChannel(name string) []int32 {
	if b == nil || b.owner == nil {
		return nil
	}
	v, _, base, ok := b.owner.variableOffset(name)
	if !ok || v.Type.IntComponents() == 0 {
		return nil
	}
	return b.ints[base]
}

// FloatChannels returns every float column in declaration order. The script
// layer assembles VM register tables from this view.
func (b *Buffer) FloatChannels() [][]float32 {
	if b == nil {
		return nil
	}
	return b.floats
}

// IntChannels returns every int column in declaration order.
func (b *Buffer) IntChannels() [][]int32 {
	if b == nil {
		return nil
	}
	return b.ints
}

// Vec3At reads a vector variable for one record, zero when absent.
func (b *Buffer) Vec3At(name string, i int) mgl32.Vec3 {
	if b == nil || b.owner == nil || i < 0 || i >= b.capacity {
		return mgl32.Vec3{}
	}
	v, base, _, ok := b.owner.variableOffset(name)
	if !ok || v.Type != Vec3 {
		return mgl32.Vec3{}
	}
	return mgl32.Vec3{b.floats[base][i], b.floats[base+1][i], b.floats[base+2][i]}
}

// SetVec3At writes a vector variable for one record.
func (b *Buffer) SetVec3At(name string, i int, val mgl32.Vec3) {
	if b == nil || b.owner == nil || i < 0 || i >= b.capacity {
		return
	}
	v, base, _, ok := b.owner.variableOffset(name)
	if !ok || v.Type != Vec3 {
		return
	}
	b.floats[base][i] = val[0]
	b.floats[base+1][i] = val[1]
	b.floats[base+2][i] = val[2]
}

// FloatAt reads a scalar variable for one record, zero when absent.
func (b *Buffer) FloatAt(name string, i int) float32 {
	if b == nil || b.owner == nil || i < 0 || i >= b.capacity {
		return 0
	}
	v, base, _, ok := b.owner.variableOffset(name)
	if !ok || v.Type.FloatComponents() == 0 {
		return 0
	}
	return b.floats[base][i]
}

// SetFloatAt writes a scalar variable for one record.
func (b *Buffer) SetFloatAt(name string, i int, val float32) {
	if b == nil || b.owner == nil || i < 0 || i >= b.capacity {
		return
	}
	v, base, _, ok := b.owner.variableOffset(name)
	if !ok || v.Type.FloatComponents() == 0 {
		return
	}
	b.floats[base][i] = val
}

// CopyRecord copies record src of from into record dst of b. Both buffers
// must share a schema; mismatched channel counts copy nothing. Used to carry
// surviving particles from the current buffer into the destination.
func (b *Buffer) CopyRecord(dst int, from *Buffer, src int) {
	if b == nil || from == nil || len(b.floats) != len(from.floats) || len(b.ints) != len(from.ints) {
		return
	}
	if dst < 0 || dst >= b.capacity || src < 0 || src >= from.capacity {
		return
	}
	for c := range b.floats {
		b.floats[c][dst] = from.floats[c][src]
	}
	for c := range b.ints {
		b.ints[c][dst] = from.ints[c][src]
	}
}
