package vm

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/emberfx/ember/errors"
)

// ParameterStore is a flat byte buffer of named uniform inputs plus a
// previous-frame copy. Offsets are computed once from the layout; values are
// stored little-endian so the same bytes can be handed to a WebAssembly
// kernel or copied verbatim into a GPU tick packet.
type ParameterStore struct {
	layout  []Uniform
	offsets map[string]int
	sizes   map[string]int
	data    []byte
	prev    []byte

	interfacesDirty bool
	version         uint64
}

// NewParameterStore computes offsets for layout and allocates both buffers.
// Each uniform is aligned to 4 bytes, matching the kernel ABI.
func NewParameterStore(layout []Uniform) *ParameterStore {
	s := &ParameterStore{
		offsets: make(map[string]int, len(layout)),
		sizes:   make(map[string]int, len(layout)),
	}
	offset := 0
	for _, u := range layout {
		offset = align4(offset)
		u.Offset = offset
		s.offsets[u.Name] = offset
		s.sizes[u.Name] = u.Size
		s.layout = append(s.layout, u)
		offset += u.Size
	}
	s.data = make([]byte, align4(offset))
	s.prev = make([]byte, align4(offset))
	return s
}

func align4(n int) int {
	return (n + 3) &^ 3
}

// Size returns the byte size of the parameter block.
func (s *ParameterStore) Size() int {
	return len(s.data)
}

// Layout returns the uniform layout with resolved offsets.
func (s *ParameterStore) Layout() []Uniform {
	return s.layout
}

// Bytes returns the current-frame parameter block. Callers must treat the
// slice as read-only; it aliases the store.
func (s *ParameterStore) Bytes() []byte {
	return s.data
}

// Previous returns the previous-frame parameter block captured by the last
// CapturePrevious call.
func (s *ParameterStore) Previous() []byte {
	return s.prev
}

// CapturePrevious copies current values into the previous-frame slots.
// Emitters call this in PostTick so velocity and motion-blur dependent
// interfaces can read last frame's values next tick.
func (s *ParameterStore) CapturePrevious() {
	copy(s.prev, s.data)
}

// Version increments on every successful write. The GPU packager uses it to
// detect stale snapshots.
func (s *ParameterStore) Version() uint64 {
	return s.version
}

// MarkInterfacesDirty records that the bound data-interface set changed.
// The owning execution context rebuilds its external-function table on the
// next tick.
func (s *ParameterStore) MarkInterfacesDirty() {
	s.interfacesDirty = true
}

// InterfacesDirty reports whether a rebuild is pending.
func (s *ParameterStore) InterfacesDirty() bool {
	return s.interfacesDirty
}

// ClearInterfacesDirty acknowledges a completed rebuild.
func (s *ParameterStore) ClearInterfacesDirty() {
	s.interfacesDirty = false
}

func (s *ParameterStore) slot(name string, size int) ([]byte, error) {
	off, ok := s.offsets[name]
	if !ok {
		return nil, errors.NotFound(errors.PhaseBind, "uniform", name)
	}
	if s.sizes[name] < size {
		return nil, errors.InvalidInput(errors.PhaseBind, "uniform "+name+" is smaller than the written value")
	}
	return s.data[off : off+size], nil
}

// SetFloat32 writes a scalar uniform.
func (s *ParameterStore) SetFloat32(name string, v float32) error {
	b, err := s.slot(name, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	s.version++
	return nil
}

// SetInt32 writes an integer uniform.
func (s *ParameterStore) SetInt32(name string, v int32) error {
	b, err := s.slot(name, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, uint32(v))
	s.version++
	return nil
}

// SetVec3 writes a three-component vector uniform.
func (s *ParameterStore) SetVec3(name string, v mgl32.Vec3) error {
	b, err := s.slot(name, 12)
	if err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v[i]))
	}
	s.version++
	return nil
}

// Float32 reads a scalar uniform. Missing uniforms read as zero; absent
// parameters are routine on the first tick after creation.
func (s *ParameterStore) Float32(name string) float32 {
	off, ok := s.offsets[name]
	if !ok || off+4 > len(s.data) {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(s.data[off:]))
}

// Int32 reads an integer uniform, zero when absent.
func (s *ParameterStore) Int32(name string) int32 {
	off, ok := s.offsets[name]
	if !ok || off+4 > len(s.data) {
		return 0
	}
	return int32(binary.LittleEndian.Uint32(s.data[off:]))
}

// Vec3 reads a vector uniform, zero when absent.
func (s *ParameterStore) Vec3(name string) mgl32.Vec3 {
	off, ok := s.offsets[name]
	if !ok || off+12 > len(s.data) {
		return mgl32.Vec3{}
	}
	var v mgl32.Vec3
	for i := 0; i < 3; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(s.data[off+i*4:]))
	}
	return v
}

// PrevVec3 reads a vector uniform from the previous-frame block.
func (s *ParameterStore) PrevVec3(name string) mgl32.Vec3 {
	off, ok := s.offsets[name]
	if !ok || off+12 > len(s.prev) {
		return mgl32.Vec3{}
	}
	var v mgl32.Vec3
	for i := 0; i < 3; i++ {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(s.prev[off+i*4:]))
	}
	return v
}
