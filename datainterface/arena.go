package datainterface

import (
	ember "github.com/emberfx/ember"
	"github.com/emberfx/ember/errors"
)

const blockAlign = 8

type block struct {
	iface  Interface
	offset int
	size   int
}

// Arena exclusively owns the per-instance data blocks of a set of data
// interfaces. Offsets are computed once at bind time and remain stable for
// the arena's lifetime; DestroyAll runs destroy hooks in declared order.
type Arena struct {
	buf       []byte
	blocks    []block
	byIface   map[Interface]int
	sealed    bool
	destroyed bool
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{
		byIface: make(map[Interface]int),
	}
}

// Bind reserves a block for iface and returns its stable byte offset.
// Binding the same interface twice returns the original offset. Binding
// after InitAll is a caller contract violation.
func (a *Arena) Bind(iface Interface) int {
	if a.sealed {
		panic("datainterface: Bind after InitAll")
	}
	if off, ok := a.byIface[iface]; ok {
		return off
	}
	size := iface.PerInstanceDataSize()
	offset := alignUp(len(a.buf), blockAlign)
	a.buf = append(a.buf, make([]byte, offset-len(a.buf)+size)...)
	a.blocks = append(a.blocks, block{iface: iface, offset: offset, size: size})
	a.byIface[iface] = offset
	return offset
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// Block returns the per-instance data at offset. A stateless interface gets
// an empty slice; an unknown offset returns nil. Missing data is routine
// during the first tick after creation, so callers treat nil as absent, not
// as an error.
func (a *Arena) Block(offset int) []byte {
	for _, b := range a.blocks {
		if b.offset == offset {
			return a.buf[b.offset : b.offset+b.size]
		}
	}
	return nil
}

// BlockFor returns the per-instance data bound to iface, nil when unbound.
func (a *Arena) BlockFor(iface Interface) []byte {
	off, ok := a.byIface[iface]
	if !ok {
		return nil
	}
	return a.Block(off)
}

// Interfaces returns the bound interfaces in declared order.
func (a *Arena) Interfaces() []Interface {
	out := make([]Interface, len(a.blocks))
	for i, b := range a.blocks {
		out[i] = b.iface
	}
	return out
}

// InitAll initializes every block in declared order and seals the arena
// against further binds. A failed init aborts and reports which interface
// failed; already-initialized blocks are destroyed in order.
func (a *Arena) InitAll() error {
	a.sealed = true
	for i, b := range a.blocks {
		if err := b.iface.InitPerInstanceData(a.buf[b.offset : b.offset+b.size]); err != nil {
			for j := 0; j < i; j++ {
				d := a.blocks[j]
				d.iface.DestroyPerInstanceData(a.buf[d.offset : d.offset+d.size])
			}
			return errors.Wrap(errors.PhaseBind, errors.KindInstantiation, err,
				"init per-instance data for "+b.iface.Name())
		}
	}
	return nil
}

// TickAll advances every interface and reports whether any demanded a full
// simulation reset.
func (a *Arena) TickAll(clock ember.Clock) bool {
	reset := false
	for _, b := range a.blocks {
		if b.iface.PerInstanceTick(a.buf[b.offset:b.offset+b.size], clock) {
			reset = true
		}
	}
	return reset
}

// DestroyAll runs every destroy hook in declared order and releases the
// backing buffer. Idempotent; skipping it leaks any interface-held
// resources.
func (a *Arena) DestroyAll() {
	if a.destroyed {
		return
	}
	a.destroyed = true
	for _, b := range a.blocks {
		b.iface.DestroyPerInstanceData(a.buf[b.offset : b.offset+b.size])
	}
	a.buf = nil
	a.blocks = nil
}
