// Package layout assigns frame-pointer-relative stack slots to the variables
// of one function and checks that no two variables share a slot.
//
// Slots are placed downward from the frame pointer in three phases: arrays,
// then scalars and pointers (parameters before locals), then memory-resident
// temporaries. Element 0 of an array sits at the lowest address of its slot,
// so element i lives at slot offset + i*4.
package layout

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/orizon-lang/minic/internal/arm32"
	"github.com/orizon-lang/minic/internal/ir"
)

const (
	// ArrayGap is the padding left below every array.
	ArrayGap = 4
	// FrameAlign is the alignment of the committed layout extent.
	FrameAlign = 8
)

// Slot is the storage of one variable.
type Slot struct {
	Value  *ir.Value
	Base   arm32.Reg
	Offset int
	Size   int
}

func (s Slot) String() string {
	return fmt.Sprintf("%s: [%s, #%d] size %d", s.Value, s.Base, s.Offset, s.Size)
}

// Conflict lists variables sharing one (base, offset) pair.
type Conflict struct {
	Base   arm32.Reg
	Offset int
	Values []*ir.Value
}

// Report is the outcome of Validate.
type Report struct {
	Conflicts []Conflict
	Unplaced  []*ir.Value
}

// OK reports whether the layout is complete and alias-free.
func (r Report) OK() bool { return len(r.Conflicts) == 0 && len(r.Unplaced) == 0 }

func (r Report) String() string {
	if r.OK() {
		return "layout ok"
	}
	var parts []string
	for _, c := range r.Conflicts {
		names := make([]string, len(c.Values))
		for i, v := range c.Values {
			names[i] = v.String()
		}
		parts = append(parts, fmt.Sprintf("[%s, #%d] shared by %s", c.Base, c.Offset, strings.Join(names, ", ")))
	}
	if len(r.Unplaced) > 0 {
		names := make([]string, len(r.Unplaced))
		for i, v := range r.Unplaced {
			names[i] = v.String()
		}
		parts = append(parts, "unplaced: "+strings.Join(names, ", "))
	}
	return strings.Join(parts, "; ")
}

// Manager owns the frame layout of one function.
type Manager struct {
	fn     *ir.Function
	slots  map[*ir.Value]*Slot
	order  []*Slot
	cursor int
	fixed  bool
}

// NewManager returns an empty layout for fn.
func NewManager(fn *ir.Function) *Manager {
	return &Manager{fn: fn, slots: make(map[*ir.Value]*Slot)}
}

// Variables returns every value of fn that needs a frame slot, in placement
// order: arrays, scalars, then memory temporaries.
func (m *Manager) Variables() []*ir.Value {
	var arrays, scalars []*ir.Value
	seen := make(map[*ir.Value]bool)
	add := func(v *ir.Value) {
		if v == nil || seen[v] || !v.InMemory() {
			return
		}
		seen[v] = true
		if v.IsArray() {
			arrays = append(arrays, v)
		} else {
			scalars = append(scalars, v)
		}
	}
	for _, v := range m.fn.Params {
		add(v)
	}
	for _, v := range m.fn.Locals {
		add(v)
	}
	add(m.fn.ReturnValue)

	var mem []*ir.Value
	for _, v := range m.fn.MemValues {
		if !seen[v] {
			seen[v] = true
			mem = append(mem, v)
		}
	}
	out := append(arrays, scalars...)
	return append(out, mem...)
}

// Place records an externally chosen slot for v and unfixes the layout.
func (m *Manager) Place(v *ir.Value, base arm32.Reg, offset int) {
	size := v.Type.Size()
	if size < arm32.WordSize {
		size = arm32.WordSize
	}
	m.put(&Slot{Value: v, Base: base, Offset: offset, Size: size})
	m.fixed = false
}

func (m *Manager) put(s *Slot) {
	if old, ok := m.slots[s.Value]; ok {
		*old = *s
		return
	}
	m.slots[s.Value] = s
	m.order = append(m.order, s)
}

// Lookup returns the slot of v.
func (m *Manager) Lookup(v *ir.Value) (Slot, bool) {
	s, ok := m.slots[v]
	if !ok {
		return Slot{}, false
	}
	return *s, true
}

// Slots returns every slot in placement order.
func (m *Manager) Slots() []Slot {
	out := make([]Slot, len(m.order))
	for i, s := range m.order {
		out[i] = *s
	}
	return out
}

// Fixed reports whether Reallocate has committed the layout.
func (m *Manager) Fixed() bool { return m.fixed }

// Extent returns the number of bytes below the frame pointer in use.
func (m *Manager) Extent() int { return -m.cursor }

// FrameSize returns the extent rounded up to FrameAlign.
func (m *Manager) FrameSize() int { return AlignUp(m.Extent(), FrameAlign) }

// Validate groups placed variables by (base, offset) and reports every
// group with more than one member, plus variables without a slot.
func (m *Manager) Validate() Report {
	type key struct {
		base arm32.Reg
		off  int
	}
	groups := make(map[key][]*ir.Value)
	var keys []key
	for _, s := range m.order {
		k := key{s.Base, s.Offset}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], s.Value)
	}

	var r Report
	for _, k := range keys {
		if vs := groups[k]; len(vs) > 1 {
			r.Conflicts = append(r.Conflicts, Conflict{Base: k.base, Offset: k.off, Values: vs})
		}
	}
	for _, v := range m.Variables() {
		if _, ok := m.slots[v]; !ok {
			r.Unplaced = append(r.Unplaced, v)
		}
	}
	return r
}

// Reallocate discards every slot and lays the frame out from scratch. Once
// it has run, later calls are no-ops until Place changes the layout.
// It returns the frame size.
func (m *Manager) Reallocate() int {
	if m.fixed {
		return m.FrameSize()
	}
	m.slots = make(map[*ir.Value]*Slot)
	m.order = nil
	m.cursor = 0

	for _, v := range m.Variables() {
		size := v.Type.Size()
		if !v.IsArray() || size < arm32.WordSize {
			size = arm32.WordSize
		}
		m.cursor -= size
		m.put(&Slot{Value: v, Base: arm32.FP, Offset: m.cursor, Size: size})
		if v.IsArray() {
			m.cursor -= ArrayGap
		}
	}
	m.fixed = true
	return m.FrameSize()
}

// Spill returns the spill slot of v, appending one below the committed
// layout the first time v is spilled.
func (m *Manager) Spill(v *ir.Value) Slot {
	if s, ok := m.slots[v]; ok {
		return *s
	}
	m.cursor -= arm32.WordSize
	s := &Slot{Value: v, Base: arm32.FP, Offset: m.cursor, Size: arm32.WordSize}
	m.put(s)
	return *s
}

// Dump writes the layout sorted by offset, highest first.
func (m *Manager) Dump(w io.Writer) {
	slots := m.Slots()
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Offset > slots[j].Offset })
	fmt.Fprintf(w, "frame of @%s: %d bytes\n", m.fn.Name, m.FrameSize())
	for _, s := range slots {
		fmt.Fprintf(w, "  %s\n", s)
	}
}

// IsPowerOfTwo checks if a number is a power of 2.
func IsPowerOfTwo(n int) bool { return n > 0 && (n&(n-1)) == 0 }

// AlignUp rounds value up to the next multiple of alignment.
func AlignUp(value, alignment int) int {
	if alignment <= 1 {
		return value
	}
	if !IsPowerOfTwo(alignment) {
		return (value + alignment - 1) / alignment * alignment
	}
	return (value + alignment - 1) &^ (alignment - 1)
}
