// Package regalloc implements the bitmap register allocator used by the ARM32
// instruction selector. Registers r0-r9 form the pool; every binding is
// tracked in an occupancy bitmap and an oldest-first resident list, and
// temporaries carry a lifetime interval computed by one linear scan.
package regalloc

import (
	"fmt"
	"math/bits"
	"sort"
	"strings"

	"github.com/orizon-lang/minic/internal/arm32"
	"github.com/orizon-lang/minic/internal/ir"
)

// NoReg is returned when no register can be provided.
const NoReg = arm32.NoReg

// Priority ranks how urgently a binding was requested. Lower numbers are
// more important; eviction only takes residents ranked strictly below the
// requester.
type Priority int

const (
	PriorityCallerSaved Priority = 1
	PriorityCalleeSaved Priority = 2
	PriorityReclaimed   Priority = 3
	PriorityTemp        Priority = 5
	PriorityNonTemp     Priority = 10
)

// Interval is the [first definition, last use] range of a value, in IR
// instruction indexes.
type Interval struct {
	Start int
	End   int
}

type resident struct {
	v    *ir.Value // nil for anonymous scratch
	reg  arm32.Reg
	seq  uint64
	held bool
}

// Allocator hands out pool registers to IR values.
type Allocator struct {
	occupied uint32
	used     uint32
	resident []*resident
	bound    map[*ir.Value]*resident
	seq      uint64

	lifetimes map[*ir.Value]Interval
	priority  map[*ir.Value]Priority

	// OnEvict is called before a value loses its register to eviction.
	OnEvict func(v *ir.Value, r arm32.Reg)
}

// New returns an allocator with an empty pool.
func New() *Allocator {
	return &Allocator{
		bound:     make(map[*ir.Value]*resident),
		lifetimes: make(map[*ir.Value]Interval),
		priority:  make(map[*ir.Value]Priority),
	}
}

func inPool(r arm32.Reg) bool { return r >= 0 && int(r) < arm32.NumAllocatable }

// Begin starts a new IR instruction: registers handed out during the
// previous one become evictable again.
func (a *Allocator) Begin() {
	for _, e := range a.resident {
		e.held = false
	}
}

// Hold protects the binding in r from eviction until the next Begin.
func (a *Allocator) Hold(r arm32.Reg) {
	if e := a.entry(r); e != nil {
		e.held = true
	}
}

// Lookup returns the register bound to v.
func (a *Allocator) Lookup(v *ir.Value) (arm32.Reg, bool) {
	if e, ok := a.bound[v]; ok {
		return e.reg, true
	}
	return NoReg, false
}

// Occupied reports whether r currently holds a binding.
func (a *Allocator) Occupied(r arm32.Reg) bool {
	return inPool(r) && a.occupied&(1<<uint(r)) != 0
}

// InUse returns the number of occupied pool registers.
func (a *Allocator) InUse() int { return bits.OnesCount32(a.occupied) }

// Used returns every register that has ever held a binding, ascending.
func (a *Allocator) Used() []arm32.Reg {
	var regs []arm32.Reg
	for r := arm32.Reg(0); int(r) < arm32.NumAllocatable; r++ {
		if a.used&(1<<uint(r)) != 0 {
			regs = append(regs, r)
		}
	}
	return regs
}

// Allocate binds v to a register. A bound value keeps its register; else
// preferred is taken if free, else the lowest free register, else the
// oldest evictable resident is evicted. v may be nil for anonymous scratch.
func (a *Allocator) Allocate(v *ir.Value, preferred arm32.Reg) arm32.Reg {
	if v != nil {
		if e, ok := a.bound[v]; ok {
			e.held = true
			return e.reg
		}
	}
	r := a.firstFree(0, arm32.NumAllocatable)
	if inPool(preferred) && !a.Occupied(preferred) {
		r = preferred
	}
	if r == NoReg {
		r = a.evict(oldestFirst, func(*resident) bool { return true })
	}
	if r == NoReg {
		return NoReg
	}
	if v != nil {
		if _, ok := a.priority[v]; !ok {
			a.priority[v] = classPriority(v)
		}
	}
	a.bind(v, r)
	return r
}

// AllocateFixed claims r for anonymous use, evicting whatever it holds.
func (a *Allocator) AllocateFixed(r arm32.Reg) arm32.Reg {
	if !inPool(r) {
		return NoReg
	}
	if e := a.entry(r); e != nil {
		if e.v == nil && e.held {
			return r
		}
		a.spill(e)
	}
	a.bind(nil, r)
	return r
}

// DynamicAllocate binds temporary v at instruction idx, preferring
// caller-saved registers, then callee-saved ones, then registers reclaimed
// from values whose lifetime has ended, then evicting a less important
// resident. It returns NoReg when all of that fails.
func (a *Allocator) DynamicAllocate(v *ir.Value, idx int) arm32.Reg {
	if e, ok := a.bound[v]; ok {
		e.held = true
		return e.reg
	}
	if r := a.firstFree(arm32.R0, arm32.R3+1); r != NoReg {
		return a.bindPri(v, r, PriorityCallerSaved)
	}
	if r := a.firstFree(arm32.R4, arm32.NumAllocatable); r != NoReg {
		return a.bindPri(v, r, PriorityCalleeSaved)
	}
	a.ReleaseExpired(idx)
	if r := a.firstFree(0, arm32.NumAllocatable); r != NoReg {
		return a.bindPri(v, r, PriorityReclaimed)
	}
	r := a.evict(lowestPriority(a), func(e *resident) bool {
		return a.priorityOf(e) > PriorityReclaimed
	})
	if r == NoReg {
		return NoReg
	}
	return a.bindPri(v, r, PriorityReclaimed)
}

// ReleaseExpired frees every unheld temporary that is not used after idx.
// Expired values are dead, so no spill callback runs.
func (a *Allocator) ReleaseExpired(idx int) int {
	n := 0
	for _, e := range append([]*resident(nil), a.resident...) {
		if e.held || e.v == nil || !e.v.IsTemp() {
			continue
		}
		if !a.WillBeUsedLater(e.v, idx) {
			a.release(e)
			n++
		}
	}
	return n
}

// Free releases v's register and forgets its bookkeeping. Freeing an
// unbound value is a no-op apart from clearing its lifetime and priority.
func (a *Allocator) Free(v *ir.Value) {
	if e, ok := a.bound[v]; ok {
		a.release(e)
	}
	delete(a.lifetimes, v)
	delete(a.priority, v)
}

// FreeReg releases whatever binding r holds and, like Free, forgets the
// lifetime and priority of the value it held.
func (a *Allocator) FreeReg(r arm32.Reg) {
	e := a.entry(r)
	if e == nil {
		return
	}
	a.release(e)
	if e.v != nil {
		delete(a.lifetimes, e.v)
		delete(a.priority, e.v)
	}
}

// FreeIf releases every binding, held or not, for which drop returns true.
// drop receives nil for anonymous scratch registers.
func (a *Allocator) FreeIf(drop func(v *ir.Value) bool) {
	for _, e := range append([]*resident(nil), a.resident...) {
		if drop(e.v) {
			a.release(e)
		}
	}
}

// Reset drops every binding without spilling. Lifetimes are kept.
func (a *Allocator) Reset() {
	a.occupied = 0
	a.resident = nil
	a.bound = make(map[*ir.Value]*resident)
}

// Analyze records a lifetime interval for every non-constant value in
// insts. A definition of an unseen value opens [i, i]; a use extends the
// interval to i, or opens [0, i] when the value has no earlier definition.
// Values staged by arg instructions stay live until the call that passes
// them.
func (a *Allocator) Analyze(insts []*ir.Instruction) {
	a.lifetimes = make(map[*ir.Value]Interval)
	staged := ir.StagedArgs(insts)
	for i, in := range insts {
		if in.Dead {
			continue
		}
		if d := in.Def(); trackable(d) {
			if _, seen := a.lifetimes[d]; !seen {
				a.lifetimes[d] = Interval{Start: i, End: i}
			}
		}
		for _, u := range append(in.Uses(), staged[in]...) {
			if !trackable(u) {
				continue
			}
			if iv, seen := a.lifetimes[u]; seen {
				iv.End = i
				a.lifetimes[u] = iv
			} else {
				a.lifetimes[u] = Interval{Start: 0, End: i}
			}
		}
	}
}

func trackable(v *ir.Value) bool {
	return v != nil && v.Class != ir.Const && v.Class != ir.Reg
}

// Lifetime returns the interval recorded for v.
func (a *Allocator) Lifetime(v *ir.Value) (Interval, bool) {
	iv, ok := a.lifetimes[v]
	return iv, ok
}

// WillBeUsedLater reports whether v is read after instruction idx.
func (a *Allocator) WillBeUsedLater(v *ir.Value, idx int) bool {
	iv, ok := a.lifetimes[v]
	return ok && idx < iv.End
}

// Priority returns the class recorded for v.
func (a *Allocator) Priority(v *ir.Value) Priority {
	if p, ok := a.priority[v]; ok {
		return p
	}
	return classPriority(v)
}

func classPriority(v *ir.Value) Priority {
	if v.IsTemp() {
		return PriorityTemp
	}
	return PriorityNonTemp
}

func (a *Allocator) priorityOf(e *resident) Priority {
	if e.v == nil {
		return PriorityNonTemp
	}
	return a.Priority(e.v)
}

func (a *Allocator) firstFree(lo, hi arm32.Reg) arm32.Reg {
	for r := lo; r < hi; r++ {
		if !a.Occupied(r) {
			return r
		}
	}
	return NoReg
}

func (a *Allocator) entry(r arm32.Reg) *resident {
	if !a.Occupied(r) {
		return nil
	}
	for _, e := range a.resident {
		if e.reg == r {
			return e
		}
	}
	return nil
}

func (a *Allocator) bindPri(v *ir.Value, r arm32.Reg, p Priority) arm32.Reg {
	a.priority[v] = p
	a.bind(v, r)
	return r
}

func (a *Allocator) bind(v *ir.Value, r arm32.Reg) {
	a.seq++
	e := &resident{v: v, reg: r, seq: a.seq, held: true}
	a.resident = append(a.resident, e)
	a.occupied |= 1 << uint(r)
	a.used |= 1 << uint(r)
	if v != nil {
		a.bound[v] = e
	}
}

func (a *Allocator) release(e *resident) {
	for i, x := range a.resident {
		if x == e {
			a.resident = append(a.resident[:i], a.resident[i+1:]...)
			break
		}
	}
	a.occupied &^= 1 << uint(e.reg)
	if e.v != nil {
		delete(a.bound, e.v)
	}
}

func (a *Allocator) spill(e *resident) {
	if e.v != nil && a.OnEvict != nil {
		a.OnEvict(e.v, e.reg)
	}
	a.release(e)
}

// better reports whether x is a preferable victim to y.
type better func(x, y *resident) bool

func oldestFirst(x, y *resident) bool { return x.seq < y.seq }

func lowestPriority(a *Allocator) better {
	return func(x, y *resident) bool {
		px, py := a.priorityOf(x), a.priorityOf(y)
		if px != py {
			return px > py
		}
		return x.seq < y.seq
	}
}

// evict removes the best eligible unheld resident under cmp and returns its
// register, or NoReg when nothing qualifies.
func (a *Allocator) evict(cmp better, eligible func(*resident) bool) arm32.Reg {
	var victim *resident
	for _, e := range a.resident {
		if e.held || !eligible(e) {
			continue
		}
		if victim == nil || cmp(e, victim) {
			victim = e
		}
	}
	if victim == nil {
		return NoReg
	}
	r := victim.reg
	a.spill(victim)
	return r
}

// String dumps the current bindings, one per line, by register.
func (a *Allocator) String() string {
	entries := append([]*resident(nil), a.resident...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].reg < entries[j].reg })
	var b strings.Builder
	fmt.Fprintf(&b, "in use: %d/%d\n", a.InUse(), arm32.NumAllocatable)
	for _, e := range entries {
		name := "<scratch>"
		if e.v != nil {
			name = e.v.String()
		}
		fmt.Fprintf(&b, "  %s -> %s (priority %d)\n", e.reg, name, a.priorityOf(e))
	}
	return b.String()
}
