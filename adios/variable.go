package adios

import (
	"fmt"

	"github.com/scorec/redev-go/internal/rawbytes"
	"github.com/scorec/redev-go/internal/stepio"
	"github.com/scorec/redev-go/pg"
)

// Variable describes a one-dimensional typed variable: a global shape plus
// this rank's start/count window. Irregular variables (per-rank windows that
// change put to put) are defined with a zero window and positioned with
// SetSelection before each Put or Get.
type Variable[T pg.Element] struct {
	name         string
	shape        uint64
	start, count uint64
	selSet       bool
	selStart     uint64
	selCount     uint64
}

// DefineVariable declares a variable for writing. start and count may be
// zero for irregular variables whose windows are chosen per put via
// SetSelection.
func DefineVariable[T pg.Element](io *IO, name string, shape, start, count uint64) *Variable[T] {
	_ = io
	return &Variable[T]{name: name, shape: shape, start: start, count: count}
}

// InquireVariable looks a variable up in the reader's current step; nil if
// the step does not carry it or the element type mismatches.
func InquireVariable[T pg.Element](eng *Engine, name string) *Variable[T] {
	blk, ok := eng.drv.Inquire(name)
	if !ok || blk.Kind != stepio.KindOf[T]() {
		return nil
	}
	return &Variable[T]{name: name, shape: blk.Shape}
}

// Name returns the variable's on-wire name.
func (v *Variable[T]) Name() string { return v.name }

// Shape returns the variable's global length in elements.
func (v *Variable[T]) Shape() uint64 { return v.shape }

// SetSelection positions the next Put or Get at [start, start+count).
func (v *Variable[T]) SetSelection(start, count uint64) {
	v.selSet = true
	v.selStart = start
	v.selCount = count
}

func (v *Variable[T]) window(dataLen int) (start, count uint64) {
	if v.selSet {
		return v.selStart, v.selCount
	}
	if v.count != 0 {
		return v.start, v.count
	}
	return v.start, uint64(dataLen)
}

// Put stages data into the variable's current window within the open step.
func Put[T pg.Element](eng *Engine, v *Variable[T], data []T, mode Mode) {
	start, count := v.window(len(data))
	rec := stepio.PutRecord{
		Name:  v.name,
		Kind:  stepio.KindOf[T](),
		Shape: v.shape,
		Start: start,
		Count: count,
		Data:  rawbytes.Of(data[:count]),
	}
	eng.drv.Put(rec, mode == ModeDeferred)
}

// Get reads the variable's current window from the open step into out.
func Get[T pg.Element](eng *Engine, v *Variable[T], out []T, mode Mode) error {
	start, count := v.window(len(out))
	return eng.drv.Get(v.name, stepio.KindOf[T](), start, count, rawbytes.Of(out[:count]), mode == ModeDeferred)
}

// PutString stages a string variable. Strings are always synchronous.
func PutString(eng *Engine, name, value string) {
	rec := stepio.PutRecord{
		Name:  name,
		Kind:  stepio.KindString,
		Shape: uint64(len(value)),
		Start: 0,
		Count: uint64(len(value)),
		Data:  []byte(value),
	}
	eng.drv.Put(rec, false)
}

// GetString reads a string variable from the open step.
func GetString(eng *Engine, name string) (string, error) {
	blk, ok := eng.drv.Inquire(name)
	if !ok {
		return "", fmt.Errorf("adios: string variable %q not present in step", name)
	}
	if blk.Kind != stepio.KindString {
		return "", fmt.Errorf("adios: variable %q is not a string", name)
	}
	return string(blk.Data), nil
}
