// Package stepio holds the step and variable data model shared by the BP4
// and SST engine drivers: element kinds, per-rank put records, the merged
// step image, and its gob codec. A step is the atomic unit of transfer; a
// reader observes either the whole step or none of it.
package stepio

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"reflect"

	"github.com/scorec/redev-go/pg"
)

// Kind identifies the element type of a variable on the wire.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindComplex64
	KindComplex128
	KindBool
	KindString
)

// Size reports the element size of k in bytes. Strings are stored as raw
// bytes with Shape equal to the byte length.
func (k Kind) Size() int {
	switch k {
	case KindInt8, KindUint8, KindBool, KindString:
		return 1
	case KindInt16, KindUint16:
		return 2
	case KindInt32, KindUint32, KindFloat32:
		return 4
	case KindInt64, KindUint64, KindFloat64:
		return 8
	case KindComplex64:
		return 8
	case KindComplex128:
		return 16
	}
	return 0
}

// KindOf maps a supported element type to its wire kind. The mapping is
// total over pg.Element.
func KindOf[T pg.Element]() Kind {
	var z T
	switch reflect.TypeOf(z).Kind() {
	case reflect.Int8:
		return KindInt8
	case reflect.Int16:
		return KindInt16
	case reflect.Int32:
		return KindInt32
	case reflect.Int64:
		return KindInt64
	case reflect.Uint8:
		return KindUint8
	case reflect.Uint16:
		return KindUint16
	case reflect.Uint32:
		return KindUint32
	case reflect.Uint64:
		return KindUint64
	case reflect.Float32:
		return KindFloat32
	case reflect.Float64:
		return KindFloat64
	case reflect.Complex64:
		return KindComplex64
	case reflect.Complex128:
		return KindComplex128
	case reflect.Bool:
		return KindBool
	}
	return KindInvalid
}

// StepStatus is the result of a reader's BeginStep.
type StepStatus int

const (
	StepOK StepStatus = iota
	StepNotReady
	StepEndOfStream
	StepOtherError
)

func (s StepStatus) String() string {
	switch s {
	case StepOK:
		return "OK"
	case StepNotReady:
		return "NotReady"
	case StepEndOfStream:
		return "EndOfStream"
	}
	return "OtherError"
}

// PutRecord is one rank's contribution to a variable within a step: a
// contiguous [Start, Start+Count) element range of a variable with global
// length Shape.
type PutRecord struct {
	Name  string
	Kind  Kind
	Shape uint64
	Start uint64
	Count uint64
	Data  []byte
}

// VarBlock is the merged image of one variable within a published step.
type VarBlock struct {
	Kind  Kind
	Shape uint64
	Data  []byte
}

// Step is the merged image of all variables written during one step.
type Step struct {
	Vars map[string]*VarBlock
}

// Merge folds per-rank put records into a step image. Records for the same
// variable must agree on kind and shape; ranges from different ranks are
// disjoint by construction of the senders' offsets.
func Merge(recs []PutRecord) (*Step, error) {
	st := &Step{Vars: make(map[string]*VarBlock)}
	for _, r := range recs {
		blk, ok := st.Vars[r.Name]
		if !ok {
			blk = &VarBlock{Kind: r.Kind, Shape: r.Shape, Data: make([]byte, r.Shape*uint64(r.Kind.Size()))}
			st.Vars[r.Name] = blk
		}
		if blk.Kind != r.Kind {
			return nil, fmt.Errorf("stepio: variable %q written with kinds %d and %d", r.Name, blk.Kind, r.Kind)
		}
		if blk.Shape != r.Shape {
			return nil, fmt.Errorf("stepio: variable %q written with shapes %d and %d", r.Name, blk.Shape, r.Shape)
		}
		sz := uint64(r.Kind.Size())
		end := (r.Start + r.Count) * sz
		if end > uint64(len(blk.Data)) {
			return nil, fmt.Errorf("stepio: variable %q range [%d,%d) exceeds shape %d", r.Name, r.Start, r.Start+r.Count, r.Shape)
		}
		copy(blk.Data[r.Start*sz:end], r.Data)
	}
	return st, nil
}

// Encode serializes a record batch for the end-of-step gather.
func Encode(recs []PutRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(recs); err != nil {
		return nil, fmt.Errorf("stepio: encode records: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode.
func Decode(b []byte) ([]PutRecord, error) {
	var recs []PutRecord
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&recs); err != nil {
		return nil, fmt.Errorf("stepio: decode records: %w", err)
	}
	return recs, nil
}

// EncodeStep serializes a merged step image for the BP4 step file.
func EncodeStep(st *Step) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(st); err != nil {
		return nil, fmt.Errorf("stepio: encode step: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeStep is the inverse of EncodeStep.
func DecodeStep(b []byte) (*Step, error) {
	st := &Step{}
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(st); err != nil {
		return nil, fmt.Errorf("stepio: decode step: %w", err)
	}
	return st, nil
}

// Driver is the engine contract the adios package wraps. A driver instance
// belongs to one rank of the opening group and is either a writer or a
// reader for its whole life.
type Driver interface {
	// BeginStep opens the next step. Writers always return StepOK; readers
	// block (or poll, per transport) until the step is visible.
	BeginStep() StepStatus
	// EndStep publishes the step (writers, collective over the group) or
	// retires it (readers).
	EndStep() error
	// Put stages one record into the open step. Deferred puts capture the
	// caller's buffer and are materialized by PerformPuts or EndStep.
	Put(rec PutRecord, deferred bool)
	// PerformPuts materializes deferred puts.
	PerformPuts()
	// Inquire looks up a variable in the reader's current step.
	Inquire(name string) (*VarBlock, bool)
	// Get copies [start, start+count) elements of the named variable into
	// dst. Deferred gets run at PerformGets.
	Get(name string, kind Kind, start, count uint64, dst []byte, deferred bool) error
	// PerformGets executes deferred gets.
	PerformGets() error
	// Close ends the stream. A writer's close publishes end-of-stream.
	Close() error
}
