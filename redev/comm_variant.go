package redev

import (
	"reflect"

	"github.com/scorec/redev-go/pg"
)

// DataType is the closed enum of payload element types a channel can carry.
// It exists for call sites that must pick the element type at runtime from
// metadata; fully typed code should use the generic CreateComm instead.
type DataType int

const (
	DataTypeInt8 DataType = iota
	DataTypeInt16
	DataTypeInt32
	DataTypeInt64
	DataTypeUint8
	DataTypeUint16
	DataTypeUint32
	DataTypeUint64
	DataTypeFloat
	DataTypeDouble
	DataTypeComplexFloat
	DataTypeComplexDouble
)

// DataTypeOf maps a supported element type to its enum tag.
func DataTypeOf[T pg.Element]() DataType {
	var z T
	switch reflect.TypeOf(z).Kind() {
	case reflect.Int8:
		return DataTypeInt8
	case reflect.Int16:
		return DataTypeInt16
	case reflect.Int32:
		return DataTypeInt32
	case reflect.Int64:
		return DataTypeInt64
	case reflect.Uint8:
		return DataTypeUint8
	case reflect.Uint16:
		return DataTypeUint16
	case reflect.Uint32:
		return DataTypeUint32
	case reflect.Uint64:
		return DataTypeUint64
	case reflect.Float32:
		return DataTypeFloat
	case reflect.Float64:
		return DataTypeDouble
	case reflect.Complex64:
		return DataTypeComplexFloat
	case reflect.Complex128:
		return DataTypeComplexDouble
	}
	alwaysAssert(false, "element type has no DataType tag")
	return 0
}

// CommVariant is a BidirectionalComm whose element type was chosen at
// runtime. Unwrap it with CommAs.
type CommVariant struct {
	Type DataType
	comm any
}

// CommAs unwraps a CommVariant into the typed BidirectionalComm it holds.
// A tag/type mismatch is fatal.
func CommAs[T pg.Element](v CommVariant) BidirectionalComm[T] {
	c, ok := v.comm.(BidirectionalComm[T])
	alwaysAssertf(ok, "comm variant holds tag %d, not the requested element type", v.Type)
	return c
}
