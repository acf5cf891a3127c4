package redev

import "github.com/scorec/redev-go/pg"

// noOpChannel backs channels on non-participating ranks: phases toggle but
// touch no engine, and every communicator is a no-op pair.
type noOpChannel struct{}

func (noOpChannel) beginSendPhase()    {}
func (noOpChannel) endSendPhase()      {}
func (noOpChannel) beginReceivePhase() {}
func (noOpChannel) endReceivePhase()   {}
func (noOpChannel) close()             {}

func (noOpChannel) createComm(name string, comm pg.Comm, dt DataType, ct CommType) CommVariant {
	switch dt {
	case DataTypeInt8:
		return noOpVariant[int8](dt)
	case DataTypeInt16:
		return noOpVariant[int16](dt)
	case DataTypeInt32:
		return noOpVariant[int32](dt)
	case DataTypeInt64:
		return noOpVariant[int64](dt)
	case DataTypeUint8:
		return noOpVariant[uint8](dt)
	case DataTypeUint16:
		return noOpVariant[uint16](dt)
	case DataTypeUint32:
		return noOpVariant[uint32](dt)
	case DataTypeUint64:
		return noOpVariant[uint64](dt)
	case DataTypeFloat:
		return noOpVariant[float32](dt)
	case DataTypeDouble:
		return noOpVariant[float64](dt)
	case DataTypeComplexFloat:
		return noOpVariant[complex64](dt)
	case DataTypeComplexDouble:
		return noOpVariant[complex128](dt)
	}
	alwaysAssertf(false, "unknown data type %d", dt)
	return CommVariant{}
}

func noOpVariant[T pg.Element](dt DataType) CommVariant {
	return CommVariant{Type: dt, comm: NewBidirectionalComm[T](NoOpComm[T]{}, NoOpComm[T]{})}
}
