package redev

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/scorec/redev-go/adios"
	"github.com/scorec/redev-go/pg"
	"github.com/scorec/redev-go/profile"
)

const (
	partitionTypeVarName  = "redev partition type"
	versionVarName        = "redev git hash"
	serverCommSizeVarName = "redev server communicator size"
	clientCommSizeVarName = "redev client communicator size"
)

// engineCreationWait is how long a BP4 reader-open waits for the peer's
// writer to produce the stream file (see waitForEngineCreation).
const engineCreationWait = 2 * time.Second

// adiosChannel is the engine-backed channel implementation: a pair of
// streams (server-to-client and client-to-server) plus the setup handshake
// that distributes the partition and both comm sizes.
type adiosChannel struct {
	s2cIO  *adios.IO
	c2sIO  *adios.IO
	s2cEng *adios.Engine
	c2sEng *adios.Engine

	numClientRanks LO
	numServerRanks LO

	comm        pg.Comm
	processType ProcessType
	rank        int
	partition   *Partition
	log         *zap.Logger
}

func newAdiosChannel(ad *adios.Adios, comm pg.Comm, name string, params adios.Params,
	transportType TransportType, processType ProcessType, partition *Partition,
	path string, noClients bool, log *zap.Logger) (*adiosChannel, error) {
	defer profile.Timer("AdiosChannel.New")()
	_, span := tracer().Start(context.Background(), "redev.ChannelSetup",
		trace.WithAttributes(attribute.String("channel", name)))
	defer span.End()

	c := &adiosChannel{
		comm:        comm,
		processType: processType,
		rank:        comm.Rank(),
		partition:   partition,
		log:         log,
	}
	s2cName := path + name + "_s2c"
	c2sName := path + name + "_c2s"
	c.s2cIO = ad.DeclareIO(s2cName)
	c.c2sIO = ad.DeclareIO(c2sName)
	if transportType == TransportSST && noClients {
		log.Info("no clients will connect; downgrading transport from SST to BP4",
			zap.String("channel", name))
		transportType = TransportBP4
	}
	var engineType string
	switch transportType {
	case TransportBP4:
		engineType = "BP4"
		s2cName += ".bp"
		c2sName += ".bp"
	case TransportSST:
		engineType = "SST"
	default:
		return nil, fmt.Errorf("redev: unknown transport type %d", transportType)
	}
	c.s2cIO.SetEngine(engineType)
	c.c2sIO.SetEngine(engineType)
	c.s2cIO.SetParameters(params)
	c.c2sIO.SetParameters(params)
	alwaysAssert(IsSameCaseInsensitive(c.s2cIO.EngineType(), c.c2sIO.EngineType()),
		"engine types differ between directions")

	var err error
	switch transportType {
	case TransportSST:
		err = c.openEnginesSST(noClients, s2cName, c2sName)
	case TransportBP4:
		err = c.openEnginesBP4(noClients, s2cName, c2sName)
	}
	if err != nil {
		return nil, err
	}

	if err := c.setup(noClients); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("serverRanks", int(c.numServerRanks)),
		attribute.Int("clientRanks", int(c.numClientRanks)))
	return c, nil
}

// openEnginesBP4 opens both directions under the buffered-file discipline:
// writer opens never block, so both sides open their writers first, wait
// for the peer's stream to become visible, then open their readers.
func (c *adiosChannel) openEnginesBP4(noClients bool, s2cName, c2sName string) error {
	var err error
	switch c.processType {
	case ProcessTypeServer:
		if c.s2cEng, err = c.s2cIO.Open(s2cName, adios.OpenModeWrite, c.comm); err != nil {
			return err
		}
		c.waitForEngineCreation(c.c2sIO)
		if !noClients {
			if c.c2sEng, err = c.c2sIO.Open(c2sName, adios.OpenModeRead, c.comm); err != nil {
				return err
			}
		}
	case ProcessTypeClient:
		if c.c2sEng, err = c.c2sIO.Open(c2sName, adios.OpenModeWrite, c.comm); err != nil {
			return err
		}
		c.waitForEngineCreation(c.s2cIO)
		if c.s2cEng, err = c.s2cIO.Open(s2cName, adios.OpenModeRead, c.comm); err != nil {
			return err
		}
	}
	return nil
}

// openEnginesSST opens both directions under the streaming discipline:
// opens block until the peer's counterpart open, so the two sides must pair
// their opens in the same order, s2c first and c2s second. Collapsing this
// into the BP4 path would hide the deadlock hazard.
func (c *adiosChannel) openEnginesSST(noClients bool, s2cName, c2sName string) error {
	var err error
	switch c.processType {
	case ProcessTypeServer:
		if c.s2cEng, err = c.s2cIO.Open(s2cName, adios.OpenModeWrite, c.comm); err != nil {
			return err
		}
		if !noClients {
			if c.c2sEng, err = c.c2sIO.Open(c2sName, adios.OpenModeRead, c.comm); err != nil {
				return err
			}
		}
	case ProcessTypeClient:
		if c.s2cEng, err = c.s2cIO.Open(s2cName, adios.OpenModeRead, c.comm); err != nil {
			return err
		}
		if c.c2sEng, err = c.c2sIO.Open(c2sName, adios.OpenModeWrite, c.comm); err != nil {
			return err
		}
	}
	return nil
}

// waitForEngineCreation gives a BP4 writer time to produce its stream file
// before the peer opens it for reading. With streaming mode and an open
// timeout configured (or the SST engine) the substrate handles the wait
// itself. This sleep is a pragmatic workaround for BP4's non-blocking open,
// not a correctness primitive.
func (c *adiosChannel) waitForEngineCreation(io *adios.IO) {
	params := io.Parameters()
	streaming, _ := params.Get("Streaming")
	timeoutSecs, _ := params.Get("OpenTimeoutSecs")
	if IsSameCaseInsensitive(streaming, "ON") && positiveInt(timeoutSecs) {
		return
	}
	if IsSameCaseInsensitive(io.EngineType(), "SST") {
		return
	}
	c.log.Debug("waiting for peer engine creation", zap.String("io", io.Name()))
	time.Sleep(engineCreationWait)
}

func positiveInt(s string) bool {
	n := 0
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return false
	}
	return n > 0
}

// setup runs the five-item handshake: partition type tag, build identity,
// partition payload, server comm size (all within one s2c step), then the
// client comm size over c2s. Any mismatch is fatal; there is no partial
// recovery.
func (c *adiosChannel) setup(noClients bool) error {
	defer profile.Timer("AdiosChannel.Setup")()
	switch c.processType {
	case ProcessTypeServer:
		alwaysAssert(c.s2cEng.BeginStep() == adios.StepStatusOK, "setup send step")
		if c.rank == 0 {
			c.sendPartitionTypeToClient()
			adios.PutString(c.s2cEng, versionVarName, buildIdentity())
			(*c.partition).Write(c.s2cEng, c.s2cIO)
			v := adios.DefineVariable[LO](c.s2cIO, serverCommSizeVarName, 1, 0, 1)
			adios.Put(c.s2cEng, v, LOs{LO(c.comm.Size())}, adios.ModeSynchronous)
		}
		if err := c.s2cEng.EndStep(); err != nil {
			return err
		}
		c.numServerRanks = LO(c.comm.Size())
		if noClients {
			c.numClientRanks = 0
			return nil
		}
		alwaysAssert(c.c2sEng.BeginStep() == adios.StepStatusOK, "setup receive step")
		size := make(LOs, 1)
		if c.rank == 0 {
			c.readCommSize(c.c2sEng, clientCommSizeVarName, size)
		}
		pg.Bcast(c.comm, size, 0)
		c.numClientRanks = size[0]
		return c.c2sEng.EndStep()
	case ProcessTypeClient:
		alwaysAssert(c.s2cEng.BeginStep() == adios.StepStatusOK, "setup receive step")
		index := make([]uint64, 1)
		if c.rank == 0 {
			c.readPartitionType(index)
		}
		pg.Bcast(c.comm, index, 0)
		c.constructPartitionFromIndex(index[0])
		if c.rank == 0 {
			c.checkVersion()
			(*c.partition).Read(c.s2cEng, c.s2cIO)
		}
		(*c.partition).Broadcast(c.comm, 0)
		size := make(LOs, 1)
		if c.rank == 0 {
			c.readCommSize(c.s2cEng, serverCommSizeVarName, size)
		}
		pg.Bcast(c.comm, size, 0)
		c.numServerRanks = size[0]
		if err := c.s2cEng.EndStep(); err != nil {
			return err
		}
		alwaysAssert(c.c2sEng.BeginStep() == adios.StepStatusOK, "setup send step")
		if c.rank == 0 {
			v := adios.DefineVariable[LO](c.c2sIO, clientCommSizeVarName, 1, 0, 1)
			adios.Put(c.c2sEng, v, LOs{LO(c.comm.Size())}, adios.ModeSynchronous)
		}
		c.numClientRanks = LO(c.comm.Size())
		return c.c2sEng.EndStep()
	}
	return fmt.Errorf("redev: unknown process type %d", c.processType)
}

// sendPartitionTypeToClient writes the active partition variant's wire tag.
func (c *adiosChannel) sendPartitionTypeToClient() {
	v := adios.DefineVariable[uint64](c.s2cIO, partitionTypeVarName, 1, 0, 1)
	adios.Put(c.s2cEng, v, []uint64{PartitionIndex(*c.partition)}, adios.ModeSynchronous)
}

func (c *adiosChannel) readPartitionType(index []uint64) {
	v := adios.InquireVariable[uint64](c.s2cEng, partitionTypeVarName)
	alwaysAssert(v != nil, "partition type variable not present")
	err := adios.Get(c.s2cEng, v, index, adios.ModeSynchronous)
	alwaysAssert(err == nil, "partition type read")
}

// constructPartitionFromIndex swaps the held variant for the empty variant
// matching the server's tag, but only when the held variant mismatches.
func (c *adiosChannel) constructPartitionFromIndex(index uint64) {
	if PartitionIndex(*c.partition) != index {
		*c.partition = partitionFromIndex(index)
	}
}

// checkVersion asserts the two sides were built from the same revision.
func (c *adiosChannel) checkVersion() {
	server, err := adios.GetString(c.s2cEng, versionVarName)
	alwaysAssert(err == nil, "version read")
	alwaysAssertf(server == buildIdentity(),
		"version mismatch: server %q, client %q", server, buildIdentity())
}

func (c *adiosChannel) readCommSize(eng *adios.Engine, name string, size LOs) {
	v := adios.InquireVariable[LO](eng, name)
	alwaysAssertf(v != nil, "%s variable not present", name)
	err := adios.Get(eng, v, size, adios.ModeSynchronous)
	alwaysAssertf(err == nil, "%s read", name)
}

func (c *adiosChannel) sendEngine() *adios.Engine {
	if c.processType == ProcessTypeClient {
		return c.c2sEng
	}
	return c.s2cEng
}

func (c *adiosChannel) recvEngine() *adios.Engine {
	if c.processType == ProcessTypeClient {
		return c.s2cEng
	}
	return c.c2sEng
}

func (c *adiosChannel) beginSendPhase() {
	eng := c.sendEngine()
	alwaysAssert(eng != nil, "send direction not open")
	alwaysAssert(eng.BeginStep() == adios.StepStatusOK, "send step begin")
}

func (c *adiosChannel) endSendPhase() {
	err := c.sendEngine().EndStep()
	alwaysAssert(err == nil, "send step end")
}

func (c *adiosChannel) beginReceivePhase() {
	eng := c.recvEngine()
	alwaysAssert(eng != nil, "receive direction not open (noClients channel)")
	alwaysAssert(eng.BeginStep() == adios.StepStatusOK, "receive step begin")
}

func (c *adiosChannel) endReceivePhase() {
	err := c.recvEngine().EndStep()
	alwaysAssert(err == nil, "receive step end")
}

func (c *adiosChannel) createComm(name string, comm pg.Comm, dt DataType, ct CommType) CommVariant {
	switch dt {
	case DataTypeInt8:
		return makeComm[int8](c, name, comm, dt, ct)
	case DataTypeInt16:
		return makeComm[int16](c, name, comm, dt, ct)
	case DataTypeInt32:
		return makeComm[int32](c, name, comm, dt, ct)
	case DataTypeInt64:
		return makeComm[int64](c, name, comm, dt, ct)
	case DataTypeUint8:
		return makeComm[uint8](c, name, comm, dt, ct)
	case DataTypeUint16:
		return makeComm[uint16](c, name, comm, dt, ct)
	case DataTypeUint32:
		return makeComm[uint32](c, name, comm, dt, ct)
	case DataTypeUint64:
		return makeComm[uint64](c, name, comm, dt, ct)
	case DataTypeFloat:
		return makeComm[float32](c, name, comm, dt, ct)
	case DataTypeDouble:
		return makeComm[float64](c, name, comm, dt, ct)
	case DataTypeComplexFloat:
		return makeComm[complex64](c, name, comm, dt, ct)
	case DataTypeComplexDouble:
		return makeComm[complex128](c, name, comm, dt, ct)
	}
	alwaysAssertf(false, "unknown data type %d", dt)
	return CommVariant{}
}

// makeComm builds the direction pair for one element type. The client's
// sender is c2s and receiver is s2c; the server's flip. A direction without
// an open engine (noClients) degrades to a no-op.
func makeComm[T pg.Element](c *adiosChannel, name string, comm pg.Comm, dt DataType, ct CommType) CommVariant {
	if comm == nil {
		return CommVariant{Type: dt, comm: NewBidirectionalComm[T](NoOpComm[T]{}, NoOpComm[T]{})}
	}
	var s2c, c2s Communicator[T]
	s2c = NoOpComm[T]{}
	c2s = NoOpComm[T]{}
	switch ct {
	case CommPtn:
		if c.s2cEng != nil {
			s2c = NewAdiosComm[T](comm, c.numClientRanks, c.s2cEng, c.s2cIO, name)
		}
		if c.c2sEng != nil {
			c2s = NewAdiosComm[T](comm, c.numServerRanks, c.c2sEng, c.c2sIO, name)
		}
	case CommGlobal:
		if c.s2cEng != nil {
			s2c = NewAdiosGlobalComm[T](comm, c.s2cEng, c.s2cIO, name)
		}
		if c.c2sEng != nil {
			c2s = NewAdiosGlobalComm[T](comm, c.c2sEng, c.c2sIO, name)
		}
	}
	if c.processType == ProcessTypeClient {
		return CommVariant{Type: dt, comm: NewBidirectionalComm[T](c2s, s2c)}
	}
	return CommVariant{Type: dt, comm: NewBidirectionalComm[T](s2c, c2s)}
}

func (c *adiosChannel) close() {
	if c.s2cEng != nil {
		if err := c.s2cEng.Close(); err != nil {
			c.log.Warn("closing s2c engine", zap.Error(err))
		}
		c.s2cEng = nil
	}
	if c.c2sEng != nil {
		if err := c.c2sEng.Close(); err != nil {
			c.log.Warn("closing c2s engine", zap.Error(err))
		}
		c.c2sEng = nil
	}
}
