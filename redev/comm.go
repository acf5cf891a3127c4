package redev

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/scorec/redev-go/adios"
	"github.com/scorec/redev-go/pg"
	"github.com/scorec/redev-go/profile"
)

func tracer() trace.Tracer {
	return otel.Tracer("github.com/scorec/redev-go/redev")
}

// Communicator moves typed payloads in one direction of a channel.
type Communicator[T pg.Element] interface {
	// SetOutMessageLayout stores the outbound layout; subsequent sends
	// reuse it.
	SetOutMessageLayout(dest, offsets LOs)
	// Send transmits msgs within the containing channel's send phase.
	Send(msgs []T, mode adios.Mode)
	// Recv returns this rank's slice of the incoming payload within the
	// containing channel's receive phase.
	Recv(mode adios.Mode) []T
	// GetInMessageLayout returns the cached receive-side layout; valid
	// after the first receive.
	GetInMessageLayout() InMessageLayout
}

// AdiosComm is the layout-aware communicator for one direction of a
// channel. The per-rank message layout is negotiated out-of-band on the
// first send: three variables travel per message, the per-sender
// degree-start matrix (regular), the per-receiver offset array (written by
// sender rank 0), and the payload itself (irregular).
type AdiosComm[T pg.Element] struct {
	comm     pg.Comm
	rdvRanks int
	eng      *adios.Engine
	io       *adios.IO
	name     string

	out    outMessageLayout
	outSet bool

	rdvVar      *adios.Variable[T]
	srcRanksVar *adios.Variable[GO]
	offsetsVar  *adios.Variable[GO]

	inMsg InMessageLayout
}

var _ Communicator[LO] = (*AdiosComm[LO])(nil)

// NewAdiosComm creates a communicator over an open engine. rdvRanks is the
// rank count of the receiving side.
func NewAdiosComm[T pg.Element](comm pg.Comm, rdvRanks LO, eng *adios.Engine, io *adios.IO, name string) *AdiosComm[T] {
	return &AdiosComm[T]{comm: comm, rdvRanks: int(rdvRanks), eng: eng, io: io, name: name}
}

// SetOutMessageLayout stores the outbound layout. offsets has one more
// entry than dest and is monotonically non-decreasing; offsets[len(dest)]
// is the total payload length.
func (c *AdiosComm[T]) SetOutMessageLayout(dest, offsets LOs) {
	defer profile.Timer("AdiosComm.SetOutMessageLayout")()
	alwaysAssertf(len(offsets) == len(dest)+1,
		"offsets length %d does not bound %d segments", len(offsets), len(dest))
	c.out = outMessageLayout{
		dest:    append(LOs(nil), dest...),
		offsets: append(LOs(nil), offsets...),
	}
	c.outSet = true
}

// Send transmits msgs according to the stored layout. The first send
// negotiates the global layout (degree exchange, offset scan) and defines
// the metadata variables; subsequent sends only move the payload. All puts
// land in the channel's current send step, so a receiver observes the whole
// message or none of it.
func (c *AdiosComm[T]) Send(msgs []T, mode adios.Mode) {
	defer profile.Timer("AdiosComm.Send")()
	_, span := tracer().Start(context.Background(), "redev.Send",
		trace.WithAttributes(attribute.String("comm", c.name)))
	defer span.End()
	alwaysAssert(c.outSet, "Send before SetOutMessageLayout")
	rank := c.comm.Rank()
	commSz := c.comm.Size()

	// per-destination degree of this rank's contribution
	degree := make(GOs, c.rdvRanks)
	for i, destRank := range c.out.dest {
		alwaysAssertf(destRank >= 0 && int(destRank) < c.rdvRanks,
			"destination rank %d outside receiver comm of size %d", destRank, c.rdvRanks)
		degree[destRank] += GO(c.out.offsets[i+1] - c.out.offsets[i])
	}
	// where this rank's contribution begins within each receiver's inbox
	rdvRankStart := pg.ExscanSum(c.comm, degree)
	// total inbox size of each receiver
	gDegree := pg.AllreduceSum(c.comm, degree)
	var gDegreeTot GO
	for _, d := range gDegree {
		gDegreeTot += d
	}
	// global payload offset of each receiver's inbox
	gStart := ExclusiveScan(gDegree, 0)

	// The payload has a different extent on each rank (irregular), so it is
	// defined with the global shape only and positioned per segment below.
	if c.rdvVar == nil {
		c.rdvVar = adios.DefineVariable[T](c.io, c.name, uint64(gDegreeTot), 0, 0)
	}

	offsets := append(append(GOs(nil), gStart...), gDegreeTot)
	if rank == 0 && c.offsetsVar == nil {
		n := uint64(len(offsets))
		c.offsetsVar = adios.DefineVariable[GO](c.io, c.name+"_offsets", n, 0, n)
		adios.Put(c.eng, c.offsetsVar, offsets, mode)
	}

	// The degree-start matrix is regular: each sender owns one row.
	if c.srcRanksVar == nil {
		c.srcRanksVar = adios.DefineVariable[GO](c.io, c.name+"_srcRanks",
			uint64(commSz*c.rdvRanks), uint64(c.rdvRanks*rank), uint64(c.rdvRanks))
		adios.Put(c.eng, c.srcRanksVar, rdvRankStart, mode)
	}

	for i, destRank := range c.out.dest {
		lStart := gStart[destRank] + rdvRankStart[destRank]
		lCount := GO(c.out.offsets[i+1] - c.out.offsets[i])
		if lCount > 0 {
			c.rdvVar.SetSelection(uint64(lStart), uint64(lCount))
			adios.Put(c.eng, c.rdvVar, msgs[c.out.offsets[i]:c.out.offsets[i+1]], mode)
		}
	}
	c.eng.PerformPuts()
}

// Recv returns this rank's slice of the incoming payload. The first
// receive reads the metadata variables to discover the layout; later
// receives in the same layout skip the metadata and read only the payload.
func (c *AdiosComm[T]) Recv(mode adios.Mode) []T {
	defer profile.Timer("AdiosComm.Recv")()
	_, span := tracer().Start(context.Background(), "redev.Recv",
		trace.WithAttributes(attribute.String("comm", c.name)))
	defer span.End()
	rank := c.comm.Rank()

	if !c.inMsg.KnownSizes {
		srcRanksVar := adios.InquireVariable[GO](c.eng, c.name+"_srcRanks")
		alwaysAssert(srcRanksVar != nil, "source rank offsets variable not present")
		offsetsVar := adios.InquireVariable[GO](c.eng, c.name+"_offsets")
		alwaysAssert(offsetsVar != nil, "destination offsets variable not present")

		offSz := offsetsVar.Shape()
		c.inMsg.Offset = make(GOs, offSz)
		offsetsVar.SetSelection(0, offSz)
		err := adios.Get(c.eng, offsetsVar, c.inMsg.Offset, mode)
		alwaysAssert(err == nil, "destination offsets read")

		srSz := srcRanksVar.Shape()
		c.inMsg.SrcRanks = make(GOs, srSz)
		srcRanksVar.SetSelection(0, srSz)
		err = adios.Get(c.eng, srcRanksVar, c.inMsg.SrcRanks, mode)
		alwaysAssert(err == nil, "source rank offsets read")

		err = c.eng.PerformGets()
		alwaysAssert(err == nil, "layout metadata flush")
		c.inMsg.Start = int(c.inMsg.Offset[rank])
		c.inMsg.Count = int(c.inMsg.Offset[rank+1]) - c.inMsg.Start
		c.inMsg.KnownSizes = true
	}

	msgs := make([]T, c.inMsg.Count)
	if c.inMsg.Count > 0 {
		msgsVar := adios.InquireVariable[T](c.eng, c.name)
		alwaysAssert(msgsVar != nil, "payload variable not present")
		msgsVar.SetSelection(uint64(c.inMsg.Start), uint64(c.inMsg.Count))
		err := adios.Get(c.eng, msgsVar, msgs, mode)
		alwaysAssert(err == nil, "payload read")
	}
	err := c.eng.PerformGets()
	alwaysAssert(err == nil, "payload flush")
	return msgs
}

// GetInMessageLayout returns the cached receive-side layout.
func (c *AdiosComm[T]) GetInMessageLayout() InMessageLayout {
	return c.inMsg
}

// AdiosGlobalComm is the degenerate single-writer, single-reader fast path
// for aggregate signals: rank 0 writes one variable holding the entire
// payload, rank 0 of the other side reads it, and no metadata travels.
type AdiosGlobalComm[T pg.Element] struct {
	comm pg.Comm
	eng  *adios.Engine
	io   *adios.IO
	name string
	v    *adios.Variable[T]
}

var _ Communicator[LO] = (*AdiosGlobalComm[LO])(nil)

// NewAdiosGlobalComm creates the global fast-path communicator.
func NewAdiosGlobalComm[T pg.Element](comm pg.Comm, eng *adios.Engine, io *adios.IO, name string) *AdiosGlobalComm[T] {
	return &AdiosGlobalComm[T]{comm: comm, eng: eng, io: io, name: name}
}

// SetOutMessageLayout is a no-op: the global communicator has no layout.
func (c *AdiosGlobalComm[T]) SetOutMessageLayout(dest, offsets LOs) {}

// Send writes the whole payload from rank 0; other ranks contribute
// nothing. The payload length is fixed by the first send.
func (c *AdiosGlobalComm[T]) Send(msgs []T, mode adios.Mode) {
	defer profile.Timer("AdiosGlobalComm.Send")()
	if c.comm.Rank() == 0 {
		if c.v == nil {
			n := uint64(len(msgs))
			c.v = adios.DefineVariable[T](c.io, c.name, n, 0, n)
		}
		alwaysAssertf(uint64(len(msgs)) == c.v.Shape(),
			"global payload length changed from %d to %d", c.v.Shape(), len(msgs))
		adios.Put(c.eng, c.v, msgs, mode)
	}
	c.eng.PerformPuts()
}

// Recv reads the whole payload on rank 0; other ranks return an empty
// slice.
func (c *AdiosGlobalComm[T]) Recv(mode adios.Mode) []T {
	defer profile.Timer("AdiosGlobalComm.Recv")()
	if c.comm.Rank() != 0 {
		return nil
	}
	v := adios.InquireVariable[T](c.eng, c.name)
	alwaysAssert(v != nil, "global payload variable not present")
	msgs := make([]T, v.Shape())
	v.SetSelection(0, v.Shape())
	err := adios.Get(c.eng, v, msgs, mode)
	alwaysAssert(err == nil, "global payload read")
	err = c.eng.PerformGets()
	alwaysAssert(err == nil, "global payload flush")
	return msgs
}

// GetInMessageLayout returns an empty layout: the global communicator has
// none.
func (c *AdiosGlobalComm[T]) GetInMessageLayout() InMessageLayout {
	return InMessageLayout{}
}

// NoOpComm stands in for ranks that do not participate in the coupling:
// sends are discarded and receives return empty, so user code is uniform
// regardless of participation.
type NoOpComm[T pg.Element] struct{}

var _ Communicator[LO] = (*NoOpComm[LO])(nil)

func (NoOpComm[T]) SetOutMessageLayout(dest, offsets LOs) {}
func (NoOpComm[T]) Send(msgs []T, mode adios.Mode)        {}
func (NoOpComm[T]) Recv(mode adios.Mode) []T              { return nil }
func (NoOpComm[T]) GetInMessageLayout() InMessageLayout   { return InMessageLayout{} }

// BidirectionalComm binds a sender and a receiver for one logical payload
// name. On a client, Send targets the server and Recv drains from it; on a
// server the directions flip.
type BidirectionalComm[T pg.Element] struct {
	sender   Communicator[T]
	receiver Communicator[T]
}

// NewBidirectionalComm pairs a sender and receiver; both must be non-nil.
func NewBidirectionalComm[T pg.Element](sender, receiver Communicator[T]) BidirectionalComm[T] {
	alwaysAssert(sender != nil, "nil sender")
	alwaysAssert(receiver != nil, "nil receiver")
	return BidirectionalComm[T]{sender: sender, receiver: receiver}
}

// SetOutMessageLayout stores the outbound layout on the sending direction.
func (b BidirectionalComm[T]) SetOutMessageLayout(dest, offsets LOs) {
	alwaysAssert(b.sender != nil, "nil sender")
	b.sender.SetOutMessageLayout(dest, offsets)
}

// Send transmits msgs on the sending direction.
func (b BidirectionalComm[T]) Send(msgs []T, mode adios.Mode) {
	alwaysAssert(b.sender != nil, "nil sender")
	b.sender.Send(msgs, mode)
}

// Recv drains this rank's incoming payload from the receiving direction.
func (b BidirectionalComm[T]) Recv(mode adios.Mode) []T {
	alwaysAssert(b.receiver != nil, "nil receiver")
	return b.receiver.Recv(mode)
}

// GetInMessageLayout returns the receiving direction's cached layout.
func (b BidirectionalComm[T]) GetInMessageLayout() InMessageLayout {
	alwaysAssert(b.receiver != nil, "nil receiver")
	return b.receiver.GetInMessageLayout()
}
