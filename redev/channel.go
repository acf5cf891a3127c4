package redev

import (
	"github.com/scorec/redev-go/pg"
	"github.com/scorec/redev-go/profile"
)

// channelImpl is the transport behind a Channel: the real engine-backed
// implementation or the no-op for non-participating ranks.
type channelImpl interface {
	beginSendPhase()
	endSendPhase()
	beginReceivePhase()
	endReceivePhase()
	createComm(name string, comm pg.Comm, dt DataType, ct CommType) CommVariant
	close()
}

// Channel is a named bidirectional transport between a server and a client.
// Each direction carries an independent phase flag; sends and receives are
// only legal inside the matching phase. Prefer the scoped SendPhase and
// ReceivePhase wrappers, which end the phase on every exit path.
type Channel struct {
	impl       channelImpl
	sendActive bool
	recvActive bool
}

// CreateComm creates a typed bidirectional communicator on ch. A nil comm
// marks a non-participating rank and yields a no-op pair.
func CreateComm[T pg.Element](ch *Channel, name string, comm pg.Comm) BidirectionalComm[T] {
	defer profile.Timer("Channel.CreateComm")()
	return CommAs[T](ch.CreateCommVariant(name, comm, DataTypeOf[T](), CommPtn))
}

// CreateGlobalComm creates the rank-0-to-rank-0 fast-path communicator on
// ch.
func CreateGlobalComm[T pg.Element](ch *Channel, name string, comm pg.Comm) BidirectionalComm[T] {
	defer profile.Timer("Channel.CreateGlobalComm")()
	return CommAs[T](ch.CreateCommVariant(name, comm, DataTypeOf[T](), CommGlobal))
}

// CreateCommVariant creates a communicator whose element type is chosen at
// runtime via the DataType tag.
func (c *Channel) CreateCommVariant(name string, comm pg.Comm, dt DataType, ct CommType) CommVariant {
	return c.impl.createComm(name, comm, dt, ct)
}

// BeginSendCommunicationPhase opens the outgoing step. Calling it while the
// send phase is already active is fatal.
func (c *Channel) BeginSendCommunicationPhase() {
	defer profile.Timer("Channel.BeginSendCommunicationPhase")()
	alwaysAssert(!c.sendActive, "send phase already active")
	c.impl.beginSendPhase()
	c.sendActive = true
}

// EndSendCommunicationPhase closes the outgoing step. Calling it outside a
// send phase is fatal.
func (c *Channel) EndSendCommunicationPhase() {
	defer profile.Timer("Channel.EndSendCommunicationPhase")()
	alwaysAssert(c.sendActive, "send phase not active")
	c.impl.endSendPhase()
	c.sendActive = false
}

// BeginReceiveCommunicationPhase opens the incoming step. Calling it while
// the receive phase is already active is fatal.
func (c *Channel) BeginReceiveCommunicationPhase() {
	defer profile.Timer("Channel.BeginReceiveCommunicationPhase")()
	alwaysAssert(!c.recvActive, "receive phase already active")
	c.impl.beginReceivePhase()
	c.recvActive = true
}

// EndReceiveCommunicationPhase closes the incoming step. Calling it outside
// a receive phase is fatal.
func (c *Channel) EndReceiveCommunicationPhase() {
	defer profile.Timer("Channel.EndReceiveCommunicationPhase")()
	alwaysAssert(c.recvActive, "receive phase not active")
	c.impl.endReceivePhase()
	c.recvActive = false
}

// InSendCommunicationPhase reports whether the send phase is active.
func (c *Channel) InSendCommunicationPhase() bool { return c.sendActive }

// InReceiveCommunicationPhase reports whether the receive phase is active.
func (c *Channel) InReceiveCommunicationPhase() bool { return c.recvActive }

// SendPhase runs f inside a send phase. The phase ends on every exit path,
// including panics inside f.
func (c *Channel) SendPhase(f func()) {
	c.BeginSendCommunicationPhase()
	defer c.EndSendCommunicationPhase()
	f()
}

// ReceivePhase runs f inside a receive phase. The phase ends on every exit
// path, including panics inside f.
func (c *Channel) ReceivePhase(f func()) {
	c.BeginReceiveCommunicationPhase()
	defer c.EndReceiveCommunicationPhase()
	f()
}

// SendPhaseResult runs f inside a send phase and returns its result.
func SendPhaseResult[R any](c *Channel, f func() R) R {
	c.BeginSendCommunicationPhase()
	defer c.EndSendCommunicationPhase()
	return f()
}

// ReceivePhaseResult runs f inside a receive phase and returns its result.
func ReceivePhaseResult[R any](c *Channel, f func() R) R {
	c.BeginReceiveCommunicationPhase()
	defer c.EndReceiveCommunicationPhase()
	return f()
}

// Close shuts both directions down. The channel must not be used after
// Close.
func (c *Channel) Close() {
	c.impl.close()
}
