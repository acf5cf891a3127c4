// Package redev couples independently partitioned parallel applications so
// field data can be exchanged between them: a Server holds the rendezvous
// partition of a shared domain, Clients hold their own partitions, and
// channels between them negotiate a per-rank message layout on first send
// and reuse it thereafter.
package redev

// LO is a local ordinate, counting items local to one process.
type LO = int32

// LOs is an ordered sequence of local ordinates.
type LOs = []LO

// GO is a global ordinate, counting items across the job.
type GO = int64

// GOs is an ordered sequence of global ordinates.
type GOs = []GO

// Real is a floating point value.
type Real = float64

// Reals is an ordered sequence of floating point values.
type Reals = []Real

// CV is a complex value.
type CV = complex128

// CVs is an ordered sequence of complex values.
type CVs = []CV

// ProcessType distinguishes the two sides of a coupling.
type ProcessType int

const (
	// ProcessTypeClient marks a process in an application's rank set.
	ProcessTypeClient ProcessType = 0
	// ProcessTypeServer marks a process holding the rendezvous partition.
	ProcessTypeServer ProcessType = 1
)

func (p ProcessType) String() string {
	if p == ProcessTypeServer {
		return "server"
	}
	return "client"
}

// TransportType selects the engine used by a channel.
type TransportType int

const (
	// TransportBP4 is the buffered-file engine.
	TransportBP4 TransportType = 0
	// TransportSST is the streaming engine.
	TransportSST TransportType = 1
)

// CommType selects between the partitioned communicator and the
// single-writer global fast path.
type CommType int

const (
	// CommPtn is the layout-aware many-to-many communicator.
	CommPtn CommType = 0
	// CommGlobal is the rank-0-to-rank-0 fast path for aggregate signals.
	CommGlobal CommType = 1
)
