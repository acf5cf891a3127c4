package redev

import (
	"go.uber.org/zap"

	"github.com/scorec/redev-go/adios"
	"github.com/scorec/redev-go/pg"
	"github.com/scorec/redev-go/profile"
)

// Config controls construction of a Redev instance.
type Config struct {
	// Comm is this process's group. Nil marks a rank that does not
	// participate in the coupling; its channels and communicators become
	// no-ops.
	Comm pg.Comm
	// Partition is the rendezvous partition on the server. Clients may
	// leave it nil; the server sends the partition during channel setup.
	Partition Partition
	// ProcessType selects the server or client role.
	ProcessType ProcessType
	// NoClients runs a server standalone, for testing without any client
	// job attached.
	NoClients bool
	// Logger receives diagnostics; nil disables logging.
	Logger *zap.Logger
	// ConfigPath names an optional TOML file of engine-parameter defaults.
	// When empty, redev.toml is picked up from the working directory if
	// present.
	ConfigPath string
}

// Redev owns the substrate environment and the partition, distinguishes
// the server and client roles, and creates channels between them. One
// instance can serve multiple clients through separately named channels.
type Redev struct {
	processType ProcessType
	noClients   bool
	comm        pg.Comm
	adios       *adios.Adios
	rank        int
	ptn         Partition
	log         *zap.Logger
	fileCfg     *fileConfig
}

// New constructs a Redev server or client. The server must participate and
// must hold a partition; a client's empty partition is replaced during
// channel setup by whatever the server distributes.
func New(cfg Config) (*Redev, error) {
	defer profile.Timer("Redev.New")()
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ptn := cfg.Partition
	if ptn == nil {
		ptn = NewClassPtn()
	}
	// validates the variant is a known member of the closed set
	_ = PartitionIndex(ptn)
	if cfg.ProcessType == ProcessTypeServer {
		alwaysAssert(cfg.Comm != nil, "server ranks must participate")
	}
	rank := -1
	if cfg.Comm != nil {
		rank = cfg.Comm.Rank()
	}
	fileCfg, err := loadFileConfig(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	r := &Redev{
		processType: cfg.ProcessType,
		noClients:   cfg.NoClients,
		comm:        cfg.Comm,
		adios:       adios.New(log),
		rank:        rank,
		ptn:         ptn,
		log:         log,
		fileCfg:     fileCfg,
	}
	log.Debug("redev created",
		zap.Stringer("processType", cfg.ProcessType),
		zap.Int("rank", rank),
		zap.Bool("noClients", cfg.NoClients))
	return r, nil
}

// CreateAdiosChannel opens the named bidirectional channel and runs the
// setup handshake. params configures the substrate engines; file-config
// defaults fill unset keys. path prefixes the stream names. Each channel
// name must be unique within the coupling.
func (r *Redev) CreateAdiosChannel(name string, params adios.Params, transportType TransportType, path string) (*Channel, error) {
	defer profile.Timer("Redev.CreateAdiosChannel")()
	if !r.RankParticipates() {
		return &Channel{impl: noOpChannel{}}, nil
	}
	impl, err := newAdiosChannel(r.adios, r.comm, name, r.fileCfg.mergeParams(params),
		transportType, r.processType, &r.ptn, path, r.noClients, r.log)
	if err != nil {
		return nil, err
	}
	return &Channel{impl: impl}, nil
}

// GetProcessType reports whether this instance is the server or a client.
func (r *Redev) GetProcessType() ProcessType { return r.processType }

// GetPartition returns the partition. On clients it is populated by the
// first channel's setup handshake.
func (r *Redev) GetPartition() Partition { return r.ptn }

// RankParticipates reports whether this rank takes part in the coupling.
func (r *Redev) RankParticipates() bool { return r.comm != nil }
