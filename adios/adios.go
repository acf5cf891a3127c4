// Package adios is the streaming substrate redev moves data through: named
// IO handles configured with an engine type and a parameter bag, engines
// opened in read or write mode over a process group, and stepped typed
// variable transfer with block selection. The API deliberately follows the
// ADIOS2 vocabulary (IO, Engine, BeginStep/EndStep, Put/Get, PerformPuts)
// so the channel layer above reads like its C++ counterparts.
//
// Two engine types are provided. "BP4" is buffered-file: opens never block
// and a reader discovers steps by polling the stream directory. "SST" is
// streaming: writer and reader opens rendezvous, and a reader's BeginStep
// blocks until the writer publishes.
package adios

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scorec/redev-go/internal/bp4"
	"github.com/scorec/redev-go/internal/sst"
	"github.com/scorec/redev-go/internal/stepio"
	"github.com/scorec/redev-go/pg"
)

// ErrUnsupportedEngine indicates an engine type other than BP4 or SST.
var ErrUnsupportedEngine = errors.New("adios: unsupported engine type")

// StepStatus is the result of BeginStep.
type StepStatus = stepio.StepStatus

const (
	StepStatusOK          = stepio.StepOK
	StepStatusNotReady    = stepio.StepNotReady
	StepStatusEndOfStream = stepio.StepEndOfStream
	StepStatusOtherError  = stepio.StepOtherError
)

// Mode selects deferred or synchronous Put/Get semantics. Deferred
// operations capture the buffer and execute at PerformPuts/PerformGets (or
// EndStep); synchronous operations complete before returning.
type Mode int

const (
	ModeDeferred Mode = iota
	ModeSynchronous
)

// OpenMode selects the engine direction.
type OpenMode int

const (
	OpenModeRead OpenMode = iota
	OpenModeWrite
)

// Param is one entry of the ordered engine parameter bag.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered key-value set of engine parameters. Later entries
// win on duplicate keys.
type Params []Param

// Get returns the last value set for key. Key comparison is exact; value
// interpretation (e.g. "Streaming" = "ON") is up to the caller.
func (p Params) Get(key string) (string, bool) {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i].Key == key {
			return p[i].Value, true
		}
	}
	return "", false
}

// openTimeout interprets the OpenTimeoutSecs parameter; absent or
// non-positive values fall back to a generous default so misconfigured
// couplings fail loudly rather than hang forever.
func (p Params) openTimeout() time.Duration {
	if v, ok := p.Get("OpenTimeoutSecs"); ok {
		if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 60 * time.Second
}

// Adios is the substrate environment: a registry of declared IO handles.
type Adios struct {
	log *zap.Logger
	mu  sync.Mutex
	ios map[string]*IO
}

// New creates an environment. A nil logger disables logging.
func New(log *zap.Logger) *Adios {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adios{log: log, ios: make(map[string]*IO)}
}

// DeclareIO returns the IO registered under name, creating it on first use.
func (a *Adios) DeclareIO(name string) *IO {
	a.mu.Lock()
	defer a.mu.Unlock()
	if io, ok := a.ios[name]; ok {
		return io
	}
	io := &IO{name: name, engineType: "BP4", log: a.log}
	a.ios[name] = io
	return io
}

// IO carries the engine type and parameter bag used to open engines.
type IO struct {
	name       string
	engineType string
	params     Params
	log        *zap.Logger
}

// Name returns the name the IO was declared under.
func (io *IO) Name() string { return io.name }

// SetEngine selects the engine type ("BP4" or "SST", case-insensitive).
// Validation happens at Open.
func (io *IO) SetEngine(engineType string) { io.engineType = engineType }

// EngineType returns the configured engine type.
func (io *IO) EngineType() string { return io.engineType }

// SetParameters replaces the parameter bag.
func (io *IO) SetParameters(p Params) { io.params = p }

// Parameters returns the parameter bag.
func (io *IO) Parameters() Params { return io.params }

// Open creates an engine on the named stream. comm is the opening group;
// EndStep is collective over it on the write side.
func (io *IO) Open(stream string, mode OpenMode, comm pg.Comm) (*Engine, error) {
	timeout := io.params.openTimeout()
	var (
		drv stepio.Driver
		err error
	)
	switch {
	case strings.EqualFold(io.engineType, "BP4"):
		if mode == OpenModeWrite {
			drv, err = bp4.OpenWriter(stream, comm)
		} else {
			drv, err = bp4.OpenReader(stream, comm, timeout)
		}
	case strings.EqualFold(io.engineType, "SST"):
		if mode == OpenModeWrite {
			drv, err = sst.OpenWriter(stream, comm, timeout)
		} else {
			drv, err = sst.OpenReader(stream, comm, timeout)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEngine, io.engineType)
	}
	if err != nil {
		return nil, err
	}
	io.log.Debug("engine open",
		zap.String("io", io.name),
		zap.String("stream", stream),
		zap.String("engine", io.engineType),
		zap.Int("mode", int(mode)))
	return &Engine{drv: drv, io: io, stream: stream}, nil
}

// Engine is an open stream endpoint.
type Engine struct {
	drv    stepio.Driver
	io     *IO
	stream string
}

// BeginStep opens the next step.
func (e *Engine) BeginStep() StepStatus { return e.drv.BeginStep() }

// EndStep publishes (writer) or retires (reader) the open step. Deferred
// gets still queued are executed first.
func (e *Engine) EndStep() error {
	if err := e.drv.PerformGets(); err != nil {
		return err
	}
	return e.drv.EndStep()
}

// PerformPuts materializes deferred puts.
func (e *Engine) PerformPuts() { e.drv.PerformPuts() }

// PerformGets executes deferred gets.
func (e *Engine) PerformGets() error { return e.drv.PerformGets() }

// Close ends the stream; a writer's close publishes end-of-stream.
func (e *Engine) Close() error { return e.drv.Close() }
