// Package bp4 implements the buffered-file engine driver. Each published
// step is one atomically renamed gob file under the stream directory, so a
// reader sees either the whole step or none of it. Opens never block; a
// reader discovers data by polling at BeginStep. This mirrors the
// file-engine discipline the channel layer's BP4 open ordering is written
// against.
package bp4

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/scorec/redev-go/internal/stepio"
	"github.com/scorec/redev-go/pg"
)

const pollInterval = 10 * time.Millisecond

func stepFile(dir string, n int) string {
	return filepath.Join(dir, fmt.Sprintf("step.%d.gob", n))
}

func eosFile(dir string) string {
	return filepath.Join(dir, "closed")
}

// Writer is one rank's write handle on a BP4 stream.
type Writer struct {
	core stepio.WriterCore
	dir  string
	step int
}

// OpenWriter creates the stream directory (rank 0) and returns the rank's
// write handle. It does not block on a reader.
func OpenWriter(dir string, comm pg.Comm) (*Writer, error) {
	if comm.Rank() == 0 {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("bp4: create stream %s: %w", dir, err)
		}
	}
	return &Writer{core: stepio.WriterCore{Comm: comm}, dir: dir}, nil
}

func (w *Writer) BeginStep() stepio.StepStatus { return stepio.StepOK }

func (w *Writer) Put(rec stepio.PutRecord, deferred bool) { w.core.Put(rec, deferred) }
func (w *Writer) PerformPuts()                            { w.core.PerformPuts() }

// EndStep gathers the group's records and, on rank 0, publishes the step
// file with a temp-write + rename so readers never observe a partial step.
func (w *Writer) EndStep() error {
	st, err := w.core.CollectStep()
	if err != nil {
		return err
	}
	defer func() { w.step++ }()
	if st == nil {
		return nil
	}
	b, err := stepio.EncodeStep(st)
	if err != nil {
		return err
	}
	tmp := stepFile(w.dir, w.step) + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("bp4: write step %d: %w", w.step, err)
	}
	if err := os.Rename(tmp, stepFile(w.dir, w.step)); err != nil {
		return fmt.Errorf("bp4: publish step %d: %w", w.step, err)
	}
	return nil
}

func (w *Writer) Inquire(string) (*stepio.VarBlock, bool) { return nil, false }

func (w *Writer) Get(string, stepio.Kind, uint64, uint64, []byte, bool) error {
	return fmt.Errorf("bp4: get on a write-mode engine")
}

func (w *Writer) PerformGets() error { return nil }

// Close publishes the end-of-stream marker.
func (w *Writer) Close() error {
	if w.core.Comm.Rank() != 0 {
		return nil
	}
	if err := os.WriteFile(eosFile(w.dir), nil, 0o644); err != nil {
		return fmt.Errorf("bp4: close stream %s: %w", w.dir, err)
	}
	return nil
}

// Reader is one rank's read handle on a BP4 stream.
type Reader struct {
	core    stepio.ReaderCore
	dir     string
	step    int
	open    bool
	timeout time.Duration
}

// OpenReader returns the rank's read handle. The stream directory need not
// exist yet; visibility is resolved by polling at BeginStep, bounded by
// timeout.
func OpenReader(dir string, comm pg.Comm, timeout time.Duration) (*Reader, error) {
	_ = comm
	return &Reader{dir: dir, timeout: timeout}, nil
}

// BeginStep polls for the next step file until it appears, end-of-stream is
// reached, or the timeout expires.
func (r *Reader) BeginStep() stepio.StepStatus {
	deadline := time.Now().Add(r.timeout)
	for {
		b, err := os.ReadFile(stepFile(r.dir, r.step))
		if err == nil {
			st, derr := stepio.DecodeStep(b)
			if derr != nil {
				return stepio.StepOtherError
			}
			r.core.Cur = st
			r.open = true
			return stepio.StepOK
		}
		if !os.IsNotExist(err) {
			return stepio.StepOtherError
		}
		if _, eerr := os.Stat(eosFile(r.dir)); eerr == nil {
			// the writer closed before producing this step
			if _, serr := os.Stat(stepFile(r.dir, r.step)); os.IsNotExist(serr) {
				return stepio.StepEndOfStream
			}
		}
		if time.Now().After(deadline) {
			return stepio.StepNotReady
		}
		time.Sleep(pollInterval)
	}
}

func (r *Reader) EndStep() error {
	if !r.open {
		return fmt.Errorf("bp4: EndStep without an open step")
	}
	r.core.Cur = nil
	r.open = false
	r.step++
	return nil
}

func (r *Reader) Put(stepio.PutRecord, bool) {}
func (r *Reader) PerformPuts()               {}

func (r *Reader) Inquire(name string) (*stepio.VarBlock, bool) { return r.core.Inquire(name) }

func (r *Reader) Get(name string, kind stepio.Kind, start, count uint64, dst []byte, deferred bool) error {
	return r.core.Get(name, kind, start, count, dst, deferred)
}

func (r *Reader) PerformGets() error { return r.core.PerformGets() }

func (r *Reader) Close() error { return nil }
