// Package sst implements the streaming engine driver. Streams live in a
// process-wide registry keyed by name; writer and reader sides rendezvous at
// open, and a reader's BeginStep blocks until the writer publishes the step.
// The streaming discipline (blocking opens, paired peer order) matches what
// the channel layer's SST open ordering is written against.
package sst

import (
	"fmt"
	"sync"
	"time"

	"github.com/scorec/redev-go/internal/stepio"
	"github.com/scorec/redev-go/pg"
)

const pollInterval = 2 * time.Millisecond

type stream struct {
	mu      sync.Mutex
	writers int
	readers int
	steps   []*stepio.Step
	closed  bool
}

var registry = struct {
	sync.Mutex
	m map[string]*stream
}{m: make(map[string]*stream)}

func getStream(name string) *stream {
	registry.Lock()
	defer registry.Unlock()
	s, ok := registry.m[name]
	if !ok {
		s = &stream{}
		registry.m[name] = s
	}
	return s
}

func (s *stream) await(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		ok := cond()
		s.mu.Unlock()
		if ok {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

// Writer is one rank's write handle on an SST stream.
type Writer struct {
	core stepio.WriterCore
	s    *stream
	name string
}

// OpenWriter registers the writer side and blocks until a reader side
// exists, per the SST rendezvous discipline.
func OpenWriter(name string, comm pg.Comm, timeout time.Duration) (*Writer, error) {
	s := getStream(name)
	s.mu.Lock()
	s.writers++
	s.mu.Unlock()
	if !s.await(timeout, func() bool { return s.readers > 0 }) {
		return nil, fmt.Errorf("sst: open %s for write: no reader within %v", name, timeout)
	}
	return &Writer{core: stepio.WriterCore{Comm: comm}, s: s, name: name}, nil
}

func (w *Writer) BeginStep() stepio.StepStatus { return stepio.StepOK }

func (w *Writer) Put(rec stepio.PutRecord, deferred bool) { w.core.Put(rec, deferred) }
func (w *Writer) PerformPuts()                            { w.core.PerformPuts() }

// EndStep gathers the group's records and, on rank 0, publishes the step to
// the stream queue.
func (w *Writer) EndStep() error {
	st, err := w.core.CollectStep()
	if err != nil {
		return err
	}
	if st == nil {
		return nil
	}
	w.s.mu.Lock()
	w.s.steps = append(w.s.steps, st)
	w.s.mu.Unlock()
	return nil
}

func (w *Writer) Inquire(string) (*stepio.VarBlock, bool) { return nil, false }

func (w *Writer) Get(string, stepio.Kind, uint64, uint64, []byte, bool) error {
	return fmt.Errorf("sst: get on a write-mode engine")
}

func (w *Writer) PerformGets() error { return nil }

func (w *Writer) Close() error {
	if w.core.Comm.Rank() != 0 {
		return nil
	}
	w.s.mu.Lock()
	w.s.closed = true
	w.s.mu.Unlock()
	return nil
}

// Reader is one rank's read handle on an SST stream.
type Reader struct {
	core    stepio.ReaderCore
	s       *stream
	name    string
	next    int
	open    bool
	timeout time.Duration
}

// OpenReader registers the reader side and blocks until a writer side
// exists.
func OpenReader(name string, comm pg.Comm, timeout time.Duration) (*Reader, error) {
	_ = comm
	s := getStream(name)
	s.mu.Lock()
	s.readers++
	s.mu.Unlock()
	if !s.await(timeout, func() bool { return s.writers > 0 }) {
		return nil, fmt.Errorf("sst: open %s for read: no writer within %v", name, timeout)
	}
	return &Reader{s: s, name: name, timeout: timeout}, nil
}

// BeginStep blocks until the writer publishes step `next` or closes the
// stream; if neither happens within the timeout it returns StepNotReady.
func (r *Reader) BeginStep() stepio.StepStatus {
	var st *stepio.Step
	var eos bool
	ok := r.s.await(r.timeout, func() bool {
		if r.next < len(r.s.steps) {
			st = r.s.steps[r.next]
			return true
		}
		if r.s.closed {
			eos = true
			return true
		}
		return false
	})
	if !ok {
		return stepio.StepNotReady
	}
	if eos {
		return stepio.StepEndOfStream
	}
	r.core.Cur = st
	r.open = true
	return stepio.StepOK
}

func (r *Reader) EndStep() error {
	if !r.open {
		return fmt.Errorf("sst: EndStep without an open step")
	}
	r.core.Cur = nil
	r.open = false
	r.next++
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
