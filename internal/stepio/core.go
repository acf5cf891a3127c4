package stepio

import (
	"fmt"

	"github.com/scorec/redev-go/pg"
)

// WriterCore accumulates one rank's put records for the open step and runs
// the collective end-of-step: all ranks' records are gathered onto rank 0 of
// the writer group, which merges them into the published step image.
type WriterCore struct {
	Comm     pg.Comm
	pending  []PutRecord
	deferred []bool
}

// Put stages a record. Synchronous puts copy the caller's buffer now;
// deferred puts alias it until PerformPuts.
func (w *WriterCore) Put(rec PutRecord, deferred bool) {
	if !deferred {
		rec.Data = append([]byte(nil), rec.Data...)
	}
	w.pending = append(w.pending, rec)
	w.deferred = append(w.deferred, deferred)
}

// PerformPuts takes ownership of every deferred buffer.
func (w *WriterCore) PerformPuts() {
	for i, d := range w.deferred {
		if d {
			w.pending[i].Data = append([]byte(nil), w.pending[i].Data...)
			w.deferred[i] = false
		}
	}
}

// CollectStep runs the end-of-step gather and merge. It is collective over
// the writer group; the merged step is returned on rank 0 and nil elsewhere.
func (w *WriterCore) CollectStep() (*Step, error) {
	w.PerformPuts()
	enc, err := Encode(w.pending)
	if err != nil {
		return nil, err
	}
	w.pending = nil
	w.deferred = nil
	parts := pg.Gatherv(w.Comm, enc, 0)
	if w.Comm.Rank() != 0 {
		return nil, nil
	}
	var all []PutRecord
	for r, part := range parts {
		recs, err := Decode(part)
		if err != nil {
			return nil, fmt.Errorf("stepio: rank %d records: %w", r, err)
		}
		all = append(all, recs...)
	}
	return Merge(all)
}

type getOp struct {
	name         string
	kind         Kind
	start, count uint64
	dst          []byte
}

// ReaderCore serves gets out of the current step image.
type ReaderCore struct {
	Cur  *Step
	gets []getOp
}

// Inquire looks up a variable in the current step.
func (r *ReaderCore) Inquire(name string) (*VarBlock, bool) {
	if r.Cur == nil {
		return nil, false
	}
	blk, ok := r.Cur.Vars[name]
	return blk, ok
}

// Get copies or queues a read of [start, start+count) elements.
func (r *ReaderCore) Get(name string, kind Kind, start, count uint64, dst []byte, deferred bool) error {
	op := getOp{name: name, kind: kind, start: start, count: count, dst: dst}
	if deferred {
		r.gets = append(r.gets, op)
		return nil
	}
	return r.exec(op)
}

// PerformGets executes every queued get against the current step.
func (r *ReaderCore) PerformGets() error {
	gets := r.gets
	r.gets = nil
	for _, op := range gets {
		if err := r.exec(op); err != nil {
			return err
		}
	}
	return nil
}

func (r *ReaderCore) exec(op getOp) error {
	blk, ok := r.Inquire(op.name)
	if !ok {
		return fmt.Errorf("stepio: variable %q not present in step", op.name)
	}
	if blk.Kind != op.kind {
		return fmt.Errorf("stepio: variable %q has kind %d, read as %d", op.name, blk.Kind, op.kind)
	}
	sz := uint64(op.kind.Size())
	end := (op.start + op.count) * sz
	if end > uint64(len(blk.Data)) {
		return fmt.Errorf("stepio: variable %q range [%d,%d) exceeds shape %d", op.name, op.start, op.start+op.count, blk.Shape)
	}
	copy(op.dst, blk.Data[op.start*sz:end])
	return nil
}
