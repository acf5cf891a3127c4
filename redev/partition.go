package redev

import (
	"math/bits"
	"sort"

	"github.com/scorec/redev-go/adios"
	"github.com/scorec/redev-go/pg"
	"github.com/scorec/redev-go/profile"
)

// Partition is the closed set of rendezvous partition representations. The
// server's partition is distributed to clients during channel setup: the
// variant's wire tag first, then the variant's payload, then a broadcast
// over the client group.
type Partition interface {
	// Write serializes the partition into the open step of a write-mode
	// engine.
	Write(eng *adios.Engine, io *adios.IO)
	// Read deserializes the partition from the open step of a read-mode
	// engine.
	Read(eng *adios.Engine, io *adios.IO)
	// Broadcast replicates the partition from root to every rank of comm.
	Broadcast(comm pg.Comm, root int)

	isPartition()
}

// PartitionIndex returns the stable wire tag of a partition variant:
// ClassPtn is 0, RCBPtn is 1. The tag itself travels over the wire during
// setup so a client holding an empty partition can construct the matching
// variant.
func PartitionIndex(p Partition) uint64 {
	switch p.(type) {
	case *ClassPtn:
		return 0
	case *RCBPtn:
		return 1
	}
	alwaysAssert(false, "unknown partition variant")
	return 0
}

// partitionFromIndex constructs the empty variant matching a wire tag.
func partitionFromIndex(index uint64) Partition {
	switch index {
	case 0:
		return NewClassPtn()
	case 1:
		return &RCBPtn{}
	}
	alwaysAssertf(false, "unknown partition type index %d", index)
	return nil
}

// ModelEnt identifies a geometric model entity by dimension (0=vertex,
// 1=edge, 2=face, 3=region) and a dimension-local unique id.
type ModelEnt struct {
	Dim LO
	ID  LO
}

// NewModelEnt validates the dimension and returns the entity. An
// out-of-range dimension is a fatal configuration failure.
func NewModelEnt(dim, id LO) ModelEnt {
	alwaysAssertf(dim >= 0 && dim <= 3, "model entity dimension %d out of range [0:3]", dim)
	return ModelEnt{Dim: dim, ID: id}
}

func (e ModelEnt) less(o ModelEnt) bool {
	if e.Dim != o.Dim {
		return e.Dim < o.Dim
	}
	return e.ID < o.ID
}

const classPtnVarName = "class partition ents and ranks"

// ClassPtn partitions the domain by ownership of geometric model entities:
// a map from ModelEnt to the owning rank. The 'class' is the classification
// of mesh entities onto model entities.
type ClassPtn struct {
	modelEntToRank map[ModelEnt]LO
}

var _ Partition = (*ClassPtn)(nil)

// NewClassPtn returns an empty partition, filled in later by Read or
// Broadcast.
func NewClassPtn() *ClassPtn {
	return &ClassPtn{modelEntToRank: make(map[ModelEnt]LO)}
}

// NewClassPtnFromLocal builds the partition collectively: each rank
// contributes its (rank, entity) pairs, the contributions are gathered and
// merged on rank 0, and the merged map is broadcast to every rank.
// Contributing the same entity with conflicting owner ranks is fatal;
// identical duplicates are tolerated.
func NewClassPtnFromLocal(comm pg.Comm, ranks LOs, ents []ModelEnt) *ClassPtn {
	defer profile.Timer("ClassPtn.New")()
	alwaysAssertf(len(ranks) == len(ents),
		"rank and entity counts differ: %d vs %d", len(ranks), len(ents))
	for _, e := range ents {
		alwaysAssertf(e.Dim >= 0 && e.Dim <= 3, "model entity dimension %d out of range [0:3]", e.Dim)
	}
	p := NewClassPtn()
	local := make(LOs, 0, 3*len(ents))
	for i, e := range ents {
		local = append(local, e.Dim, e.ID, ranks[i])
	}
	parts := pg.Gatherv(comm, local, 0)
	if comm.Rank() == 0 {
		var merged LOs
		for _, part := range parts {
			merged = append(merged, part...)
		}
		p.modelEntToRank = deserializeModelEntsAndRanks(merged)
	}
	p.Broadcast(comm, 0)
	return p
}

// GetRank returns the rank owning the given model entity. Querying an
// absent entity is fatal.
func (p *ClassPtn) GetRank(ent ModelEnt) LO {
	defer profile.Timer("ClassPtn.GetRank")()
	rank, ok := p.modelEntToRank[ent]
	alwaysAssertf(ok, "no owner for model entity (%d,%d)", ent.Dim, ent.ID)
	return rank
}

// GetRanks returns the owning ranks in entity order (the pairing with
// GetModelEnts is positional).
func (p *ClassPtn) GetRanks() LOs {
	ents := p.GetModelEnts()
	ranks := make(LOs, len(ents))
	for i, e := range ents {
		ranks[i] = p.modelEntToRank[e]
	}
	return ranks
}

// GetModelEnts returns all model entities in (dim, id) order.
func (p *ClassPtn) GetModelEnts() []ModelEnt {
	ents := make([]ModelEnt, 0, len(p.modelEntToRank))
	for e := range p.modelEntToRank {
		ents = append(ents, e)
	}
	sort.Slice(ents, func(i, j int) bool { return ents[i].less(ents[j]) })
	return ents
}

// Write puts the partition as a single flat variable of (dim, id, rank)
// triples. An empty partition writes an empty triples array.
func (p *ClassPtn) Write(eng *adios.Engine, io *adios.IO) {
	defer profile.Timer("ClassPtn.Write")()
	triples := p.serializeModelEntsAndRanks()
	n := uint64(len(triples))
	v := adios.DefineVariable[LO](io, classPtnVarName, n, 0, n)
	adios.Put(eng, v, triples, adios.ModeSynchronous)
	eng.PerformPuts()
}

// Read inquires the triples variable in the current step, reads the unique
// block, and rebuilds the map. Conflicting duplicate triples are fatal.
func (p *ClassPtn) Read(eng *adios.Engine, io *adios.IO) {
	defer profile.Timer("ClassPtn.Read")()
	_ = io
	v := adios.InquireVariable[LO](eng, classPtnVarName)
	alwaysAssert(v != nil, "class partition variable not present in step")
	triples := make(LOs, v.Shape())
	v.SetSelection(0, v.Shape())
	err := adios.Get(eng, v, triples, adios.ModeSynchronous)
	alwaysAssert(err == nil, "class partition read")
	if err := eng.PerformGets(); err != nil {
		alwaysAssert(false, "class partition read flush")
	}
	p.modelEntToRank = deserializeModelEntsAndRanks(triples)
}

// Broadcast replicates the map from root: the length of the flat triples
// array (three values per entity) first, then the flat triples.
func (p *ClassPtn) Broadcast(comm pg.Comm, root int) {
	defer profile.Timer("ClassPtn.Broadcast")()
	count := make(LOs, 1)
	var triples LOs
	if comm.Rank() == root {
		triples = p.serializeModelEntsAndRanks()
		count[0] = LO(len(triples))
	}
	pg.Bcast(comm, count, root)
	if comm.Rank() != root {
		triples = make(LOs, count[0])
	}
	pg.Bcast(comm, triples, root)
	if comm.Rank() != root {
		p.modelEntToRank = deserializeModelEntsAndRanks(triples)
	}
}

func (p *ClassPtn) isPartition() {}

// serializeModelEntsAndRanks flattens the map as
// [dim_0, id_0, rank_0, dim_1, id_1, rank_1, ...] in (dim, id) order.
func (p *ClassPtn) serializeModelEntsAndRanks() LOs {
	ents := p.GetModelEnts()
	out := make(LOs, 0, 3*len(ents))
	for _, e := range ents {
		out = append(out, e.Dim, e.ID, p.modelEntToRank[e])
	}
	return out
}

// deserializeModelEntsAndRanks rebuilds the map from flat triples. The
// input length must be divisible by 3; the same entity appearing with
// different owner ranks is fatal.
func deserializeModelEntsAndRanks(serialized LOs) map[ModelEnt]LO {
	alwaysAssertf(len(serialized)%3 == 0,
		"serialized class partition length %d not divisible by 3", len(serialized))
	m := make(map[ModelEnt]LO, len(serialized)/3)
	for i := 0; i < len(serialized); i += 3 {
		ent := NewModelEnt(serialized[i], serialized[i+1])
		rank := serialized[i+2]
		if prev, ok := m[ent]; ok {
			alwaysAssertf(prev == rank,
				"model entity (%d,%d) owned by ranks %d and %d", ent.Dim, ent.ID, prev, rank)
		}
		m[ent] = rank
	}
	return m
}

const (
	rcbRanksVarName = "rcb partition ranks"
	rcbCutsVarName  = "rcb partition cuts"
)

// RCBPtn partitions the domain by recursive coordinate bisection: a binary
// cut tree stored in level order. The root cut is at index 1 and index 0 is
// unused; node i has children 2i and 2i+1. The cut dimension alternates by
// level starting with x. A point with coordinate strictly less than a
// node's cut descends left; ties go right. ranks labels the leaves left to
// right, and len(cuts) == len(ranks) (a power of two).
type RCBPtn struct {
	dim   LO
	ranks LOs
	cuts  Reals
}

var _ Partition = (*RCBPtn)(nil)

// NewRCBPtn returns a partition with only the domain dimension set; ranks
// and cuts are filled in later by Read or Broadcast.
func NewRCBPtn(dim LO) *RCBPtn {
	alwaysAssertf(dim >= 1 && dim <= 3, "rcb dimension %d out of range [1:3]", dim)
	return &RCBPtn{dim: dim}
}

// NewRCBPtnFromCuts builds a partition directly from the leaf ranks and the
// level-order cut array.
func NewRCBPtnFromCuts(dim LO, ranks LOs, cuts Reals) *RCBPtn {
	alwaysAssertf(dim >= 1 && dim <= 3, "rcb dimension %d out of range [1:3]", dim)
	return &RCBPtn{dim: dim, ranks: append(LOs(nil), ranks...), cuts: append(Reals(nil), cuts...)}
}

// GetRank returns the rank owning the given point. The descent is
// O(log(len(ranks))); the third coordinate is ignored for dim < 3.
func (p *RCBPtn) GetRank(pt [3]Real) LO {
	defer profile.Timer("RCBPtn.GetRank")()
	alwaysAssert(p.dim >= 1 && p.dim <= 3, "rcb dimension unset")
	alwaysAssert(len(p.cuts) == len(p.ranks) && len(p.ranks) > 0, "rcb tree empty or malformed")
	// len(cuts) is a power of two; integer log avoids FP edge cases.
	levels := bits.TrailingZeros(uint(len(p.cuts)))
	idx := 1
	d := 0
	for level := 0; level < levels; level++ {
		if pt[d] < p.cuts[idx] {
			idx = 2 * idx
		} else {
			idx = 2*idx + 1
		}
		d = (d + 1) % int(p.dim)
	}
	return p.ranks[idx-(1<<levels)]
}

// GetRanks returns the leaf ranks left to right.
func (p *RCBPtn) GetRanks() LOs { return append(LOs(nil), p.ranks...) }

// GetCuts returns the level-order cut array.
func (p *RCBPtn) GetCuts() Reals { return append(Reals(nil), p.cuts...) }

// Write puts the ranks and cuts variables. With no entries the write is
// skipped entirely so no empty variables leak into the step.
func (p *RCBPtn) Write(eng *adios.Engine, io *adios.IO) {
	defer profile.Timer("RCBPtn.Write")()
	if len(p.ranks) == 0 {
		return
	}
	n := uint64(len(p.ranks))
	rv := adios.DefineVariable[LO](io, rcbRanksVarName, n, 0, n)
	adios.Put(eng, rv, p.ranks, adios.ModeSynchronous)
	cv := adios.DefineVariable[Real](io, rcbCutsVarName, n, 0, n)
	adios.Put(eng, cv, p.cuts, adios.ModeSynchronous)
	eng.PerformPuts()
}

// Read inquires both variables in the current step and reads their unique
// blocks.
func (p *RCBPtn) Read(eng *adios.Engine, io *adios.IO) {
	defer profile.Timer("RCBPtn.Read")()
	_ = io
	rv := adios.InquireVariable[LO](eng, rcbRanksVarName)
	alwaysAssert(rv != nil, "rcb ranks variable not present in step")
	cv := adios.InquireVariable[Real](eng, rcbCutsVarName)
	alwaysAssert(cv != nil, "rcb cuts variable not present in step")
	p.ranks = make(LOs, rv.Shape())
	rv.SetSelection(0, rv.Shape())
	err := adios.Get(eng, rv, p.ranks, adios.ModeSynchronous)
	alwaysAssert(err == nil, "rcb ranks read")
	p.cuts = make(Reals, cv.Shape())
	cv.SetSelection(0, cv.Shape())
	err = adios.Get(eng, cv, p.cuts, adios.ModeSynchronous)
	alwaysAssert(err == nil, "rcb cuts read")
	if err := eng.PerformGets(); err != nil {
		alwaysAssert(false, "rcb read flush")
	}
}

// Broadcast replicates the tree from root: the leaf count first, then the
// ranks, then the cuts.
func (p *RCBPtn) Broadcast(comm pg.Comm, root int) {
	defer profile.Timer("RCBPtn.Broadcast")()
	count := make(LOs, 1)
	if comm.Rank() == root {
		count[0] = LO(len(p.ranks))
	}
	pg.Bcast(comm, count, root)
	if comm.Rank() != root {
		p.ranks = make(LOs, count[0])
		p.cuts = make(Reals, count[0])
	}
	pg.Bcast(comm, p.ranks, root)
	pg.Bcast(comm, p.cuts, root)
}

func (p *RCBPtn) isPartition() {}
