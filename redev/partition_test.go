package redev

import (
	"reflect"
	"sync"
	"testing"

	"github.com/scorec/redev-go/pg"
)

// runRanks drives f on every rank of a fresh in-process group.
func runRanks(n int, f func(pg.Comm)) {
	comms := pg.NewLocalGroup(n)
	var wg sync.WaitGroup
	for _, c := range comms {
		wg.Add(1)
		go func(c pg.Comm) {
			defer wg.Done()
			f(c)
		}(c)
	}
	wg.Wait()
}

func expectPanic(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected a fatal assertion", name)
		}
	}()
	f()
}

func TestRCBQuery1D(t *testing.T) {
	ptn := NewRCBPtnFromCuts(1, LOs{0, 1, 2, 3}, Reals{0, 0.5, 0.25, 0.75})
	cases := []struct {
		pt   [3]Real
		want LO
	}{
		{[3]Real{0.6, 0, 0}, 2},
		{[3]Real{0.01, 0, 0}, 0},
		{[3]Real{0.5, 0, 0}, 2}, // a point on a cut goes right
		{[3]Real{0.751, 0, 0}, 3},
	}
	for _, c := range cases {
		if got := ptn.GetRank(c.pt); got != c.want {
			t.Errorf("GetRank(%v) = %d, want %d", c.pt, got, c.want)
		}
	}
}

func TestRCBQuery2D(t *testing.T) {
	ptn := NewRCBPtnFromCuts(2, LOs{0, 1, 2, 3}, Reals{0, 0.5, 0.75, 0.25})
	cases := []struct {
		pt   [3]Real
		want LO
	}{
		{[3]Real{0.1, 0.7, 0}, 0},
		{[3]Real{0.1, 0.8, 0}, 1},
		{[3]Real{0.5, 0.0, 0}, 2},
		{[3]Real{0.7, 0.9, 0}, 3},
	}
	for _, c := range cases {
		if got := ptn.GetRank(c.pt); got != c.want {
			t.Errorf("GetRank(%v) = %d, want %d", c.pt, got, c.want)
		}
	}
}

func TestRCBQueryCoversLeaves(t *testing.T) {
	ranks := LOs{4, 5, 6, 7}
	ptn := NewRCBPtnFromCuts(1, ranks, Reals{0, 0.5, 0.25, 0.75})
	inRanks := func(r LO) bool {
		for _, k := range ranks {
			if k == r {
				return true
			}
		}
		return false
	}
	for x := 0.0; x <= 1.0; x += 0.01 {
		r := ptn.GetRank([3]Real{x, 0, 0})
		if !inRanks(r) {
			t.Fatalf("GetRank(%g) = %d, not a leaf rank", x, r)
		}
	}
}

func TestRCBSingleLeaf(t *testing.T) {
	ptn := NewRCBPtnFromCuts(1, LOs{0}, Reals{0})
	if got := ptn.GetRank([3]Real{0.9, 0, 0}); got != 0 {
		t.Errorf("GetRank = %d, want 0", got)
	}
}

func TestRCBThirdCoordinateIgnored(t *testing.T) {
	ptn := NewRCBPtnFromCuts(2, LOs{0, 1, 2, 3}, Reals{0, 0.5, 0.75, 0.25})
	a := ptn.GetRank([3]Real{0.1, 0.7, 0})
	b := ptn.GetRank([3]Real{0.1, 0.7, 123.4})
	if a != b {
		t.Errorf("third coordinate changed the result: %d vs %d", a, b)
	}
}

func TestRCBInvalidDim(t *testing.T) {
	expectPanic(t, "dim 0", func() { NewRCBPtn(0) })
	expectPanic(t, "dim 4", func() { NewRCBPtn(4) })
}

func TestRCBBroadcastAgreement(t *testing.T) {
	ranks := LOs{0, 1, 2, 3}
	cuts := Reals{0, 0.5, 0.25, 0.75}
	runRanks(3, func(c pg.Comm) {
		var ptn *RCBPtn
		if c.Rank() == 0 {
			ptn = NewRCBPtnFromCuts(1, ranks, cuts)
		} else {
			ptn = NewRCBPtn(1)
		}
		ptn.Broadcast(c, 0)
		if !reflect.DeepEqual(ptn.GetRanks(), ranks) {
			t.Errorf("rank %d: ranks = %v, want %v", c.Rank(), ptn.GetRanks(), ranks)
		}
		if !reflect.DeepEqual(ptn.GetCuts(), cuts) {
			t.Errorf("rank %d: cuts = %v, want %v", c.Rank(), ptn.GetCuts(), cuts)
		}
	})
}

func TestModelEntInvalidDim(t *testing.T) {
	expectPanic(t, "dim -1", func() { NewModelEnt(-1, 0) })
	expectPanic(t, "dim 4", func() { NewModelEnt(4, 0) })
}

func TestClassPtnRoundTrip(t *testing.T) {
	p := NewClassPtn()
	p.modelEntToRank = map[ModelEnt]LO{
		{0, 0}: 3,
		{1, 4}: 1,
		{2, 2}: 0,
	}
	triples := p.serializeModelEntsAndRanks()
	if len(triples)%3 != 0 {
		t.Fatalf("serialized length %d not divisible by 3", len(triples))
	}
	got := deserializeModelEntsAndRanks(triples)
	if !reflect.DeepEqual(got, p.modelEntToRank) {
		t.Errorf("round trip changed the map: %v vs %v", got, p.modelEntToRank)
	}
}

func TestClassPtnConflictAborts(t *testing.T) {
	// the same entity owned by two different ranks
	expectPanic(t, "conflicting owners", func() {
		deserializeModelEntsAndRanks(LOs{1, 7, 0, 1, 7, 2})
	})
}

func TestClassPtnIdenticalDuplicatesTolerated(t *testing.T) {
	got := deserializeModelEntsAndRanks(LOs{1, 7, 2, 1, 7, 2})
	if len(got) != 1 || got[ModelEnt{1, 7}] != 2 {
		t.Errorf("unexpected map %v", got)
	}
}

func TestClassPtnBadLengthAborts(t *testing.T) {
	expectPanic(t, "length not divisible by 3", func() {
		deserializeModelEntsAndRanks(LOs{1, 7})
	})
}

func TestClassPtnGatherMerge(t *testing.T) {
	want := map[ModelEnt]LO{
		{0, 0}: 0,
		{1, 0}: 1,
		{2, 0}: 2,
		{2, 1}: 3,
	}
	runRanks(2, func(c pg.Comm) {
		var ranks LOs
		var ents []ModelEnt
		if c.Rank() == 0 {
			ranks = LOs{0, 1}
			ents = []ModelEnt{{0, 0}, {1, 0}}
		} else {
			ranks = LOs{2, 3}
			ents = []ModelEnt{{2, 0}, {2, 1}}
		}
		p := NewClassPtnFromLocal(c, ranks, ents)
		if !reflect.DeepEqual(p.modelEntToRank, want) {
			t.Errorf("rank %d: merged map %v, want %v", c.Rank(), p.modelEntToRank, want)
		}
		for ent, r := range want {
			if got := p.GetRank(ent); got != r {
				t.Errorf("rank %d: GetRank(%v) = %d, want %d", c.Rank(), ent, got, r)
			}
		}
	})
}

func TestClassPtnGetRankAbsentAborts(t *testing.T) {
	p := NewClassPtn()
	expectPanic(t, "absent entity", func() { p.GetRank(ModelEnt{0, 9}) })
}

func TestClassPtnRanksEntsPairing(t *testing.T) {
	p := NewClassPtn()
	p.modelEntToRank = map[ModelEnt]LO{
		{2, 1}: 5,
		{0, 3}: 9,
	}
	ents := p.GetModelEnts()
	ranks := p.GetRanks()
	if len(ents) != len(ranks) {
		t.Fatalf("length mismatch: %d vs %d", len(ents), len(ranks))
	}
	for i := range ents {
		if p.modelEntToRank[ents[i]] != ranks[i] {
			t.Errorf("position %d: entity %v paired with rank %d", i, ents[i], ranks[i])
		}
	}
}

func TestPartitionIndexStable(t *testing.T) {
	if idx := PartitionIndex(NewClassPtn()); idx != 0 {
		t.Errorf("ClassPtn index = %d, want 0", idx)
	}
	if idx := PartitionIndex(NewRCBPtn(2)); idx != 1 {
		t.Errorf("RCBPtn index = %d, want 1", idx)
	}
}
