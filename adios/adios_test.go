package adios

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/scorec/redev-go/pg"
)

func testParams() Params {
	return Params{{Key: "OpenTimeoutSecs", Value: "30"}}
}

func TestParamsGet(t *testing.T) {
	p := Params{
		{Key: "Streaming", Value: "OFF"},
		{Key: "Streaming", Value: "ON"},
	}
	v, ok := p.Get("Streaming")
	if !ok || v != "ON" {
		t.Errorf("Get(Streaming) = %q, %v; want ON, true", v, ok)
	}
	if _, ok := p.Get("Absent"); ok {
		t.Error("Get(Absent) reported present")
	}
}

func TestDeclareIOIsIdempotent(t *testing.T) {
	ad := New(nil)
	a := ad.DeclareIO("x")
	b := ad.DeclareIO("x")
	if a != b {
		t.Error("DeclareIO returned distinct handles for one name")
	}
}

func TestUnsupportedEngine(t *testing.T) {
	ad := New(nil)
	io := ad.DeclareIO("x")
	io.SetEngine("HDF5")
	_, err := io.Open("x", OpenModeWrite, pg.NewLocalGroup(1)[0])
	if !errors.Is(err, ErrUnsupportedEngine) {
		t.Errorf("Open with HDF5 engine: err = %v, want ErrUnsupportedEngine", err)
	}
}

func TestEngineTypeCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	ad := New(nil)
	io := ad.DeclareIO("ci")
	io.SetEngine("bp4")
	io.SetParameters(testParams())
	eng, err := io.Open(filepath.Join(dir, "ci.bp"), OpenModeWrite, pg.NewLocalGroup(1)[0])
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := eng.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

// One writer rank, one reader rank, two steps over the file engine; the
// reader then observes end-of-stream.
func TestBP4StepRoundTrip(t *testing.T) {
	stream := filepath.Join(t.TempDir(), "s.bp")
	wComm := pg.NewLocalGroup(1)[0]
	rComm := pg.NewLocalGroup(1)[0]
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ad := New(nil)
		io := ad.DeclareIO("w")
		io.SetEngine("BP4")
		io.SetParameters(testParams())
		eng, err := io.Open(stream, OpenModeWrite, wComm)
		if err != nil {
			t.Errorf("writer open: %v", err)
			return
		}
		for step := 0; step < 2; step++ {
			if st := eng.BeginStep(); st != StepStatusOK {
				t.Errorf("writer BeginStep = %v", st)
			}
			v := DefineVariable[int64](io, "vals", 3, 0, 3)
			Put(eng, v, []int64{10 + int64(step), 20, 30}, ModeDeferred)
			eng.PerformPuts()
			if err := eng.EndStep(); err != nil {
				t.Errorf("writer EndStep: %v", err)
			}
		}
		if err := eng.Close(); err != nil {
			t.Errorf("writer close: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		ad := New(nil)
		io := ad.DeclareIO("r")
		io.SetEngine("BP4")
		io.SetParameters(testParams())
		eng, err := io.Open(stream, OpenModeRead, rComm)
		if err != nil {
			t.Errorf("reader open: %v", err)
			return
		}
		for step := 0; step < 2; step++ {
			if st := eng.BeginStep(); st != StepStatusOK {
				t.Errorf("reader BeginStep = %v", st)
				return
			}
			v := InquireVariable[int64](eng, "vals")
			if v == nil {
				t.Error("vals not found")
				return
			}
			if v.Shape() != 3 {
				t.Errorf("shape = %d, want 3", v.Shape())
			}
			out := make([]int64, 2)
			v.SetSelection(1, 2)
			if err := Get(eng, v, out, ModeDeferred); err != nil {
				t.Errorf("Get: %v", err)
			}
			if err := eng.PerformGets(); err != nil {
				t.Errorf("PerformGets: %v", err)
			}
			if out[0] != 20 || out[1] != 30 {
				t.Errorf("step %d: out = %v", step, out)
			}
			if err := eng.EndStep(); err != nil {
				t.Errorf("reader EndStep: %v", err)
			}
		}
		if st := eng.BeginStep(); st != StepStatusEndOfStream {
			t.Errorf("BeginStep after close = %v, want EndOfStream", st)
		}
		if err := eng.Close(); err != nil {
			t.Errorf("reader close: %v", err)
		}
	}()
	wg.Wait()
}

// Two writer ranks contribute disjoint windows of one variable; the merge
// happens at EndStep and a reader sees the whole step.
func TestBP4MultiRankMerge(t *testing.T) {
	stream := filepath.Join(t.TempDir(), "m.bp")
	wComms := pg.NewLocalGroup(2)
	var wg sync.WaitGroup
	for _, c := range wComms {
		wg.Add(1)
		go func(c pg.Comm) {
			defer wg.Done()
			ad := New(nil)
			io := ad.DeclareIO("w")
			io.SetEngine("BP4")
			io.SetParameters(testParams())
			eng, err := io.Open(stream, OpenModeWrite, c)
			if err != nil {
				t.Errorf("writer open: %v", err)
				return
			}
			eng.BeginStep()
			v := DefineVariable[int32](io, "vals", 4, uint64(2*c.Rank()), 2)
			Put(eng, v, []int32{int32(10 * (c.Rank() + 1)), int32(10*(c.Rank()+1) + 1)}, ModeSynchronous)
			eng.PerformPuts()
			if err := eng.EndStep(); err != nil {
				t.Errorf("EndStep: %v", err)
			}
			if err := eng.Close(); err != nil {
				t.Errorf("close: %v", err)
			}
		}(c)
	}
	wg.Wait()

	ad := New(nil)
	io := ad.DeclareIO("r")
	io.SetEngine("BP4")
	io.SetParameters(testParams())
	eng, err := io.Open(stream, OpenModeRead, pg.NewLocalGroup(1)[0])
	if err != nil {
		t.Fatalf("reader open: %v", err)
	}
	if st := eng.BeginStep(); st != StepStatusOK {
		t.Fatalf("BeginStep = %v", st)
	}
	v := InquireVariable[int32](eng, "vals")
	if v == nil {
		t.Fatal("vals not found")
	}
	out := make([]int32, 4)
	v.SetSelection(0, 4)
	if err := Get(eng, v, out, ModeSynchronous); err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := []int32{10, 11, 20, 21}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %d, want %d", i, out[i], want[i])
		}
	}
}

// SST writer and reader rendezvous at open and stream a step.
func TestSSTRendezvous(t *testing.T) {
	stream := filepath.Join(t.TempDir(), "sst-stream")
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ad := New(nil)
		io := ad.DeclareIO("w")
		io.SetEngine("SST")
		io.SetParameters(testParams())
		eng, err := io.Open(stream, OpenModeWrite, pg.NewLocalGroup(1)[0])
		if err != nil {
			t.Errorf("writer open: %v", err)
			return
		}
		eng.BeginStep()
		PutString(eng, "greeting", "hello")
		if err := eng.EndStep(); err != nil {
			t.Errorf("EndStep: %v", err)
		}
		if err := eng.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		ad := New(nil)
		io := ad.DeclareIO("r")
		io.SetEngine("SST")
		io.SetParameters(testParams())
		eng, err := io.Open(stream, OpenModeRead, pg.NewLocalGroup(1)[0])
		if err != nil {
			t.Errorf("reader open: %v", err)
			return
		}
		if st := eng.BeginStep(); st != StepStatusOK {
			t.Errorf("BeginStep = %v", st)
			return
		}
		got, err := GetString(eng, "greeting")
		if err != nil || got != "hello" {
			t.Errorf("GetString = %q, %v", got, err)
		}
		if err := eng.EndStep(); err != nil {
			t.Errorf("EndStep: %v", err)
		}
		if st := eng.BeginStep(); st != StepStatusEndOfStream {
			t.Errorf("BeginStep after close = %v, want EndOfStream", st)
		}
		if err := eng.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	}()
	wg.Wait()
}

func TestSSTOpenTimesOut(t *testing.T) {
	ad := New(nil)
	io := ad.DeclareIO("lonely")
	io.SetEngine("SST")
	io.SetParameters(Params{{Key: "OpenTimeoutSecs", Value: "1"}})
	_, err := io.Open(filepath.Join(t.TempDir(), "lonely"), OpenModeWrite, pg.NewLocalGroup(1)[0])
	if err == nil {
		t.Error("writer open with no reader should time out")
	}
}

func TestGetMissingVariable(t *testing.T) {
	stream := filepath.Join(t.TempDir(), "missing.bp")
	wComm := pg.NewLocalGroup(1)[0]
	ad := New(nil)
	wio := ad.DeclareIO("w")
	wio.SetEngine("BP4")
	wio.SetParameters(testParams())
	weng, err := wio.Open(stream, OpenModeWrite, wComm)
	if err != nil {
		t.Fatalf("writer open: %v", err)
	}
	weng.BeginStep()
	if err := weng.EndStep(); err != nil {
		t.Fatalf("EndStep: %v", err)
	}

	rio := ad.DeclareIO("r")
	rio.SetEngine("BP4")
	rio.SetParameters(testParams())
	reng, err := rio.Open(stream, OpenModeRead, pg.NewLocalGroup(1)[0])
	if err != nil {
		t.Fatalf("reader open: %v", err)
	}
	if st := reng.BeginStep(); st != StepStatusOK {
		t.Fatalf("BeginStep = %v", st)
	}
	if v := InquireVariable[int32](reng, "nothere"); v != nil {
		t.Error("InquireVariable found an absent variable")
	}
	if _, err := GetString(reng, "nothere"); err == nil {
		t.Error("GetString of an absent variable should fail")
	}
}
