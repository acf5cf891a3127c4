package stepio

import (
	"testing"
)

func TestKindOf(t *testing.T) {
	if KindOf[int32]() != KindInt32 {
		t.Error("int32 mapping")
	}
	if KindOf[float64]() != KindFloat64 {
		t.Error("float64 mapping")
	}
	if KindOf[complex128]() != KindComplex128 {
		t.Error("complex128 mapping")
	}
	if KindOf[bool]() != KindBool {
		t.Error("bool mapping")
	}
}

func TestKindSizes(t *testing.T) {
	cases := map[Kind]int{
		KindInt8: 1, KindInt16: 2, KindInt32: 4, KindInt64: 8,
		KindFloat32: 4, KindFloat64: 8, KindComplex64: 8, KindComplex128: 16,
		KindBool: 1, KindString: 1,
	}
	for k, want := range cases {
		if got := k.Size(); got != want {
			t.Errorf("Kind %d size = %d, want %d", k, got, want)
		}
	}
}

func TestMergeDisjointRanges(t *testing.T) {
	recs := []PutRecord{
		{Name: "v", Kind: KindUint8, Shape: 4, Start: 2, Count: 2, Data: []byte{3, 4}},
		{Name: "v", Kind: KindUint8, Shape: 4, Start: 0, Count: 2, Data: []byte{1, 2}},
	}
	st, err := Merge(recs)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	blk := st.Vars["v"]
	if blk == nil {
		t.Fatal("variable missing after merge")
	}
	for i, want := range []byte{1, 2, 3, 4} {
		if blk.Data[i] != want {
			t.Errorf("data[%d] = %d, want %d", i, blk.Data[i], want)
		}
	}
}

func TestMergeShapeMismatch(t *testing.T) {
	recs := []PutRecord{
		{Name: "v", Kind: KindUint8, Shape: 4, Start: 0, Count: 1, Data: []byte{1}},
		{Name: "v", Kind: KindUint8, Shape: 5, Start: 0, Count: 1, Data: []byte{1}},
	}
	if _, err := Merge(recs); err == nil {
		t.Error("expected a shape mismatch error")
	}
}

func TestMergeOutOfRange(t *testing.T) {
	recs := []PutRecord{
		{Name: "v", Kind: KindUint8, Shape: 2, Start: 1, Count: 2, Data: []byte{1, 2}},
	}
	if _, err := Merge(recs); err == nil {
		t.Error("expected an out-of-range error")
	}
}

func TestRecordCodecRoundTrip(t *testing.T) {
	in := []PutRecord{
		{Name: "a", Kind: KindInt32, Shape: 2, Start: 0, Count: 2, Data: []byte{1, 0, 0, 0, 2, 0, 0, 0}},
	}
	b, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out) != 1 || out[0].Name != "a" || out[0].Count != 2 {
		t.Errorf("round trip changed records: %+v", out)
	}
}

func TestStepCodecRoundTrip(t *testing.T) {
	st, err := Merge([]PutRecord{
		{Name: "x", Kind: KindFloat64, Shape: 1, Start: 0, Count: 1, Data: make([]byte, 8)},
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	b, err := EncodeStep(st)
	if err != nil {
		t.Fatalf("EncodeStep: %v", err)
	}
	got, err := DecodeStep(b)
	if err != nil {
		t.Fatalf("DecodeStep: %v", err)
	}
	if got.Vars["x"] == nil || got.Vars["x"].Shape != 1 {
		t.Errorf("round trip changed step: %+v", got.Vars)
	}
}
