package message

import "testing"

func TestVectorClockRoundTrip(t *testing.T) {
	vc := VectorClock{"node-1": 3, "node-2": 1}
	got := DeserializeVectorClock(vc.Serialize())
	if len(got) != len(vc) {
		t.Fatalf("round trip length mismatch: got %v, want %v", got, vc)
	}
	for k, v := range vc {
		if got[k] != v {
			t.Errorf("round trip[%q] = %d, want %d", k, got[k], v)
		}
	}
}

func TestVectorClockEmptySerializesToEmptyString(t *testing.T) {
	vc := VectorClock{}
	if s := vc.Serialize(); s != "" {
		t.Fatalf("Serialize() = %q, want empty string", s)
	}
	if got := DeserializeVectorClock(""); len(got) != 0 {
		t.Fatalf("DeserializeVectorClock(\"\") = %v, want empty", got)
	}
}

func TestDeserializeDropsMalformedEntries(t *testing.T) {
	got := DeserializeVectorClock("node-1:3;garbage;node-2:;:;node-3:x;node-4:7")
	want := VectorClock{"node-1": 3, "node-4": 7}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("got[%q] = %d, want %d", k, got[k], v)
		}
	}
}

func TestCompareDominance(t *testing.T) {
	a := VectorClock{"node-1": 2, "node-2": 1}
	b := VectorClock{"node-1": 1, "node-2": 1}
	if rel := a.Compare(b); rel != After {
		t.Fatalf("a.Compare(b) = %v, want After", rel)
	}
	if rel := b.Compare(a); rel != Before {
		t.Fatalf("b.Compare(a) = %v, want Before", rel)
	}
}

func TestCompareConcurrent(t *testing.T) {
	a := VectorClock{"node-1": 2}
	b := VectorClock{"node-2": 3}
	if rel := a.Compare(b); rel != Concurrent {
		t.Fatalf("a.Compare(b) = %v, want Concurrent", rel)
	}
}

func TestCompareEqual(t *testing.T) {
	a := VectorClock{"node-1": 1}
	b := VectorClock{"node-1": 1}
	if rel := a.Compare(b); rel != Equal {
		t.Fatalf("a.Compare(b) = %v, want Equal", rel)
	}
}

func TestMergeTakesElementwiseMax(t *testing.T) {
	a := VectorClock{"node-1": 2}
	b := VectorClock{"node-1": 1, "node-2": 5}
	merged := a.Merge(b)
	if merged["node-1"] != 2 || merged["node-2"] != 5 {
		t.Fatalf("Merge() = %v, want {node-1:2 node-2:5}", merged)
	}
	if _, ok := a["node-2"]; ok {
		t.Fatalf("Merge mutated receiver: %v", a)
	}
}
