package rng

import "testing"

func TestNewDeterministic(t *testing.T) {
	a := New(42)
	b := New(42)

	for i := 0; i < 100; i++ {
		if a.Float64() != b.Float64() {
			t.Fatalf("Sources with the same seed diverged at draw %d", i)
		}
	}
}

func TestNewDifferentSeeds(t *testing.T) {
	a := New(1)
	b := New(2)

	same := 0
	for i := 0; i < 20; i++ {
		if a.Uint64() == b.Uint64() {
			same++
		}
	}
	if same == 20 {
		t.Error("Different seeds produced identical streams")
	}
}

func TestFloat64Range(t *testing.T) {
	var s Source = New(7)
	for i := 0; i < 1000; i++ {
		v := s.Float64()
		if v < 0 || v >= 1 {
			t.Fatalf("Float64 out of [0,1): %f", v)
		}
	}
}

func TestDerive(t *testing.T) {
	if Derive(10, 0) != 10 || Derive(10, 3) != 13 {
		t.Error("Derive should offset the seed by the chain index")
	}
}
