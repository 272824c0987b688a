package history

import "testing"

func TestNewRing(t *testing.T) {
	t.Run("with valid size", func(t *testing.T) {
		r := NewRing[int](10)
		if r.Cap() != 10 {
			t.Errorf("Cap() = %d, want 10", r.Cap())
		}
		if r.Len() != 0 {
			t.Errorf("Len() = %d, want 0", r.Len())
		}
	})

	t.Run("with zero size uses default", func(t *testing.T) {
		r := NewRing[int](0)
		if r.Cap() != DefaultCapacity {
			t.Errorf("Cap() = %d, want %d (default)", r.Cap(), DefaultCapacity)
		}
	})

	t.Run("with negative size uses default", func(t *testing.T) {
		r := NewRing[int](-5)
		if r.Cap() != DefaultCapacity {
			t.Errorf("Cap() = %d, want %d (default)", r.Cap(), DefaultCapacity)
		}
	})
}

func TestRing_Overwrite(t *testing.T) {
	r := NewRing[int](3)

	for i := 1; i <= 3; i++ {
		if r.Push(i) {
			t.Fatalf("Push(%d) evicted before the ring was full", i)
		}
	}
	if !r.Push(4) {
		t.Fatal("Push(4) should evict the oldest element")
	}

	got := r.Oldest()
	want := []int{2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Oldest() = %v, want %v", got, want)
		}
	}

	newest := r.Newest()
	if newest[0] != 4 || newest[2] != 2 {
		t.Errorf("Newest() = %v, want [4 3 2]", newest)
	}
}

func TestRing_At(t *testing.T) {
	r := NewRing[string](2)
	r.Push("a")
	r.Push("b")
	r.Push("c")

	if v, ok := r.At(0); !ok || v != "b" {
		t.Errorf("At(0) = %q, %v; want b, true", v, ok)
	}
	if _, ok := r.At(2); ok {
		t.Error("At(2) should be out of range")
	}
	if _, ok := r.At(-1); ok {
		t.Error("At(-1) should be out of range")
	}
}

func TestRing_Metrics(t *testing.T) {
	r := NewRing[int](5)
	for i := 0; i < 12; i++ {
		r.Push(i)
	}

	m := r.Metrics()
	if m.Pushed != 12 {
		t.Errorf("Pushed = %d, want 12", m.Pushed)
	}
	if m.Evicted != 7 {
		t.Errorf("Evicted = %d, want 7", m.Evicted)
	}
	if m.Depth != 5 || m.Capacity != 5 {
		t.Errorf("Depth/Capacity = %d/%d, want 5/5", m.Depth, m.Capacity)
	}
}

func TestRing_SnapshotsAreCopies(t *testing.T) {
	r := NewRing[int](3)
	r.Push(1)
	snap := r.Oldest()
	snap[0] = 99

	if v, _ := r.At(0); v != 1 {
		t.Errorf("mutating a snapshot changed the ring: At(0) = %d", v)
	}
}
