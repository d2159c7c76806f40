package dsp

import "testing"

func TestSampleRing_AppendAndSnapshot(t *testing.T) {
	r, err := NewSampleRing(4)
	if err != nil {
		t.Fatalf("failed to create ring: %v", err)
	}

	r.Append(1, 2, 3)
	got := r.Snapshot()
	want := []float64{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestSampleRing_Wraparound(t *testing.T) {
	r, _ := NewSampleRing(3)
	r.Append(1, 2, 3, 4, 5)

	got := r.Snapshot()
	want := []float64{3, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %f, want %f", i, got[i], want[i])
		}
	}
	if r.Total() != 5 {
		t.Errorf("expected total 5, got %d", r.Total())
	}
}

func TestSampleRing_Tail(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		input    []float64
		n        int
		want     []float64
	}{
		{"last of partial fill", 8, []float64{1, 2, 3, 4}, 2, []float64{3, 4}},
		{"more than buffered", 8, []float64{1, 2}, 5, []float64{1, 2}},
		{"across wraparound", 4, []float64{1, 2, 3, 4, 5, 6}, 3, []float64{4, 5, 6}},
		{"zero", 4, []float64{1, 2}, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewSampleRing(tt.capacity)
			if err != nil {
				t.Fatalf("failed to create ring: %v", err)
			}
			r.Append(tt.input...)

			got := r.Tail(tt.n)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d samples, got %d", len(tt.want), len(got))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("sample %d: got %f, want %f", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSampleRing_EmptyAndClear(t *testing.T) {
	r, _ := NewSampleRing(2)
	if r.Snapshot() != nil {
		t.Error("empty ring snapshot should be nil")
	}

	r.Append(7)
	r.Clear()
	if r.Len() != 0 || r.Snapshot() != nil || r.Total() != 0 {
		t.Error("ring not empty after Clear")
	}
}

func TestSampleRing_InvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		if _, err := NewSampleRing(capacity); err == nil {
			t.Errorf("capacity %d: expected error", capacity)
		}
	}
}
