package facematch

import (
	"math"
	"reflect"
	"testing"
)

func TestComputeIoU(t *testing.T) {
	tests := []struct {
		name     string
		bbox1    []float64
		bbox2    []float64
		expected float64
	}{
		{"same box", []float64{10, 10, 50, 50}, []float64{10, 10, 50, 50}, 1.0},
		{"disjoint", []float64{0, 0, 5, 5}, []float64{6, 6, 9, 9}, 0.0},
		{"touching edge", []float64{0, 0, 5, 5}, []float64{5, 0, 10, 5}, 0.0},
		{"half shifted", []float64{0, 0, 10, 10}, []float64{5, 0, 15, 10}, 50.0 / 150.0},
		{"nested", []float64{0, 0, 20, 20}, []float64{5, 5, 15, 15}, 0.25},
		{"short bbox", []float64{0, 0, 10}, []float64{0, 0, 10, 10}, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ComputeIoU(tt.bbox1, tt.bbox2)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("ComputeIoU(%v, %v) = %v, want %v", tt.bbox1, tt.bbox2, result, tt.expected)
			}
		})
	}
}

func TestBoxArea(t *testing.T) {
	tests := []struct {
		bbox []float64
		want float64
	}{
		{[]float64{0, 0, 10, 5}, 50},
		{[]float64{10, 10, 0, 0}, 0},
		{[]float64{0, 0, 10}, 0},
		{nil, 0},
	}

	for _, tt := range tests {
		if got := BoxArea(tt.bbox); got != tt.want {
			t.Errorf("BoxArea(%v) = %v, want %v", tt.bbox, got, tt.want)
		}
	}
}

func TestSuppressOverlapping(t *testing.T) {
	boxes := [][]float64{
		{0, 0, 10, 10},
		{1, 1, 11, 11},
		{100, 100, 120, 120},
		nil,
	}
	scores := []float64{0.6, 0.9, 0.5, 0.4} // box 0 is a weaker duplicate of box 1

	got := SuppressOverlapping(boxes, scores, 0.5)
	want := []int{1, 2, 3}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SuppressOverlapping() = %v, want %v", got, want)
	}
}

func TestSuppressOverlapping_Empty(t *testing.T) {
	if got := SuppressOverlapping(nil, nil, 0.5); len(got) != 0 {
		t.Errorf("expected nothing kept, got %v", got)
	}
}
