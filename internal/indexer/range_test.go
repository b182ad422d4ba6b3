package indexer

import (
	"reflect"
	"testing"
)

func TestSplitRangeEvenly(t *testing.T) {
	got, err := SplitRange(0, 99, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []BlockRange{{From: 0, To: 49}, {From: 50, To: 99}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestSplitRangeRemainder(t *testing.T) {
	got, err := SplitRange(0, 120, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []BlockRange{{From: 0, To: 49}, {From: 50, To: 99}, {From: 100, To: 120}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestSplitRangeSingleBlock(t *testing.T) {
	got, err := SplitRange(5, 5, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []BlockRange{{From: 5, To: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestSplitRangeRejectsInverted(t *testing.T) {
	if _, err := SplitRange(10, 5, 50); err == nil {
		t.Fatalf("expected error for to < from")
	}
}

func TestSplitRangeRejectsZeroChunk(t *testing.T) {
	if _, err := SplitRange(0, 10, 0); err == nil {
		t.Fatalf("expected error for zero chunk size")
	}
}

func TestHalve(t *testing.T) {
	r := BlockRange{From: 100, To: 199}
	h := r.Halve()
	if h.From != 100 || h.To != 149 {
		t.Fatalf("halve = %+v, want {100 149}", h)
	}
}

func TestHalveSingleBlockIsNoop(t *testing.T) {
	r := BlockRange{From: 100, To: 100}
	h := r.Halve()
	if h != r {
		t.Fatalf("halve of single block = %+v, want %+v", h, r)
	}
}
