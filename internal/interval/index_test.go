package interval

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestIndex_InsertMerges(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	idx.Insert("room-a", span(9, 0, 10, 0))
	idx.Insert("room-a", span(11, 0, 12, 0))
	idx.Insert("room-a", span(14, 0, 15, 0))
	idx.Insert("room-a", span(9, 30, 11, 15))
	idx.Insert("room-a", span(15, 0, 15, 30))
	idx.Insert("room-b", span(9, 0, 10, 0))

	want := []Interval{span(9, 0, 12, 0), span(14, 0, 15, 30)}
	if diff := cmp.Diff(want, idx.All("room-a")); diff != "" {
		t.Fatalf("unexpected stored intervals (-want +got):\n%s", diff)
	}
	if idx.Len("room-b") != 1 {
		t.Fatalf("expected resources to be isolated, got %d entries for room-b", idx.Len("room-b"))
	}
	if idx.Len("unknown") != 0 {
		t.Fatalf("expected empty set for unknown resource")
	}
}

func TestIndex_InsertSameStart(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	idx.Insert("r", span(9, 0, 10, 0))
	idx.Insert("r", span(9, 0, 9, 30))
	idx.Insert("r", span(9, 0, 11, 0))

	want := []Interval{span(9, 0, 11, 0)}
	if diff := cmp.Diff(want, idx.All("r")); diff != "" {
		t.Fatalf("unexpected stored intervals (-want +got):\n%s", diff)
	}
}

func TestIndex_Overlaps(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	idx.Insert("r", span(9, 0, 10, 0))
	idx.Insert("r", span(13, 0, 14, 0))

	cases := []struct {
		name  string
		query Interval
		want  bool
	}{
		{name: "touching before", query: span(8, 0, 9, 0), want: false},
		{name: "touching after", query: span(10, 0, 11, 0), want: false},
		{name: "straddles start", query: span(8, 30, 9, 15), want: true},
		{name: "inside", query: span(13, 15, 13, 45), want: true},
		{name: "covers everything", query: span(0, 0, 23, 0), want: true},
		{name: "gap", query: span(10, 0, 13, 0), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := idx.Overlaps("r", tc.query); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestIndex_Intersecting(t *testing.T) {
	t.Parallel()

	idx := NewIndex()
	idx.Insert("r", span(8, 0, 9, 30))
	idx.Insert("r", span(10, 0, 11, 0))
	idx.Insert("r", span(12, 0, 13, 0))
	idx.Insert("r", span(16, 0, 17, 0))

	got := idx.Intersecting("r", at(9, 0), at(12, 30))
	want := []Interval{span(8, 0, 9, 30), span(10, 0, 11, 0), span(12, 0, 13, 0)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected intersecting set (-want +got):\n%s", diff)
	}
}

func TestIndex_MatchesBruteForce(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	idx := NewIndex()
	inserted := make([]Interval, 0, 200)
	for range 200 {
		start := base.Add(time.Duration(rng.IntN(2000)) * time.Minute)
		iv := Interval{Start: start, End: start.Add(time.Duration(1+rng.IntN(90)) * time.Minute)}
		inserted = append(inserted, iv)
		idx.Insert("r", iv)
	}

	if diff := cmp.Diff(Merge(inserted), idx.All("r")); diff != "" {
		t.Fatalf("index diverged from merged input (-want +got):\n%s", diff)
	}

	for range 500 {
		start := base.Add(time.Duration(rng.IntN(2100)) * time.Minute)
		query := Interval{Start: start, End: start.Add(time.Duration(1+rng.IntN(60)) * time.Minute)}
		want := false
		for _, iv := range inserted {
			if iv.Overlaps(query) {
				want = true
				break
			}
		}
		if got := idx.Overlaps("r", query); got != want {
			t.Fatalf("query %s: expected %v, got %v", query, want, got)
		}
	}
}
