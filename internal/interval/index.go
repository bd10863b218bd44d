package interval

import (
	"time"

	"github.com/google/btree"
)

const treeDegree = 16

// Index stores, per resource, a set of non-overlapping intervals ordered by
// start. Inserting an interval that overlaps or touches stored intervals
// replaces them with their union.
//
// Index is not safe for concurrent mutation. Build it from a single goroutine
// and share it read-only afterwards.
type Index struct {
	trees map[string]*btree.BTreeG[Interval]
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{trees: make(map[string]*btree.BTreeG[Interval])}
}

func lessByStart(a, b Interval) bool {
	return a.Start.Before(b.Start)
}

func (x *Index) tree(resourceID string, create bool) *btree.BTreeG[Interval] {
	tree, ok := x.trees[resourceID]
	if !ok && create {
		tree = btree.NewG(treeDegree, lessByStart)
		x.trees[resourceID] = tree
	}
	return tree
}

// Insert adds iv to the resource's set, merging it with any stored interval
// it overlaps or touches. Empty intervals are ignored.
func (x *Index) Insert(resourceID string, iv Interval) {
	if iv.IsEmpty() {
		return
	}
	iv = iv.UTC()
	tree := x.tree(resourceID, true)

	merged := iv
	absorbed := make([]Interval, 0, 2)

	// At most one stored interval starts before iv and can reach into it.
	tree.DescendLessOrEqual(Interval{Start: iv.Start}, func(item Interval) bool {
		if !item.End.Before(iv.Start) {
			absorbed = append(absorbed, item)
			if item.Start.Before(merged.Start) {
				merged.Start = item.Start
			}
			if item.End.After(merged.End) {
				merged.End = item.End
			}
		}
		return false
	})

	tree.AscendGreaterOrEqual(Interval{Start: iv.Start}, func(item Interval) bool {
		if item.Start.After(merged.End) {
			return false
		}
		if item.Start.Equal(iv.Start) && len(absorbed) > 0 && absorbed[0].Start.Equal(item.Start) {
			return true
		}
		absorbed = append(absorbed, item)
		if item.End.After(merged.End) {
			merged.End = item.End
		}
		return true
	})

	for _, item := range absorbed {
		tree.Delete(item)
	}
	tree.ReplaceOrInsert(merged)
}

// Overlaps reports whether any stored interval for the resource overlaps iv.
func (x *Index) Overlaps(resourceID string, iv Interval) bool {
	found := false
	x.visit(resourceID, iv.Start, iv.End, func(Interval) bool {
		found = true
		return false
	})
	return found
}

// Intersecting returns the stored intervals overlapping [from, to), in
// ascending order.
func (x *Index) Intersecting(resourceID string, from, to time.Time) []Interval {
	out := make([]Interval, 0)
	x.visit(resourceID, from, to, func(item Interval) bool {
		out = append(out, item)
		return true
	})
	return out
}

// All returns every stored interval for the resource in ascending order.
func (x *Index) All(resourceID string) []Interval {
	tree := x.tree(resourceID, false)
	if tree == nil {
		return nil
	}
	out := make([]Interval, 0, tree.Len())
	tree.Ascend(func(item Interval) bool {
		out = append(out, item)
		return true
	})
	return out
}

// Len returns the number of disjoint intervals stored for the resource.
func (x *Index) Len(resourceID string) int {
	tree := x.tree(resourceID, false)
	if tree == nil {
		return 0
	}
	return tree.Len()
}

// visit calls fn for each stored interval overlapping [from, to) until fn
// returns false. Runs in O(log n + k).
func (x *Index) visit(resourceID string, from, to time.Time, fn func(Interval) bool) {
	tree := x.tree(resourceID, false)
	if tree == nil || !to.After(from) {
		return
	}
	from, to = from.UTC(), to.UTC()
	stop := false

	tree.DescendLessOrEqual(Interval{Start: from}, func(item Interval) bool {
		if item.End.After(from) && item.Start.Before(to) {
			stop = !fn(item)
		}
		return false
	})
	if stop {
		return
	}

	tree.AscendRange(Interval{Start: from}, Interval{Start: to}, func(item Interval) bool {
		if item.Start.Equal(from) {
			// Already visited by the descending probe above.
			return true
		}
		return fn(item)
	})
}
