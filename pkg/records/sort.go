package records

import (
	"cmp"
	"iter"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// ExplodeGroups yields one record per survey group for records whose group
// field lists several ("2, 3"). Records with zero or one group pass through.
func ExplodeGroups(recs iter.Seq[PersonRecord]) iter.Seq[PersonRecord] {
	return func(yield func(PersonRecord) bool) {
		for rec := range recs {
			groups := SplitItems(rec.Group)
			if len(groups) <= 1 {
				if len(groups) == 1 {
					rec.Group = groups[0]
				}
				if !yield(rec) {
					return
				}
				continue
			}
			for _, g := range groups {
				dup := rec
				dup.Group = g
				dup.Attributes = maps.Clone(rec.Attributes)
				dup.Lists = maps.Clone(rec.Lists)
				dup.Targets = slices.Clone(rec.Targets)
				if !yield(dup) {
					return
				}
			}
		}
	}
}

// SortByGroupAndTime orders records by group (numeric groups ascending, then
// the rest lexically) and within a group by timestamp. The sort is stable.
func SortByGroupAndTime(recs []PersonRecord) {
	slices.SortStableFunc(recs, func(a, b PersonRecord) int {
		if c := CompareGroups(a.Group, b.Group); c != 0 {
			return c
		}
		return a.Timestamp.Compare(b.Timestamp)
	})
}

// CompareGroups compares group tags numerically when both are integers.
func CompareGroups(a, b string) int {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(na, nb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
