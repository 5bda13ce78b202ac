package services

import "sort"

// Classification partitions prev ∪ curr into three disjoint, sorted groups.
type Classification struct {
	New         []string // observed now, not active before
	StillActive []string // observed now and active before
	Removed     []string // active before, not observed now
}

// Diff classifies identifiers by comparing the previously active set with
// the currently observed one. Inputs may contain duplicates; outputs do not.
func Diff(prev, curr []string) Classification {
	prevSet := toSet(prev)
	currSet := toSet(curr)

	var c Classification
	for id := range currSet {
		if _, ok := prevSet[id]; ok {
			c.StillActive = append(c.StillActive, id)
		} else {
			c.New = append(c.New, id)
		}
	}
	for id := range prevSet {
		if _, ok := currSet[id]; !ok {
			c.Removed = append(c.Removed, id)
		}
	}

	sort.Strings(c.New)
	sort.Strings(c.StillActive)
	sort.Strings(c.Removed)
	return c
}

// ConfirmedExpired returns the ids the upstream expiry feed reports that were
// active before and are not observed now, sorted and without duplicates.
func ConfirmedExpired(prev, curr, expired []string) []string {
	prevSet := toSet(prev)
	currSet := toSet(curr)

	var out []string
	for id := range toSet(expired) {
		_, wasActive := prevSet[id]
		_, seen := currSet[id]
		if wasActive && !seen {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Union merges id lists into one sorted list without duplicates.
func Union(lists ...[]string) []string {
	set := make(map[string]struct{})
	for _, l := range lists {
		for _, id := range l {
			set[id] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Chunk splits ids into consecutive batches of at most size elements.
func Chunk(ids []string, size int) [][]string {
	if size <= 0 {
		size = len(ids)
	}
	var out [][]string
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[i:end])
	}
	return out
}

func toSet(ids []string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}
