// Package contracts describes the static and dynamic effects of each tool
// the planner can call: what state it reads, what it writes, and whether
// repeated or reordered calls are safe.
package contracts

// StateKey names a piece of backend state a tool reads or writes, e.g.
// "db.users" or "fs.file:/tmp/report.txt".
type StateKey string

// KeySet is an unordered set of StateKeys.
type KeySet map[StateKey]struct{}

// NewKeySet builds a KeySet from the given keys.
func NewKeySet(keys ...StateKey) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Intersects reports whether the two sets share any key.
func (s KeySet) Intersects(other KeySet) bool {
	small, big := s, other
	if len(big) < len(small) {
		small, big = big, small
	}
	for k := range small {
		if _, ok := big[k]; ok {
			return true
		}
	}
	return false
}

// Union returns a new set containing every key in either set.
func (s KeySet) Union(other KeySet) KeySet {
	out := make(KeySet, len(s)+len(other))
	for k := range s {
		out[k] = struct{}{}
	}
	for k := range other {
		out[k] = struct{}{}
	}
	return out
}

// Empty reports whether the set has no members.
func (s KeySet) Empty() bool {
	return len(s) == 0
}

// Slice returns the set's members in no particular order.
func (s KeySet) Slice() []StateKey {
	out := make([]StateKey, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}
