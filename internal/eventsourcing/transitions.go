package eventsourcing

// Table is the adjacency list of legal status changes for one aggregate
// type. Terminal statuses map to an empty (or absent) set.
type Table[S comparable] map[S][]S

// Can reports whether from → to is a legal single-step transition.
func (t Table[S]) Can(from, to S) bool {
	for _, s := range t[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves the given status.
func (t Table[S]) Terminal(s S) bool {
	return len(t[s]) == 0
}
