package stream

// SameIDs reports whether a and b contain the same set of ids. Order and
// duplicates are ignored, and the comparison is symmetric: an id present in
// only one of the lists makes them different.
func SameIDs[K comparable](a, b []K) bool {
	inA := make(map[K]struct{}, len(a))
	for _, id := range a {
		inA[id] = struct{}{}
	}

	inB := make(map[K]struct{}, len(b))
	for _, id := range b {
		if _, ok := inA[id]; !ok {
			return false
		}
		inB[id] = struct{}{}
	}

	return len(inA) == len(inB)
}
