package kv

// Range is the key interval [Start, Limit). A nil Limit means the
// range has no upper bound.
type Range struct {
	Start []byte
	Limit []byte
}

// Prefix returns the range holding exactly the keys that start with
// prefix. A prefix made only of 0xff bytes has no upper bound.
func Prefix(prefix []byte) *Range {
	limit := append([]byte{}, prefix...)
	for len(limit) > 0 && limit[len(limit)-1] == 0xff {
		limit = limit[:len(limit)-1]
	}
	if len(limit) == 0 {
		return &Range{Start: prefix}
	}
	limit[len(limit)-1]++
	return &Range{Start: prefix, Limit: limit}
}
