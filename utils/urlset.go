package utils

// URLSet records the URLs seen during one page parse. Not safe for
// concurrent use.
type URLSet map[string]struct{}

// NewURLSet creates an empty URLSet.
func NewURLSet() URLSet {
	return make(URLSet)
}

// Add reports whether u was new, recording it either way.
func (s URLSet) Add(u string) bool {
	if _, ok := s[u]; ok {
		return false
	}
	s[u] = struct{}{}
	return true
}
