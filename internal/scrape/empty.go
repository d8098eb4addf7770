package scrape

// IsEmpty reports whether v carries no extracted information: nulls, empty
// strings, empty lists, and objects whose every value is itself empty. A
// backend response that is "successful" but empty by this predicate is
// treated as a failure so the caller falls through to the next backend.
func IsEmpty(v Value) bool {
	switch t := v.(type) {
	case nil:
		return true
	case String:
		return t == ""
	case Number, Bool:
		return false
	case List:
		if len(t) == 0 {
			return true
		}
		// A single-element list is as empty as its element.
		if len(t) == 1 {
			return IsEmpty(t[0])
		}
		return false
	case Object:
		for _, item := range t {
			if !IsEmpty(item) {
				return false
			}
		}
		return true
	default:
		return true
	}
}
