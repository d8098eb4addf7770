package scrape

// Merge combines a freshly scraped payload with the previously stored one.
// The incoming value wins except where it is null and the stored value is
// not: a later incomplete scrape must never erase fields an earlier scrape
// captured. Nested objects merge field by field; lists are replaced whole.
// Merge(x, x) == x.
func Merge(existing, incoming Object) Object {
	if incoming == nil {
		return existing.Clone()
	}
	if existing == nil {
		return incoming.Clone()
	}
	out := make(Object, len(incoming)+len(existing))
	for k, v := range incoming {
		out[k] = mergeValue(existing[k], v)
	}
	for k, v := range existing {
		if _, present := incoming[k]; !present {
			out[k] = cloneValue(v)
		}
	}
	return out
}

func mergeValue(existing, incoming Value) Value {
	if incoming == nil {
		return cloneValue(existing)
	}
	incomingObj, inOK := incoming.(Object)
	existingObj, exOK := existing.(Object)
	if inOK && exOK {
		return Merge(existingObj, incomingObj)
	}
	return cloneValue(incoming)
}

func cloneValue(v Value) Value {
	switch t := v.(type) {
	case List:
		out := make(List, 0, len(t))
		for _, item := range t {
			out = append(out, cloneValue(item))
		}
		return out
	case Object:
		return t.Clone()
	default:
		return v
	}
}
