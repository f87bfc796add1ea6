package content

// Clone returns a copy of p that shares no maps or slices with it. Payloads
// decoded from JSON (maps, slices, scalars) are copied deeply; other values
// stored in Input or Output are copied by assignment.
func Clone(p Part) Part {
	switch v := p.(type) {
	case Reasoning:
		v.Metadata = cloneMap(v.Metadata)
		return v
	case Tool:
		v.Input = cloneValue(v.Input)
		v.Output = cloneValue(v.Output)
		return v
	case Unknown:
		v.Fields = cloneMap(v.Fields)
		return v
	}

	return p
}

// CloneAll clones every part of parts into a new slice.
func CloneAll(parts []Part) []Part {
	if parts == nil {
		return nil
	}

	out := make([]Part, len(parts))
	for i, p := range parts {
		out[i] = Clone(p)
	}

	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	}

	return v
}
