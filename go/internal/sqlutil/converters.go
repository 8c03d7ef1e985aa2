package sqlutil

// Helper functions for converting between Go types and the int32 columns pgx scans into

// ToInt32Ptr converts a Go int pointer to a nullable INTEGER value
func ToInt32Ptr(val *int) *int32 {
	if val == nil {
		return nil
	}
	v := int32(*val)
	return &v
}

// FromInt32Ptr converts a nullable INTEGER value to a Go int pointer
func FromInt32Ptr(val *int32) *int {
	if val == nil {
		return nil
	}
	v := int(*val)
	return &v
}

// ToInt32Slice converts for INTEGER[] columns
func ToInt32Slice(vals []int) []int32 {
	out := make([]int32, len(vals))
	for i, v := range vals {
		out[i] = int32(v)
	}
	return out
}

// FromInt32Slice converts an INTEGER[] column to []int, nil when empty
func FromInt32Slice(vals []int32) []int {
	if len(vals) == 0 {
		return nil
	}
	out := make([]int, len(vals))
	for i, v := range vals {
		out[i] = int(v)
	}
	return out
}
