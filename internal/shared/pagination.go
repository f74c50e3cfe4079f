package shared

// ClampLimit bounds a caller supplied result limit to [1, max], substituting def when unset.
func ClampLimit(limit, def, max int) int {
	if def <= 0 {
		def = 20
	}
	if max < def {
		max = def
	}
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
