package timeline

// IsConsecutive reports whether the next entry continues a run from the same
// speaker. A context change in the same step always breaks the run, even when
// role and source match, because the context marker visually interrupts it.
func IsConsecutive(prev *Speaker, next Speaker, contextChanged bool) bool {
	if prev == nil || contextChanged {
		return false
	}
	return prev.Role == next.Role && prev.Source == next.Source
}
