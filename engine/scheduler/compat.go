package scheduler

// usagesCompatible decides whether two tasks may record concurrently on independent command
// lists and be submitted without an intervening barrier batch. Both usage lists must already be
// sorted by resource identity (Setup guarantees this); the merge walk is O(len(a) + len(b)).
//
// A conflict exists when the two tasks share a resource and either:
//   - any record on one side declares a FirstState different from any record on the other, or
//   - either side marked the shared resource MultipleUse.
//
// Conflicts are judged at whole-resource granularity. Two tasks touching disjoint subresources
// of the same resource could in principle overlap, but subresource-level proof is not worth the
// bookkeeping for the barrier elision it would buy.
func usagesCompatible(a, b []UsageRecord) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		aid, bid := a[i].Resource.ID(), b[j].Resource.ID()
		switch {
		case aid < bid:
			i++
		case bid < aid:
			j++
		default:
			// Shared resource: examine the full run of records on both sides.
			iEnd := i
			for iEnd < len(a) && a[iEnd].Resource.ID() == aid {
				iEnd++
			}
			jEnd := j
			for jEnd < len(b) && b[jEnd].Resource.ID() == aid {
				jEnd++
			}
			for _, u := range a[i:iEnd] {
				if u.MultipleUse {
					return false
				}
				for _, v := range b[j:jEnd] {
					if v.MultipleUse || u.FirstState != v.FirstState {
						return false
					}
				}
			}
			i, j = iEnd, jEnd
		}
	}
	return true
}

// compatibleWithAll reports whether the candidate usage list is parallel-compatible with every
// usage list in others. Used both by the schedule builder's look-ahead and by the record pass's
// admission guard.
func compatibleWithAll(candidate []UsageRecord, others ...[]UsageRecord) bool {
	for _, o := range others {
		if !usagesCompatible(candidate, o) {
			return false
		}
	}
	return true
}
