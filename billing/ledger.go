/*
ledger.go - Derived state over the append-only status ledger

The status ledger replaces a mutable status column. Every workflow step
appends a row; nothing is ever updated or deleted. "Current status" is a
pure function of the rows: the entry with the maximal timestamp, ties
broken by insertion order. This preserves full history and avoids the
lost-update races of overwriting a single column.
*/
package billing

// CurrentStatus returns the newest ledger row, or nil for an empty log.
// Newest means maximal At; equal timestamps fall back to Seq, the
// insertion order assigned by the store.
func CurrentStatus(log []StatusLogEntry) *StatusLogEntry {
	var newest *StatusLogEntry
	for i := range log {
		e := &log[i]
		if newest == nil || e.At.After(newest.At) || (e.At.Equal(newest.At) && e.Seq > newest.Seq) {
			newest = e
		}
	}
	return newest
}

// CurrentStatusCode is CurrentStatus collapsed to the code; 0 for an
// empty log (an entity that somehow never received its seed row).
func CurrentStatusCode(log []StatusLogEntry) Status {
	if e := CurrentStatus(log); e != nil {
		return e.Status
	}
	return 0
}
