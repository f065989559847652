package session

// transcript is the bounded caller-visible entry log. Callers hold the
// session lock.
type transcript struct {
	limit   int
	entries []Entry
}

// append adds an entry, dropping the oldest past the limit.
func (t *transcript) append(entry Entry) {
	t.entries = append(t.entries, entry)
	if t.limit > 0 && len(t.entries) > t.limit {
		t.entries = t.entries[len(t.entries)-t.limit:]
	}
}

// appendOrReplace swaps the existing agent entry for the same request in
// place, appending when none exists. Duplicate final responses therefore
// update the log instead of growing it.
func (t *transcript) appendOrReplace(entry Entry) (replaced bool) {
	if entry.RequestID != "" {
		for i := len(t.entries) - 1; i >= 0; i-- {
			if t.entries[i].Kind == EntryAgent && t.entries[i].RequestID == entry.RequestID {
				t.entries[i] = entry
				return true
			}
		}
	}
	t.append(entry)
	return false
}

func (t *transcript) snapshot() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}
