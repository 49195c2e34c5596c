package alerts

// Deduplicator remembers the last alert shown to the operator.
// It is not safe for concurrent use; the owning session serializes access.
type Deduplicator struct {
	last string
}

// Observe reports whether alert should be shown: it is non-empty and
// differs from the last one shown. A shown alert becomes the last one. An
// empty alert is ignored and does not reset the last one, so the same text
// reappearing after the field was cleared is not shown again.
func (d *Deduplicator) Observe(alert string) bool {
	if alert == "" || alert == d.last {
		return false
	}
	d.last = alert
	return true
}

// Last returns the last alert shown.
func (d *Deduplicator) Last() string {
	return d.last
}

// OverrideSet is the ordered set of users awaiting a manual override.
type OverrideSet struct {
	ids []string
}

// Replace discards the current members and adds ids in order, skipping
// duplicates.
func (s *OverrideSet) Replace(ids []string) {
	s.ids = s.ids[:0]
	for _, id := range ids {
		if !s.Contains(id) {
			s.ids = append(s.ids, id)
		}
	}
}

// Remove deletes id and reports whether it was present.
func (s *OverrideSet) Remove(id string) bool {
	for i, v := range s.ids {
		if v == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether id is in the set.
func (s *OverrideSet) Contains(id string) bool {
	for _, v := range s.ids {
		if v == id {
			return true
		}
	}
	return false
}

// List returns a copy of the members in insertion order.
func (s *OverrideSet) List() []string {
	return append([]string(nil), s.ids...)
}

// Len returns the number of members.
func (s *OverrideSet) Len() int {
	return len(s.ids)
}
