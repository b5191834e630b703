package report

// AutoHide returns a copy of the report with hideable entries removed,
// bottom up. A row is removed when it has AutoHide set and every quantity is
// zero. A section is removed when it has AutoHide set and every child left
// after pruning could itself be hidden; spacers and empty sections count as
// hideable. Spacers are only removed along with their section.
func (r *Report) AutoHide() *Report {
	out := r.Clone().(*Report)
	out.Entries = pruneEntries(out.Entries)
	return out
}

func pruneEntries(entries []Entry) []Entry {
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		switch v := e.(type) {
		case *Section:
			v.Entries = pruneEntries(v.Entries)
			if v.canHide() {
				continue
			}
		case *Row:
			if v.canHide() {
				continue
			}
		}
		kept = append(kept, e)
	}
	return kept
}

func (r *Row) canHide() bool {
	if !r.AutoHide {
		return false
	}
	for _, q := range r.Quantity {
		if q != 0 {
			return false
		}
	}
	return true
}

func (s *Section) canHide() bool {
	if !s.AutoHide {
		return false
	}
	for _, e := range s.Entries {
		switch v := e.(type) {
		case *Section:
			if !v.canHide() {
				return false
			}
		case *Row:
			if !v.canHide() {
				return false
			}
		case *CalculatedRow:
			return false
		}
	}
	return true
}
