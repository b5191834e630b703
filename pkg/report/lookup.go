package report

import "github.com/rendis/tally/pkg/schema"

// ByID returns the first section or row with the given id, searching depth
// first in document order. It returns nil when nothing matches.
func (r *Report) ByID(id string) Entry {
	return byID(r.Entries, id)
}

func byID(entries []Entry, id string) Entry {
	if id == "" {
		return nil
	}
	for _, e := range entries {
		switch v := e.(type) {
		case *Section:
			if v.ID == id {
				return v
			}
			if found := byID(v.Entries, id); found != nil {
				return found
			}
		case *Row:
			if v.ID == id {
				return v
			}
		}
	}
	return nil
}

// Subtotal sums the literal rows under s, recursing into nested sections.
// Calculated rows that are still pending and spacers contribute nothing.
func (s *Section) Subtotal(columns int) []int64 {
	totals := make([]int64, columns)
	addSubtotals(totals, s.Entries)
	return totals
}

func addSubtotals(totals []int64, entries []Entry) {
	for _, e := range entries {
		switch v := e.(type) {
		case *Section:
			addSubtotals(totals, v.Entries)
		case *Row:
			for i, q := range v.Quantity {
				if i < len(totals) {
					totals[i] += q
				}
			}
		}
	}
}

// SubtotalFor returns the subtotal of s over the report's columns.
func (r *Report) SubtotalFor(s *Section) []int64 {
	return s.Subtotal(len(r.Columns))
}

// SubtotalForID returns the subtotal of the section with the given id.
func (r *Report) SubtotalForID(id string) ([]int64, error) {
	switch v := r.ByID(id).(type) {
	case nil:
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no entry with id %q in %q", id, r.Title)
	case *Section:
		return r.SubtotalFor(v), nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "entry %q in %q is not a section", id, r.Title)
	}
}

// QuantityForID returns the quantities of the row with the given id.
func (r *Report) QuantityForID(id string) ([]int64, error) {
	switch v := r.ByID(id).(type) {
	case nil:
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no entry with id %q in %q", id, r.Title)
	case *Row:
		out := make([]int64, len(r.Columns))
		copy(out, v.Quantity)
		return out, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "entry %q in %q is not a row", id, r.Title)
	}
}
