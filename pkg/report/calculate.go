package report

import (
	"slices"

	"github.com/rendis/tally/pkg/schema"
)

// Formula produces the literal row that replaces a CalculatedRow.
// The report passed in is a read-only snapshot.
type Formula interface {
	Calculate(r *Report) (*Row, error)
}

// FormulaFunc adapts a function to Formula.
type FormulaFunc func(r *Report) (*Row, error)

// Calculate calls f(r).
func (f FormulaFunc) Calculate(r *Report) (*Row, error) { return f(r) }

// Calculate returns a copy of the report in which every CalculatedRow is
// replaced by the row its formula produces. Rows are calculated in document
// order, each against the report as calculated so far, so a formula can read
// any row calculated before it by id. The receiver is not modified.
func (r *Report) Calculate() (*Report, error) {
	cur := &Report{Title: r.Title, Columns: r.Columns, Entries: r.Entries}

	for {
		path, ok := firstCalculated(cur.Entries)
		if !ok {
			break
		}

		calc := entryAt(cur.Entries, path).(*CalculatedRow)
		if calc.Formula == nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"calculated row at %v in %q has no formula", path, r.Title)
		}

		row, err := calc.Formula.Calculate(cur)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"calculate row at %v in %q: %s", path, r.Title, err.Error()).WithCause(err)
		}
		if row == nil {
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"formula at %v in %q returned no row", path, r.Title)
		}

		cur = &Report{Title: cur.Title, Columns: cur.Columns, Entries: replaceAt(cur.Entries, path, row)}
	}

	return cur.Clone().(*Report), nil
}

// firstCalculated returns the index path of the first CalculatedRow in
// depth-first document order.
func firstCalculated(entries []Entry) ([]int, bool) {
	for i, e := range entries {
		switch v := e.(type) {
		case *CalculatedRow:
			return []int{i}, true
		case *Section:
			if sub, ok := firstCalculated(v.Entries); ok {
				return append([]int{i}, sub...), true
			}
		}
	}
	return nil, false
}

func entryAt(entries []Entry, path []int) Entry {
	e := entries[path[0]]
	if len(path) == 1 {
		return e
	}
	return entryAt(e.(*Section).Entries, path[1:])
}

// replaceAt returns a copy of entries with the node at path replaced. Only the
// slices and sections along the path are copied.
func replaceAt(entries []Entry, path []int, with Entry) []Entry {
	out := slices.Clone(entries)
	if len(path) == 1 {
		out[path[0]] = with
		return out
	}
	sec := *out[path[0]].(*Section)
	sec.Entries = replaceAt(sec.Entries, path[1:], with)
	out[path[0]] = &sec
	return out
}
