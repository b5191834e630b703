// Package report implements the calculated report tree produced by report
// steps: sections, literal rows, rows computed from the rest of the report,
// and spacers.
package report

import (
	"slices"

	"github.com/rendis/tally/pkg/schema"
)

// Entry is a node of the report tree: *Section, *Row, *CalculatedRow or Spacer.
type Entry interface {
	isEntry()
}

// Report is a titled report with one quantity per column on every row.
type Report struct {
	Title   string
	Columns []string
	Entries []Entry
}

// Section groups entries under an optional heading.
type Section struct {
	Text     string
	ID       string
	Visible  bool
	AutoHide bool
	Entries  []Entry
}

// Row is a literal row. Quantities are in the commodity's smallest unit.
type Row struct {
	Text     string
	Quantity []int64
	ID       string
	Visible  bool
	AutoHide bool
	Link     string
	Heading  bool
	Bordered bool
}

// CalculatedRow is replaced by a Row when the report is calculated.
type CalculatedRow struct {
	Formula Formula
}

// Spacer is a blank line.
type Spacer struct{}

func (*Section) isEntry()       {}
func (*Row) isEntry()           {}
func (*CalculatedRow) isEntry() {}
func (Spacer) isEntry()         {}

// New returns a report with the given title, columns and entries.
func New(title string, columns []string, entries ...Entry) *Report {
	return &Report{Title: title, Columns: columns, Entries: entries}
}

// ProductKind implements schema.Product.
func (*Report) ProductKind() schema.ProductKind { return schema.KindDynamicReport }

// Clone implements schema.Product with a deep copy of the tree.
func (r *Report) Clone() schema.Product {
	return &Report{
		Title:   r.Title,
		Columns: slices.Clone(r.Columns),
		Entries: cloneEntries(r.Entries),
	}
}

// IsCalculated reports whether no CalculatedRow remains in the tree.
func (r *Report) IsCalculated() bool {
	_, ok := firstCalculated(r.Entries)
	return !ok
}

func cloneEntries(entries []Entry) []Entry {
	if entries == nil {
		return nil
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = cloneEntry(e)
	}
	return out
}

func cloneEntry(e Entry) Entry {
	switch v := e.(type) {
	case *Section:
		s := *v
		s.Entries = cloneEntries(v.Entries)
		return &s
	case *Row:
		row := *v
		row.Quantity = slices.Clone(v.Quantity)
		return &row
	case *CalculatedRow:
		c := *v
		return &c
	default:
		return e
	}
}

var _ schema.Product = (*Report)(nil)
