package report

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// TextRenderer writes a calculated report as aligned plain text.
type TextRenderer struct {
	// DPS is the number of decimal places quantities are stored with.
	DPS int
	// Lang selects digit grouping. Defaults to English.
	Lang language.Tag
}

type textLine struct {
	label    string
	cells    []string
	bordered bool
}

// Render writes r to w. Negative amounts are shown in parentheses.
func (tr TextRenderer) Render(w io.Writer, r *Report) error {
	p := tr.printer()

	var lines []textLine
	tr.collect(p, r.Entries, 0, len(r.Columns), &lines)

	labelWidth := utf8.RuneCountInString(r.Title)
	colWidths := make([]int, len(r.Columns))
	for i, c := range r.Columns {
		colWidths[i] = utf8.RuneCountInString(c)
	}
	for _, l := range lines {
		labelWidth = max(labelWidth, utf8.RuneCountInString(l.label))
		for i, c := range l.cells {
			colWidths[i] = max(colWidths[i], utf8.RuneCountInString(c))
		}
	}

	var b strings.Builder
	writeLine(&b, r.Title, r.Columns, labelWidth, colWidths)
	writeRule(&b, labelWidth, colWidths)
	for _, l := range lines {
		if l.bordered {
			writeRule(&b, labelWidth, colWidths)
		}
		writeLine(&b, l.label, l.cells, labelWidth, colWidths)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func (tr TextRenderer) collect(p *message.Printer, entries []Entry, depth, columns int, lines *[]textLine) {
	indent := strings.Repeat("  ", depth)
	for _, e := range entries {
		switch v := e.(type) {
		case *Section:
			if !v.Visible {
				continue
			}
			next := depth
			if v.Text != "" {
				*lines = append(*lines, textLine{label: indent + v.Text})
				next++
			}
			tr.collect(p, v.Entries, next, columns, lines)
		case *Row:
			if !v.Visible {
				continue
			}
			cells := make([]string, columns)
			for i := range cells {
				if i < len(v.Quantity) {
					cells[i] = tr.formatQuantity(p, v.Quantity[i])
				}
			}
			label := indent + v.Text
			if v.Heading {
				label = indent + strings.ToUpper(v.Text)
			}
			*lines = append(*lines, textLine{label: label, cells: cells, bordered: v.Bordered})
		case Spacer:
			*lines = append(*lines, textLine{})
		case *CalculatedRow:
			*lines = append(*lines, textLine{label: indent + "(uncalculated)"})
		}
	}
}

// FormatQuantity renders q, stored with tr.DPS implied decimal places, with
// digit grouping.
func (tr TextRenderer) FormatQuantity(q int64) string {
	return tr.formatQuantity(tr.printer(), q)
}

func (tr TextRenderer) printer() *message.Printer {
	lang := tr.Lang
	if lang == language.Und {
		lang = language.English
	}
	return message.NewPrinter(lang)
}

func (tr TextRenderer) formatQuantity(p *message.Printer, q int64) string {
	neg := q < 0
	if neg {
		q = -q
	}

	scale := int64(1)
	for range tr.DPS {
		scale *= 10
	}

	s := p.Sprintf("%d", q/scale)
	if tr.DPS > 0 {
		s += fmt.Sprintf(".%0*d", tr.DPS, q%scale)
	}
	if neg {
		return "(" + s + ")"
	}
	return s + " "
}

func writeLine(b *strings.Builder, label string, cells []string, labelWidth int, colWidths []int) {
	b.WriteString(pad(label, labelWidth, false))
	for i, w := range colWidths {
		b.WriteString("  ")
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		b.WriteString(pad(cell, w, true))
	}
	b.WriteString("\n")
}

func writeRule(b *strings.Builder, labelWidth int, colWidths []int) {
	total := labelWidth
	for _, w := range colWidths {
		total += 2 + w
	}
	b.WriteString(strings.Repeat("-", total))
	b.WriteString("\n")
}

func pad(s string, width int, right bool) string {
	n := width - utf8.RuneCountInString(s)
	if n <= 0 {
		return s
	}
	if right {
		return strings.Repeat(" ", n) + s
	}
	return s + strings.Repeat(" ", n)
}
