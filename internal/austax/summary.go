package austax

import (
	"slices"

	"github.com/rendis/tally/pkg/report"
)

// taxItem is a return item summed from the accounts tagged with its kind.
type taxItem struct {
	id    string
	label string
	title string
	// Income is credit-normal and shown inverted.
	income bool
	// floorRows floors each account rather than only the total.
	floorRows bool
}

var incomeItems = []taxItem{
	{id: "income1", label: "1", title: "Salary or wages (1)", income: true, floorRows: true},
	{id: "income5", label: "5", title: "Australian Government allowances and payments (5)", income: true},
	{id: "income10", label: "10", title: "Gross interest (10)", income: true},
	{id: "income13", label: "13", title: "Partnerships and trusts (13)", income: true},
	{id: "income20", label: "20", title: "Foreign source income and foreign assets or property (20)", income: true},
	{id: "income24", label: "24", title: "Other income (24)", income: true},
}

var deductionItems = []taxItem{
	{id: "d2", label: "D2", title: "Work-related travel expenses (D2)"},
	{id: "d4", label: "D4", title: "Work-related self-education expenses (D4)"},
	{id: "d5", label: "D5", title: "Other work-related expenses (D5)"},
	{id: "d9", label: "D9", title: "Gifts or donations (D9)"},
	{id: "d15", label: "D15", title: "Other deductions (D15)"},
}

// ItemKind returns the account kind summed into the item with the given id,
// e.g. "austax.income1" or "austax.d2".
func ItemKind(id string) string { return "austax." + id }

// TaxSummary returns the uncalculated tax summary for the year's balances.
// Amounts are floored to whole dollars.
func TaxSummary(balances map[string]int64, kindsForAccount map[string][]string) *report.Report {
	columns := []map[string]int64{balances}

	var rfbTaxable int64
	for account, q := range balances {
		if slices.Contains(kindsForAccount[account], KindRFB) {
			rfbTaxable += q
		}
	}

	var entries []report.Entry
	for _, item := range incomeItems {
		entries = append(entries, item.section(columns, kindsForAccount))
	}
	entries = append(entries,
		sumRow("Total assessable income", "total_income", incomeItems),
		report.Spacer{},
	)
	for _, item := range deductionItems {
		entries = append(entries, item.section(columns, kindsForAccount))
	}
	entries = append(entries,
		sumRow("Total deductions", "total_deductions", deductionItems),
		report.Spacer{},
		calculated(func(r *report.Report) (*report.Row, error) {
			return &report.Row{
				Text:     "Net taxable income",
				Quantity: []int64{quantityOr(r, "total_income") - quantityOr(r, "total_deductions")},
				ID:       "net_taxable",
				Visible:  true,
				Heading:  true,
				Bordered: true,
			}, nil
		}),
		&report.Row{
			Text:     "Taxable value of reportable fringe benefits",
			Quantity: []int64{rfbTaxable},
			ID:       "rfb_taxable",
		},
		calculated(func(r *report.Report) (*report.Row, error) {
			return &report.Row{
				Text:     "Grossed-up value",
				Quantity: []int64{GrossedUpRFB(quantityOr(r, "rfb_taxable"))},
				ID:       "rfb_grossedup",
			}, nil
		}),
		report.Spacer{},
		calculated(func(r *report.Report) (*report.Row, error) {
			return &report.Row{
				Text:     "Base income tax",
				Quantity: []int64{BaseIncomeTax(quantityOr(r, "net_taxable"))},
				ID:       "tax_base",
				Visible:  true,
			}, nil
		}),
		calculated(func(r *report.Report) (*report.Row, error) {
			return &report.Row{
				Text:     "Total income tax",
				Quantity: []int64{quantityOr(r, "tax_base")},
				ID:       "total_tax",
				Visible:  true,
				Heading:  true,
				Bordered: true,
			}, nil
		}),
	)

	return report.New("Tax summary", []string{"$"}, entries...)
}

func (item taxItem) section(columns []map[string]int64, kindsForAccount map[string][]string) *report.Section {
	rows := report.EntriesForKind(ItemKind(item.id), item.income, columns, kindsForAccount)
	if item.floorRows {
		for _, e := range rows {
			if row, ok := e.(*report.Row); ok {
				row.Quantity = floorDollars(row.Quantity)
			}
		}
	}

	id, label := item.id, item.label
	rows = append(rows,
		calculated(func(r *report.Report) (*report.Row, error) {
			subtotal, err := r.SubtotalForID(id)
			if err != nil {
				return nil, err
			}
			return &report.Row{
				Text:     "Total item " + label,
				Quantity: floorDollars(subtotal),
				ID:       "total_" + id,
				Visible:  true,
				AutoHide: true,
				Heading:  true,
				Bordered: true,
			}, nil
		}),
		// Inside the section so it is hidden with it.
		report.Spacer{},
	)

	return &report.Section{Text: item.title, ID: item.id, Visible: true, AutoHide: true, Entries: rows}
}

// sumRow totals the first column of each item's total row.
func sumRow(text, id string, items []taxItem) *report.CalculatedRow {
	return calculated(func(r *report.Report) (*report.Row, error) {
		var total int64
		for _, item := range items {
			total += quantityOr(r, "total_"+item.id)
		}
		return &report.Row{
			Text:     text,
			Quantity: []int64{total},
			ID:       id,
			Visible:  true,
			Heading:  true,
			Bordered: true,
		}, nil
	})
}

func calculated(f func(r *report.Report) (*report.Row, error)) *report.CalculatedRow {
	return &report.CalculatedRow{Formula: report.FormulaFunc(f)}
}

// quantityOr returns the first column of the row with the given id, or 0.
func quantityOr(r *report.Report, id string) int64 {
	q, err := r.QuantityForID(id)
	if err != nil || len(q) == 0 {
		return 0
	}
	return q[0]
}

func floorDollars(quantity []int64) []int64 {
	out := make([]int64, len(quantity))
	for i, q := range quantity {
		out[i] = q / 100 * 100
	}
	return out
}
