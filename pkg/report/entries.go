package report

import (
	"slices"

	"github.com/rendis/tally/pkg/schema"
)

// EntriesForKind returns one auto-hiding row per account tagged with kind,
// sorted by account name, with one quantity per balances column. Quantities
// are negated when invert is set.
func EntriesForKind(kind string, invert bool, balances []map[string]int64, kindsForAccount map[string][]string) []Entry {
	var accounts []string
	for account, kinds := range kindsForAccount {
		if slices.Contains(kinds, kind) {
			accounts = append(accounts, account)
		}
	}
	slices.Sort(accounts)

	sign := int64(1)
	if invert {
		sign = -1
	}

	entries := make([]Entry, 0, len(accounts))
	for _, account := range accounts {
		quantity := make([]int64, len(balances))
		for i, b := range balances {
			quantity[i] = b[account] * sign
		}
		entries = append(entries, &Row{
			Text:     account,
			Quantity: quantity,
			Visible:  true,
			AutoHide: true,
			Link:     accountLink(account),
		})
	}
	return entries
}

func accountLink(account string) string {
	switch account {
	case schema.CurrentYearEarnings:
		return "/income-statement"
	case schema.RetainedEarnings:
		return ""
	default:
		return "/transactions/" + account
	}
}
