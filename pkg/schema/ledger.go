package schema

import "time"

// Account classification tags recognised by the bookkeeping steps.
const (
	AccountKindAsset     = "drcr.asset"
	AccountKindLiability = "drcr.liability"
	AccountKindEquity    = "drcr.equity"
	AccountKindIncome    = "drcr.income"
	AccountKindExpense   = "drcr.expense"
)

// System accounts.
const (
	CurrentYearEarnings              = "Current Year Earnings"
	RetainedEarnings                 = "Retained Earnings"
	UnclassifiedStatementLineDebits  = "Unclassified Statement Line Debits"
	UnclassifiedStatementLineCredits = "Unclassified Statement Line Credits"
	IncomeTax                        = "Income Tax"
	IncomeTaxControl                 = "Income Tax Control"
)

// Transaction is a dated journal entry header.
type Transaction struct {
	ID          *int64    `json:"id,omitempty"`
	DT          time.Time `json:"dt"`
	Description string    `json:"description"`
}

// Posting is a single leg of a transaction. Quantity is a signed integer in the
// commodity's smallest unit; debits are positive.
type Posting struct {
	ID             *int64  `json:"id,omitempty"`
	TransactionID  *int64  `json:"transaction_id,omitempty"`
	Description    *string `json:"description,omitempty"`
	Account        string  `json:"account"`
	Quantity       int64   `json:"quantity"`
	Commodity      string  `json:"commodity"`
	QuantityAsCost *int64  `json:"quantity_ascost,omitempty"`
}

// TransactionWithPostings is a transaction and its postings.
type TransactionWithPostings struct {
	Transaction Transaction `json:"transaction"`
	Postings    []Posting   `json:"postings"`
}

// Date returns the calendar date of the transaction.
func (t TransactionWithPostings) Date() Date {
	return DateOf(t.Transaction.DT)
}

// StatementLine is an imported bank statement line.
type StatementLine struct {
	ID            *int64    `json:"id,omitempty"`
	SourceAccount string    `json:"source_account"`
	DT            time.Time `json:"dt"`
	Description   string    `json:"description"`
	Quantity      int64     `json:"quantity"`
	Balance       int64     `json:"balance"`
	Commodity     string    `json:"commodity"`
}

// UpdateBalancesFromTransactions adds each posting's quantity to its account in balances.
func UpdateBalancesFromTransactions(balances map[string]int64, txs []TransactionWithPostings) {
	for _, tx := range txs {
		for _, p := range tx.Postings {
			balances[p.Account] += p.Quantity
		}
	}
}

// FilterTransactions returns the transactions for which keep reports true.
func FilterTransactions(txs []TransactionWithPostings, keep func(TransactionWithPostings) bool) []TransactionWithPostings {
	out := make([]TransactionWithPostings, 0, len(txs))
	for _, tx := range txs {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	return out
}

// KindsForAccount inverts account configurations into account -> kinds.
// Configurations are (account, kind) pairs as stored.
func KindsForAccount(configs []AccountConfiguration) map[string][]string {
	out := make(map[string][]string)
	for _, c := range configs {
		out[c.Account] = append(out[c.Account], c.Kind)
	}
	return out
}

// AccountConfiguration tags an account with a classification kind.
type AccountConfiguration struct {
	ID      *int64  `json:"id,omitempty"`
	Account string  `json:"account"`
	Kind    string  `json:"kind"`
	Data    *string `json:"data,omitempty"`
}

// SystemAccountConfigurations are implied configurations for the earnings accounts.
func SystemAccountConfigurations() []AccountConfiguration {
	return []AccountConfiguration{
		{Account: CurrentYearEarnings, Kind: AccountKindEquity},
		{Account: RetainedEarnings, Kind: AccountKindEquity},
	}
}
