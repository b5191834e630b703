package schema

import "maps"

// Product is the payload of a computed product. The concrete variants are
// *Transactions, *BalancesAt, *BalancesBetween, *Generic and *report.Report.
type Product interface {
	ProductKind() ProductKind
	Clone() Product
}

// Transactions is a list of transactions produced by a step.
type Transactions struct {
	Transactions []TransactionWithPostings `json:"transactions"`
}

// BalancesAt holds account balances at a point in time.
type BalancesAt struct {
	Balances map[string]int64 `json:"balances"`
}

// BalancesBetween holds account movements over a date range.
type BalancesBetween struct {
	Balances map[string]int64 `json:"balances"`
}

// Generic carries a caller-defined payload.
type Generic struct {
	Value any `json:"value"`
}

func (*Transactions) ProductKind() ProductKind    { return KindTransactions }
func (*BalancesAt) ProductKind() ProductKind      { return KindBalancesAt }
func (*BalancesBetween) ProductKind() ProductKind { return KindBalancesBetween }
func (*Generic) ProductKind() ProductKind         { return KindGeneric }

func (t *Transactions) Clone() Product {
	out := &Transactions{Transactions: make([]TransactionWithPostings, len(t.Transactions))}
	for i, tx := range t.Transactions {
		out.Transactions[i] = TransactionWithPostings{
			Transaction: tx.Transaction,
			Postings:    append([]Posting(nil), tx.Postings...),
		}
	}
	return out
}

func (b *BalancesAt) Clone() Product {
	return &BalancesAt{Balances: cloneBalances(b.Balances)}
}

func (b *BalancesBetween) Clone() Product {
	return &BalancesBetween{Balances: cloneBalances(b.Balances)}
}

// Clone copies the wrapper; Value is shared.
func (g *Generic) Clone() Product {
	return &Generic{Value: g.Value}
}

func cloneBalances(in map[string]int64) map[string]int64 {
	if in == nil {
		return map[string]int64{}
	}
	return maps.Clone(in)
}
