// Package austax estimates Australian individual income tax for the
// financial year and posts it to the ledger.
package austax

import (
	"context"
	"math"

	"github.com/rendis/tally/internal/engine"
	"github.com/rendis/tally/internal/steps"
	"github.com/rendis/tally/pkg/schema"
)

// CalculateIncomeTax is the name of the income tax step.
const CalculateIncomeTax = "CalculateIncomeTax"

// Account kinds read by the tax summary.
const (
	KindRFB = "austax.rfb"
)

var taxKinds = []schema.ProductKind{schema.KindDynamicReport, schema.KindTransactions}

// Register adds the income tax lookup to rb.
func Register(rb *engine.RegistryBuilder) *engine.RegistryBuilder {
	return rb.RegisterLookup(CalculateIncomeTax, taxKinds, engine.AcceptArgs(schema.ArgsVoid),
		func(schema.StepArgs) engine.Step { return &calculateIncomeTax{} })
}

// calculateIncomeTax produces the tax summary report and the transaction
// charging the estimated tax at the end of the financial year.
type calculateIncomeTax struct{}

func (*calculateIncomeTax) ID() schema.StepID {
	return schema.StepID{Name: CalculateIncomeTax, Kinds: taxKinds, Args: schema.VoidArgs{}}
}

func yearBalances(env *engine.Env) schema.ProductID {
	return schema.ProductID{
		Name: steps.CombineOrdinaryTransactions,
		Kind: schema.KindBalancesBetween,
		Args: schema.DateRangeArgs{Start: schema.SOFYFromEOFY(env.EOFYDate), End: env.EOFYDate},
	}
}

func (s *calculateIncomeTax) Requires(env *engine.Env) []schema.ProductID {
	return []schema.ProductID{yearBalances(env)}
}

// AfterInitGraph makes every AllTransactionsExceptEarningsToEquity step
// depend on the matching tax product, so the tax charge is folded into the
// balances and transactions downstream of it.
func (s *calculateIncomeTax) AfterInitGraph(g *engine.Graph, _ *engine.Env) {
	for _, other := range g.Steps() {
		id := other.ID()
		if id.Name != steps.AllTransactionsExceptEarningsToEquity || len(id.Kinds) != 1 {
			continue
		}
		switch kind := id.Kinds[0]; kind {
		case schema.KindBalancesAt, schema.KindBalancesBetween:
			g.AddDependency(id, schema.ProductID{Name: CalculateIncomeTax, Kind: kind, Args: id.Args})
		case schema.KindTransactions:
			g.AddDependency(id, schema.ProductID{Name: CalculateIncomeTax, Kind: kind, Args: schema.VoidArgs{}})
		}
	}
}

func (s *calculateIncomeTax) Execute(ctx context.Context, env *engine.Env, _ *engine.Graph, products engine.ProductReader) (*engine.Products, error) {
	balances, err := engine.BalancesBetween(products, yearBalances(env))
	if err != nil {
		return nil, err
	}
	kinds, err := env.KindsForAccount(ctx)
	if err != nil {
		return nil, err
	}

	summary, err := TaxSummary(balances.Balances, kinds).Calculate()
	if err != nil {
		return nil, err
	}
	summary = summary.AutoHide()

	totalTax := int64(0)
	if q, err := summary.QuantityForID("total_tax"); err == nil {
		totalTax = q[0]
	}
	env.Log().InfoContext(ctx, "income tax estimated", "total_tax", totalTax, "eofy", env.EOFYDate.String())

	cost := totalTax
	tx := schema.TransactionWithPostings{
		Transaction: schema.Transaction{DT: env.EOFYDate.Time(), Description: "Estimated income tax"},
		Postings: []schema.Posting{
			{Account: schema.IncomeTax, Quantity: totalTax, Commodity: env.ReportingCommodity, QuantityAsCost: &cost},
			{Account: schema.IncomeTaxControl, Quantity: -totalTax, Commodity: env.ReportingCommodity, QuantityAsCost: &cost},
		},
	}

	id := s.ID()
	out := engine.NewProducts()
	out.Insert(id.Product(schema.KindTransactions), &schema.Transactions{Transactions: []schema.TransactionWithPostings{tx}})
	out.Insert(id.Product(schema.KindDynamicReport), summary)
	return out, nil
}

// GrossedUpRFB grosses up the taxable value of reportable fringe benefits.
func GrossedUpRFB(taxable int64) int64 {
	return int64(float64(taxable) * 2.0802)
}

// taxBracket is a marginal rate applying above a threshold, with the tax
// payable on income up to that threshold. Amounts are in cents.
type taxBracket struct {
	threshold int64
	base      int64
	rate      float64
}

var brackets = []taxBracket{
	{threshold: 190000_00, base: 51638_00, rate: 0.45},
	{threshold: 135000_00, base: 31288_00, rate: 0.37},
	{threshold: 45000_00, base: 4288_00, rate: 0.30},
	{threshold: 18200_00, base: 0, rate: 0.16},
}

// BaseIncomeTax returns the tax on net taxable income, before levies.
func BaseIncomeTax(netTaxable int64) int64 {
	for _, b := range brackets {
		if netTaxable > b.threshold {
			return b.base + int64(math.Trunc(b.rate*float64(netTaxable-b.threshold)))
		}
	}
	return 0
}
