package plugins

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/rendis/tally/internal/engine"
	"github.com/rendis/tally/internal/expressions"
	"github.com/rendis/tally/pkg/report"
	"github.com/rendis/tally/pkg/schema"
)

// pluginStep runs a plugin for one set of args.
type pluginStep struct {
	plugin *Plugin
	args   schema.StepArgs
}

func (s *pluginStep) ID() schema.StepID {
	return schema.StepID{Name: s.plugin.Name(), Kinds: s.plugin.kinds, Args: s.args}
}

func (s *pluginStep) Requires(env *engine.Env) []schema.ProductID {
	out := make([]schema.ProductID, len(s.plugin.requires))
	for i, r := range s.plugin.requires {
		out[i] = r.product(s.args, env)
	}
	return out
}

// AfterInitGraph makes each step named in after_init_graph depend on this
// plugin: balances steps on the plugin's balances over the same args, and
// transactions steps on the plugin's transactions.
func (s *pluginStep) AfterInitGraph(g *engine.Graph, _ *engine.Env) {
	self := s.ID()
	for _, other := range g.Steps() {
		id := other.ID()
		if !slices.Contains(s.plugin.manifest.AfterInitGraph, id.Name) || len(id.Kinds) != 1 || id.Equal(self) {
			continue
		}
		switch kind := id.Kinds[0]; kind {
		case schema.KindBalancesAt, schema.KindBalancesBetween:
			g.AddDependency(id, schema.ProductID{Name: self.Name, Kind: kind, Args: id.Args})
		case schema.KindTransactions:
			g.AddDependency(id, self.Product(schema.KindTransactions))
		}
	}
}

// jqInput is the document the transactions program runs over.
type jqInput struct {
	Name         string         `json:"name"`
	Args         map[string]any `json:"args"`
	EOFY         schema.Date    `json:"eofy"`
	Commodity    string         `json:"commodity"`
	Dependencies []jqDependency `json:"dependencies"`
}

type jqDependency struct {
	ID      schema.ProductID `json:"id"`
	Product schema.Product   `json:"product"`
}

// jqTransaction is one transaction emitted by the program.
type jqTransaction struct {
	Date        schema.Date `json:"date"`
	Description string      `json:"description"`
	Postings    []struct {
		Account   string `json:"account"`
		Quantity  int64  `json:"quantity"`
		Commodity string `json:"commodity"`
	} `json:"postings"`
}

func (s *pluginStep) Execute(ctx context.Context, env *engine.Env, g *engine.Graph, products engine.ProductReader) (*engine.Products, error) {
	id := s.ID()
	in := jqInput{
		Name:      id.Name,
		Args:      schema.ArgsToMap(s.args),
		EOFY:      env.EOFYDate,
		Commodity: env.ReportingCommodity,
	}
	for _, dep := range g.DependenciesFor(id) {
		p, err := products.GetOrErr(dep)
		if err != nil {
			return nil, err
		}
		in.Dependencies = append(in.Dependencies, jqDependency{ID: dep, Product: p})
	}

	doc, err := expressions.ToJQ(in)
	if err != nil {
		return nil, err
	}
	outputs, err := s.plugin.engines.JQ.EvaluateAll(ctx, s.plugin.manifest.Transactions, doc)
	if err != nil {
		return nil, err
	}
	txs, err := s.transactions(outputs, env)
	if err != nil {
		return nil, err
	}
	s.plugin.logger.DebugContext(ctx, "plugin produced transactions", "step", id.String(), "count", len(txs))

	out := engine.NewProducts()
	out.Insert(id.Product(schema.KindTransactions), &schema.Transactions{Transactions: txs})

	if schema.ContainsKind(s.plugin.kinds, schema.KindDynamicReport) {
		r, err := s.report(ctx, env, g, products, txs)
		if err != nil {
			return nil, err
		}
		out.Insert(id.Product(schema.KindDynamicReport), r)
	}
	return out, nil
}

// transactions decodes the program outputs. An output may be a transaction
// or an array of them. Each transaction must balance per commodity.
func (s *pluginStep) transactions(outputs []any, env *engine.Env) ([]schema.TransactionWithPostings, error) {
	var flat []any
	for _, o := range outputs {
		if arr, ok := o.([]any); ok {
			flat = append(flat, arr...)
		} else {
			flat = append(flat, o)
		}
	}

	txs := make([]schema.TransactionWithPostings, 0, len(flat))
	for i, o := range flat {
		raw, err := json.Marshal(o)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodePlugin, "output %d: %s", i, err.Error()).WithCause(err)
		}
		var w jqTransaction
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodePlugin, "output %d is not a transaction: %s", i, err.Error()).WithCause(err)
		}
		if w.Date.IsZero() {
			return nil, schema.NewErrorf(schema.ErrCodePlugin, "output %d has no date", i)
		}

		tx := schema.TransactionWithPostings{
			Transaction: schema.Transaction{DT: w.Date.Time(), Description: w.Description},
		}
		sums := map[string]int64{}
		for _, p := range w.Postings {
			commodity := p.Commodity
			if commodity == "" {
				commodity = env.ReportingCommodity
			}
			sums[commodity] += p.Quantity
			tx.Postings = append(tx.Postings, schema.Posting{Account: p.Account, Quantity: p.Quantity, Commodity: commodity})
		}
		for commodity, sum := range sums {
			if sum != 0 {
				return nil, schema.NewErrorf(schema.ErrCodePlugin, "transaction %q does not balance: %s off by %d", w.Description, commodity, sum)
			}
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

// report lays out the template over the first balances dependency with the
// produced transactions applied.
func (s *pluginStep) report(ctx context.Context, env *engine.Env, g *engine.Graph, products engine.ProductReader, txs []schema.TransactionWithPostings) (*report.Report, error) {
	tmpl := s.plugin.manifest.Report
	balances := map[string]int64{}
	for _, dep := range g.DependenciesFor(s.ID()) {
		if dep.Kind != schema.KindBalancesAt && dep.Kind != schema.KindBalancesBetween {
			continue
		}
		p, err := products.GetOrErr(dep)
		if err != nil {
			return nil, err
		}
		switch b := p.(type) {
		case *schema.BalancesAt:
			balances = b.Clone().(*schema.BalancesAt).Balances
		case *schema.BalancesBetween:
			balances = b.Clone().(*schema.BalancesBetween).Balances
		}
		break
	}
	schema.UpdateBalancesFromTransactions(balances, txs)

	kinds, err := env.KindsForAccount(ctx)
	if err != nil {
		return nil, err
	}

	columns := []map[string]int64{balances}
	var entries []report.Entry
	for _, sec := range tmpl.Sections {
		entries = append(entries, &report.Section{
			Text:     sec.Text,
			ID:       sec.ID,
			Visible:  true,
			AutoHide: true,
			Entries:  report.EntriesForKind(sec.AccountKind, sec.Invert, columns, kinds),
		})
	}
	for _, f := range tmpl.Formulas {
		entries = append(entries, &report.CalculatedRow{Formula: &report.ExprFormula{
			Template:   report.Row{Text: f.Text, ID: f.ID, Visible: true, Heading: f.Heading, Bordered: f.Heading},
			Expression: f.Expr,
			Engine:     s.plugin.engines.Expr,
		}})
	}

	r, err := report.New(tmpl.Title, []string{env.ReportingCommodity}, entries...).Calculate()
	if err != nil {
		return nil, err
	}
	return r.AutoHide(), nil
}
