// Package builders provides the dynamic builders that derive balance
// products from the transactions steps already present in a graph.
package builders

import (
	"context"
	"maps"

	"github.com/rendis/tally/internal/engine"
	"github.com/rendis/tally/pkg/schema"
)

// Builder names, as reported by the registry.
const (
	GenerateBalancesName            = "GenerateBalances"
	UpdateBalancesBetweenName       = "UpdateBalancesBetween"
	UpdateBalancesAtName            = "UpdateBalancesAt"
	BalancesAtToBalancesBetweenName = "BalancesAtToBalancesBetween"
)

// Register adds the balance builders to rb. BalancesAtToBalancesBetween is
// registered last so the more specific builders are preferred.
func Register(rb *engine.RegistryBuilder) *engine.RegistryBuilder {
	return rb.
		RegisterDynamicBuilder(GenerateBalances()).
		RegisterDynamicBuilder(UpdateBalancesBetween()).
		RegisterDynamicBuilder(UpdateBalancesAt()).
		RegisterDynamicBuilder(BalancesAtToBalancesBetween())
}

// transactionsStep returns the step named name that produces transactions.
func transactionsStep(g *engine.Graph, name string) (engine.Step, bool) {
	return g.FindStep(func(s engine.Step) bool {
		id := s.ID()
		return id.Name == name && schema.ContainsKind(id.Kinds, schema.KindTransactions)
	})
}

// soleDependency returns the only dependency of step, if it has exactly one.
func soleDependency(g *engine.Graph, step schema.StepID) (schema.ProductID, bool) {
	deps := g.DependenciesFor(step)
	if len(deps) != 1 {
		return schema.ProductID{}, false
	}
	return deps[0], true
}

func balancesAt(name string, date schema.Date) schema.ProductID {
	return schema.ProductID{Name: name, Kind: schema.KindBalancesAt, Args: schema.DateArgs{Date: date}}
}

func idFor(p schema.ProductID) schema.StepID {
	return schema.StepID{Name: p.Name, Kinds: []schema.ProductKind{p.Kind}, Args: p.Args}
}

func applyTransactions(balances map[string]int64, txs []schema.TransactionWithPostings, keep func(schema.Date) bool) {
	schema.UpdateBalancesFromTransactions(balances, schema.FilterTransactions(txs, func(tx schema.TransactionWithPostings) bool {
		return keep(tx.Date())
	}))
}

// --- GenerateBalances ---

// GenerateBalances builds BalancesAt for a name whose transactions come from
// a step with no dependencies, by folding every transaction up to the date.
func GenerateBalances() engine.DynamicBuilder {
	return engine.DynamicBuilder{
		Name: GenerateBalancesName,
		CanBuild: func(p schema.ProductID, g *engine.Graph, env *engine.Env) bool {
			if p.Kind != schema.KindBalancesAt {
				return false
			}
			if _, ok := p.Args.(schema.DateArgs); !ok {
				return false
			}
			_, ok := independentTransactions(p, g, env)
			return ok
		},
		Build: func(p schema.ProductID, g *engine.Graph, env *engine.Env) engine.Step {
			source, _ := independentTransactions(p, g, env)
			return &generateBalances{id: idFor(p), date: p.Args.(schema.DateArgs).Date, source: source}
		},
	}
}

// independentTransactions finds the transactions of p.Name, trying p's args
// and then no args, produced by a step that needs nothing else.
func independentTransactions(p schema.ProductID, g *engine.Graph, env *engine.Env) (schema.ProductID, bool) {
	for _, args := range []schema.StepArgs{p.Args, schema.VoidArgs{}} {
		tp := schema.ProductID{Name: p.Name, Kind: schema.KindTransactions, Args: args}
		switch res := g.Resolve(tp, env); res.Kind {
		case engine.HasStep:
			if len(g.DependenciesFor(res.Step.ID())) == 0 {
				return tp, true
			}
		case engine.CanLookup:
			if len(engine.StepRequires(res.Lookup.Build(args), env)) == 0 {
				return tp, true
			}
		}
	}
	return schema.ProductID{}, false
}

type generateBalances struct {
	id     schema.StepID
	date   schema.Date
	source schema.ProductID
}

func (s *generateBalances) ID() schema.StepID { return s.id }

func (s *generateBalances) Requires(*engine.Env) []schema.ProductID {
	return []schema.ProductID{s.source}
}

func (s *generateBalances) Execute(_ context.Context, _ *engine.Env, _ *engine.Graph, products engine.ProductReader) (*engine.Products, error) {
	txs, err := engine.Transactions(products, s.source)
	if err != nil {
		return nil, err
	}
	balances := map[string]int64{}
	applyTransactions(balances, txs.Transactions, func(d schema.Date) bool { return !d.After(s.date) })
	return engine.Single(s.id.Product(schema.KindBalancesAt), &schema.BalancesAt{Balances: balances}), nil
}

// --- UpdateBalancesAt ---

// UpdateBalancesAt builds BalancesAt for a name whose transactions step has a
// single balances dependency, by rolling the opening balances forward with
// the transactions up to the date.
func UpdateBalancesAt() engine.DynamicBuilder {
	return engine.DynamicBuilder{
		Name: UpdateBalancesAtName,
		CanBuild: func(p schema.ProductID, g *engine.Graph, env *engine.Env) bool {
			_, ok := updateAtSource(p, g, env)
			return ok
		},
		Build: func(p schema.ProductID, g *engine.Graph, env *engine.Env) engine.Step {
			src, _ := updateAtSource(p, g, env)
			return &updateBalancesAt{id: idFor(p), updateSource: src}
		},
	}
}

type updateSource struct {
	date         schema.Date
	transactions schema.ProductID
	parentDep    schema.ProductID
	opening      schema.ProductID
}

func updateAtSource(p schema.ProductID, g *engine.Graph, env *engine.Env) (updateSource, bool) {
	if p.Kind != schema.KindBalancesAt {
		return updateSource{}, false
	}
	args, ok := p.Args.(schema.DateArgs)
	if !ok {
		return updateSource{}, false
	}
	parent, ok := transactionsStep(g, p.Name)
	if !ok {
		return updateSource{}, false
	}
	dep, ok := soleDependency(g, parent.ID())
	if !ok {
		return updateSource{}, false
	}

	src := updateSource{
		date:         args.Date,
		transactions: parent.ID().Product(schema.KindTransactions),
		parentDep:    dep,
	}
	switch dep.Kind {
	case schema.KindBalancesAt:
		src.opening = dep
	case schema.KindBalancesBetween:
		src.opening = balancesAt(dep.Name, args.Date)
		if !g.Resolvable(src.opening, env) {
			return updateSource{}, false
		}
	default:
		return updateSource{}, false
	}
	return src, true
}

type updateBalancesAt struct {
	id schema.StepID
	updateSource
}

func (s *updateBalancesAt) ID() schema.StepID { return s.id }

// InitGraph depends on the parent's transactions. A BalancesAt opening is
// already a dependency of the parent, so only a derived one is added.
func (s *updateBalancesAt) InitGraph(g *engine.Graph, _ *engine.Env) {
	g.AddDependency(s.id, s.transactions)
	if s.parentDep.Kind != schema.KindBalancesAt {
		g.AddDependency(s.id, s.opening)
	}
}

func (s *updateBalancesAt) Execute(_ context.Context, _ *engine.Env, _ *engine.Graph, products engine.ProductReader) (*engine.Products, error) {
	txs, err := engine.Transactions(products, s.transactions)
	if err != nil {
		return nil, err
	}
	opening, err := engine.BalancesAt(products, s.opening)
	if err != nil {
		return nil, err
	}
	balances := maps.Clone(opening.Balances)
	if balances == nil {
		balances = map[string]int64{}
	}
	applyTransactions(balances, txs.Transactions, func(d schema.Date) bool { return !d.After(s.date) })
	return engine.Single(s.id.Product(schema.KindBalancesAt), &schema.BalancesAt{Balances: balances}), nil
}

// --- UpdateBalancesBetween ---

// UpdateBalancesBetween builds BalancesBetween for a name whose transactions
// step depends only on another BalancesBetween, by adding the transactions in
// the range to that step's movements over the same range.
func UpdateBalancesBetween() engine.DynamicBuilder {
	return engine.DynamicBuilder{
		Name: UpdateBalancesBetweenName,
		CanBuild: func(p schema.ProductID, g *engine.Graph, _ *engine.Env) bool {
			_, ok := updateBetweenSource(p, g)
			return ok
		},
		Build: func(p schema.ProductID, g *engine.Graph, _ *engine.Env) engine.Step {
			s, _ := updateBetweenSource(p, g)
			return s
		},
	}
}

func updateBetweenSource(p schema.ProductID, g *engine.Graph) (*updateBalancesBetween, bool) {
	if p.Kind != schema.KindBalancesBetween {
		return nil, false
	}
	args, ok := p.Args.(schema.DateRangeArgs)
	if !ok {
		return nil, false
	}
	parent, ok := transactionsStep(g, p.Name)
	if !ok {
		return nil, false
	}
	dep, ok := soleDependency(g, parent.ID())
	if !ok || dep.Kind != schema.KindBalancesBetween {
		return nil, false
	}
	return &updateBalancesBetween{
		id:           idFor(p),
		args:         args,
		transactions: parent.ID().Product(schema.KindTransactions),
		parentDep:    dep,
		opening:      schema.ProductID{Name: dep.Name, Kind: schema.KindBalancesBetween, Args: args},
	}, true
}

type updateBalancesBetween struct {
	id           schema.StepID
	args         schema.DateRangeArgs
	transactions schema.ProductID
	parentDep    schema.ProductID
	opening      schema.ProductID
}

func (s *updateBalancesBetween) ID() schema.StepID { return s.id }

func (s *updateBalancesBetween) InitGraph(g *engine.Graph, _ *engine.Env) {
	g.AddDependency(s.id, s.transactions)
	if !schema.ArgsEqual(s.parentDep.Args, s.args) {
		g.AddDependency(s.id, s.opening)
	}
}

func (s *updateBalancesBetween) Execute(_ context.Context, _ *engine.Env, _ *engine.Graph, products engine.ProductReader) (*engine.Products, error) {
	txs, err := engine.Transactions(products, s.transactions)
	if err != nil {
		return nil, err
	}
	opening, err := engine.BalancesBetween(products, s.opening)
	if err != nil {
		return nil, err
	}
	balances := maps.Clone(opening.Balances)
	if balances == nil {
		balances = map[string]int64{}
	}
	applyTransactions(balances, txs.Transactions, func(d schema.Date) bool {
		return !d.Before(s.args.Start) && !d.After(s.args.End)
	})
	return engine.Single(s.id.Product(schema.KindBalancesBetween), &schema.BalancesBetween{Balances: balances}), nil
}

// --- BalancesAtToBalancesBetween ---

// BalancesAtToBalancesBetween builds BalancesBetween as the difference of the
// BalancesAt on the day before the range and on its last day.
func BalancesAtToBalancesBetween() engine.DynamicBuilder {
	return engine.DynamicBuilder{
		Name: BalancesAtToBalancesBetweenName,
		CanBuild: func(p schema.ProductID, g *engine.Graph, env *engine.Env) bool {
			if p.Kind != schema.KindBalancesBetween {
				return false
			}
			args, ok := p.Args.(schema.DateRangeArgs)
			if !ok {
				return false
			}
			return g.Resolvable(balancesAt(p.Name, args.Start.AddDays(-1)), env) &&
				g.Resolvable(balancesAt(p.Name, args.End), env)
		},
		Build: func(p schema.ProductID, _ *engine.Graph, _ *engine.Env) engine.Step {
			args := p.Args.(schema.DateRangeArgs)
			return &balancesAtToBalancesBetween{
				id:      idFor(p),
				opening: balancesAt(p.Name, args.Start.AddDays(-1)),
				closing: balancesAt(p.Name, args.End),
			}
		},
	}
}

type balancesAtToBalancesBetween struct {
	id      schema.StepID
	opening schema.ProductID
	closing schema.ProductID
}

func (s *balancesAtToBalancesBetween) ID() schema.StepID { return s.id }

func (s *balancesAtToBalancesBetween) Requires(*engine.Env) []schema.ProductID {
	return []schema.ProductID{s.opening, s.closing}
}

func (s *balancesAtToBalancesBetween) Execute(_ context.Context, _ *engine.Env, _ *engine.Graph, products engine.ProductReader) (*engine.Products, error) {
	opening, err := engine.BalancesAt(products, s.opening)
	if err != nil {
		return nil, err
	}
	closing, err := engine.BalancesAt(products, s.closing)
	if err != nil {
		return nil, err
	}
	balances := maps.Clone(closing.Balances)
	if balances == nil {
		balances = map[string]int64{}
	}
	for account, q := range opening.Balances {
		balances[account] -= q
	}
	return engine.Single(s.id.Product(schema.KindBalancesBetween), &schema.BalancesBetween{Balances: balances}), nil
}
