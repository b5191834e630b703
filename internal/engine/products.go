package engine

import (
	"iter"
	"sync"

	"github.com/rendis/tally/pkg/report"
	"github.com/rendis/tally/pkg/schema"
)

// ProductReader is read-only access to computed products.
type ProductReader interface {
	Get(id schema.ProductID) (schema.Product, bool)
	GetOrErr(id schema.ProductID) (schema.Product, error)
}

// Products is an insertion-ordered map of products keyed by ProductID.
type Products struct {
	ids   []schema.ProductID
	index map[string]int
	items []schema.Product
}

// NewProducts returns an empty product map.
func NewProducts() *Products {
	return &Products{index: make(map[string]int)}
}

// Single returns a product map holding one product.
func Single(id schema.ProductID, p schema.Product) *Products {
	out := NewProducts()
	out.Insert(id, p)
	return out
}

// Insert adds p under id, replacing any existing product with the same id
// while keeping its position.
func (ps *Products) Insert(id schema.ProductID, p schema.Product) {
	key := id.Key()
	if i, ok := ps.index[key]; ok {
		ps.items[i] = p
		return
	}
	ps.index[key] = len(ps.ids)
	ps.ids = append(ps.ids, id)
	ps.items = append(ps.items, p)
}

// Get returns the product with the given id.
func (ps *Products) Get(id schema.ProductID) (schema.Product, bool) {
	i, ok := ps.index[id.Key()]
	if !ok {
		return nil, false
	}
	return ps.items[i], true
}

// GetOrErr returns the product with the given id or a DEPENDENCY_NOT_AVAILABLE error.
func (ps *Products) GetOrErr(id schema.ProductID) (schema.Product, error) {
	if p, ok := ps.Get(id); ok {
		return p, nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeDependencyNotAvailable, "product %s not available", id).
		WithDetails(map[string]any{"product": id.String()})
}

// Len returns the number of products.
func (ps *Products) Len() int { return len(ps.ids) }

// IDs returns the product ids in insertion order.
func (ps *Products) IDs() []schema.ProductID {
	return append([]schema.ProductID(nil), ps.ids...)
}

// All iterates over the products in insertion order.
func (ps *Products) All() iter.Seq2[schema.ProductID, schema.Product] {
	return func(yield func(schema.ProductID, schema.Product) bool) {
		for i, id := range ps.ids {
			if !yield(id, ps.items[i]) {
				return
			}
		}
	}
}

// Append inserts every product of other.
func (ps *Products) Append(other *Products) {
	for id, p := range other.All() {
		ps.Insert(id, p)
	}
}

// Clone returns a deep copy.
func (ps *Products) Clone() *Products {
	out := NewProducts()
	for id, p := range ps.All() {
		out.Insert(id, p.Clone())
	}
	return out
}

// Transactions returns the Transactions product with the given id.
func (ps *Products) Transactions(id schema.ProductID) (*schema.Transactions, error) {
	return Transactions(ps, id)
}

// BalancesAt returns the BalancesAt product with the given id.
func (ps *Products) BalancesAt(id schema.ProductID) (*schema.BalancesAt, error) {
	return BalancesAt(ps, id)
}

// BalancesBetween returns the BalancesBetween product with the given id.
func (ps *Products) BalancesBetween(id schema.ProductID) (*schema.BalancesBetween, error) {
	return BalancesBetween(ps, id)
}

// Report returns the report product with the given id.
func (ps *Products) Report(id schema.ProductID) (*report.Report, error) {
	return Report(ps, id)
}

// Transactions reads a Transactions product from r.
func Transactions(r ProductReader, id schema.ProductID) (*schema.Transactions, error) {
	return typed[*schema.Transactions](r, id)
}

// BalancesAt reads a BalancesAt product from r.
func BalancesAt(r ProductReader, id schema.ProductID) (*schema.BalancesAt, error) {
	return typed[*schema.BalancesAt](r, id)
}

// BalancesBetween reads a BalancesBetween product from r.
func BalancesBetween(r ProductReader, id schema.ProductID) (*schema.BalancesBetween, error) {
	return typed[*schema.BalancesBetween](r, id)
}

// Report reads a report product from r.
func Report(r ProductReader, id schema.ProductID) (*report.Report, error) {
	return typed[*report.Report](r, id)
}

func typed[T schema.Product](r ProductReader, id schema.ProductID) (T, error) {
	var zero T
	p, err := r.GetOrErr(id)
	if err != nil {
		return zero, err
	}
	v, ok := p.(T)
	if !ok {
		return zero, schema.NewErrorf(schema.ErrCodeStepFailed,
			"product %s is %s, not %T", id, p.ProductKind(), zero)
	}
	return v, nil
}

// ProductStore guards a Products map for concurrent steps. Readers take the
// read lock per lookup; the executor inserts under the write lock.
type ProductStore struct {
	mu       sync.RWMutex
	products *Products
}

// NewProductStore returns an empty store.
func NewProductStore() *ProductStore {
	return &ProductStore{products: NewProducts()}
}

// Get implements ProductReader.
func (s *ProductStore) Get(id schema.ProductID) (schema.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.products.Get(id)
}

// GetOrErr implements ProductReader.
func (s *ProductStore) GetOrErr(id schema.ProductID) (schema.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.products.GetOrErr(id)
}

// Append inserts every product of other under the write lock.
func (s *ProductStore) Append(other *Products) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products.Append(other)
}

// Snapshot returns a deep copy of the stored products.
func (s *ProductStore) Snapshot() *Products {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.products.Clone()
}

var (
	_ ProductReader = (*Products)(nil)
	_ ProductReader = (*ProductStore)(nil)
)
