package schema

import (
	"encoding/json"
	"fmt"
)

// ProductKind distinguishes the shape of a product.
type ProductKind int

const (
	KindTransactions ProductKind = iota + 1
	KindBalancesAt
	KindBalancesBetween
	KindDynamicReport
	KindGeneric
)

var kindNames = map[ProductKind]string{
	KindTransactions:    "Transactions",
	KindBalancesAt:      "BalancesAt",
	KindBalancesBetween: "BalancesBetween",
	KindDynamicReport:   "DynamicReport",
	KindGeneric:         "Generic",
}

// AllKinds lists every product kind in declaration order.
var AllKinds = []ProductKind{
	KindTransactions, KindBalancesAt, KindBalancesBetween, KindDynamicReport, KindGeneric,
}

func (k ProductKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ProductKind(%d)", int(k))
}

// ParseProductKind returns the kind with the given name.
func ParseProductKind(name string) (ProductKind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, NewErrorf(ErrCodeValidation, "unknown product kind %q", name)
}

// MarshalJSON encodes the kind by name.
func (k ProductKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a kind name.
func (k *ProductKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseProductKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ContainsKind reports whether kinds contains k.
func ContainsKind(kinds []ProductKind, k ProductKind) bool {
	for _, candidate := range kinds {
		if candidate == k {
			return true
		}
	}
	return false
}
