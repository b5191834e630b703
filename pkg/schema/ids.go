package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ProductID identifies a producible artifact by name, kind and args.
type ProductID struct {
	Name string
	Kind ProductKind
	Args StepArgs
}

// Key is the canonical identity of the product, used for store uniqueness.
func (p ProductID) Key() string {
	return p.Name + "." + p.Kind.String() + "(" + ArgsKey(p.Args) + ")"
}

// Equal reports whether p and other identify the same product.
func (p ProductID) Equal(other ProductID) bool {
	return p.Name == other.Name && p.Kind == other.Kind && ArgsEqual(argsOrVoid(p.Args), argsOrVoid(other.Args))
}

func (p ProductID) String() string {
	return fmt.Sprintf("%s.%s(%s)", p.Name, p.Kind, argsOrVoid(p.Args))
}

// StepID identifies a step instance: a name, the set of kinds it can produce, and its args.
type StepID struct {
	Name  string
	Kinds []ProductKind
	Args  StepArgs
}

// Key is the canonical identity of the step.
func (s StepID) Key() string {
	kinds := make([]string, len(s.Kinds))
	for i, k := range s.Kinds {
		kinds[i] = k.String()
	}
	return s.Name + "[" + strings.Join(kinds, ",") + "](" + ArgsKey(s.Args) + ")"
}

// Equal reports whether s and other identify the same step.
func (s StepID) Equal(other StepID) bool {
	return s.Key() == other.Key()
}

// Produces reports whether the step identified by s declares the product p.
func (s StepID) Produces(p ProductID) bool {
	return s.Name == p.Name &&
		ContainsKind(s.Kinds, p.Kind) &&
		ArgsEqual(argsOrVoid(s.Args), argsOrVoid(p.Args))
}

// Product returns the product id of kind k under this step's name and args.
func (s StepID) Product(k ProductKind) ProductID {
	return ProductID{Name: s.Name, Kind: k, Args: argsOrVoid(s.Args)}
}

func (s StepID) String() string {
	kinds := make([]string, len(s.Kinds))
	for i, k := range s.Kinds {
		kinds[i] = k.String()
	}
	return fmt.Sprintf("%s[%s](%s)", s.Name, strings.Join(kinds, ", "), argsOrVoid(s.Args))
}

type productIDWire struct {
	Name string          `json:"name"`
	Kind ProductKind     `json:"kind"`
	Args json.RawMessage `json:"args,omitempty"`
}

// MarshalJSON encodes the product id with tagged args.
func (p ProductID) MarshalJSON() ([]byte, error) {
	args, err := MarshalArgs(p.Args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(productIDWire{Name: p.Name, Kind: p.Kind, Args: args})
}

// UnmarshalJSON decodes a product id; missing args decode to VoidArgs.
func (p *ProductID) UnmarshalJSON(data []byte) error {
	var w productIDWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Name == "" {
		return NewError(ErrCodeValidation, "product id requires a name")
	}
	args, err := UnmarshalArgs(w.Args)
	if err != nil {
		return err
	}
	*p = ProductID{Name: w.Name, Kind: w.Kind, Args: args}
	return nil
}

type stepIDWire struct {
	Name  string          `json:"name"`
	Kinds []ProductKind   `json:"product_kinds"`
	Args  json.RawMessage `json:"args,omitempty"`
}

// MarshalJSON encodes the step id with tagged args.
func (s StepID) MarshalJSON() ([]byte, error) {
	args, err := MarshalArgs(s.Args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(stepIDWire{Name: s.Name, Kinds: s.Kinds, Args: args})
}

// UnmarshalJSON decodes a step id.
func (s *StepID) UnmarshalJSON(data []byte) error {
	var w stepIDWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	args, err := UnmarshalArgs(w.Args)
	if err != nil {
		return err
	}
	*s = StepID{Name: w.Name, Kinds: w.Kinds, Args: args}
	return nil
}

func argsOrVoid(a StepArgs) StepArgs {
	if a == nil {
		return VoidArgs{}
	}
	return a
}
