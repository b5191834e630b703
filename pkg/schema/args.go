package schema

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// ArgsKind tags the variant of a StepArgs value.
type ArgsKind string

const (
	ArgsVoid               ArgsKind = "void"
	ArgsDate               ArgsKind = "date"
	ArgsDateRange          ArgsKind = "date_range"
	ArgsMultipleDates      ArgsKind = "multiple_dates"
	ArgsMultipleDateRanges ArgsKind = "multiple_date_ranges"
	ArgsCustom             ArgsKind = "custom"
)

// StepArgs is the closed family of argument payloads carried by step and product ids.
// Two values are equal iff they are the same variant with the same field values;
// use ArgsEqual rather than ==, since some variants hold slices or maps.
type StepArgs interface {
	ArgsKind() ArgsKind
	// Key is a canonical encoding: equal args have equal keys and vice versa.
	Key() string
	String() string

	isStepArgs()
}

// VoidArgs takes no arguments.
type VoidArgs struct{}

// DateArgs takes a single date.
type DateArgs struct {
	Date Date
}

// DateRangeArgs takes an inclusive date range.
type DateRangeArgs struct {
	Start Date
	End   Date
}

// MultipleDateArgs takes a list of dates, e.g. one per report column.
type MultipleDateArgs struct {
	Dates []DateArgs
}

// MultipleDateRangeArgs takes a list of date ranges.
type MultipleDateRangeArgs struct {
	Dates []DateRangeArgs
}

// CustomArgs carries arguments of a domain-specific shape identified by Type.
type CustomArgs struct {
	Type   string
	Params map[string]string
}

func (VoidArgs) ArgsKind() ArgsKind              { return ArgsVoid }
func (DateArgs) ArgsKind() ArgsKind              { return ArgsDate }
func (DateRangeArgs) ArgsKind() ArgsKind         { return ArgsDateRange }
func (MultipleDateArgs) ArgsKind() ArgsKind      { return ArgsMultipleDates }
func (MultipleDateRangeArgs) ArgsKind() ArgsKind { return ArgsMultipleDateRanges }
func (CustomArgs) ArgsKind() ArgsKind            { return ArgsCustom }

func (VoidArgs) isStepArgs()              {}
func (DateArgs) isStepArgs()              {}
func (DateRangeArgs) isStepArgs()         {}
func (MultipleDateArgs) isStepArgs()      {}
func (MultipleDateRangeArgs) isStepArgs() {}
func (CustomArgs) isStepArgs()            {}

func (VoidArgs) Key() string   { return string(ArgsVoid) }
func (a DateArgs) Key() string { return string(ArgsDate) + ":" + a.Date.String() }
func (a DateRangeArgs) Key() string {
	return string(ArgsDateRange) + ":" + a.Start.String() + ".." + a.End.String()
}

func (a MultipleDateArgs) Key() string {
	parts := make([]string, len(a.Dates))
	for i, d := range a.Dates {
		parts[i] = d.Date.String()
	}
	return string(ArgsMultipleDates) + ":[" + strings.Join(parts, ",") + "]"
}

func (a MultipleDateRangeArgs) Key() string {
	parts := make([]string, len(a.Dates))
	for i, d := range a.Dates {
		parts[i] = d.Start.String() + ".." + d.End.String()
	}
	return string(ArgsMultipleDateRanges) + ":[" + strings.Join(parts, ",") + "]"
}

// Key quotes the type and every name and value, so no choice of strings
// makes two different CustomArgs share a key.
func (a CustomArgs) Key() string {
	var b strings.Builder
	b.WriteString(string(ArgsCustom))
	b.WriteByte(':')
	b.WriteString(strconv.Quote(a.Type))
	b.WriteByte('{')
	for i, k := range a.sortedNames() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte('=')
		b.WriteString(strconv.Quote(a.Params[k]))
	}
	b.WriteByte('}')
	return b.String()
}

func (a CustomArgs) sortedNames() []string {
	keys := make([]string, 0, len(a.Params))
	for k := range a.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (VoidArgs) String() string        { return "" }
func (a DateArgs) String() string      { return a.Date.String() }
func (a DateRangeArgs) String() string { return a.Start.String() + ", " + a.End.String() }

func (a MultipleDateArgs) String() string {
	parts := make([]string, len(a.Dates))
	for i, d := range a.Dates {
		parts[i] = d.String()
	}
	return strings.Join(parts, ", ")
}

func (a MultipleDateRangeArgs) String() string {
	parts := make([]string, len(a.Dates))
	for i, d := range a.Dates {
		parts[i] = "(" + d.String() + ")"
	}
	return strings.Join(parts, ", ")
}

func (a CustomArgs) String() string {
	parts := make([]string, 0, len(a.Params))
	for _, k := range a.sortedNames() {
		parts = append(parts, k+"="+a.Params[k])
	}
	return a.Type + "{" + strings.Join(parts, ", ") + "}"
}

// NewMultipleDateArgs builds a MultipleDateArgs from dates.
func NewMultipleDateArgs(dates ...Date) MultipleDateArgs {
	out := MultipleDateArgs{Dates: make([]DateArgs, len(dates))}
	for i, d := range dates {
		out.Dates[i] = DateArgs{Date: d}
	}
	return out
}

// NewMultipleDateRangeArgs builds a MultipleDateRangeArgs from ranges.
func NewMultipleDateRangeArgs(ranges ...DateRangeArgs) MultipleDateRangeArgs {
	return MultipleDateRangeArgs{Dates: append([]DateRangeArgs(nil), ranges...)}
}

// ArgsEqual reports structural equality of two args values. A nil value equals only nil.
func ArgsEqual(a, b StepArgs) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Key() == b.Key()
}

// ArgsKey returns a.Key(), treating nil as VoidArgs.
func ArgsKey(a StepArgs) string {
	if a == nil {
		return VoidArgs{}.Key()
	}
	return a.Key()
}

// ArgsToMap converts args into a JSON-compatible map tagged with "type".
func ArgsToMap(a StepArgs) map[string]any {
	out := map[string]any{}
	if a == nil {
		a = VoidArgs{}
	}
	out["type"] = string(a.ArgsKind())
	switch v := a.(type) {
	case DateArgs:
		out["date"] = v.Date.String()
	case DateRangeArgs:
		out["start"] = v.Start.String()
		out["end"] = v.End.String()
	case MultipleDateArgs:
		dates := make([]any, len(v.Dates))
		for i, d := range v.Dates {
			dates[i] = d.Date.String()
		}
		out["dates"] = dates
	case MultipleDateRangeArgs:
		ranges := make([]any, len(v.Dates))
		for i, d := range v.Dates {
			ranges[i] = map[string]any{"start": d.Start.String(), "end": d.End.String()}
		}
		out["ranges"] = ranges
	case CustomArgs:
		out["name"] = v.Type
		params := make(map[string]any, len(v.Params))
		for k, p := range v.Params {
			params[k] = p
		}
		out["params"] = params
	}
	return out
}

// argsWire is the JSON form of StepArgs.
type argsWire struct {
	Type   ArgsKind          `json:"type"`
	Date   *Date             `json:"date,omitempty"`
	Start  *Date             `json:"start,omitempty"`
	End    *Date             `json:"end,omitempty"`
	Dates  []Date            `json:"dates,omitempty"`
	Ranges []rangeWire       `json:"ranges,omitempty"`
	Name   string            `json:"name,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

type rangeWire struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// MarshalArgs encodes args as tagged JSON.
func MarshalArgs(a StepArgs) ([]byte, error) {
	if a == nil {
		a = VoidArgs{}
	}
	w := argsWire{Type: a.ArgsKind()}
	switch v := a.(type) {
	case DateArgs:
		w.Date = &v.Date
	case DateRangeArgs:
		w.Start, w.End = &v.Start, &v.End
	case MultipleDateArgs:
		w.Dates = make([]Date, len(v.Dates))
		for i, d := range v.Dates {
			w.Dates[i] = d.Date
		}
	case MultipleDateRangeArgs:
		w.Ranges = make([]rangeWire, len(v.Dates))
		for i, d := range v.Dates {
			w.Ranges[i] = rangeWire{Start: d.Start, End: d.End}
		}
	case CustomArgs:
		w.Name, w.Params = v.Type, v.Params
	}
	return json.Marshal(w)
}

// UnmarshalArgs decodes tagged JSON produced by MarshalArgs. Empty input decodes to VoidArgs.
func UnmarshalArgs(data []byte) (StepArgs, error) {
	if len(data) == 0 || string(data) == "null" {
		return VoidArgs{}, nil
	}
	var w argsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, NewError(ErrCodeValidation, "invalid step args").WithCause(err)
	}
	switch w.Type {
	case ArgsVoid, "":
		return VoidArgs{}, nil
	case ArgsDate:
		if w.Date == nil {
			return nil, NewError(ErrCodeValidation, "date args require \"date\"")
		}
		return DateArgs{Date: *w.Date}, nil
	case ArgsDateRange:
		if w.Start == nil || w.End == nil {
			return nil, NewError(ErrCodeValidation, "date_range args require \"start\" and \"end\"")
		}
		return DateRangeArgs{Start: *w.Start, End: *w.End}, nil
	case ArgsMultipleDates:
		return NewMultipleDateArgs(w.Dates...), nil
	case ArgsMultipleDateRanges:
		out := MultipleDateRangeArgs{Dates: make([]DateRangeArgs, len(w.Ranges))}
		for i, r := range w.Ranges {
			out.Dates[i] = DateRangeArgs{Start: r.Start, End: r.End}
		}
		return out, nil
	case ArgsCustom:
		return CustomArgs{Type: w.Name, Params: w.Params}, nil
	default:
		return nil, NewErrorf(ErrCodeValidation, "unknown args type %q", w.Type)
	}
}
