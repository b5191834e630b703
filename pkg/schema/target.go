package schema

import (
	"encoding/json"
	"strings"
)

// ParseTarget reads a product id from its command-line form
//
//	Name[.Kind][@args]
//
// Kind defaults to DynamicReport. Args default to void and take one of
//
//	2025-06-30                      date
//	2024-07-01..2025-06-30          date_range
//	2025-06-30,2024-06-30           multiple_dates
//	2024-07-01..2025-06-30,...      multiple_date_ranges
//
// A "dates:" or "ranges:" prefix forces the multiple variants for a single
// element. Input starting with "{" is decoded as a JSON product id.
func ParseTarget(s string) (ProductID, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		var p ProductID
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			return ProductID{}, NewErrorf(ErrCodeValidation, "invalid target %s", s).WithCause(err)
		}
		return p, nil
	}

	head, rawArgs, _ := strings.Cut(s, "@")
	name, kindName, hasKind := strings.Cut(head, ".")
	if name == "" {
		return ProductID{}, NewErrorf(ErrCodeValidation, "target %q has no name", s)
	}

	p := ProductID{Name: name, Kind: KindDynamicReport, Args: VoidArgs{}}
	if hasKind {
		k, err := ParseProductKind(kindName)
		if err != nil {
			return ProductID{}, err
		}
		p.Kind = k
	}

	args, err := parseArgs(rawArgs)
	if err != nil {
		return ProductID{}, NewErrorf(ErrCodeValidation, "target %q: %s", s, err.Error()).WithCause(err)
	}
	p.Args = args
	return p, nil
}

func parseArgs(s string) (StepArgs, error) {
	if s == "" {
		return VoidArgs{}, nil
	}

	forceMultiple := false
	for _, prefix := range []string{"dates:", "ranges:"} {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			s, forceMultiple = rest, true
		}
	}

	parts := strings.Split(s, ",")
	if strings.Contains(s, "..") {
		ranges := make([]DateRangeArgs, len(parts))
		for i, part := range parts {
			start, end, ok := strings.Cut(strings.TrimSpace(part), "..")
			if !ok {
				return nil, NewErrorf(ErrCodeValidation, "mixed dates and ranges in %q", s)
			}
			r, err := parseRange(start, end)
			if err != nil {
				return nil, err
			}
			ranges[i] = r
		}
		if len(ranges) == 1 && !forceMultiple {
			return ranges[0], nil
		}
		return NewMultipleDateRangeArgs(ranges...), nil
	}

	dates := make([]Date, len(parts))
	for i, part := range parts {
		d, err := ParseDate(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		dates[i] = d
	}
	if len(dates) == 1 && !forceMultiple {
		return DateArgs{Date: dates[0]}, nil
	}
	return NewMultipleDateArgs(dates...), nil
}

func parseRange(start, end string) (DateRangeArgs, error) {
	s, err := ParseDate(start)
	if err != nil {
		return DateRangeArgs{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return DateRangeArgs{}, err
	}
	if e.Before(s) {
		return DateRangeArgs{}, NewErrorf(ErrCodeValidation, "range %s..%s ends before it starts", start, end)
	}
	return DateRangeArgs{Start: s, End: e}, nil
}
