package report

import (
	"bytes"
	"encoding/json"

	"github.com/rendis/tally/pkg/schema"
)

type reportWire struct {
	Title   string            `json:"title"`
	Columns []string          `json:"columns"`
	Entries []json.RawMessage `json:"entries"`
}

type sectionWire struct {
	Text     string            `json:"text"`
	ID       *string           `json:"id"`
	Visible  bool              `json:"visible"`
	AutoHide bool              `json:"auto_hide"`
	Entries  []json.RawMessage `json:"entries"`
}

type rowWire struct {
	Text     string  `json:"text"`
	Quantity []int64 `json:"quantity"`
	ID       *string `json:"id"`
	Visible  bool    `json:"visible"`
	AutoHide bool    `json:"auto_hide"`
	Link     *string `json:"link"`
	Heading  bool    `json:"heading"`
	Bordered bool    `json:"bordered"`
}

const (
	tagSection = "Section"
	tagRow     = "LiteralRow"
	tagSpacer  = "Spacer"
)

// MarshalJSON encodes a calculated report. Each entry is tagged by variant:
// {"Section": {...}}, {"LiteralRow": {...}} or "Spacer".
func (r *Report) MarshalJSON() ([]byte, error) {
	entries, err := marshalEntries(r.Entries)
	if err != nil {
		return nil, err
	}
	columns := r.Columns
	if columns == nil {
		columns = []string{}
	}
	return json.Marshal(reportWire{Title: r.Title, Columns: columns, Entries: entries})
}

// UnmarshalJSON decodes a report encoded by MarshalJSON.
func (r *Report) UnmarshalJSON(data []byte) error {
	var w reportWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	entries, err := unmarshalEntries(w.Entries)
	if err != nil {
		return err
	}
	*r = Report{Title: w.Title, Columns: w.Columns, Entries: entries}
	return nil
}

func marshalEntries(entries []Entry) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		var (
			data []byte
			err  error
		)
		switch v := e.(type) {
		case *Section:
			var children []json.RawMessage
			if children, err = marshalEntries(v.Entries); err != nil {
				return nil, err
			}
			data, err = json.Marshal(map[string]sectionWire{tagSection: {
				Text:     v.Text,
				ID:       optional(v.ID),
				Visible:  v.Visible,
				AutoHide: v.AutoHide,
				Entries:  children,
			}})
		case *Row:
			quantity := v.Quantity
			if quantity == nil {
				quantity = []int64{}
			}
			data, err = json.Marshal(map[string]rowWire{tagRow: {
				Text:     v.Text,
				Quantity: quantity,
				ID:       optional(v.ID),
				Visible:  v.Visible,
				AutoHide: v.AutoHide,
				Link:     optional(v.Link),
				Heading:  v.Heading,
				Bordered: v.Bordered,
			}})
		case Spacer:
			data, err = json.Marshal(tagSpacer)
		case *CalculatedRow:
			return nil, schema.NewError(schema.ErrCodeValidation, "cannot encode a report with uncalculated rows")
		default:
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown report entry %T", e)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

func unmarshalEntries(raw []json.RawMessage) ([]Entry, error) {
	out := make([]Entry, 0, len(raw))
	for _, data := range raw {
		if bytes.HasPrefix(bytes.TrimSpace(data), []byte(`"`)) {
			var tag string
			if err := json.Unmarshal(data, &tag); err != nil {
				return nil, err
			}
			if tag != tagSpacer {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown report entry %q", tag)
			}
			out = append(out, Spacer{})
			continue
		}

		var tagged map[string]json.RawMessage
		if err := json.Unmarshal(data, &tagged); err != nil {
			return nil, err
		}
		if len(tagged) != 1 {
			return nil, schema.NewError(schema.ErrCodeValidation, "report entry must have exactly one tag")
		}
		for tag, body := range tagged {
			switch tag {
			case tagSection:
				var w sectionWire
				if err := json.Unmarshal(body, &w); err != nil {
					return nil, err
				}
				children, err := unmarshalEntries(w.Entries)
				if err != nil {
					return nil, err
				}
				out = append(out, &Section{
					Text:     w.Text,
					ID:       deref(w.ID),
					Visible:  w.Visible,
					AutoHide: w.AutoHide,
					Entries:  children,
				})
			case tagRow:
				var w rowWire
				if err := json.Unmarshal(body, &w); err != nil {
					return nil, err
				}
				out = append(out, &Row{
					Text:     w.Text,
					Quantity: w.Quantity,
					ID:       deref(w.ID),
					Visible:  w.Visible,
					AutoHide: w.AutoHide,
					Link:     deref(w.Link),
					Heading:  w.Heading,
					Bordered: w.Bordered,
				})
			default:
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown report entry %q", tag)
			}
		}
	}
	return out, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
