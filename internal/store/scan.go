package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rendis/tally/pkg/schema"
)

// go-libsql hands back TEXT that looks like a date or timestamp as
// time.Time, while other drivers (and sqlmock) return the stored text. The
// scanners below accept both.

// dtLayouts are tried in order when a timestamp arrives as text.
var dtLayouts = []string{dtLayout, time.RFC3339Nano, time.DateTime, time.DateOnly}

// dbTime scans a timestamp column into UTC.
type dbTime struct {
	time.Time
}

func (t *dbTime) Scan(v any) error {
	switch v := v.(type) {
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	case nil:
		t.Time = time.Time{}
		return nil
	default:
		return fmt.Errorf("scan timestamp: unsupported type %T", v)
	}
}

func (t *dbTime) parse(s string) error {
	for _, layout := range dtLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("parse timestamp %q", s)
}

// CalendarDate is the date of t in UTC.
func (t dbTime) CalendarDate() schema.Date { return schema.DateOf(t.Time) }

// dbText scans a free-form TEXT column back into the string that was
// written. Midnight UTC times come back as YYYY-MM-DD.
type dbText string

func (s *dbText) Scan(v any) error {
	switch v := v.(type) {
	case string:
		*s = dbText(v)
	case []byte:
		*s = dbText(v)
	case time.Time:
		v = v.UTC()
		if v.Equal(v.Truncate(24 * time.Hour)) {
			*s = dbText(v.Format(time.DateOnly))
		} else {
			*s = dbText(v.Format(time.RFC3339Nano))
		}
	case int64:
		*s = dbText(strconv.FormatInt(v, 10))
	case float64:
		*s = dbText(strconv.FormatFloat(v, 'f', -1, 64))
	case nil:
		*s = ""
	default:
		return fmt.Errorf("scan text: unsupported type %T", v)
	}
	return nil
}
