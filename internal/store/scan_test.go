package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/tally/pkg/schema"
)

func TestDBTime_Scan(t *testing.T) {
	want := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		in   any
	}{
		{"driver time", want},
		{"driver time in another zone", want.In(time.FixedZone("AEST", 10*60*60))},
		{"stored layout", "2024-07-01 00:00:00.000000"},
		{"rfc3339", "2024-07-01T00:00:00Z"},
		{"date only", []byte("2024-07-01")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got dbTime
			require.NoError(t, got.Scan(tt.in))
			assert.True(t, want.Equal(got.Time))
			assert.Equal(t, schema.MustParseDate("2024-07-01"), got.CalendarDate())
		})
	}

	var bad dbTime
	assert.Error(t, bad.Scan("01/07/2024"))
	assert.Error(t, bad.Scan(3.5))
}

func TestDBText_Scan(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"string", "$", "$"},
		{"bytes", []byte("AUD"), "AUD"},
		{"date coerced by the driver", time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), "2025-06-30"},
		{"timestamp coerced by the driver", time.Date(2025, 6, 30, 9, 15, 0, 0, time.UTC), "2025-06-30T09:15:00Z"},
		{"integer", int64(2), "2"},
		{"null", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got dbText
			require.NoError(t, got.Scan(tt.in))
			assert.Equal(t, tt.want, string(got))
		})
	}
}
