package schema

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSOFYFromEOFY(t *testing.T) {
	assert.Equal(t, MustParseDate("2024-07-01"), SOFYFromEOFY(MustParseDate("2025-06-30")))
	assert.Equal(t, MustParseDate("2024-01-01"), SOFYFromEOFY(MustParseDate("2024-12-31")))
}

func TestEOFYFor(t *testing.T) {
	eofy := MustParseDate("2025-06-30")

	tests := []struct {
		date string
		want string
	}{
		{"2025-06-30", "2025-06-30"},
		{"2025-07-01", "2026-06-30"},
		{"2024-12-31", "2025-06-30"},
		{"2021-03-15", "2021-06-30"},
	}
	for _, tc := range tests {
		assert.Equal(t, MustParseDate(tc.want), EOFYFor(MustParseDate(tc.date), eofy), tc.date)
	}
}

func TestLastEOFY(t *testing.T) {
	eofy := MustParseDate("2025-06-30")
	assert.Equal(t, MustParseDate("2024-06-30"), LastEOFY(MustParseDate("2025-06-30"), eofy))
	assert.Equal(t, MustParseDate("2025-06-30"), LastEOFY(MustParseDate("2025-07-01"), eofy))
}

func TestDate_Arithmetic(t *testing.T) {
	d := NewDate(2024, time.March, 1)
	assert.Equal(t, NewDate(2024, time.February, 29), d.AddDays(-1))
	assert.True(t, d.AddDays(-1).Before(d))
	assert.True(t, d.After(d.AddDays(-1)))
	assert.Equal(t, 0, d.Compare(MustParseDate("2024-03-01")))
	assert.Equal(t, "2024-03-01", d.String())
}

func TestParseDate_Invalid(t *testing.T) {
	_, err := ParseDate("30/06/2025")
	assert.True(t, IsCode(err, ErrCodeValidation))
}

func TestIsCode_WalksCauses(t *testing.T) {
	inner := NewError(ErrCodeDependencyNotAvailable, "missing")
	outer := NewError(ErrCodeStepFailed, "step failed").WithCause(inner)

	assert.True(t, IsCode(outer, ErrCodeStepFailed))
	assert.True(t, IsCode(outer, ErrCodeDependencyNotAvailable))
	assert.False(t, IsCode(outer, ErrCodeStore))
	assert.False(t, IsCode(errors.New("plain"), ErrCodeStore))
}
