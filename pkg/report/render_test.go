package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextRenderer_FormatQuantity(t *testing.T) {
	tr := TextRenderer{DPS: 2}

	assert.Equal(t, "1,234.56 ", tr.FormatQuantity(123456))
	assert.Equal(t, "(0.05)", tr.FormatQuantity(-5))
	assert.Equal(t, "0.00 ", tr.FormatQuantity(0))
	assert.Equal(t, "1,000,000 ", TextRenderer{}.FormatQuantity(1000000))
}

func TestTextRenderer_Render(t *testing.T) {
	r := New("Balance sheet", []string{"2025-06-30"},
		&Section{Text: "Assets", Visible: true, Entries: []Entry{
			&Row{Text: "Bank", Quantity: []int64{150000}, Visible: true},
			&Row{Text: "Hidden", Quantity: []int64{1}, Visible: false},
			&Row{Text: "Total assets", Quantity: []int64{150000}, Visible: true, Heading: true, Bordered: true},
		}},
		Spacer{},
	)

	var buf bytes.Buffer
	require.NoError(t, TextRenderer{DPS: 2}.Render(&buf, r))

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 7)
	assert.True(t, strings.HasPrefix(lines[0], "Balance sheet"))
	assert.True(t, strings.HasSuffix(lines[0], "2025-06-30"))
	assert.Equal(t, "Assets", strings.TrimSpace(lines[2]))
	assert.Contains(t, lines[3], "  Bank")
	assert.Contains(t, lines[3], "1,500.00")
	assert.True(t, strings.HasPrefix(lines[4], "---"))
	assert.Contains(t, lines[5], "TOTAL ASSETS")
	assert.NotContains(t, out, "Hidden")
}
