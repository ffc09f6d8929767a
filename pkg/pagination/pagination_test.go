package pagination

import (
	"testing"

	"github.com/angelmondragon/tradeledger/pkg/docstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allowed = map[string]string{"invoiceDate": "invoice_date", "total": "total_amount"}

func TestNormalize(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, MaxLimit, NormalizeLimit(10_000))
	assert.Equal(t, 10, NormalizeLimit(10))
	assert.Equal(t, 0, NormalizeSkip(-5))
}

func TestParseSort(t *testing.T) {
	sorts, err := ParseSort("-invoiceDate, total", allowed)
	require.NoError(t, err)
	assert.Equal(t, []docstore.Sort{{Field: "invoice_date", Desc: true}, {Field: "total_amount"}}, sorts)

	_, err = ParseSort("password", allowed)
	assert.Error(t, err)

	sorts, err = ParseSort("  ", allowed)
	require.NoError(t, err)
	assert.Empty(t, sorts)
}

func TestFindOptionsFallback(t *testing.T) {
	opts, err := Params{Skip: 5}.FindOptions(allowed, docstore.Sort{Field: "created_at", Desc: true})
	require.NoError(t, err)
	assert.Equal(t, 5, opts.Skip)
	assert.Equal(t, DefaultLimit, opts.Limit)
	assert.Equal(t, []docstore.Sort{{Field: "created_at", Desc: true}}, opts.Sort)
}
