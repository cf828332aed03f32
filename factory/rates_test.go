package factory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/wage-engine/payroll"
)

const ratesYAML = `
overtime:
  multiplier: 2
classifications:
  daily:
    - effective_from: 2024-01-01
      rates:
        income_tax: 3.3
        local_tax: 0.33
    - effective_from: 2024-07-01
      rates:
        income_tax: 3.5
  salaried:
    - rates:
        pension: 4.5
`

func TestParse_EffectiveDatedVersions(t *testing.T) {
	// GIVEN: A daily classification with two versions
	// WHEN: Looking up rates in each half of the year
	// THEN: Each date sees its own version, with exact percentages

	tables, overtime, err := NewRateTableFactory().Parse([]byte(ratesYAML))
	require.NoError(t, err)
	ctx := context.Background()

	h1, err := tables.GetRatesFor(ctx, "daily", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "3.3", h1.Rates["income_tax"].String())
	assert.Equal(t, "0.33", h1.Rates["local_tax"].String())

	h2, err := tables.GetRatesFor(ctx, "daily", time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, h2.Rates, 1)
	assert.Equal(t, "3.5", h2.Rates["income_tax"].String())

	always, err := tables.GetRatesFor(ctx, "salaried", time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "4.5", always.Rates["pension"].String())

	require.NotNil(t, overtime)
	assert.True(t, overtime.Multiplier.Equal(decimal.NewFromInt(2)))
	assert.True(t, overtime.ThresholdHours.Equal(decimal.NewFromInt(8)), "unset fields keep defaults")
}

func TestParse_JSONDocument(t *testing.T) {
	doc := `{"classifications": {"daily": [{"effective_from": "2024-01-01", "rates": {"income_tax": "3.3"}}]}}`

	tables, overtime, err := NewRateTableFactory().Parse([]byte(doc))
	require.NoError(t, err)
	assert.Nil(t, overtime)

	got, err := tables.GetRatesFor(context.Background(), "daily", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "3.3", got.Rates["income_tax"].String())
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"bad date":       "classifications: {daily: [{effective_from: 01/02/2024, rates: {income_tax: 3}}]}",
		"bad percentage": "classifications: {daily: [{rates: {income_tax: lots}}]}",
		"negative":       "classifications: {daily: [{rates: {income_tax: -1}}]}",
		"zero day":       "overtime: {standard_day_hours: 0}",
		"not yaml":       "classifications: [",
	}
	for name, doc := range cases {
		_, _, err := NewRateTableFactory().Parse([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(ratesYAML), 0o644))

	tables, _, err := NewRateTableFactory().LoadFile(path)
	require.NoError(t, err)

	_, err = tables.GetRatesFor(context.Background(), "hourly", time.Now())
	assert.ErrorIs(t, err, payroll.ErrUnknownClassification)

	_, _, err = NewRateTableFactory().LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
