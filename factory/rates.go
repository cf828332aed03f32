/*
Package factory converts rate-table files into a RateTableSource.

PURPOSE:
  Deduction rates change a few times a year and are owned by payroll staff,
  not developers. The factory reads them from a YAML (or JSON) document so a
  new rate version is a file edit, not a deploy.

FILE SCHEMA:
  overtime:                    # optional, overrides the engine defaults
    threshold_hours: 8
    multiplier: 1.5
    standard_day_hours: 8
  classifications:
    daily:
      - effective_from: 2024-01-01
        rates:
          income_tax: 3.3
          local_tax: 0.33
      - effective_from: 2024-07-01
        rates:
          income_tax: 3.5

  Percentages are read from their literal text, so 3.3 stays exactly 3.3.
  JSON documents with the same shape are accepted because JSON is YAML.

USAGE:
  f := factory.NewRateTableFactory()
  tables, overtime, err := f.LoadFile("rates.yaml")
  engine, _ := payroll.NewEngine(records, workers, tables, snapshots, cfg)

SEE ALSO:
  - payroll/rates.go: RateTableSource and the resolver on top of it
  - payroll/store/memory.go: RateTables, the source this factory fills
*/
package factory

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/wage-engine/payroll"
	"github.com/warp/wage-engine/payroll/store"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// FILE SCHEMA TYPES
// =============================================================================

// RatesFile is the document root.
type RatesFile struct {
	Overtime        *OvertimeYAML                 `yaml:"overtime,omitempty"`
	Classifications map[string][]RateVersionYAML `yaml:"classifications"`
}

// OvertimeYAML mirrors payroll.OvertimePolicy. Missing fields keep defaults.
type OvertimeYAML struct {
	ThresholdHours   string `yaml:"threshold_hours,omitempty"`
	Multiplier       string `yaml:"multiplier,omitempty"`
	StandardDayHours string `yaml:"standard_day_hours,omitempty"`
}

// RateVersionYAML is one effective-dated version of a classification's rates.
type RateVersionYAML struct {
	EffectiveFrom string            `yaml:"effective_from"`
	Rates         map[string]string `yaml:"rates"`
}

// =============================================================================
// RATE TABLE FACTORY
// =============================================================================

// RateTableFactory builds rate sources from documents.
type RateTableFactory struct{}

// NewRateTableFactory creates a new factory.
func NewRateTableFactory() *RateTableFactory {
	return &RateTableFactory{}
}

// LoadFile reads and parses a rate-table file.
func (f *RateTableFactory) LoadFile(path string) (*store.RateTables, *payroll.OvertimePolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read rates file: %w", err)
	}
	return f.Parse(data)
}

// Parse converts a document into rate tables and, when the document has an
// overtime section, an overtime policy.
func (f *RateTableFactory) Parse(data []byte) (*store.RateTables, *payroll.OvertimePolicy, error) {
	var doc RatesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to parse rates file: %w", err)
	}
	return f.FromFile(doc)
}

// FromFile converts a decoded document.
func (f *RateTableFactory) FromFile(doc RatesFile) (*store.RateTables, *payroll.OvertimePolicy, error) {
	tables := store.NewRateTables()
	for classification, versions := range doc.Classifications {
		if classification == "" {
			return nil, nil, fmt.Errorf("classification name is required")
		}
		for i, v := range versions {
			from, err := parseEffectiveFrom(v.EffectiveFrom)
			if err != nil {
				return nil, nil, fmt.Errorf("%s[%d]: %w", classification, i, err)
			}
			rates, err := parseRates(v.Rates)
			if err != nil {
				return nil, nil, fmt.Errorf("%s[%d]: %w", classification, i, err)
			}
			tables.Set(classification, from, rates)
		}
	}

	if doc.Overtime == nil {
		return tables, nil, nil
	}
	policy, err := parseOvertime(*doc.Overtime)
	if err != nil {
		return nil, nil, err
	}
	return tables, &policy, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// An empty effective_from means the version has always applied.
func parseEffectiveFrom(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid effective_from %q: %w", s, err)
	}
	return t, nil
}

func parseRates(raw map[string]string) (map[string]decimal.Decimal, error) {
	rates := make(map[string]decimal.Decimal, len(raw))
	for name, s := range raw {
		pct, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("rate %s: invalid percentage %q", name, s)
		}
		if pct.IsNegative() {
			return nil, fmt.Errorf("rate %s: negative percentage %s", name, s)
		}
		rates[name] = pct
	}
	return rates, nil
}

func parseOvertime(o OvertimeYAML) (payroll.OvertimePolicy, error) {
	policy := payroll.DefaultOvertimePolicy()
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"threshold_hours", o.ThresholdHours, &policy.ThresholdHours},
		{"multiplier", o.Multiplier, &policy.Multiplier},
		{"standard_day_hours", o.StandardDayHours, &policy.StandardDayHours},
	}
	for _, fld := range fields {
		if fld.raw == "" {
			continue
		}
		v, err := decimal.NewFromString(fld.raw)
		if err != nil {
			return payroll.OvertimePolicy{}, fmt.Errorf("overtime %s: invalid value %q", fld.name, fld.raw)
		}
		*fld.dst = v
	}
	if err := policy.Validate(); err != nil {
		return payroll.OvertimePolicy{}, err
	}
	return policy, nil
}
