package payroll

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// RATE TABLE SOURCE - External collaborator
// =============================================================================

// RateTable is what a rate source returns: deduction name -> percentage.
type RateTable struct {
	Rates         map[string]decimal.Decimal
	EffectiveFrom time.Time
}

// RateTableSource looks up the deduction rates for a classification as of a date.
// Unknown classifications may return an empty table or ErrUnknownClassification.
type RateTableSource interface {
	GetRatesFor(ctx context.Context, classification string, asOf time.Time) (RateTable, error)
}

// =============================================================================
// RATE RESOLVER
// =============================================================================

// RateResolver turns rate-table lookups into RateSets, degrading unknown
// classifications to an empty set.
type RateResolver struct {
	source RateTableSource
	logger logrus.FieldLogger
}

// NewRateResolver creates a resolver over the given source.
func NewRateResolver(source RateTableSource, logger logrus.FieldLogger) *RateResolver {
	return &RateResolver{source: source, logger: orDefaultLogger(logger)}
}

// Resolve returns the RateSet effective for classification at asOf.
func (r *RateResolver) Resolve(ctx context.Context, classification string, asOf time.Time) (RateSet, error) {
	classification = strings.TrimSpace(classification)
	if classification == "" {
		return RateSet{}, &ValidationError{Field: "classification", Message: "must not be empty"}
	}
	log := r.logger.WithField("classification", classification)

	set := RateSet{
		Classification: classification,
		Rates:          map[string]decimal.Decimal{},
		EffectiveDate:  asOf,
	}

	table, err := r.source.GetRatesFor(ctx, classification, asOf)
	if errors.Is(err, ErrUnknownClassification) {
		log.Warn("unknown classification, no deductions applied")
		return set, nil
	}
	if err != nil {
		return RateSet{}, &RateLookupError{Classification: classification, Err: err}
	}
	if len(table.Rates) == 0 {
		log.Warn("no rates configured for classification, no deductions applied")
		return set, nil
	}

	if !table.EffectiveFrom.IsZero() {
		set.EffectiveDate = table.EffectiveFrom
	}
	for name, pct := range table.Rates {
		if pct.IsNegative() {
			log.WithField("deduction", name).Warn("negative rate ignored")
			continue
		}
		set.Rates[name] = pct
	}
	return set, nil
}

func orDefaultLogger(logger logrus.FieldLogger) logrus.FieldLogger {
	if logger != nil {
		return logger
	}
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return l
}
