package snapshot

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/wage-engine/payroll"
)

// =============================================================================
// COLUMNS
// =============================================================================

const (
	ColID              = "id"
	ColWorkerID        = "worker_id"
	ColYear            = "year"
	ColMonth           = "month"
	ColPeriodLabel     = "period_label"
	ColSchemaVersion   = "schema_version"
	ColTemplateVersion = "template_version"
	ColIssuedAt        = "issued_at"
	ColIssuedBy        = "issued_by"
	ColPeriodStart     = "period_start"
	ColPeriodEnd       = "period_end"
	ColWorkdays        = "workdays"
	ColTotalLaborDays  = "total_labor_days"
	ColOvertimeHours   = "overtime_hours"
	ColBasePay         = "base_pay"
	ColOvertimePay     = "overtime_pay"
	ColBonusPay        = "bonus_pay"
	ColGrossPay        = "gross_pay"
	ColDeductions      = "deductions"
	ColTotalDeductions = "total_deductions"
	ColNetPay          = "net_pay"
	ColClassification  = "classification"
	ColDailyRate       = "daily_rate"
	ColFirstWorkday    = "first_workday"
	ColLastWorkday     = "last_workday"
	ColStatus          = "status"
	ColApprovedBy      = "approved_by"
	ColApprovedAt      = "approved_at"
	ColPaidBy          = "paid_by"
	ColPaidAt          = "paid_at"
	ColMetaNote        = "meta_note"
)

// KeyColumns form the upsert conflict target.
var KeyColumns = []string{ColWorkerID, ColYear, ColMonth}

// optionalColumns may be missing from an older primary schema. Their values
// are then carried in meta_note.
var optionalColumns = map[string]bool{
	ColPeriodLabel:     true,
	ColTemplateVersion: true,
	ColOvertimeHours:   true,
	ColOvertimePay:     true,
	ColBonusPay:        true,
	ColClassification:  true,
	ColFirstWorkday:    true,
	ColLastWorkday:     true,
	ColApprovedBy:      true,
	ColApprovedAt:      true,
	ColPaidBy:          true,
	ColPaidAt:          true,
}

// IsOptionalColumn reports whether a column may be dropped by negotiation.
func IsOptionalColumn(name string) bool {
	return optionalColumns[name]
}

// =============================================================================
// ROW CODEC - Primary tier
// =============================================================================

// EncodeRow flattens a snapshot into a primary-tier row. Amounts are decimal
// strings, timestamps RFC3339 UTC strings, deductions a JSON object.
func EncodeRow(s payroll.MonthlySnapshot) (Row, error) {
	deductions, err := encodeAmounts(s.Deductions)
	if err != nil {
		return nil, err
	}
	return Row{
		ColID:              s.ID,
		ColWorkerID:        s.WorkerID,
		ColYear:            int64(s.Year),
		ColMonth:           int64(s.Month),
		ColPeriodLabel:     s.PeriodLabel,
		ColSchemaVersion:   int64(s.SchemaVersion),
		ColTemplateVersion: s.TemplateVersion,
		ColIssuedAt:        formatTime(s.IssuedAt),
		ColIssuedBy:        s.IssuedBy,
		ColPeriodStart:     formatTime(s.PeriodStart),
		ColPeriodEnd:       formatTime(s.PeriodEnd),
		ColWorkdays:        int64(s.Workdays),
		ColTotalLaborDays:  s.TotalLaborDays.String(),
		ColOvertimeHours:   s.OvertimeHours.String(),
		ColBasePay:         s.BasePay.String(),
		ColOvertimePay:     s.OvertimePay.String(),
		ColBonusPay:        s.BonusPay.String(),
		ColGrossPay:        s.GrossPay.String(),
		ColDeductions:      deductions,
		ColTotalDeductions: s.TotalDeductions.String(),
		ColNetPay:          s.NetPay.String(),
		ColClassification:  s.Classification,
		ColDailyRate:       s.DailyRate.String(),
		ColFirstWorkday:    formatTimePtr(s.FirstWorkday),
		ColLastWorkday:     formatTimePtr(s.LastWorkday),
		ColStatus:          string(s.Status),
		ColApprovedBy:      s.ApprovedBy,
		ColApprovedAt:      formatTimePtr(s.ApprovedAt),
		ColPaidBy:          s.PaidBy,
		ColPaidAt:          formatTimePtr(s.PaidAt),
		ColMetaNote:        nil,
	}, nil
}

// DecodeRow rebuilds a snapshot from a primary-tier row. Columns missing from
// the row are restored from meta_note when present there.
func DecodeRow(row Row) (payroll.MonthlySnapshot, error) {
	merged, err := restoreMetaNote(row)
	if err != nil {
		return payroll.MonthlySnapshot{}, err
	}
	r := &rowReader{row: merged}

	s := payroll.MonthlySnapshot{
		ID:              r.text(ColID),
		WorkerID:        r.text(ColWorkerID),
		Year:            r.integer(ColYear),
		Month:           r.integer(ColMonth),
		PeriodLabel:     r.text(ColPeriodLabel),
		SchemaVersion:   r.integer(ColSchemaVersion),
		TemplateVersion: r.text(ColTemplateVersion),
		IssuedAt:        r.timestamp(ColIssuedAt),
		IssuedBy:        r.text(ColIssuedBy),
		PeriodStart:     r.timestamp(ColPeriodStart),
		PeriodEnd:       r.timestamp(ColPeriodEnd),
		Workdays:        r.integer(ColWorkdays),
		TotalLaborDays:  r.amount(ColTotalLaborDays),
		OvertimeHours:   r.amount(ColOvertimeHours),
		BasePay:         r.amount(ColBasePay),
		OvertimePay:     r.amount(ColOvertimePay),
		BonusPay:        r.amount(ColBonusPay),
		GrossPay:        r.amount(ColGrossPay),
		Deductions:      r.amounts(ColDeductions),
		TotalDeductions: r.amount(ColTotalDeductions),
		NetPay:          r.amount(ColNetPay),
		Classification:  r.text(ColClassification),
		DailyRate:       r.amount(ColDailyRate),
		FirstWorkday:    r.timePtr(ColFirstWorkday),
		LastWorkday:     r.timePtr(ColLastWorkday),
		Status:          payroll.Status(r.text(ColStatus)),
		ApprovedBy:      r.text(ColApprovedBy),
		ApprovedAt:      r.timePtr(ColApprovedAt),
		PaidBy:          r.text(ColPaidBy),
		PaidAt:          r.timePtr(ColPaidAt),
	}
	if r.err != nil {
		return payroll.MonthlySnapshot{}, r.err
	}
	if err := checkDecoded(s); err != nil {
		return payroll.MonthlySnapshot{}, err
	}
	return s, nil
}

// =============================================================================
// META NOTE - Values of columns the primary schema lacks
// =============================================================================

// moveToMetaNote removes columns from row and records their values in the
// row's meta_note JSON object.
func moveToMetaNote(row Row, columns []string) (Row, error) {
	if len(columns) == 0 {
		return row, nil
	}
	out := make(Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	note, err := parseMetaNote(out[ColMetaNote])
	if err != nil {
		return nil, err
	}
	for _, col := range columns {
		if v, ok := out[col]; ok {
			if v != nil && v != "" {
				note[col] = v
			}
			delete(out, col)
		}
	}
	if len(note) == 0 {
		return out, nil
	}
	data, err := json.Marshal(note)
	if err != nil {
		return nil, fmt.Errorf("encode meta note: %w", err)
	}
	out[ColMetaNote] = string(data)
	return out, nil
}

func restoreMetaNote(row Row) (Row, error) {
	note, err := parseMetaNote(row[ColMetaNote])
	if err != nil {
		return nil, err
	}
	if len(note) == 0 {
		return row, nil
	}
	out := make(Row, len(row)+len(note))
	for k, v := range row {
		out[k] = v
	}
	for k, v := range note {
		if existing, ok := out[k]; !ok || existing == nil {
			out[k] = v
		}
	}
	return out, nil
}

func parseMetaNote(v any) (map[string]any, error) {
	note := map[string]any{}
	raw, ok := textValue(v)
	if !ok || raw == "" {
		return note, nil
	}
	if err := json.Unmarshal([]byte(raw), &note); err != nil {
		return nil, fmt.Errorf("decode meta note: %w", err)
	}
	return note, nil
}

// =============================================================================
// BLOB CODEC - Fallback tier
// =============================================================================

const blobKind = "monthly_snapshot"

// blobDocument is the self-describing JSON form of a snapshot.
type blobDocument struct {
	Kind            string                     `json:"kind"`
	SchemaVersion   int                        `json:"schema_version"`
	TemplateVersion string                     `json:"template_version"`
	ID              string                     `json:"id"`
	WorkerID        string                     `json:"worker_id"`
	Year            int                        `json:"year"`
	Month           int                        `json:"month"`
	PeriodLabel     string                     `json:"period_label"`
	IssuedAt        time.Time                  `json:"issued_at"`
	IssuedBy        string                     `json:"issued_by"`
	PeriodStart     time.Time                  `json:"period_start"`
	PeriodEnd       time.Time                  `json:"period_end"`
	Workdays        int                        `json:"workdays"`
	TotalLaborDays  decimal.Decimal            `json:"total_labor_days"`
	OvertimeHours   decimal.Decimal            `json:"overtime_hours"`
	BasePay         decimal.Decimal            `json:"base_pay"`
	OvertimePay     decimal.Decimal            `json:"overtime_pay"`
	BonusPay        decimal.Decimal            `json:"bonus_pay"`
	GrossPay        decimal.Decimal            `json:"gross_pay"`
	Deductions      map[string]decimal.Decimal `json:"deductions"`
	TotalDeductions decimal.Decimal            `json:"total_deductions"`
	NetPay          decimal.Decimal            `json:"net_pay"`
	Classification  string                     `json:"classification"`
	DailyRate       decimal.Decimal            `json:"daily_rate"`
	FirstWorkday    *time.Time                 `json:"first_workday,omitempty"`
	LastWorkday     *time.Time                 `json:"last_workday,omitempty"`
	Status          string                     `json:"status"`
	ApprovedBy      string                     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time                 `json:"approved_at,omitempty"`
	PaidBy          string                     `json:"paid_by,omitempty"`
	PaidAt          *time.Time                 `json:"paid_at,omitempty"`
}

// MarshalBlob encodes a snapshot as a blob document.
func MarshalBlob(s payroll.MonthlySnapshot) ([]byte, error) {
	doc := blobDocument{
		Kind:            blobKind,
		SchemaVersion:   s.SchemaVersion,
		TemplateVersion: s.TemplateVersion,
		ID:              s.ID,
		WorkerID:        s.WorkerID,
		Year:            s.Year,
		Month:           s.Month,
		PeriodLabel:     s.PeriodLabel,
		IssuedAt:        s.IssuedAt,
		IssuedBy:        s.IssuedBy,
		PeriodStart:     s.PeriodStart,
		PeriodEnd:       s.PeriodEnd,
		Workdays:        s.Workdays,
		TotalLaborDays:  s.TotalLaborDays,
		OvertimeHours:   s.OvertimeHours,
		BasePay:         s.BasePay,
		OvertimePay:     s.OvertimePay,
		BonusPay:        s.BonusPay,
		GrossPay:        s.GrossPay,
		Deductions:      s.Deductions,
		TotalDeductions: s.TotalDeductions,
		NetPay:          s.NetPay,
		Classification:  s.Classification,
		DailyRate:       s.DailyRate,
		FirstWorkday:    s.FirstWorkday,
		LastWorkday:     s.LastWorkday,
		Status:          string(s.Status),
		ApprovedBy:      s.ApprovedBy,
		ApprovedAt:      s.ApprovedAt,
		PaidBy:          s.PaidBy,
		PaidAt:          s.PaidAt,
	}
	return json.MarshalIndent(doc, "", "  ")
}

// UnmarshalBlob decodes a blob document.
func UnmarshalBlob(data []byte) (payroll.MonthlySnapshot, error) {
	var doc blobDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return payroll.MonthlySnapshot{}, fmt.Errorf("decode snapshot blob: %w", err)
	}
	if doc.Kind != blobKind {
		return payroll.MonthlySnapshot{}, fmt.Errorf("decode snapshot blob: unexpected kind %q", doc.Kind)
	}
	s := payroll.MonthlySnapshot{
		ID:              doc.ID,
		WorkerID:        doc.WorkerID,
		Year:            doc.Year,
		Month:           doc.Month,
		PeriodLabel:     doc.PeriodLabel,
		SchemaVersion:   doc.SchemaVersion,
		TemplateVersion: doc.TemplateVersion,
		IssuedAt:        doc.IssuedAt,
		IssuedBy:        doc.IssuedBy,
		PeriodStart:     doc.PeriodStart,
		PeriodEnd:       doc.PeriodEnd,
		Workdays:        doc.Workdays,
		TotalLaborDays:  doc.TotalLaborDays,
		OvertimeHours:   doc.OvertimeHours,
		BasePay:         doc.BasePay,
		OvertimePay:     doc.OvertimePay,
		BonusPay:        doc.BonusPay,
		GrossPay:        doc.GrossPay,
		Deductions:      doc.Deductions,
		TotalDeductions: doc.TotalDeductions,
		NetPay:          doc.NetPay,
		Classification:  doc.Classification,
		DailyRate:       doc.DailyRate,
		FirstWorkday:    doc.FirstWorkday,
		LastWorkday:     doc.LastWorkday,
		Status:          payroll.Status(doc.Status),
		ApprovedBy:      doc.ApprovedBy,
		ApprovedAt:      doc.ApprovedAt,
		PaidBy:          doc.PaidBy,
		PaidAt:          doc.PaidAt,
	}
	if s.Deductions == nil {
		s.Deductions = map[string]decimal.Decimal{}
	}
	if err := checkDecoded(s); err != nil {
		return payroll.MonthlySnapshot{}, err
	}
	return s, nil
}

func checkDecoded(s payroll.MonthlySnapshot) error {
	if s.SchemaVersion > payroll.SchemaVersion {
		return fmt.Errorf("snapshot %s: unsupported schema version %d", s.Key(), s.SchemaVersion)
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("snapshot %s: %w", s.Key(), err)
	}
	return nil
}

// =============================================================================
// VALUE HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func encodeAmounts(m map[string]decimal.Decimal) (string, error) {
	if m == nil {
		m = map[string]decimal.Decimal{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode deductions: %w", err)
	}
	return string(data), nil
}

func textValue(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	case time.Time:
		return formatTime(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int:
		return strconv.Itoa(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return fmt.Sprint(t), true
	}
}

// rowReader reads typed values out of a Row, keeping the first error.
type rowReader struct {
	row Row
	err error
}

func (r *rowReader) fail(col string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("column %s: %w", col, err)
	}
}

func (r *rowReader) text(col string) string {
	s, _ := textValue(r.row[col])
	return s
}

func (r *rowReader) integer(col string) int {
	switch t := r.row[col].(type) {
	case nil:
		return 0
	case int64:
		return int(t)
	case int32:
		return int(t)
	case int:
		return t
	case float64:
		return int(t)
	}
	s, _ := textValue(r.row[col])
	n, err := strconv.Atoi(s)
	if err != nil {
		r.fail(col, err)
	}
	return n
}

func (r *rowReader) amount(col string) decimal.Decimal {
	s, ok := textValue(r.row[col])
	if !ok || s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		r.fail(col, err)
		return decimal.Zero
	}
	return d
}

func (r *rowReader) amounts(col string) map[string]decimal.Decimal {
	out := map[string]decimal.Decimal{}
	s, ok := textValue(r.row[col])
	if !ok || s == "" {
		return out
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		r.fail(col, err)
	}
	return out
}

func (r *rowReader) timestamp(col string) time.Time {
	if t, ok := r.row[col].(time.Time); ok {
		return t.UTC()
	}
	s, ok := textValue(r.row[col])
	if !ok || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		r.fail(col, err)
	}
	return t
}

func (r *rowReader) timePtr(col string) *time.Time {
	if r.row[col] == nil {
		return nil
	}
	t := r.timestamp(col)
	if t.IsZero() {
		return nil
	}
	return &t
}
