/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Populates the source database with small, known data sets so the daily,
  monthly and lifecycle endpoints can be exercised end to end. Every
  scenario lives in March 2024 and uses worker ids prefixed "demo-".

AVAILABLE SCENARIOS:
  daily-worker:     One full labor-day at 150000 with 3.3% income tax
  overtime-worker:  One 10-hour day, 2 hours paid at 1.5x
  bonus-and-skip:   A bonus day plus a record with an unusable bonus
  missing-rate:     A worker with records but no daily rate

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "overtime-worker"}

  then e.g.
  POST /api/workers/demo-ot/months/2024/3/issue

NOTE:
  Loading a scenario resets the source data first. Only use in
  development/demo environments.

SEE ALSO:
  - handlers.go: Handler wiring
  - store/gormdb: The Seeder used by cmd/server
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/wage-engine/payroll"
)

// Seeder writes demo data into the engine's sources.
type Seeder interface {
	Reset(ctx context.Context) error
	SetWorker(ctx context.Context, workerID, classification string, dailyRate decimal.Decimal) error
	SetRates(ctx context.Context, classification string, effectiveFrom time.Time, rates map[string]decimal.Decimal) error
	AddRecords(ctx context.Context, recs ...payroll.LaborRecord) error
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "daily-worker",
		Name:        "Daily Worker",
		Description: "One labor-day at 150000 with 3.3% income tax",
	},
	{
		ID:          "overtime-worker",
		Name:        "Overtime Worker",
		Description: "One 10-hour day; hours past 8 paid at 1.5x",
	},
	{
		ID:          "bonus-and-skip",
		Name:        "Bonus and Skipped Record",
		Description: "A bonus day plus a record whose bonus cannot be parsed",
	},
	{
		ID:          "missing-rate",
		Name:        "Missing Rate",
		Description: "Worker with labor records but no daily rate",
	},
}

var scenarioLoaders = map[string]func(ctx context.Context, s Seeder) error{
	"daily-worker":    loadDailyWorkerScenario,
	"overtime-worker": loadOvertimeWorkerScenario,
	"bonus-and-skip":  loadBonusScenario,
	"missing-rate":    loadMissingRateScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario resets the sources and loads one scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()
	if err := h.Seeder.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset sources", err)
		return
	}
	if err := seedRates(ctx, h.Seeder); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to seed rates", err)
		return
	}
	if err := load(ctx, h.Seeder); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.logger.WithField("scenario", req.ScenarioID).Info("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

var demoDay = time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)

func seedRates(ctx context.Context, s Seeder) error {
	return s.SetRates(ctx, "daily", time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		map[string]decimal.Decimal{"income_tax": decimal.RequireFromString("3.3")})
}

func loadDailyWorkerScenario(ctx context.Context, s Seeder) error {
	if err := s.SetWorker(ctx, "demo-daily", "daily", decimal.NewFromInt(150000)); err != nil {
		return err
	}
	return s.AddRecords(ctx, payroll.DaysRecord("demo-daily", demoDay, decimal.NewFromInt(1)))
}

func loadOvertimeWorkerScenario(ctx context.Context, s Seeder) error {
	if err := s.SetWorker(ctx, "demo-ot", "daily", decimal.NewFromInt(150000)); err != nil {
		return err
	}
	return s.AddRecords(ctx, payroll.HoursRecord("demo-ot", demoDay, decimal.NewFromInt(10)))
}

func loadBonusScenario(ctx context.Context, s Seeder) error {
	if err := s.SetWorker(ctx, "demo-bonus", "daily", decimal.NewFromInt(150000)); err != nil {
		return err
	}
	good := payroll.DaysRecord("demo-bonus", demoDay, decimal.NewFromInt(1))
	good.Supplements = map[string]string{payroll.SupplementBonus: "50000"}
	bad := payroll.DaysRecord("demo-bonus", demoDay.AddDate(0, 0, 1), decimal.NewFromInt(1))
	bad.Supplements = map[string]string{payroll.SupplementBonus: "a lot"}
	return s.AddRecords(ctx, good, bad)
}

func loadMissingRateScenario(ctx context.Context, s Seeder) error {
	if err := s.SetWorker(ctx, "demo-norate", "daily", decimal.Zero); err != nil {
		return err
	}
	return s.AddRecords(ctx, payroll.DaysRecord("demo-norate", demoDay, decimal.NewFromInt(1)))
}
