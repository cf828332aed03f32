/*
scheduler.go - Automated month-end issuance

PURPOSE:
  Periodically issues the previous month's snapshot for every known worker
  that does not have one yet, so payroll staff start each month with a full
  set of issued snapshots to approve.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Targets the calendar month before the current one (UTC)
  - Skips workers whose snapshot for that month already exists in any tier,
    and workers whose lookup hit a storage fault
  - A failure for one worker is logged and does not stop the run

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewIssuanceScheduler(engine, workers, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: IssueSnapshot endpoint (manual issuance)
  - payroll/engine.go: Engine.Issue
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/wage-engine/payroll"
)

// SchedulerActor is recorded as the issuer of scheduled snapshots.
const SchedulerActor = "scheduler"

// WorkerLister enumerates the workers to issue for.
type WorkerLister interface {
	ListWorkerIDs(ctx context.Context) ([]string, error)
}

// RunSummary counts the outcome of one scheduler pass.
type RunSummary struct {
	Year    int
	Month   int
	Issued  int
	Skipped int
	Failed  int
}

// IssuanceScheduler issues last month's snapshots in the background.
type IssuanceScheduler struct {
	Engine        *payroll.Engine
	Workers       WorkerLister
	CheckInterval time.Duration
	Enabled       bool

	logger logrus.FieldLogger
	now    func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewIssuanceScheduler creates a new scheduler.
func NewIssuanceScheduler(engine *payroll.Engine, workers WorkerLister, logger logrus.FieldLogger) *IssuanceScheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &IssuanceScheduler{
		Engine:        engine,
		Workers:       workers,
		CheckInterval: time.Hour,
		Enabled:       true,
		logger:        logger.WithField("component", "scheduler"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source.
func (s *IssuanceScheduler) WithClock(now func() time.Time) *IssuanceScheduler {
	s.now = now
	return s
}

// Start begins the scheduler.
func (s *IssuanceScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run()

	s.logger.WithField("interval", s.CheckInterval).Info("started")
}

// Stop stops the scheduler and waits for an in-flight pass to finish.
func (s *IssuanceScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.logger.Info("stopped")
}

func (s *IssuanceScheduler) run() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stop
		cancel()
	}()

	s.RunNow(ctx)
	for {
		select {
		case <-s.ticker.C:
			s.RunNow(ctx)
		case <-s.stop:
			return
		}
	}
}

// RunNow performs one pass synchronously.
func (s *IssuanceScheduler) RunNow(ctx context.Context) RunSummary {
	year, month := previousMonth(s.now())
	sum := RunSummary{Year: year, Month: month}
	log := s.logger.WithFields(logrus.Fields{"year": year, "month": month})

	ids, err := s.Workers.ListWorkerIDs(ctx)
	if err != nil {
		log.WithError(err).Error("listing workers failed")
		return sum
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		wlog := log.WithField("worker_id", id)

		existing, err := s.Engine.LoadSnapshot(ctx, id, year, month)
		if err != nil {
			wlog.WithError(err).Warn("skipping worker")
			sum.Failed++
			continue
		}
		if existing.Snapshot != nil {
			sum.Skipped++
			continue
		}
		if existing.Degraded {
			wlog.Warn("snapshot storage degraded, not issuing over an unknown state")
			sum.Failed++
			continue
		}

		if _, _, err := s.Engine.Issue(ctx, id, year, month, SchedulerActor); err != nil {
			wlog.WithError(err).Warn("scheduled issuance failed")
			sum.Failed++
			continue
		}
		sum.Issued++
	}

	if sum.Issued > 0 || sum.Failed > 0 {
		log.WithFields(logrus.Fields{
			"issued":  sum.Issued,
			"skipped": sum.Skipped,
			"failed":  sum.Failed,
		}).Info("issuance pass completed")
	}
	return sum
}

func previousMonth(now time.Time) (int, int) {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	prev := first.AddDate(0, -1, 0)
	return prev.Year(), int(prev.Month())
}
