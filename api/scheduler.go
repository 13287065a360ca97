/*
scheduler.go - Periodic ledger audit

PURPOSE:
  Periodically recomputes every payment method's running total from its
  applied bills (ledger.Engine.Verify) and keeps the latest report for
  GET /api/audit. A non-empty report means a balance drifted from its bills,
  which normally only happens after a failed rollback or an edit made
  outside the engine.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Never mutates the ledger; repairing a discrepancy is a manual decision
  - Mismatches are logged at error level by the engine itself

CONFIGURATION:
  - Interval: How often to audit (AUDIT_INTERVAL, default 1h)
  - Enabled:  false when the interval is zero

USAGE:
  scheduler := NewAuditScheduler(engine, time.Hour, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: GetAudit / RunAudit endpoints
  - ledger/audit.go: Verify
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/ledger-engine/ledger"
)

// Verifier is the part of the ledger engine the scheduler needs.
type Verifier interface {
	Verify(ctx context.Context) ([]ledger.Discrepancy, error)
}

// AuditReport is the outcome of one audit run.
type AuditReport struct {
	RanAt         time.Time
	Discrepancies []ledger.Discrepancy
	Err           error
}

// AuditScheduler runs the ledger audit on a fixed interval.
type AuditScheduler struct {
	Verifier Verifier
	Interval time.Duration
	Enabled  bool

	// RunTimeout bounds a single audit.
	RunTimeout time.Duration

	log    zerolog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	reportMu sync.RWMutex
	last     *AuditReport
}

// NewAuditScheduler creates a scheduler. A zero interval disables it; the
// audit can still be triggered through RunNow.
func NewAuditScheduler(v Verifier, interval time.Duration, log zerolog.Logger) *AuditScheduler {
	return &AuditScheduler{
		Verifier:   v,
		Interval:   interval,
		Enabled:    interval > 0,
		RunTimeout: 5 * time.Minute,
		log:        log.With().Str("component", "audit").Logger(),
	}
}

// Start begins the scheduler.
func (s *AuditScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info().Msg("audit scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.log.Info().Dur("interval", s.Interval).Msg("audit scheduler started")
}

// Stop stops the scheduler and waits for a running audit to finish.
func (s *AuditScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.log.Info().Msg("audit scheduler stopped")
}

func (s *AuditScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow audits the ledger, stores the report and returns it.
func (s *AuditScheduler) RunNow(ctx context.Context) AuditReport {
	ctx, cancel := context.WithTimeout(ctx, s.RunTimeout)
	defer cancel()

	start := time.Now()
	discrepancies, err := s.Verifier.Verify(ctx)
	report := AuditReport{RanAt: start, Discrepancies: discrepancies, Err: err}

	switch {
	case err != nil:
		s.log.Error().Err(err).Msg("audit failed")
	case len(discrepancies) == 0:
		s.log.Debug().Dur("took", time.Since(start)).Msg("ledger consistent")
	}

	s.reportMu.Lock()
	s.last = &report
	s.reportMu.Unlock()
	return report
}

// Last returns the most recent report, if any audit ran yet.
func (s *AuditScheduler) Last() (AuditReport, bool) {
	s.reportMu.RLock()
	defer s.reportMu.RUnlock()
	if s.last == nil {
		return AuditReport{}, false
	}
	return *s.last, true
}

// NextRunTime returns when the next scheduled audit will occur, or the zero
// time when the scheduler is not running.
func (s *AuditScheduler) NextRunTime() time.Time {
	s.mu.Lock()
	running := s.ticker != nil
	s.mu.Unlock()
	if !running {
		return time.Time{}
	}
	last, ok := s.Last()
	if !ok {
		return time.Now()
	}
	return last.RanAt.Add(s.Interval)
}
