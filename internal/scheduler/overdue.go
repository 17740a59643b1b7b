// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"libraryhub/internal/metrics"
	"libraryhub/internal/services"
)

// OverdueReporter is the slice of the borrow ledger the sweep needs.
type OverdueReporter interface {
	OverdueSummary(ctx context.Context) (*services.OverdueSummary, error)
}

// OverdueSweeper periodically tallies overdue loans into the metrics gauges.
// It only reads; fines are always computed on demand.
type OverdueSweeper struct {
	reporter OverdueReporter
	schedule string
	timeout  time.Duration

	cron      *cron.Cron
	mu        sync.Mutex
	isRunning bool
	last      *services.OverdueSummary
}

func NewOverdueSweeper(reporter OverdueReporter, schedule string) *OverdueSweeper {
	return &OverdueSweeper{
		reporter: reporter,
		schedule: schedule,
		timeout:  30 * time.Second,
		cron:     cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Start schedules the sweep and runs it once immediately. An empty schedule
// leaves the sweeper disabled.
func (s *OverdueSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if s.schedule == "" {
		log.Printf("[INFO] overdue sweep: disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid overdue sweep schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.isRunning = true
	log.Printf("[INFO] overdue sweep: started with schedule %q", s.schedule)

	go s.RunOnce(ctx)
	return nil
}

// Stop waits for a running sweep to finish.
func (s *OverdueSweeper) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	log.Printf("[INFO] overdue sweep: stopped")
}

// RunOnce performs a single sweep and updates the gauges.
func (s *OverdueSweeper) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	summary, err := s.reporter.OverdueSummary(ctx)
	if err != nil {
		log.Printf("[ERROR] overdue sweep: %v", err)
		return
	}

	metrics.OverdueLoans.Set(float64(summary.OverdueLoans))
	metrics.OutstandingFines.Set(float64(summary.OutstandingFines))

	s.mu.Lock()
	s.last = summary
	s.mu.Unlock()

	if summary.OverdueLoans > 0 {
		log.Printf("[WARN] overdue sweep: %d of %d active loans overdue, %d in outstanding fines",
			summary.OverdueLoans, summary.ActiveLoans, summary.OutstandingFines)
	} else {
		log.Printf("[INFO] overdue sweep: %d active loans, none overdue", summary.ActiveLoans)
	}
}

// Last returns the most recent successful sweep, or nil.
func (s *OverdueSweeper) Last() *services.OverdueSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
