/*
Package chronos drives the automatic daily close-out and retention purge.

PURPOSE:
  A minute-resolution tick walks every tenant, decides whether its
  automatic rollover is due (local hour equals the reset hour, not already
  closed today), and executes the close through the ledger engine. A
  lower-frequency sweep purges transactions, archives, and audit entries
  older than the retention window.

DESIGN:
  - One global ticker; within a tick, tenants are processed by a bounded
    fan-out of goroutines so no tenant blocks another
  - Per-tenant panics and errors are caught and logged at tenant
    granularity; they never abort the tick
  - The last_auto_reset stamp is an advisory same-day guard, written only
    after the costly work completes. It biases toward "skip if already
    done" rather than true mutual exclusion: archive commit means the
    state transition happened at most once, while the notification is
    at-least-once.

DELIVERY SEMANTICS:
  Notifier and Exporter are external collaborators. Their failures are
  logged and never corrupt ledger state: if the archive already committed,
  the tenant is closed and will not retry.

USAGE:
  s := chronos.New(store, engine, notifier, exporter, log)
  s.Start()
  // ... later
  s.Stop()

SEE ALSO:
  - ledger/engine.go: CloseDate, the operation this schedules
  - ledger/store.go: ListActiveTenants, StampAutoReset, PurgeBefore
*/
package chronos

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/ledger-engine/ledger"
)

// Notifier delivers a closing message to a tenant. Fire-and-forget:
// errors are logged by the scheduler, never retried within a tick.
type Notifier interface {
	Notify(ctx context.Context, id ledger.TenantID, text string) error
}

// Exporter turns a day snapshot into a delivered artifact (a document in
// the chat, a file on disk). Failure does not block the close.
type Exporter interface {
	Export(ctx context.Context, id ledger.TenantID, businessDate string, snapshot []byte) error
}

const (
	defaultTickInterval  = 1 * time.Minute
	defaultSweepInterval = 1 * time.Hour
	defaultRetention     = 3 * 24 * time.Hour
	defaultMaxConcurrent = 8
)

// Scheduler runs the rollover tick and the retention sweep.
type Scheduler struct {
	Store    ledger.TxStore
	Engine   *ledger.Engine
	Notifier Notifier
	Exporter Exporter
	Log      *logrus.Logger

	TickInterval  time.Duration
	SweepInterval time.Duration
	Retention     time.Duration
	MaxConcurrent int
	Now           func() time.Time

	ticker *time.Ticker
	sweep  *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// New creates a scheduler with default intervals and retention.
func New(store ledger.TxStore, engine *ledger.Engine, notifier Notifier, exporter Exporter, log *logrus.Logger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		Store:         store,
		Engine:        engine,
		Notifier:      notifier,
		Exporter:      exporter,
		Log:           log,
		TickInterval:  defaultTickInterval,
		SweepInterval: defaultSweepInterval,
		Retention:     defaultRetention,
		MaxConcurrent: defaultMaxConcurrent,
		Now:           time.Now,
		stop:          make(chan struct{}),
	}
}

// Start begins the rollover tick and the retention sweep.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		return
	}
	s.ticker = time.NewTicker(s.TickInterval)
	s.sweep = time.NewTicker(s.SweepInterval)
	s.wg.Add(1)

	go s.run()

	s.Log.WithFields(logrus.Fields{
		"component": "chronos",
		"tick":      s.TickInterval.String(),
		"sweep":     s.SweepInterval.String(),
		"retention": s.Retention.String(),
	}).Info("scheduler started")
}

// Stop halts both loops and waits for in-flight work.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.sweep.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.Log.WithField("component", "chronos").Info("scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ticker.C:
			s.Tick(context.Background())
		case <-s.sweep.C:
			s.Sweep(context.Background())
		case <-s.stop:
			return
		}
	}
}

// Tick runs one rollover pass over every tenant. Exported so the admin
// endpoint can trigger an immediate check.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()

	tenants, err := s.Store.ListActiveTenants(ctx)
	if err != nil {
		s.Log.WithField("component", "chronos").WithError(err).Error("failed to list tenants")
		return
	}

	sem := make(chan struct{}, s.maxConcurrent())
	var wg sync.WaitGroup
	var mu sync.Mutex
	processed, skipped := 0, 0

	for _, tenant := range tenants {
		due, err := s.due(ctx, tenant, now)
		if err != nil {
			s.Log.WithFields(logrus.Fields{
				"component": "chronos",
				"tenant":    tenant.ID,
			}).WithError(err).Error("due check failed")
			continue
		}
		if !due {
			skipped++
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(t ledger.Tenant) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					s.Log.WithFields(logrus.Fields{
						"component": "chronos",
						"tenant":    t.ID,
					}).Errorf("rollover panic: %v", r)
				}
			}()

			if err := s.rollover(ctx, t, now); err != nil {
				s.Log.WithFields(logrus.Fields{
					"component": "chronos",
					"tenant":    t.ID,
				}).WithError(err).Error("rollover failed")
				return
			}
			mu.Lock()
			processed++
			mu.Unlock()
		}(tenant)
	}
	wg.Wait()

	if processed > 0 {
		s.Log.WithFields(logrus.Fields{
			"component": "chronos",
			"processed": processed,
			"skipped":   skipped,
		}).Info("rollover tick completed")
	}
}

// due reports whether the tenant's automatic close should run now. The
// stamp comparison uses the tenant's local calendar day so a 23:59 stamp
// and a 00:01 check land on different days.
func (s *Scheduler) due(ctx context.Context, t ledger.Tenant, now time.Time) (bool, error) {
	local := now.In(t.Location())
	if local.Hour() != t.ResetHour {
		return false, nil
	}
	if t.LastAutoReset != nil && ledger.SameLocalDay(t.Timezone, *t.LastAutoReset, now) {
		return false, nil
	}

	// A manual stop earlier in the day already archived the ledger.
	if t.State == ledger.StateEnded {
		done, err := s.Store.HasArchive(ctx, t.ID, s.endedDate(t, now), ledger.ArchiveDailySnapshot)
		if err != nil {
			return false, err
		}
		if done {
			return false, nil
		}
	}
	return true, nil
}

// endedDate is the business date that just closed at the reset hour. At
// the boundary the resolver has already rolled forward, so step back one
// hour to land inside the day being archived.
func (s *Scheduler) endedDate(t ledger.Tenant, now time.Time) string {
	return ledger.BusinessDate(t.Timezone, t.ResetHour, now.Add(-time.Hour))
}

func (s *Scheduler) rollover(ctx context.Context, t ledger.Tenant, now time.Time) error {
	date := s.endedDate(t, now)

	if !t.LedgerEnabled {
		// No financial closure, but still notify once and stamp the day so
		// the message is not resent within the same day.
		s.notify(ctx, t.ID, fmt.Sprintf("Daily reset for %s.", date))
		return s.Store.StampAutoReset(ctx, t.ID, now)
	}

	res, err := s.Engine.CloseDate(ctx, t.ID, date, ledger.CloseAuto, "chronos")
	if err != nil {
		return err
	}

	// Past this point the archive and state transition are committed; the
	// tenant is closed even if delivery fails.
	if s.Exporter != nil && len(res.Export) > 0 {
		if err := s.Exporter.Export(ctx, t.ID, date, res.Export); err != nil {
			s.Log.WithFields(logrus.Fields{
				"component": "chronos",
				"tenant":    t.ID,
				"date":      date,
			}).WithError(err).Error("export delivery failed")
		}
	}
	s.notify(ctx, t.ID, res.Text)

	return s.Store.StampAutoReset(ctx, t.ID, now)
}

func (s *Scheduler) notify(ctx context.Context, id ledger.TenantID, text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, id, text); err != nil {
		s.Log.WithFields(logrus.Fields{
			"component": "chronos",
			"tenant":    id,
		}).WithError(err).Error("notification failed")
	}
}

// Sweep purges data older than the retention window. Failures are logged
// and retried on the next sweep.
func (s *Scheduler) Sweep(ctx context.Context) {
	now := s.now()
	cutoffTime := now.Add(-s.Retention)
	cutoffDate := cutoffTime.UTC().Format(ledger.DateLayout)

	res, err := s.Store.PurgeBefore(ctx, cutoffDate, cutoffTime)
	if err != nil {
		s.Log.WithField("component", "chronos").WithError(err).Error("retention purge failed")
		return
	}
	if res.Transactions > 0 || res.Archives > 0 || res.AuditEntries > 0 {
		s.Log.WithFields(logrus.Fields{
			"component":    "chronos",
			"transactions": res.Transactions,
			"archives":     res.Archives,
			"audit":        res.AuditEntries,
		}).Info("retention purge completed")
	}
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) maxConcurrent() int {
	if s.MaxConcurrent > 0 {
		return s.MaxConcurrent
	}
	return defaultMaxConcurrent
}
