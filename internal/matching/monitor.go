package matching

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/sweeply/sweeply/internal/db/models"
	"github.com/sweeply/sweeply/internal/db/repos"
	"github.com/sweeply/sweeply/internal/logger"
	"github.com/sweeply/sweeply/internal/notify"
	"github.com/sweeply/sweeply/internal/observability"
)

// Monitor defaults
const (
	// DefaultSweepInterval is how often the arrival sweep runs
	DefaultSweepInterval = 15 * time.Minute
	// DefaultArrivalTolerance applies when a job carries no tolerance
	DefaultArrivalTolerance = 30 * time.Minute
	// DefaultRedistributeGrace is how far past the deadline a provider may
	// be before the job is redistributed
	DefaultRedistributeGrace = 30 * time.Minute
	// DefaultWarnWindow is how close to the deadline warnings start
	DefaultWarnWindow = 15 * time.Minute
	// DefaultPunctualityPenalty is subtracted from the punctuality rate of
	// a provider dropped for lateness
	DefaultPunctualityPenalty = 0.05
)

// MonitorConfig carries the arrival monitor tunables.
type MonitorConfig struct {
	SweepInterval     time.Duration
	ArrivalTolerance  time.Duration
	RedistributeGrace time.Duration
	WarnWindow        time.Duration

	// WarnOnce suppresses repeat warnings for the same assignment inside
	// the warn window. Off by default: the warning re-fires each sweep as
	// a reminder until the deadline passes.
	WarnOnce bool

	PunctualityPenalty float64
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.ArrivalTolerance <= 0 {
		c.ArrivalTolerance = DefaultArrivalTolerance
	}
	if c.RedistributeGrace <= 0 {
		c.RedistributeGrace = DefaultRedistributeGrace
	}
	if c.WarnWindow <= 0 {
		c.WarnWindow = DefaultWarnWindow
	}
	if c.PunctualityPenalty <= 0 {
		c.PunctualityPenalty = DefaultPunctualityPenalty
	}
	return c
}

// Monitor is the reconciliation sweep over claimed-but-not-started jobs. It
// warns providers approaching their arrival deadline and redistributes jobs
// whose providers are significantly late.
type Monitor struct {
	db         *gorm.DB
	dispatcher *Dispatcher
	notifier   notify.Notifier
	cfg        MonitorConfig
	now        func() time.Time

	// running guards against overlapping sweeps; a new sweep must not
	// start before the previous one finishes.
	running atomic.Bool
}

// NewMonitor creates an arrival monitor.
func NewMonitor(db *gorm.DB, dispatcher *Dispatcher, notifier notify.Notifier, cfg MonitorConfig) *Monitor {
	return &Monitor{
		db:         db,
		dispatcher: dispatcher,
		notifier:   notifier,
		cfg:        cfg.withDefaults(),
		now:        time.Now,
	}
}

// Run sweeps on a fixed interval until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	logger.Infof("arrival monitor started, sweeping every %s", m.cfg.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			logger.Info("arrival monitor received shutdown signal, stopping...")
			return
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil {
				logger.Errorf("arrival sweep failed: %v", err)
			}
		}
	}
}

// Sweep runs one pass over today's claimed assignments without a check-in.
// Sweeps are idempotent: every mutation is guarded by a conditional status
// write, so re-running over unchanged data is a no-op. If a previous sweep
// is still in flight the call returns immediately.
func (m *Monitor) Sweep(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		logger.Warn("arrival sweep skipped: previous sweep still running")
		return nil
	}
	defer m.running.Store(false)

	started := m.now()
	defer func() {
		observability.SweepDuration.Observe(time.Since(started).Seconds())
		observability.SweepsTotal.Inc()
	}()

	assignments := repos.NewAssignmentRepository(m.db)
	jobs := repos.NewJobRepository(m.db)

	due, err := assignments.DueForArrivalCheck(ctx, started)
	if err != nil {
		return err
	}

	for _, a := range due {
		job, err := jobs.GetByID(ctx, a.JobID)
		if err != nil {
			logger.Errorf("sweep: failed to load job %d: %v", a.JobID, err)
			continue
		}
		// The job may have moved on between the sweep read and now; check
		// current state and skip instead of erroring.
		if job.Status != models.JobStatusClaimed || job.CheckedInAt != nil {
			continue
		}

		deadline, err := m.arrivalDeadline(job)
		if err != nil {
			logger.Errorf("sweep: job %d has an invalid window: %v", job.ID, err)
			continue
		}

		now := m.now()
		switch {
		case now.Before(deadline) && deadline.Sub(now) <= m.cfg.WarnWindow:
			m.warn(ctx, &a, job, deadline.Sub(now))
		case now.Sub(deadline) >= m.cfg.RedistributeGrace:
			m.redistribute(ctx, &a, job)
		}
	}
	return nil
}

// arrivalDeadline is the window start plus the job's tolerance, or the
// platform default when the job carries none.
func (m *Monitor) arrivalDeadline(job *models.Job) (time.Time, error) {
	start, err := job.WindowStartTime()
	if err != nil {
		return time.Time{}, err
	}
	tolerance := m.cfg.ArrivalTolerance
	if job.ArrivalToleranceMin > 0 {
		tolerance = time.Duration(job.ArrivalToleranceMin) * time.Minute
	}
	return start.Add(tolerance), nil
}

func (m *Monitor) warn(ctx context.Context, a *models.Assignment, job *models.Job, left time.Duration) {
	if m.cfg.WarnOnce && a.LastWarnedAt != nil {
		return
	}

	minutesLeft := int(math.Ceil(left.Minutes()))
	if err := m.notifier.NotifyArrivalWarning(ctx, a.ProviderID, job.ID, minutesLeft); err != nil {
		logger.Errorf("arrival warning for assignment %d failed: %v", a.ID, err)
		return
	}
	if err := repos.NewAssignmentRepository(m.db).SetLastWarnedAt(ctx, a.ID, m.now()); err != nil {
		logger.Errorf("failed to record warning for assignment %d: %v", a.ID, err)
	}
	observability.ArrivalWarningsTotal.Inc()
}

// errStaleClaim marks a redistribution abandoned because the assignment row
// no longer matched the sweep's snapshot once the job write had been won.
var errStaleClaim = errors.New("assignment no longer claimed")

// redistribute drops the late provider and offers the job to the best
// remaining candidate. The CLAIMED→OFFERED job write is the idempotence
// gate and the stale-read guard in one: a check-in or a competing sweep
// committing after the sweep's read moves the job out of CLAIMED, so only
// the sweep that wins that write proceeds with penalty and re-dispatch.
func (m *Monitor) redistribute(ctx context.Context, a *models.Assignment, job *models.Job) {
	var won bool
	err := m.db.Transaction(func(tx *gorm.DB) error {
		assignments := repos.NewAssignmentRepository(tx)
		jobs := repos.NewJobRepository(tx)
		providers := repos.NewProviderRepository(tx)

		// Back into the awaiting pool so a replacement can claim it. Zero
		// rows means the job left CLAIMED since the sweep read it; the
		// provider is on site (or another sweep won) and nothing here may
		// run.
		ok, err := jobs.TryTransition(ctx, job.ID, models.JobStatusClaimed, models.JobStatusOffered)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		ok, err = assignments.TryTransition(ctx, a.ID, models.AssignmentStatusClaimed, models.AssignmentStatusExpired)
		if err != nil {
			return err
		}
		if !ok {
			// Roll the job write back rather than leave it OFFERED with the
			// assignment untouched.
			return errStaleClaim
		}
		won = true

		provider, err := providers.GetByID(ctx, a.ProviderID)
		if err != nil {
			return err
		}
		ApplyPunctualityPenalty(provider, m.cfg.PunctualityPenalty)
		return providers.Update(ctx, provider)
	})
	if errors.Is(err, errStaleClaim) {
		logger.Warnf("redistribution of job %d abandoned: %v", job.ID, err)
		return
	}
	if err != nil {
		logger.Errorf("redistribution of job %d failed: %v", job.ID, err)
		return
	}
	if !won {
		return
	}
	observability.RedistributionsTotal.Inc()
	logger.Warnf("provider %d dropped from job %d for lateness", a.ProviderID, job.ID)

	if _, err := m.dispatcher.Redistribute(ctx, job.ID); err != nil {
		if errors.Is(err, ErrNoCandidates) {
			// Dispatcher already flagged the job for manual intervention;
			// it is not auto-cancelled.
			logger.Warnf("no replacement candidate for job %d", job.ID)
		} else {
			logger.Errorf("replacement dispatch for job %d failed: %v", job.ID, err)
		}
	}

	if err := m.notifier.NotifyCustomerDelay(ctx, job.ID); err != nil {
		logger.Errorf("customer delay notification for job %d failed: %v", job.ID, err)
	}
}
