package matching

import (
	"time"

	"github.com/sweeply/sweeply/internal/db/models"
)

// lateSetup dispatches a job to two providers and has the first claim it,
// leaving the second with a cancelled sibling offer. The job window is
// 10:00-12:00, so with default tolerance and grace the provider is
// droppable from 11:00 on.
func (s *EngineTestSuite) lateSetup() (job *models.Job, late, backup *models.Provider, claimed models.Assignment) {
	job = s.createJob("10:00", "12:00")
	late = s.createProvider(5.0, 1.0, 1.0)
	backup = s.createProvider(4.0, 0.9, 0.8)

	d := s.newDispatcher(DispatchConfig{})
	created, err := d.Dispatch(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Require().Len(created, 2)

	var offer models.Assignment
	for _, a := range created {
		if a.ProviderID == late.ID {
			offer = a
		}
	}
	c := s.newCoordinator(clockAt(9, 5))
	got, err := c.Claim(s.ctx, offer.ID, late.ID)
	s.Require().NoError(err)
	return job, late, backup, *got
}

func (s *EngineTestSuite) TestSweepRedistributesLateProvider() {
	job, late, backup, claimed := s.lateSetup()

	d := s.newDispatcher(DispatchConfig{})
	d.now = clockAt(11, 30)
	m := s.newMonitor(d, MonitorConfig{}, clockAt(11, 30))
	s.Require().NoError(m.Sweep(s.ctx))

	// The late provider's assignment is expired and their punctuality hit.
	reloaded, err := s.assignments.GetByID(s.ctx, claimed.ID)
	s.Require().NoError(err)
	s.Equal(models.AssignmentStatusExpired, reloaded.Status)

	p, err := s.providers.GetByID(s.ctx, late.ID)
	s.Require().NoError(err)
	s.Equal(1, p.LateArrivals)
	s.InDelta(0.95, p.PunctualityRate, 1e-9)

	// The job is back in the awaiting pool with exactly one replacement
	// offer, addressed to the provider whose original offer was withdrawn
	// when the late provider claimed.
	updatedJob, err := s.jobs.GetByID(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusOffered, updatedJob.Status)

	pending, err := s.assignments.PendingByJob(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(backup.ID, pending[0].ProviderID)
	s.WithinDuration(clockAt(11, 30)().Add(DefaultRedispatchTTL), pending[0].ExpiresAt, time.Second)

	s.Equal([]uint{job.ID}, s.notifier.delays)
	s.Require().Len(s.notifier.reassigned, 1)
	s.Equal(backup.ID, s.notifier.reassigned[0].providerID)
}

func (s *EngineTestSuite) TestSweepIsIdempotent() {
	job, _, _, _ := s.lateSetup()

	d := s.newDispatcher(DispatchConfig{})
	d.now = clockAt(11, 30)
	m := s.newMonitor(d, MonitorConfig{}, clockAt(11, 30))
	s.Require().NoError(m.Sweep(s.ctx))
	s.Require().NoError(m.Sweep(s.ctx))

	pending, err := s.assignments.PendingByJob(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Len(pending, 1, "a second sweep over unchanged data creates nothing")
	s.Len(s.notifier.delays, 1)
}

func (s *EngineTestSuite) TestSweepWithinGraceDoesNothing() {
	job, _, _, claimed := s.lateSetup()

	// 10:45 is past the 10:30 deadline but inside the 30 minute grace.
	d := s.newDispatcher(DispatchConfig{})
	m := s.newMonitor(d, MonitorConfig{}, clockAt(10, 45))
	s.Require().NoError(m.Sweep(s.ctx))

	reloaded, err := s.assignments.GetByID(s.ctx, claimed.ID)
	s.Require().NoError(err)
	s.Equal(models.AssignmentStatusClaimed, reloaded.Status)

	updatedJob, err := s.jobs.GetByID(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusClaimed, updatedJob.Status)
	s.Empty(s.notifier.delays)
	s.Empty(s.notifier.warnings)
}

func (s *EngineTestSuite) TestSweepWarnsNearDeadline() {
	job, late, _, claimed := s.lateSetup()

	// 10:20, ten minutes before the 10:30 deadline.
	d := s.newDispatcher(DispatchConfig{})
	m := s.newMonitor(d, MonitorConfig{}, clockAt(10, 20))
	s.Require().NoError(m.Sweep(s.ctx))

	s.Require().Len(s.notifier.warnings, 1)
	s.Equal(late.ID, s.notifier.warnings[0].providerID)
	s.Equal(job.ID, s.notifier.warnings[0].jobID)
	s.Equal(10, s.notifier.warnings[0].minutesLeft)

	reloaded, err := s.assignments.GetByID(s.ctx, claimed.ID)
	s.Require().NoError(err)
	s.NotNil(reloaded.LastWarnedAt)

	// By default the warning re-fires every sweep inside the window.
	s.Require().NoError(m.Sweep(s.ctx))
	s.Len(s.notifier.warnings, 2)
}

func (s *EngineTestSuite) TestSweepWarnOnceSuppressesRepeats() {
	s.lateSetup()

	d := s.newDispatcher(DispatchConfig{})
	m := s.newMonitor(d, MonitorConfig{WarnOnce: true}, clockAt(10, 20))
	s.Require().NoError(m.Sweep(s.ctx))
	s.Require().NoError(m.Sweep(s.ctx))

	s.Len(s.notifier.warnings, 1)
}

func (s *EngineTestSuite) TestSweepSkipsWellBeforeWindow() {
	s.lateSetup()

	d := s.newDispatcher(DispatchConfig{})
	m := s.newMonitor(d, MonitorConfig{}, clockAt(9, 30))
	s.Require().NoError(m.Sweep(s.ctx))

	s.Empty(s.notifier.warnings)
	s.Empty(s.notifier.delays)
}

func (s *EngineTestSuite) TestSweepIgnoresCheckedInProviders() {
	job, _, _, claimed := s.lateSetup()

	// A provider who checked in is never warned or dropped, however late
	// the sweep runs.
	checkedIn := clockAt(10, 10)()
	s.Require().NoError(s.db.Model(&models.Job{}).
		Where("id = ?", job.ID).
		Update("checked_in_at", checkedIn).Error)

	d := s.newDispatcher(DispatchConfig{})
	m := s.newMonitor(d, MonitorConfig{}, clockAt(11, 30))
	s.Require().NoError(m.Sweep(s.ctx))

	reloaded, err := s.assignments.GetByID(s.ctx, claimed.ID)
	s.Require().NoError(err)
	s.Equal(models.AssignmentStatusClaimed, reloaded.Status)
	s.Empty(s.notifier.delays)
}

func (s *EngineTestSuite) TestSweepRedistributionExhaustedFlagsJob() {
	job := s.createJob("10:00", "12:00")
	only := s.createProvider(5.0, 1.0, 1.0)

	d := s.newDispatcher(DispatchConfig{})
	created, err := d.Dispatch(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Require().Len(created, 1)

	c := s.newCoordinator(clockAt(9, 5))
	_, err = c.Claim(s.ctx, created[0].ID, only.ID)
	s.Require().NoError(err)

	// The only provider is dropped for lateness and nobody is left: the
	// job is flagged for manual intervention, not cancelled.
	m := s.newMonitor(d, MonitorConfig{}, clockAt(11, 30))
	s.Require().NoError(m.Sweep(s.ctx))

	updatedJob, err := s.jobs.GetByID(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusOffered, updatedJob.Status)
	s.True(updatedJob.NeedsAttention)
	s.Equal([]uint{job.ID}, s.notifier.manual)
	s.Equal([]uint{job.ID}, s.notifier.delays)
}

func (s *EngineTestSuite) TestRedistributeAbortsWhenCheckInBeatsIt() {
	job, late, _, claimed := s.lateSetup()

	// The provider checks in after the sweep loaded its snapshot but
	// before the redistribution writes. The stale snapshot still says
	// CLAIMED with no check-in.
	staleJob := *job
	staleAssignment := claimed
	ok, err := s.jobs.TryTransitionWith(s.ctx, job.ID, models.JobStatusClaimed, models.JobStatusInProgress,
		map[string]interface{}{"checked_in_at": clockAt(11, 29)()})
	s.Require().NoError(err)
	s.Require().True(ok)

	d := s.newDispatcher(DispatchConfig{})
	d.now = clockAt(11, 30)
	m := s.newMonitor(d, MonitorConfig{}, clockAt(11, 30))
	m.redistribute(s.ctx, &staleAssignment, &staleJob)

	// The on-site provider keeps their claim and takes no penalty.
	reloaded, err := s.assignments.GetByID(s.ctx, claimed.ID)
	s.Require().NoError(err)
	s.Equal(models.AssignmentStatusClaimed, reloaded.Status)

	p, err := s.providers.GetByID(s.ctx, late.ID)
	s.Require().NoError(err)
	s.Equal(0, p.LateArrivals)
	s.InDelta(1.0, p.PunctualityRate, 1e-9)

	updatedJob, err := s.jobs.GetByID(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusInProgress, updatedJob.Status)

	pending, err := s.assignments.PendingByJob(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Empty(pending)
	s.Empty(s.notifier.delays)
	s.Empty(s.notifier.reassigned)
}
