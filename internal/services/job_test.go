package services

import (
	"time"

	"github.com/sweeply/sweeply/internal/db/models"
	"github.com/sweeply/sweeply/internal/matching"
)

func (s *ServiceTestSuite) TestCreateDispatchesImmediately() {
	s.registerProvider()
	customer := s.createCustomer()

	job, err := s.jobs.Create(s.ctx, &CreateJobRequest{
		CustomerID:    customer.ID,
		ServiceType:   "deep-clean",
		ScheduledDate: "2026-03-14",
		WindowStart:   "10:00",
		WindowEnd:     "12:00",
		Lat:           40.730,
		Lon:           -73.990,
		PriceCents:    14900,
	})
	s.Require().NoError(err)
	s.Equal(models.JobStatusOffered, job.Status)

	pending, err := s.assignmentRepo.PendingByJob(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Len(pending, 1)
}

func (s *ServiceTestSuite) TestCreateWithoutCandidatesFlagsForReview() {
	customer := s.createCustomer()

	job, err := s.jobs.Create(s.ctx, &CreateJobRequest{
		CustomerID:    customer.ID,
		ServiceType:   "standard-clean",
		ScheduledDate: "2026-03-14",
		WindowStart:   "10:00",
		WindowEnd:     "12:00",
		Lat:           40.730,
		Lon:           -73.990,
	})
	s.Require().ErrorIs(err, matching.ErrNoCandidates)
	s.Require().NotNil(job, "the booking itself is kept")
	s.True(job.NeedsAttention)

	queue, err := s.jobs.ListNeedingAttention(s.ctx, nil)
	s.Require().NoError(err)
	s.Len(queue, 1)
}

func (s *ServiceTestSuite) TestCreateUnknownCustomer() {
	_, err := s.jobs.Create(s.ctx, &CreateJobRequest{
		CustomerID:    9999,
		ServiceType:   "standard-clean",
		ScheduledDate: "2026-03-14",
		WindowStart:   "10:00",
		WindowEnd:     "12:00",
	})
	s.Require().ErrorIs(err, matching.ErrNotFound)
}

func (s *ServiceTestSuite) TestCreateRejectsBadDate() {
	customer := s.createCustomer()
	_, err := s.jobs.Create(s.ctx, &CreateJobRequest{
		CustomerID:    customer.ID,
		ServiceType:   "standard-clean",
		ScheduledDate: "14-03-2026",
		WindowStart:   "10:00",
		WindowEnd:     "12:00",
	})
	s.Require().Error(err)
}

func (s *ServiceTestSuite) TestCheckInOnTime() {
	provider := s.registerProvider()
	job := s.bookedJob(provider)

	// Window starts at 10:00; 10:15 is inside the default tolerance.
	s.jobs.now = at(10, 15)
	updated, err := s.jobs.CheckIn(s.ctx, job.ID, provider.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusInProgress, updated.Status)

	reloaded, err := s.jobRepo.GetByID(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Require().NotNil(reloaded.CheckedInAt)
	s.WithinDuration(at(10, 15)(), *reloaded.CheckedInAt, time.Second)

	p, err := s.providerRepo.GetByID(s.ctx, provider.ID)
	s.Require().NoError(err)
	s.Equal(1, p.OnTimeArrivals)
	s.Zero(p.LateArrivals)
	s.InDelta(1.0, p.PunctualityRate, 1e-9)
}

func (s *ServiceTestSuite) TestCheckInLate() {
	provider := s.registerProvider()
	job := s.bookedJob(provider)

	// 10:45 is past the 10:30 deadline: arrival counts, but as late.
	s.jobs.now = at(10, 45)
	_, err := s.jobs.CheckIn(s.ctx, job.ID, provider.ID)
	s.Require().NoError(err)

	p, err := s.providerRepo.GetByID(s.ctx, provider.ID)
	s.Require().NoError(err)
	s.Equal(1, p.LateArrivals)
	s.Zero(p.OnTimeArrivals)
	s.InDelta(0.0, p.PunctualityRate, 1e-9)
}

func (s *ServiceTestSuite) TestCheckInWrongProvider() {
	provider := s.registerProvider()
	intruder := s.registerProvider()
	job := s.bookedJob(provider)

	s.jobs.now = at(10, 0)
	_, err := s.jobs.CheckIn(s.ctx, job.ID, intruder.ID)
	s.Require().ErrorIs(err, matching.ErrNotFound)
}

func (s *ServiceTestSuite) TestCheckInTwiceConflicts() {
	provider := s.registerProvider()
	job := s.bookedJob(provider)

	s.jobs.now = at(10, 0)
	_, err := s.jobs.CheckIn(s.ctx, job.ID, provider.ID)
	s.Require().NoError(err)

	_, err = s.jobs.CheckIn(s.ctx, job.ID, provider.ID)
	s.Require().ErrorIs(err, matching.ErrConflict)
}

func (s *ServiceTestSuite) TestCheckOutCompletes() {
	provider := s.registerProvider()
	job := s.bookedJob(provider)

	s.jobs.now = at(10, 0)
	_, err := s.jobs.CheckIn(s.ctx, job.ID, provider.ID)
	s.Require().NoError(err)

	s.jobs.now = at(12, 5)
	updated, err := s.jobs.CheckOut(s.ctx, job.ID, provider.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusCompleted, updated.Status)

	reloaded, err := s.jobRepo.GetByID(s.ctx, job.ID)
	s.Require().NoError(err)
	s.NotNil(reloaded.CheckedOutAt)

	p, err := s.providerRepo.GetByID(s.ctx, provider.ID)
	s.Require().NoError(err)
	s.Equal(1, p.JobsCompleted)
	s.Greater(p.QualityScore, 0.5)
}

func (s *ServiceTestSuite) TestCheckOutBeforeCheckIn() {
	provider := s.registerProvider()
	job := s.bookedJob(provider)

	s.jobs.now = at(10, 0)
	_, err := s.jobs.CheckOut(s.ctx, job.ID, provider.ID)
	s.Require().ErrorIs(err, matching.ErrConflict)
}

func (s *ServiceTestSuite) TestCancelWithdrawsLiveOffers() {
	provider := s.registerProvider()
	job := s.bookedJob(provider)

	cancelled, err := s.jobs.Cancel(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusCancelled, cancelled.Status)

	all, err := s.assignmentRepo.ListByJob(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal(models.AssignmentStatusCancelled, all[0].Status)

	_, err = s.jobs.Cancel(s.ctx, job.ID)
	s.Require().ErrorIs(err, matching.ErrConflict, "terminal jobs cannot be cancelled again")
}

func (s *ServiceTestSuite) TestRateCompletedJob() {
	provider := s.registerProvider()
	job := s.bookedJob(provider)

	s.jobs.now = at(10, 0)
	_, err := s.jobs.CheckIn(s.ctx, job.ID, provider.ID)
	s.Require().NoError(err)
	_, err = s.jobs.CheckOut(s.ctx, job.ID, provider.ID)
	s.Require().NoError(err)

	rated, err := s.jobs.Rate(s.ctx, job.ID, 4)
	s.Require().NoError(err)
	s.Equal(provider.ID, rated.ID)
	s.InDelta(4.0, rated.Rating, 1e-9)
	s.Equal(1, rated.RatingCount)
}

func (s *ServiceTestSuite) TestRateRequiresCompletion() {
	provider := s.registerProvider()
	job := s.bookedJob(provider)

	_, err := s.jobs.Rate(s.ctx, job.ID, 5)
	s.Require().ErrorIs(err, matching.ErrConflict)

	_, err = s.jobs.Rate(s.ctx, job.ID, 7)
	s.Require().Error(err, "out-of-range ratings are rejected outright")
}
