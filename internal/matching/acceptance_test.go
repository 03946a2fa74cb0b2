package matching

import (
	"errors"
	"sync"
	"time"

	"github.com/sweeply/sweeply/internal/db/models"
)

func (s *EngineTestSuite) TestClaimWinsAndCancelsSiblings() {
	job := s.createJob("10:00", "12:00")
	s.createProvider(5.0, 0.9, 1.0)
	winner := s.createProvider(4.5, 0.9, 1.0)
	s.createProvider(4.0, 0.9, 1.0)

	d := s.newDispatcher(DispatchConfig{})
	created, err := d.Dispatch(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Require().Len(created, 3)

	var offer *models.Assignment
	for i := range created {
		if created[i].ProviderID == winner.ID {
			offer = &created[i]
		}
	}
	s.Require().NotNil(offer)

	c := s.newCoordinator(clockAt(9, 5))
	claimed, err := c.Claim(s.ctx, offer.ID, winner.ID)
	s.Require().NoError(err)
	s.Equal(models.AssignmentStatusClaimed, claimed.Status)

	updatedJob, err := s.jobs.GetByID(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusClaimed, updatedJob.Status)

	all, err := s.assignments.ListByJob(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	for _, a := range all {
		if a.ID == offer.ID {
			s.Equal(models.AssignmentStatusClaimed, a.Status)
		} else {
			s.Equal(models.AssignmentStatusCancelled, a.Status)
		}
	}

	count, err := s.assignments.CountClaimedByJob(s.ctx, job.ID)
	s.Require().NoError(err)
	s.EqualValues(1, count)

	p, err := s.providers.GetByID(s.ctx, winner.ID)
	s.Require().NoError(err)
	s.Equal(1, p.OffersAccepted)
	s.InDelta(1.0, p.AcceptanceRate, 1e-9)
}

func (s *EngineTestSuite) TestSecondClaimLosesRace() {
	job := s.createJob("10:00", "12:00")
	first := s.createProvider(5.0, 0.9, 1.0)
	second := s.createProvider(4.5, 0.9, 1.0)

	d := s.newDispatcher(DispatchConfig{})
	created, err := d.Dispatch(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Require().Len(created, 2)

	byProvider := map[uint]models.Assignment{}
	for _, a := range created {
		byProvider[a.ProviderID] = a
	}

	c := s.newCoordinator(clockAt(9, 5))
	_, err = c.Claim(s.ctx, byProvider[first.ID].ID, first.ID)
	s.Require().NoError(err)

	// The loser's offer was cancelled by the winner's commit; the claim
	// must fail and never be retried into a second claimed assignment.
	_, err = c.Claim(s.ctx, byProvider[second.ID].ID, second.ID)
	s.Require().ErrorIs(err, ErrConflict)

	count, err := s.assignments.CountClaimedByJob(s.ctx, job.ID)
	s.Require().NoError(err)
	s.EqualValues(1, count)
}

func (s *EngineTestSuite) TestClaimExpiredOfferRejected() {
	job := s.createJob("10:00", "12:00")
	provider := s.createProvider(4.0, 0.9, 1.0)

	a := &models.Assignment{
		JobID:      job.ID,
		ProviderID: provider.ID,
		Status:     models.AssignmentStatusPending,
		ExpiresAt:  time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
	}
	s.Require().NoError(s.assignments.Create(s.ctx, a))

	c := s.newCoordinator(clockAt(9, 0))
	_, err := c.Claim(s.ctx, a.ID, provider.ID)
	s.Require().ErrorIs(err, ErrConflict)

	// Expiry is enforced on read; the row itself is untouched.
	reloaded, err := s.assignments.GetByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(models.AssignmentStatusPending, reloaded.Status)
}

func (s *EngineTestSuite) TestClaimSomeoneElsesOffer() {
	job := s.createJob("10:00", "12:00")
	owner := s.createProvider(4.0, 0.9, 1.0)
	intruder := s.createProvider(4.0, 0.9, 1.0)

	a := &models.Assignment{
		JobID:      job.ID,
		ProviderID: owner.ID,
		Status:     models.AssignmentStatusPending,
		ExpiresAt:  time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC),
	}
	s.Require().NoError(s.assignments.Create(s.ctx, a))

	c := s.newCoordinator(clockAt(9, 0))
	_, err := c.Claim(s.ctx, a.ID, intruder.ID)
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *EngineTestSuite) TestClaimReRunsConflictCheck() {
	provider := s.createProvider(4.0, 0.9, 1.0)

	booked := s.createJob("10:00", "12:00")
	s.claimFor(booked, provider)

	// An offer created before the provider picked up the overlapping
	// booking is no longer claimable.
	overlapping := s.createJob("11:00", "13:00")
	a := &models.Assignment{
		JobID:      overlapping.ID,
		ProviderID: provider.ID,
		Status:     models.AssignmentStatusPending,
		ExpiresAt:  time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC),
	}
	s.Require().NoError(s.assignments.Create(s.ctx, a))

	c := s.newCoordinator(clockAt(9, 30))
	_, err := c.Claim(s.ctx, a.ID, provider.ID)
	s.Require().ErrorIs(err, ErrConflict)

	reloadedJob, err := s.jobs.GetByID(s.ctx, overlapping.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusCreated, reloadedJob.Status)
}

func (s *EngineTestSuite) TestClaimJobResolvesPendingOffer() {
	job := s.createJob("10:00", "12:00")
	provider := s.createProvider(4.0, 0.9, 1.0)

	d := s.newDispatcher(DispatchConfig{})
	created, err := d.Dispatch(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Require().Len(created, 1)

	c := s.newCoordinator(clockAt(9, 5))
	claimed, err := c.ClaimJob(s.ctx, job.ID, provider.ID)
	s.Require().NoError(err)
	s.Equal(created[0].ID, claimed.ID)

	_, err = c.ClaimJob(s.ctx, job.ID, provider.ID)
	s.Require().ErrorIs(err, ErrNotFound, "no pending offer remains once claimed")
}

func (s *EngineTestSuite) TestRejectOffer() {
	job := s.createJob("10:00", "12:00")
	provider := s.createProvider(4.0, 0.9, 1.0)

	d := s.newDispatcher(DispatchConfig{})
	created, err := d.Dispatch(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Require().Len(created, 1)

	c := s.newCoordinator(clockAt(9, 5))
	s.Require().NoError(c.Reject(s.ctx, created[0].ID, provider.ID))

	reloaded, err := s.assignments.GetByID(s.ctx, created[0].ID)
	s.Require().NoError(err)
	s.Equal(models.AssignmentStatusRejected, reloaded.Status)

	s.Require().ErrorIs(c.Reject(s.ctx, created[0].ID, provider.ID), ErrConflict)

	other := s.createProvider(4.0, 0.9, 1.0)
	s.Require().ErrorIs(c.Reject(s.ctx, created[0].ID, other.ID), ErrNotFound)
}

func (s *EngineTestSuite) TestConcurrentClaimsExactlyOneWinner() {
	job := s.createJob("10:00", "12:00")
	first := s.createProvider(5.0, 0.9, 1.0)
	second := s.createProvider(4.5, 0.9, 1.0)

	d := s.newDispatcher(DispatchConfig{})
	created, err := d.Dispatch(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Require().Len(created, 2)

	offerFor := make(map[uint]uint, len(created))
	for _, a := range created {
		offerFor[a.ProviderID] = a.ID
	}

	c := s.newCoordinator(clockAt(9, 5))
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, p := range []*models.Provider{first, second} {
		wg.Add(1)
		go func(i int, providerID, assignmentID uint) {
			defer wg.Done()
			_, errs[i] = c.Claim(s.ctx, assignmentID, providerID)
		}(i, p.ID, offerFor[p.ID])
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			s.Require().NoError(err)
		}
	}
	s.Equal(1, wins)
	s.Equal(1, conflicts)

	count, err := s.assignments.CountClaimedByJob(s.ctx, job.ID)
	s.Require().NoError(err)
	s.EqualValues(1, count)

	updatedJob, err := s.jobs.GetByID(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusClaimed, updatedJob.Status)
}
