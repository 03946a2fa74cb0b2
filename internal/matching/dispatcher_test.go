package matching

import (
	"sync"

	"github.com/sweeply/sweeply/internal/db/models"
)

func (s *EngineTestSuite) TestDispatchOffersTopCandidates() {
	job := s.createJob("10:00", "12:00")

	// Four eligible providers separated by rating; only the best three get
	// an offer.
	best := s.createProvider(5.0, 0.9, 1.0)
	second := s.createProvider(4.5, 0.9, 1.0)
	third := s.createProvider(4.0, 0.9, 1.0)
	s.createProvider(2.0, 0.9, 1.0)

	d := s.newDispatcher(DispatchConfig{})
	created, err := d.Dispatch(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Require().Len(created, 3)

	s.Equal(best.ID, created[0].ProviderID)
	s.Equal(second.ID, created[1].ProviderID)
	s.Equal(third.ID, created[2].ProviderID)
	for _, a := range created {
		s.Equal(models.AssignmentStatusPending, a.Status)
		s.NotEmpty(a.Token)
		s.Equal(clockAt(9, 0)().Add(DefaultOfferTTL), a.ExpiresAt.UTC())
	}

	updated, err := s.jobs.GetByID(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusOffered, updated.Status)

	s.Len(s.notifier.offers, 3)

	// Offer counters moved for everyone who received one.
	p, err := s.providers.GetByID(s.ctx, best.ID)
	s.Require().NoError(err)
	s.Equal(1, p.OffersReceived)
}

func (s *EngineTestSuite) TestDispatchIsIdempotent() {
	job := s.createJob("10:00", "12:00")
	s.createProvider(5.0, 0.9, 1.0)
	s.createProvider(4.0, 0.9, 1.0)

	d := s.newDispatcher(DispatchConfig{})
	first, err := d.Dispatch(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Require().Len(first, 2)

	// Every candidate already holds a live offer, so the second dispatch
	// creates nothing.
	second, err := d.Dispatch(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Empty(second)

	all, err := s.assignments.ListByJob(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *EngineTestSuite) TestDispatchNoCandidatesFlagsJob() {
	job := s.createJob("10:00", "12:00")

	d := s.newDispatcher(DispatchConfig{})
	_, err := d.Dispatch(s.ctx, job.ID)
	s.Require().ErrorIs(err, ErrNoCandidates)

	updated, err := s.jobs.GetByID(s.ctx, job.ID)
	s.Require().NoError(err)
	s.True(updated.NeedsAttention)
	s.Equal(models.JobStatusCreated, updated.Status, "unmatchable jobs stay in the queue, not cancelled")

	s.Equal([]uint{job.ID}, s.notifier.manual)
}

func (s *EngineTestSuite) TestDispatchExcludesOverlappingCommitment() {
	// The provider already holds a claimed 14:00-16:00 booking.
	busy := s.createProvider(5.0, 1.0, 1.0)
	other := s.createProvider(3.0, 0.5, 0.8)
	existing := s.createJob("14:00", "16:00")
	s.claimFor(existing, busy)

	// A 15:00-17:00 job overlaps, so the better-rated provider must be
	// passed over.
	overlapping := s.createJob("15:00", "17:00")
	d := s.newDispatcher(DispatchConfig{})
	created, err := d.Dispatch(s.ctx, overlapping.ID)
	s.Require().NoError(err)
	s.Require().Len(created, 1)
	s.Equal(other.ID, created[0].ProviderID)
}

func (s *EngineTestSuite) TestDispatchAllowsBackToBackWindows() {
	busy := s.createProvider(5.0, 1.0, 1.0)
	existing := s.createJob("14:00", "16:00")
	s.claimFor(existing, busy)

	// 16:00-18:00 touches the previous booking but does not overlap.
	adjacent := s.createJob("16:00", "18:00")
	d := s.newDispatcher(DispatchConfig{})
	created, err := d.Dispatch(s.ctx, adjacent.ID)
	s.Require().NoError(err)
	s.Require().Len(created, 1)
	s.Equal(busy.ID, created[0].ProviderID)
}

func (s *EngineTestSuite) TestDispatchSkipsIneligibleAndDistantProviders() {
	job := s.createJob("10:00", "12:00")

	unverified := s.createProvider(5.0, 1.0, 1.0)
	unverified.Verified = false
	s.Require().NoError(s.providers.Update(s.ctx, unverified))

	inactive := s.createProvider(5.0, 1.0, 1.0)
	inactive.Active = false
	s.Require().NoError(s.providers.Update(s.ctx, inactive))

	// Roughly 22 km north of the job, past the 10 km service radius but
	// inside the search radius.
	s.createProviderAt(5.0, 1.0, 1.0, 40.930, -73.990)

	eligible := s.createProvider(3.0, 0.5, 0.5)

	d := s.newDispatcher(DispatchConfig{})
	created, err := d.Dispatch(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Require().Len(created, 1)
	s.Equal(eligible.ID, created[0].ProviderID)
}

func (s *EngineTestSuite) TestDispatchRejectsJobNotAwaitingAssignment() {
	provider := s.createProvider(5.0, 1.0, 1.0)
	job := s.createJob("10:00", "12:00")
	s.claimFor(job, provider)

	d := s.newDispatcher(DispatchConfig{})
	_, err := d.Dispatch(s.ctx, job.ID)
	s.Require().ErrorIs(err, ErrConflict)
}

func (s *EngineTestSuite) TestDispatchUnknownJob() {
	d := s.newDispatcher(DispatchConfig{})
	_, err := d.Dispatch(s.ctx, 9999)
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *EngineTestSuite) TestConcurrentDispatchesDoNotDuplicateOffers() {
	job := s.createJob("10:00", "12:00")
	s.createProvider(5.0, 0.9, 1.0)
	s.createProvider(4.5, 0.9, 1.0)

	// An operator redispatch racing the automatic one must not hand any
	// provider a second live offer for the same job.
	d := s.newDispatcher(DispatchConfig{})
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.Dispatch(s.ctx, job.ID)
		}()
	}
	wg.Wait()

	all, err := s.assignments.ListByJob(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	seen := make(map[uint]bool, len(all))
	for _, a := range all {
		s.False(seen[a.ProviderID], "provider %d received two offers", a.ProviderID)
		seen[a.ProviderID] = true
	}

	updatedJob, err := s.jobs.GetByID(s.ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(models.JobStatusOffered, updatedJob.Status)
}
