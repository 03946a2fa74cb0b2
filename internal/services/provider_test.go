package services

import (
	"github.com/sweeply/sweeply/internal/matching"
)

func (s *ServiceTestSuite) TestRegisterIndexesProvider() {
	p := s.registerProvider()

	near, err := s.pool.Nearby(s.ctx, 40.730, -73.990, 5, 10)
	s.Require().NoError(err)
	s.Require().Len(near, 1)
	s.Equal(p.ID, near[0].ProviderID)
}

func (s *ServiceTestSuite) TestRegisterStartsUnverified() {
	s.seq++
	p, err := s.providers.Register(s.ctx, &RegisterProviderRequest{
		Name:            "new-provider",
		Email:           "new-provider@example.com",
		ServiceRadiusKm: 10,
		Lat:             40.730,
		Lon:             -73.990,
	})
	s.Require().NoError(err)
	s.False(p.Verified)
	s.False(p.Eligible())

	verified, err := s.providers.Verify(s.ctx, p.ID)
	s.Require().NoError(err)
	s.True(verified.Eligible())
}

func (s *ServiceTestSuite) TestDeactivateRemovesFromPool() {
	p := s.registerProvider()
	s.Require().NoError(s.providers.Deactivate(s.ctx, p.ID))

	near, err := s.pool.Nearby(s.ctx, 40.730, -73.990, 5, 10)
	s.Require().NoError(err)
	s.Empty(near)

	reloaded, err := s.providers.Get(s.ctx, p.ID)
	s.Require().NoError(err)
	s.False(reloaded.Active)
}

func (s *ServiceTestSuite) TestUpdateLocationReindexes() {
	p := s.registerProvider()
	s.Require().NoError(s.providers.UpdateLocation(s.ctx, p.ID, 41.0, -74.2))

	near, err := s.pool.Nearby(s.ctx, 40.730, -73.990, 5, 10)
	s.Require().NoError(err)
	s.Empty(near, "provider moved out of the search area")

	near, err = s.pool.Nearby(s.ctx, 41.0, -74.2, 5, 10)
	s.Require().NoError(err)
	s.Len(near, 1)
}

func (s *ServiceTestSuite) TestOffersListsClaimable() {
	provider := s.registerProvider()
	customer := s.createCustomer()

	_, err := s.jobs.Create(s.ctx, &CreateJobRequest{
		CustomerID:    customer.ID,
		ServiceType:   "standard-clean",
		ScheduledDate: "2026-03-14",
		WindowStart:   "10:00",
		WindowEnd:     "12:00",
		Lat:           40.730,
		Lon:           -73.990,
	})
	s.Require().NoError(err)

	offers, err := s.providers.Offers(s.ctx, provider.ID)
	s.Require().NoError(err)
	s.Len(offers, 1)
}

func (s *ServiceTestSuite) TestGetUnknownProvider() {
	_, err := s.providers.Get(s.ctx, 9999)
	s.Require().ErrorIs(err, matching.ErrNotFound)
}
