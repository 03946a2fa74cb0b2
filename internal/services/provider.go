package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sweeply/sweeply/internal/db/models"
	"github.com/sweeply/sweeply/internal/db/repos"
	"github.com/sweeply/sweeply/internal/geo"
	"github.com/sweeply/sweeply/internal/matching"
)

// RegisterProviderRequest carries the fields for provider onboarding.
type RegisterProviderRequest struct {
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	ServiceRadiusKm float64 `json:"service_radius_km"`
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
}

// Provider provides business logic for provider operations. Registration
// and location updates keep the geo index in step with the database;
// deactivation removes the provider from it so no further offers arrive.
type Provider struct {
	providers   *repos.ProviderRepository
	assignments *repos.AssignmentRepository
	index       geo.Index
	now         func() time.Time
}

// NewProviderService creates a new provider service instance.
func NewProviderService(db *gorm.DB, index geo.Index) *Provider {
	return &Provider{
		providers:   repos.NewProviderRepository(db),
		assignments: repos.NewAssignmentRepository(db),
		index:       index,
		now:         time.Now,
	}
}

// Register creates a provider and places them in the candidate pool.
// Unverified providers sit in the pool but receive no offers until
// verification.
func (s *Provider) Register(ctx context.Context, req *RegisterProviderRequest) (*models.Provider, error) {
	p := &models.Provider{
		Name:            req.Name,
		Email:           req.Email,
		Active:          true,
		PunctualityRate: 1,
		QualityScore:    0.5,
		ServiceRadiusKm: req.ServiceRadiusKm,
		Lat:             req.Lat,
		Lon:             req.Lon,
	}
	if err := s.providers.Create(ctx, p); err != nil {
		return nil, err
	}
	if err := s.index.Upsert(ctx, p.ID, p.Lat, p.Lon); err != nil {
		return nil, fmt.Errorf("provider %d created but not indexed: %w", p.ID, err)
	}
	return p, nil
}

// Get retrieves a provider by id.
func (s *Provider) Get(ctx context.Context, providerID uint) (*models.Provider, error) {
	p, err := s.providers.GetByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: provider %d", matching.ErrNotFound, providerID)
		}
		return nil, err
	}
	return p, nil
}

// List returns a page of providers, optionally only those currently able to
// receive offers.
func (s *Provider) List(ctx context.Context, eligibleOnly bool, opts *models.ListOptions) ([]models.Provider, error) {
	return s.providers.List(ctx, eligibleOnly, opts)
}

// Verify marks a provider as verified, making them eligible for offers.
func (s *Provider) Verify(ctx context.Context, providerID uint) (*models.Provider, error) {
	p, err := s.Get(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if p.Verified {
		return p, nil
	}
	p.Verified = true
	if err := s.providers.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateLocation moves the provider's home base and re-indexes them.
func (s *Provider) UpdateLocation(ctx context.Context, providerID uint, lat, lon float64) error {
	p, err := s.Get(ctx, providerID)
	if err != nil {
		return err
	}
	p.Lat, p.Lon = lat, lon
	if err := s.providers.Update(ctx, p); err != nil {
		return err
	}
	return s.index.Upsert(ctx, p.ID, lat, lon)
}

// Deactivate takes a provider out of rotation. Existing claimed work is
// untouched; they simply stop appearing in candidate pools.
func (s *Provider) Deactivate(ctx context.Context, providerID uint) error {
	if _, err := s.Get(ctx, providerID); err != nil {
		return err
	}
	if err := s.providers.Deactivate(ctx, providerID); err != nil {
		return err
	}
	return s.index.Remove(ctx, providerID)
}

// Offers returns the provider's currently claimable offers.
func (s *Provider) Offers(ctx context.Context, providerID uint) ([]models.Assignment, error) {
	if _, err := s.Get(ctx, providerID); err != nil {
		return nil, err
	}
	return s.assignments.PendingForProvider(ctx, providerID, s.now())
}
