package repos

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sweeply/sweeply/internal/db/models"
)

// ProviderRepository provides access to provider-related database operations
type ProviderRepository struct {
	db *gorm.DB
}

// NewProviderRepository creates a new provider repository instance
func NewProviderRepository(db *gorm.DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

// Create creates a new provider in the database
func (r *ProviderRepository) Create(ctx context.Context, p *models.Provider) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// Update saves all fields of an existing provider
func (r *ProviderRepository) Update(ctx context.Context, p *models.Provider) error {
	return r.db.WithContext(ctx).Save(p).Error
}

// GetByID retrieves a provider by its ID
func (r *ProviderRepository) GetByID(ctx context.Context, id uint) (*models.Provider, error) {
	var p models.Provider
	err := r.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("provider %d not found: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return &p, nil
}

// GetByIDs retrieves the providers with the given IDs. Missing IDs are
// silently absent from the result.
func (r *ProviderRepository) GetByIDs(ctx context.Context, ids []uint) ([]models.Provider, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.Provider
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error
	return out, err
}

// List returns a page of providers, optionally restricted to providers
// that may currently receive offers.
func (r *ProviderRepository) List(ctx context.Context, eligibleOnly bool, opts *models.ListOptions) ([]models.Provider, error) {
	opts = opts.WithDefaults()
	var out []models.Provider
	q := r.db.WithContext(ctx).Model(&models.Provider{})
	if eligibleOnly {
		q = q.Where("verified = ? AND active = ?", true, true)
	}
	err := q.Limit(opts.Limit).Offset(opts.Offset).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// Deactivate marks a provider inactive. Providers are never deleted.
func (r *ProviderRepository) Deactivate(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Model(&models.Provider{}).
		Where("id = ?", id).
		Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("provider %d not found: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}
