// Package repos provides access to the database entities.
package repos

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/sweeply/sweeply/internal/db/models"
)

// JobRepository provides access to job-related database operations
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new job repository instance
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create creates a new job in the database
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Update saves all fields of an existing job
func (r *JobRepository) Update(ctx context.Context, job *models.Job) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// GetByID retrieves a job by its ID
func (r *JobRepository) GetByID(ctx context.Context, id uint) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).First(&job, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("job %d not found: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// List returns a page of jobs, optionally filtered by status. An unknown
// status returns jobs regardless of their status.
func (r *JobRepository) List(ctx context.Context, status models.JobStatus, opts *models.ListOptions) ([]models.Job, error) {
	opts = opts.WithDefaults()
	var jobs []models.Job
	qry := &models.Job{}
	if status != models.JobStatusUnknown && status != "" {
		qry.Status = status
	}

	err := r.db.WithContext(ctx).Model(&models.Job{}).
		Where(qry).
		Limit(opts.Limit).Offset(opts.Offset).
		Order(models.JobCreatedAtField + " DESC").
		Find(&jobs).Error
	return jobs, err
}

// ListNeedingAttention returns jobs flagged for manual review.
func (r *JobRepository) ListNeedingAttention(ctx context.Context, opts *models.ListOptions) ([]models.Job, error) {
	opts = opts.WithDefaults()
	var jobs []models.Job
	err := r.db.WithContext(ctx).
		Where("needs_attention = ?", true).
		Limit(opts.Limit).Offset(opts.Offset).
		Order(models.JobCreatedAtField + " DESC").
		Find(&jobs).Error
	return jobs, err
}

// TryTransition atomically moves a job from one status to another. It
// reports false when the job was no longer in the expected status, which is
// how concurrent writers lose the race.
func (r *JobRepository) TryTransition(ctx context.Context, id uint, from, to models.JobStatus) (bool, error) {
	return r.TryTransitionWith(ctx, id, from, to, nil)
}

// TryTransitionWith is TryTransition with extra columns applied in the same
// conditional write.
func (r *JobRepository) TryTransitionWith(ctx context.Context, id uint, from, to models.JobStatus, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{models.JobStatusField: to}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to transition job %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkNeedsAttention flags a job for the manual-review queue.
func (r *JobRepository) MarkNeedsAttention(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Update("needs_attention", true).Error
}

// Count returns the number of jobs with the given status. An unknown status
// counts all jobs.
func (r *JobRepository) Count(ctx context.Context, status models.JobStatus) (int64, error) {
	var count int64
	qry := &models.Job{}
	if status != models.JobStatusUnknown && status != "" {
		qry.Status = status
	}
	err := r.db.WithContext(ctx).Model(&models.Job{}).Where(qry).Count(&count).Error
	return count, err
}
