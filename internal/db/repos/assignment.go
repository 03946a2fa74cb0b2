package repos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sweeply/sweeply/internal/db/models"
)

// AssignmentRepository provides access to assignment-related database
// operations
type AssignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository creates a new assignment repository instance
func NewAssignmentRepository(db *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create creates a new assignment in the database
func (r *AssignmentRepository) Create(ctx context.Context, a *models.Assignment) error {
	return r.db.WithContext(ctx).Create(a).Error
}

// CreateOffer inserts an offer unless the provider already holds a live one
// for the job, in which case the live-offer index rejects the row, nothing
// is written and false is returned. This backs the per-(job, provider)
// dispatch idempotency against concurrent dispatchers, where a plain
// read-then-insert would race.
func (r *AssignmentRepository) CreateOffer(ctx context.Context, a *models.Assignment) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(a)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// GetByID retrieves an assignment by its ID
func (r *AssignmentRepository) GetByID(ctx context.Context, id uint) (*models.Assignment, error) {
	var a models.Assignment
	err := r.db.WithContext(ctx).First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("assignment %d not found: %w", id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return &a, nil
}

// ListByJob returns all assignments for a job, newest first.
func (r *AssignmentRepository) ListByJob(ctx context.Context, jobID uint) ([]models.Assignment, error) {
	var out []models.Assignment
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// PendingByJob returns the pending assignments for a job. Callers must
// still apply the read-time expiry check before treating one as claimable.
func (r *AssignmentRepository) PendingByJob(ctx context.Context, jobID uint) ([]models.Assignment, error) {
	var out []models.Assignment
	err := r.db.WithContext(ctx).
		Where("job_id = ? AND status = ?", jobID, models.AssignmentStatusPending).
		Order("score DESC").
		Find(&out).Error
	return out, err
}

// GetPendingForJobProvider returns the provider's pending offer for a job.
// Used by the legacy claim-by-job flow.
func (r *AssignmentRepository) GetPendingForJobProvider(ctx context.Context, jobID, providerID uint) (*models.Assignment, error) {
	var a models.Assignment
	err := r.db.WithContext(ctx).
		Where("job_id = ? AND provider_id = ? AND status = ?", jobID, providerID, models.AssignmentStatusPending).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("no pending offer for job %d provider %d: %w", jobID, providerID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending offer: %w", err)
	}
	return &a, nil
}

// ClaimedByJob returns the claimed assignment for a job, or nil if none
// exists. The schema invariant allows at most one.
func (r *AssignmentRepository) ClaimedByJob(ctx context.Context, jobID uint) (*models.Assignment, error) {
	var a models.Assignment
	err := r.db.WithContext(ctx).
		Where("job_id = ? AND status = ?", jobID, models.AssignmentStatusClaimed).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claimed assignment: %w", err)
	}
	return &a, nil
}

// HasOfferForJobProvider reports whether the provider already holds an
// offer for the job in any of the given statuses. Dispatch uses this to stay
// idempotent per (job, provider).
func (r *AssignmentRepository) HasOfferForJobProvider(ctx context.Context, jobID, providerID uint, statuses ...models.AssignmentStatus) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("job_id = ? AND provider_id = ?", jobID, providerID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ClaimedJobsForProviderOnDate returns the jobs for which the provider holds
// a claimed assignment on the given calendar day, excluding bookings that
// are already finished or cancelled. This is the read behind conflict
// checking.
func (r *AssignmentRepository) ClaimedJobsForProviderOnDate(ctx context.Context, providerID uint, date time.Time) ([]models.Job, error) {
	var jobs []models.Job
	day := date.Format("2006-01-02")
	err := r.db.WithContext(ctx).Model(&models.Job{}).
		Joins("JOIN assignments ON assignments.job_id = jobs.id").
		Where("assignments.provider_id = ? AND assignments.status = ?", providerID, models.AssignmentStatusClaimed).
		Where("DATE(jobs.scheduled_date) = ?", day).
		Where("jobs.status NOT IN ?", []models.JobStatus{models.JobStatusCompleted, models.JobStatusCancelled}).
		Find(&jobs).Error
	return jobs, err
}

// DueForArrivalCheck returns the claimed assignments for jobs scheduled on
// the given day whose provider has not yet checked in.
func (r *AssignmentRepository) DueForArrivalCheck(ctx context.Context, date time.Time) ([]models.Assignment, error) {
	var out []models.Assignment
	day := date.Format("2006-01-02")
	err := r.db.WithContext(ctx).Model(&models.Assignment{}).
		Joins("JOIN jobs ON jobs.id = assignments.job_id").
		Where("assignments.status = ?", models.AssignmentStatusClaimed).
		Where("DATE(jobs.scheduled_date) = ?", day).
		Where("jobs.status = ?", models.JobStatusClaimed).
		Where("jobs.checked_in_at IS NULL").
		Find(&out).Error
	return out, err
}

// PendingForProvider returns the provider's claimable offers, soonest
// deadline first. Offers already past their deadline are filtered out here
// rather than rewritten.
func (r *AssignmentRepository) PendingForProvider(ctx context.Context, providerID uint, now time.Time) ([]models.Assignment, error) {
	var out []models.Assignment
	err := r.db.WithContext(ctx).
		Where("provider_id = ? AND status = ? AND expires_at > ?", providerID, models.AssignmentStatusPending, now).
		Order("expires_at ASC").
		Find(&out).Error
	return out, err
}

// CancelActiveByJob cancels every pending and claimed offer for a job. Used
// when the customer cancels the booking itself.
func (r *AssignmentRepository) CancelActiveByJob(ctx context.Context, jobID uint) (int64, error) {
	active := []models.AssignmentStatus{models.AssignmentStatusPending, models.AssignmentStatusClaimed}
	res := r.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("job_id = ? AND status IN ?", jobID, active).
		Update(models.AssignmentStatusField, models.AssignmentStatusCancelled)
	return res.RowsAffected, res.Error
}

// CancelSiblings cancels every other pending offer for the job once one has
// been claimed. Returns the number of offers cancelled.
func (r *AssignmentRepository) CancelSiblings(ctx context.Context, jobID, keepID uint) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("job_id = ? AND id <> ? AND status = ?", jobID, keepID, models.AssignmentStatusPending).
		Update(models.AssignmentStatusField, models.AssignmentStatusCancelled)
	return res.RowsAffected, res.Error
}

// TryTransition atomically moves an assignment from one status to another.
// It reports false when the assignment was no longer in the expected status.
func (r *AssignmentRepository) TryTransition(ctx context.Context, id uint, from, to models.AssignmentStatus) (bool, error) {
	return r.TryTransitionWith(ctx, id, from, to, nil)
}

// TryTransitionWith is TryTransition with extra columns applied in the same
// conditional write.
func (r *AssignmentRepository) TryTransitionWith(ctx context.Context, id uint, from, to models.AssignmentStatus, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{models.AssignmentStatusField: to}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to transition assignment %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SetLastWarnedAt records an arrival warning without touching status.
func (r *AssignmentRepository) SetLastWarnedAt(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("id = ?", id).
		Update("last_warned_at", at).Error
}

// CountClaimedByJob returns the number of claimed assignments for a job.
// Used by invariant checks; the answer should never exceed one.
func (r *AssignmentRepository) CountClaimedByJob(ctx context.Context, jobID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Assignment{}).
		Where("job_id = ? AND status = ?", jobID, models.AssignmentStatusClaimed).
		Count(&count).Error
	return count, err
}
