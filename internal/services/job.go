package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sweeply/sweeply/internal/db/models"
	"github.com/sweeply/sweeply/internal/db/repos"
	"github.com/sweeply/sweeply/internal/logger"
	"github.com/sweeply/sweeply/internal/matching"
)

// CreateJobRequest carries the fields a customer submits for a new booking.
type CreateJobRequest struct {
	CustomerID          uint    `json:"customer_id"`
	ServiceType         string  `json:"service_type"`
	ScheduledDate       string  `json:"scheduled_date"` // YYYY-MM-DD
	WindowStart         string  `json:"window_start"`   // HH:MM
	WindowEnd           string  `json:"window_end"`     // HH:MM
	ArrivalToleranceMin int     `json:"arrival_tolerance_min"`
	Lat                 float64 `json:"lat"`
	Lon                 float64 `json:"lon"`
	PriceCents          int64   `json:"price_cents"`
}

// Job provides business logic for booking operations: creation with
// immediate dispatch, the provider's check-in/check-out flow, cancellation
// and post-completion rating.
type Job struct {
	db         *gorm.DB
	jobs       *repos.JobRepository
	customers  *repos.CustomerRepository
	dispatcher *matching.Dispatcher

	// tolerance is the platform default arrival grace for jobs that carry
	// none of their own.
	tolerance time.Duration
	now       func() time.Time
}

// NewJobService creates a new job service instance.
func NewJobService(db *gorm.DB, dispatcher *matching.Dispatcher, tolerance time.Duration) *Job {
	if tolerance <= 0 {
		tolerance = matching.DefaultArrivalTolerance
	}
	return &Job{
		db:         db,
		jobs:       repos.NewJobRepository(db),
		customers:  repos.NewCustomerRepository(db),
		dispatcher: dispatcher,
		tolerance:  tolerance,
		now:        time.Now,
	}
}

// Create validates and persists a booking, then dispatches it. A booking
// with no eligible candidates is still created; it comes back flagged for
// manual review together with matching.ErrNoCandidates.
func (s *Job) Create(ctx context.Context, req *CreateJobRequest) (*models.Job, error) {
	if _, err := s.customers.GetByID(ctx, req.CustomerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: customer %d", matching.ErrNotFound, req.CustomerID)
		}
		return nil, err
	}

	date, err := time.Parse("2006-01-02", req.ScheduledDate)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduled date %q: %w", req.ScheduledDate, err)
	}

	job := &models.Job{
		CustomerID:          req.CustomerID,
		ServiceType:         req.ServiceType,
		ScheduledDate:       date,
		WindowStart:         req.WindowStart,
		WindowEnd:           req.WindowEnd,
		ArrivalToleranceMin: req.ArrivalToleranceMin,
		Lat:                 req.Lat,
		Lon:                 req.Lon,
		PriceCents:          req.PriceCents,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	if _, err := s.dispatcher.Dispatch(ctx, job.ID); err != nil {
		if errors.Is(err, matching.ErrNoCandidates) {
			reloaded, getErr := s.jobs.GetByID(ctx, job.ID)
			if getErr != nil {
				return nil, getErr
			}
			return reloaded, err
		}
		return nil, err
	}

	reloaded, err := s.jobs.GetByID(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	return reloaded, nil
}

// Get retrieves a booking by id.
func (s *Job) Get(ctx context.Context, jobID uint) (*models.Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: job %d", matching.ErrNotFound, jobID)
		}
		return nil, err
	}
	return job, nil
}

// List returns a page of bookings, optionally filtered by status.
func (s *Job) List(ctx context.Context, status models.JobStatus, opts *models.ListOptions) ([]models.Job, error) {
	return s.jobs.List(ctx, status, opts)
}

// ListNeedingAttention returns the manual-review queue.
func (s *Job) ListNeedingAttention(ctx context.Context, opts *models.ListOptions) ([]models.Job, error) {
	return s.jobs.ListNeedingAttention(ctx, opts)
}

// Redispatch re-runs candidate matching for a booking still awaiting
// assignment. Operator entry point for the manual-review queue.
func (s *Job) Redispatch(ctx context.Context, jobID uint) ([]models.Assignment, error) {
	return s.dispatcher.Dispatch(ctx, jobID)
}

// CheckIn records the provider's arrival: job CLAIMED to IN_PROGRESS, and
// the arrival is scored on time or late against the window deadline, which
// feeds the punctuality rate.
func (s *Job) CheckIn(ctx context.Context, jobID, providerID uint) (*models.Job, error) {
	return s.transitionForProvider(ctx, jobID, providerID,
		models.JobStatusClaimed, models.JobStatusInProgress,
		func(tx *gorm.DB, job *models.Job, provider *models.Provider, now time.Time) (map[string]interface{}, error) {
			deadline, err := s.arrivalDeadline(job)
			if err != nil {
				return nil, err
			}
			if now.After(deadline) {
				provider.LateArrivals++
			} else {
				provider.OnTimeArrivals++
			}
			matching.RecalculateRates(provider)
			return map[string]interface{}{"checked_in_at": now}, nil
		})
}

// CheckOut records service completion: job IN_PROGRESS to COMPLETED, the
// provider's completed counter moves and a positive quality observation is
// folded in.
func (s *Job) CheckOut(ctx context.Context, jobID, providerID uint) (*models.Job, error) {
	return s.transitionForProvider(ctx, jobID, providerID,
		models.JobStatusInProgress, models.JobStatusCompleted,
		func(tx *gorm.DB, job *models.Job, provider *models.Provider, now time.Time) (map[string]interface{}, error) {
			provider.JobsCompleted++
			matching.FoldQuality(provider, 1)
			matching.RecalculateRates(provider)
			return map[string]interface{}{"checked_out_at": now}, nil
		})
}

// Cancel withdraws a booking before completion. Every live offer for it,
// pending or claimed, is cancelled with it.
func (s *Job) Cancel(ctx context.Context, jobID uint) (*models.Job, error) {
	var cancelled *models.Job
	err := s.db.Transaction(func(tx *gorm.DB) error {
		jobs := repos.NewJobRepository(tx)
		assignments := repos.NewAssignmentRepository(tx)

		job, err := jobs.GetByID(ctx, jobID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: job %d", matching.ErrNotFound, jobID)
			}
			return err
		}
		if job.Status.IsTerminal() {
			return fmt.Errorf("%w: job %d is %s", matching.ErrConflict, jobID, job.Status)
		}

		ok, err := jobs.TryTransition(ctx, jobID, job.Status, models.JobStatusCancelled)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: job %d", matching.ErrConflict, jobID)
		}

		n, err := assignments.CancelActiveByJob(ctx, jobID)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Infof("cancelled %d live offer(s) along with job %d", n, jobID)
		}

		job.Status = models.JobStatusCancelled
		cancelled = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// Rate folds a customer rating in [1,5] for a completed booking into the
// serving provider's running average, and the normalized value into their
// quality score.
func (s *Job) Rate(ctx context.Context, jobID uint, rating float64) (*models.Provider, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("rating must be between 1 and 5, got %g", rating)
	}

	var rated *models.Provider
	err := s.db.Transaction(func(tx *gorm.DB) error {
		jobs := repos.NewJobRepository(tx)
		assignments := repos.NewAssignmentRepository(tx)
		providers := repos.NewProviderRepository(tx)

		job, err := jobs.GetByID(ctx, jobID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: job %d", matching.ErrNotFound, jobID)
			}
			return err
		}
		if job.Status != models.JobStatusCompleted {
			return fmt.Errorf("%w: job %d is %s, only completed jobs can be rated", matching.ErrConflict, jobID, job.Status)
		}

		a, err := assignments.ClaimedByJob(ctx, jobID)
		if err != nil {
			return err
		}
		if a == nil {
			return fmt.Errorf("%w: job %d has no claimed assignment", matching.ErrConflict, jobID)
		}
		provider, err := providers.GetByID(ctx, a.ProviderID)
		if err != nil {
			return err
		}

		matching.FoldRating(provider, rating)
		matching.FoldQuality(provider, rating/5)
		if err := providers.Update(ctx, provider); err != nil {
			return err
		}
		rated = provider
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rated, nil
}

// transitionForProvider runs a provider-driven job transition: it verifies
// the calling provider holds the claimed assignment, applies the status CAS
// with extra columns, and persists the provider mutation, all in one
// transaction.
func (s *Job) transitionForProvider(
	ctx context.Context,
	jobID, providerID uint,
	from, to models.JobStatus,
	mutate func(tx *gorm.DB, job *models.Job, provider *models.Provider, now time.Time) (map[string]interface{}, error),
) (*models.Job, error) {
	var out *models.Job
	err := s.db.Transaction(func(tx *gorm.DB) error {
		jobs := repos.NewJobRepository(tx)
		assignments := repos.NewAssignmentRepository(tx)
		providers := repos.NewProviderRepository(tx)

		job, err := jobs.GetByID(ctx, jobID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: job %d", matching.ErrNotFound, jobID)
			}
			return err
		}

		claimed, err := assignments.ClaimedByJob(ctx, jobID)
		if err != nil {
			return err
		}
		if claimed == nil {
			return fmt.Errorf("%w: job %d has no claimed assignment", matching.ErrConflict, jobID)
		}
		if claimed.ProviderID != providerID {
			return fmt.Errorf("%w: job %d", matching.ErrNotFound, jobID)
		}

		provider, err := providers.GetByID(ctx, providerID)
		if err != nil {
			return err
		}

		now := s.now()
		extra, err := mutate(tx, job, provider, now)
		if err != nil {
			return err
		}

		ok, err := jobs.TryTransitionWith(ctx, jobID, from, to, extra)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: job %d is not %s", matching.ErrConflict, jobID, from)
		}

		if err := providers.Update(ctx, provider); err != nil {
			return err
		}

		job.Status = to
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Job) arrivalDeadline(job *models.Job) (time.Time, error) {
	start, err := job.WindowStartTime()
	if err != nil {
		return time.Time{}, err
	}
	tolerance := s.tolerance
	if job.ArrivalToleranceMin > 0 {
		tolerance = time.Duration(job.ArrivalToleranceMin) * time.Minute
	}
	return start.Add(tolerance), nil
}
