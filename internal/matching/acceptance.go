package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sweeply/sweeply/internal/db/models"
	"github.com/sweeply/sweeply/internal/db/repos"
	"github.com/sweeply/sweeply/internal/observability"
)

// Coordinator resolves claim attempts so that exactly one provider wins a
// job among possibly-concurrent claims. The commit protocol is a pair of
// conditional writes inside one transaction; whoever sees zero rows
// affected lost the race and gets ErrConflict.
type Coordinator struct {
	db  *gorm.DB
	now func() time.Time
}

// NewCoordinator creates a claim coordinator over the given database.
func NewCoordinator(db *gorm.DB) *Coordinator {
	return &Coordinator{db: db, now: time.Now}
}

// Claim lets a provider accept a pending offer. On success the assignment
// is claimed, the job is assigned, sibling offers are cancelled and the
// provider's counters are updated, all atomically. ErrConflict means the
// offer is no longer available: someone else won, the offer expired, or the
// provider picked up an overlapping commitment in the meantime. Conflicts
// are never retried here; the caller re-polls or requests a new match.
func (c *Coordinator) Claim(ctx context.Context, assignmentID, providerID uint) (*models.Assignment, error) {
	var claimed *models.Assignment
	err := c.db.Transaction(func(tx *gorm.DB) error {
		assignments := repos.NewAssignmentRepository(tx)
		jobs := repos.NewJobRepository(tx)
		providers := repos.NewProviderRepository(tx)

		a, err := assignments.GetByID(ctx, assignmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: assignment %d", ErrNotFound, assignmentID)
			}
			return err
		}
		if a.ProviderID != providerID {
			// Not this provider's offer; indistinguishable from absent.
			return fmt.Errorf("%w: assignment %d", ErrNotFound, assignmentID)
		}
		if a.Status != models.AssignmentStatusPending {
			return fmt.Errorf("%w: offer is %s", ErrConflict, a.Status)
		}
		now := c.now()
		if now.After(a.ExpiresAt) {
			// Expiry is enforced here, at claim time; the row is not
			// rewritten by any background expirer.
			return fmt.Errorf("%w: offer expired", ErrConflict)
		}

		job, err := jobs.GetByID(ctx, a.JobID)
		if err != nil {
			return err
		}
		if !job.Status.AwaitingAssignment() {
			return fmt.Errorf("%w: job %d is %s", ErrConflict, job.ID, job.Status)
		}

		// Re-run the conflict check inside the claim transaction: time has
		// passed since scoring, and the provider may have claimed another
		// overlapping job meanwhile.
		startMin, endMin, err := job.Window()
		if err != nil {
			return err
		}
		conflicted, err := NewConflictChecker(tx).HasConflict(ctx, providerID, job.ScheduledDate, startMin, endMin)
		if err != nil {
			return err
		}
		if conflicted {
			return fmt.Errorf("%w: overlapping commitment", ErrConflict)
		}

		ok, err := assignments.TryTransition(ctx, a.ID, models.AssignmentStatusPending, models.AssignmentStatusClaimed)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: assignment %d", ErrConflict, a.ID)
		}
		ok, err = jobs.TryTransition(ctx, job.ID, job.Status, models.JobStatusClaimed)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: job %d", ErrConflict, job.ID)
		}

		if _, err := assignments.CancelSiblings(ctx, job.ID, a.ID); err != nil {
			return err
		}

		provider, err := providers.GetByID(ctx, providerID)
		if err != nil {
			return err
		}
		provider.OffersAccepted++
		RecalculateRates(provider)
		if err := providers.Update(ctx, provider); err != nil {
			return err
		}

		a.Status = models.AssignmentStatusClaimed
		claimed = a
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			observability.ClaimConflictsTotal.Inc()
		}
		return nil, err
	}
	observability.ClaimsTotal.Inc()
	return claimed, nil
}

// ClaimJob is the legacy single-offer flow: the provider claims by job id
// and the coordinator resolves their pending offer for it.
func (c *Coordinator) ClaimJob(ctx context.Context, jobID, providerID uint) (*models.Assignment, error) {
	a, err := repos.NewAssignmentRepository(c.db).GetPendingForJobProvider(ctx, jobID, providerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no pending offer for job %d", ErrNotFound, jobID)
		}
		return nil, err
	}
	return c.Claim(ctx, a.ID, providerID)
}

// Reject lets a provider decline a pending offer. Rejection is terminal for
// the offer; the acceptance rate already reflects the received offer, so no
// counters move.
func (c *Coordinator) Reject(ctx context.Context, assignmentID, providerID uint) error {
	assignments := repos.NewAssignmentRepository(c.db)
	a, err := assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: assignment %d", ErrNotFound, assignmentID)
		}
		return err
	}
	if a.ProviderID != providerID {
		return fmt.Errorf("%w: assignment %d", ErrNotFound, assignmentID)
	}
	ok, err := assignments.TryTransition(ctx, assignmentID, models.AssignmentStatusPending, models.AssignmentStatusRejected)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: offer is no longer pending", ErrConflict)
	}
	return nil
}
