package matching

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sweeply/sweeply/internal/db/models"
	"github.com/sweeply/sweeply/internal/db/repos"
)

// ConflictChecker determines whether a provider already holds a claimed
// commitment that collides with a target time window. Pure read, no side
// effects.
type ConflictChecker struct {
	assignments *repos.AssignmentRepository
}

// NewConflictChecker creates a checker over the given database handle.
// Passing a transaction handle makes the check part of that transaction,
// which is how claim-time re-checks stay consistent with the claim commit.
func NewConflictChecker(db *gorm.DB) *ConflictChecker {
	return &ConflictChecker{assignments: repos.NewAssignmentRepository(db)}
}

// Colliding returns the provider's claimed jobs on the given date whose
// windows overlap [startMin, endMin). Windows are half-open: an exact
// boundary touch is not a conflict.
func (c *ConflictChecker) Colliding(ctx context.Context, providerID uint, date time.Time, startMin, endMin int) ([]models.Job, error) {
	claimed, err := c.assignments.ClaimedJobsForProviderOnDate(ctx, providerID, date)
	if err != nil {
		return nil, err
	}

	var out []models.Job
	for _, job := range claimed {
		jobStart, jobEnd, err := job.Window()
		if err != nil {
			return nil, err
		}
		if WindowsOverlap(startMin, endMin, jobStart, jobEnd) {
			out = append(out, job)
		}
	}
	return out, nil
}

// HasConflict reports whether any claimed commitment collides with the
// target window.
func (c *ConflictChecker) HasConflict(ctx context.Context, providerID uint, date time.Time, startMin, endMin int) (bool, error) {
	colliding, err := c.Colliding(ctx, providerID, date, startMin, endMin)
	if err != nil {
		return false, err
	}
	return len(colliding) > 0, nil
}

// WindowsOverlap reports whether two half-open minute windows overlap.
func WindowsOverlap(startA, endA, startB, endB int) bool {
	return startA < endB && endA > startB
}
