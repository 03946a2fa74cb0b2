package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Field names for the assignment model
const (
	// AssignmentStatusField is the field name for assignment status
	AssignmentStatusField = "status"
	// AssignmentExpiresAtField is the field name for the offer deadline
	AssignmentExpiresAtField = "expires_at"
)

// AssignmentStatus represents the current state of an offer
type AssignmentStatus string

// Assignment status constants
const (
	// AssignmentStatusUnknown represents an unknown or invalid status
	AssignmentStatusUnknown AssignmentStatus = "unknown"
	// AssignmentStatusPending indicates the offer is awaiting a response
	AssignmentStatusPending AssignmentStatus = "pending"
	// AssignmentStatusClaimed indicates the provider accepted the offer
	AssignmentStatusClaimed AssignmentStatus = "claimed"
	// AssignmentStatusRejected indicates the provider declined the offer
	AssignmentStatusRejected AssignmentStatus = "rejected"
	// AssignmentStatusExpired indicates the offer lapsed or the provider
	// was dropped for lateness
	AssignmentStatusExpired AssignmentStatus = "expired"
	// AssignmentStatusCancelled indicates the offer became irrelevant
	AssignmentStatusCancelled AssignmentStatus = "cancelled"
)

// Assignment represents an offer of a Job to a specific Provider. Multiple
// assignments may exist per job, one per candidate offered, but at most one
// may ever be claimed. The partial unique index admits at most one live
// (pending or claimed) offer per (job, provider) pair, so concurrent
// dispatches cannot duplicate offers.
type Assignment struct {
	gorm.Model
	JobID      uint             `json:"job_id" gorm:"not null;index:idx_assignments_job_provider;index:idx_assignments_live_offer,unique,where:status = 'pending' OR status = 'claimed'"`
	ProviderID uint             `json:"provider_id" gorm:"not null;index:idx_assignments_job_provider;index:idx_assignments_live_offer;index"`
	Token      string           `json:"token" gorm:"not null;uniqueIndex"`
	Status     AssignmentStatus `json:"status" gorm:"not null;index"`
	Score      float64          `json:"score"`
	DistanceKm float64          `json:"distance_km"`
	ExpiresAt  time.Time        `json:"expires_at" gorm:"not null;index"`

	// LastWarnedAt records the most recent arrival warning so that sweeps
	// can optionally deduplicate.
	LastWarnedAt *time.Time `json:"last_warned_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at" gorm:"index"`
}

// String returns the string representation of the assignment status
func (s AssignmentStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status admits no further transitions.
// Expired, rejected and cancelled offers are never resurrected.
func (s AssignmentStatus) IsTerminal() bool {
	switch s {
	case AssignmentStatusRejected, AssignmentStatusExpired, AssignmentStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseAssignmentStatus converts a string to an AssignmentStatus type
func ParseAssignmentStatus(str string) (AssignmentStatus, error) {
	switch str {
	case string(AssignmentStatusPending):
		return AssignmentStatusPending, nil
	case string(AssignmentStatusClaimed):
		return AssignmentStatusClaimed, nil
	case string(AssignmentStatusRejected):
		return AssignmentStatusRejected, nil
	case string(AssignmentStatusExpired):
		return AssignmentStatusExpired, nil
	case string(AssignmentStatusCancelled):
		return AssignmentStatusCancelled, nil
	default:
		return AssignmentStatusUnknown, fmt.Errorf("invalid assignment status: %s", str)
	}
}

// UnmarshalJSON implements json.Unmarshaler for AssignmentStatus
func (s *AssignmentStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	status, err := ParseAssignmentStatus(str)
	if err != nil {
		return err
	}

	*s = status
	return nil
}

// MarshalJSON implements json.Marshaler for AssignmentStatus
func (s *AssignmentStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Claimable reports whether the offer can still be accepted at the given
// instant. Expiry is enforced by this read-time check, not by a background
// expirer.
func (a *Assignment) Claimable(now time.Time) bool {
	return a.Status == AssignmentStatusPending && !now.After(a.ExpiresAt)
}

// Validate ensures that the assignment data is valid
func (a *Assignment) Validate() error {
	if a.JobID == 0 {
		return fmt.Errorf("assignment job cannot be empty")
	}
	if a.ProviderID == 0 {
		return fmt.Errorf("assignment provider cannot be empty")
	}
	if a.ExpiresAt.IsZero() {
		return fmt.Errorf("assignment expiry cannot be empty")
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new assignment
func (a *Assignment) BeforeCreate(_ *gorm.DB) error {
	if a.Status == "" {
		a.Status = AssignmentStatusPending
	}
	if a.Token == "" {
		a.Token = uuid.NewString()
	}
	return a.Validate()
}
