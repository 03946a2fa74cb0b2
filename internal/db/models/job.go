package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Field names for the job model
const (
	// JobStatusField is the field name for job status
	JobStatusField = "status"
	// JobCreatedAtField is the database field name for the job creation timestamp
	JobCreatedAtField = "created_at"
)

// JobStatus represents the current state of a booking
type JobStatus string

// Job status constants
const (
	// JobStatusUnknown represents an unknown or invalid job status
	JobStatusUnknown JobStatus = "unknown"
	// JobStatusCreated indicates the booking is funded and waiting for dispatch
	JobStatusCreated JobStatus = "created"
	// JobStatusOffered indicates offers are out to candidate providers
	JobStatusOffered JobStatus = "offered"
	// JobStatusClaimed indicates a provider has claimed the booking
	JobStatusClaimed JobStatus = "claimed"
	// JobStatusInProgress indicates the provider has checked in
	JobStatusInProgress JobStatus = "in_progress"
	// JobStatusCompleted indicates the service finished
	JobStatusCompleted JobStatus = "completed"
	// JobStatusCancelled indicates the booking was cancelled
	JobStatusCancelled JobStatus = "cancelled"
)

// Job represents a scheduled home-service booking
type Job struct {
	gorm.Model
	CustomerID  uint      `json:"customer_id" gorm:"not null;index"`
	ServiceType string    `json:"service_type" gorm:"not null"`
	Status      JobStatus `json:"status" gorm:"not null;index"`

	// ScheduledDate is the calendar day of the service, normalized to
	// midnight UTC. The time window is stored as wall-clock strings and
	// parsed into minute offsets on demand.
	ScheduledDate time.Time `json:"scheduled_date" gorm:"type:date;index"`
	WindowStart   string    `json:"window_start" gorm:"not null"`
	WindowEnd     string    `json:"window_end" gorm:"not null"`

	// ArrivalToleranceMin is the grace period after window start before a
	// claimed-but-absent provider is considered late. 0 means the
	// platform default applies.
	ArrivalToleranceMin int `json:"arrival_tolerance_min"`

	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	PriceCents int64   `json:"price_cents"`

	// NeedsAttention flags a job for the manual-review queue, e.g. when
	// no eligible candidates exist.
	NeedsAttention bool `json:"needs_attention" gorm:"not null;default:false;index"`

	CheckedInAt  *time.Time `json:"checked_in_at,omitempty"`
	CheckedOutAt *time.Time `json:"checked_out_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at" gorm:"index"`
}

// String returns the string representation of the job status
func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

// AwaitingAssignment reports whether the job can still be claimed.
func (s JobStatus) AwaitingAssignment() bool {
	return s == JobStatusCreated || s == JobStatusOffered
}

// ParseJobStatus converts a string to a JobStatus type
func ParseJobStatus(str string) (JobStatus, error) {
	switch str {
	case string(JobStatusCreated):
		return JobStatusCreated, nil
	case string(JobStatusOffered):
		return JobStatusOffered, nil
	case string(JobStatusClaimed):
		return JobStatusClaimed, nil
	case string(JobStatusInProgress):
		return JobStatusInProgress, nil
	case string(JobStatusCompleted):
		return JobStatusCompleted, nil
	case string(JobStatusCancelled):
		return JobStatusCancelled, nil
	default:
		return JobStatusUnknown, fmt.Errorf("invalid job status: %s", str)
	}
}

// UnmarshalJSON implements json.Unmarshaler for JobStatus
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	status, err := ParseJobStatus(str)
	if err != nil {
		return err
	}

	*s = status
	return nil
}

// MarshalJSON implements json.Marshaler for JobStatus
func (s *JobStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Window returns the scheduled time window as minute offsets from midnight.
func (j *Job) Window() (start, end int, err error) {
	start, err = ParseClock(j.WindowStart)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid window start: %w", err)
	}
	end, err = ParseClock(j.WindowEnd)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid window end: %w", err)
	}
	return start, end, nil
}

// WindowStartTime returns the absolute start of the scheduled window.
func (j *Job) WindowStartTime() (time.Time, error) {
	start, err := ParseClock(j.WindowStart)
	if err != nil {
		return time.Time{}, err
	}
	day := j.ScheduledDate
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location()).
		Add(time.Duration(start) * time.Minute), nil
}

// Validate ensures that the job data is valid
func (j *Job) Validate() error {
	if j.CustomerID == 0 {
		return fmt.Errorf("job customer cannot be empty")
	}
	if j.ServiceType == "" {
		return fmt.Errorf("job service type cannot be empty")
	}
	start, end, err := j.Window()
	if err != nil {
		return err
	}
	if start >= end {
		return fmt.Errorf("job window start must precede window end")
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new job
func (j *Job) BeforeCreate(_ *gorm.DB) error {
	if j.Status == "" {
		j.Status = JobStatusCreated
	}
	return j.Validate()
}

// ParseClock parses an "HH:MM" wall-clock string into minutes from midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
