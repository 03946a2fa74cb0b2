// Package notify delivers booking lifecycle notifications. Delivery is
// best-effort: the engine logs failures and never rolls back a committed
// state transition because a notification could not be sent.
package notify

import (
	"context"

	"github.com/sweeply/sweeply/internal/logger"
)

// Notifier is the outbound notification surface consumed by the engine.
type Notifier interface {
	NotifyOffer(ctx context.Context, providerID, jobID uint) error
	NotifyArrivalWarning(ctx context.Context, providerID, jobID uint, minutesLeft int) error
	NotifyReassigned(ctx context.Context, providerID, jobID uint) error
	NotifyCustomerDelay(ctx context.Context, jobID uint) error
	NotifyManualReview(ctx context.Context, jobID uint) error
}

// LogNotifier writes notifications to the log. Suitable for development and
// as a fallback when no broker is configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// NotifyOffer logs a new offer notification.
func (n *LogNotifier) NotifyOffer(_ context.Context, providerID, jobID uint) error {
	logger.Infof("notify: offer for job %d sent to provider %d", jobID, providerID)
	return nil
}

// NotifyArrivalWarning logs an approaching-deadline warning.
func (n *LogNotifier) NotifyArrivalWarning(_ context.Context, providerID, jobID uint, minutesLeft int) error {
	logger.Infof("notify: provider %d has %d minutes to check in for job %d", providerID, minutesLeft, jobID)
	return nil
}

// NotifyReassigned logs a reassignment notification to the new candidate.
func (n *LogNotifier) NotifyReassigned(_ context.Context, providerID, jobID uint) error {
	logger.Infof("notify: job %d reassigned, offer sent to provider %d", jobID, providerID)
	return nil
}

// NotifyCustomerDelay logs a delay notice to the customer.
func (n *LogNotifier) NotifyCustomerDelay(_ context.Context, jobID uint) error {
	logger.Infof("notify: customer of job %d informed about a delay", jobID)
	return nil
}

// NotifyManualReview logs a manual-review escalation.
func (n *LogNotifier) NotifyManualReview(_ context.Context, jobID uint) error {
	logger.Warnf("notify: job %d needs manual review, no eligible candidates", jobID)
	return nil
}
