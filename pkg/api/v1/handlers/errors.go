package handlers

// Error message constants for standardized API responses
const (
	ErrMsgInvalidJobID        = "invalid job id"
	ErrMsgInvalidProviderID   = "invalid provider id"
	ErrMsgInvalidAssignmentID = "invalid assignment id"
	ErrMsgInvalidBody         = "invalid request body"
	ErrMsgInvalidStatus       = "invalid status filter"
	ErrMsgInvalidRating       = "rating must be between 1 and 5"
)
