// Package models defines the persistent entities of the booking platform.
package models

const (
	// DefaultLimit is the max number of rows retrieved from the DB per
	// listing API call
	DefaultLimit = 50
)

// ListOptions represents pagination options for list operations
type ListOptions struct {
	Limit  int `json:"limit"`  // Number of items to return
	Offset int `json:"offset"` // Number of items to skip
}

// WithDefaults fills in missing pagination values.
func (o *ListOptions) WithDefaults() *ListOptions {
	if o == nil {
		return &ListOptions{Limit: DefaultLimit}
	}
	if o.Limit <= 0 || o.Limit > DefaultLimit {
		o.Limit = DefaultLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
