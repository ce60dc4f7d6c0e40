package search

import (
	"fmt"

	"mercator-hq/archivist/pkg/archive"
)

const (
	// DefaultLimit is the number of records returned when a query sets none.
	DefaultLimit = 100

	// MaxLimit is the largest number of records a single query may return.
	MaxLimit = 10000
)

// Validate checks a query against the given maximum limit and returns an
// error matching archive.ErrInvalidQuery if any parameter is invalid.
func Validate(q *archive.SearchQuery, maxLimit int) error {
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}

	if q.Limit < 0 {
		return archive.NewQueryError(q, fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > maxLimit {
		return archive.NewQueryError(q, fmt.Errorf("limit must be <= %d, got %d", maxLimit, q.Limit))
	}

	if q.StartDate != nil && q.EndDate != nil && q.StartDate.After(*q.EndDate) {
		return archive.NewQueryError(q, fmt.Errorf("start_date must not be after end_date"))
	}

	if q.Table != "" {
		if err := archive.ValidateIdentifier(q.Table); err != nil {
			return archive.NewQueryError(q, err)
		}
	}

	return nil
}
