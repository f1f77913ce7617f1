package scheduler

import (
	"errors"
	"fmt"

	"github.com/arnavshah/turni-api-go/pkg/models"
)

var (
	// ErrRangeTooLarge is returned when a range reaches past the allocation horizon.
	ErrRangeTooLarge = errors.New("date range too large")

	// ErrInvalidRange is returned for unparsable dates or an end before the start.
	ErrInvalidRange = errors.New("invalid date range")

	ErrStationNotFound    = models.ErrStationNotFound
	ErrSlotNotFound       = models.ErrSlotNotFound
	ErrAssignmentNotFound = models.ErrAssignmentNotFound
)

// RangeError carries the rejected range and the last date allowed.
type RangeError struct {
	Start string
	End   string
	Limit string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("date range %s..%s ends after %s", e.Start, e.End, e.Limit)
}

func (e *RangeError) Unwrap() error {
	return ErrRangeTooLarge
}
