package draft

import "errors"

var (
	// ErrInvalidPlate is returned when the plate number is blank.
	ErrInvalidPlate = errors.New("draft: plate number is required")

	// ErrInvalidDuration is returned when the duration is not an integer between
	// MinDurationHours and MaxDurationHours, or its fee does not fit in an int64.
	ErrInvalidDuration = errors.New("draft: duration must be at least 3 hours")

	// ErrInvalidStartTime is returned when the start time is not strictly in the future.
	ErrInvalidStartTime = errors.New("draft: start time must be in the future")

	// ErrMissingTarget is returned when the facility or slot is unknown.
	ErrMissingTarget = errors.New("draft: facility and slot are required")
)
