package reserve

import (
	"errors"
	"fmt"
)

var (
	// ErrNotLoaded is returned before the facility has been fetched.
	ErrNotLoaded = errors.New("reserve: parking not loaded")

	// ErrNoSelection is returned by Submit when no slot is selected.
	ErrNoSelection = errors.New("reserve: no slot selected")
)

// DefaultSubmitMessage is shown when the server gives no reason for a failed booking.
const DefaultSubmitMessage = "Failed to book parking slot"

// SubmitError is a failed booking submission carrying the message shown to the user.
type SubmitError struct {
	Message string
	Err     error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("Failed to book slot: %s", e.Message)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}
