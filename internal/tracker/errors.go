package tracker

import "errors"

var (
	// ErrClosed is returned by operations on a view that has been torn down.
	ErrClosed = errors.New("tracker: view closed")

	// ErrNotLoaded is returned when the booking has not been fetched yet.
	ErrNotLoaded = errors.New("tracker: booking not loaded")

	// ErrNotPayable is returned by Pay when the booking is no longer awaiting payment.
	ErrNotPayable = errors.New("tracker: booking is not awaiting payment")
)
