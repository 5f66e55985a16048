package lifecycle

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/statekit"

	"parkingo-client/internal/model"
)

// ErrUnexpectedTransition is reported when the server moves a booking along an
// edge the client does not know about. The server state is still adopted.
var ErrUnexpectedTransition = errors.New("lifecycle: unexpected booking status transition")

// AllowedTransitions lists the status edges a booking can take on the server.
var AllowedTransitions = map[model.BookingStatus][]model.BookingStatus{
	model.BookingUnpaid: {
		model.BookingPaid,
		model.BookingExpired,
		model.BookingCancelled,
	},
	model.BookingPaid: {
		model.BookingCompleted,
	},
	model.BookingCancelled: {}, // Terminal state
	model.BookingExpired:   {}, // Terminal state
	model.BookingCompleted: {}, // Terminal state
}

// Known reports whether s is a status this client understands.
func Known(s model.BookingStatus) bool {
	_, ok := AllowedTransitions[s]
	return ok
}

// IsTerminal reports whether no further transition can leave s.
func IsTerminal(s model.BookingStatus) bool {
	next, ok := AllowedTransitions[s]
	return ok && len(next) == 0
}

// machines holds one status machine per starting status. Each status is a
// state and each edge is taken by an event named after its target status.
var machines = map[model.BookingStatus]func(to model.BookingStatus) bool{}

func init() {
	for initial := range AllowedTransitions {
		mb := statekit.NewMachine[struct{}]("booking_status").
			WithInitial(statekit.StateID(initial))
		for from, next := range AllowedTransitions {
			sb := mb.State(statekit.StateID(from))
			for _, to := range next {
				sb = sb.On(statekit.EventType(to)).Target(statekit.StateID(to)).End()
			}
			mb = sb.Done()
		}
		machine, err := mb.Build()
		if err != nil {
			panic(fmt.Sprintf("lifecycle: invalid status machine from %s: %v", initial, err))
		}

		machines[initial] = func(to model.BookingStatus) bool {
			interp := statekit.NewInterpreter(machine)
			interp.Start()
			interp.Send(statekit.Event{Type: statekit.EventType(to)})
			return interp.State().Value == statekit.StateID(to)
		}
	}
}

// CanTransition checks whether the server may move a booking from one status to another.
// Observing the same status twice is always allowed.
func CanTransition(from, to model.BookingStatus) bool {
	if from == to {
		return Known(from)
	}
	accepts, ok := machines[from]
	return ok && accepts(to)
}

// Observe validates a status change seen between two fetches. An empty prev
// means the booking was not loaded before.
func Observe(prev, next model.BookingStatus) error {
	if prev == "" {
		if !Known(next) {
			return fmt.Errorf("%w: unknown status %q", ErrUnexpectedTransition, next)
		}
		return nil
	}
	if !CanTransition(prev, next) {
		return fmt.Errorf("%w: %s -> %s", ErrUnexpectedTransition, prev, next)
	}
	return nil
}
