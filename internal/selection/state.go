package selection

import (
	"sync"

	"github.com/felixgeelhaar/statekit"

	"parkingo-client/internal/model"
)

// Outcome describes what a Select call did.
type Outcome int

const (
	Ignored Outcome = iota
	Selected
	Replaced
	Deselected
)

func (o Outcome) String() string {
	switch o {
	case Selected:
		return "selected"
	case Replaced:
		return "replaced"
	case Deselected:
		return "deselected"
	default:
		return "ignored"
	}
}

// State IDs
const (
	StateUnselected statekit.StateID = "unselected"
	StateSelected   statekit.StateID = "selected"
)

// Event types
const (
	EventSelect   statekit.EventType = "SELECT"
	EventReplace  statekit.EventType = "REPLACE"
	EventDeselect statekit.EventType = "DESELECT"
	EventRefresh  statekit.EventType = "REFRESH"
	EventReset    statekit.EventType = "RESET"
)

const (
	actionStore    statekit.ActionType = "store"
	actionClear    statekit.ActionType = "clear"
	actionShowForm statekit.ActionType = "showForm"
	actionHideForm statekit.ActionType = "hideForm"

	guardAvailable statekit.GuardType = "available"
)

// Context is what the selection machine carries between events. Slot events
// carry a model.Slot payload.
type Context struct {
	Slot        *model.Slot
	FormVisible bool
}

// machine is shared by every State; each State runs its own interpreter.
var machine, errMachine = statekit.NewMachine[Context]("slot_selection").
	WithInitial(StateUnselected).
	WithAction(actionStore, func(ctx *Context, e statekit.Event) {
		slot := e.Payload.(model.Slot)
		ctx.Slot = &slot
	}).
	WithAction(actionClear, func(ctx *Context, e statekit.Event) {
		ctx.Slot = nil
	}).
	WithAction(actionShowForm, func(ctx *Context, e statekit.Event) {
		ctx.FormVisible = true
	}).
	WithAction(actionHideForm, func(ctx *Context, e statekit.Event) {
		ctx.FormVisible = false
	}).
	WithGuard(guardAvailable, func(ctx Context, e statekit.Event) bool {
		slot, ok := e.Payload.(model.Slot)
		return ok && slot.IsAvailable()
	}).
	State(StateUnselected).
		On(EventSelect).Target(StateSelected).Guard(guardAvailable).Do(actionStore).
	Done().
	State(StateSelected).
		OnEntry(actionShowForm).
		OnExit(actionHideForm).
		On(EventReplace).Target(StateSelected).Guard(guardAvailable).Do(actionStore).End().
		On(EventRefresh).Target(StateSelected).Do(actionStore).End().
		On(EventDeselect).Target(StateUnselected).Guard(guardAvailable).Do(actionClear).End().
		On(EventReset).Target(StateUnselected).Do(actionClear).
	Done().
	Build()

func init() {
	if errMachine != nil {
		panic("selection: invalid state machine: " + errMachine.Error())
	}
}

// State holds at most one tentatively selected slot. The zero value is Unselected.
type State struct {
	mu     sync.Mutex
	interp *statekit.Interpreter[Context]
}

func (s *State) machineLocked() *statekit.Interpreter[Context] {
	if s.interp == nil {
		s.interp = statekit.NewInterpreter(machine)
		s.interp.Start()
	}
	return s.interp
}

func (s *State) contextLocked() Context {
	return s.machineLocked().State().Context
}

// Select applies the user's tap on a slot. Taps on slots that are not
// available are ignored by the machine's guard.
func (s *State) Select(slot model.Slot) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.machineLocked()
	held := m.State().Context.Slot

	event := EventSelect
	switch {
	case held != nil && held.ID == slot.ID:
		event = EventDeselect
	case held != nil:
		event = EventReplace
	}
	m.Send(statekit.Event{Type: event, Payload: slot})

	if m.State().Context.Slot == held {
		return Ignored
	}
	switch event {
	case EventDeselect:
		return Deselected
	case EventReplace:
		return Replaced
	default:
		return Selected
	}
}

// Selected returns a copy of the selected slot.
func (s *State) Selected() (model.Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	held := s.contextLocked().Slot
	if held == nil {
		return model.Slot{}, false
	}
	return *held, true
}

// FormVisible reports whether the booking form is shown.
func (s *State) FormVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contextLocked().FormVisible
}

// Current returns the machine state.
func (s *State) Current() statekit.StateID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machineLocked().State().Value
}

// Reset returns to Unselected.
func (s *State) Reset() {
	s.mu.Lock()
	s.machineLocked().Send(statekit.Event{Type: EventReset})
	s.mu.Unlock()
}

// Reconcile aligns the selection with a freshly fetched catalog. The selection
// is dropped when its slot disappeared or is no longer available; otherwise the
// held record is replaced by the fresh one. It reports whether the selection was dropped.
func (s *State) Reconcile(slots []model.Slot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.machineLocked()
	held := m.State().Context.Slot
	if held == nil {
		return false
	}
	for _, fresh := range slots {
		if fresh.ID != held.ID {
			continue
		}
		if !fresh.IsAvailable() {
			break
		}
		m.Send(statekit.Event{Type: EventRefresh, Payload: fresh})
		return false
	}
	m.Send(statekit.Event{Type: EventReset})
	return true
}
