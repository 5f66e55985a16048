package reserve

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"parkingo-client/internal/client"
	"parkingo-client/internal/draft"
	"parkingo-client/internal/layout"
	"parkingo-client/internal/model"
	"parkingo-client/internal/selection"
)

// API is the subset of the remote client the booking flow needs.
type API interface {
	GetParkingBySlug(ctx context.Context, slug string) (*model.Parking, error)
	CreateBooking(ctx context.Context, req model.BookingRequest) (*model.Booking, error)
}

// Navigator moves the user on after a successful booking.
type Navigator interface {
	ShowBooking(reference string)
	ShowHome(message string)
}

// Form is the booking form state.
type Form struct {
	PlateNumber string
	Duration    string
	EntryTime   time.Time
}

// Flow drives slot selection and booking submission for one facility.
type Flow struct {
	slug      string
	api       API
	nav       Navigator
	now       func() time.Time
	validator *draft.Validator
	submits   singleflight.Group
	selection selection.State

	mu         sync.Mutex
	parking    *model.Parking
	grid       *layout.Grid
	loading    bool
	submitting bool
	err        error
	form       Form
}

// NewFlow creates a flow for the facility slug. The form starts with the
// minimum duration and an entry time half an hour from now.
func NewFlow(slug string, api API, nav Navigator, now func() time.Time) *Flow {
	if now == nil {
		now = time.Now
	}
	return &Flow{
		slug:      slug,
		api:       api,
		nav:       nav,
		now:       now,
		validator: draft.NewValidator(now),
		form: Form{
			Duration:  fmt.Sprint(draft.MinDurationHours),
			EntryTime: draft.DefaultEntryTime(now()),
		},
	}
}

// Load fetches the facility, rebuilds the grid and reconciles the selection with the fresh catalog.
func (f *Flow) Load(ctx context.Context) error {
	f.mu.Lock()
	f.loading = true
	f.mu.Unlock()

	p, err := f.api.GetParkingBySlug(ctx, f.slug)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.loading = false
	if err != nil {
		f.err = err
		log.Printf("Error fetching parking %s: %v", f.slug, err)
		return err
	}
	f.parking = p
	f.grid = layout.FromParking(p)
	f.err = nil
	if dups := f.grid.Duplicates(); len(dups) > 0 {
		log.Printf("Warning: parking %s has slots sharing positions %v; they are not selectable", f.slug, dups)
	}
	if f.selection.Reconcile(p.Slots) {
		log.Printf("Selected slot in %s is no longer available, selection cleared", f.slug)
	}
	return nil
}

// SelectAt applies a tap on grid cell (row, col).
func (f *Flow) SelectAt(row, col int) (selection.Outcome, error) {
	f.mu.Lock()
	grid := f.grid
	f.mu.Unlock()
	if grid == nil {
		return selection.Ignored, ErrNotLoaded
	}

	slot, ok := grid.Resolve(row, col)
	if !ok {
		return selection.Ignored, nil
	}
	return f.selection.Select(*slot), nil
}

// SelectByName selects a slot by its display name, as if its grid cell was tapped.
func (f *Flow) SelectByName(name string) (selection.Outcome, error) {
	f.mu.Lock()
	grid := f.grid
	f.mu.Unlock()
	if grid == nil {
		return selection.Ignored, ErrNotLoaded
	}

	slot, ok := grid.SlotByName(name)
	if !ok {
		return selection.Ignored, fmt.Errorf("reserve: no slot named %q", name)
	}
	return f.SelectAt(slot.Row, slot.Col)
}

// Selected returns the selected slot.
func (f *Flow) Selected() (model.Slot, bool) {
	return f.selection.Selected()
}

// FormVisible reports whether the booking form is shown.
func (f *Flow) FormVisible() bool {
	return f.selection.FormVisible()
}

// SetPlate updates the plate number field.
func (f *Flow) SetPlate(plate string) {
	f.mu.Lock()
	f.form.PlateNumber = plate
	f.mu.Unlock()
}

// SetDuration updates the raw duration field in hours.
func (f *Flow) SetDuration(hours string) {
	f.mu.Lock()
	f.form.Duration = hours
	f.mu.Unlock()
}

// PickEntryTime sets the entry time of day. A time not strictly in the future
// today is rejected and the previous value kept.
func (f *Flow) PickEntryTime(t time.Time) error {
	start, err := draft.ChooseStartTime(t, f.now())
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.form.EntryTime = start
	f.mu.Unlock()
	return nil
}

// Form returns the current form values.
func (f *Flow) Form() Form {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.form
}

// FeePreview computes the fee for the current duration field.
func (f *Flow) FeePreview() (int64, error) {
	f.mu.Lock()
	p, raw := f.parking, f.form.Duration
	f.mu.Unlock()
	if p == nil {
		return 0, ErrNotLoaded
	}
	return draft.Preview(p.DefaultFee, raw)
}

// Parking returns the loaded facility.
func (f *Flow) Parking() *model.Parking {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.parking
}

// Grid returns the facility grid.
func (f *Flow) Grid() *layout.Grid {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.grid
}

// Loading reports whether a facility fetch is in progress.
func (f *Flow) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

// Submitting reports whether a booking submission is in progress.
func (f *Flow) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitting
}

// Err returns the last load or submission error.
func (f *Flow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Submit validates the form against the selected slot and creates the
// booking. Identical submissions issued while one is in flight share its
// result. On failure the selection is kept and a *SubmitError is returned.
func (f *Flow) Submit(ctx context.Context) (*model.Booking, error) {
	f.mu.Lock()
	p, form := f.parking, f.form
	f.mu.Unlock()
	if p == nil {
		return nil, ErrNotLoaded
	}
	slot, ok := f.selection.Selected()
	if !ok {
		return nil, ErrNoSelection
	}

	d, err := f.validator.Validate(p, &slot, draft.Input{
		PlateNumber: form.PlateNumber,
		Duration:    form.Duration,
		EntryTime:   form.EntryTime,
	})
	if err != nil {
		return nil, err
	}
	req := d.Request()

	key := fmt.Sprintf("%d|%d|%s|%s|%s", req.ParkingID, req.SlotID, req.PlateNumber, req.StartAt, req.EndAt)
	v, err, shared := f.submits.Do(key, func() (any, error) {
		return f.create(ctx, req, slot)
	})
	if shared {
		log.Printf("Duplicate booking submission for slot %s joined the in-flight request", slot.Name)
	}
	if err != nil {
		return nil, err
	}
	return v.(*model.Booking), nil
}

func (f *Flow) create(ctx context.Context, req model.BookingRequest, slot model.Slot) (*model.Booking, error) {
	f.mu.Lock()
	f.submitting = true
	f.mu.Unlock()

	b, err := f.api.CreateBooking(ctx, req)

	f.mu.Lock()
	f.submitting = false
	if err != nil {
		msg := client.ServerMessage(err)
		if msg == "" {
			msg = DefaultSubmitMessage
		}
		f.err = &SubmitError{Message: msg, Err: err}
		submitErr := f.err
		f.mu.Unlock()
		log.Printf("Booking error for slot %s: %v", slot.Name, err)
		return nil, submitErr
	}
	f.err = nil
	f.mu.Unlock()

	f.selection.Reset()
	if b != nil && b.PaymentReference != "" {
		log.Printf("Booking created for slot %s, reference %s", slot.Name, b.PaymentReference)
		f.nav.ShowBooking(b.PaymentReference)
	} else {
		f.nav.ShowHome(fmt.Sprintf("Parking slot %s booked successfully", slot.Name))
	}
	return b, nil
}

// Leave clears the selection when the user navigates away.
func (f *Flow) Leave() {
	f.selection.Reset()
}
