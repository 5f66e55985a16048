package tracker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"parkingo-client/internal/layout"
	"parkingo-client/internal/lifecycle"
	"parkingo-client/internal/model"
	"parkingo-client/internal/payment"
	"parkingo-client/internal/schedule"
)

// Fetcher is the subset of the API client the view reads from.
type Fetcher interface {
	GetBookingByReference(ctx context.Context, reference string) (*model.Booking, error)
	GetParkingBySlug(ctx context.Context, slug string) (*model.Parking, error)
}

// Options tunes a View. Zero values fall back to the defaults.
type Options struct {
	TickInterval        time.Duration
	PaymentRefetchDelay time.Duration
	Detector            payment.Detector
	// OnUpdate receives a snapshot after every state change. It runs without the view lock held.
	OnUpdate func(Snapshot)
}

const (
	DefaultTickInterval        = time.Second
	DefaultPaymentRefetchDelay = 1500 * time.Millisecond
)

// Snapshot is a point-in-time copy of the view state.
type Snapshot struct {
	Booking     *model.Booking
	Parking     *model.Parking
	Grid        *layout.Grid
	Countdown   lifecycle.Countdown
	Expired     bool
	Loading     bool
	Refreshing  bool
	Ticking     bool
	PaymentOpen bool
	Err         error
	ParkingErr  error
}

// BookedSlot resolves the booked slot on the facility grid, if both are loaded.
func (s Snapshot) BookedSlot() (*model.Slot, bool) {
	if s.Booking == nil || s.Grid == nil {
		return nil, false
	}
	return s.Grid.SlotByID(s.Booking.SlotID)
}

// View tracks one booking by payment reference: it fetches the booking and its
// facility, runs the payment countdown while the booking is unpaid, and
// refetches after expiry or after a payment session closes.
type View struct {
	reference string
	api       Fetcher
	sched     schedule.Scheduler
	opts      Options

	life     context.Context
	teardown context.CancelFunc

	mu         sync.Mutex
	closed     bool
	booking    *model.Booking
	parking    *model.Parking
	grid       *layout.Grid
	countdown  lifecycle.Countdown
	expired    bool
	loading    bool
	refreshing bool
	err        error
	parkingErr error
	ticker     *schedule.Task
	refetch    *schedule.Task
	pay        *payment.Session

	// expiry value for which the post-expiry refetch was already issued
	expiryHandled    time.Time
	expiryHandledSet bool
}

// New creates a view for reference. Call Open to load it.
func New(reference string, api Fetcher, sched schedule.Scheduler, opts Options) *View {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.PaymentRefetchDelay <= 0 {
		opts.PaymentRefetchDelay = DefaultPaymentRefetchDelay
	}
	if opts.Detector.AppDomain == "" && len(opts.Detector.Markers) == 0 {
		opts.Detector = payment.NewDetector(nil, "")
	}
	life, teardown := context.WithCancel(context.Background())
	return &View{
		reference: reference,
		api:       api,
		sched:     sched,
		opts:      opts,
		life:      life,
		teardown:  teardown,
	}
}

// Reference returns the payment reference this view tracks.
func (v *View) Reference() string {
	return v.reference
}

// Open performs the initial load: the booking, then its facility.
func (v *View) Open(ctx context.Context) error {
	if !v.setFlag(&v.loading, true) {
		return ErrClosed
	}
	err := v.fetchBooking(ctx)
	v.setFlag(&v.loading, false)
	if err != nil {
		return err
	}
	v.loadParking(ctx)
	return nil
}

// Refresh refetches the booking and recomputes the expiry state from the fresh record.
func (v *View) Refresh(ctx context.Context) error {
	if !v.setFlag(&v.refreshing, true) {
		return ErrClosed
	}
	err := v.fetchBooking(ctx)
	v.setFlag(&v.refreshing, false)
	if err != nil {
		return err
	}
	v.loadParking(ctx)
	return nil
}

// Watch refreshes the booking every interval until ctx ends, the view is
// closed, or the booking reaches a terminal status. Fetch errors are logged
// and polling continues.
func (v *View) Watch(ctx context.Context, interval time.Duration) error {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		if b := v.Snapshot().Booking; b != nil && lifecycle.IsTerminal(b.Status) {
			log.Printf("Booking %s reached %s, stopping watch", v.reference, b.Status)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-v.life.Done():
			return ErrClosed
		case <-timer.C:
			if err := v.Refresh(ctx); err != nil {
				if errors.Is(err, ErrClosed) {
					return err
				}
				log.Printf("Error refreshing booking %s: %v", v.reference, err)
			}
			timer.Reset(interval)
		}
	}
}

// Pay opens a checkout session against the booking's payment link. It is
// refused when the booking has expired. An already open session is returned as is.
func (v *View) Pay() (*payment.Session, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil, ErrClosed
	}
	b := v.booking
	if b == nil {
		v.mu.Unlock()
		return nil, ErrNotLoaded
	}
	if v.pay != nil && v.pay.IsOpen() {
		sess := v.pay
		v.mu.Unlock()
		return sess, nil
	}
	expired := v.expired
	if b.Status == model.BookingUnpaid && lifecycle.Compute(b.PaymentExpiredAt, v.sched.Now()).Expired {
		expired = true
	}
	if expired {
		v.mu.Unlock()
		return nil, payment.ErrPaymentExpired
	}
	if b.Status != model.BookingUnpaid {
		v.mu.Unlock()
		return nil, ErrNotPayable
	}

	var sess *payment.Session
	sess, err := payment.Open(b.PaymentLink, false, v.opts.Detector, func(reason payment.CloseReason) {
		v.onPaymentClosed(sess, reason)
	})
	if err != nil {
		v.mu.Unlock()
		return nil, err
	}
	v.pay = sess
	snap := v.snapshotLocked()
	v.mu.Unlock()

	log.Printf("Payment session opened for booking %s", v.reference)
	v.notify(snap)
	return sess, nil
}

// Close tears the view down. Timers, the pending refetch and in-flight fetches
// are cancelled, an open payment session is abandoned, and late callbacks become no-ops.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.stopTickerLocked()
	if v.refetch != nil {
		v.refetch.Cancel()
		v.refetch = nil
	}
	sess := v.pay
	v.pay = nil
	v.mu.Unlock()

	v.teardown()
	if sess != nil {
		sess.Abandon()
	}
}

// Snapshot returns a copy of the current state.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *View) snapshotLocked() Snapshot {
	return Snapshot{
		Booking:     v.booking,
		Parking:     v.parking,
		Grid:        v.grid,
		Countdown:   v.countdown,
		Expired:     v.expired,
		Loading:     v.loading,
		Refreshing:  v.refreshing,
		Ticking:     v.ticker != nil,
		PaymentOpen: v.pay != nil && v.pay.IsOpen(),
		Err:         v.err,
		ParkingErr:  v.parkingErr,
	}
}

func (v *View) notify(s Snapshot) {
	if v.opts.OnUpdate != nil {
		v.opts.OnUpdate(s)
	}
}

func (v *View) setFlag(flag *bool, value bool) bool {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return false
	}
	*flag = value
	snap := v.snapshotLocked()
	v.mu.Unlock()
	v.notify(snap)
	return true
}

// bind derives a fetch context that is also cancelled by Close.
func (v *View) bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(v.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (v *View) fetchBooking(ctx context.Context) error {
	fctx, done := v.bind(ctx)
	b, err := v.api.GetBookingByReference(fctx, v.reference)
	done()

	refetch, err := v.applyBooking(b, err)
	if refetch {
		log.Printf("Payment window for booking %s expired, refetching", v.reference)
		if err := v.fetchBooking(v.life); err != nil && !errors.Is(err, ErrClosed) {
			log.Printf("Error refetching expired booking %s: %v", v.reference, err)
		}
	}
	return err
}

// applyBooking adopts a fetched booking. It reports whether the post-expiry
// refetch must be issued by the caller.
func (v *View) applyBooking(b *model.Booking, fetchErr error) (bool, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return false, ErrClosed
	}
	if fetchErr == nil && b == nil {
		fetchErr = ErrNotLoaded
	}
	if fetchErr != nil {
		v.err = fetchErr
		snap := v.snapshotLocked()
		v.mu.Unlock()
		log.Printf("Error fetching booking %s: %v", v.reference, fetchErr)
		v.notify(snap)
		return false, fetchErr
	}

	if v.booking != nil {
		if err := lifecycle.Observe(v.booking.Status, b.Status); err != nil {
			log.Printf("Warning: booking %s: %v", v.reference, err)
		} else if v.booking.Status != b.Status {
			log.Printf("Booking %s moved from %s to %s", v.reference, v.booking.Status, b.Status)
		}
	}
	v.booking = b
	v.err = nil

	refetch := false
	v.stopTickerLocked()
	if b.Status == model.BookingUnpaid {
		refetch = v.tickLocked()
		if !v.expired {
			v.ticker = v.sched.Every(v.opts.TickInterval, v.onTick)
		}
	} else {
		v.expired = b.Status == model.BookingExpired
	}

	snap := v.snapshotLocked()
	v.mu.Unlock()
	v.notify(snap)
	return refetch, nil
}

func (v *View) onTick(task *schedule.Task) {
	v.mu.Lock()
	if v.closed || task != v.ticker {
		v.mu.Unlock()
		return
	}
	refetch := v.tickLocked()
	snap := v.snapshotLocked()
	v.mu.Unlock()

	v.notify(snap)
	if refetch {
		log.Printf("Payment window for booking %s expired, refetching", v.reference)
		if err := v.fetchBooking(v.life); err != nil && !errors.Is(err, ErrClosed) {
			log.Printf("Error refetching expired booking %s: %v", v.reference, err)
		}
	}
}

// tickLocked recomputes the countdown. On expiry it stops the ticker and
// reports true the first time a given expiry value is seen.
func (v *View) tickLocked() bool {
	expiresAt := v.booking.PaymentExpiredAt
	v.countdown = lifecycle.Compute(expiresAt, v.sched.Now())
	if !v.countdown.Expired {
		v.expired = false
		return false
	}

	v.expired = true
	v.stopTickerLocked()
	if v.expiryHandledSet && v.expiryHandled.Equal(expiresAt) {
		return false
	}
	v.expiryHandled = expiresAt
	v.expiryHandledSet = true
	return true
}

func (v *View) stopTickerLocked() {
	if v.ticker != nil {
		v.ticker.Cancel()
		v.ticker = nil
	}
}

func (v *View) onPaymentClosed(sess *payment.Session, reason payment.CloseReason) {
	v.mu.Lock()
	if v.closed || sess != v.pay {
		v.mu.Unlock()
		return
	}
	v.pay = nil
	if v.refetch != nil {
		v.refetch.Cancel()
	}
	v.refetch = v.sched.After(v.opts.PaymentRefetchDelay, v.onDelayedRefetch)
	snap := v.snapshotLocked()
	v.mu.Unlock()

	log.Printf("Payment session for booking %s closed (%s), refetching in %s", v.reference, reason, v.opts.PaymentRefetchDelay)
	v.notify(snap)
}

func (v *View) onDelayedRefetch(task *schedule.Task) {
	v.mu.Lock()
	if v.closed || task != v.refetch {
		v.mu.Unlock()
		return
	}
	v.refetch = nil
	v.mu.Unlock()

	if err := v.Refresh(v.life); err != nil && !errors.Is(err, ErrClosed) {
		log.Printf("Error refetching booking %s after payment: %v", v.reference, err)
	}
}

// loadParking fetches the booked facility when it is missing or its slug changed.
func (v *View) loadParking(ctx context.Context) {
	v.mu.Lock()
	if v.closed || v.booking == nil {
		v.mu.Unlock()
		return
	}
	slug := v.booking.ParkingSlug()
	if slug == "" || (v.parking != nil && v.parking.Slug == slug) {
		v.mu.Unlock()
		return
	}
	v.mu.Unlock()

	fctx, done := v.bind(ctx)
	p, err := v.api.GetParkingBySlug(fctx, slug)
	done()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	if err != nil {
		v.parkingErr = err
		log.Printf("Error fetching parking %s for booking %s: %v", slug, v.reference, err)
	} else {
		v.parking = p
		v.grid = layout.FromParking(p)
		v.parkingErr = nil
	}
	snap := v.snapshotLocked()
	v.mu.Unlock()
	v.notify(snap)
}
