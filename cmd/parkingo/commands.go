package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"parkingo-client/config"
	"parkingo-client/internal/api"
	"parkingo-client/internal/client"
	"parkingo-client/internal/model"
	"parkingo-client/internal/mw"
	"parkingo-client/internal/payment"
	"parkingo-client/internal/reserve"
	"parkingo-client/internal/schedule"
	"parkingo-client/internal/selection"
	"parkingo-client/internal/session"
	"parkingo-client/internal/tracker"
)

// app holds the wired dependencies shared by the subcommands.
type app struct {
	cfg     *config.Config
	session *session.Session
	api     *client.Client
	metrics *mw.Metrics
	in      io.Reader
	out     io.Writer
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		usage()
		return errors.New("no command given")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		return a.login(ctx)
	case "logout":
		return a.logout(ctx)
	case "whoami":
		return a.whoami(ctx)
	case "parkings":
		return a.parkings(ctx, rest)
	case "parking":
		return a.parking(ctx, rest)
	case "book":
		return a.book(ctx, rest)
	case "bookings":
		return a.bookings(ctx)
	case "booking":
		return a.booking(ctx, rest)
	case "pay":
		return a.pay(ctx, rest)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) requireAuth() error {
	if !a.session.Authenticated() {
		return fmt.Errorf("%w: run `parkingo login` first", session.ErrNotAuthenticated)
	}
	return nil
}

func (a *app) login(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Auth.CallbackAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.Auth.CallbackAddr, err)
	}
	redirectURL := "http://" + ln.Addr().String() + a.cfg.Auth.CallbackPath

	var metricsHandler http.Handler
	if a.metrics != nil {
		metricsHandler = a.metrics.Handler()
	}
	h := api.NewHandler(a.session)
	server := &http.Server{
		Handler: api.NewRouter(h, api.RouterConfig{
			CallbackPath:    a.cfg.Auth.CallbackPath,
			RateLimitPerSec: a.cfg.Auth.RateLimitPerSec,
			Metrics:         metricsHandler,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Callback server listening on %s", ln.Addr())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Callback server: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Callback server shutdown: %v", err)
		}
	}()

	signInURL, err := a.session.SignInURL(ctx, redirectURL)
	if err != nil {
		return fmt.Errorf("failed to get sign-in URL: %w", err)
	}
	fmt.Fprintf(a.out, "Open this URL in your browser to sign in:\n\n  %s\n\nWaiting for the redirect...\n", signInURL)

	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.Auth.LoginTimeout)
	defer cancel()
	select {
	case <-h.Done():
	case <-waitCtx.Done():
		return fmt.Errorf("login not completed: %w", waitCtx.Err())
	}

	user, err := a.session.Validate(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Signed in as %s <%s>\n", user.FullName, user.Email)
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	if err := a.requireAuth(); err != nil {
		return err
	}
	user, err := a.session.Validate(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s <%s> (%s)\n", user.FullName, user.Email, user.Username)
	return nil
}

func (a *app) parkings(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("parkings", flag.ContinueOnError)
	var q client.ParkingQuery
	fs.StringVar(&q.Search, "search", "", "filter by name or address")
	fs.StringVar(&q.SortBy, "sort", "created_at", "sort field")
	fs.StringVar(&q.SortOrder, "order", "desc", "sort order: asc or desc")
	fs.Float64Var(&q.Radius, "radius", 0, "search radius around -lat/-lng")
	fs.Float64Var(&q.Latitude, "lat", 0, "your latitude")
	fs.Float64Var(&q.Longitude, "lng", 0, "your longitude")
	if err := fs.Parse(args); err != nil {
		return err
	}

	parkings, err := a.api.ListParkings(ctx, q)
	if err != nil {
		return err
	}
	return renderParkings(a.out, parkings)
}

func (a *app) parking(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: parkingo parking <slug>")
	}
	p, err := a.api.GetParkingBySlug(ctx, args[0])
	if err != nil {
		return err
	}
	renderParking(a.out, p)
	return nil
}

// cliNavigator shows the screen the booking flow moves on to.
type cliNavigator struct {
	ctx context.Context
	app *app
}

// ShowBooking opens the tracker for a freshly created booking and prints it.
func (n cliNavigator) ShowBooking(reference string) {
	a := n.app
	fmt.Fprintf(a.out, "Booking created, reference %s\n\n", reference)

	view := a.newView(reference, nil)
	defer view.Close()
	if err := view.Open(n.ctx); err != nil {
		log.Printf("Failed to load booking %s: %v", reference, err)
		fmt.Fprintf(a.out, "(could not load the booking: %v)\n", err)
	} else {
		renderBooking(a.out, view.Snapshot(), a.cfg.Booking.Location())
	}
	fmt.Fprintf(a.out, "\nPay with: parkingo pay %s\n", reference)
}

func (n cliNavigator) ShowHome(message string) {
	fmt.Fprintln(n.app.out, message)
}

func (a *app) now() time.Time {
	return time.Now().In(a.cfg.Booking.Location())
}

func (a *app) book(ctx context.Context, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return errors.New("usage: parkingo book <slug> [-slot NAME | -row R -col C] -plate PLATE [-time HH:MM] [-hours N]")
	}
	slug := args[0]

	fs := flag.NewFlagSet("book", flag.ContinueOnError)
	slotName := fs.String("slot", "", "slot name")
	row := fs.Int("row", -1, "grid row of the slot")
	col := fs.Int("col", -1, "grid column of the slot")
	plate := fs.String("plate", "", "vehicle plate number")
	entry := fs.String("time", "", "entry time today, HH:MM (default: in 30 minutes)")
	hours := fs.String("hours", "", "duration in whole hours (minimum 3)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if err := a.requireAuth(); err != nil {
		return err
	}

	flow := reserve.NewFlow(slug, a.api, cliNavigator{ctx: ctx, app: a}, a.now)
	if err := flow.Load(ctx); err != nil {
		return err
	}

	var (
		outcome selection.Outcome
		err     error
	)
	switch {
	case *slotName != "":
		outcome, err = flow.SelectByName(*slotName)
	case *row >= 0 && *col >= 0:
		outcome, err = flow.SelectAt(*row, *col)
	default:
		renderParking(a.out, flow.Parking())
		return errors.New("choose a slot with -slot or -row/-col")
	}
	if err != nil {
		return err
	}
	if outcome != selection.Selected {
		return fmt.Errorf("slot not selectable (%s)", outcome)
	}

	flow.SetPlate(*plate)
	if *hours != "" {
		flow.SetDuration(*hours)
	}
	if *entry != "" {
		picked, err := time.ParseInLocation("15:04", *entry, a.cfg.Booking.Location())
		if err != nil {
			return fmt.Errorf("invalid -time %q: %w", *entry, err)
		}
		if err := flow.PickEntryTime(picked); err != nil {
			return err
		}
	}

	slot, _ := flow.Selected()
	form := flow.Form()
	if fee, err := flow.FeePreview(); err == nil {
		fmt.Fprintf(a.out, "Booking slot %s at %s for %s hours from %s, fee %s\n",
			slot.Name, flow.Parking().Name, form.Duration, form.EntryTime.Format("15:04"), formatFee(fee))
	}

	_, err = flow.Submit(ctx)
	return err
}

func (a *app) bookings(ctx context.Context) error {
	if err := a.requireAuth(); err != nil {
		return err
	}
	bookings, err := a.api.ListBookings(ctx)
	if err != nil {
		return err
	}
	return renderBookings(a.out, bookings, a.cfg.Booking.Location())
}

func (a *app) newView(reference string, onUpdate func(tracker.Snapshot)) *tracker.View {
	return tracker.New(reference, a.api, schedule.Real{}, tracker.Options{
		TickInterval:        a.cfg.Booking.TickInterval,
		PaymentRefetchDelay: a.cfg.Payment.RefetchDelay,
		Detector:            payment.NewDetector(a.cfg.Payment.SuccessMarkers, a.cfg.Payment.AppDomain),
		OnUpdate:            onUpdate,
	})
}

func (a *app) booking(ctx context.Context, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return errors.New("usage: parkingo booking <reference> [-watch]")
	}
	reference := args[0]
	fs := flag.NewFlagSet("booking", flag.ContinueOnError)
	watch := fs.Bool("watch", false, "keep polling until the booking is final")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if err := a.requireAuth(); err != nil {
		return err
	}

	var statuses statusPrinter
	if *watch {
		statuses.out = a.out
	}
	view := a.newView(reference, statuses.observe)
	defer view.Close()

	if err := view.Open(ctx); err != nil {
		return err
	}
	renderBooking(a.out, view.Snapshot(), a.cfg.Booking.Location())
	if !*watch {
		return nil
	}

	err := view.Watch(ctx, a.cfg.Booking.WatchInterval)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// statusPrinter prints a line whenever the observed booking status changes.
type statusPrinter struct {
	out  io.Writer
	mu   sync.Mutex
	last string
}

func (p *statusPrinter) observe(s tracker.Snapshot) {
	if p.out == nil || s.Booking == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	status := string(s.Booking.Status)
	if s.Expired {
		status += " (payment window expired)"
	}
	if status == p.last {
		return
	}
	if p.last != "" {
		fmt.Fprintf(p.out, "%s  status: %s\n", time.Now().Format("15:04:05"), status)
	}
	p.last = status
}

// refetchWaiter is signalled once a refresh finishes.
type refetchWaiter struct {
	mu         sync.Mutex
	refreshing bool
	once       sync.Once
	done       chan struct{}
}

func newRefetchWaiter() *refetchWaiter {
	return &refetchWaiter{done: make(chan struct{})}
}

func (w *refetchWaiter) observe(s tracker.Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if s.Refreshing {
		w.refreshing = true
		return
	}
	if w.refreshing {
		w.once.Do(func() { close(w.done) })
	}
}

func (a *app) pay(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: parkingo pay <reference>")
	}
	if err := a.requireAuth(); err != nil {
		return err
	}

	waiter := newRefetchWaiter()
	view := a.newView(args[0], waiter.observe)
	defer view.Close()

	if err := view.Open(ctx); err != nil {
		return err
	}
	snap := view.Snapshot()
	if snap.Booking.Status == model.BookingUnpaid && !snap.Expired {
		fmt.Fprintf(a.out, "Total %s, pay within %s\n", formatFee(snap.Booking.TotalFee), snap.Countdown)
	}

	sess, err := view.Pay()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Checkout: %s\n", sess.Link())
	fmt.Fprintln(a.out, "Paste each URL the checkout navigates to. An empty line closes the checkout.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for sess.IsOpen() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok || line == "" {
				sess.Close()
				continue
			}
			if sess.Navigate(line) {
				fmt.Fprintln(a.out, "Payment completed, checking booking status...")
			}
		}
	}

	timeout := a.cfg.Payment.RefetchDelay + a.cfg.API.Timeout
	select {
	case <-waiter.done:
	case <-time.After(timeout):
		return fmt.Errorf("booking %s was not refreshed within %s", args[0], timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	final := view.Snapshot()
	if final.Err != nil {
		return final.Err
	}
	fmt.Fprintf(a.out, "Booking %s is %s\n", args[0], final.Booking.Status)
	return nil
}
