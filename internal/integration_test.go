package internal

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"parkingo-client/config"
	"parkingo-client/internal/api"
	"parkingo-client/internal/client"
	"parkingo-client/internal/db"
	"parkingo-client/internal/model"
	"parkingo-client/internal/mw"
	"parkingo-client/internal/payment"
	"parkingo-client/internal/reserve"
	"parkingo-client/internal/schedule"
	"parkingo-client/internal/session"
	"parkingo-client/internal/store"
	"parkingo-client/internal/tracker"
)

// backend is an in-memory stand-in for the ParkinGo API.
type backend struct {
	mu         sync.Mutex
	url        string
	booking    *model.Booking
	requestIDs []string
}

func (b *backend) router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		b.mu.Lock()
		b.requestIDs = append(b.requestIDs, c.GetHeader(mw.RequestIDHeader))
		b.mu.Unlock()
		c.Next()
	})
	authed := func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Bearer tok-1" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
			return
		}
		c.Next()
	}

	r.GET("/v1/authenticate", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"url": "https://accounts.example/o?redirect=" + c.Query("redirect_url")}})
	})
	r.GET("/v1/users/me", authed, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": model.User{ID: 7, Username: "rina", FullName: "Rina", Email: "rina@example.com"}})
	})
	r.GET("/v1/parkings/slug/:slug", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": model.Parking{
			ID: 5, Slug: "mall-a", Name: "Mall A", DefaultFee: 5000,
			Layout: [][]model.LayoutCell{{model.CellEntrance, model.CellSlot, model.CellSlot}},
			Slots: []model.Slot{
				{ID: 9, Name: "A1", Row: 0, Col: 1, Status: model.SlotAvailable},
				{ID: 10, Name: "A2", Row: 0, Col: 2, Status: model.SlotBooked},
			},
		}})
	})
	r.POST("/v1/bookings", authed, func(c *gin.Context) {
		var req model.BookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
		start, _ := time.Parse(time.RFC3339, req.StartAt)
		end, _ := time.Parse(time.RFC3339, req.EndAt)
		b.mu.Lock()
		b.booking = &model.Booking{
			ID: 1, ParkingID: req.ParkingID, SlotID: req.SlotID, PlateNumber: req.PlateNumber,
			StartAt: start, EndAt: end, TotalHours: int(end.Sub(start).Hours()),
			TotalFee:         5000 * int64(end.Sub(start).Hours()),
			PaymentReference: "abc123",
			PaymentLink:      b.url + "/checkout/abc123",
			PaymentExpiredAt: time.Now().Add(15 * time.Minute),
			Status:           model.BookingUnpaid,
			Parking:          &model.Parking{ID: 5, Slug: "mall-a", Name: "Mall A"},
		}
		booking := *b.booking
		b.mu.Unlock()
		c.JSON(http.StatusCreated, gin.H{"data": booking})
	})
	r.GET("/v1/bookings/reference/:ref", authed, func(c *gin.Context) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.booking == nil || c.Param("ref") != b.booking.PaymentReference {
			c.JSON(http.StatusNotFound, gin.H{"message": "booking not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": *b.booking})
	})
	return r
}

func (b *backend) markPaid() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.booking.Status = model.BookingPaid
}

type recordingNav struct {
	reference string
	home      string
}

func (n *recordingNav) ShowBooking(reference string) { n.reference = reference }
func (n *recordingNav) ShowHome(message string)      { n.home = message }

// TestBookingLifecycle walks a user from sign-in through booking and payment
// against a fake API, with the session token persisted in SQLite.
func TestBookingLifecycle(t *testing.T) {
	// --- Test Setup ---
	be := &backend{}
	server := httptest.NewServer(be.router())
	defer server.Close()
	be.url = server.URL

	gormDB, err := db.Init(&config.DatabaseConfig{DSN: ":memory:"})
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	defer sqlDB.Close()
	tokenStore := store.NewGormStore(gormDB)

	apiCfg := config.APIConfig{BaseURL: server.URL, Timeout: 5 * time.Second}
	transport := mw.RequestID(mw.RateLimited(http.DefaultTransport, mw.NewKeyedLimiter(rate.Inf, 1)))

	var sess *session.Session
	apiClient := client.New(apiCfg, client.TokenFunc(func() string { return sess.Token() }), transport)
	sess = session.New(tokenStore, apiClient)
	ctx := context.Background()

	t.Run("Sign in through the callback server", func(t *testing.T) {
		signInURL, err := sess.SignInURL(ctx, "http://127.0.0.1:8765/auth/callback")
		require.NoError(t, err)
		assert.Contains(t, signInURL, "redirect=http://127.0.0.1:8765/auth/callback")

		h := api.NewHandler(sess)
		router := api.NewRouter(h, api.RouterConfig{CallbackPath: "/auth/callback", RateLimitPerSec: 10})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/auth/callback?token=tok-1", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)

		select {
		case <-h.Done():
		default:
			t.Fatal("callback did not signal completion")
		}
		assert.True(t, sess.Authenticated())

		user, err := sess.Validate(ctx)
		require.NoError(t, err)
		assert.Equal(t, "rina", user.Username)
	})

	t.Run("Token survives a restart", func(t *testing.T) {
		restarted := session.New(tokenStore, apiClient)
		require.NoError(t, restarted.Restore(ctx))
		assert.Equal(t, "tok-1", restarted.Token())
	})

	t.Run("Book an available slot", func(t *testing.T) {
		nav := &recordingNav{}
		y, m, d := time.Now().Date()
		noon := time.Date(y, m, d, 12, 0, 0, 0, time.Local)
		flow := reserve.NewFlow("mall-a", apiClient, nav, func() time.Time { return noon })
		require.NoError(t, flow.Load(ctx))

		_, err := flow.SelectByName("A2")
		require.NoError(t, err)
		assert.False(t, flow.FormVisible(), "booked slot must not be selectable")

		_, err = flow.SelectByName("A1")
		require.NoError(t, err)
		assert.True(t, flow.FormVisible())

		flow.SetPlate("B 1234 XYZ")
		flow.SetDuration("4")
		fee, err := flow.FeePreview()
		require.NoError(t, err)
		assert.Equal(t, int64(20000), fee)

		b, err := flow.Submit(ctx)
		require.NoError(t, err)
		assert.Equal(t, "abc123", b.PaymentReference)
		assert.Equal(t, "abc123", nav.reference)
		_, selected := flow.Selected()
		assert.False(t, selected)

		be.mu.Lock()
		assert.Equal(t, int64(9), be.booking.SlotID)
		assert.Equal(t, 4, be.booking.TotalHours)
		be.mu.Unlock()
	})

	t.Run("Pay and observe the status change", func(t *testing.T) {
		clock := schedule.NewManual(time.Now())
		view := tracker.New("abc123", apiClient, clock, tracker.Options{
			PaymentRefetchDelay: 1500 * time.Millisecond,
			Detector:            payment.NewDetector(nil, ""),
		})
		defer view.Close()

		require.NoError(t, view.Open(ctx))
		snap := view.Snapshot()
		assert.Equal(t, model.BookingUnpaid, snap.Booking.Status)
		assert.True(t, snap.Ticking)
		assert.False(t, snap.Expired)
		require.NotNil(t, snap.Parking, "facility should load from the booking's slug")
		slot, ok := snap.BookedSlot()
		require.True(t, ok)
		assert.Equal(t, "A1", slot.Name)

		checkout, err := view.Pay()
		require.NoError(t, err)
		assert.False(t, checkout.Navigate(checkout.Link()), "the checkout page itself is not a success")

		be.markPaid()
		assert.True(t, checkout.Navigate(fmt.Sprintf("%s/checkout/abc123/finish?status=success", server.URL)))
		assert.False(t, view.Snapshot().PaymentOpen)

		clock.Advance(time.Second)
		assert.Equal(t, model.BookingUnpaid, view.Snapshot().Booking.Status, "refetch waits for the delay")

		clock.Advance(500 * time.Millisecond)
		snap = view.Snapshot()
		assert.Equal(t, model.BookingPaid, snap.Booking.Status)
		assert.False(t, snap.Ticking)
	})

	t.Run("Every request carries a request id", func(t *testing.T) {
		be.mu.Lock()
		defer be.mu.Unlock()
		assert.NotEmpty(t, be.requestIDs)
		for _, id := range be.requestIDs {
			assert.NotEmpty(t, id)
		}
	})

	t.Run("Logout removes the persisted token", func(t *testing.T) {
		require.NoError(t, sess.Logout(ctx))
		_, err := tokenStore.LoadToken(ctx)
		assert.ErrorIs(t, err, store.ErrNoToken)
	})
}
