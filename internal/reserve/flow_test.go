package reserve

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkingo-client/internal/client"
	"parkingo-client/internal/draft"
	"parkingo-client/internal/model"
	"parkingo-client/internal/selection"
)

var wib = time.FixedZone("WIB", 7*60*60)

func fixedNow() time.Time {
	return time.Date(2026, 10, 15, 10, 0, 0, 0, wib)
}

// mockAPI serves one facility and records booking requests.
type mockAPI struct {
	mu        sync.Mutex
	parking   *model.Parking
	loadErr   error
	requests  []model.BookingRequest
	response  *model.Booking
	createErr error
	gate      chan struct{}
	entered   chan struct{}
}

func (m *mockAPI) GetParkingBySlug(ctx context.Context, slug string) (*model.Parking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.parking, nil
}

func (m *mockAPI) CreateBooking(ctx context.Context, req model.BookingRequest) (*model.Booking, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	gate, entered := m.gate, m.entered
	m.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.response, m.createErr
}

func (m *mockAPI) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// mockNavigator records where the flow sent the user.
type mockNavigator struct {
	mu       sync.Mutex
	bookings []string
	homes    []string
}

func (n *mockNavigator) ShowBooking(reference string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bookings = append(n.bookings, reference)
}

func (n *mockNavigator) ShowHome(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.homes = append(n.homes, message)
}

func mallA() *model.Parking {
	return &model.Parking{
		ID:         5,
		Slug:       "mall-a",
		DefaultFee: 5000,
		Layout: [][]model.LayoutCell{
			{model.CellSlot, model.CellSlot, model.CellRoad},
			{model.CellSlot, model.CellRoad, model.CellExit},
		},
		Slots: []model.Slot{
			{ID: 9, Name: "A1", Row: 0, Col: 0, Status: model.SlotAvailable},
			{ID: 10, Name: "A2", Row: 0, Col: 1, Status: model.SlotBooked},
			{ID: 11, Name: "B1", Row: 1, Col: 0, Status: model.SlotAvailable},
		},
	}
}

func newFlow(t *testing.T, api *mockAPI) (*Flow, *mockNavigator) {
	t.Helper()
	nav := &mockNavigator{}
	f := NewFlow("mall-a", api, nav, fixedNow)
	require.NoError(t, f.Load(context.Background()))
	return f, nav
}

func fillForm(t *testing.T, f *Flow) {
	t.Helper()
	f.SetPlate("B 1")
	f.SetDuration("3")
	require.NoError(t, f.PickEntryTime(time.Date(2000, 1, 1, 12, 15, 0, 0, wib)))
}

func TestFlow_Defaults(t *testing.T) {
	f := NewFlow("mall-a", &mockAPI{parking: mallA()}, &mockNavigator{}, fixedNow)

	form := f.Form()
	assert.Equal(t, "3", form.Duration)
	assert.Equal(t, fixedNow().Add(30*time.Minute), form.EntryTime)
	assert.False(t, f.FormVisible())

	_, err := f.FeePreview()
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = f.SelectAt(0, 0)
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestFlow_SubmitNavigatesToBooking(t *testing.T) {
	api := &mockAPI{parking: mallA(), response: &model.Booking{ID: 1, PaymentReference: "abc123", Status: model.BookingUnpaid}}
	f, nav := newFlow(t, api)

	outcome, err := f.SelectAt(0, 0)
	require.NoError(t, err)
	assert.Equal(t, selection.Selected, outcome)
	assert.True(t, f.FormVisible())
	fillForm(t, f)

	fee, err := f.FeePreview()
	require.NoError(t, err)
	assert.Equal(t, int64(15000), fee)

	b, err := f.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", b.PaymentReference)

	require.Len(t, api.requests, 1)
	assert.Equal(t, model.BookingRequest{
		PlateNumber: "B 1",
		StartAt:     "2026-10-15T05:15:00.000Z",
		EndAt:       "2026-10-15T08:15:00.000Z",
		ParkingID:   5,
		SlotID:      9,
	}, api.requests[0])
	assert.Equal(t, []string{"abc123"}, nav.bookings)
	assert.Empty(t, nav.homes)
	assert.False(t, f.FormVisible(), "selection resets after booking")
	assert.NoError(t, f.Err())
}

func TestFlow_SubmitWithoutReferenceGoesHome(t *testing.T) {
	api := &mockAPI{parking: mallA(), response: &model.Booking{ID: 1}}
	f, nav := newFlow(t, api)
	_, err := f.SelectByName("B1")
	require.NoError(t, err)
	fillForm(t, f)

	_, err = f.Submit(context.Background())
	require.NoError(t, err)
	assert.Empty(t, nav.bookings)
	assert.Equal(t, []string{"Parking slot B1 booked successfully"}, nav.homes)
}

func TestFlow_SubmitFailureKeepsSelection(t *testing.T) {
	testCases := []struct {
		name        string
		createErr   error
		expectedMsg string
	}{
		{
			name:        "server message",
			createErr:   &client.APIError{StatusCode: http.StatusConflict, Message: "slot already booked"},
			expectedMsg: "slot already booked",
		},
		{
			name:        "no message",
			createErr:   &client.APIError{StatusCode: http.StatusInternalServerError},
			expectedMsg: DefaultSubmitMessage,
		},
		{
			name:        "network failure",
			createErr:   errors.New("dial tcp: connection refused"),
			expectedMsg: DefaultSubmitMessage,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			api := &mockAPI{parking: mallA(), createErr: tc.createErr}
			f, nav := newFlow(t, api)
			_, err := f.SelectAt(0, 0)
			require.NoError(t, err)
			fillForm(t, f)

			_, err = f.Submit(context.Background())

			var submitErr *SubmitError
			require.ErrorAs(t, err, &submitErr)
			assert.Equal(t, tc.expectedMsg, submitErr.Message)
			assert.ErrorIs(t, err, tc.createErr)
			assert.Equal(t, err, f.Err())
			assert.True(t, f.FormVisible())
			assert.Empty(t, nav.bookings)
			assert.Empty(t, nav.homes)
			assert.False(t, f.Submitting())
		})
	}
}

func TestFlow_SubmitValidation(t *testing.T) {
	testCases := []struct {
		name        string
		plate       string
		duration    string
		expectedErr error
	}{
		{name: "empty plate", plate: "  ", duration: "3", expectedErr: draft.ErrInvalidPlate},
		{name: "short duration", plate: "B 1", duration: "2", expectedErr: draft.ErrInvalidDuration},
		{name: "plate checked first", plate: "", duration: "2", expectedErr: draft.ErrInvalidPlate},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			api := &mockAPI{parking: mallA()}
			f, _ := newFlow(t, api)
			_, err := f.SelectAt(0, 0)
			require.NoError(t, err)
			f.SetPlate(tc.plate)
			f.SetDuration(tc.duration)

			_, err = f.Submit(context.Background())
			assert.ErrorIs(t, err, tc.expectedErr)
			assert.Zero(t, api.requestCount())
		})
	}
}

func TestFlow_SubmitRequiresSelection(t *testing.T) {
	api := &mockAPI{parking: mallA()}
	f, _ := newFlow(t, api)
	fillForm(t, f)

	_, err := f.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNoSelection)
}

func TestFlow_PickEntryTimeKeepsPrevious(t *testing.T) {
	f, _ := newFlow(t, &mockAPI{parking: mallA()})
	before := f.Form().EntryTime

	err := f.PickEntryTime(time.Date(2000, 1, 1, 10, 0, 0, 0, wib))
	assert.ErrorIs(t, err, draft.ErrInvalidStartTime)
	assert.Equal(t, before, f.Form().EntryTime)

	require.NoError(t, f.PickEntryTime(time.Date(2000, 1, 1, 10, 1, 0, 0, wib)))
	assert.Equal(t, time.Date(2026, 10, 15, 10, 1, 0, 0, wib), f.Form().EntryTime)
}

func TestFlow_Selection(t *testing.T) {
	f, _ := newFlow(t, &mockAPI{parking: mallA()})

	outcome, _ := f.SelectAt(0, 1)
	assert.Equal(t, selection.Ignored, outcome, "booked slot")
	outcome, _ = f.SelectAt(0, 2)
	assert.Equal(t, selection.Ignored, outcome, "road cell")
	outcome, _ = f.SelectAt(7, 7)
	assert.Equal(t, selection.Ignored, outcome, "outside the grid")
	assert.False(t, f.FormVisible())

	outcome, _ = f.SelectAt(0, 0)
	assert.Equal(t, selection.Selected, outcome)
	outcome, _ = f.SelectByName("B1")
	assert.Equal(t, selection.Replaced, outcome)
	outcome, _ = f.SelectByName("B1")
	assert.Equal(t, selection.Deselected, outcome)

	_, err := f.SelectByName("Z9")
	assert.Error(t, err)

	f.SelectAt(0, 0)
	f.Leave()
	assert.False(t, f.FormVisible())
}

func TestFlow_ReloadDropsBookedSelection(t *testing.T) {
	api := &mockAPI{parking: mallA()}
	f, _ := newFlow(t, api)
	f.SelectAt(0, 0)

	reloaded := mallA()
	reloaded.Slots[0].Status = model.SlotBooked
	api.mu.Lock()
	api.parking = reloaded
	api.mu.Unlock()

	require.NoError(t, f.Load(context.Background()))
	assert.False(t, f.FormVisible())
}

func TestFlow_LoadError(t *testing.T) {
	boom := errors.New("network down")
	f := NewFlow("mall-a", &mockAPI{loadErr: boom}, &mockNavigator{}, fixedNow)

	assert.ErrorIs(t, f.Load(context.Background()), boom)
	assert.ErrorIs(t, f.Err(), boom)
	assert.False(t, f.Loading())
	assert.Nil(t, f.Grid())
}

func TestFlow_DuplicateSubmitsShareOneRequest(t *testing.T) {
	api := &mockAPI{
		parking:  mallA(),
		response: &model.Booking{ID: 1, PaymentReference: "abc123"},
		gate:     make(chan struct{}),
		entered:  make(chan struct{}, 2),
	}
	f, nav := newFlow(t, api)
	f.SelectAt(0, 0)
	fillForm(t, f)

	results := make(chan *model.Booking, 2)
	submit := func() {
		b, err := f.Submit(context.Background())
		assert.NoError(t, err)
		results <- b
	}

	go submit()
	<-api.entered
	assert.True(t, f.Submitting())
	go submit()
	// Give the second submission time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(api.gate)

	first, second := <-results, <-results
	assert.Same(t, first, second)
	assert.Equal(t, 1, api.requestCount())
	assert.Equal(t, []string{"abc123"}, nav.bookings)
}

func TestFlow_SequentialRetryIsNotDeduplicated(t *testing.T) {
	api := &mockAPI{parking: mallA(), createErr: &client.APIError{StatusCode: http.StatusBadGateway}}
	f, _ := newFlow(t, api)
	f.SelectAt(0, 0)
	fillForm(t, f)

	_, err := f.Submit(context.Background())
	require.Error(t, err)
	_, err = f.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, api.requestCount())
}
