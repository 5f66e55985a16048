package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"parkingo-client/config"
	"parkingo-client/internal/model"
)

// TokenSource supplies the bearer token for authenticated endpoints.
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

// Client talks to the parking reservation API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// NewTransport builds the base transport, honouring the configured proxy.
func NewTransport(cfg config.APIConfig) http.RoundTripper {
	if cfg.HTTPProxy == "" {
		return http.DefaultTransport
	}
	proxyURL, err := url.Parse(cfg.HTTPProxy)
	if err != nil {
		log.Printf("Warning: Invalid proxy URL %q: %v. Client will not use a proxy.", cfg.HTTPProxy, err)
		return http.DefaultTransport
	}
	return &http.Transport{Proxy: http.ProxyURL(proxyURL)}
}

// New creates a client. A nil transport uses NewTransport(cfg).
func New(cfg config.APIConfig, tokens TokenSource, transport http.RoundTripper) *Client {
	if transport == nil {
		transport = NewTransport(cfg)
	}
	if tokens == nil {
		tokens = TokenFunc(func() string { return "" })
	}
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		tokens: tokens,
	}
}

type envelope[T any] struct {
	Data T `json:"data"`
}

type errorBody struct {
	Message string `json:"message"`
}

// AuthenticateURL asks the API for the OAuth URL that ends at redirectURL.
func (c *Client) AuthenticateURL(ctx context.Context, redirectURL string) (string, error) {
	path := "/v1/authenticate?redirect_url=" + url.QueryEscape(redirectURL)
	resp, err := do[struct {
		URL string `json:"url"`
	}](ctx, c, http.MethodGet, path, nil, "")
	if err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", fmt.Errorf("%w: empty authentication url", ErrInvalidResponse)
	}
	return resp.URL, nil
}

// Me fetches the user owning token.
func (c *Client) Me(ctx context.Context, token string) (*model.User, error) {
	return required(do[*model.User](ctx, c, http.MethodGet, "/v1/users/me", nil, token))
}

// ParkingQuery filters and orders the facility list.
type ParkingQuery struct {
	Search    string
	SortBy    string
	SortOrder string
	Radius    float64
	Latitude  float64
	Longitude float64
}

// Values encodes the query with the API's defaults for unset fields.
func (q ParkingQuery) Values() url.Values {
	sortBy, sortOrder := q.SortBy, q.SortOrder
	if sortBy == "" {
		sortBy = "created_at"
	}
	if sortOrder == "" {
		sortOrder = "desc"
	}
	v := url.Values{}
	v.Set("search", q.Search)
	v.Set("sort_by", sortBy)
	v.Set("sort_order", sortOrder)
	v.Set("user_latitude", strconv.FormatFloat(q.Latitude, 'f', -1, 64))
	v.Set("user_longitude", strconv.FormatFloat(q.Longitude, 'f', -1, 64))
	v.Set("radius", strconv.FormatFloat(q.Radius, 'f', -1, 64))
	return v
}

// ListParkings lists facilities. The endpoint is public.
func (c *Client) ListParkings(ctx context.Context, q ParkingQuery) ([]model.Parking, error) {
	return do[[]model.Parking](ctx, c, http.MethodGet, "/v1/parkings?"+q.Values().Encode(), nil, "")
}

// GetParkingBySlug fetches one facility including its layout and slots.
func (c *Client) GetParkingBySlug(ctx context.Context, slug string) (*model.Parking, error) {
	return required(do[*model.Parking](ctx, c, http.MethodGet, "/v1/parkings/slug/"+url.PathEscape(slug), nil, ""))
}

// CreateBooking posts a booking request for the current user. A 2xx response
// with an empty data field returns a nil booking.
func (c *Client) CreateBooking(ctx context.Context, req model.BookingRequest) (*model.Booking, error) {
	return do[*model.Booking](ctx, c, http.MethodPost, "/v1/bookings", req, c.tokens.Token())
}

// ListBookings lists the current user's bookings.
func (c *Client) ListBookings(ctx context.Context) ([]model.Booking, error) {
	return do[[]model.Booking](ctx, c, http.MethodGet, "/v1/bookings", nil, c.tokens.Token())
}

// GetBookingByReference fetches a booking by its payment reference.
func (c *Client) GetBookingByReference(ctx context.Context, reference string) (*model.Booking, error) {
	return required(do[*model.Booking](ctx, c, http.MethodGet, "/v1/bookings/reference/"+url.PathEscape(reference), nil, c.tokens.Token()))
}

func do[T any](ctx context.Context, c *Client, method, path string, body any, token string) (T, error) {
	var zero T

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("failed to marshal request payload: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return zero, fmt.Errorf("%w: failed to create request: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("%w: failed to read response body: %v", ErrRequestFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &eb)
		}
		return zero, &APIError{StatusCode: resp.StatusCode, Message: eb.Message}
	}

	var env envelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return zero, fmt.Errorf("%w: failed to decode response: %v", ErrInvalidResponse, err)
	}
	return env.Data, nil
}

func required[T any](v *T, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("%w: empty data", ErrInvalidResponse)
	}
	return v, nil
}
