package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/psantana5/callguard/pkg/tracing"
	"golang.org/x/time/rate"
)

// Config holds backend client settings
type Config struct {
	BaseURL string        `mapstructure:"base_url"`
	MapsURL string        `mapstructure:"maps_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
	RPS     float64       `mapstructure:"rps"`
	Burst   int           `mapstructure:"burst"`
}

// Client talks to the booking backend and the mapping provider.
// Every call honors ctx and waits on a client-side token bucket.
type Client struct {
	baseURL    string
	mapsURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a backend client
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MapsURL == "" {
		cfg.MapsURL = cfg.BaseURL + "/maps"
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		mapsURL:    strings.TrimRight(cfg.MapsURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, cfg.Burst),
	}
}

// GetProfile fetches the customer's profile
func (c *Client) GetProfile(ctx context.Context, uid string) (*Profile, error) {
	var p Profile
	if err := c.do(ctx, "profile.get", http.MethodGet, c.baseURL+"/v1/users/"+url.PathEscape(uid), nil, &p, http.StatusOK); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListBookings fetches the customer's bookings
func (c *Client) ListBookings(ctx context.Context, uid string) ([]Booking, error) {
	var out struct {
		Bookings []Booking `json:"bookings"`
	}
	if err := c.do(ctx, "bookings.list", http.MethodGet, c.baseURL+"/v1/users/"+url.PathEscape(uid)+"/bookings", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	if out.Bookings == nil {
		out.Bookings = []Booking{}
	}
	return out.Bookings, nil
}

// CreateBooking submits a booking. The idempotency key makes retries safe.
func (c *Client) CreateBooking(ctx context.Context, req BookingRequest, idempotencyKey string) (*Booking, error) {
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	var b Booking
	err := c.do(ctx, "bookings.create", http.MethodPost, c.baseURL+"/v1/bookings", req, &b, http.StatusCreated,
		header{"Idempotency-Key", idempotencyKey})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Health checks backend reachability
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "health", http.MethodGet, c.baseURL+"/healthz", nil, nil, http.StatusOK)
}

type mapsResponse struct {
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Results      []Location `json:"results,omitempty"`
	Routes       []struct {
		DistanceMeters  int `json:"distance_meters"`
		DurationSeconds int `json:"duration_seconds"`
	} `json:"routes,omitempty"`
}

// Geocode resolves a free-form address with the mapping provider
func (c *Client) Geocode(ctx context.Context, address string) (*Location, error) {
	q := url.Values{"address": {address}}
	var resp mapsResponse
	if err := c.doMaps(ctx, "maps.geocode", c.mapsURL+"/geocode?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, &APIError{Op: "maps.geocode", ErrCode: mapsCode("ZERO_RESULTS"), Message: "no results for " + address}
	}
	loc := resp.Results[0]
	return &loc, nil
}

// Route resolves the driving route between two addresses
func (c *Client) Route(ctx context.Context, origin, destination string) (*Route, error) {
	from, err := c.Geocode(ctx, origin)
	if err != nil {
		return nil, err
	}
	to, err := c.Geocode(ctx, destination)
	if err != nil {
		return nil, err
	}

	q := url.Values{
		"origin":      {fmt.Sprintf("%f,%f", from.Lat, from.Lng)},
		"destination": {fmt.Sprintf("%f,%f", to.Lat, to.Lng)},
	}
	var resp mapsResponse
	if err := c.doMaps(ctx, "maps.directions", c.mapsURL+"/directions?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Routes) == 0 {
		return nil, &APIError{Op: "maps.directions", ErrCode: mapsCode("ZERO_RESULTS"), Message: "no route found"}
	}
	return &Route{
		Origin:          *from,
		Destination:     *to,
		DistanceMeters:  resp.Routes[0].DistanceMeters,
		DurationSeconds: resp.Routes[0].DurationSeconds,
	}, nil
}

// ResetMaps drops pooled connections so the next mapping call starts from a
// fresh connection.
func (c *Client) ResetMaps(ctx context.Context) error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) doMaps(ctx context.Context, op, u string, resp *mapsResponse) error {
	if err := c.do(ctx, op, http.MethodGet, u, nil, resp, http.StatusOK); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && !strings.HasPrefix(apiErr.ErrCode, "maps/") {
			apiErr.ErrCode = mapsCode(apiErr.ErrCode)
		}
		return err
	}
	if resp.Status != "" && resp.Status != "OK" {
		return &APIError{Op: op, ErrCode: mapsCode(resp.Status), Message: resp.ErrorMessage}
	}
	return nil
}

type header struct{ key, value string }

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, op, method, u string, in, out interface{}, want int, headers ...header) error {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &APIError{Op: op, ErrCode: "unavailable", Message: "client rate limit", Err: err}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	tracing.InjectHTTPHeaders(ctx, req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for _, h := range headers {
		req.Header.Set(h.key, h.value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &APIError{Op: op, ErrCode: "network", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{Op: op, ErrCode: "network", Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode != want {
		apiErr := &APIError{Op: op, Status: resp.StatusCode, ErrCode: codeForStatus(resp.StatusCode)}
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil && eb.Error.Code != "" {
			apiErr.ErrCode = eb.Error.Code
			apiErr.Message = eb.Error.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}
