// Package dashboard is the customer dashboard view-model: the call sites
// that fetch profile, bookings and routes through the guard and publish the
// results into scope-owned state.
package dashboard

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/psantana5/callguard/pkg/backend"
	"github.com/psantana5/callguard/pkg/guard"
	"github.com/psantana5/callguard/pkg/logging"
)

// Call site names. They double as policy names in configuration.
const (
	OpProfile       = "profile.get"
	OpBookings      = "bookings.list"
	OpCreateBooking = "bookings.create"
	OpRoute         = "maps.route"
	OpGeocode       = "maps.geocode"
)

// Backend is the subset of backend.Client the dashboard calls.
type Backend interface {
	GetProfile(ctx context.Context, uid string) (*backend.Profile, error)
	ListBookings(ctx context.Context, uid string) ([]backend.Booking, error)
	CreateBooking(ctx context.Context, req backend.BookingRequest, idempotencyKey string) (*backend.Booking, error)
	Geocode(ctx context.Context, address string) (*backend.Location, error)
	Route(ctx context.Context, origin, destination string) (*backend.Route, error)
	ResetMaps(ctx context.Context) error
}

// Policies resolves the guard policy of a call site.
type Policies interface {
	Policy(name string) guard.Policy
}

type defaultPolicies struct{}

func (defaultPolicies) Policy(name string) guard.Policy { return guard.DefaultPolicy(name) }

// Options configures a Session.
type Options struct {
	UID      string
	Backend  Backend
	Policies Policies
	Logger   *logging.Logger
	// Guard options applied after the session's own defaults.
	Guard []guard.Option
}

// Session is one mounted dashboard. Everything it publishes stops changing
// once Close is called.
type Session struct {
	uid      string
	backend  Backend
	policies Policies
	logger   *logging.Logger
	scope    *guard.Scope
	guard    *guard.Guard

	Profile  *guard.SafeValue[*backend.Profile]
	Bookings *guard.SafeValue[[]backend.Booking]
	Route    *guard.SafeValue[*backend.Route]
	Location *guard.SafeValue[*backend.Location]

	ProfileState  *guard.LoadState
	BookingsState *guard.LoadState
	RouteState    *guard.LoadState
	LocationState *guard.LoadState
	SubmitState   *guard.LoadState
}

// NewSession mounts a dashboard for opts.UID. Cancelling ctx tears it down
// like Close.
func NewSession(ctx context.Context, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	policies := opts.Policies
	if policies == nil {
		policies = defaultPolicies{}
	}
	logger = logger.WithField("uid", opts.UID)

	scope := guard.NewScope(ctx, "dashboard", guard.WithScopeLogger(logger))
	gopts := append([]guard.Option{guard.WithLogger(logger)}, opts.Guard...)

	s := &Session{
		uid:      opts.UID,
		backend:  opts.Backend,
		policies: policies,
		logger:   logger,
		scope:    scope,
		guard:    guard.New(scope, gopts...),

		Profile:  guard.NewSafeValue[*backend.Profile](scope, "profile", nil),
		Bookings: guard.NewSafeValue(scope, "bookings", []backend.Booking{}),
		Route:    guard.NewSafeValue[*backend.Route](scope, "route", nil),
		Location: guard.NewSafeValue[*backend.Location](scope, "location", nil),

		ProfileState:  guard.NewLoadState(scope, "profile"),
		BookingsState: guard.NewLoadState(scope, "bookings"),
		RouteState:    guard.NewLoadState(scope, "route"),
		LocationState: guard.NewLoadState(scope, "location"),
		SubmitState:   guard.NewLoadState(scope, "submit"),
	}
	scope.OnTeardown(func(context.Context) error {
		logger.Debug("dashboard session closed")
		return nil
	})
	return s
}

// Scope returns the session's lifetime.
func (s *Session) Scope() *guard.Scope { return s.scope }

// Localizer returns the catalog the session's notifications use.
func (s *Session) Localizer() *guard.Localizer { return s.guard.Localizer() }

// Close tears the session down. In-flight loads are abandoned.
func (s *Session) Close() { s.scope.Close() }

// LoadProfile fetches the customer profile.
func (s *Session) LoadProfile(ctx context.Context) guard.Outcome {
	s.ProfileState.Begin()
	defer s.ProfileState.End()

	res := guard.Run(ctx, s.guard, s.policies.Policy(OpProfile),
		func(ctx context.Context) (*backend.Profile, error) {
			return s.backend.GetProfile(ctx, s.uid)
		},
		guard.WithOnError[*backend.Profile](s.ProfileState.Fail),
	)
	if res.Ok() {
		s.Profile.Set(res.Value)
	}
	return res.Outcome
}

// LoadBookings fetches the customer's bookings, soonest pickup first.
// On failure the previously loaded list is kept.
func (s *Session) LoadBookings(ctx context.Context) guard.Outcome {
	s.BookingsState.Begin()
	defer s.BookingsState.End()

	res := guard.Run(ctx, s.guard, s.policies.Policy(OpBookings),
		func(ctx context.Context) ([]backend.Booking, error) {
			return s.backend.ListBookings(ctx, s.uid)
		},
		guard.WithOnError[[]backend.Booking](s.BookingsState.Fail),
	)
	if res.Ok() {
		bookings := res.Value
		sort.SliceStable(bookings, func(i, j int) bool {
			return bookings[i].PickupAt.Before(bookings[j].PickupAt)
		})
		s.Bookings.Set(bookings)
	}
	return res.Outcome
}

// Upcoming returns loaded bookings that are still active and pick up
// after now.
func (s *Session) Upcoming(now time.Time) []backend.Booking {
	var out []backend.Booking
	for _, b := range s.Bookings.Get() {
		if b.Status != backend.BookingPending && b.Status != backend.BookingConfirmed {
			continue
		}
		if b.PickupAt.After(now) {
			out = append(out, b)
		}
	}
	return out
}

// SubmitBooking creates a booking. Every attempt of one submission shares an
// idempotency key so a retried request cannot book twice.
func (s *Session) SubmitBooking(ctx context.Context, req backend.BookingRequest) (*backend.Booking, guard.Outcome) {
	s.SubmitState.Begin()
	defer s.SubmitState.End()

	req.UID = s.uid
	key := uuid.NewString()
	res := guard.Run(ctx, s.guard, s.policies.Policy(OpCreateBooking),
		func(ctx context.Context) (*backend.Booking, error) {
			return s.backend.CreateBooking(ctx, req, key)
		},
		guard.WithOnError[*backend.Booking](s.SubmitState.Fail),
	)
	if !res.Ok() {
		return nil, res.Outcome
	}
	booking := res.Value
	s.Bookings.Update(func(prev []backend.Booking) []backend.Booking {
		next := make([]backend.Booking, 0, len(prev)+1)
		next = append(next, prev...)
		return append(next, *booking)
	})
	return booking, res.Outcome
}

// ResolveRoute computes the route between two addresses. A mapping provider
// that keeps failing is reset once all attempts are used up.
func (s *Session) ResolveRoute(ctx context.Context, origin, destination string) guard.Outcome {
	s.RouteState.Begin()
	defer s.RouteState.End()

	res := guard.Run(ctx, s.guard, s.policies.Policy(OpRoute),
		func(ctx context.Context) (*backend.Route, error) {
			return s.backend.Route(ctx, origin, destination)
		},
		guard.WithOnError[*backend.Route](s.RouteState.Fail),
		guard.WithRecovery[*backend.Route](s.resetMaps()),
	)
	if res.Ok() {
		s.Route.Set(res.Value)
	}
	return res.Outcome
}

// LocateAddress geocodes a pickup or dropoff address.
func (s *Session) LocateAddress(ctx context.Context, address string) guard.Outcome {
	s.LocationState.Begin()
	defer s.LocationState.End()

	res := guard.Run(ctx, s.guard, s.policies.Policy(OpGeocode),
		func(ctx context.Context) (*backend.Location, error) {
			return s.backend.Geocode(ctx, address)
		},
		guard.WithOnError[*backend.Location](s.LocationState.Fail),
		guard.WithRecovery[*backend.Location](s.resetMaps()),
	)
	if res.Ok() {
		s.Location.Set(res.Value)
	}
	return res.Outcome
}

func (s *Session) resetMaps() guard.Recovery {
	return guard.ReloadRecovery{
		Reload: s.backend.ResetMaps,
		Kinds:  []guard.Kind{guard.KindMaps},
		Logger: s.logger,
	}
}
