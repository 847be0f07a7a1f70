// Package server exposes the dashboard call sites over HTTP. Every request
// mounts its own dashboard session whose lifetime is the request: a client
// that disconnects abandons its guarded calls.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/psantana5/callguard/internal/dashboard"
	"github.com/psantana5/callguard/pkg/auth"
	"github.com/psantana5/callguard/pkg/guard"
	"github.com/psantana5/callguard/pkg/logging"
	"github.com/psantana5/callguard/pkg/ratelimit"
)

// Config wires the handler's collaborators.
type Config struct {
	Backend  dashboard.Backend
	Policies dashboard.Policies
	Logger   *logging.Logger
	// Guard options shared by every request (diagnostics, observer, tracer).
	Guard   []guard.Option
	Metrics http.Handler
	Limiter *ratelimit.Limiter
	// Auth, when set, guards /v1 with a bearer key.
	Auth *auth.KeyChecker
}

// Handler serves the dashboard API.
type Handler struct {
	cfg    Config
	logger *logging.Logger
}

// NewHandler creates a handler
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{cfg: cfg, logger: logger.WithField("component", "server")}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/v1").Subrouter()
	if h.cfg.Limiter != nil {
		api.Use(h.cfg.Limiter.Middleware(ratelimit.IPKeyFunc))
	}
	if h.cfg.Auth != nil {
		api.Use(h.cfg.Auth.Middleware)
	}
	api.HandleFunc("/users/{uid}/bookings", h.ListBookings).Methods("GET")
	api.HandleFunc("/users/{uid}/profile", h.GetProfile).Methods("GET")
	api.HandleFunc("/geocode", h.Geocode).Methods("GET")
	api.HandleFunc("/route", h.Route).Methods("GET")

	if h.cfg.Metrics != nil {
		r.Handle("/metrics", h.cfg.Metrics).Methods("GET")
	}
	r.HandleFunc("/healthz", h.Health).Methods("GET")
}

type errorResponse struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

// session mounts a dashboard for the request. Notifications are collected
// so the localized message can be returned to the caller.
func (h *Handler) session(r *http.Request, uid string) (*dashboard.Session, *guard.Recorder) {
	notes := &guard.Recorder{}
	opts := append([]guard.Option{}, h.cfg.Guard...)
	opts = append(opts,
		guard.WithLocalizer(guard.NewLocalizer(r.Header.Get("Accept-Language"))),
		guard.WithNotifier(guard.Notifiers{notes, guard.LogNotifier{Logger: h.logger}}),
	)
	s := dashboard.NewSession(r.Context(), dashboard.Options{
		UID:      uid,
		Backend:  h.cfg.Backend,
		Policies: h.cfg.Policies,
		Logger:   h.logger,
		Guard:    opts,
	})
	return s, notes
}

// ListBookings returns the customer's bookings.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["uid"]
	s, notes := h.session(r, uid)
	defer s.Close()

	outcome := s.LoadBookings(r.Context())
	if outcome != guard.Success {
		h.writeFailure(w, s, outcome, notes, s.BookingsState)
		return
	}
	bookings := s.Bookings.Get()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bookings": bookings,
		"count":    len(bookings),
		"upcoming": len(s.Upcoming(time.Now())),
	})
}

// GetProfile returns the customer's profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	s, notes := h.session(r, mux.Vars(r)["uid"])
	defer s.Close()

	if outcome := s.LoadProfile(r.Context()); outcome != guard.Success {
		h.writeFailure(w, s, outcome, notes, s.ProfileState)
		return
	}
	writeJSON(w, http.StatusOK, s.Profile.Get())
}

// Geocode resolves ?address=.
func (h *Handler) Geocode(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		http.Error(w, "address is required", http.StatusBadRequest)
		return
	}
	s, notes := h.session(r, "")
	defer s.Close()

	if outcome := s.LocateAddress(r.Context(), address); outcome != guard.Success {
		h.writeFailure(w, s, outcome, notes, s.LocationState)
		return
	}
	writeJSON(w, http.StatusOK, s.Location.Get())
}

// Route resolves ?from=&to=.
func (h *Handler) Route(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" || to == "" {
		http.Error(w, "from and to are required", http.StatusBadRequest)
		return
	}
	s, notes := h.session(r, "")
	defer s.Close()

	if outcome := s.ResolveRoute(r.Context(), from, to); outcome != guard.Success {
		h.writeFailure(w, s, outcome, notes, s.RouteState)
		return
	}
	writeJSON(w, http.StatusOK, s.Route.Get())
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) writeFailure(w http.ResponseWriter, s *dashboard.Session, outcome guard.Outcome, notes *guard.Recorder, state *guard.LoadState) {
	if outcome == guard.Abandoned {
		// The client went away; nobody reads this.
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	var resp errorResponse
	kind := state.Kind()
	if note, ok := notes.Last(); ok {
		kind = note.Kind
		resp.Error.Message = note.Message
	} else {
		// silent policy
		resp.Error.Message = s.Localizer().Message(kind)
	}
	resp.Error.Kind = kind.String()
	h.logger.Debug("request failed", logging.Fields{"kind": kind.String(), "detail": state.Message()})
	writeJSON(w, statusForKind(kind), resp)
}

func statusForKind(k guard.Kind) int {
	switch k {
	case guard.KindPermissionDenied:
		return http.StatusForbidden
	case guard.KindNotFound:
		return http.StatusNotFound
	case guard.KindAlreadyExists:
		return http.StatusConflict
	case guard.KindTimeout:
		return http.StatusGatewayTimeout
	case guard.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
