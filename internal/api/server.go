// Package api exposes the booking desk to operators over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"strikedesk/internal/auth"
	"strikedesk/internal/booking"
	"strikedesk/internal/bookingapi"
	"strikedesk/internal/config"
	"strikedesk/internal/desk"
	"strikedesk/internal/journal"
	"strikedesk/internal/lifecycle"
	"strikedesk/internal/lookup"
	"strikedesk/internal/models"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Sessions is the operator session registry.
type Sessions interface {
	Open() *desk.Session
	Get(id string) (*desk.Session, error)
	Close(id string) bool
}

// Lifecycle drives booking status changes.
type Lifecycle interface {
	Load(ctx context.Context) ([]models.Booking, error)
	LoadedAt() time.Time
	Activate(ctx context.Context, id string) (*models.Booking, error)
	Cancel(ctx context.Context, id string) (*models.Booking, error)
}

// Reconciliation lists and replays partial failures.
type Reconciliation interface {
	ListOpen(ctx context.Context) ([]journal.Entry, error)
	Retry(ctx context.Context, id string, api journal.Replayer) error
}

type Authenticator interface {
	Authenticate(username, password string) (*auth.Operator, error)
}

type MembershipSource interface {
	GetMemberships(ctx context.Context, phone string) ([]models.Membership, error)
}

type SheetsPusher interface {
	PushBookings(ctx context.Context, bookings []models.Booking) (int, error)
}

type CatalogSource interface {
	Get() *config.Catalog
}

// Deps are the collaborators of the HTTP server. Sheets may be nil.
type Deps struct {
	Auth           Authenticator
	Catalog        CatalogSource
	Sessions       Sessions
	Lifecycle      Lifecycle
	Reconciliation Reconciliation
	Replayer       journal.Replayer
	Memberships    MembershipSource
	Sheets         SheetsPusher
}

// HTTPServer serves the operator API.
type HTTPServer struct {
	deps   Deps
	logger *zerolog.Logger
	server *http.Server
}

func NewHTTPServer(port int, deps Deps, logger *zerolog.Logger) *HTTPServer {
	l := logger.With().Str("component", "api").Logger()
	s := &HTTPServer{deps: deps, logger: &l}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestLogger)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.basicAuth)

	api.HandleFunc("/catalog", s.handleCatalog).Methods(http.MethodGet)

	api.HandleFunc("/sessions", s.handleOpenSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleCloseSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/center", s.handleChooseCenter).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}/slots/toggle", s.handleToggleSlot).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/lookup", s.handleLookup).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/details", s.handleDetails).Methods(http.MethodPut)
	api.HandleFunc("/sessions/{id}/reset", s.handleReset).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/submit", s.handleSubmit).Methods(http.MethodPost)

	api.HandleFunc("/bookings", s.handleListBookings).Methods(http.MethodGet)
	api.HandleFunc("/bookings/{id}/activate", s.handleActivate).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/cancel", s.handleCancel).Methods(http.MethodPost)

	api.HandleFunc("/reconciliation", s.handleListReconciliation).Methods(http.MethodGet)
	api.HandleFunc("/reconciliation/{id}/retry", s.handleRetryReconciliation).Methods(http.MethodPost)

	api.HandleFunc("/export/bookings.xlsx", s.handleExportBookings).Methods(http.MethodGet)
	api.HandleFunc("/export/memberships.xlsx", s.handleExportMemberships).Methods(http.MethodGet)
	api.HandleFunc("/export/sheets", s.handleExportSheets).Methods(http.MethodPost)

	return r
}

// Start serves until ctx is done.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()

	s.logger.Info().Str("addr", s.server.Addr).Msg("operator API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

func (s *HTTPServer) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="strikedesk"`)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		op, err := s.deps.Auth.Authenticate(user, pass)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="strikedesk"`)
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithOperator(r.Context(), op)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		ev := s.logger.Debug()
		if rec.status >= http.StatusInternalServerError {
			ev = s.logger.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// retryAfterSeconds is advertised when the booking service was unreachable.
const retryAfterSeconds = "5"

// writeFailure maps a domain error to its HTTP status.
func (s *HTTPServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var verr *booking.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: verr.Message, Field: verr.Field})
		return
	}

	status := errorStatus(err)
	if bookingapi.IsRetryable(err) {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, lookup.ErrPhoneRequired),
		errors.Is(err, desk.ErrUnknownCenter),
		errors.Is(err, booking.ErrBookingTypeNotOffered),
		errors.Is(err, booking.ErrUnknownBookingType),
		errors.Is(err, booking.ErrNoCenterChosen):
		return http.StatusBadRequest
	case errors.Is(err, desk.ErrSessionNotFound),
		errors.Is(err, lifecycle.ErrBookingNotFound),
		errors.Is(err, journal.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrCustomerLocked),
		errors.Is(err, booking.ErrAvailabilityPending),
		errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, journal.ErrResolved):
		return http.StatusConflict
	case errors.Is(err, booking.ErrPartialSubmission),
		errors.Is(err, lifecycle.ErrOversDecrement),
		errors.Is(err, bookingapi.ErrUnavailable),
		errors.Is(err, bookingapi.ErrRejected),
		errors.Is(err, bookingapi.ErrDecode),
		errors.Is(err, bookingapi.ErrNotFound):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func (s *HTTPServer) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Catalog.Get())
}
