// Package api exposes the engine over HTTP with a chi router.
//
// The caller of a mutating route, and of the account-keyed history routes,
// is read from the X-Account-ID header, which an upstream gateway is
// expected to authenticate. Username routes authenticate with a passphrase
// in the body instead. Bodies and
// responses are JSON. Engine errors map to status codes by category.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/subvault"
	"github.com/xraph/subvault/id"
)

// CallerHeader carries the acting account.
const CallerHeader = "X-Account-ID"

// Handler serves the subvault HTTP API.
type Handler struct {
	engine *subvault.Engine
	logger *slog.Logger
	router chi.Router
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// New builds the router over e.
func New(e *subvault.Engine, opts ...Option) *Handler {
	h := &Handler{engine: e, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	h.router = h.routes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Route("/providers", func(r chi.Router) {
		r.Post("/", h.registerProvider)
		r.Post("/plans", h.addPlans)
		r.Put("/plans/{index}", h.editPlan)
		r.Post("/plans/{index}/toggle", h.togglePlan)
		r.Post("/plans/{index}/characteristics", h.addCharacteristics)
		r.Post("/withdraw", h.withdraw)
		r.Put("/pass_hash", h.setProviderPassHash)
		r.Get("/{provider}/plans/{index}", h.getPlan)
		r.Get("/{provider}/schedule", h.schedule)
		r.Post("/{provider}/auth", h.checkPassphrase(h.providerCheckAuth))
	})

	r.Route("/subscriptions", func(r chi.Router) {
		r.Post("/", h.subscribe)
		r.Post("/renew", h.renew)
		r.Post("/refund", h.refund)
		r.Put("/{provider}/pass_hash", h.setRecordPassHash)
		r.Post("/{buyer}/{provider}/auth", h.checkPassphrase(h.checkAuth))
		r.Get("/{buyer}/{provider}/{index}/active", h.checkActive)
	})

	r.Route("/users", func(r chi.Router) {
		r.Put("/pass_hash", h.setUserPassHash)
		r.Post("/{buyer}/auth", h.checkPassphrase(h.userCheckAuth))
		r.Get("/{buyer}/records", h.records)
		r.Get("/{buyer}/records/{provider}", h.recordsWith)
	})

	r.Route("/usernames/{name}", func(r chi.Router) {
		r.Get("/available", h.usernameAvailable)
		r.Post("/auth", h.checkPassphrase(h.userCheckAuthByUsername))
		r.Post("/provider_auth", h.checkPassphrase(h.providerCheckAuthByUsername))
		r.Post("/records", h.recordsByUsername)
		r.Post("/records/{provider}", h.recordsWithByUsername)
		r.Post("/subscriptions/{provider}/auth", h.checkPassphrase(h.checkAuthByUsername))
		r.Get("/subscriptions/{provider}/{index}/active", h.checkActiveByUsername)
	})

	r.Get("/accounts/{account}/username", h.usernameOf)

	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps engine error categories to HTTP status codes.
func statusFor(err error) int {
	switch {
	case subvault.IsValidation(err), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, errNoCaller):
		return http.StatusUnauthorized
	case subvault.IsUnauthorized(err):
		return http.StatusForbidden
	case subvault.IsNotFound(err):
		return http.StatusNotFound
	case subvault.IsConflict(err):
		return http.StatusConflict
	case subvault.IsFunds(err):
		return http.StatusPaymentRequired
	case subvault.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // the status is already sent
}

func caller(r *http.Request) (id.AccountID, error) {
	raw := r.Header.Get(CallerHeader)
	if raw == "" {
		return id.Nil, errNoCaller
	}
	acct, err := id.ParseAccountID(raw)
	if err != nil {
		return id.Nil, badRequest("%s: %v", CallerHeader, err)
	}
	return acct, nil
}
