package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"booking-engine/internal/app"
)

// Options configures the HTTP adapter.
type Options struct {
	AllowedOrigins []string
	JWTSecret      string
	// Idempotency guards POST create endpoints. Nil disables the guard.
	Idempotency IdempotencyStore
	// Ping reports store health for GET /api/health. Nil always reports ok.
	Ping func(ctx context.Context) error
	Log  *zap.Logger
}

// Handler holds the ApplicationService and the chi router.
type Handler struct {
	svc       app.ApplicationService
	jwtSecret string
	validate  *validator.Validate
	ping      func(ctx context.Context) error
	log       *zap.Logger
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{
		svc:       svc,
		jwtSecret: opts.JWTSecret,
		validate:  newValidator(),
		ping:      opts.Ping,
		log:       log,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(CORS(opts.AllowedOrigins))

	r.Route("/api", func(r chi.Router) {
		// ── Health (public) ───────────────────────────────────────────────────
		r.Get("/health", h.health)

		// ── Protected routes (return 401 JSON if unauthenticated) ─────────────
		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)
			r.Use(RequestBodyLimit(1 << 20)) // 1 MB

			r.Get("/auth/me", h.me)

			r.Post("/availability/check", h.checkAvailability)

			// ── Reservations ──────────────────────────────────────────────────────
			r.Get("/reservations", h.listReservations)
			r.With(Idempotency(opts.Idempotency, log)).Post("/reservations", h.createReservation)
			r.Get("/reservations/{id}", h.getReservation)
			r.Patch("/reservations/{id}", h.amendReservation)
			r.Post("/reservations/{id}/cancel", h.cancelReservation)

			// ── Checkouts & scanning ──────────────────────────────────────────────
			r.Get("/checkouts", h.listCheckouts)
			r.With(Idempotency(opts.Idempotency, log)).Post("/checkouts", h.createCheckout)
			r.Get("/checkouts/{id}", h.getCheckout)
			r.Post("/checkouts/{id}/start-scan-session", h.startScanSession)
			r.Post("/checkouts/{id}/checkout-scan", h.recordCheckoutScan)
			r.Post("/checkouts/{id}/checkin-scan", h.recordCheckinScan)
			r.Get("/checkouts/{id}/scan-state", h.scanState)
			r.Post("/checkouts/{id}/complete-checkout", h.completeCheckout)
			r.Post("/checkouts/{id}/complete-checkin", h.completeCheckin)
			r.Post("/checkouts/{id}/admin-override", h.createAdminOverride)

			// ── Catalog & stock ───────────────────────────────────────────────────
			r.Post("/assets", h.registerAsset)
			r.Post("/assets/statuses", h.assetStatuses)
			r.Get("/assets/{id}", h.getAsset)
			r.Patch("/assets/{id}/status", h.setAssetStatus)
			r.Get("/bulk-skus", h.listBulkSkus)
			r.Post("/bulk-skus", h.createBulkSku)
			r.Post("/bulk-skus/{id}/adjust", h.adjustBulkStock)
			r.Get("/bulk-skus/{id}/movements", h.listMovements)

			// ── Audit & integrity ─────────────────────────────────────────────────
			r.Get("/audit/{entityType}/{entityId}", h.listAudit)
			r.Get("/integrity", h.integrity)
		})
	})

	return r
}

// health handles GET /api/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
	}
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			h.log.Warn("health check failed", zap.Error(err))
			writeJSONStatus(w, http.StatusServiceUnavailable, response{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, response{Status: "ok"})
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response if decoding fails. 413 for oversized bodies, 400 for malformed JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "VALIDATION", http.StatusBadRequest)
		return false
	}
	return true
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
		return false
	}
	writeError(w, r, "invalid JSON body: "+err.Error(), "VALIDATION", http.StatusBadRequest)
	return false
}

// decodeAndValidate decodes the body and runs struct validation on it.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if !decodeJSON(w, r, v) {
		return false
	}
	return h.validateBody(w, r, v)
}

func (h *Handler) validateBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := h.validate.Struct(v)
	if err == nil {
		return true
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeError(w, r, err.Error(), "VALIDATION", http.StatusBadRequest)
		return false
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	first := verrs[0]
	writeErrorData(w, r, validationMessage(first), "VALIDATION", http.StatusBadRequest,
		map[string]any{"fields": fields})
	return false
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min", "gte":
		return fe.Field() + " must be at least " + fe.Param()
	case "max", "lte":
		return fe.Field() + " must be at most " + fe.Param()
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	case "oneof":
		return fe.Field() + " must be one of " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}

// queryInt parses an optional integer query parameter. Absent values yield 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return n, nil
}
