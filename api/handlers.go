/*
handlers.go - HTTP API handlers for the stay engine

PURPOSE:
  Exposes booking.Service via REST. Handles HTTP request/response, JSON
  decoding and validation, and delegates every rule to the service.

ENDPOINTS (all under /api, all require X-Tenant-ID):
  Bookings:
    POST   /bookings                   Create
    GET    /bookings                   List (unit_id, guest_id, status, from, to, limit)
    GET    /bookings/{id}              Get
    PUT    /bookings/{id}              Update
    DELETE /bookings/{id}              Delete (cascades ledgers)
    POST   /bookings/{id}/check-in     Check in (deposit gate)
    POST   /bookings/{id}/check-out    Check out
    POST   /bookings/{id}/cancel       Cancel
    POST   /bookings/{id}/no-show      Mark no-show
    GET    /bookings/{id}/balance      Reconciliation (cached)
    GET    /bookings/{id}/events       Check-in/check-out audit

  Ledgers:
    GET/POST /bookings/{id}/charges    List / add ad hoc charge
    POST     /charges/{id}/void        Void charge
    GET/POST /bookings/{id}/payments   List / record payment
    POST     /payments/{id}/confirm    Confirm (idempotent)
    POST     /payments/{id}/fail       Fail

  Units:
    GET    /units/{id}/availability    ?check_in&check_out[&exclude]
    GET    /units/{id}/quote           ?check_in&check_out

ERROR HANDLING:
  Every error body is {error, code, details}. Status by kind:
  - 400: validation_failed
  - 404: not_found (including rows of another tenant)
  - 409: unit_not_available, unit_occupied, already_checked_in,
         invalid_state, confirmed_payment_exists
  - 422: deposit_required
  - 500: internal_error (message withheld, logged at ERROR)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - booking/service.go: Domain logic
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/warp/stay-engine/booking"
	"github.com/warp/stay-engine/cache"
	"github.com/warp/stay-engine/core"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *booking.Service
	Store   core.TxStore
	Cache   *cache.BalanceCache
	Logger  *logrus.Logger

	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. cache may be nil.
func NewHandler(svc *booking.Service, store core.TxStore, balances *cache.BalanceCache, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		Service:  svc,
		Store:    store,
		Cache:    balances,
		Logger:   logger,
		validate: validate,
	}
}

// =============================================================================
// TENANT SCOPE
// =============================================================================

const TenantHeader = "X-Tenant-ID"

type tenantKey struct{}

// RequireTenant rejects requests without X-Tenant-ID and puts the tenant in
// the request context.
func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := strings.TrimSpace(r.Header.Get(TenantHeader))
		if tenant == "" {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "missing " + TenantHeader + " header",
				Code:    core.CodeValidation,
				Details: map[string]any{"field": TenantHeader},
			})
			return
		}
		ctx := context.WithValue(r.Context(), tenantKey{}, core.TenantID(tenant))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tenantOf(r *http.Request) core.TenantID {
	t, _ := r.Context().Value(tenantKey{}).(core.TenantID)
	return t
}

// =============================================================================
// BOOKING HANDLERS
// =============================================================================

// CreateBooking reserves a unit.
// POST /api/bookings
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if !h.decode(w, r, &req) {
		return
	}
	stay, err := stayFrom(req.CheckIn, req.CheckOut)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	b, err := h.Service.Create(r.Context(), tenantOf(r), booking.CreateInput{
		UnitID:     core.UnitID(req.UnitID),
		GuestID:    core.GuestID(req.GuestID),
		Stay:       stay,
		Amount:     req.Amount,
		Currency:   req.Currency,
		GuestCount: req.GuestCount,
		Notes:      req.Notes,
		Actor:      req.Actor,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingDTO(*b))
}

// ListBookings returns the tenant's bookings.
// GET /api/bookings?unit_id=&guest_id=&status=CONFIRMED,CHECKED_IN&from=&to=&limit=
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.BookingFilter{
		UnitID:  core.UnitID(q.Get("unit_id")),
		GuestID: core.GuestID(q.Get("guest_id")),
	}
	if s := q.Get("status"); s != "" {
		for _, st := range strings.Split(s, ",") {
			filter.Statuses = append(filter.Statuses, core.BookingStatus(strings.ToUpper(strings.TrimSpace(st))))
		}
	}
	var err error
	if v := q.Get("from"); v != "" {
		if filter.From, err = parseOptionalInstant("from", &v); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if filter.To, err = parseOptionalInstant("to", &v); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil {
			h.fail(w, r, core.Invalid("limit", "must be an integer"))
			return
		}
	}

	bookings, err := h.Service.List(r.Context(), tenantOf(r), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTOs(bookings))
}

// GetBooking returns a single booking.
// GET /api/bookings/{id}
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.Service.Get(r.Context(), tenantOf(r), bookingID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(*b))
}

// UpdateBooking edits a PENDING or CONFIRMED booking.
// PUT /api/bookings/{id}
func (h *Handler) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	var req UpdateBookingRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := booking.UpdateInput{
		Amount:     req.Amount,
		Currency:   req.Currency,
		GuestCount: req.GuestCount,
		Notes:      req.Notes,
	}
	if req.UnitID != nil {
		id := core.UnitID(*req.UnitID)
		in.UnitID = &id
	}
	if req.GuestID != nil {
		id := core.GuestID(*req.GuestID)
		in.GuestID = &id
	}
	var err error
	if in.CheckIn, err = parseOptionalInstant("check_in", req.CheckIn); err != nil {
		h.fail(w, r, err)
		return
	}
	if in.CheckOut, err = parseOptionalInstant("check_out", req.CheckOut); err != nil {
		h.fail(w, r, err)
		return
	}

	b, err := h.Service.Update(r.Context(), tenantOf(r), bookingID(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate(r, b.ID)
	writeJSON(w, http.StatusOK, toBookingDTO(*b))
}

// DeleteBooking removes a booking without confirmed payments.
// DELETE /api/bookings/{id}
func (h *Handler) DeleteBooking(w http.ResponseWriter, r *http.Request) {
	id := bookingID(r)
	if err := h.Service.Delete(r.Context(), tenantOf(r), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate(r, id)
	w.WriteHeader(http.StatusNoContent)
}

// CheckIn moves a CONFIRMED booking to CHECKED_IN.
// POST /api/bookings/{id}/check-in
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req CheckInRequest
	if !h.decode(w, r, &req) {
		return
	}
	at, err := parseOptionalInstant("at", req.At)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in := booking.CheckInInput{
		Actor:            req.Actor,
		PropagateToGuest: req.PropagateToGuest,
		Notes:            req.Notes,
		Artifacts:        req.Artifacts,
	}
	if at != nil {
		in.At = *at
	}
	if req.Guest != nil {
		in.Guest = req.Guest.toCore()
	}

	b, err := h.Service.CheckIn(r.Context(), tenantOf(r), bookingID(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate(r, b.ID)
	writeJSON(w, http.StatusOK, toBookingDTO(*b))
}

// CheckOut moves a CHECKED_IN booking to CHECKED_OUT.
// POST /api/bookings/{id}/check-out
func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	var req CheckOutRequest
	if !h.decode(w, r, &req) {
		return
	}
	at, err := parseOptionalInstant("at", req.At)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in := booking.CheckOutInput{Actor: req.Actor, Notes: req.Notes, Artifacts: req.Artifacts}
	if at != nil {
		in.At = *at
	}

	b, err := h.Service.CheckOut(r.Context(), tenantOf(r), bookingID(r), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate(r, b.ID)
	writeJSON(w, http.StatusOK, toBookingDTO(*b))
}

// CancelBooking cancels a PENDING or CONFIRMED booking.
// POST /api/bookings/{id}/cancel
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !h.decode(w, r, &req) {
		return
	}
	b, err := h.Service.Cancel(r.Context(), tenantOf(r), bookingID(r), req.Actor, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate(r, b.ID)
	writeJSON(w, http.StatusOK, toBookingDTO(*b))
}

// MarkNoShow closes a CONFIRMED booking whose guest never arrived.
// POST /api/bookings/{id}/no-show
func (h *Handler) MarkNoShow(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if !h.decode(w, r, &req) {
		return
	}
	b, err := h.Service.MarkNoShow(r.Context(), tenantOf(r), bookingID(r), req.Actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate(r, b.ID)
	writeJSON(w, http.StatusOK, toBookingDTO(*b))
}

// GetBalance returns the booking's reconciliation, from cache when fresh.
// GET /api/bookings/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	tenant, id := tenantOf(r), bookingID(r)
	if rec, ok := h.Cache.Get(r.Context(), tenant, id); ok {
		w.Header().Set("X-Cache", "HIT")
		writeJSON(w, http.StatusOK, toBalanceDTO(rec))
		return
	}

	gen, cacheable := h.Cache.Generation(r.Context(), tenant, id)
	rec, err := h.Service.Reconcile(r.Context(), tenant, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if cacheable {
		h.Cache.Set(r.Context(), tenant, gen, rec)
	}
	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, toBalanceDTO(rec))
}

// ListCheckEvents returns the check-in/check-out audit trail.
// GET /api/bookings/{id}/events
func (h *Handler) ListCheckEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Service.CheckEvents(r.Context(), tenantOf(r), bookingID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckEventDTOs(events))
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// ListCharges returns every charge of a booking, voided ones included.
// GET /api/bookings/{id}/charges
func (h *Handler) ListCharges(w http.ResponseWriter, r *http.Request) {
	charges, err := h.Service.Charges(r.Context(), tenantOf(r), bookingID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]ChargeDTO, len(charges))
	for i, c := range charges {
		out[i] = toChargeDTO(c)
	}
	writeJSON(w, http.StatusOK, out)
}

// AddCharge posts a damage/extra/overstay charge.
// POST /api/bookings/{id}/charges
func (h *Handler) AddCharge(w http.ResponseWriter, r *http.Request) {
	var req ChargeRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, rec, err := h.Service.AddCharge(r.Context(), tenantOf(r), bookingID(r), booking.ChargeInput{
		Type:        core.ChargeType(req.Type),
		Amount:      req.Amount,
		Description: req.Description,
		Actor:       req.Actor,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate(r, c.BookingID)
	writeJSON(w, http.StatusCreated, ChargeResultDTO{Charge: toChargeDTO(*c), Balance: toBalanceDTO(rec)})
}

// VoidCharge takes a charge off the bill.
// POST /api/charges/{id}/void
func (h *Handler) VoidCharge(w http.ResponseWriter, r *http.Request) {
	c, rec, err := h.Service.VoidCharge(r.Context(), tenantOf(r), core.ChargeID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate(r, c.BookingID)
	writeJSON(w, http.StatusOK, ChargeResultDTO{Charge: toChargeDTO(*c), Balance: toBalanceDTO(rec)})
}

// ListPayments returns every payment of a booking.
// GET /api/bookings/{id}/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Service.Payments(r.Context(), tenantOf(r), bookingID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		out[i] = toPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, out)
}

// RecordPayment adds a PENDING (or, with confirmed=true, CONFIRMED) payment.
// POST /api/bookings/{id}/payments
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, rec, err := h.Service.RecordPayment(r.Context(), tenantOf(r), bookingID(r), booking.PaymentInput{
		Amount:    req.Amount,
		Currency:  req.Currency,
		Method:    core.PaymentMethod(req.Method),
		Reference: req.Reference,
		Confirmed: req.Confirmed,
		Actor:     req.Actor,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate(r, p.BookingID)
	balance := toBalanceDTO(rec)
	writeJSON(w, http.StatusCreated, PaymentResultDTO{Payment: toPaymentDTO(*p), Balance: &balance})
}

// ConfirmPayment confirms a PENDING payment. Repeating it is harmless.
// POST /api/payments/{id}/confirm
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, rec, err := h.Service.ConfirmPayment(r.Context(), tenantOf(r), core.PaymentID(chi.URLParam(r, "id")), req.Actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate(r, p.BookingID)
	balance := toBalanceDTO(rec)
	writeJSON(w, http.StatusOK, PaymentResultDTO{Payment: toPaymentDTO(*p), Balance: &balance})
}

// FailPayment marks a PENDING payment as FAILED.
// POST /api/payments/{id}/fail
func (h *Handler) FailPayment(w http.ResponseWriter, r *http.Request) {
	var req FailPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Service.FailPayment(r.Context(), tenantOf(r), core.PaymentID(chi.URLParam(r, "id")), req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.invalidate(r, p.BookingID)
	writeJSON(w, http.StatusOK, PaymentResultDTO{Payment: toPaymentDTO(*p)})
}

// =============================================================================
// UNIT HANDLERS
// =============================================================================

// CheckAvailability reports whether an interval is free on a unit.
// GET /api/units/{id}/availability?check_in=&check_out=&exclude=
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stay, err := queryStay(q.Get("check_in"), q.Get("check_out"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	a, err := h.Service.CheckAvailability(r.Context(), tenantOf(r), core.UnitID(chi.URLParam(r, "id")), stay, core.BookingID(q.Get("exclude")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	conflicts := make([]string, len(a.Conflicts))
	for i, id := range a.Conflicts {
		conflicts[i] = string(id)
	}
	writeJSON(w, http.StatusOK, AvailabilityDTO{
		UnitID:    string(a.UnitID),
		CheckIn:   a.Stay.CheckIn.Format(dateLayout),
		CheckOut:  a.Stay.CheckOut.Format(dateLayout),
		Available: a.Available,
		Conflicts: conflicts,
	})
}

// GetQuote prices a stay from the unit rate.
// GET /api/units/{id}/quote?check_in=&check_out=
func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	stay, err := queryStay(q.Get("check_in"), q.Get("check_out"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	quote, err := h.Service.Quote(r.Context(), tenantOf(r), core.UnitID(chi.URLParam(r, "id")), stay)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteDTO(*quote))
}

func queryStay(checkIn, checkOut string) (core.Interval, error) {
	if err := requiredQuery("check_in", checkIn); err != nil {
		return core.Interval{}, err
	}
	if err := requiredQuery("check_out", checkOut); err != nil {
		return core.Interval{}, err
	}
	return stayFrom(checkIn, checkOut)
}

// =============================================================================
// ADMIN HANDLERS (catalog seeding)
// =============================================================================

// PutTenant stores the calling tenant's settings.
// PUT /api/admin/tenant
func (h *Handler) PutTenant(w http.ResponseWriter, r *http.Request) {
	var req TenantRequest
	if !h.decode(w, r, &req) {
		return
	}
	t := core.Tenant{ID: tenantOf(r), Name: req.Name, Currency: req.Currency, MinDepositPercent: req.MinDepositPercent}
	if err := h.Service.PutTenant(r.Context(), t); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutUnit stores a unit.
// PUT /api/admin/units/{id}
func (h *Handler) PutUnit(w http.ResponseWriter, r *http.Request) {
	var req UnitRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := req.toCore(core.UnitID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Service.PutUnit(r.Context(), tenantOf(r), u); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutGuest stores a guest record.
// PUT /api/admin/guests/{id}
func (h *Handler) PutGuest(w http.ResponseWriter, r *http.Request) {
	var req GuestRequest
	if !h.decode(w, r, &req) {
		return
	}
	g := core.Guest{ID: core.GuestID(chi.URLParam(r, "id")), Details: req.GuestDetailsDTO.toCore()}
	if err := h.Service.PutGuest(r.Context(), tenantOf(r), g); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports database and cache reachability.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthDTO{Status: "ok", Database: "ok", Cache: "disabled"}
	status := http.StatusOK
	if p, ok := h.Store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			resp.Status, resp.Database = "degraded", "unreachable"
			status = http.StatusServiceUnavailable
		}
	}
	if h.Cache.Enabled() {
		resp.Cache = "ok"
	}
	writeJSON(w, status, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func bookingID(r *http.Request) core.BookingID {
	return core.BookingID(chi.URLParam(r, "id"))
}

func (h *Handler) invalidate(r *http.Request, id core.BookingID) {
	h.Cache.Invalidate(r.Context(), tenantOf(r), id)
}

// decode reads an optional JSON body into dst and validates it. An empty
// body decodes to the zero value. It writes the error response and returns
// false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		h.fail(w, r, core.Invalid("body", "malformed JSON: %v", err))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			h.fail(w, r, core.Invalid(jsonField(fe.Namespace()), "failed %q check", fe.Tag()))
			return false
		}
		h.fail(w, r, core.Invalid("body", "%v", err))
		return false
	}
	return true
}

// jsonField keeps the JSON path of a validator namespace: Go type and
// embedded struct names are dropped, so "CheckInRequest.guest.email"
// becomes "guest.email".
func jsonField(namespace string) string {
	var parts []string
	for _, p := range strings.Split(namespace, ".") {
		if p != "" && unicode.IsUpper(rune(p[0])) {
			continue
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, ".")
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrConflict), errors.Is(err, core.ErrState), errors.Is(err, core.ErrIntegrity):
		return http.StatusConflict
	case errors.Is(err, core.ErrPolicy):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func detailsFor(err error) map[string]any {
	var (
		verr *core.ValidationError
		nf   *core.NotFoundError
		cf   *core.ConflictError
		dep  *core.DepositRequiredError
		st   *core.StateError
		ie   *core.IntegrityError
	)
	switch {
	case errors.As(err, &verr):
		return map[string]any{"field": verr.Field}
	case errors.As(err, &nf):
		return map[string]any{"resource": nf.Resource, "id": nf.ID}
	case errors.As(err, &cf):
		d := map[string]any{"unit_id": cf.UnitID}
		if cf.ConflictsWith != "" {
			d["conflicts_with"] = cf.ConflictsWith
		}
		return d
	case errors.As(err, &dep):
		return map[string]any{
			"required":  money(dep.Required.Value),
			"paid":      money(dep.Paid.Value),
			"shortfall": money(dep.Shortfall.Value),
			"currency":  dep.Required.Currency,
		}
	case errors.As(err, &st):
		return map[string]any{"resource": st.Resource, "status": st.Status, "action": st.Action}
	case errors.As(err, &ie):
		return map[string]any{"booking_id": ie.BookingID}
	}
	return nil
}

// fail writes the error response for err.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.WithError(err).WithFields(logrus.Fields{
			"tenant_id":  tenantOf(r),
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).Error("request failed")
		writeJSON(w, status, ErrorResponse{Error: "internal error", Code: core.CodeInternal})
		return
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: core.ErrorCode(err), Details: detailsFor(err)})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
