package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/servicechat/console/internal/api"
	"github.com/servicechat/console/internal/middleware"
	"github.com/servicechat/console/internal/model"
	"github.com/servicechat/console/internal/schedule"
	"github.com/servicechat/console/pkg/logger"
)

// maxOpenForms bounds the booking form registry; the stalest form is
// evicted when a new one would exceed it.
const maxOpenForms = 128

// BookingHandler bridges booking forms to workflow instances, one per
// form. Slot selection and phone verification are form-local state: a
// verification performed by one client must never unlock submission for
// another.
type BookingHandler struct {
	transport *api.Client
	policy    schedule.Policy
	logger    *logger.Logger

	mu    sync.Mutex
	forms map[string]*formEntry
}

type formEntry struct {
	workflow *schedule.Workflow
	lastUsed time.Time
}

// NewBookingHandler creates a new booking handler.
func NewBookingHandler(transport *api.Client, policy schedule.Policy, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		transport: transport,
		policy:    policy,
		logger:    log,
		forms:     make(map[string]*formEntry),
	}
}

// formFor returns the workflow owning the requesting form's state. The
// form is identified by the X-Booking-Form header; clients that do not
// send one are keyed by their address so state never crosses clients.
func (h *BookingHandler) formFor(r *http.Request) *schedule.Workflow {
	key := r.Header.Get("X-Booking-Form")
	if key == "" {
		key = clientAddr(r)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.forms[key]
	if !ok {
		if len(h.forms) >= maxOpenForms {
			h.evictStalestLocked()
		}
		e = &formEntry{workflow: schedule.New(h.transport, h.policy, h.logger)}
		h.forms[key] = e
	}
	e.lastUsed = time.Now()
	return e.workflow
}

func (h *BookingHandler) evictStalestLocked() {
	var stalest string
	var oldest time.Time
	for key, e := range h.forms {
		if stalest == "" || e.lastUsed.Before(oldest) {
			stalest = key
			oldest = e.lastUsed
		}
	}
	delete(h.forms, stalest)
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type slotsResponse struct {
	Slots  []model.Slot `json:"slots"`
	Notice string       `json:"notice,omitempty"`
}

// Slots handles GET /console/schedule/slots?date=. A degraded lookup still
// returns 200 with an empty list and an advisory notice.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if err := middleware.ValidateDate(date); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slots, err := h.formFor(r).FetchSlots(r.Context(), date)
	if err != nil {
		if errors.Is(err, schedule.ErrSlotFetchFailed) {
			writeJSON(w, http.StatusOK, slotsResponse{Slots: []model.Slot{}, Notice: schedule.ErrSlotFetchFailed.Error()})
			return
		}
		writeAPIError(w, err)
		return
	}
	if slots == nil {
		slots = []model.Slot{}
	}
	writeJSON(w, http.StatusOK, slotsResponse{Slots: slots})
}

type otpRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code,omitempty"`
}

// RequestOTP handles POST /console/schedule/otp/request.
func (h *BookingHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.formFor(r).RequestOTP(r.Context(), req.Phone); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "otp_sent"})
}

// VerifyOTP handles POST /console/schedule/otp/verify.
func (h *BookingHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.formFor(r).VerifyOTP(r.Context(), req.Phone, req.Code)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"verified": result.Verified,
		"reason":   result.Reason,
	})
}

type bookRequest struct {
	Customer model.CustomerInfo `json:"customer"`
	Slot     *model.Slot        `json:"slot"`
}

// Book handles POST /console/schedule/book.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	wf := h.formFor(r)
	if req.Slot != nil {
		wf.SelectSlot(*req.Slot)
	}
	ref, err := wf.SubmitBooking(r.Context(), req.Customer, req.Slot)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

type rescheduleRequest struct {
	BookingRef string    `json:"booking_ref"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// Reschedule handles POST /console/schedule/reschedule.
func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.formFor(r).Reschedule(r.Context(), req.BookingRef, req.Start, req.End); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rescheduled"})
}

// Cancel handles POST /console/schedule/cancel.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.formFor(r).Cancel(r.Context(), req.BookingRef); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// Bookings handles GET /console/schedule/bookings?email=.
func (h *BookingHandler) Bookings(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	bookings, err := h.formFor(r).BookingsByEmail(r.Context(), email)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if bookings == nil {
		bookings = []model.Booking{}
	}
	writeJSON(w, http.StatusOK, bookings)
}
