// Package schedule implements the appointment booking workflow: slot
// discovery for a date, optional phone OTP verification, and idempotent
// booking submission.
package schedule

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/servicechat/console/internal/api"
	"github.com/servicechat/console/internal/model"
	"github.com/servicechat/console/pkg/logger"
	"github.com/servicechat/console/pkg/metrics"
)

var (
	ErrDateRequired  = &api.ValidationError{Field: "date", Reason: "is required before fetching slots"}
	ErrPhoneRequired = &api.ValidationError{Field: "phone", Reason: "is required"}
	ErrOtpRequired   = &api.ValidationError{Field: "code", Reason: "is required"}

	// ErrIncompleteBooking blocks submission when name, email, or slot is
	// missing.
	ErrIncompleteBooking = &api.ValidationError{Field: "booking", Reason: "needs name, email and a selected slot"}

	// ErrPhoneUnverified blocks submission when the RequirePhoneVerification
	// policy is on and the phone has not been verified.
	ErrPhoneUnverified = &api.ValidationError{Field: "phone", Reason: "must be verified before booking"}

	// ErrSlotFetchFailed is the advisory for a degraded slot lookup; the
	// workflow stays usable and the slot list is empty.
	ErrSlotFetchFailed = errors.New("unable to fetch slots, try again later")

	// ErrBookingFailed is the generic submission failure when the backend
	// provides no message of its own.
	ErrBookingFailed = errors.New("booking failed")
)

// SlotsState is the slot-discovery side of the workflow.
type SlotsState string

const (
	SlotsIdle    SlotsState = "idle"
	SlotsLoading SlotsState = "loading"
	SlotsReady   SlotsState = "ready"
	SlotSelected SlotsState = "selected"
)

// VerificationState is the independent phone-verification sub-state.
type VerificationState string

const (
	Unverified VerificationState = "unverified"
	OtpSent    VerificationState = "otp_sent"
	Verified   VerificationState = "verified"
)

// BookingState is the submission side of the workflow. Failed permits
// re-submission; the idempotency key keeps repeats collapsing server-side.
type BookingState string

const (
	BookingIdle     BookingState = "idle"
	BookingInFlight BookingState = "booking"
	Booked          BookingState = "booked"
	BookingFailed   BookingState = "failed"
)

// Policy holds the named gates the integrating system can turn on.
type Policy struct {
	// RequirePhoneVerification gates SubmitBooking on a verified phone and
	// invalidates verification when the selected slot changes.
	RequirePhoneVerification bool
}

// Workflow drives one booking form.
type Workflow struct {
	transport *api.Client
	logger    *logger.Logger
	policy    Policy

	mu           sync.Mutex
	slotsState   SlotsState
	slots        []model.Slot
	selected     *model.Slot
	phone        string
	verification VerificationState
	bookingState BookingState
	reference    *model.BookingReference
}

// New creates a booking workflow.
func New(transport *api.Client, policy Policy, log *logger.Logger) *Workflow {
	return &Workflow{
		transport:    transport,
		logger:       log,
		policy:       policy,
		slotsState:   SlotsIdle,
		verification: Unverified,
		bookingState: BookingIdle,
	}
}

// FetchSlots loads bookable slots for a date, always sorted ascending by
// start time. An empty list is a valid "no availability" result. A
// transport failure degrades to an empty list; the returned error is the
// user-facing advisory, not a fatal condition.
func (w *Workflow) FetchSlots(ctx context.Context, date string) ([]model.Slot, error) {
	if date == "" {
		return nil, ErrDateRequired
	}

	w.mu.Lock()
	w.slotsState = SlotsLoading
	w.slots = nil
	w.selected = nil
	w.mu.Unlock()

	var slots []model.Slot
	query := url.Values{"date": {date}}
	err := w.transport.Get(ctx, "schedule.slots", "/v1/schedule/slots", query, &slots, api.RetryReads)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.logger.Warn("slot fetch failed", zap.String("date", date), zap.Error(err))
		w.slotsState = SlotsReady
		return []model.Slot{}, fmt.Errorf("%w: %v", ErrSlotFetchFailed, err)
	}

	sort.Slice(slots, func(i, j int) bool {
		return slots[i].Start.Before(slots[j].Start)
	})
	w.slots = slots
	w.slotsState = SlotsReady
	return slots, nil
}

// SelectSlot marks the slot the booking will target. Under the per-booking
// verification policy, changing the slot invalidates a previous
// verification.
func (w *Workflow) SelectSlot(slot model.Slot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.selected != nil && !w.selected.Start.Equal(slot.Start) && w.policy.RequirePhoneVerification {
		w.verification = Unverified
	}
	s := slot
	w.selected = &s
	w.slotsState = SlotSelected
}

// SetPhone records the phone under verification. Changing the number always
// resets verification.
func (w *Workflow) SetPhone(phone string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if phone != w.phone {
		w.phone = phone
		w.verification = Unverified
	}
}

// RequestOTP asks the backend to deliver a one-time code to the phone.
func (w *Workflow) RequestOTP(ctx context.Context, phone string) error {
	if phone == "" {
		return ErrPhoneRequired
	}
	w.SetPhone(phone)

	body := map[string]string{"phone": phone}
	if err := w.transport.Post(ctx, "auth.otp_request", "/v1/auth/otp/request", body, nil, api.RetryNone); err != nil {
		return err
	}

	w.mu.Lock()
	w.verification = OtpSent
	w.mu.Unlock()
	return nil
}

// VerificationResult is the tagged outcome of an OTP check.
type VerificationResult struct {
	Verified bool
	Reason   string
}

// VerifyOTP checks the code against the backend. Transport success alone is
// not trusted as verification: when the payload carries an explicit success
// flag, the flag decides the outcome. A structured rejection becomes a
// non-verified outcome carrying the server's reason; only transport
// failures are returned as errors.
func (w *Workflow) VerifyOTP(ctx context.Context, phone, code string) (VerificationResult, error) {
	if phone == "" {
		return VerificationResult{}, ErrPhoneRequired
	}
	if code == "" {
		return VerificationResult{}, ErrOtpRequired
	}
	w.SetPhone(phone)

	var resp struct {
		Success  *bool  `json:"success"`
		Verified *bool  `json:"verified"`
		Reason   string `json:"reason"`
		Error    string `json:"error"`
	}
	body := map[string]string{"phone": phone, "code": code}
	err := w.transport.Post(ctx, "auth.otp_verify", "/v1/auth/otp/verify", body, &resp, api.RetryNone)
	if err != nil {
		var rejection *api.BusinessRejection
		if errors.As(err, &rejection) {
			metrics.OtpVerificationsTotal.WithLabelValues("rejected").Inc()
			return VerificationResult{Verified: false, Reason: rejection.Message}, nil
		}
		metrics.OtpVerificationsTotal.WithLabelValues("error").Inc()
		return VerificationResult{}, err
	}

	result := VerificationResult{Verified: true}
	flag := resp.Success
	if flag == nil {
		flag = resp.Verified
	}
	if flag != nil && !*flag {
		result.Verified = false
		result.Reason = firstNonEmpty(resp.Reason, resp.Error, "verification rejected")
	}

	w.mu.Lock()
	if result.Verified {
		w.verification = Verified
	} else {
		w.verification = Unverified
	}
	w.mu.Unlock()

	if result.Verified {
		metrics.OtpVerificationsTotal.WithLabelValues("verified").Inc()
	} else {
		metrics.OtpVerificationsTotal.WithLabelValues("rejected").Inc()
	}
	return result, nil
}

// IdempotencyKey derives the deterministic key that lets the backend
// collapse repeated submissions of the same logical booking. It is a pure
// function of the slot start and the customer email.
func IdempotencyKey(start time.Time, email string) string {
	sum := sha256.Sum256([]byte(start.UTC().Format(time.RFC3339) + "|" + email))
	return "bk-" + hex.EncodeToString(sum[:])[:16]
}

// SubmitBooking submits a booking for the slot. Failure leaves the workflow
// resubmittable with the same key, so a retry after a network failure
// yields exactly one booking server-side.
func (w *Workflow) SubmitBooking(ctx context.Context, info model.CustomerInfo, slot *model.Slot) (*model.BookingReference, error) {
	if info.Name == "" || info.Email == "" || slot == nil {
		return nil, ErrIncompleteBooking
	}

	w.mu.Lock()
	if w.policy.RequirePhoneVerification && w.verification != Verified {
		w.mu.Unlock()
		return nil, ErrPhoneUnverified
	}
	w.bookingState = BookingInFlight
	w.mu.Unlock()

	req := model.BookingRequest{
		Customer:       info,
		Start:          slot.Start,
		End:            slot.End,
		ServiceID:      firstNonEmpty(slot.ServiceID, "default"),
		IdempotencyKey: IdempotencyKey(slot.Start, info.Email),
		Meta:           map[string]any{"booked_from": "console"},
	}

	var ref model.BookingReference
	err := w.transport.Post(ctx, "schedule.book", "/v1/schedule/book", req, &ref, api.RetryReads)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.bookingState = BookingFailed
		metrics.BookingsTotal.WithLabelValues("failed").Inc()
		w.logger.Warn("booking failed",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Error(err),
		)
		var rejection *api.BusinessRejection
		if errors.As(err, &rejection) {
			return nil, fmt.Errorf("%w: %s", ErrBookingFailed, rejection.Message)
		}
		return nil, fmt.Errorf("%w: %v", ErrBookingFailed, err)
	}

	w.bookingState = Booked
	w.reference = &ref
	metrics.BookingsTotal.WithLabelValues("booked").Inc()
	w.logger.Info("booking confirmed", zap.String("booking_ref", ref.Ref()))
	return &ref, nil
}

// Reschedule moves an existing booking to a new window.
func (w *Workflow) Reschedule(ctx context.Context, bookingRef string, start, end time.Time) error {
	if bookingRef == "" {
		return &api.ValidationError{Field: "booking_ref", Reason: "is required"}
	}
	req := model.RescheduleRequest{BookingRef: bookingRef, Start: start, End: end}
	return w.transport.Post(ctx, "schedule.reschedule", "/v1/schedule/reschedule", req, nil, api.RetryNone)
}

// Cancel cancels an existing booking.
func (w *Workflow) Cancel(ctx context.Context, bookingRef string) error {
	if bookingRef == "" {
		return &api.ValidationError{Field: "booking_ref", Reason: "is required"}
	}
	req := model.CancelRequest{BookingRef: bookingRef}
	return w.transport.Post(ctx, "schedule.cancel", "/v1/schedule/cancel", req, nil, api.RetryNone)
}

// BookingsByEmail lists a customer's existing bookings, used by the
// reschedule and cancel flows.
func (w *Workflow) BookingsByEmail(ctx context.Context, email string) ([]model.Booking, error) {
	if email == "" {
		return nil, &api.ValidationError{Field: "email", Reason: "is required"}
	}
	var bookings []model.Booking
	query := url.Values{"email": {email}}
	if err := w.transport.Get(ctx, "schedule.bookings", "/v1/schedule/bookings", query, &bookings, api.RetryReads); err != nil {
		return nil, err
	}
	return bookings, nil
}

// Slots returns the current slot list.
func (w *Workflow) Slots() []model.Slot {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]model.Slot, len(w.slots))
	copy(out, w.slots)
	return out
}

// Selected returns the slot the booking targets, or nil.
func (w *Workflow) Selected() *model.Slot {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.selected == nil {
		return nil
	}
	s := *w.selected
	return &s
}

// Verification returns the phone verification sub-state.
func (w *Workflow) Verification() VerificationState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.verification
}

// BookingStatus returns the submission state and reference, if booked.
func (w *Workflow) BookingStatus() (BookingState, *model.BookingReference) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bookingState, w.reference
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
