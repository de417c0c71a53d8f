package model

import "time"

// Slot is one bookable time window. Slots are immutable once fetched and
// live only for the duration of one date's lookup.
type Slot struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	ServiceID   string    `json:"service_id"`
	ServiceName string    `json:"service_name,omitempty"`
	Price       *float64  `json:"price,omitempty"`
}

// CustomerInfo is the contact information attached to a booking.
type CustomerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// BookingRequest is the body for POST /v1/schedule/book.
type BookingRequest struct {
	Customer       CustomerInfo   `json:"customer"`
	Start          time.Time      `json:"start"`
	End            time.Time      `json:"end"`
	ServiceID      string         `json:"service_id"`
	IdempotencyKey string         `json:"idempotency_key"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// BookingReference is the backend's acknowledgment of a booking. Which of
// the two fields is populated depends on the calendar provider.
type BookingReference struct {
	BookingRef string `json:"booking_ref,omitempty"`
	EventID    string `json:"event_id,omitempty"`
}

// Ref returns the usable reference string.
func (r BookingReference) Ref() string {
	if r.BookingRef != "" {
		return r.BookingRef
	}
	return r.EventID
}

// Booking is an existing appointment as listed by GET /v1/schedule/bookings.
type Booking struct {
	BookingRef string    `json:"booking_ref"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	ServiceID  string    `json:"service_id,omitempty"`
	Status     string    `json:"status,omitempty"`
}

// RescheduleRequest is the body for POST /v1/schedule/reschedule.
type RescheduleRequest struct {
	BookingRef string    `json:"booking_ref"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// CancelRequest is the body for POST /v1/schedule/cancel.
type CancelRequest struct {
	BookingRef string `json:"booking_ref"`
}
