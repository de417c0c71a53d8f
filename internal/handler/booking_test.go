package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servicechat/console/internal/api"
	"github.com/servicechat/console/internal/schedule"
	"github.com/servicechat/console/pkg/logger"
)

func newTestBookingHandler(t *testing.T, policy schedule.Policy, backend http.HandlerFunc) *BookingHandler {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)
	return NewBookingHandler(api.New(srv.URL, logger.NewNop()), policy, logger.NewNop())
}

func formRequest(method, target, form, body string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	if form != "" {
		r.Header.Set("X-Booking-Form", form)
	}
	return r
}

const bookBody = `{
	"customer": {"name": "Ann", "email": "ann@example.com"},
	"slot": {"start": "2026-09-01T09:00:00Z", "end": "2026-09-01T09:30:00Z", "service_id": "consult"}
}`

func TestVerificationDoesNotCrossForms(t *testing.T) {
	h := newTestBookingHandler(t, schedule.Policy{RequirePhoneVerification: true}, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/auth/otp/verify":
			w.Write([]byte(`{"success":true}`))
		case "/v1/schedule/book":
			w.Write([]byte(`{"booking_ref":"bk-1"}`))
		default:
			w.Write([]byte(`{}`))
		}
	})

	// Form A verifies its phone.
	rec := httptest.NewRecorder()
	h.VerifyOTP(rec, formRequest(http.MethodPost, "/console/schedule/otp/verify", "form-a", `{"phone":"+15550001111","code":"123456"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var verifyResp struct {
		Verified bool `json:"verified"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verifyResp))
	require.True(t, verifyResp.Verified)

	// Form B never verified; its submission must stay gated.
	rec = httptest.NewRecorder()
	h.Book(rec, formRequest(http.MethodPost, "/console/schedule/book", "form-b", bookBody))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "verified")

	// Form A's own submission goes through.
	rec = httptest.NewRecorder()
	h.Book(rec, formRequest(http.MethodPost, "/console/schedule/book", "form-a", bookBody))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "bk-1")
}

func TestFormsWithoutHeaderKeyedByClientAddr(t *testing.T) {
	h := newTestBookingHandler(t, schedule.Policy{RequirePhoneVerification: true}, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/auth/otp/verify":
			w.Write([]byte(`{"success":true}`))
		case "/v1/schedule/book":
			w.Write([]byte(`{"booking_ref":"bk-1"}`))
		default:
			w.Write([]byte(`{}`))
		}
	})

	verify := formRequest(http.MethodPost, "/console/schedule/otp/verify", "", `{"phone":"+15550001111","code":"123456"}`)
	verify.RemoteAddr = "10.0.0.1:50000"
	rec := httptest.NewRecorder()
	h.VerifyOTP(rec, verify)
	require.Equal(t, http.StatusOK, rec.Code)

	book := formRequest(http.MethodPost, "/console/schedule/book", "", bookBody)
	book.RemoteAddr = "10.0.0.2:50000"
	rec = httptest.NewRecorder()
	h.Book(rec, book)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Same client, new connection port: still the same form.
	book = formRequest(http.MethodPost, "/console/schedule/book", "", bookBody)
	book.RemoteAddr = "10.0.0.1:50001"
	rec = httptest.NewRecorder()
	h.Book(rec, book)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestFormRegistryIsBounded(t *testing.T) {
	h := newTestBookingHandler(t, schedule.Policy{}, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	for i := 0; i < maxOpenForms+10; i++ {
		r := formRequest(http.MethodGet, "/console/schedule/slots?date=2026-09-01", "form-"+strconv.Itoa(i), "")
		h.formFor(r)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.LessOrEqual(t, len(h.forms), maxOpenForms)
}
