package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/bookwellhq/bookwell/internal/model"
)

// fakePaymentStore settles at most once, like the predicated UPDATE in the
// real store: a second MarkPaid finds the appointment already paid and
// writes no new lifecycle event.
type fakePaymentStore struct {
	appt       model.Appointment
	paidEvents int
}

func (f *fakePaymentStore) GetByID(ctx context.Context, businessID, id string) (model.Appointment, bool, error) {
	if businessID != f.appt.BusinessID || id != f.appt.ID {
		return model.Appointment{}, false, nil
	}
	return f.appt, true, nil
}

func (f *fakePaymentStore) MarkPaid(ctx context.Context, id string) (model.Appointment, bool, error) {
	if id != f.appt.ID {
		return model.Appointment{}, false, pgx.ErrNoRows
	}
	if f.appt.Pricing.PaymentStatus == model.PaymentPaid {
		return f.appt, false, nil
	}
	f.appt.Pricing.PaymentStatus = model.PaymentPaid
	f.paidEvents++
	return f.appt, true, nil
}

func newWebhookHandler(store *fakePaymentStore, secret string) *PaymentsHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPaymentsHandler(nil, store, logger, secret, 5*time.Minute)
}

func signedCheckoutCompleted(t *testing.T, secret, appointmentID string) *http.Request {
	t.Helper()
	payload := fmt.Sprintf(`{
		"id": "evt_test_1",
		"api_version": %q,
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_test_1", "metadata": {"appointment_id": %q, "business_id": "biz-1"}}}
	}`, stripe.APIVersion, appointmentID)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/webhooks/stripe", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func webhookStatus(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	return body["status"]
}

func TestStripeWebhookMarksPaid(t *testing.T) {
	const secret = "whsec_test"
	store := &fakePaymentStore{appt: model.Appointment{
		ID:         "appt-1",
		BusinessID: "biz-1",
		Pricing:    model.Pricing{PaymentStatus: model.PaymentPending},
	}}
	h := newWebhookHandler(store, secret)

	rec := httptest.NewRecorder()
	h.StripeWebhook(rec, signedCheckoutCompleted(t, secret, "appt-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := webhookStatus(t, rec); got != "ok" {
		t.Fatalf("first delivery should settle, got status %q", got)
	}
	if store.appt.Pricing.PaymentStatus != model.PaymentPaid {
		t.Fatalf("appointment should be paid, got %q", store.appt.Pricing.PaymentStatus)
	}
}

func TestStripeWebhookRedeliveryIsIdempotent(t *testing.T) {
	const secret = "whsec_test"
	store := &fakePaymentStore{appt: model.Appointment{
		ID:         "appt-1",
		BusinessID: "biz-1",
		Pricing:    model.Pricing{PaymentStatus: model.PaymentPending},
	}}
	h := newWebhookHandler(store, secret)

	rec := httptest.NewRecorder()
	h.StripeWebhook(rec, signedCheckoutCompleted(t, secret, "appt-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("first delivery: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.StripeWebhook(rec, signedCheckoutCompleted(t, secret, "appt-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("redelivery must still be acknowledged, got %d", rec.Code)
	}
	if got := webhookStatus(t, rec); got != "already_settled" {
		t.Fatalf("redelivery should report already_settled, got %q", got)
	}
	if store.paidEvents != 1 {
		t.Fatalf("exactly one paid event should be written, got %d", store.paidEvents)
	}
}

func TestStripeWebhookUnknownAppointmentAcknowledged(t *testing.T) {
	const secret = "whsec_test"
	store := &fakePaymentStore{appt: model.Appointment{ID: "appt-1", BusinessID: "biz-1"}}
	h := newWebhookHandler(store, secret)

	rec := httptest.NewRecorder()
	h.StripeWebhook(rec, signedCheckoutCompleted(t, secret, "appt-gone"))
	if rec.Code != http.StatusOK {
		t.Fatalf("deleted appointment must not wedge retries, got %d", rec.Code)
	}
	if got := webhookStatus(t, rec); got != "ignored" {
		t.Fatalf("expected status ignored, got %q", got)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	store := &fakePaymentStore{appt: model.Appointment{ID: "appt-1", BusinessID: "biz-1"}}
	h := newWebhookHandler(store, "whsec_test")

	req := signedCheckoutCompleted(t, "whsec_other", "appt-1")
	rec := httptest.NewRecorder()
	h.StripeWebhook(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("payload signed with the wrong secret should be 400, got %d", rec.Code)
	}
	if store.paidEvents != 0 {
		t.Fatalf("unverified payload must not settle anything")
	}
}
