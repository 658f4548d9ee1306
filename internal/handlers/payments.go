package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/bookwellhq/bookwell/internal/model"
	"github.com/bookwellhq/bookwell/internal/payments"
	"github.com/bookwellhq/bookwell/internal/storage"
)

// appointmentPayments is the slice of the appointment store the payment
// flow needs.
type appointmentPayments interface {
	GetByID(ctx context.Context, businessID, id string) (model.Appointment, bool, error)
	MarkPaid(ctx context.Context, id string) (model.Appointment, bool, error)
}

type PaymentsHandler struct {
	checkout         *payments.Checkout
	appts            appointmentPayments
	logger           *slog.Logger
	webhookSecret    string
	webhookTolerance time.Duration
}

func NewPaymentsHandler(checkout *payments.Checkout, appts appointmentPayments, logger *slog.Logger, webhookSecret string, webhookTolerance time.Duration) *PaymentsHandler {
	if webhookTolerance <= 0 {
		webhookTolerance = 300 * time.Second
	}
	return &PaymentsHandler{
		checkout:         checkout,
		appts:            appts,
		logger:           logger,
		webhookSecret:    webhookSecret,
		webhookTolerance: webhookTolerance,
	}
}

type checkoutRequest struct {
	BusinessID    string `json:"business_id"`
	AppointmentID string `json:"appointment_id"`
}

// CreateCheckout opens a Stripe Checkout session for an unpaid appointment
// and returns the hosted payment page URL.
func (h *PaymentsHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !h.checkout.Enabled() {
		http.Error(w, "payments not configured", http.StatusServiceUnavailable)
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.BusinessID == "" || req.AppointmentID == "" {
		http.Error(w, "business_id and appointment_id required", http.StatusBadRequest)
		return
	}

	appt, ok, err := h.appts.GetByID(r.Context(), req.BusinessID, req.AppointmentID)
	if err != nil {
		http.Error(w, "failed to load appointment", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "appointment not found", http.StatusNotFound)
		return
	}
	if appt.Pricing.PaymentStatus != model.PaymentPending {
		writeError(w, http.StatusConflict, "already_settled", "appointment payment is not pending")
		return
	}

	sess, err := h.checkout.CreateSession(r.Context(), appt)
	if err != nil {
		h.logger.Error("stripe checkout session failed", "err", err, "appointment_id", appt.ID)
		http.Error(w, "failed to create checkout session", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"session_id":   sess.ID,
		"checkout_url": sess.URL,
	})
}

// StripeWebhook marks appointments paid when their checkout session
// completes. Signature verification is the authentication; the route is
// public.
func (h *PaymentsHandler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.TrimSpace(h.webhookSecret) == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.webhookSecret, h.webhookTolerance)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	if evt.Type != "checkout.session.completed" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
		h.logger.Error("stripe: invalid checkout session payload", "err", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	appointmentID := strings.TrimSpace(session.Metadata["appointment_id"])
	if appointmentID == "" {
		h.logger.Warn("stripe: checkout session without appointment_id metadata", "session_id", session.ID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	appt, applied, err := h.appts.MarkPaid(r.Context(), appointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			// Stripe retries; acknowledge so a deleted appointment does not
			// wedge the webhook queue.
			h.logger.Warn("stripe: paid appointment no longer exists", "appointment_id", appointmentID)
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		http.Error(w, "failed to mark appointment paid", http.StatusInternalServerError)
		return
	}
	if !applied {
		// Redelivered event; the appointment was settled by an earlier one.
		writeJSON(w, http.StatusOK, map[string]string{"status": "already_settled"})
		return
	}

	h.logger.Info("appointment paid", "appointment_id", appt.ID, "business_id", appt.BusinessID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
