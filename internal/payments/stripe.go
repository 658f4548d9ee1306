// Package payments integrates Stripe Checkout for collecting appointment
// payments up front.
package payments

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"

	"github.com/bookwellhq/bookwell/internal/model"
)

var ErrNotConfigured = errors.New("stripe is not configured")

type Checkout struct {
	secretKey  string
	successURL string
	cancelURL  string
}

type CheckoutConfig struct {
	SecretKey  string
	SuccessURL string
	CancelURL  string
}

func NewCheckout(cfg CheckoutConfig) *Checkout {
	return &Checkout{
		secretKey:  cfg.SecretKey,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
	}
}

func (c *Checkout) Enabled() bool { return c.secretKey != "" }

type Session struct {
	ID  string
	URL string
}

// CreateSession opens a one-off payment session for the appointment total.
// The appointment id rides along as metadata so the webhook can mark the
// right appointment paid.
func (c *Checkout) CreateSession(ctx context.Context, appt model.Appointment) (Session, error) {
	if !c.Enabled() {
		return Session{}, ErrNotConfigured
	}
	stripe.Key = c.secretKey

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(c.successURL),
		CancelURL:         stripe.String(c.cancelURL),
		ClientReferenceID: stripe.String(appt.ID),
		CustomerEmail:     stripe.String(appt.Client.Email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(appt.Pricing.TotalAmount.Currency),
					UnitAmount: stripe.Int64(appt.Pricing.TotalAmount.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Appointment deposit"),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("appointment_id", appt.ID)
	params.AddMetadata("business_id", appt.BusinessID)
	// One session per appointment; a retried request reuses the session.
	params.IdempotencyKey = stripe.String("appt-checkout-" + appt.ID)

	sess, err := checkoutsession.New(params)
	if err != nil {
		return Session{}, err
	}
	return Session{ID: sess.ID, URL: sess.URL}, nil
}
