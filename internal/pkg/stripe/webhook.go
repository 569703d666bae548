package stripe

import (
	"encoding/json"
	"fmt"
	"time"
)

// Webhook event types this service handles
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded  = "invoice.payment_succeeded"
)

// Event is a Stripe webhook event envelope
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// CheckoutSessionEvent is the object of a checkout.session.completed event
type CheckoutSessionEvent struct {
	ID            string            `json:"id"`
	Customer      string            `json:"customer"`
	Subscription  string            `json:"subscription"`
	PaymentIntent string            `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

// SubscriptionEvent is the object of a customer.subscription.* event
type SubscriptionEvent struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
	Items    struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// InvoiceEvent is the object of an invoice.payment_succeeded event
type InvoiceEvent struct {
	ID            string `json:"id"`
	Subscription  string `json:"subscription"`
	PaymentIntent string `json:"payment_intent"`
	BillingReason string `json:"billing_reason"`
	Lines         struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"lines"`
}

// ConstructEvent verifies the payload signature and parses the event
// envelope. Returns an error without parsing if verification fails.
func ConstructEvent(payload []byte, sigHeader, secret string) (*Event, error) {
	if err := VerifySignature(payload, sigHeader, secret, DefaultTolerance); err != nil {
		return nil, err
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("stripe: parse event: %w", err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("stripe: event has no type")
	}

	return &event, nil
}

// SignPayload builds a valid Stripe-Signature header for a payload.
// Used by tests and local webhook replay tooling.
func SignPayload(payload []byte, secret string, t time.Time) string {
	return fmt.Sprintf("t=%d,v1=%s", t.Unix(), ComputeSignature(t, payload, secret))
}
