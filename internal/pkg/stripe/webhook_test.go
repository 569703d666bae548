package stripe

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestConstructEvent_ValidCheckoutSession(t *testing.T) {
	payload := []byte(`{
		"id": "evt_123",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_123",
				"customer": "cus_123",
				"subscription": "sub_123",
				"payment_intent": "pi_123",
				"metadata": {"user_id": "u1", "plan": "annual", "credits": "48000"}
			}
		}
	}`)
	header := SignPayload(payload, "whsec_test", time.Now())

	event, err := ConstructEvent(payload, header, "whsec_test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Type != EventCheckoutSessionCompleted {
		t.Fatalf("unexpected event type %q", event.Type)
	}

	var session CheckoutSessionEvent
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		t.Fatalf("unmarshal object: %v", err)
	}
	if session.PaymentIntent != "pi_123" {
		t.Fatalf("expected payment intent pi_123, got %q", session.PaymentIntent)
	}
	if session.Metadata["plan"] != "annual" {
		t.Fatalf("expected plan metadata, got %v", session.Metadata)
	}
}

func TestConstructEvent_RejectsBadSignatureBeforeParsing(t *testing.T) {
	// Deliberately invalid JSON: with a bad signature it must be
	// rejected without ever being parsed.
	payload := []byte(`{not json at all`)

	_, err := ConstructEvent(payload, "t=1,v1=bad", "whsec_test")
	if err == nil {
		t.Fatal("expected error for bad signature")
	}
	if !errors.Is(err, ErrSignatureTooOld) && !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestConstructEvent_RejectsEventWithoutType(t *testing.T) {
	payload := []byte(`{"id":"evt_1","data":{"object":{}}}`)
	header := SignPayload(payload, "whsec_test", time.Now())

	if _, err := ConstructEvent(payload, header, "whsec_test"); err == nil {
		t.Fatal("expected error for event without type")
	}
}

func TestInvoiceEvent_BillingReason(t *testing.T) {
	raw := []byte(`{
		"id": "in_42",
		"subscription": "sub_42",
		"billing_reason": "subscription_cycle",
		"lines": {"data": [{"price": {"id": "price_weekly"}}]}
	}`)

	var invoice InvoiceEvent
	if err := json.Unmarshal(raw, &invoice); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if invoice.BillingReason != "subscription_cycle" {
		t.Fatalf("unexpected billing reason %q", invoice.BillingReason)
	}
	if len(invoice.Lines.Data) != 1 || invoice.Lines.Data[0].Price.ID != "price_weekly" {
		t.Fatalf("unexpected lines: %+v", invoice.Lines)
	}
}
