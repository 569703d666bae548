package stripe

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestVerifySignature_Valid(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	header := SignPayload(payload, "whsec_test", time.Now())

	if err := VerifySignature(payload, header, "whsec_test", DefaultTolerance); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	header := SignPayload(payload, "whsec_test", time.Now())

	err := VerifySignature(payload, header, "whsec_other", DefaultTolerance)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifySignature_TamperedPayload(t *testing.T) {
	payload := []byte(`{"amount":100}`)
	header := SignPayload(payload, "whsec_test", time.Now())

	err := VerifySignature([]byte(`{"amount":999}`), header, "whsec_test", DefaultTolerance)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for tampered payload, got %v", err)
	}
}

func TestVerifySignature_StaleTimestamp(t *testing.T) {
	payload := []byte(`{}`)
	header := SignPayload(payload, "whsec_test", time.Now().Add(-10*time.Minute))

	err := VerifySignature(payload, header, "whsec_test", DefaultTolerance)
	if !errors.Is(err, ErrSignatureTooOld) {
		t.Fatalf("expected ErrSignatureTooOld, got %v", err)
	}
}

func TestVerifySignature_MissingHeader(t *testing.T) {
	err := VerifySignature([]byte(`{}`), "", "whsec_test", DefaultTolerance)
	if !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}
}

func TestVerifySignature_MalformedHeader(t *testing.T) {
	cases := []string{
		"v1=deadbeef",
		"t=notanumber,v1=deadbeef",
		"t=123",
		"garbage",
	}
	for _, header := range cases {
		err := VerifySignature([]byte(`{}`), header, "whsec_test", 0)
		if !errors.Is(err, ErrMalformedSignature) {
			t.Fatalf("header %q: expected ErrMalformedSignature, got %v", header, err)
		}
	}
}

func TestVerifySignature_SecondSignatureAccepted(t *testing.T) {
	payload := []byte(`{"id":"evt_2"}`)
	now := time.Now()
	good := ComputeSignature(now, payload, "whsec_test")
	header := fmt.Sprintf("t=%d,v1=deadbeef,v1=%s", now.Unix(), good)

	if err := VerifySignature(payload, header, "whsec_test", DefaultTolerance); err != nil {
		t.Fatalf("expected second v1 signature to verify, got %v", err)
	}
}
