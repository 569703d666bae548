package billing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/petgroove/petgroove-api/internal/domain/credit"
	"github.com/petgroove/petgroove-api/internal/domain/user"
	"github.com/petgroove/petgroove-api/internal/pkg/stripe"
)

// PaymentClient is the Stripe surface the billing service consumes
type PaymentClient interface {
	CreateCustomer(ctx context.Context, email, userID string) (*stripe.Customer, error)
	CreateCheckoutSession(ctx context.Context, params stripe.CheckoutParams) (*stripe.CheckoutSession, error)
}

// Config holds the Stripe price mapping and redirect URLs
type Config struct {
	WeeklyPriceID string
	AnnualPriceID string
	FrontendURL   string
	WebhookSecret string
}

// Service handles checkout and webhook-driven billing state
type Service struct {
	userRepo user.Repository
	ledger   credit.Ledger
	payments PaymentClient
	cfg      Config
}

// NewService creates billing service
func NewService(userRepo user.Repository, ledger credit.Ledger, payments PaymentClient, cfg Config) *Service {
	return &Service{
		userRepo: userRepo,
		ledger:   ledger,
		payments: payments,
		cfg:      cfg,
	}
}

// WebhookSecret exposes the signing secret for the webhook handler
func (s *Service) WebhookSecret() string {
	return s.cfg.WebhookSecret
}

// CreateCheckout creates (or reuses) the Stripe customer and opens a
// hosted checkout session for the plan.
func (s *Service) CreateCheckout(ctx context.Context, userID uuid.UUID, planID string) (*CheckoutResponse, error) {
	plan, ok := PlanByID(planID)
	if !ok {
		return nil, ErrUnknownPlan
	}

	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, ErrUserNotFound
	}

	customerID := u.StripeCustomerID.String
	if customerID == "" {
		customer, err := s.payments.CreateCustomer(ctx, u.Email, u.ID.String())
		if err != nil {
			return nil, fmt.Errorf("create stripe customer: %w", err)
		}
		customerID = customer.ID
		if err := s.userRepo.SetStripeCustomerID(ctx, u.ID, customerID); err != nil {
			return nil, err
		}
	}

	session, err := s.payments.CreateCheckoutSession(ctx, stripe.CheckoutParams{
		CustomerID: customerID,
		Mode:       plan.Mode,
		PriceID:    s.priceForPlan(plan.ID),
		SuccessURL: s.cfg.FrontendURL + "/account?checkout=success",
		CancelURL:  s.cfg.FrontendURL + "/subscribe?checkout=canceled",
		Metadata: map[string]string{
			"user_id": u.ID.String(),
			"plan":    plan.ID,
			"credits": fmt.Sprintf("%d", plan.Credits),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	return &CheckoutResponse{SessionID: session.ID, CheckoutURL: session.URL}, nil
}

func (s *Service) priceForPlan(planID string) string {
	switch planID {
	case PlanWeeklyTrial:
		return s.cfg.WeeklyPriceID
	case PlanAnnual:
		return s.cfg.AnnualPriceID
	}
	return ""
}

// ProcessEvent dispatches a verified webhook event. Unhandled event
// types are acknowledged and ignored.
func (s *Service) ProcessEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case stripe.EventCheckoutSessionCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case stripe.EventSubscriptionUpdated, stripe.EventSubscriptionDeleted:
		return s.handleSubscriptionChanged(ctx, event)
	case stripe.EventInvoicePaymentSucceeded:
		return s.handleInvoicePaid(ctx, event)
	default:
		log.Debug().Str("event_type", event.Type).Msg("ignoring stripe event")
		return nil
	}
}

// handleCheckoutCompleted activates the plan and grants its credits.
// The credit reference comes from the payment intent (falling back to
// the session ID), so replayed deliveries never double-credit.
func (s *Service) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) error {
	var session stripe.CheckoutSessionEvent
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return fmt.Errorf("parse checkout session: %w", err)
	}

	userID, err := uuid.Parse(session.Metadata["user_id"])
	if err != nil {
		return fmt.Errorf("checkout session %s has no valid user_id metadata", session.ID)
	}
	plan, ok := PlanByID(session.Metadata["plan"])
	if !ok {
		return fmt.Errorf("checkout session %s has unknown plan %q", session.ID, session.Metadata["plan"])
	}

	if err := s.userRepo.UpdateSubscription(ctx, userID, plan.Tier, user.StatusActive, session.Subscription); err != nil {
		return err
	}

	reference := session.PaymentIntent
	if reference == "" {
		reference = session.ID
	}
	if err := s.ledger.Credit(ctx, userID, plan.Credits, credit.TransactionTypeSubscription, reference); err != nil {
		return err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("plan", plan.ID).
		Int("credits", plan.Credits).
		Msg("checkout completed")
	return nil
}

// handleSubscriptionChanged syncs the vendor subscription status onto
// the user. Never grants credits.
func (s *Service) handleSubscriptionChanged(ctx context.Context, event *stripe.Event) error {
	var sub stripe.SubscriptionEvent
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return fmt.Errorf("parse subscription: %w", err)
	}

	u, err := s.userRepo.GetByStripeSubscriptionID(ctx, sub.ID)
	if err != nil {
		// Subscription we never issued (or user deleted). Acknowledge.
		log.Warn().Str("subscription_id", sub.ID).Msg("subscription event for unknown user")
		return nil
	}

	if event.Type == stripe.EventSubscriptionDeleted {
		return s.userRepo.UpdateSubscription(ctx, u.ID, user.TierNone, user.StatusCanceled, "")
	}

	status, ok := mapSubscriptionStatus(sub.Status)
	if !ok {
		log.Warn().
			Str("subscription_id", sub.ID).
			Str("vendor_status", sub.Status).
			Msg("unrecognized subscription status, leaving user unchanged")
		return nil
	}
	return s.userRepo.UpdateSubscriptionStatus(ctx, u.ID, status)
}

// handleInvoicePaid grants the weekly credit allowance on renewals.
// The first billing period was already credited at checkout, so
// subscription_create invoices are skipped; the invoice ID keys the
// ledger entry so a redelivered event credits a period exactly once.
func (s *Service) handleInvoicePaid(ctx context.Context, event *stripe.Event) error {
	var invoice stripe.InvoiceEvent
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		return fmt.Errorf("parse invoice: %w", err)
	}

	if invoice.BillingReason != "subscription_cycle" {
		return nil
	}
	if !s.invoiceHasPrice(&invoice, s.cfg.WeeklyPriceID) {
		return nil
	}

	u, err := s.userRepo.GetByStripeSubscriptionID(ctx, invoice.Subscription)
	if err != nil {
		log.Warn().Str("subscription_id", invoice.Subscription).Msg("invoice for unknown subscription")
		return nil
	}

	// After the first paid renewal the trial becomes a regular weekly plan
	if u.SubscriptionTier == user.TierTrial {
		if err := s.userRepo.UpdateSubscription(ctx, u.ID, user.TierWeekly, user.StatusActive, invoice.Subscription); err != nil {
			return err
		}
	}

	if err := s.ledger.Credit(ctx, u.ID, WeeklyCredits, credit.TransactionTypeSubscription, invoice.ID); err != nil {
		return err
	}

	log.Info().
		Str("user_id", u.ID.String()).
		Str("invoice_id", invoice.ID).
		Int("credits", WeeklyCredits).
		Msg("subscription renewed")
	return nil
}

func (s *Service) invoiceHasPrice(invoice *stripe.InvoiceEvent, priceID string) bool {
	if priceID == "" {
		return false
	}
	for _, line := range invoice.Lines.Data {
		if line.Price.ID == priceID {
			return true
		}
	}
	return false
}

// mapSubscriptionStatus maps Stripe subscription statuses onto the
// internal closed set; ok is false for strings we do not recognize.
func mapSubscriptionStatus(raw string) (user.SubscriptionStatus, bool) {
	switch raw {
	case "active", "trialing":
		return user.StatusActive, true
	case "past_due", "unpaid", "incomplete", "incomplete_expired":
		return user.StatusPastDue, true
	case "canceled":
		return user.StatusCanceled, true
	default:
		return "", false
	}
}
