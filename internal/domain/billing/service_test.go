package billing_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/petgroove/petgroove-api/internal/domain/billing"
	"github.com/petgroove/petgroove-api/internal/domain/credit"
	"github.com/petgroove/petgroove-api/internal/domain/user"
	"github.com/petgroove/petgroove-api/internal/pkg/stripe"
)

// ---------- fakes ----------

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*user.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*user.User)}
}

func (f *fakeUserRepo) add() *user.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	u := &user.User{
		ID:                 id,
		Email:              fmt.Sprintf("%s@test.com", id.String()[:8]),
		SubscriptionTier:   user.TierNone,
		SubscriptionStatus: user.StatusNone,
	}
	f.users[id] = u
	return u
}

func (f *fakeUserRepo) Create(ctx context.Context, u *user.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return nil, user.ErrNotFound
}

func (f *fakeUserRepo) GetByStripeSubscriptionID(ctx context.Context, subscriptionID string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.StripeSubscriptionID.Valid && u.StripeSubscriptionID.String == subscriptionID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, user.ErrNotFound
}

func (f *fakeUserRepo) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.StripeCustomerID.String = customerID
	u.StripeCustomerID.Valid = true
	return nil
}

func (f *fakeUserRepo) UpdateSubscription(ctx context.Context, id uuid.UUID, tier user.SubscriptionTier, status user.SubscriptionStatus, subscriptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.SubscriptionTier = tier
	u.SubscriptionStatus = status
	if subscriptionID != "" {
		u.StripeSubscriptionID.String = subscriptionID
		u.StripeSubscriptionID.Valid = true
	}
	return nil
}

func (f *fakeUserRepo) UpdateSubscriptionStatus(ctx context.Context, id uuid.UUID, status user.SubscriptionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.SubscriptionStatus = status
	return nil
}

// fakeLedger mirrors the real ledger's reference idempotency
type fakeLedger struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int
	refs     map[string]int
	credits  int // count of applied (non-replayed) credit calls
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[uuid.UUID]int), refs: make(map[string]int)}
}

func (f *fakeLedger) Credit(ctx context.Context, userID uuid.UUID, amount int, txType credit.TransactionType, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%s|%s|%s", userID, txType, ref)
	if ref != "" {
		if prev, ok := f.refs[key]; ok {
			if prev == amount {
				return nil
			}
			return credit.ErrReferenceConflict
		}
		f.refs[key] = amount
	}
	f.balances[userID] += amount
	f.credits++
	return nil
}

func (f *fakeLedger) Debit(ctx context.Context, userID uuid.UUID, amount int, txType credit.TransactionType, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[userID] -= amount
	return nil
}

func (f *fakeLedger) GetBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID], nil
}

func (f *fakeLedger) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]credit.Transaction, error) {
	return nil, nil
}

type fakePayments struct {
	customers int
	sessions  []stripe.CheckoutParams
}

func (f *fakePayments) CreateCustomer(ctx context.Context, email, userID string) (*stripe.Customer, error) {
	f.customers++
	return &stripe.Customer{ID: "cus_test", Email: email}, nil
}

func (f *fakePayments) CreateCheckoutSession(ctx context.Context, params stripe.CheckoutParams) (*stripe.CheckoutSession, error) {
	f.sessions = append(f.sessions, params)
	return &stripe.CheckoutSession{ID: "cs_test", URL: "https://checkout.test/cs_test"}, nil
}

func newBillingService(users *fakeUserRepo, ledger *fakeLedger, payments *fakePayments) *billing.Service {
	return billing.NewService(users, ledger, payments, billing.Config{
		WeeklyPriceID: "price_weekly",
		AnnualPriceID: "price_annual",
		FrontendURL:   "https://petgroove.test",
		WebhookSecret: "whsec_test",
	})
}

func eventFor(t *testing.T, eventType string, object interface{}) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	if err != nil {
		t.Fatalf("marshal object: %v", err)
	}
	event := &stripe.Event{ID: "evt_" + uuid.NewString()[:8], Type: eventType}
	event.Data.Object = raw
	return event
}

// ---------- checkout ----------

func TestCreateCheckout(t *testing.T) {
	users := newFakeUserRepo()
	u := users.add()
	payments := &fakePayments{}
	svc := newBillingService(users, newFakeLedger(), payments)

	resp, err := svc.CreateCheckout(context.Background(), u.ID, billing.PlanAnnual)
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if resp.SessionID != "cs_test" {
		t.Fatalf("unexpected session id %q", resp.SessionID)
	}
	if payments.customers != 1 {
		t.Fatalf("expected one customer created, got %d", payments.customers)
	}

	params := payments.sessions[0]
	if params.Mode != billing.ModePayment || params.PriceID != "price_annual" {
		t.Fatalf("unexpected checkout params: %+v", params)
	}
	if params.Metadata["plan"] != billing.PlanAnnual || params.Metadata["user_id"] != u.ID.String() {
		t.Fatalf("metadata must carry user and plan: %+v", params.Metadata)
	}

	// Customer is persisted and reused on the next checkout
	if _, err := svc.CreateCheckout(context.Background(), u.ID, billing.PlanWeeklyTrial); err != nil {
		t.Fatalf("second checkout failed: %v", err)
	}
	if payments.customers != 1 {
		t.Fatalf("customer must be reused, created %d", payments.customers)
	}
	if payments.sessions[1].Mode != billing.ModeSubscription {
		t.Fatalf("weekly plan must use subscription mode, got %q", payments.sessions[1].Mode)
	}
}

func TestCreateCheckoutUnknownPlan(t *testing.T) {
	users := newFakeUserRepo()
	u := users.add()
	svc := newBillingService(users, newFakeLedger(), &fakePayments{})

	if _, err := svc.CreateCheckout(context.Background(), u.ID, "lifetime"); err != billing.ErrUnknownPlan {
		t.Fatalf("expected ErrUnknownPlan, got %v", err)
	}
}

// ---------- webhooks ----------

func TestCheckoutCompletedAnnual(t *testing.T) {
	users := newFakeUserRepo()
	u := users.add()
	ledger := newFakeLedger()
	svc := newBillingService(users, ledger, &fakePayments{})

	event := eventFor(t, stripe.EventCheckoutSessionCompleted, stripe.CheckoutSessionEvent{
		ID:            "cs_1",
		Customer:      "cus_test",
		PaymentIntent: "pi_1",
		Metadata:      map[string]string{"user_id": u.ID.String(), "plan": billing.PlanAnnual, "credits": "48000"},
	})

	if err := svc.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	updated, _ := users.GetByID(context.Background(), u.ID)
	if updated.SubscriptionTier != user.TierAnnual || updated.SubscriptionStatus != user.StatusActive {
		t.Fatalf("expected annual/active, got %s/%s", updated.SubscriptionTier, updated.SubscriptionStatus)
	}
	if balance, _ := ledger.GetBalance(context.Background(), u.ID); balance != billing.AnnualCredits {
		t.Fatalf("expected %d credits, got %d", billing.AnnualCredits, balance)
	}
	if ledger.credits != 1 {
		t.Fatalf("expected exactly one credit entry, got %d", ledger.credits)
	}
}

func TestCheckoutCompletedReplayDoesNotDoubleCredit(t *testing.T) {
	users := newFakeUserRepo()
	u := users.add()
	ledger := newFakeLedger()
	svc := newBillingService(users, ledger, &fakePayments{})

	event := eventFor(t, stripe.EventCheckoutSessionCompleted, stripe.CheckoutSessionEvent{
		ID:            "cs_2",
		PaymentIntent: "pi_2",
		Metadata:      map[string]string{"user_id": u.ID.String(), "plan": billing.PlanAnnual, "credits": "48000"},
	})

	for i := 0; i < 3; i++ {
		if err := svc.ProcessEvent(context.Background(), event); err != nil {
			t.Fatalf("delivery %d failed: %v", i+1, err)
		}
	}

	if balance, _ := ledger.GetBalance(context.Background(), u.ID); balance != billing.AnnualCredits {
		t.Fatalf("replays must not double-credit: balance %d", balance)
	}
}

func TestCheckoutCompletedFallsBackToSessionReference(t *testing.T) {
	users := newFakeUserRepo()
	u := users.add()
	ledger := newFakeLedger()
	svc := newBillingService(users, ledger, &fakePayments{})

	// Subscription-mode checkouts have no payment intent
	event := eventFor(t, stripe.EventCheckoutSessionCompleted, stripe.CheckoutSessionEvent{
		ID:           "cs_3",
		Subscription: "sub_3",
		Metadata:     map[string]string{"user_id": u.ID.String(), "plan": billing.PlanWeeklyTrial, "credits": "1000"},
	})

	if err := svc.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if err := svc.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	updated, _ := users.GetByID(context.Background(), u.ID)
	if updated.SubscriptionTier != user.TierTrial {
		t.Fatalf("expected trial tier, got %s", updated.SubscriptionTier)
	}
	if !updated.StripeSubscriptionID.Valid || updated.StripeSubscriptionID.String != "sub_3" {
		t.Fatalf("subscription id not recorded: %+v", updated.StripeSubscriptionID)
	}
	if balance, _ := ledger.GetBalance(context.Background(), u.ID); balance != billing.WeeklyCredits {
		t.Fatalf("expected %d credits once, got %d", billing.WeeklyCredits, balance)
	}
}

func TestSubscriptionStatusSync(t *testing.T) {
	users := newFakeUserRepo()
	u := users.add()
	ledger := newFakeLedger()
	svc := newBillingService(users, ledger, &fakePayments{})

	users.UpdateSubscription(context.Background(), u.ID, user.TierTrial, user.StatusActive, "sub_sync")

	event := eventFor(t, stripe.EventSubscriptionUpdated, stripe.SubscriptionEvent{
		ID:     "sub_sync",
		Status: "past_due",
	})
	if err := svc.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("process failed: %v", err)
	}

	updated, _ := users.GetByID(context.Background(), u.ID)
	if updated.SubscriptionStatus != user.StatusPastDue {
		t.Fatalf("expected past_due, got %s", updated.SubscriptionStatus)
	}
	if ledger.credits != 0 {
		t.Fatal("subscription updates must never credit")
	}

	// Deletion drops the paid tier
	deleted := eventFor(t, stripe.EventSubscriptionDeleted, stripe.SubscriptionEvent{ID: "sub_sync", Status: "canceled"})
	if err := svc.ProcessEvent(context.Background(), deleted); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	updated, _ = users.GetByID(context.Background(), u.ID)
	if updated.SubscriptionTier != user.TierNone || updated.SubscriptionStatus != user.StatusCanceled {
		t.Fatalf("expected none/canceled, got %s/%s", updated.SubscriptionTier, updated.SubscriptionStatus)
	}
}

func TestInvoiceRenewalCreditsOncePerPeriod(t *testing.T) {
	users := newFakeUserRepo()
	u := users.add()
	ledger := newFakeLedger()
	svc := newBillingService(users, ledger, &fakePayments{})

	users.UpdateSubscription(context.Background(), u.ID, user.TierTrial, user.StatusActive, "sub_renew")

	renewal := eventFor(t, stripe.EventInvoicePaymentSucceeded, map[string]interface{}{
		"id":             "in_1",
		"subscription":   "sub_renew",
		"billing_reason": "subscription_cycle",
		"lines":          map[string]interface{}{"data": []map[string]interface{}{{"price": map[string]string{"id": "price_weekly"}}}},
	})

	for i := 0; i < 2; i++ {
		if err := svc.ProcessEvent(context.Background(), renewal); err != nil {
			t.Fatalf("delivery %d failed: %v", i+1, err)
		}
	}

	if balance, _ := ledger.GetBalance(context.Background(), u.ID); balance != billing.WeeklyCredits {
		t.Fatalf("one billing period must credit exactly once, got %d", balance)
	}

	// Trial graduates to the weekly tier on its first paid renewal
	updated, _ := users.GetByID(context.Background(), u.ID)
	if updated.SubscriptionTier != user.TierWeekly {
		t.Fatalf("expected weekly tier after renewal, got %s", updated.SubscriptionTier)
	}
}

func TestInvoiceFirstPeriodIsSkipped(t *testing.T) {
	users := newFakeUserRepo()
	u := users.add()
	ledger := newFakeLedger()
	svc := newBillingService(users, ledger, &fakePayments{})

	users.UpdateSubscription(context.Background(), u.ID, user.TierTrial, user.StatusActive, "sub_first")

	// The first invoice accompanies checkout, which already credited
	first := eventFor(t, stripe.EventInvoicePaymentSucceeded, map[string]interface{}{
		"id":             "in_first",
		"subscription":   "sub_first",
		"billing_reason": "subscription_create",
		"lines":          map[string]interface{}{"data": []map[string]interface{}{{"price": map[string]string{"id": "price_weekly"}}}},
	})

	if err := svc.ProcessEvent(context.Background(), first); err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if balance, _ := ledger.GetBalance(context.Background(), u.ID); balance != 0 {
		t.Fatalf("subscription_create invoice must not credit, got %d", balance)
	}
}

func TestUnhandledEventIsAcknowledged(t *testing.T) {
	users := newFakeUserRepo()
	svc := newBillingService(users, newFakeLedger(), &fakePayments{})

	event := &stripe.Event{ID: "evt_x", Type: "charge.refunded"}
	event.Data.Object = json.RawMessage(`{}`)

	if err := svc.ProcessEvent(context.Background(), event); err != nil {
		t.Fatalf("unhandled events must be acknowledged, got %v", err)
	}
}
