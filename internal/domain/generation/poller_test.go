package generation_test

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/petgroove/petgroove-api/internal/domain/generation"
	"github.com/petgroove/petgroove-api/internal/domain/user"
	"github.com/petgroove/petgroove-api/internal/pkg/runway"
)

// fakeStore records saved blobs in memory
type fakeStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{blobs: make(map[string][]byte)}
}

func (f *fakeStore) Save(ctx context.Context, key string, reader io.Reader, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[key] = data
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, key)
	return nil
}

func (f *fakeStore) GetURL(key string) string {
	return "https://media.test/" + key
}

func seedProcessing(t *testing.T, repo *fakeGenerationRepo, userID uuid.UUID, taskID string, cost int) *generation.Generation {
	t.Helper()
	g := &generation.Generation{
		ID:           uuid.New(),
		UserID:       userID,
		PetImageURL:  "https://cdn.test/pets/dog.jpg",
		DanceType:    "robot",
		Status:       generation.StatusPending,
		ModelUsed:    generation.ModelStandard,
		CreditsUsed:  cost,
		CreatedAt:    time.Now(),
		RunwayTaskID: sql.NullString{},
	}
	if err := repo.Create(context.Background(), g); err != nil {
		t.Fatalf("seed generation: %v", err)
	}
	if err := repo.MarkProcessing(context.Background(), g.ID, taskID); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	g.Status = generation.StatusProcessing
	g.RunwayTaskID = sql.NullString{String: taskID, Valid: true}
	return g
}

func newPollerUnderTest(repo *fakeGenerationRepo, renderer *fakeRenderer, store *fakeStore, ledger *fakeLedger, users *fakeUserRepo) *generation.Poller {
	svc := generation.NewService(repo, users, ledger, &fakePrompter{prompt: "p"}, renderer, nil)
	return generation.NewPoller(svc, repo, renderer, store, nil, time.Hour, 60)
}

func runSweeps(ctx context.Context, t *testing.T, poller *generation.Poller, repo *fakeGenerationRepo, id uuid.UUID, max int) *generation.Generation {
	t.Helper()
	for i := 0; i < max; i++ {
		pollCtx, cancel := context.WithTimeout(ctx, time.Second)
		poller.Sweep(pollCtx)
		cancel()
		g, err := repo.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("load generation: %v", err)
		}
		if g.Status.IsTerminal() {
			return g
		}
	}
	g, _ := repo.GetByID(ctx, id)
	return g
}

func TestPollerCompletesRender(t *testing.T) {
	users := newFakeUserRepo()
	userID := users.add(user.TierTrial, 0)
	ledger := newFakeLedger()
	repo := newFakeGenerationRepo()
	store := newFakeStore()
	renderer := &fakeRenderer{
		taskID:     "task-ok",
		statuses:   []runway.Status{runway.StatusPending, runway.StatusProcessing, runway.StatusSucceeded},
		output:     "https://runway.test/out.mp4",
		downloaded: bytes.Repeat([]byte{0xAB}, 64),
	}

	g := seedProcessing(t, repo, userID, "task-ok", generation.CostStandard)
	poller := newPollerUnderTest(repo, renderer, store, ledger, users)

	final := runSweeps(context.Background(), t, poller, repo, g.ID, 5)

	if final.Status != generation.StatusCompleted {
		t.Fatalf("expected completed, got %q", final.Status)
	}
	if !final.VideoURL.Valid || !final.CompletedAt.Valid {
		t.Fatalf("completed row must carry video URL and completion time: %+v", final)
	}
	wantKey := "videos/" + g.ID.String() + ".mp4"
	if !strings.HasSuffix(final.VideoURL.String, wantKey) {
		t.Fatalf("unexpected video URL %q", final.VideoURL.String)
	}

	store.mu.Lock()
	blob := store.blobs[wantKey]
	store.mu.Unlock()
	if len(blob) != 64 {
		t.Fatalf("expected stored artifact of 64 bytes, got %d", len(blob))
	}

	// Reservation settled at submit; completion must not touch the ledger
	if entries := ledger.entriesFor(userID); len(entries) != 0 {
		t.Fatalf("completion must not write ledger entries, got %+v", entries)
	}
}

func TestPollerVendorFailureRefunds(t *testing.T) {
	users := newFakeUserRepo()
	userID := users.add(user.TierTrial, 0)
	ledger := newFakeLedger()
	repo := newFakeGenerationRepo()
	renderer := &fakeRenderer{
		taskID:   "task-bad",
		statuses: []runway.Status{runway.StatusProcessing, runway.StatusProcessing, runway.StatusFailed},
	}

	g := seedProcessing(t, repo, userID, "task-bad", generation.CostStandard)
	poller := newPollerUnderTest(repo, renderer, newFakeStore(), ledger, users)

	final := runSweeps(context.Background(), t, poller, repo, g.ID, 5)

	if final.Status != generation.StatusFailed {
		t.Fatalf("expected failed, got %q", final.Status)
	}
	if final.VideoURL.Valid {
		t.Fatal("failed generation must not have an artifact")
	}

	// Reservation comes back
	if balance, _ := ledger.GetBalance(context.Background(), userID); balance != generation.CostStandard {
		t.Fatalf("expected refund of %d, got balance %d", generation.CostStandard, balance)
	}
}

func TestPollerTimesOutAfterMaxAttempts(t *testing.T) {
	users := newFakeUserRepo()
	userID := users.add(user.TierTrial, 0)
	ledger := newFakeLedger()
	repo := newFakeGenerationRepo()
	renderer := &fakeRenderer{
		taskID:   "task-stuck",
		statuses: []runway.Status{runway.StatusProcessing},
	}

	g := seedProcessing(t, repo, userID, "task-stuck", generation.CostStandard)
	svc := generation.NewService(repo, users, ledger, &fakePrompter{prompt: "p"}, renderer, nil)
	poller := generation.NewPoller(svc, repo, renderer, newFakeStore(), nil, time.Hour, 3)

	final := runSweeps(context.Background(), t, poller, repo, g.ID, 10)

	if final.Status != generation.StatusFailed {
		t.Fatalf("expected forced failure after timeout, got %q", final.Status)
	}
	if final.PollAttempts != 3 {
		t.Fatalf("expected 3 durable attempts, got %d", final.PollAttempts)
	}
	if balance, _ := ledger.GetBalance(context.Background(), userID); balance != generation.CostStandard {
		t.Fatalf("timeout must refund the reservation, balance %d", balance)
	}
}

func TestPollerUnknownStatusIsRetried(t *testing.T) {
	users := newFakeUserRepo()
	userID := users.add(user.TierTrial, 0)
	ledger := newFakeLedger()
	repo := newFakeGenerationRepo()
	renderer := &fakeRenderer{
		taskID:   "task-weird",
		statuses: []runway.Status{runway.StatusUnknown, runway.StatusUnknown, runway.StatusSucceeded},
		output:   "https://runway.test/out.mp4",
	}

	g := seedProcessing(t, repo, userID, "task-weird", generation.CostStandard)
	poller := newPollerUnderTest(repo, renderer, newFakeStore(), ledger, users)

	final := runSweeps(context.Background(), t, poller, repo, g.ID, 5)

	if final.Status != generation.StatusCompleted {
		t.Fatalf("unknown status must be retried, not treated as terminal; got %q", final.Status)
	}
}

func TestPollerReapsAbandonedPendingRows(t *testing.T) {
	users := newFakeUserRepo()
	userID := users.add(user.TierTrial, 0)
	ledger := newFakeLedger()
	repo := newFakeGenerationRepo()

	// A pending row this old means the submitting process died before
	// handing the job to the poller; the reservation must come back.
	stale := &generation.Generation{
		ID:          uuid.New(),
		UserID:      userID,
		PetImageURL: "https://cdn.test/pets/dog.jpg",
		DanceType:   "robot",
		Status:      generation.StatusPending,
		ModelUsed:   generation.ModelStandard,
		CreditsUsed: generation.CostStandard,
		CreatedAt:   time.Now().Add(-time.Hour),
	}
	if err := repo.Create(context.Background(), stale); err != nil {
		t.Fatalf("seed generation: %v", err)
	}

	// A fresh pending row may still be mid-handoff and must be left alone
	fresh := &generation.Generation{
		ID:          uuid.New(),
		UserID:      userID,
		PetImageURL: "https://cdn.test/pets/cat.jpg",
		DanceType:   "disco",
		Status:      generation.StatusPending,
		ModelUsed:   generation.ModelStandard,
		CreditsUsed: generation.CostStandard,
		CreatedAt:   time.Now(),
	}
	if err := repo.Create(context.Background(), fresh); err != nil {
		t.Fatalf("seed generation: %v", err)
	}

	poller := newPollerUnderTest(repo, &fakeRenderer{}, newFakeStore(), ledger, users)
	poller.Sweep(context.Background())

	g, err := repo.GetByID(context.Background(), stale.ID)
	if err != nil {
		t.Fatalf("load generation: %v", err)
	}
	if g.Status != generation.StatusFailed {
		t.Fatalf("stale pending row must be failed, got %q", g.Status)
	}
	if balance, _ := ledger.GetBalance(context.Background(), userID); balance != generation.CostStandard {
		t.Fatalf("expected reaped reservation refunded, balance %d", balance)
	}

	f, err := repo.GetByID(context.Background(), fresh.ID)
	if err != nil {
		t.Fatalf("load generation: %v", err)
	}
	if f.Status != generation.StatusPending {
		t.Fatalf("fresh pending row must be untouched, got %q", f.Status)
	}
}

func TestTerminalRowsCannotTransition(t *testing.T) {
	repo := newFakeGenerationRepo()
	users := newFakeUserRepo()
	userID := users.add(user.TierTrial, 0)

	g := seedProcessing(t, repo, userID, "task-done", generation.CostStandard)
	if err := repo.MarkCompleted(context.Background(), g.ID, "https://media.test/v.mp4"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := repo.MarkFailed(context.Background(), g.ID); err == nil {
		t.Fatal("completed row must not transition to failed")
	}
	if err := repo.MarkCompleted(context.Background(), g.ID, "https://media.test/other.mp4"); err == nil {
		t.Fatal("completed row must not complete twice")
	}
}
