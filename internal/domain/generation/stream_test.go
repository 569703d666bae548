package generation_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/petgroove/petgroove-api/internal/domain/generation"
	"github.com/petgroove/petgroove-api/internal/domain/user"
)

func newStreamServer(t *testing.T, repo *fakeGenerationRepo, id uuid.UUID) *httptest.Server {
	t.Helper()
	streamer := generation.NewStreamer(repo, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g, err := repo.GetByID(r.Context(), id)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		streamer.Serve(w, r, g)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dialStream(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestStreamSnapshotThenCloseOnTerminal(t *testing.T) {
	users := newFakeUserRepo()
	userID := users.add(user.TierTrial, 0)
	repo := newFakeGenerationRepo()

	g := seedProcessing(t, repo, userID, "task-ws", generation.CostStandard)
	if err := repo.MarkCompleted(context.Background(), g.ID, "https://media.test/videos/done.mp4"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	conn := dialStream(t, newStreamServer(t, repo, g.ID))
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	// The snapshot arrives first, carrying the terminal state
	var event generation.StatusEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if event.GenerationID != g.ID {
		t.Fatalf("event for wrong generation: %s", event.GenerationID)
	}
	if event.Status != generation.StatusCompleted {
		t.Fatalf("expected completed snapshot, got %q", event.Status)
	}
	if event.VideoURL == nil || *event.VideoURL != "https://media.test/videos/done.mp4" {
		t.Fatalf("expected video URL in terminal event, got %v", event.VideoURL)
	}

	// Terminal snapshot ends the stream
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected stream to close after terminal snapshot")
	}
}

func TestStreamPushesTransitionViaFallbackPolling(t *testing.T) {
	users := newFakeUserRepo()
	userID := users.add(user.TierTrial, 0)
	repo := newFakeGenerationRepo()

	g := seedProcessing(t, repo, userID, "task-live", generation.CostStandard)

	conn := dialStream(t, newStreamServer(t, repo, g.ID))
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var snapshot generation.StatusEvent
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snapshot.Status != generation.StatusProcessing {
		t.Fatalf("expected processing snapshot, got %q", snapshot.Status)
	}

	// Without Redis the streamer polls the row; complete it and wait for
	// the transition to come down the wire.
	if err := repo.MarkCompleted(context.Background(), g.ID, "https://media.test/videos/live.mp4"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	var event generation.StatusEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read transition: %v", err)
	}
	if event.Status != generation.StatusCompleted {
		t.Fatalf("expected completed transition, got %q", event.Status)
	}
	if event.VideoURL == nil || *event.VideoURL != "https://media.test/videos/live.mp4" {
		t.Fatalf("expected video URL, got %v", event.VideoURL)
	}

	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected stream to close after terminal transition")
	}
}

func TestStreamRejectsDisallowedOrigin(t *testing.T) {
	users := newFakeUserRepo()
	userID := users.add(user.TierTrial, 0)
	repo := newFakeGenerationRepo()
	g := seedProcessing(t, repo, userID, "task-origin", generation.CostStandard)

	streamer := generation.NewStreamer(repo, nil, []string{"https://app.petgroove.test"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loaded, err := repo.GetByID(r.Context(), g.ID)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		streamer.Serve(w, r, loaded)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{"Origin": []string{"https://evil.test"}}
	if _, resp, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatal("expected handshake rejection for disallowed origin")
	} else if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 handshake response, got %d", resp.StatusCode)
	}
}
