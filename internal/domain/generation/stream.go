package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// fallbackPollInterval drives the stream when Redis is disabled
	fallbackPollInterval = 2 * time.Second
)

// Streamer pushes generation status transitions over a websocket.
// Events arrive via the per-generation Redis channel the poller
// publishes to; without Redis the stream falls back to polling the
// database.
type Streamer struct {
	repo     Repository
	redis    *redis.Client
	upgrader websocket.Upgrader
}

// NewStreamer creates the websocket streamer
func NewStreamer(repo Repository, rdb *redis.Client, allowedOrigins []string) *Streamer {
	return &Streamer{
		repo:  repo,
		redis: rdb,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")

				// Allow all in development
				if len(allowedOrigins) == 0 {
					return true
				}

				for _, allowed := range allowedOrigins {
					if origin == allowed {
						return true
					}
				}

				log.Warn().Str("origin", origin).Msg("WebSocket origin rejected")
				return false
			},
		},
	}
}

// Serve upgrades the connection and streams status events until the
// generation reaches a terminal state or the client disconnects.
// Ownership must be checked by the caller.
func (s *Streamer) Serve(w http.ResponseWriter, r *http.Request, g *Generation) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Drain the read side so pongs and close frames are processed
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Snapshot first so the client never misses a transition that
	// happened before the subscription was live.
	if err := s.writeEvent(conn, eventFromGeneration(g)); err != nil {
		return
	}
	if g.Status.IsTerminal() {
		return
	}

	events := s.subscribe(ctx, g)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := s.writeEvent(conn, event); err != nil {
				return
			}
			if event.Status.IsTerminal() {
				return
			}
		}
	}
}

func (s *Streamer) writeEvent(conn *websocket.Conn, event StatusEvent) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(event)
}

// subscribe returns a channel of status events for one generation
func (s *Streamer) subscribe(ctx context.Context, g *Generation) <-chan StatusEvent {
	out := make(chan StatusEvent, 4)

	if s.redis != nil {
		sub := s.redis.Subscribe(ctx, StatusChannel(g.ID))
		go func() {
			defer close(out)
			defer sub.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-sub.Channel():
					if !ok {
						return
					}
					var event StatusEvent
					if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
						continue
					}
					out <- event
				}
			}
		}()
		return out
	}

	// No Redis: poll the row and emit on change
	go func() {
		defer close(out)
		last := g.Status
		ticker := time.NewTicker(fallbackPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fresh, err := s.repo.GetByID(ctx, g.ID)
				if err != nil {
					continue
				}
				if fresh.Status != last {
					last = fresh.Status
					out <- eventFromGeneration(fresh)
				}
			}
		}
	}()
	return out
}

func eventFromGeneration(g *Generation) StatusEvent {
	event := StatusEvent{
		GenerationID: g.ID,
		Status:       g.Status,
	}
	if g.VideoURL.Valid {
		event.VideoURL = &g.VideoURL.String
	}
	return event
}
