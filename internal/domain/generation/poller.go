package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/petgroove/petgroove-api/internal/pkg/runway"
	"github.com/petgroove/petgroove-api/internal/pkg/storage"
)

// Poller drives in-flight renders to completion. State lives in
// Postgres (status + poll_attempts), so a restarted worker picks up
// exactly where the previous one stopped.
type Poller struct {
	service     *Service
	repo        Repository
	renderer    RenderClient
	store       storage.Storage
	redis       *redis.Client // nil if Redis disabled
	interval    time.Duration
	maxAttempts int
}

// NewPoller creates the render poller
func NewPoller(service *Service, repo Repository, renderer RenderClient, store storage.Storage, rdb *redis.Client, interval time.Duration, maxAttempts int) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 60
	}
	return &Poller{
		service:     service,
		repo:        repo,
		renderer:    renderer,
		store:       store,
		redis:       rdb,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

// Run polls until ctx is canceled. A Redis wakeup triggers an
// immediate sweep after submissions; the ticker guarantees progress
// even without Redis.
func (p *Poller) Run(ctx context.Context) error {
	log.Info().
		Dur("interval", p.interval).
		Int("max_attempts", p.maxAttempts).
		Msg("render poller started")

	wake := p.subscribeWakeups(ctx)

	// Sweep immediately so renders left over from a previous run
	// resume without waiting a full tick.
	p.Sweep(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("render poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.Sweep(ctx)
		case <-wake:
			p.Sweep(ctx)
		}
	}
}

// stalePendingAfter must comfortably exceed the submit handoff window
// so an in-flight submission is never reaped out from under the API.
const stalePendingAfter = 10 * time.Minute

// Sweep polls every processing generation once and reaps pending rows
// abandoned by a dead submitter.
func (p *Poller) Sweep(ctx context.Context) {
	gens, err := p.repo.ListProcessing(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list processing generations")
		return
	}

	for i := range gens {
		if ctx.Err() != nil {
			return
		}
		p.poll(ctx, &gens[i])
	}

	p.reapStalePending(ctx)
}

// reapStalePending fails and refunds pending rows that never made it to
// processing. The refund reference is idempotent, so reaping a row the
// API already failed is harmless.
func (p *Poller) reapStalePending(ctx context.Context) {
	stale, err := p.repo.ListStalePending(ctx, time.Now().Add(-stalePendingAfter))
	if err != nil {
		log.Error().Err(err).Msg("failed to list stale pending generations")
		return
	}

	for i := range stale {
		if ctx.Err() != nil {
			return
		}
		g := &stale[i]
		log.Warn().
			Str("generation_id", g.ID.String()).
			Time("created_at", g.CreatedAt).
			Msg("reaping generation stuck in pending")
		p.service.Fail(ctx, g, true)
	}
}

// poll advances a single generation by one attempt
func (p *Poller) poll(ctx context.Context, g *Generation) {
	if !g.RunwayTaskID.Valid || g.RunwayTaskID.String == "" {
		log.Warn().Str("generation_id", g.ID.String()).Msg("processing generation has no task id, failing")
		p.service.Fail(ctx, g, true)
		return
	}

	attempts, err := p.repo.IncrementPollAttempts(ctx, g.ID)
	if err != nil {
		log.Error().Err(err).Str("generation_id", g.ID.String()).Msg("failed to bump poll attempts")
		return
	}

	task, err := p.renderer.GetTask(ctx, g.RunwayTaskID.String)
	if err != nil {
		// Transient vendor errors are retried next tick. The attempt
		// still counts toward the timeout.
		log.Warn().
			Err(err).
			Str("generation_id", g.ID.String()).
			Int("attempt", attempts).
			Msg("render status check failed")
		p.checkTimeout(ctx, g, attempts)
		return
	}

	switch task.Status {
	case runway.StatusSucceeded:
		if len(task.Output) == 0 || task.Output[0] == "" {
			log.Error().Str("generation_id", g.ID.String()).Msg("render succeeded without output")
			p.service.Fail(ctx, g, true)
			return
		}
		p.complete(ctx, g, task.Output[0])

	case runway.StatusFailed:
		log.Warn().
			Str("generation_id", g.ID.String()).
			Str("vendor_error", task.Error).
			Msg("render failed")
		p.service.Fail(ctx, g, true)

	default:
		// pending, processing or unknown: keep polling
		p.checkTimeout(ctx, g, attempts)
	}
}

func (p *Poller) checkTimeout(ctx context.Context, g *Generation, attempts int) {
	if attempts < p.maxAttempts {
		return
	}
	log.Warn().
		Str("generation_id", g.ID.String()).
		Int("attempts", attempts).
		Msg("render timed out")
	p.service.Fail(ctx, g, true)
}

// complete downloads the rendered video, stores it and settles the row
func (p *Poller) complete(ctx context.Context, g *Generation, outputURL string) {
	body, err := p.renderer.DownloadOutput(ctx, outputURL)
	if err != nil {
		log.Warn().
			Err(err).
			Str("generation_id", g.ID.String()).
			Msg("video download failed, will retry")
		return
	}
	defer body.Close()

	key := fmt.Sprintf("videos/%s.mp4", g.ID)
	if err := p.store.Save(ctx, key, body, "video/mp4"); err != nil {
		log.Error().Err(err).Str("generation_id", g.ID.String()).Msg("video store failed, will retry")
		return
	}

	videoURL := p.store.GetURL(key)
	if err := p.service.Complete(ctx, g, videoURL); err != nil {
		log.Error().Err(err).Str("generation_id", g.ID.String()).Msg("failed to mark generation completed")
		return
	}

	log.Info().
		Str("generation_id", g.ID.String()).
		Str("video_url", videoURL).
		Msg("generation completed")
}

// subscribeWakeups returns a channel that fires on wakeup messages.
// Without Redis it returns a channel that never fires.
func (p *Poller) subscribeWakeups(ctx context.Context) <-chan struct{} {
	wake := make(chan struct{}, 1)
	if p.redis == nil {
		return wake
	}

	sub := p.redis.Subscribe(ctx, WakeupChannel)
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.Channel():
				if !ok {
					return
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			}
		}
	}()
	return wake
}
