package worker

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumenmail/campaignd/internal/campaign"
	"github.com/lumenmail/campaignd/internal/pkg/distlock"
	"github.com/lumenmail/campaignd/internal/pkg/logger"
	"github.com/lumenmail/campaignd/internal/repository/postgres"
)

// sendLockTTL bounds how long a crashed worker can strand a campaign
// before another worker may pick it up.
const sendLockTTL = 5 * time.Minute

// Scheduler runs the delivery worker's two loops: promoting due scheduled
// campaigns into sending, and draining the dispatch outbox. Multiple
// worker processes can run concurrently; per-campaign locks keep exactly
// one of them draining any given campaign.
type Scheduler struct {
	store *postgres.Store
	pool  *SendPool

	redisClient *redis.Client
	db          *sql.DB

	pollInterval   time.Duration
	outboxInterval time.Duration
	claimBatchSize int
	queueChunkSize int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *logger.Logger
}

// NewScheduler wires a Scheduler. redisClient may be nil; locking then
// falls back to Postgres advisory locks on db.
func NewScheduler(store *postgres.Store, pool *SendPool, redisClient *redis.Client, db *sql.DB,
	pollInterval, outboxInterval time.Duration, claimBatchSize, queueChunkSize int) *Scheduler {

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:          store,
		pool:           pool,
		redisClient:    redisClient,
		db:             db,
		pollInterval:   pollInterval,
		outboxInterval: outboxInterval,
		claimBatchSize: claimBatchSize,
		queueChunkSize: queueChunkSize,
		ctx:            ctx,
		cancel:         cancel,
		log:            logger.Component("scheduler"),
	}
}

// Start launches the loops.
func (s *Scheduler) Start() {
	s.log.Info("starting", "poll_interval", s.pollInterval.String(), "outbox_interval", s.outboxInterval.String())

	s.wg.Add(2)
	go s.runLoop(s.pollInterval, s.promoteDueCampaigns)
	go s.runLoop(s.outboxInterval, s.drainOutbox)
}

// Stop cancels the loops and waits for in-flight work.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.log.Info("stopped")
}

func (s *Scheduler) runLoop(interval time.Duration, tick func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick(s.ctx)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			tick(s.ctx)
		}
	}
}

// promoteDueCampaigns flips scheduled campaigns whose time has come into
// sending. The flip writes the outbox record, so the drain loop picks the
// campaign up on its next pass.
func (s *Scheduler) promoteDueCampaigns(ctx context.Context) {
	ids, err := s.store.Campaigns.DueScheduled(ctx, time.Now())
	if err != nil {
		s.log.Error("list due campaigns failed", "error", err.Error())
		return
	}
	for _, id := range ids {
		err := s.store.Campaigns.StartSending(ctx, id)
		if err == postgres.ErrConflict {
			continue // raced another worker, already promoted
		}
		if err != nil {
			s.log.Error("promote failed", "campaign_id", id, "error", err.Error())
			continue
		}
		s.log.Info("campaign promoted to sending", "campaign_id", id)
	}
}

// drainOutbox claims queued dispatch records and processes each campaign.
// Records stay queued until their campaign reaches a resting state, which
// is what makes the handoff at-least-once across worker crashes.
func (s *Scheduler) drainOutbox(ctx context.Context) {
	recs, err := s.store.Outbox.Pending(ctx, 10)
	if err != nil {
		s.log.Error("claim outbox failed", "error", err.Error())
		return
	}
	for _, rec := range recs {
		if ctx.Err() != nil {
			return
		}
		if err := s.processDispatch(ctx, rec); err != nil {
			s.log.Error("dispatch failed", "campaign_id", rec.CampaignID, "attempts", rec.Attempts, "error", err.Error())
			s.store.Outbox.RecordError(ctx, rec.ID, err.Error())
		}
	}
}

func (s *Scheduler) processDispatch(ctx context.Context, rec postgres.DispatchRecord) error {
	lock := distlock.New(s.redisClient, s.db, "campaign:send:"+rec.CampaignID, sendLockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		// Another worker owns this campaign; record stays queued.
		return nil
	}
	defer lock.Release(context.Background())

	camp, err := s.store.Campaigns.Get(ctx, rec.CampaignID)
	if err == postgres.ErrNotFound {
		return s.store.Outbox.Ack(ctx, rec.ID)
	}
	if err != nil {
		return err
	}

	switch camp.Status {
	case campaign.StatusSending:
		return s.drainCampaign(ctx, rec, camp, lock)
	case campaign.StatusPaused, campaign.StatusScheduled:
		// Keep the record queued; a resume or the due-time promotion
		// brings the campaign back to sending.
		return nil
	default:
		// Terminal or reverted to draft: the record is stale.
		return s.store.Outbox.Ack(ctx, rec.ID)
	}
}

// drainCampaign builds the queue on first contact and then claims and
// sends batch after batch until the queue is empty or the status changes
// under us.
func (s *Scheduler) drainCampaign(ctx context.Context, rec postgres.DispatchRecord, camp *campaign.Campaign, lock distlock.Lock) error {
	if camp.TotalRecipients == 0 {
		total, err := s.store.Recipients.BuildQueue(ctx, camp.ID, s.queueChunkSize)
		if err != nil {
			return err
		}
		camp.TotalRecipients = total
		s.log.Info("recipient queue built", "campaign_id", camp.ID, "total", total)
	}

	for {
		if ctx.Err() != nil {
			return nil // shutdown mid-drain; record stays queued
		}

		current, err := s.store.Campaigns.Get(ctx, camp.ID)
		if err != nil {
			return err
		}
		if current.Status != campaign.StatusSending {
			if current.Status.Terminal() {
				return s.store.Outbox.Ack(ctx, rec.ID)
			}
			return nil // paused; keep the record queued for the resume
		}

		batch, err := s.store.Recipients.ClaimPending(ctx, camp.ID, s.claimBatchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return s.completeCampaign(ctx, rec, current)
		}

		sent, failed := s.pool.SendBatch(ctx, current, batch)
		s.log.Info("batch delivered", "campaign_id", camp.ID, "sent", sent, "failed", failed)

		if rl, ok := lock.(*distlock.RedisLock); ok {
			if err := rl.Extend(ctx, sendLockTTL); err != nil {
				// Lost the lock; stop immediately rather than risk a
				// second worker double-sending this campaign.
				return err
			}
		}
	}
}

func (s *Scheduler) completeCampaign(ctx context.Context, rec postgres.DispatchRecord, camp *campaign.Campaign) error {
	delivered, err := s.store.Recipients.SentCount(ctx, camp.ID)
	if err != nil {
		return err
	}
	failedOut := camp.TotalRecipients > 0 && delivered == 0

	err = s.store.Campaigns.Complete(ctx, camp.ID, failedOut)
	if err != nil && err != postgres.ErrConflict {
		return err
	}
	s.log.Info("campaign completed", "campaign_id", camp.ID, "delivered", delivered, "failed_out", failedOut)
	return s.store.Outbox.Ack(ctx, rec.ID)
}
