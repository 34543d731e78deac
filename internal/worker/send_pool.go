package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lumenmail/campaignd/internal/campaign"
	"github.com/lumenmail/campaignd/internal/pkg/logger"
	"github.com/lumenmail/campaignd/internal/repository/postgres"
)

// SendPool fans a claimed batch of recipients out over a fixed number of
// delivery goroutines, throttled to a global per-second rate.
type SendPool struct {
	sender     ESPSender
	composer   *Composer
	recipients *postgres.RecipientStore

	numWorkers int
	ratePerSec int

	totalSent   int64
	totalFailed int64

	log *logger.Logger
}

// NewSendPool sizes a pool. rate caps deliveries per second across all
// workers.
func NewSendPool(sender ESPSender, composer *Composer, recipients *postgres.RecipientStore, numWorkers, ratePerSec int) *SendPool {
	if numWorkers <= 0 {
		numWorkers = 10
	}
	if ratePerSec <= 0 {
		ratePerSec = 50
	}
	return &SendPool{
		sender:     sender,
		composer:   composer,
		recipients: recipients,
		numWorkers: numWorkers,
		ratePerSec: ratePerSec,
		log:        logger.Component("send-pool"),
	}
}

// SendBatch delivers one claimed batch and records each outcome. Returns
// the sent and failed counts for the batch. Cancelling ctx stops workers
// after their in-flight message.
func (p *SendPool) SendBatch(ctx context.Context, camp *campaign.Campaign, batch []campaign.Recipient) (sent, failed int) {
	if len(batch) == 0 {
		return 0, 0
	}

	throttle := time.NewTicker(time.Second / time.Duration(p.ratePerSec))
	defer throttle.Stop()

	jobs := make(chan campaign.Recipient)
	var batchSent, batchFailed int64
	var wg sync.WaitGroup

	workers := p.numWorkers
	if workers > len(batch) {
		workers = len(batch)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range jobs {
				select {
				case <-ctx.Done():
					return
				case <-throttle.C:
				}
				if p.deliver(ctx, camp, &r) {
					atomic.AddInt64(&batchSent, 1)
				} else {
					atomic.AddInt64(&batchFailed, 1)
				}
			}
		}()
	}

	for _, r := range batch {
		select {
		case <-ctx.Done():
		case jobs <- r:
			continue
		}
		break
	}
	close(jobs)
	wg.Wait()

	atomic.AddInt64(&p.totalSent, batchSent)
	atomic.AddInt64(&p.totalFailed, batchFailed)
	return int(batchSent), int(batchFailed)
}

func (p *SendPool) deliver(ctx context.Context, camp *campaign.Campaign, r *campaign.Recipient) bool {
	msg, err := p.composer.ComposeRecipient(camp, r)
	if err != nil {
		p.log.Error("compose failed", "campaign_id", camp.ID, "recipient_id", r.ID, "error", err.Error())
		p.markFailed(ctx, r.ID, err.Error())
		return false
	}

	result, err := p.sender.Send(ctx, msg)
	if err != nil || !result.Success {
		reason := "send failed"
		if err != nil {
			reason = err.Error()
		} else if result.Error != nil {
			reason = result.Error.Error()
		}
		p.markFailed(ctx, r.ID, reason)
		return false
	}

	if err := p.recipients.MarkSent(ctx, r.ID); err != nil && err != postgres.ErrConflict {
		p.log.Error("mark sent failed", "recipient_id", r.ID, "error", err.Error())
	}
	return true
}

func (p *SendPool) markFailed(ctx context.Context, recipientID, reason string) {
	if err := p.recipients.MarkFailed(ctx, recipientID, reason); err != nil {
		p.log.Error("mark failed failed", "recipient_id", recipientID, "error", err.Error())
	}
}

// Stats returns lifetime sent/failed totals for the pool.
func (p *SendPool) Stats() (sent, failed int64) {
	return atomic.LoadInt64(&p.totalSent), atomic.LoadInt64(&p.totalFailed)
}
