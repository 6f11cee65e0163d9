// Package broker implements the bonus dispatch worker pool. It consumes
// approved deposits from the queue and drives the bonus engine; accrual is
// idempotent, so a retried entry can never double-accrue.
package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/danilovkiri/dk-go-cashdesk/internal/config"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modelqueue"
	"github.com/danilovkiri/dk-go-cashdesk/internal/service/bonus/v1"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Broker struct {
	ctx     context.Context
	log     *zerolog.Logger
	queueIn chan modelqueue.BonusQueueEntry
	bonus   bonus.Processor
	cfg     *config.QueueConfig
	wg      *sync.WaitGroup
}

type dispatchWorker struct {
	ID      int
	ctx     context.Context
	log     *zerolog.Logger
	queueIn chan modelqueue.BonusQueueEntry
	bonus   bonus.Processor
	cfg     *config.QueueConfig
}

func InitBroker(ctx context.Context, queueIn chan modelqueue.BonusQueueEntry, bonusService bonus.Processor, cfg *config.QueueConfig, log *zerolog.Logger, wg *sync.WaitGroup) *Broker {
	broker := Broker{
		ctx:     ctx,
		log:     log,
		queueIn: queueIn,
		bonus:   bonusService,
		cfg:     cfg,
		wg:      wg,
	}
	return &broker
}

func (b *Broker) ListenAndProcess() {
	b.wg.Add(1)
	go func() {
		b.log.Info().Msg("started listening to queue for approved deposits")
		defer b.wg.Done()
		g, _ := errgroup.WithContext(b.ctx)
		for i := 0; i < b.cfg.WorkerNumber; i++ {
			w := &dispatchWorker{ID: i, ctx: b.ctx, queueIn: b.queueIn, bonus: b.bonus, cfg: b.cfg, log: b.log}
			g.Go(w.processAsync)
		}
		<-b.ctx.Done()
		close(b.queueIn)
		b.log.Info().Msg("closed queue for approved deposits")
		err := g.Wait()
		if err != nil {
			b.log.Error().Err(err).Msg("closing errgroup failed")
		}
		b.log.Info().Msg("stopped listening to queue for approved deposits")
	}()
}

func (w *dispatchWorker) processAsync() error {
	for record := range w.queueIn {
		err := w.bonus.CreateBonusForDeposit(w.ctx, record)
		if err == nil {
			w.log.Info().Msg(fmt.Sprintf("WID %v, deposit %v — bonus dispatch done", w.ID, record.DepositID))
			continue
		}
		if record.RetryCount >= w.cfg.RetryNumber {
			// abandon processing if the retry limit was exhausted
			w.log.Warn().Err(err).Msg(fmt.Sprintf("WID %v, deposit %v — abandonment due to retry limit exceeding", w.ID, record.DepositID))
			continue
		}
		record.RetryCount += 1
		w.log.Warn().Err(err).Msg(fmt.Sprintf("WID %v, deposit %v — could not process, sending back to queue", w.ID, record.DepositID))
		select {
		case <-w.ctx.Done():
			return nil
		case w.queueIn <- record:
		}
	}
	return nil
}
