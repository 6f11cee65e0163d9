package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/danilovkiri/dk-go-cashdesk/internal/config"
	"github.com/danilovkiri/dk-go-cashdesk/internal/logger"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modelqueue"
	"github.com/danilovkiri/dk-go-cashdesk/internal/service/bonus/v1/bonus"
	"github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1/inpmem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenAndProcess(t *testing.T) {
	log := logger.InitLog()
	st := inpmem.InitStorage(log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := st.AddNewUser(ctx, modeldto.User{Login: "carol", Password: "secret"}, "carol", "code-carol", "")
	require.NoError(t, err)
	err = st.AddNewUser(ctx, modeldto.User{Login: "dave", Password: "secret"}, "dave", "code-dave", "carol")
	require.NoError(t, err)

	ledgerCfg := &config.LedgerConfig{BonusRateBP: 500}
	bonusService, err := bonus.InitService(st, ledgerCfg, log)
	require.NoError(t, err)

	wg := &sync.WaitGroup{}
	queueCfg := &config.QueueConfig{WorkerNumber: 2, RetryNumber: 3}
	brokerService := InitBroker(ctx, st.QueueIn, bonusService, queueCfg, log, wg)
	brokerService.ListenAndProcess()

	st.SendToQueue(modelqueue.BonusQueueEntry{UserID: "dave", DepositID: "dep-1", Amount: 10000})
	st.SendToQueue(modelqueue.BonusQueueEntry{UserID: "dave", DepositID: "dep-2", Amount: 4000})
	// a duplicate entry must be absorbed by idempotent accrual
	st.SendToQueue(modelqueue.BonusQueueEntry{UserID: "dave", DepositID: "dep-1", Amount: 10000})

	require.Eventually(t, func() bool {
		bonuses, err := bonusService.GetBonuses(ctx, "carol", 10, 0)
		return err == nil && len(bonuses) == 2
	}, 2*time.Second, 10*time.Millisecond)

	bonuses, err := bonusService.GetBonuses(ctx, "carol", 10, 0)
	require.NoError(t, err)
	var total int64
	for _, b := range bonuses {
		total += b.BonusAmount
	}
	assert.Equal(t, int64(700), total)

	cancel()
	wg.Wait()
}
