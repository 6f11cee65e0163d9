// Package rest provides functionality for initializing a server.
package rest

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/danilovkiri/dk-go-cashdesk/internal/api/rest/client"
	"github.com/danilovkiri/dk-go-cashdesk/internal/api/rest/v1/handlers"
	"github.com/danilovkiri/dk-go-cashdesk/internal/api/rest/v1/middleware"
	"github.com/danilovkiri/dk-go-cashdesk/internal/config"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modelqueue"
	"github.com/danilovkiri/dk-go-cashdesk/internal/service/account/v1/account"
	"github.com/danilovkiri/dk-go-cashdesk/internal/service/bonus/v1/bonus"
	"github.com/danilovkiri/dk-go-cashdesk/internal/service/broker/v1/broker"
	"github.com/danilovkiri/dk-go-cashdesk/internal/service/deposit/v1/deposit"
	"github.com/danilovkiri/dk-go-cashdesk/internal/service/secretary/v1/secretary"
	"github.com/danilovkiri/dk-go-cashdesk/internal/service/withdrawal/v1/withdrawal"
	"github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1"
	"github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1/inpmem"
	"github.com/danilovkiri/dk-go-cashdesk/internal/storage/v1/inpsql"
	"github.com/go-chi/chi"
	"github.com/rs/zerolog"
)

// InitServer returns a http.Server object ready to be listening and serving.
func InitServer(ctx context.Context, cfg *config.Config, log *zerolog.Logger, wg *sync.WaitGroup) (server *http.Server, err error) {
	// initialize secretary
	secretaryService, err := secretary.NewSecretaryService(cfg.SecretConfig)
	if err != nil {
		return nil, err
	}

	// initialize token handler
	tokenHandler, err := middleware.NewTokenHandler(secretaryService)
	if err != nil {
		return nil, err
	}

	// initialize storage; an empty DSN selects the volatile in-memory backend
	var st storage.Storage
	var queueIn chan modelqueue.BonusQueueEntry
	if cfg.StorageConfig.DatabaseDSN == "" {
		memStorage := inpmem.InitStorage(log)
		log.Warn().Msg("no database DSN provided, state will not survive a restart")
		st = memStorage
		queueIn = memStorage.QueueIn
	} else {
		psqlStorage, err := inpsql.InitStorage(ctx, cfg.StorageConfig, log)
		if err != nil {
			return nil, err
		}
		st = psqlStorage
		queueIn = psqlStorage.QueueIn
	}

	// initialize payout gateway client
	gatewayClient := client.InitClient(cfg.ServerConfig, log)

	// initialize services
	accountService, err := account.InitService(st, secretaryService)
	if err != nil {
		return nil, err
	}
	depositService, err := deposit.InitService(st, cfg.LedgerConfig)
	if err != nil {
		return nil, err
	}
	withdrawalService, err := withdrawal.InitService(st, secretaryService, gatewayClient, cfg.LedgerConfig, log)
	if err != nil {
		return nil, err
	}
	bonusService, err := bonus.InitService(st, cfg.LedgerConfig, log)
	if err != nil {
		return nil, err
	}

	// initialize broker
	brokerService := broker.InitBroker(ctx, queueIn, bonusService, cfg.QueueConfig, log, wg)
	brokerService.ListenAndProcess()

	// initialize handlers
	urlHandler, err := handlers.InitHandlers(accountService, depositService, withdrawalService, bonusService, secretaryService, cfg.ServerConfig, log)
	if err != nil {
		return nil, err
	}

	// initialize server and set routing
	r := chi.NewRouter()
	loginGroup := r.Group(nil)
	userGroup := r.Group(nil)
	adminGroup := r.Group(nil)
	userGroup.Use(tokenHandler.TokenHandle)
	adminGroup.Use(tokenHandler.AdminHandle)

	loginGroup.Post("/api/user/register", urlHandler.HandleRegister())
	loginGroup.Post("/api/user/login", urlHandler.HandleLogin())

	userGroup.Get("/api/user/balance", urlHandler.HandleGetBalance())
	userGroup.Post("/api/user/deposits", urlHandler.HandleNewDeposit())
	userGroup.Get("/api/user/deposits", urlHandler.HandleGetDeposits())
	userGroup.Post("/api/user/withdrawals", urlHandler.HandleNewWithdrawal())
	userGroup.Get("/api/user/withdrawals", urlHandler.HandleGetWithdrawals())
	userGroup.Get("/api/user/bonuses", urlHandler.HandleGetBonuses())
	userGroup.Post("/api/user/bonuses/{bonusID}/claim", urlHandler.HandleNewClaim())
	userGroup.Get("/api/user/claims", urlHandler.HandleGetClaims())

	adminGroup.Get("/api/admin/deposits", urlHandler.HandleGetPendingDeposits())
	adminGroup.Post("/api/admin/deposits/{requestID}/approve", urlHandler.HandleApproveDeposit())
	adminGroup.Post("/api/admin/deposits/{requestID}/reject", urlHandler.HandleRejectDeposit())
	adminGroup.Get("/api/admin/withdrawals", urlHandler.HandleGetPendingWithdrawals())
	adminGroup.Post("/api/admin/withdrawals/{requestID}/confirm", urlHandler.HandleConfirmWithdrawal())
	adminGroup.Post("/api/admin/withdrawals/{requestID}/reject", urlHandler.HandleRejectWithdrawal())
	adminGroup.Get("/api/admin/claims", urlHandler.HandleGetPendingClaims())
	adminGroup.Post("/api/admin/claims/{claimID}/approve", urlHandler.HandleApproveClaim())
	adminGroup.Post("/api/admin/claims/{claimID}/reject", urlHandler.HandleRejectClaim())

	srv := &http.Server{
		Addr:         cfg.ServerConfig.ServerAddress,
		Handler:      r,
		IdleTimeout:  60 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return srv, nil
}
