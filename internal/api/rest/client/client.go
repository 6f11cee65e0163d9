// Package client implements a client for notifying the payout gateway about
// confirmed withdrawals.
package client

import (
	"context"
	"fmt"

	"github.com/danilovkiri/dk-go-cashdesk/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Client defines attributes of a struct available to its methods.
type Client struct {
	client       *resty.Client
	serverConfig *config.ServerConfig
	log          *zerolog.Logger
}

type payoutNotification struct {
	RequestID    string `json:"request_id"`
	Amount       int64  `json:"amount"`
	PayoutMethod string `json:"payout_method"`
}

// InitClient initializes a resty client.
func InitClient(serverConfig *config.ServerConfig, log *zerolog.Logger) *Client {
	gatewayClient := resty.New()
	log.Info().Msg("payout gateway client initialized")
	return &Client{client: gatewayClient, serverConfig: serverConfig, log: log}
}

// NotifyPayout posts a confirmed withdrawal to the payout gateway. Payout
// destination details never leave the service, the gateway resolves them by
// request identifier.
func (c *Client) NotifyPayout(ctx context.Context, requestID string, amount int64, payoutMethod string) error {
	c.log.Info().Msg(fmt.Sprintf("sending payout notification for request %s", requestID))
	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payoutNotification{RequestID: requestID, Amount: amount, PayoutMethod: payoutMethod}).
		Post(c.serverConfig.GatewayAddress + "/api/payouts")
	if err != nil {
		c.log.Err(err).Msg(fmt.Sprintf("payout notification failed for request %s", requestID))
		return err
	}
	if response.IsError() {
		err = fmt.Errorf("payout gateway responded with status %d", response.StatusCode())
		c.log.Err(err).Msg(fmt.Sprintf("payout notification failed for request %s", requestID))
		return err
	}
	return nil
}
