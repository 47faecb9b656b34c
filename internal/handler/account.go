package handler

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"raffle-bot/internal/config"
	"raffle-bot/internal/service"
)

// AccountHandler handles account and balance commands.
type AccountHandler struct {
	cfg           *config.Config
	raffleService *service.RaffleService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(cfg *config.Config, raffleService *service.RaffleService) *AccountHandler {
	return &AccountHandler{cfg: cfg, raffleService: raffleService}
}

// HandleStart handles the /start command, provisioning the account.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	addr, acct, err := h.raffleService.EnsureAccount(ctx, sender.ID)
	if err != nil {
		return c.Reply("❌ Operation failed, please try again later")
	}

	return c.Reply(fmt.Sprintf(
		"👋 Welcome, @%s!\n📬 Address: %s\n💰 Balance: %s\n\nSee /bundles for tickets and /raffle for the draw.",
		displayName(sender), addr.Short(), h.cfg.FormatAmount(acct.Balance),
	))
}

// HandleBalance handles the /balance command.
func (h *AccountHandler) HandleBalance(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	if _, _, err := h.raffleService.EnsureAccount(ctx, sender.ID); err != nil {
		return c.Reply("❌ Operation failed, please try again later")
	}
	balance, err := h.raffleService.Balance(ctx, sender.ID)
	if err != nil {
		return c.Reply("❌ Failed to fetch balance")
	}
	return c.Reply(fmt.Sprintf("💰 Balance: %s", h.cfg.FormatAmount(balance)))
}
