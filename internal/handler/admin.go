package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"raffle-bot/internal/config"
	"raffle-bot/internal/model"
	"raffle-bot/internal/raffle"
	"raffle-bot/internal/service"
)

// AdminHandler handles raffle administration commands. The admin
// middleware gates every route registered with it.
type AdminHandler struct {
	cfg           *config.Config
	raffleService *service.RaffleService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(cfg *config.Config, raffleService *service.RaffleService) *AdminHandler {
	return &AdminHandler{cfg: cfg, raffleService: raffleService}
}

// HandleRaffleStart handles the /raffle_start command, opening a raffle
// owned by the calling admin.
func (h *AdminHandler) HandleRaffleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	chat := c.Chat()
	if sender == nil || chat == nil {
		return nil
	}
	if chat.Type == tele.ChatPrivate {
		return c.Reply("❌ Raffles run in group chats only")
	}

	r, err := h.raffleService.StartRaffle(ctx, chat.ID, sender.ID)
	if err != nil {
		if errors.Is(err, service.ErrRaffleExists) {
			return c.Reply("❌ A raffle is already running in this chat")
		}
		log.Error().Err(err).Int64("chat_id", chat.ID).Msg("Failed to start raffle")
		return c.Reply("❌ Failed to start the raffle")
	}

	bundles := r.Bundles()
	return c.Reply(fmt.Sprintf(
		"🎉 Raffle started!\n⏰ Ends: %s\n🎫 Small: %d for %s, medium: %d for %s, large: %d for %s\nSee /bundles to enter.",
		r.EndDate().UTC().Format("2006-01-02 15:04 MST"),
		bundles[raffle.TierSmall].Amount, h.cfg.FormatAmount(bundles[raffle.TierSmall].Price),
		bundles[raffle.TierMedium].Amount, h.cfg.FormatAmount(bundles[raffle.TierMedium].Price),
		bundles[raffle.TierLarge].Amount, h.cfg.FormatAmount(bundles[raffle.TierLarge].Price),
	))
}

// HandleRaffleFinish handles the /raffle_finish command, settling the
// chat's raffle and announcing the winner.
func (h *AdminHandler) HandleRaffleFinish(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	chat := c.Chat()
	if sender == nil || chat == nil {
		return nil
	}

	donation := model.Address(h.cfg.Raffle.DonationAddress)
	if donation.IsZero() {
		return c.Reply("❌ No donation address configured")
	}

	rec, err := h.raffleService.Finish(ctx, chat.ID, sender.ID, donation)
	if err != nil {
		return c.Reply(h.finishErrText(err))
	}

	return c.Reply(fmt.Sprintf(
		"🏆 Winner: %s\n💰 Prize: %s\n❤️ Donation: %s\n🏦 Commission: %s",
		rec.Winner.Short(),
		h.cfg.FormatAmount(rec.Prize),
		h.cfg.FormatAmount(rec.Donation),
		h.cfg.FormatAmount(rec.Commission),
	))
}

// HandleSoldTickets handles the /sold command, an owner-only count of
// all tickets granted.
func (h *AdminHandler) HandleSoldTickets(c tele.Context) error {
	sender := c.Sender()
	chat := c.Chat()
	if sender == nil || chat == nil {
		return nil
	}

	total, err := h.raffleService.SoldTickets(chat.ID, sender.ID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoActiveRaffle):
			return c.Reply("❌ No raffle is running in this chat")
		case errors.Is(err, raffle.ErrNotOwner):
			return c.Reply("❌ Only the raffle owner can see this")
		}
		return c.Reply("❌ Operation failed, please try again later")
	}
	return c.Reply(fmt.Sprintf("🎫 Tickets sold: %d", total))
}

// HandleFund handles the /fund command: reply to a member's message with
// /fund <amount> to mint into their account.
func (h *AdminHandler) HandleFund(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 1 {
		return c.Reply("❌ Usage: reply with /fund <amount>")
	}
	amount, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || amount == 0 {
		return c.Reply("❌ Enter a valid positive amount")
	}

	targetID := replyTargetID(c)
	if targetID == 0 {
		targetID = sender.ID
	}

	addr, err := h.raffleService.Fund(ctx, targetID, amount)
	if err != nil {
		log.Error().Err(err).Int64("target", targetID).Msg("Failed to fund account")
		return c.Reply("❌ Funding failed")
	}
	return c.Reply(fmt.Sprintf("💸 Funded %s with %s", addr.Short(), h.cfg.FormatAmount(amount)))
}

func (h *AdminHandler) finishErrText(err error) string {
	var transferErr *raffle.TransferError
	switch {
	case errors.Is(err, service.ErrNoActiveRaffle):
		return "❌ No raffle is running in this chat"
	case errors.Is(err, raffle.ErrNotOwner):
		return "❌ Only the raffle owner can settle"
	case errors.Is(err, raffle.ErrRaffleNotFinished):
		return "❌ The raffle is still open, wait for the deadline"
	case errors.Is(err, raffle.ErrAlreadySettled):
		return "❌ The raffle has already been settled"
	case errors.Is(err, raffle.ErrEmptyPot):
		return "❌ Nothing to distribute, the pot is empty"
	case errors.Is(err, raffle.ErrNoParticipants):
		return "❌ Nobody entered this raffle"
	case errors.As(err, &transferErr):
		return fmt.Sprintf("❌ Payout to %s failed, settlement rolled back", transferErr.Recipient.Short())
	default:
		return "❌ Settlement failed, please try again later"
	}
}
