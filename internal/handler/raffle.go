// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"raffle-bot/internal/config"
	"raffle-bot/internal/raffle"
	"raffle-bot/internal/service"
)

// RaffleHandler handles raffle participation commands.
type RaffleHandler struct {
	cfg           *config.Config
	raffleService *service.RaffleService
}

// NewRaffleHandler creates a new RaffleHandler.
func NewRaffleHandler(cfg *config.Config, raffleService *service.RaffleService) *RaffleHandler {
	return &RaffleHandler{cfg: cfg, raffleService: raffleService}
}

// HandleStatus handles the /raffle command showing the current raffle state.
func (h *RaffleHandler) HandleStatus(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}

	st, err := h.raffleService.Status(chat.ID)
	if err != nil {
		return c.Reply(h.errText(err))
	}

	var b strings.Builder
	b.WriteString("🎟 Raffle\n")
	if st.Settled {
		fmt.Fprintf(&b, "🏆 Winner: %s\n", st.Winner.Short())
	} else {
		fmt.Fprintf(&b, "⏰ Ends: %s\n", st.EndDate.UTC().Format("2006-01-02 15:04 MST"))
	}
	fmt.Fprintf(&b, "💰 Pot: %s\n", h.cfg.FormatAmount(st.Pot))
	fmt.Fprintf(&b, "🎫 Tickets sold: %d, players: %d\n", st.TicketsSold, st.PlayerCount)
	fmt.Fprintf(&b, "🏅 Current prize: %s (donation %s)",
		h.cfg.FormatAmount(st.Distribution.Prize), h.cfg.FormatAmount(st.Distribution.Donation))
	return c.Reply(b.String())
}

// HandleBundles handles the /bundles command listing the three tiers.
func (h *RaffleHandler) HandleBundles(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}

	st, err := h.raffleService.Status(chat.ID)
	if err != nil {
		return c.Reply(h.errText(err))
	}

	var b strings.Builder
	b.WriteString("🎫 Ticket bundles\n")
	names := [...]string{"small", "medium", "large"}
	commands := [...]string{"/buy_small", "/buy_medium", "/buy_large"}
	for i, bundle := range st.Bundles {
		fmt.Fprintf(&b, "%s: %d tickets for %s (%s)\n",
			names[i], bundle.Amount, h.cfg.FormatAmount(bundle.Price), commands[i])
	}
	b.WriteString("\nReply to a player's message while buying to gift them a referral ticket.")
	return c.Reply(b.String())
}

// HandleBuySmall handles the /buy_small command.
func (h *RaffleHandler) HandleBuySmall(c tele.Context) error {
	return h.buy(c, raffle.TierSmall)
}

// HandleBuyMedium handles the /buy_medium command.
func (h *RaffleHandler) HandleBuyMedium(c tele.Context) error {
	return h.buy(c, raffle.TierMedium)
}

// HandleBuyLarge handles the /buy_large command.
func (h *RaffleHandler) HandleBuyLarge(c tele.Context) error {
	return h.buy(c, raffle.TierLarge)
}

// buy performs a bundle purchase. Replying to another member's message
// gifts that member one referral ticket alongside the purchase.
func (h *RaffleHandler) buy(c tele.Context, tier raffle.Tier) error {
	ctx := context.Background()
	sender := c.Sender()
	chat := c.Chat()
	if sender == nil || chat == nil {
		return nil
	}

	referredID := replyTargetID(c)
	var granted, price uint64
	var err error
	if referredID != 0 {
		granted, price, err = h.raffleService.BuyWithReferral(ctx, chat.ID, sender.ID, tier, referredID)
	} else {
		granted, price, err = h.raffleService.Buy(ctx, chat.ID, sender.ID, tier)
	}
	if err != nil {
		return c.Reply(h.errText(err))
	}

	msg := fmt.Sprintf("✅ @%s bought %d tickets for %s", displayName(sender), granted, h.cfg.FormatAmount(price))
	if referredID != 0 {
		msg += "\n🎁 Referral ticket granted"
	}
	return c.Reply(msg)
}

// HandleFreeTicket handles the /free_ticket command.
func (h *RaffleHandler) HandleFreeTicket(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	chat := c.Chat()
	if sender == nil || chat == nil {
		return nil
	}

	if err := h.raffleService.FreeTicket(ctx, chat.ID, sender.ID); err != nil {
		return c.Reply(h.errText(err))
	}
	return c.Reply(fmt.Sprintf("🎟 @%s claimed the free ticket. Good luck!", displayName(sender)))
}

// HandleRefer handles the /refer command. The referred member is the
// sender of the replied-to message and must already hold a ticket.
func (h *RaffleHandler) HandleRefer(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	chat := c.Chat()
	if sender == nil || chat == nil {
		return nil
	}

	referredID := replyTargetID(c)
	if referredID == 0 {
		return c.Reply("❌ Reply to the player you want to refer")
	}

	if err := h.raffleService.Refer(ctx, chat.ID, sender.ID, referredID); err != nil {
		return c.Reply(h.errText(err))
	}
	return c.Reply("🎁 Referral ticket granted")
}

// HandlePot handles the /pot command showing the collected pot and the
// prize it currently backs.
func (h *RaffleHandler) HandlePot(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}

	st, err := h.raffleService.Status(chat.ID)
	if err != nil {
		return c.Reply(h.errText(err))
	}
	return c.Reply(fmt.Sprintf("💰 Pot: %s\n🏅 Current prize: %s",
		h.cfg.FormatAmount(st.Pot), h.cfg.FormatAmount(st.Distribution.Prize)))
}

// HandleSplit handles the /split command showing how the pot would be
// distributed if settlement ran now.
func (h *RaffleHandler) HandleSplit(c tele.Context) error {
	chat := c.Chat()
	if chat == nil {
		return nil
	}

	st, err := h.raffleService.Status(chat.ID)
	if err != nil {
		return c.Reply(h.errText(err))
	}
	return c.Reply(fmt.Sprintf("🏅 Prize: %s\n❤️ Donation: %s\n🏦 Commission: %s",
		h.cfg.FormatAmount(st.Distribution.Prize),
		h.cfg.FormatAmount(st.Distribution.Donation),
		h.cfg.FormatAmount(st.Distribution.Commission)))
}

// HandleMyTickets handles the /tickets command.
func (h *RaffleHandler) HandleMyTickets(c tele.Context) error {
	sender := c.Sender()
	chat := c.Chat()
	if sender == nil || chat == nil {
		return nil
	}

	count, err := h.raffleService.Tickets(chat.ID, sender.ID)
	if err != nil {
		return c.Reply(h.errText(err))
	}
	if count == 0 {
		return c.Reply("🎫 You hold no tickets yet. Try /bundles or /free_ticket")
	}
	return c.Reply(fmt.Sprintf("🎫 You hold %d tickets", count))
}

// errText maps service and raffle errors to user-facing replies.
func (h *RaffleHandler) errText(err error) string {
	switch {
	case errors.Is(err, service.ErrNoActiveRaffle):
		return "❌ No raffle is running in this chat"
	case errors.Is(err, raffle.ErrRaffleClosed):
		return "❌ The raffle has closed, ticket sales are over"
	case errors.Is(err, raffle.ErrAlreadySettled):
		return "❌ The raffle has already been settled"
	case errors.Is(err, raffle.ErrOwnerExcluded):
		return "❌ The raffle owner cannot participate"
	case errors.Is(err, raffle.ErrInsufficientFunds):
		return "❌ Insufficient balance, check /balance"
	case errors.Is(err, raffle.ErrInsufficientAllowance):
		return "❌ Insufficient allowance for this purchase"
	case errors.Is(err, raffle.ErrAlreadyClaimed):
		return "❌ The free ticket is for first-time players only"
	case errors.Is(err, raffle.ErrSelfReferral):
		return "❌ You cannot refer yourself"
	case errors.Is(err, raffle.ErrNotAPlayer):
		return "❌ The referred member must already hold a ticket"
	case errors.Is(err, raffle.ErrInvalidPurchase):
		return "❌ Invalid purchase"
	default:
		return "❌ Operation failed, please try again later"
	}
}

// replyTargetID returns the sender of the replied-to message, or 0. Bots
// and self-replies do not count as referral targets here; the deeper
// checks live in the raffle itself.
func replyTargetID(c tele.Context) int64 {
	msg := c.Message()
	if msg == nil || msg.ReplyTo == nil || msg.ReplyTo.Sender == nil {
		return 0
	}
	if msg.ReplyTo.Sender.IsBot {
		return 0
	}
	return msg.ReplyTo.Sender.ID
}

func displayName(u *tele.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}
