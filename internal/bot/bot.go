// Package bot provides the Telegram bot initialization and handler registration.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"raffle-bot/internal/config"
	"raffle-bot/internal/handler"
	"raffle-bot/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot           *tele.Bot
	cfg           *config.Config
	raffleService *service.RaffleService

	accountHandler *handler.AccountHandler
	raffleHandler  *handler.RaffleHandler
	adminHandler   *handler.AdminHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config        *config.Config
	RaffleService *service.RaffleService
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:           teleBot,
		cfg:           deps.Config,
		raffleService: deps.RaffleService,
	}

	b.accountHandler = handler.NewAccountHandler(deps.Config, deps.RaffleService)
	b.raffleHandler = handler.NewRaffleHandler(deps.Config, deps.RaffleService)
	b.adminHandler = handler.NewAdminHandler(deps.Config, deps.RaffleService)

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

func (b *Bot) registerMiddleware() {
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())
	b.bot.Use(RecoveryMiddleware())
}

func (b *Bot) registerHandlers() {
	// Account commands
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/balance", b.accountHandler.HandleBalance)

	// Raffle participation commands
	b.bot.Handle("/raffle", b.raffleHandler.HandleStatus)
	b.bot.Handle("/bundles", b.raffleHandler.HandleBundles)
	b.bot.Handle("/buy_small", b.raffleHandler.HandleBuySmall)
	b.bot.Handle("/buy_medium", b.raffleHandler.HandleBuyMedium)
	b.bot.Handle("/buy_large", b.raffleHandler.HandleBuyLarge)
	b.bot.Handle("/pot", b.raffleHandler.HandlePot)
	b.bot.Handle("/split", b.raffleHandler.HandleSplit)
	b.bot.Handle("/free_ticket", b.raffleHandler.HandleFreeTicket)
	b.bot.Handle("/refer", b.raffleHandler.HandleRefer)
	b.bot.Handle("/tickets", b.raffleHandler.HandleMyTickets)

	// Admin commands (with admin middleware)
	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/raffle_start", b.adminHandler.HandleRaffleStart)
	adminGroup.Handle("/raffle_finish", b.adminHandler.HandleRaffleFinish)
	adminGroup.Handle("/sold", b.adminHandler.HandleSoldTickets)
	adminGroup.Handle("/fund", b.adminHandler.HandleFund)
}

// Start starts the bot polling.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
