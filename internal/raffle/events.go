package raffle

import "github.com/rs/zerolog"

// Event names published by the raffle.
const (
	EventBundlePurchased   = "raffle.bundle.purchased"
	EventFreeTicketClaimed = "raffle.free_ticket.claimed"
	EventReferralGranted   = "raffle.referral.granted"
	EventWinnerPicked      = "raffle.winner.picked"
)

// EventSink receives raffle notifications.
type EventSink interface {
	Publish(event string, fields map[string]any)
}

// NopSink discards events.
type NopSink struct{}

// Publish discards the event.
func (NopSink) Publish(string, map[string]any) {}

// LogSink publishes events as structured log lines.
type LogSink struct {
	Logger zerolog.Logger
}

// Publish logs the event with its fields.
func (s LogSink) Publish(event string, fields map[string]any) {
	s.Logger.Info().Fields(fields).Str("event", event).Msg("raffle event")
}
