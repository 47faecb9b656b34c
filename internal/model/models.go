// Package model defines the data models for the raffle bot.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Address identifies a participant on the currency ledger.
// The zero value is the unset sentinel.
type Address string

// ZeroAddress is the unset address sentinel.
const ZeroAddress Address = ""

// IsZero reports whether the address is the unset sentinel.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Short returns an abbreviated form suitable for chat output.
func (a Address) Short() string {
	if len(a) <= 12 {
		return string(a)
	}
	return string(a[:8]) + ".." + string(a[len(a)-4:])
}

// DeriveAddress maps a Telegram user ID to a stable 20-byte ledger address.
// The mapping is one-way and collision-resistant.
func DeriveAddress(telegramID int64) Address {
	sum := sha256.Sum256([]byte(fmt.Sprintf("raffle-bot:addr:%d", telegramID)))
	return Address("0x" + hex.EncodeToString(sum[:20]))
}

// DeriveEscrowAddress maps a chat ID to the funds account of that chat's
// raffle. Distinct from every user-derived address by construction.
func DeriveEscrowAddress(chatID int64) Address {
	sum := sha256.Sum256([]byte(fmt.Sprintf("raffle-bot:escrow:%d", chatID)))
	return Address("0x" + hex.EncodeToString(sum[:20]))
}

// Account represents a currency account backing a participant.
type Account struct {
	Address   Address   `db:"address"`
	Balance   uint64    `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Entry is an audit record of a ticket grant in a raffle.
type Entry struct {
	ID         int64     `db:"id"`
	ChatID     int64     `db:"chat_id"`
	Address    Address   `db:"address"`
	Kind       string    `db:"kind"`
	Tickets    uint64    `db:"tickets"`
	AmountPaid uint64    `db:"amount_paid"`
	CreatedAt  time.Time `db:"created_at"`
}

// RaffleRecord is the persisted form of a raffle session.
type RaffleRecord struct {
	ChatID          int64     `db:"chat_id"`
	Owner           Address   `db:"owner"`
	TicketPrice     uint64    `db:"ticket_price"`
	EndDate         time.Time `db:"end_date"`
	FixedPrize      uint64    `db:"fixed_prize"`
	DonationPercent uint64    `db:"donation_percent"`
	Pot             uint64    `db:"pot"`
	Winner          Address   `db:"winner"`
	Settled         bool      `db:"settled"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

// SettlementRecord is the audit record of a completed settlement.
type SettlementRecord struct {
	ID              int64     `db:"id"`
	ChatID          int64     `db:"chat_id"`
	Winner          Address   `db:"winner"`
	DonationAddress Address   `db:"donation_address"`
	Prize           uint64    `db:"prize"`
	Donation        uint64    `db:"donation"`
	Commission      uint64    `db:"commission"`
	CreatedAt       time.Time `db:"created_at"`
}

// Entry kinds for categorizing ticket grants.
const (
	EntryKindSmall    = "bundle_small"  // Small bundle purchase
	EntryKindMedium   = "bundle_medium" // Medium bundle purchase
	EntryKindLarge    = "bundle_large"  // Large bundle purchase
	EntryKindFallback = "fallback"      // Raw payment classified into a tier
	EntryKindFree     = "free"          // One-time free ticket claim
	EntryKindReferral = "referral"      // Referral bonus ticket
)

// PaidEntryKinds returns the entry kinds that carry payment into the pot.
func PaidEntryKinds() []string {
	return []string{EntryKindSmall, EntryKindMedium, EntryKindLarge, EntryKindFallback}
}
