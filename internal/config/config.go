// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot       BotConfig       `mapstructure:"bot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Whitelist WhitelistConfig `mapstructure:"whitelist"`
	Raffle    RaffleConfig    `mapstructure:"raffle"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Faucet    FaucetConfig    `mapstructure:"faucet"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AdminConfig holds admin user configuration. Admins act as raffle
// owners: the first admin's derived address owns raffles started from
// chats, collects commissions and is excluded from participating.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// RaffleConfig holds raffle parameters.
type RaffleConfig struct {
	// TicketPrice is the small bundle price in minor currency units.
	TicketPrice uint64 `mapstructure:"ticket_price"`
	// Decimals scales minor units for display only.
	Decimals        int    `mapstructure:"decimals"`
	DurationDays    int    `mapstructure:"duration_days"`
	DonationPercent uint64 `mapstructure:"donation_percent"`
	// FixedPrize caps the winner's prize; 0 means half the pot.
	FixedPrize uint64 `mapstructure:"fixed_prize"`
	// DonationAddress receives the donation share at settlement.
	DonationAddress string `mapstructure:"donation_address"`
}

// ChainConfig holds the simulated block environment parameters.
type ChainConfig struct {
	BlockTime time.Duration `mapstructure:"block_time"`
}

// FaucetConfig holds the initial grant for newly seen participants.
type FaucetConfig struct {
	InitialBalance uint64 `mapstructure:"initial_balance"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. BOT_TOKEN, DATABASE_HOST, RAFFLE_TICKET_PRICE.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - env vars can provide all config.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "rafflebot")
	v.SetDefault("database.name", "rafflebot")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Raffle defaults: 0.005 units at 6 decimals, two-day window,
	// 75% of the post-prize remainder donated.
	v.SetDefault("raffle.ticket_price", 5000)
	v.SetDefault("raffle.decimals", 6)
	v.SetDefault("raffle.duration_days", 2)
	v.SetDefault("raffle.donation_percent", 75)
	v.SetDefault("raffle.fixed_prize", 0)

	v.SetDefault("chain.block_time", "12s")
	v.SetDefault("faucet.initial_balance", 100000)
}

// IsAdmin checks if a user ID is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Admin.IDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed.
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	for _, id := range c.Whitelist.Chats {
		if id == chatID {
			return true
		}
	}
	return false
}

// FormatAmount renders minor units using the configured decimals,
// trimming trailing zeros (5000 at 6 decimals prints as "0.005").
func (c *Config) FormatAmount(amount uint64) string {
	if c.Raffle.Decimals <= 0 {
		return fmt.Sprintf("%d", amount)
	}
	scale := uint64(1)
	for i := 0; i < c.Raffle.Decimals; i++ {
		scale *= 10
	}
	whole := amount / scale
	frac := amount % scale
	if frac == 0 {
		return fmt.Sprintf("%d", whole)
	}
	s := fmt.Sprintf("%d.%0*d", whole, c.Raffle.Decimals, frac)
	return strings.TrimRight(s, "0")
}
