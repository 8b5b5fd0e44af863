package authflow

import (
	"time"

	apperrors "github.com/kbukum/accountguard/errors"
)

// LockoutConfig controls per-account failure lockout.
type LockoutConfig struct {
	// MaxAttempts is the consecutive failure count that triggers a lockout.
	MaxAttempts int `mapstructure:"max_attempts"`
	// LockoutDurationMs is the base lockout length.
	LockoutDurationMs int `mapstructure:"lockout_duration_ms"`
	// ProgressiveLockout doubles the lockout length on each repeat offense.
	ProgressiveLockout bool `mapstructure:"progressive_lockout"`
	// StateTTLMinutes is how long an idle, unlocked entry survives before the
	// periodic sweep evicts it.
	StateTTLMinutes int `mapstructure:"state_ttl_minutes"`
}

// Duration returns the base lockout length.
func (c LockoutConfig) Duration() time.Duration {
	return time.Duration(c.LockoutDurationMs) * time.Millisecond
}

// StateTTL returns the idle-entry retention window.
func (c LockoutConfig) StateTTL() time.Duration {
	return time.Duration(c.StateTTLMinutes) * time.Minute
}

// SessionConfig controls issued tokens and second-factor challenges.
type SessionConfig struct {
	// SigningKey signs session tokens. Empty means a random per-process key.
	SigningKey string `mapstructure:"signing_key"`
	// TokenTTLMinutes bounds session token lifetime.
	TokenTTLMinutes int `mapstructure:"token_ttl_minutes"`
	// SecondFactorTTLSeconds bounds how long a challenge stays answerable.
	SecondFactorTTLSeconds int `mapstructure:"second_factor_ttl_seconds"`
	// SecondFactorMaxAttempts bounds wrong answers before the challenge dies.
	SecondFactorMaxAttempts int `mapstructure:"second_factor_max_attempts"`
}

// TokenTTL returns the session token lifetime.
func (c SessionConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

// SecondFactorTTL returns the challenge lifetime.
func (c SessionConfig) SecondFactorTTL() time.Duration {
	return time.Duration(c.SecondFactorTTLSeconds) * time.Second
}

// Config aggregates coordinator settings.
type Config struct {
	Lockout LockoutConfig `mapstructure:"lockout"`
	Session SessionConfig `mapstructure:"session"`
}

// DefaultConfig returns the standard coordinator configuration: five
// attempts, five-minute lockouts, hour-long tokens.
func DefaultConfig() Config {
	return Config{
		Lockout: LockoutConfig{
			MaxAttempts:       5,
			LockoutDurationMs: 300000,
			StateTTLMinutes:   30,
		},
		Session: SessionConfig{
			TokenTTLMinutes:         60,
			SecondFactorTTLSeconds:  300,
			SecondFactorMaxAttempts: 3,
		},
	}
}

// ApplyDefaults sanitizes invalid knobs, reporting each substitution as a
// CONFIG_INVALID warning.
func (c *Config) ApplyDefaults() []*apperrors.AppError {
	var warnings []*apperrors.AppError
	def := DefaultConfig()

	if c.Lockout.MaxAttempts <= 0 {
		if c.Lockout.MaxAttempts < 0 {
			warnings = append(warnings, apperrors.ConfigInvalid("auth.lockout.max_attempts", "must be positive"))
		}
		c.Lockout.MaxAttempts = def.Lockout.MaxAttempts
	}
	if c.Lockout.LockoutDurationMs <= 0 {
		if c.Lockout.LockoutDurationMs < 0 {
			warnings = append(warnings, apperrors.ConfigInvalid("auth.lockout.lockout_duration_ms", "must be positive"))
		}
		c.Lockout.LockoutDurationMs = def.Lockout.LockoutDurationMs
	}
	if c.Lockout.StateTTLMinutes <= 0 {
		if c.Lockout.StateTTLMinutes < 0 {
			warnings = append(warnings, apperrors.ConfigInvalid("auth.lockout.state_ttl_minutes", "must be positive"))
		}
		c.Lockout.StateTTLMinutes = def.Lockout.StateTTLMinutes
	}
	if c.Session.TokenTTLMinutes <= 0 {
		if c.Session.TokenTTLMinutes < 0 {
			warnings = append(warnings, apperrors.ConfigInvalid("auth.session.token_ttl_minutes", "must be positive"))
		}
		c.Session.TokenTTLMinutes = def.Session.TokenTTLMinutes
	}
	if c.Session.SecondFactorTTLSeconds <= 0 {
		if c.Session.SecondFactorTTLSeconds < 0 {
			warnings = append(warnings, apperrors.ConfigInvalid("auth.session.second_factor_ttl_seconds", "must be positive"))
		}
		c.Session.SecondFactorTTLSeconds = def.Session.SecondFactorTTLSeconds
	}
	if c.Session.SecondFactorMaxAttempts <= 0 {
		if c.Session.SecondFactorMaxAttempts < 0 {
			warnings = append(warnings, apperrors.ConfigInvalid("auth.session.second_factor_max_attempts", "must be positive"))
		}
		c.Session.SecondFactorMaxAttempts = def.Session.SecondFactorMaxAttempts
	}
	return warnings
}
