package credential

import (
	apperrors "github.com/kbukum/accountguard/errors"
)

// DefaultPepper is used when no application pepper is configured. Deployments
// are expected to override it.
const DefaultPepper = "accountguard/pepper/v1"

// Policy holds the password rules for one security tier.
// Loadable from YAML/env via mapstructure tags.
type Policy struct {
	// MinLength is the minimum secret length (default: 8).
	MinLength int `mapstructure:"min_length"`
	// RequireUpper requires at least one upper-case letter.
	RequireUpper bool `mapstructure:"require_upper"`
	// RequireDigit requires at least one digit.
	RequireDigit bool `mapstructure:"require_digit"`
	// RequireSymbol requires at least one non-alphanumeric character.
	RequireSymbol bool `mapstructure:"require_symbol"`
	// HistoryCount is how many previous hashes a new secret must differ from (default: 5).
	HistoryCount int `mapstructure:"history_count"`
	// MaxAgeDays marks credentials older than this as expired. 0 disables the check.
	MaxAgeDays int `mapstructure:"max_age_days"`
}

// Config configures the credential hasher.
type Config struct {
	// Pepper is the application-wide value mixed into every derivation.
	Pepper string `mapstructure:"pepper"`
	// Iterations is the KDF work factor handed to the negotiator (default: 3).
	Iterations int `mapstructure:"iterations"`
	// SaltLength is the salt size in bytes (default: 16).
	SaltLength int `mapstructure:"salt_length"`
	// Policies maps a tier tag ("T1", "T2", "T3") to its password policy.
	// Missing tiers fall back to the default policy.
	Policies map[string]Policy `mapstructure:"policies"`
}

// DefaultPolicy returns the policy used for tiers with no explicit entry.
func DefaultPolicy() Policy {
	return Policy{MinLength: 8, RequireDigit: true, HistoryCount: 5}
}

// ApplyDefaults fills in zero-valued fields and sanitizes nonsense values,
// returning a CONFIG_INVALID warning for each substitution.
func (c *Config) ApplyDefaults() []*apperrors.AppError {
	var warnings []*apperrors.AppError
	if c.Pepper == "" {
		c.Pepper = DefaultPepper
	}
	if c.Iterations <= 0 {
		if c.Iterations < 0 {
			warnings = append(warnings, apperrors.ConfigInvalid("credential.iterations", "must be positive"))
		}
		c.Iterations = 3
	}
	if c.SaltLength < 8 {
		if c.SaltLength != 0 {
			warnings = append(warnings, apperrors.ConfigInvalid("credential.salt_length", "below minimum of 8"))
		}
		c.SaltLength = 16
	}
	if c.Policies == nil {
		c.Policies = map[string]Policy{}
	}
	for tag, p := range c.Policies {
		if p.MinLength <= 0 {
			p.MinLength = DefaultPolicy().MinLength
			warnings = append(warnings, apperrors.ConfigInvalid("credential.policies."+tag+".min_length", "must be positive"))
		}
		if p.HistoryCount < 0 {
			p.HistoryCount = DefaultPolicy().HistoryCount
			warnings = append(warnings, apperrors.ConfigInvalid("credential.policies."+tag+".history_count", "must not be negative"))
		}
		c.Policies[tag] = p
	}
	return warnings
}

// PolicyFor returns the policy for a tier tag, falling back to the default.
func (c *Config) PolicyFor(tag string) Policy {
	if p, ok := c.Policies[tag]; ok {
		return p
	}
	return DefaultPolicy()
}
