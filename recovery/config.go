package recovery

import (
	"time"

	apperrors "github.com/kbukum/accountguard/errors"
)

// Config controls bootstrap and emergency recovery behavior. Unknown or
// invalid values never abort startup; ApplyDefaults substitutes safe values
// and reports each substitution.
type Config struct {
	// CreateMissingDirectories creates absent layout directories during
	// bootstrap. Emergency recovery creates them regardless.
	CreateMissingDirectories bool `mapstructure:"create_missing_directories"`
	// RepairCorruptedData quarantines records that fail repair.
	RepairCorruptedData bool `mapstructure:"repair_corrupted_data"`
	// ValidateAllUsers runs a full record scan during bootstrap.
	ValidateAllUsers bool `mapstructure:"validate_all_users"`
	// CreateBackups snapshots registry files before emergency repairs.
	CreateBackups bool `mapstructure:"create_backups"`
	// ForceDefaults rewrites unreadable registry files with defaults during
	// emergency recovery instead of leaving them in place.
	ForceDefaults bool `mapstructure:"force_defaults"`
	// MaxRecoveryAttempts bounds emergency recovery passes.
	MaxRecoveryAttempts int `mapstructure:"max_recovery_attempts"`
	// RecoveryTimeoutMs bounds one bootstrap pass before recovery escalates.
	RecoveryTimeoutMs int `mapstructure:"recovery_timeout_ms"`
}

// DefaultConfig returns the standard recovery configuration.
func DefaultConfig() Config {
	return Config{
		CreateMissingDirectories: true,
		RepairCorruptedData:      true,
		ValidateAllUsers:         false,
		CreateBackups:            true,
		ForceDefaults:            false,
		MaxRecoveryAttempts:      3,
		RecoveryTimeoutMs:        10000,
	}
}

// ApplyDefaults sanitizes numeric knobs, reporting each substitution as a
// CONFIG_INVALID warning.
func (c *Config) ApplyDefaults() []*apperrors.AppError {
	var warnings []*apperrors.AppError
	if c.MaxRecoveryAttempts <= 0 {
		if c.MaxRecoveryAttempts < 0 {
			warnings = append(warnings, apperrors.ConfigInvalid("recovery.max_recovery_attempts", "must be positive"))
		}
		c.MaxRecoveryAttempts = DefaultConfig().MaxRecoveryAttempts
	}
	if c.RecoveryTimeoutMs <= 0 {
		if c.RecoveryTimeoutMs < 0 {
			warnings = append(warnings, apperrors.ConfigInvalid("recovery.recovery_timeout_ms", "must be positive"))
		}
		c.RecoveryTimeoutMs = DefaultConfig().RecoveryTimeoutMs
	}
	return warnings
}

// Timeout returns the bootstrap deadline as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RecoveryTimeoutMs) * time.Millisecond
}
