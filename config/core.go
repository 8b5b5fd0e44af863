package config

import (
	"github.com/kbukum/accountguard/authflow"
	"github.com/kbukum/accountguard/credential"
	"github.com/kbukum/accountguard/diagnostics"
	apperrors "github.com/kbukum/accountguard/errors"
	"github.com/kbukum/accountguard/logger"
	"github.com/kbukum/accountguard/recovery"
	"github.com/kbukum/accountguard/store"
	"github.com/kbukum/accountguard/validation"
)

// BaseConfig identifies the deployment.
type BaseConfig struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Environment string `yaml:"environment" mapstructure:"environment"`
	Version     string `yaml:"version" mapstructure:"version"`
	Debug       bool   `yaml:"debug" mapstructure:"debug"`
}

// ApplyDefaults fills zero values and sanitizes the environment name,
// reporting substitutions as warnings.
func (c *BaseConfig) ApplyDefaults() []*apperrors.AppError {
	var warnings []*apperrors.AppError
	if c.Name == "" {
		c.Name = "accountguard"
	}
	switch c.Environment {
	case "":
		c.Environment = "development"
	case "development", "staging", "production":
	default:
		warnings = append(warnings, apperrors.ConfigInvalid("base.environment",
			"must be one of [development, staging, production]"))
		c.Environment = "development"
	}
	if c.Environment == "development" {
		c.Debug = true
	}
	return warnings
}

// CoreConfig aggregates every subsystem configuration.
type CoreConfig struct {
	Base        BaseConfig                     `yaml:"base" mapstructure:"base"`
	Logging     logger.Config                  `yaml:"logging" mapstructure:"logging"`
	Store       store.Config                   `yaml:"store" mapstructure:"store"`
	Recovery    recovery.Config                `yaml:"recovery" mapstructure:"recovery"`
	Credential  credential.Config              `yaml:"credential" mapstructure:"credential"`
	Auth        authflow.Config                `yaml:"auth" mapstructure:"auth"`
	Diagnostics diagnostics.SessionStoreConfig `yaml:"diagnostics" mapstructure:"diagnostics"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() CoreConfig {
	cfg := CoreConfig{
		Recovery: recovery.DefaultConfig(),
		Auth:     authflow.DefaultConfig(),
	}
	cfg.Base.ApplyDefaults()
	cfg.Logging.ApplyDefaults()
	cfg.Store.ApplyDefaults()
	cfg.Credential.ApplyDefaults()
	cfg.Diagnostics.ApplyDefaults()
	return cfg
}

// LoadCore loads the aggregate configuration and normalizes it. Invalid
// values are replaced by safe defaults; the returned warnings list one
// CONFIG_INVALID entry per substitution. Loading never fails on bad values,
// only on unreadable files.
func LoadCore(opts ...LoaderOption) (CoreConfig, []*apperrors.AppError, error) {
	cfg := Default()
	if err := Load(&cfg, opts...); err != nil {
		return Default(), nil, err
	}
	warnings := cfg.Normalize()
	return cfg, warnings, nil
}

// Normalize applies defaults across all sections and collects the
// substitution warnings. Sections that still fail struct validation after
// defaulting are reset to their defaults, never fatal.
func (c *CoreConfig) Normalize() []*apperrors.AppError {
	var warnings []*apperrors.AppError

	warnings = append(warnings, c.Base.ApplyDefaults()...)

	c.Logging.ApplyDefaults()
	if err := validation.ValidateStruct(&c.Logging); err != nil {
		warnings = append(warnings, apperrors.ConfigInvalid("logging", err.Error()))
		c.Logging = logger.Config{}
		c.Logging.ApplyDefaults()
	}

	c.Store.ApplyDefaults()
	if err := validation.ValidateStruct(&c.Store); err != nil {
		warnings = append(warnings, apperrors.ConfigInvalid("store", err.Error()))
		c.Store = store.Config{}
		c.Store.ApplyDefaults()
	}

	warnings = append(warnings, c.Recovery.ApplyDefaults()...)
	warnings = append(warnings, c.Credential.ApplyDefaults()...)
	warnings = append(warnings, c.Auth.ApplyDefaults()...)
	c.Diagnostics.ApplyDefaults()

	return warnings
}
