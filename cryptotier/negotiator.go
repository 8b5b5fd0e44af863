package cryptotier

import (
	"fmt"
	"sync"

	"github.com/kbukum/accountguard/errors"
	"github.com/kbukum/accountguard/logger"
)

// Degradation warning texts attached to results produced below Tier 1.
const (
	WarnSoftwareTier = "platform crypto unavailable; running on the software provider"
	WarnFallbackTier = "all secure crypto providers unavailable; output is deterministic and MUST NOT be treated as a secret"
)

// Result carries the output of a primitive operation together with the tier
// that produced it and any degradation warnings. Warnings are empty exactly
// when Tier is TierPlatform.
type Result struct {
	Value    []byte
	Tier     Tier
	Warnings []string
}

// Negotiator probes the ranked providers once per process and routes every
// primitive call through the best tier that works. It never fails unless all
// three tiers fail, which callers must treat as a fatal configuration error.
type Negotiator struct {
	mu        sync.Mutex
	providers []Provider
	probed    bool
	active    int // index into providers after probe
	log       *logger.Logger
}

// Option configures a Negotiator.
type Option func(*Negotiator)

// WithProviders replaces the default provider chain. Used by tests to force
// tier failures; the chain must be ordered strongest first.
func WithProviders(providers ...Provider) Option {
	return func(n *Negotiator) { n.providers = providers }
}

// New creates a Negotiator with the default three-tier chain.
func New(log *logger.Logger, opts ...Option) *Negotiator {
	if log == nil {
		log = logger.Nop()
	}
	n := &Negotiator{
		providers: []Provider{platformProvider{}, &softwareProvider{}, &fallbackProvider{}},
		log:       log.WithComponent("cryptotier"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ActiveTier returns the tier selected by the probe, running the probe first
// if needed.
func (n *Negotiator) ActiveTier() Tier {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.probeLocked()
	if n.active >= len(n.providers) {
		return TierFallback
	}
	return n.providers[n.active].Tier()
}

// probeLocked self-tests providers strongest-first and caches the first one
// that passes. Platform support is assumed not to regress within a process
// lifetime, so the result is never re-probed.
func (n *Negotiator) probeLocked() {
	if n.probed {
		return
	}
	n.probed = true
	n.active = len(n.providers)
	for i, p := range n.providers {
		if err := selfTest(p); err != nil {
			n.log.Warn("crypto tier failed self-test", logger.Fields(
				logger.FieldTier, p.Tier().String(),
				logger.FieldError, err.Error(),
			))
			continue
		}
		n.active = i
		n.log.Info("crypto tier selected", logger.Fields(logger.FieldTier, p.Tier().String()))
		return
	}
	n.log.Error("no crypto tier passed self-test")
}

// selfTest exercises all three primitives, converting panics to errors.
func selfTest(p Provider) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cryptotier: provider panic: %v", r)
		}
	}()
	if _, err = p.RandomBytes(16); err != nil {
		return err
	}
	if _, err = p.Hash([]byte("probe")); err != nil {
		return err
	}
	_, err = p.DeriveKey([]byte("probe"), []byte("probe-salt"), 1)
	return err
}

// call runs fn against the active provider, sliding down the chain if the
// call itself faults. A fault never propagates; only chain exhaustion does.
func (n *Negotiator) call(fn func(Provider) ([]byte, error)) (Result, error) {
	n.mu.Lock()
	n.probeLocked()
	start := n.active
	providers := n.providers
	n.mu.Unlock()

	var lastErr error
	for i := start; i < len(providers); i++ {
		p := providers[i]
		value, err := safeCall(p, fn)
		if err != nil {
			lastErr = err
			n.log.Warn("crypto call failed, degrading", logger.Fields(
				logger.FieldTier, p.Tier().String(),
				logger.FieldError, err.Error(),
			))
			continue
		}
		return Result{Value: value, Tier: p.Tier(), Warnings: tierWarnings(p.Tier())}, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("cryptotier: no providers configured")
	}
	return Result{}, errors.CryptoUnavailable(lastErr)
}

func safeCall(p Provider, fn func(Provider) ([]byte, error)) (value []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cryptotier: provider panic: %v", r)
		}
	}()
	return fn(p)
}

func tierWarnings(t Tier) []string {
	switch t {
	case TierSoftware:
		return []string{WarnSoftwareTier}
	case TierFallback:
		return []string{WarnFallbackTier}
	default:
		return nil
	}
}

// RandomBytes returns n random bytes from the best available tier.
func (n *Negotiator) RandomBytes(size int) (Result, error) {
	return n.call(func(p Provider) ([]byte, error) { return p.RandomBytes(size) })
}

// Hash digests data with the best available tier's algorithm.
func (n *Negotiator) Hash(data []byte) (Result, error) {
	return n.call(func(p Provider) ([]byte, error) { return p.Hash(data) })
}

// DeriveKey stretches a secret with the best available tier's KDF.
func (n *Negotiator) DeriveKey(secret, salt []byte, iterations int) (Result, error) {
	return n.call(func(p Provider) ([]byte, error) { return p.DeriveKey(secret, salt, iterations) })
}

// DeriveKeyAt stretches a secret with a specific tier's KDF, with no
// fallback. Credential verification uses this so a bundle is always checked
// with the exact algorithm that produced it.
func (n *Negotiator) DeriveKeyAt(tier Tier, secret, salt []byte, iterations int) (Result, error) {
	n.mu.Lock()
	providers := n.providers
	n.mu.Unlock()

	for _, p := range providers {
		if p.Tier() != tier {
			continue
		}
		value, err := safeCall(p, func(p Provider) ([]byte, error) {
			return p.DeriveKey(secret, salt, iterations)
		})
		if err != nil {
			return Result{}, errors.CryptoUnavailable(err)
		}
		return Result{Value: value, Tier: tier, Warnings: tierWarnings(tier)}, nil
	}
	return Result{}, errors.CryptoUnavailable(fmt.Errorf("cryptotier: no provider for tier %s", tier))
}
