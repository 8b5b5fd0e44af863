package authflow

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/accountguard/credential"
	"github.com/kbukum/accountguard/cryptotier"
	"github.com/kbukum/accountguard/diagnostics"
	apperrors "github.com/kbukum/accountguard/errors"
	"github.com/kbukum/accountguard/guardian"
	"github.com/kbukum/accountguard/logger"
	"github.com/kbukum/accountguard/record"
	"github.com/kbukum/accountguard/resilience"
	"github.com/kbukum/accountguard/store"
	"github.com/kbukum/accountguard/validation"
)

// WarnPasswordExpired is staged on successful logins whose credential has
// outlived the policy's maximum age.
const WarnPasswordExpired = "password has expired; change it to keep the account secure"

// CodeDelivery hands a second-factor code to the host for out-of-band
// delivery. The coordinator never returns codes in results.
type CodeDelivery func(username, code string)

// pendingChallenge is an open second-factor challenge.
type pendingChallenge struct {
	address   string
	username  string
	code      string
	expiresAt time.Time
	attempts  int
}

// Coordinator drives the authentication flows over the account store.
type Coordinator struct {
	cfg      Config
	store    *store.Store
	hasher   *credential.Hasher
	neg      *cryptotier.Negotiator
	sessions *diagnostics.SessionStore
	sink     diagnostics.Sink
	log      *logger.Logger
	retry    resilience.RetryConfig
	deliver  CodeDelivery

	signingKey []byte
	lockouts   *lockoutTable

	mu      sync.Mutex
	pending map[string]*pendingChallenge
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCodeDelivery installs the second-factor delivery hook.
func WithCodeDelivery(fn CodeDelivery) Option {
	return func(c *Coordinator) { c.deliver = fn }
}

// WithRetryConfig overrides the storage retry policy.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *Coordinator) { c.retry = cfg }
}

// NewCoordinator wires the coordinator. Config substitutions are returned as
// warnings. When no signing key is configured a random per-process key is
// drawn from the negotiator, which invalidates tokens across restarts.
func NewCoordinator(cfg Config, st *store.Store, hasher *credential.Hasher, neg *cryptotier.Negotiator,
	sessions *diagnostics.SessionStore, sink diagnostics.Sink, log *logger.Logger, opts ...Option) (*Coordinator, []*apperrors.AppError, error) {

	warnings := cfg.ApplyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	if sessions == nil {
		sessions = diagnostics.NewSessionStore(diagnostics.SessionStoreConfig{})
	}
	if sink == nil {
		sink = diagnostics.NewLogSink(log)
	}

	c := &Coordinator{
		cfg:      cfg,
		store:    st,
		hasher:   hasher,
		neg:      neg,
		sessions: sessions,
		sink:     sink,
		log:      log.WithComponent("authflow"),
		retry:    resilience.DefaultRetryConfig(),
		lockouts: newLockoutTable(cfg.Lockout),
		pending:  make(map[string]*pendingChallenge),
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.Session.SigningKey != "" {
		c.signingKey = []byte(cfg.Session.SigningKey)
	} else {
		res, err := neg.RandomBytes(32)
		if err != nil {
			return nil, warnings, err
		}
		c.signingKey = res.Value
	}
	return c, warnings, nil
}

// Sessions exposes the diagnostic session store, for the host's sweeper.
func (c *Coordinator) Sessions() *diagnostics.SessionStore { return c.sessions }

// SweepLockouts evicts idle lockout entries as of now. The host registers it
// with the diagnostics sweeper.
func (c *Coordinator) SweepLockouts(now time.Time) int { return c.lockouts.sweep(now) }

// guard converts panics escaping an operation into INTERNAL_ERROR so one
// faulty flow cannot take the process down.
func (c *Coordinator) guard(op string, sess *diagnostics.Session, err *error) {
	if r := recover(); r != nil {
		fault := apperrors.Internal(fmt.Errorf("authflow: panic in %s: %v", op, r))
		c.sink.Report(context.Background(), diagnostics.LevelCritical, "authflow", string(fault.Code),
			fault.Message, map[string]any{logger.FieldOperation: op}, fault.UserMessage)
		c.fail(sess, fault)
		*err = fault
	}
}

// fail records an error on the diagnostic session and closes it.
func (c *Coordinator) fail(sess *diagnostics.Session, err error) {
	if sess == nil || err == nil {
		return
	}
	sess.AddError(err.Error())
	c.sessions.End(sess, diagnostics.SessionFailed)
}

func (c *Coordinator) complete(sess *diagnostics.Session, warnings []string) {
	for _, w := range warnings {
		sess.AddWarning(w)
	}
	sess.Advance(diagnostics.StageComplete)
	c.sessions.End(sess, diagnostics.SessionCompleted)
}

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Founder  bool   `json:"founder"`
}

// RegisterResult reports the created account. The recovery phrase is shown
// exactly once, here.
type RegisterResult struct {
	Address        string   `json:"address"`
	Username       string   `json:"username"`
	RecoveryPhrase string   `json:"recovery_phrase"`
	Token          string   `json:"token"`
	SessionID      string   `json:"session_id"`
	Warnings       []string `json:"warnings,omitempty"`
}

// Register creates an account: policy-checked credential bundle, generated
// recovery phrase, and an atomically indexed record. Exactly one of two
// concurrent registrations for the same username wins.
func (c *Coordinator) Register(ctx context.Context, req RegisterRequest) (res *RegisterResult, err error) {
	sess := c.sessions.Begin("register")
	defer c.guard("register", sess, &err)

	if vErr := validation.New().
		Username("username", req.Username).
		Required("password", req.Password).
		Validate(); vErr != nil {
		c.fail(sess, vErr)
		return nil, vErr
	}

	bundle, hashWarnings, err := c.hasher.Create(req.Password)
	if err != nil {
		c.fail(sess, err)
		return nil, err
	}
	phrase, phraseWarnings, err := c.hasher.GenerateMnemonic(credential.DefaultMnemonicWords)
	if err != nil {
		c.fail(sess, err)
		return nil, err
	}

	rec := record.New("", req.Username, bundle, phrase)
	rec.Founder = req.Founder

	if err = resilience.RetryFunc(ctx, c.retry, func() error {
		return c.store.Create(ctx, rec)
	}); err != nil {
		c.fail(sess, err)
		return nil, err
	}

	token, err := c.issueToken(rec.Address, rec.Username)
	if err != nil {
		c.fail(sess, err)
		return nil, err
	}

	warnings := mergeWarnings(hashWarnings, phraseWarnings)
	c.reportDegraded(ctx, "register", bundle.Tier, warnings)
	c.complete(sess, warnings)
	c.log.Info("account registered", logger.Fields(
		logger.FieldAddress, rec.Address,
		logger.FieldTier, bundle.Tier,
	))
	return &RegisterResult{
		Address:        rec.Address,
		Username:       rec.Username,
		RecoveryPhrase: phrase,
		Token:          token,
		SessionID:      sess.ID,
		Warnings:       warnings,
	}, nil
}

// LoginRequest authenticates an existing account.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult reports a successful or second-factor-pending login.
type LoginResult struct {
	Address              string   `json:"address"`
	Token                string   `json:"token,omitempty"`
	SessionID            string   `json:"session_id"`
	SecondFactorRequired bool     `json:"second_factor_required"`
	Warnings             []string `json:"warnings,omitempty"`
}

// Login verifies the credentials. An unknown username is NOT_FOUND; a wrong
// password counts toward the lockout threshold. Founder accounts get a
// second-factor challenge instead of an immediate token.
func (c *Coordinator) Login(ctx context.Context, req LoginRequest) (res *LoginResult, err error) {
	sess := c.sessions.Begin("login")
	defer c.guard("login", sess, &err)

	if vErr := validation.New().
		Required("username", req.Username).
		Required("password", req.Password).
		Validate(); vErr != nil {
		c.fail(sess, vErr)
		return nil, vErr
	}

	key := record.NormalizedUsername(req.Username)
	if remaining := c.lockouts.remaining(key); remaining > 0 {
		lockErr := apperrors.Locked(remaining)
		c.fail(sess, lockErr)
		return nil, lockErr
	}

	address, err := resilience.Retry(ctx, c.retry, func() (string, error) {
		return c.store.LookupUsername(ctx, req.Username)
	})
	if err != nil {
		c.fail(sess, err)
		return nil, err
	}

	rec, err := c.loadRecord(ctx, address)
	if err != nil {
		c.fail(sess, err)
		return nil, err
	}

	ok, verifyWarnings, err := c.hasher.Verify(req.Password, rec.Credential)
	if err != nil {
		c.fail(sess, err)
		return nil, err
	}
	if !ok {
		return nil, c.credentialFailure(ctx, sess, key, rec)
	}

	c.lockouts.reset(key)
	sess.Advance(diagnostics.StageSecurityCode)
	warnings := append([]string(nil), verifyWarnings...)
	if c.hasher.Expired(rec.Credential) {
		warnings = append(warnings, WarnPasswordExpired)
	}
	c.reportDegraded(ctx, "login", rec.Credential.Tier, warnings)

	if rec.Founder {
		challengeID, err := c.openChallenge(sess.ID, rec)
		if err != nil {
			c.fail(sess, err)
			return nil, err
		}
		for _, w := range warnings {
			sess.AddWarning(w)
		}
		return &LoginResult{
			Address:              rec.Address,
			SessionID:            challengeID,
			SecondFactorRequired: true,
			Warnings:             warnings,
		}, nil
	}

	token, err := c.finishLogin(ctx, rec)
	if err != nil {
		c.fail(sess, err)
		return nil, err
	}
	c.complete(sess, warnings)
	return &LoginResult{
		Address:   rec.Address,
		Token:     token,
		SessionID: sess.ID,
		Warnings:  warnings,
	}, nil
}

// credentialFailure books a failed attempt and returns either Locked, when
// this attempt reached the threshold, or InvalidCredentials with the
// remaining attempt count attached.
func (c *Coordinator) credentialFailure(ctx context.Context, sess *diagnostics.Session, key string, rec *record.Record) error {
	locked, duration := c.lockouts.fail(key)
	if locked {
		c.recordIncident(ctx, rec, "lockout", fmt.Sprintf("account locked for %s after repeated failures", duration))
		lockErr := apperrors.Locked(duration)
		c.fail(sess, lockErr)
		return lockErr
	}
	invErr := apperrors.InvalidCredentials().WithDetail("attempts_left", c.lockouts.attemptsLeft(key))
	c.fail(sess, invErr)
	return invErr
}

// recordIncident appends a security incident to the account, best effort.
func (c *Coordinator) recordIncident(ctx context.Context, rec *record.Record, kind, detail string) {
	err := c.store.WithAddressLock(rec.Address, func() error {
		fresh, _, err := c.store.Load(ctx, rec.Address)
		if err != nil {
			return err
		}
		fresh.Incidents = append(fresh.Incidents, record.SecurityIncident{
			ID:        "inc-" + uuid.NewString(),
			Timestamp: time.Now().UTC(),
			Kind:      kind,
			Detail:    detail,
		})
		return c.store.Update(ctx, fresh)
	})
	if err != nil {
		c.log.Warn("incident not persisted", logger.ErrorFields(kind, err))
	}
}

// finishLogin bumps the login counters and issues a token.
func (c *Coordinator) finishLogin(ctx context.Context, rec *record.Record) (string, error) {
	err := c.store.WithAddressLock(rec.Address, func() error {
		return resilience.RetryFunc(ctx, c.retry, func() error {
			fresh, _, err := c.store.Load(ctx, rec.Address)
			if err != nil {
				return err
			}
			fresh.LoginCount++
			fresh.SessionCount++
			fresh.Touch()
			return c.store.Update(ctx, fresh)
		})
	})
	if err != nil {
		return "", err
	}
	return c.issueToken(rec.Address, rec.Username)
}

// openChallenge generates a six-digit second-factor code, hands it to the
// delivery hook, and parks the login until VerifySecondFactor.
func (c *Coordinator) openChallenge(sessionID string, rec *record.Record) (string, error) {
	res, err := c.neg.RandomBytes(4)
	if err != nil {
		return "", err
	}
	n := uint32(res.Value[0])<<24 | uint32(res.Value[1])<<16 | uint32(res.Value[2])<<8 | uint32(res.Value[3])
	code := fmt.Sprintf("%06d", n%1000000)

	c.mu.Lock()
	c.pending[sessionID] = &pendingChallenge{
		address:   rec.Address,
		username:  rec.Username,
		code:      code,
		expiresAt: time.Now().Add(c.cfg.Session.SecondFactorTTL()),
	}
	c.mu.Unlock()

	if c.deliver != nil {
		c.deliver(rec.Username, code)
	}
	c.log.Info("second factor challenge opened", logger.Fields(
		logger.FieldSessionID, sessionID,
		logger.FieldAddress, rec.Address,
	))
	return sessionID, nil
}

// VerifySecondFactor answers an open challenge. Expired or exhausted
// challenges are SESSION_EXPIRED; a wrong code costs one of the challenge's
// bounded attempts.
func (c *Coordinator) VerifySecondFactor(ctx context.Context, sessionID, code string) (res *LoginResult, err error) {
	defer c.guard("second-factor", nil, &err)

	sess, sessOK := c.sessions.Get(sessionID)

	c.mu.Lock()
	ch, ok := c.pending[sessionID]
	if !ok {
		c.mu.Unlock()
		return nil, apperrors.SessionExpired(sessionID)
	}
	if time.Now().After(ch.expiresAt) {
		delete(c.pending, sessionID)
		c.mu.Unlock()
		if sessOK {
			c.fail(sess, apperrors.SessionExpired(sessionID))
		}
		return nil, apperrors.SessionExpired(sessionID)
	}
	match := subtle.ConstantTimeCompare([]byte(ch.code), []byte(code)) == 1
	if !match {
		ch.attempts++
		exhausted := ch.attempts >= c.cfg.Session.SecondFactorMaxAttempts
		if exhausted {
			delete(c.pending, sessionID)
		}
		c.mu.Unlock()
		if exhausted {
			if sessOK {
				c.fail(sess, apperrors.SessionExpired(sessionID))
			}
			return nil, apperrors.SessionExpired(sessionID)
		}
		return nil, apperrors.InvalidCredentials()
	}
	delete(c.pending, sessionID)
	c.mu.Unlock()

	rec, err := c.loadRecord(ctx, ch.address)
	if err != nil {
		if sessOK {
			c.fail(sess, err)
		}
		return nil, err
	}
	token, err := c.finishLogin(ctx, rec)
	if err != nil {
		if sessOK {
			c.fail(sess, err)
		}
		return nil, err
	}
	if sessOK {
		c.complete(sess, nil)
	}
	return &LoginResult{Address: ch.address, Token: token, SessionID: sessionID}, nil
}

// RecoverRequest regains access to an account. The recovery phrase locates
// it; the current password is verified exactly like a login before the
// credential is rotated.
type RecoverRequest struct {
	RecoveryPhrase string `json:"recovery_phrase"`
	Password       string `json:"password"`
	NewPassword    string `json:"new_password"`
}

// RecoverResult reports the recovered account and its rotated phrase.
type RecoverResult struct {
	Address        string   `json:"address"`
	Username       string   `json:"username"`
	RecoveryPhrase string   `json:"recovery_phrase"`
	SessionID      string   `json:"session_id"`
	Warnings       []string `json:"warnings,omitempty"`
}

// Recover locates the account by normalized recovery phrase, verifies the
// current password with the same lockout-gated flow as Login, then installs
// a new credential bundle honoring reuse rules and rotates the phrase so the
// old one cannot be replayed. A record the guardian had to repair on the way
// in is persisted in its repaired form, with a warning attached.
func (c *Coordinator) Recover(ctx context.Context, req RecoverRequest) (res *RecoverResult, err error) {
	sess := c.sessions.Begin("recover")
	defer c.guard("recover", sess, &err)

	if vErr := validation.New().
		Mnemonic("recovery_phrase", req.RecoveryPhrase, credential.DefaultMnemonicWords).
		Required("password", req.Password).
		Required("new_password", req.NewPassword).
		Validate(); vErr != nil {
		c.fail(sess, vErr)
		return nil, vErr
	}

	normalized := credential.NormalizeMnemonic(req.RecoveryPhrase)
	var report *guardian.Report
	rec, lookupErr := resilience.Retry(ctx, c.retry, func() (*record.Record, error) {
		r, rep, err := c.store.FindByMnemonic(ctx, normalized)
		report = rep
		return r, err
	})
	return c.recoverAccount(ctx, sess, rec, report, lookupErr, req)
}

// recoverAccount is the post-lookup half of Recover.
func (c *Coordinator) recoverAccount(ctx context.Context, sess *diagnostics.Session, rec *record.Record, report *guardian.Report, lookupErr error, req RecoverRequest) (*RecoverResult, error) {
	if lookupErr != nil {
		c.fail(sess, lookupErr)
		return nil, lookupErr
	}

	key := record.NormalizedUsername(rec.Username)
	if remaining := c.lockouts.remaining(key); remaining > 0 {
		lockErr := apperrors.Locked(remaining)
		c.fail(sess, lockErr)
		return nil, lockErr
	}
	ok, verifyWarnings, err := c.hasher.Verify(req.Password, rec.Credential)
	if err != nil {
		c.fail(sess, err)
		return nil, err
	}
	if !ok {
		return nil, c.credentialFailure(ctx, sess, key, rec)
	}
	c.lockouts.reset(key)
	sess.Advance(diagnostics.StageSecurityCode)

	bundle, history, changeWarnings, err := c.hasher.Change(req.NewPassword, rec.Credential, rec.CredentialHistory)
	if err != nil {
		c.fail(sess, err)
		return nil, err
	}
	phrase, phraseWarnings, err := c.hasher.GenerateMnemonic(credential.DefaultMnemonicWords)
	if err != nil {
		c.fail(sess, err)
		return nil, err
	}

	err = c.store.WithAddressLock(rec.Address, func() error {
		return resilience.RetryFunc(ctx, c.retry, func() error {
			fresh, _, err := c.store.Load(ctx, rec.Address)
			if err != nil {
				return err
			}
			fresh.Credential = bundle
			fresh.CredentialHistory = history
			fresh.RecoveryPhrase = phrase
			fresh.Incidents = append(fresh.Incidents, record.SecurityIncident{
				ID:        "inc-" + uuid.NewString(),
				Timestamp: time.Now().UTC(),
				Kind:      "recovery",
				Detail:    "password reset via recovery phrase",
				Resolved:  true,
			})
			return c.store.Update(ctx, fresh)
		})
	})
	if err != nil {
		c.fail(sess, err)
		return nil, err
	}

	warnings := mergeWarnings(verifyWarnings, changeWarnings, phraseWarnings)
	if report != nil && len(report.FixedFields) > 0 {
		// The rotation write above persisted the repaired form.
		warnings = append(warnings, fmt.Sprintf("account record repaired during recovery: %s",
			strings.Join(report.FixedFields, ", ")))
	}
	c.reportDegraded(ctx, "recover", bundle.Tier, warnings)
	c.complete(sess, warnings)
	c.log.Info("account recovered", logger.Fields(logger.FieldAddress, rec.Address))
	return &RecoverResult{
		Address:        rec.Address,
		Username:       rec.Username,
		RecoveryPhrase: phrase,
		SessionID:      sess.ID,
		Warnings:       warnings,
	}, nil
}

// reportDegraded surfaces reduced-security operation through the sink.
func (c *Coordinator) reportDegraded(ctx context.Context, op, tier string, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	degraded := apperrors.CryptoDegraded(tier, warnings[0])
	c.sink.Report(ctx, diagnostics.LevelWarning, "crypto", string(degraded.Code),
		degraded.Message, map[string]any{logger.FieldOperation: op, logger.FieldTier: tier}, degraded.UserMessage)
}

// loadRecord loads an account with the retry policy applied.
func (c *Coordinator) loadRecord(ctx context.Context, address string) (*record.Record, error) {
	return resilience.Retry(ctx, c.retry, func() (*record.Record, error) {
		r, _, err := c.store.Load(ctx, address)
		return r, err
	})
}

func mergeWarnings(lists ...[]string) []string {
	var out []string
	seen := map[string]bool{}
	for _, list := range lists {
		for _, w := range list {
			if !seen[w] {
				seen[w] = true
				out = append(out, w)
			}
		}
	}
	return out
}
