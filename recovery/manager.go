package recovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kbukum/accountguard/component"
	apperrors "github.com/kbukum/accountguard/errors"
	"github.com/kbukum/accountguard/logger"
	"github.com/kbukum/accountguard/store"
)

// State is the recovery manager's lifecycle state.
type State string

const (
	StateNotStarted        State = "not_started"
	StateBootstrapping     State = "bootstrapping"
	StateEmergencyRecovery State = "emergency_recovery"
	StateReady             State = "ready"
	StateFailed            State = "failed"
)

// Result describes one initialization run.
type Result struct {
	Success              bool          `json:"success"`
	State                State         `json:"state"`
	CreatedDirectories   []string      `json:"created_directories,omitempty"`
	CreatedRegistryFiles []string      `json:"created_registry_files,omitempty"`
	RepairedRecords      []string      `json:"repaired_records,omitempty"`
	QuarantinedRecords   []string      `json:"quarantined_records,omitempty"`
	Recovered            []string      `json:"recovered,omitempty"`
	Errors               []string      `json:"errors,omitempty"`
	Warnings             []string      `json:"warnings,omitempty"`
	Duration             time.Duration `json:"duration"`
}

// merge folds another result's accumulators into this one.
func (r *Result) merge(other *Result) {
	r.CreatedDirectories = append(r.CreatedDirectories, other.CreatedDirectories...)
	r.CreatedRegistryFiles = append(r.CreatedRegistryFiles, other.CreatedRegistryFiles...)
	r.RepairedRecords = append(r.RepairedRecords, other.RepairedRecords...)
	r.QuarantinedRecords = append(r.QuarantinedRecords, other.QuarantinedRecords...)
	r.Recovered = append(r.Recovered, other.Recovered...)
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// IntegrityReport is the outcome of a read-only layout check.
type IntegrityReport struct {
	Healthy              bool      `json:"healthy"`
	MissingDirectories   []string  `json:"missing_directories,omitempty"`
	MissingRegistryFiles []string  `json:"missing_registry_files,omitempty"`
	RecordCount          int       `json:"record_count"`
	CorruptRecords       []string  `json:"corrupt_records,omitempty"`
	CheckedAt            time.Time `json:"checked_at"`
}

// Manager bootstraps the account store and escalates to emergency recovery
// when a normal bootstrap cannot complete.
type Manager struct {
	cfg   Config
	store *store.Store
	log   *logger.Logger

	group singleflight.Group

	mu         sync.Mutex
	state      State
	lastResult *Result
}

// NewManager creates a recovery manager over the given store.
func NewManager(cfg Config, st *store.Store, log *logger.Logger) *Manager {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		cfg:   cfg,
		store: st,
		log:   log.WithComponent("recovery"),
		state: StateNotStarted,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastResult returns the most recent initialization result, if any.
func (m *Manager) LastResult() *Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastResult
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.log.Info("state changed", logger.Fields(logger.FieldState, string(s)))
}

// Initialize brings the store to a usable state. Concurrent calls collapse
// into one run and share its result; once Ready, later calls return the
// cached result without re-running.
func (m *Manager) Initialize(ctx context.Context) (*Result, error) {
	m.mu.Lock()
	if m.state == StateReady && m.lastResult != nil {
		res := m.lastResult
		m.mu.Unlock()
		return res, nil
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do("initialize", func() (interface{}, error) {
		return m.initialize(ctx)
	})
	res, _ := v.(*Result)
	return res, err
}

// initialize is the single-flighted body of Initialize.
func (m *Manager) initialize(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{}

	m.setState(StateBootstrapping)
	bootErr := m.bootstrapWithTimeout(ctx, res)
	if bootErr == nil {
		m.finish(res, StateReady, start)
		return res, nil
	}

	res.Warnings = append(res.Warnings, fmt.Sprintf("bootstrap failed, entering emergency recovery: %v", bootErr))
	m.log.Warn("bootstrap failed", logger.ErrorFields("bootstrap", bootErr))
	m.setState(StateEmergencyRecovery)

	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxRecoveryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = apperrors.StorageUnavailable("emergency-recovery", err)
			break
		}
		m.log.Info("emergency recovery pass", logger.Fields(logger.FieldAttempt, attempt))
		if lastErr = m.emergencyRecover(ctx, res); lastErr == nil {
			m.finish(res, StateReady, start)
			return res, nil
		}
		res.Errors = append(res.Errors, fmt.Sprintf("recovery attempt %d: %v", attempt, lastErr))
	}

	m.finish(res, StateFailed, start)
	if lastErr == nil {
		lastErr = apperrors.StorageUnavailable("emergency-recovery", fmt.Errorf("recovery: %d attempts exhausted", m.cfg.MaxRecoveryAttempts))
	}
	return res, lastErr
}

func (m *Manager) finish(res *Result, state State, start time.Time) {
	res.State = state
	res.Success = state == StateReady
	res.Duration = time.Since(start)
	m.mu.Lock()
	m.state = state
	m.lastResult = res
	m.mu.Unlock()
	m.log.Info("initialization finished", logger.Fields(
		logger.FieldState, string(state),
		logger.FieldDuration, res.Duration.Milliseconds(),
		"repaired", len(res.RepairedRecords),
		"quarantined", len(res.QuarantinedRecords),
	))
}

// bootstrapWithTimeout runs one bootstrap pass under the configured deadline.
// The pass accumulates into its own scratch result, merged into res only when
// the pass returns; after a timeout the canceled goroutine keeps writing to
// the scratch alone, so emergency recovery owns res exclusively.
func (m *Manager) bootstrapWithTimeout(ctx context.Context, res *Result) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout())
	defer cancel()

	scratch := &Result{}
	done := make(chan error, 1)
	go func() { done <- m.bootstrap(ctx, scratch) }()

	select {
	case err := <-done:
		res.merge(scratch)
		return err
	case <-ctx.Done():
		return apperrors.StorageUnavailable("bootstrap", ctx.Err())
	}
}

// bootstrap performs the normal startup pass: verify or create the layout,
// ensure registry files, and optionally validate every stored record.
func (m *Manager) bootstrap(ctx context.Context, res *Result) error {
	base := m.store.BasePath()
	if _, err := os.Stat(base); err != nil {
		if !os.IsNotExist(err) {
			return apperrors.StorageUnavailable("bootstrap", err)
		}
		if !m.cfg.CreateMissingDirectories {
			return apperrors.StorageUnavailable("bootstrap", fmt.Errorf("recovery: base path %s missing", base))
		}
	}

	created, err := m.ensureDirs(m.cfg.CreateMissingDirectories)
	if err != nil {
		return err
	}
	res.CreatedDirectories = append(res.CreatedDirectories, created...)

	files, err := m.store.EnsureRegistry(ctx)
	if err != nil {
		return err
	}
	res.CreatedRegistryFiles = append(res.CreatedRegistryFiles, files...)

	if m.cfg.CreateBackups {
		dir := filepath.Join(base, store.DirBackups,
			"registry-"+time.Now().UTC().Format("20060102T150405"))
		if desc, err := m.snapshotRegistry(dir); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("registry backup skipped: %v", err))
		} else if desc != "" {
			res.Recovered = append(res.Recovered, desc)
		}
	}

	if m.cfg.ValidateAllUsers {
		if err := m.validateRecords(ctx, res); err != nil {
			return err
		}
	}
	return m.store.TouchMaintenance(ctx)
}

// ensureDirs checks every mandatory directory, creating missing ones when
// create is set. It returns the relative paths it created.
func (m *Manager) ensureDirs(create bool) ([]string, error) {
	var created []string
	for _, rel := range store.MandatoryDirs() {
		path := filepath.Join(m.store.BasePath(), rel)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return created, apperrors.StorageUnavailable("ensure-dirs", err)
		}
		if !create {
			return created, apperrors.StorageUnavailable("ensure-dirs", fmt.Errorf("recovery: required directory %s missing", rel))
		}
		if err := os.MkdirAll(path, 0o750); err != nil {
			return created, apperrors.StorageUnavailable("ensure-dirs", err)
		}
		created = append(created, rel)
	}
	return created, nil
}

// validateRecords loads every account, persists repairs, and quarantines
// what cannot be repaired. A single bad record never aborts the scan.
func (m *Manager) validateRecords(ctx context.Context, res *Result) error {
	addresses, err := m.store.ListAddresses(ctx)
	if err != nil {
		return err
	}
	quarantined := 0
	for _, address := range addresses {
		if err := ctx.Err(); err != nil {
			return apperrors.StorageUnavailable("validate", err)
		}
		rec, report, err := m.store.Load(ctx, address)
		if err != nil {
			if apperrors.IsCode(err, apperrors.ErrCodeSchemaCorruption) && m.cfg.RepairCorruptedData {
				if qErr := m.store.Quarantine(ctx, address); qErr == nil {
					res.QuarantinedRecords = append(res.QuarantinedRecords, address)
					quarantined++
					continue
				}
			}
			res.Warnings = append(res.Warnings, fmt.Sprintf("record %s unreadable: %v", address, err))
			continue
		}
		if len(report.FixedFields) > 0 {
			if err := m.store.Save(ctx, rec); err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("record %s: persist repair: %v", address, err))
				continue
			}
			res.RepairedRecords = append(res.RepairedRecords, address)
		}
	}
	if quarantined > 0 {
		if err := m.store.RebuildIndexes(ctx); err != nil {
			return err
		}
		res.Recovered = append(res.Recovered, fmt.Sprintf("rebuilt account indexes after quarantining %d records", quarantined))
	}
	return nil
}

// CheckIntegrity inspects the layout without mutating anything.
func (m *Manager) CheckIntegrity(ctx context.Context) (*IntegrityReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.StorageUnavailable("integrity", err)
	}
	report := &IntegrityReport{CheckedAt: time.Now().UTC()}

	for _, rel := range store.MandatoryDirs() {
		if _, err := os.Stat(filepath.Join(m.store.BasePath(), rel)); err != nil {
			report.MissingDirectories = append(report.MissingDirectories, rel)
		}
	}
	for _, name := range store.RegistryFiles() {
		if _, err := os.Stat(filepath.Join(m.store.BasePath(), name)); err != nil {
			report.MissingRegistryFiles = append(report.MissingRegistryFiles, name)
		}
	}

	addresses, err := m.store.ListAddresses(ctx)
	if err != nil {
		return nil, err
	}
	report.RecordCount = len(addresses)
	for _, address := range addresses {
		if _, _, err := m.store.Load(ctx, address); err != nil {
			report.CorruptRecords = append(report.CorruptRecords, address)
		}
	}

	report.Healthy = len(report.MissingDirectories) == 0 &&
		len(report.MissingRegistryFiles) == 0 &&
		len(report.CorruptRecords) == 0
	return report, nil
}

// --- component.Component ---

// Name implements component.Component.
func (m *Manager) Name() string { return "recovery" }

// Start initializes the store as part of host startup.
func (m *Manager) Start(ctx context.Context) error {
	_, err := m.Initialize(ctx)
	return err
}

// Stop implements component.Component. The manager holds no resources.
func (m *Manager) Stop(context.Context) error { return nil }

// Health reports the manager state.
func (m *Manager) Health(context.Context) component.Health {
	state := m.State()
	status := component.StatusHealthy
	switch state {
	case StateFailed:
		status = component.StatusUnhealthy
	case StateReady:
	default:
		status = component.StatusDegraded
	}
	return component.Health{Name: m.Name(), Status: status, Message: string(state)}
}
