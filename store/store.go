package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kbukum/accountguard/credential"
	apperrors "github.com/kbukum/accountguard/errors"
	"github.com/kbukum/accountguard/guardian"
	"github.com/kbukum/accountguard/logger"
	"github.com/kbukum/accountguard/record"
)

// Store is the filesystem-backed account store.
type Store struct {
	basePath string
	guard    *guardian.Guardian
	log      *logger.Logger

	registryMu sync.Mutex // serializes index/registry mutation

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex // per-address operation locks
}

// New creates a Store rooted at the configured base path. It does not create
// the directory layout; that is the recovery manager's job.
func New(cfg Config, guard *guardian.Guardian, log *logger.Logger) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	abs, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("store: resolve base path: %w", err)
	}
	return &Store{
		basePath: abs,
		guard:    guard,
		log:      log.WithComponent("store"),
		locks:    map[string]*sync.Mutex{},
	}, nil
}

// BasePath returns the absolute store root.
func (s *Store) BasePath() string { return s.basePath }

// Guard returns the guardian the store repairs records with.
func (s *Store) Guard() *guardian.Guardian { return s.guard }

// WithAddressLock serializes a read-modify-write on one address. Different
// addresses are fully independent.
func (s *Store) WithAddressLock(address string, fn func() error) error {
	s.locksMu.Lock()
	mu, ok := s.locks[address]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[address] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	return fn()
}

// abs joins a relative layout path onto the base.
func (s *Store) abs(rel string) string {
	return filepath.Join(s.basePath, filepath.Clean(rel))
}

// Load reads, repairs, and decodes one account. The guardian report tells
// the caller whether the repaired form should be persisted. A file whose
// JSON cannot be parsed at all is a schema corruption, not a storage fault.
func (s *Store) Load(ctx context.Context, address string) (*record.Record, *guardian.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, apperrors.StorageUnavailable("load", err)
	}
	data, err := os.ReadFile(s.abs(userFile(address)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, apperrors.NotFound(address)
		}
		return nil, nil, apperrors.StorageUnavailable("load", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, apperrors.SchemaCorruption(address, err)
	}

	report := s.guard.Repair(doc)
	if len(report.Errors) > 0 {
		return nil, &report, apperrors.SchemaCorruption(address, fmt.Errorf("store: %s", strings.Join(report.Errors, "; ")))
	}
	rec, err := guardian.Decode(doc)
	if err != nil {
		return nil, &report, apperrors.SchemaCorruption(address, err)
	}
	return rec, &report, nil
}

// Save writes one account atomically. The document is repaired on the way
// out as well, so a half-built record can never reach disk.
func (s *Store) Save(ctx context.Context, rec *record.Record) error {
	if err := ctx.Err(); err != nil {
		return apperrors.StorageUnavailable("save", err)
	}
	doc, err := guardian.Encode(rec)
	if err != nil {
		return apperrors.SchemaCorruption(rec.Address, err)
	}
	if report := s.guard.Repair(doc); len(report.Errors) > 0 {
		return apperrors.SchemaCorruption(rec.Address, fmt.Errorf("store: %s", strings.Join(report.Errors, "; ")))
	}
	return s.writeJSON(userFile(rec.Address), doc)
}

// writeJSON writes a document atomically via temp file + rename.
func (s *Store) writeJSON(rel string, v any) error {
	path := s.abs(rel)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperrors.StorageUnavailable("encode", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return apperrors.StorageUnavailable("write", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.StorageUnavailable("write", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.StorageUnavailable("write", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return apperrors.StorageUnavailable("write", err)
	}
	return nil
}

// Exists checks whether an account document exists.
func (s *Store) Exists(ctx context.Context, address string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, apperrors.StorageUnavailable("stat", err)
	}
	_, err := os.Stat(s.abs(userFile(address)))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, apperrors.StorageUnavailable("stat", err)
	}
	return true, nil
}

// Delete removes an account document. Missing files are not an error.
func (s *Store) Delete(ctx context.Context, address string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.StorageUnavailable("delete", err)
	}
	if err := os.Remove(s.abs(userFile(address))); err != nil && !os.IsNotExist(err) {
		return apperrors.StorageUnavailable("delete", err)
	}
	return nil
}

// ListAddresses returns the address of every stored account document.
func (s *Store) ListAddresses(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.StorageUnavailable("list", err)
	}
	entries, err := os.ReadDir(s.abs(DirUsers))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.StorageUnavailable("list", err)
	}
	var addresses []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		addresses = append(addresses, strings.TrimSuffix(name, ".json"))
	}
	return addresses, nil
}

// Quarantine moves a damaged account file into recovery/corrupted with a
// timestamp suffix so repeated quarantines never overwrite each other.
func (s *Store) Quarantine(ctx context.Context, address string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.StorageUnavailable("quarantine", err)
	}
	src := s.abs(userFile(address))
	dstName := fmt.Sprintf("%s-%s.json", address, time.Now().UTC().Format("20060102T150405"))
	dst := s.abs(filepath.Join(DirRecoveryCorrupted, dstName))
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return apperrors.StorageUnavailable("quarantine", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return apperrors.StorageUnavailable("quarantine", err)
	}
	s.log.Warn("record quarantined", logger.Fields(
		logger.FieldAddress, address,
		logger.FieldPath, dst,
	))
	return nil
}

// FindByMnemonic scans accounts for a matching normalized recovery phrase.
// Unreadable records are skipped; recovery must not be blocked by one bad
// neighbor.
func (s *Store) FindByMnemonic(ctx context.Context, normalizedPhrase string) (*record.Record, *guardian.Report, error) {
	addresses, err := s.ListAddresses(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, address := range addresses {
		rec, report, err := s.Load(ctx, address)
		if err != nil {
			continue
		}
		if credential.NormalizeMnemonic(rec.RecoveryPhrase) == normalizedPhrase && normalizedPhrase != "" {
			return rec, report, nil
		}
	}
	return nil, nil, apperrors.NotFound("recovery phrase")
}
