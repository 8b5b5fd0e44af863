package store

import (
	"context"
	"encoding/json"
	"os"
	"time"

	apperrors "github.com/kbukum/accountguard/errors"
	"github.com/kbukum/accountguard/record"
)

// UsersIndex maps normalized usernames to account addresses.
type UsersIndex struct {
	Users     map[string]string `json:"users"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// FoundersIndex lists privileged account addresses.
type FoundersIndex struct {
	Founders  []string  `json:"founders"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Metadata records the store schema version and maintenance timestamps.
type Metadata struct {
	SchemaVersion   int       `json:"schema_version"`
	CreatedAt       time.Time `json:"created_at"`
	LastMaintenance time.Time `json:"last_maintenance"`
}

func (s *Store) readUsersIndex() (*UsersIndex, error) {
	idx := &UsersIndex{Users: map[string]string{}}
	data, err := os.ReadFile(s.abs(FileUsersIndex))
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, apperrors.StorageUnavailable("read-index", err)
	}
	// A damaged index is rebuilt rather than fatal.
	if err := json.Unmarshal(data, idx); err != nil || idx.Users == nil {
		s.log.Warn("users index unreadable, starting empty")
		idx.Users = map[string]string{}
	}
	return idx, nil
}

func (s *Store) writeUsersIndex(idx *UsersIndex) error {
	idx.UpdatedAt = time.Now().UTC()
	return s.writeJSON(FileUsersIndex, idx)
}

func (s *Store) readFoundersIndex() (*FoundersIndex, error) {
	idx := &FoundersIndex{Founders: []string{}}
	data, err := os.ReadFile(s.abs(FileFoundersIndex))
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, apperrors.StorageUnavailable("read-index", err)
	}
	if err := json.Unmarshal(data, idx); err != nil || idx.Founders == nil {
		s.log.Warn("founders index unreadable, starting empty")
		idx.Founders = []string{}
	}
	return idx, nil
}

func (s *Store) writeFoundersIndex(idx *FoundersIndex) error {
	idx.UpdatedAt = time.Now().UTC()
	return s.writeJSON(FileFoundersIndex, idx)
}

// LookupUsername resolves a case-insensitive username to an address.
func (s *Store) LookupUsername(ctx context.Context, username string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.StorageUnavailable("lookup", err)
	}
	s.registryMu.Lock()
	defer s.registryMu.Unlock()

	idx, err := s.readUsersIndex()
	if err != nil {
		return "", err
	}
	address, ok := idx.Users[record.NormalizedUsername(username)]
	if !ok {
		return "", apperrors.NotFound(username)
	}
	return address, nil
}

// Create persists a brand-new account. Exactly one of two concurrent creates
// for the same username (case-insensitive) or address succeeds; the other
// receives ALREADY_EXISTS. The index entry and the record file are written
// under the registry lock.
func (s *Store) Create(ctx context.Context, rec *record.Record) error {
	if err := ctx.Err(); err != nil {
		return apperrors.StorageUnavailable("create", err)
	}
	s.registryMu.Lock()
	defer s.registryMu.Unlock()

	idx, err := s.readUsersIndex()
	if err != nil {
		return err
	}
	normalized := record.NormalizedUsername(rec.Username)
	if _, taken := idx.Users[normalized]; taken {
		return apperrors.AlreadyExists(rec.Username)
	}
	if exists, err := s.Exists(ctx, rec.Address); err != nil {
		return err
	} else if exists {
		return apperrors.AlreadyExists(rec.Address)
	}

	if err := s.Save(ctx, rec); err != nil {
		return err
	}
	idx.Users[normalized] = rec.Address
	if err := s.writeUsersIndex(idx); err != nil {
		// Roll the record back so the store never holds an unindexed account.
		_ = s.Delete(ctx, rec.Address)
		return err
	}
	if rec.Founder {
		if err := s.addFounder(rec.Address); err != nil {
			delete(idx.Users, normalized)
			_ = s.writeUsersIndex(idx)
			_ = s.Delete(ctx, rec.Address)
			return err
		}
	}
	return nil
}

// addFounder appends an address to the founders index. Caller holds
// registryMu.
func (s *Store) addFounder(address string) error {
	fidx, err := s.readFoundersIndex()
	if err != nil {
		return err
	}
	for _, existing := range fidx.Founders {
		if existing == address {
			return nil
		}
	}
	fidx.Founders = append(fidx.Founders, address)
	return s.writeFoundersIndex(fidx)
}

// ListFounders returns the addresses in the privileged-account index.
func (s *Store) ListFounders(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.StorageUnavailable("list-founders", err)
	}
	s.registryMu.Lock()
	defer s.registryMu.Unlock()

	fidx, err := s.readFoundersIndex()
	if err != nil {
		return nil, err
	}
	return fidx.Founders, nil
}

// Update persists changes to an existing account.
func (s *Store) Update(ctx context.Context, rec *record.Record) error {
	exists, err := s.Exists(ctx, rec.Address)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.NotFound(rec.Address)
	}
	rec.MarkUpdated()
	return s.Save(ctx, rec)
}

// EnsureRegistry creates any missing registry files with minimal defaults
// and returns the names of the files it created.
func (s *Store) EnsureRegistry(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.StorageUnavailable("ensure-registry", err)
	}
	s.registryMu.Lock()
	defer s.registryMu.Unlock()

	var created []string
	now := time.Now().UTC()

	defaults := map[string]any{
		FileUsersIndex:    &UsersIndex{Users: map[string]string{}, UpdatedAt: now},
		FileFoundersIndex: &FoundersIndex{Founders: []string{}, UpdatedAt: now},
		FileMetadata:      &Metadata{SchemaVersion: SchemaVersion, CreatedAt: now, LastMaintenance: now},
	}
	for _, name := range RegistryFiles() {
		if _, err := os.Stat(s.abs(name)); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return created, apperrors.StorageUnavailable("ensure-registry", err)
		}
		if err := s.writeJSON(name, defaults[name]); err != nil {
			return created, err
		}
		created = append(created, name)
	}
	return created, nil
}

// RebuildIndexes regenerates the username and founder indexes from the
// record files. Used by recovery after a repair pass.
func (s *Store) RebuildIndexes(ctx context.Context) error {
	addresses, err := s.ListAddresses(ctx)
	if err != nil {
		return err
	}
	s.registryMu.Lock()
	defer s.registryMu.Unlock()

	idx := &UsersIndex{Users: map[string]string{}}
	fidx := &FoundersIndex{Founders: []string{}}
	for _, address := range addresses {
		rec, _, err := s.Load(ctx, address)
		if err != nil {
			continue
		}
		idx.Users[record.NormalizedUsername(rec.Username)] = address
		if rec.Founder {
			fidx.Founders = append(fidx.Founders, address)
		}
	}
	if err := s.writeUsersIndex(idx); err != nil {
		return err
	}
	return s.writeFoundersIndex(fidx)
}

// TouchMaintenance updates the metadata maintenance timestamp.
func (s *Store) TouchMaintenance(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperrors.StorageUnavailable("metadata", err)
	}
	s.registryMu.Lock()
	defer s.registryMu.Unlock()

	meta := &Metadata{SchemaVersion: SchemaVersion, CreatedAt: time.Now().UTC()}
	if data, err := os.ReadFile(s.abs(FileMetadata)); err == nil {
		_ = json.Unmarshal(data, meta)
	}
	meta.LastMaintenance = time.Now().UTC()
	return s.writeJSON(FileMetadata, meta)
}
