package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/kbukum/accountguard/errors"
	"github.com/kbukum/accountguard/logger"
	"github.com/kbukum/accountguard/store"
)

// emergencyRecover runs the escalated repair sequence. The step order is
// fixed: snapshot, force-create directories, per-record repair, registry
// restoration, final existence check. Each completed step is described in
// res.Recovered.
func (m *Manager) emergencyRecover(ctx context.Context, res *Result) error {
	if m.cfg.CreateBackups {
		dir := filepath.Join(m.store.BasePath(), store.DirRecoveryEmergency,
			"snapshot-"+time.Now().UTC().Format("20060102T150405"))
		if desc, err := m.snapshotRegistry(dir); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("snapshot skipped: %v", err))
		} else if desc != "" {
			res.Recovered = append(res.Recovered, desc)
		}
	}

	created, err := m.ensureDirs(true)
	if err != nil {
		return err
	}
	if len(created) > 0 {
		res.CreatedDirectories = append(res.CreatedDirectories, created...)
		res.Recovered = append(res.Recovered, fmt.Sprintf("created %d missing directories", len(created)))
	}

	if m.cfg.RepairCorruptedData {
		before := len(res.RepairedRecords) + len(res.QuarantinedRecords)
		if err := m.validateRecords(ctx, res); err != nil {
			return err
		}
		if delta := len(res.RepairedRecords) + len(res.QuarantinedRecords) - before; delta > 0 {
			res.Recovered = append(res.Recovered, fmt.Sprintf("repaired or quarantined %d records", delta))
		}
	}

	if err := m.restoreRegistry(ctx, res); err != nil {
		return err
	}

	return m.verifyLayout()
}

// snapshotRegistry copies the registry files into the given directory.
// Emergency recovery snapshots into recovery/emergency before any repair
// touches them; bootstrap backs up into backups/.
func (m *Manager) snapshotRegistry(dir string) (string, error) {
	copied := 0
	for _, name := range store.RegistryFiles() {
		data, err := os.ReadFile(filepath.Join(m.store.BasePath(), name))
		if err != nil {
			continue
		}
		if copied == 0 {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return "", err
			}
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o640); err != nil {
			return "", err
		}
		copied++
	}
	if copied == 0 {
		return "", nil
	}
	m.log.Info("registry snapshot taken", logger.Fields(logger.FieldPath, dir, logger.FieldCount, copied))
	return fmt.Sprintf("snapshotted %d registry files to %s", copied, filepath.Base(dir)), nil
}

// restoreRegistry recreates missing registry files and, under ForceDefaults,
// replaces unreadable ones. The account indexes are rebuilt from the record
// files whenever one of them had to be recreated.
func (m *Manager) restoreRegistry(ctx context.Context, res *Result) error {
	if m.cfg.ForceDefaults {
		for _, name := range store.RegistryFiles() {
			path := filepath.Join(m.store.BasePath(), name)
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			if !json.Valid(data) {
				if err := os.Remove(path); err != nil {
					return apperrors.StorageUnavailable("restore-registry", err)
				}
				res.Recovered = append(res.Recovered, fmt.Sprintf("discarded unreadable registry file %s", name))
			}
		}
	}

	created, err := m.store.EnsureRegistry(ctx)
	if err != nil {
		return err
	}
	if len(created) == 0 {
		return nil
	}
	res.CreatedRegistryFiles = append(res.CreatedRegistryFiles, created...)
	res.Recovered = append(res.Recovered, fmt.Sprintf("restored %d registry files", len(created)))

	for _, name := range created {
		if name == store.FileUsersIndex || name == store.FileFoundersIndex {
			if err := m.store.RebuildIndexes(ctx); err != nil {
				return err
			}
			res.Recovered = append(res.Recovered, "rebuilt account indexes from record files")
			break
		}
	}
	return nil
}

// verifyLayout is the final existence check: every mandatory directory and
// registry file must be present for recovery to report success.
func (m *Manager) verifyLayout() error {
	for _, rel := range store.MandatoryDirs() {
		if _, err := os.Stat(filepath.Join(m.store.BasePath(), rel)); err != nil {
			return apperrors.StorageUnavailable("verify", fmt.Errorf("recovery: directory %s still missing", rel))
		}
	}
	for _, name := range store.RegistryFiles() {
		if _, err := os.Stat(filepath.Join(m.store.BasePath(), name)); err != nil {
			return apperrors.StorageUnavailable("verify", fmt.Errorf("recovery: registry file %s still missing", name))
		}
	}
	return nil
}
