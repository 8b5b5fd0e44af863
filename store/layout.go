package store

import "path/filepath"

// Domain sub-directories under the base path.
const (
	DirUsers        = "users"
	DirProfiles     = "profiles"
	DirCredentials  = "credentials"
	DirBalances     = "balances"
	DirTransactions = "transactions"
	DirBackups      = "backups"
	DirRecovery     = "recovery"
)

// Recovery sub-directories.
const (
	DirRecoveryCorrupted = "recovery/corrupted"
	DirRecoveryRestored  = "recovery/restored"
	DirRecoveryLogs      = "recovery/logs"
	DirRecoveryEmergency = "recovery/emergency"
)

// Registry files at the base path root.
const (
	FileUsersIndex    = "users_index.json"
	FileFoundersIndex = "founders_index.json"
	FileMetadata      = "metadata.json"
)

// SchemaVersion is written into the metadata file.
const SchemaVersion = 2

// TopLevelDirs returns the seven mandatory domain directories.
func TopLevelDirs() []string {
	return []string{
		DirUsers, DirProfiles, DirCredentials, DirBalances,
		DirTransactions, DirBackups, DirRecovery,
	}
}

// MandatoryDirs returns every directory that must exist for the store to be
// considered ready, top-level domains first.
func MandatoryDirs() []string {
	return append(TopLevelDirs(),
		DirRecoveryCorrupted, DirRecoveryRestored, DirRecoveryLogs, DirRecoveryEmergency,
	)
}

// RegistryFiles returns the mandatory registry file names.
func RegistryFiles() []string {
	return []string{FileUsersIndex, FileFoundersIndex, FileMetadata}
}

// userFile returns the relative path of one account document.
func userFile(address string) string {
	return filepath.Join(DirUsers, address+".json")
}
