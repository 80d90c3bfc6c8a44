// Package auth keeps the service-account key docdr authenticates with and
// builds Google API clients that impersonate organisation users through
// domain-wide delegation.
package auth

import (
	"fmt"
	"os"
	"regexp"

	"github.com/zalando/go-keyring"

	"github.com/dl-alexandre/docdr/internal/logging"
	"github.com/dl-alexandre/docdr/internal/utils"
)

const serviceName = "docdr"

var profileName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// Manager stores and resolves service-account keys
type Manager struct {
	configDir      string
	useKeyring     bool
	storage        StorageBackend
	storageWarning string
	logger         logging.Logger
}

// ManagerOptions configures the auth manager
type ManagerOptions struct {
	ForceEncryptedFile bool // Force use of encrypted file storage
	ForcePlainFile     bool // Force use of plain file storage (insecure, dev only)
	Logger             logging.Logger
}

// NewManager creates a manager preferring the system keyring
func NewManager(configDir string) *Manager {
	return NewManagerWithOptions(configDir, ManagerOptions{})
}

// NewManagerWithOptions creates a new auth manager with specific options
func NewManagerWithOptions(configDir string, opts ManagerOptions) *Manager {
	mgr := &Manager{
		configDir: configDir,
		logger:    logging.OrNoOp(opts.Logger),
	}

	switch {
	case opts.ForcePlainFile:
		mgr.storage = NewPlainFileStorage(configDir)
		mgr.storageWarning = "WARNING: Using unencrypted file storage. Keys are stored in plain text."
	case opts.ForceEncryptedFile || !checkKeyringAvailable():
		storage, err := NewEncryptedFileStorage(configDir)
		if err != nil {
			mgr.storage = NewPlainFileStorage(configDir)
			mgr.storageWarning = fmt.Sprintf("WARNING: Encryption setup failed (%v). Using plain file storage.", err)
			break
		}
		mgr.storage = storage
		if !opts.ForceEncryptedFile {
			mgr.storageWarning = "INFO: System keyring not available. Using encrypted file storage."
		}
	default:
		mgr.storage = NewKeyringStorage(serviceName)
		mgr.useKeyring = true
	}
	return mgr
}

// checkKeyringAvailable tests if system keyring is available
func checkKeyringAvailable() bool {
	testKey := serviceName + "-probe"
	if err := keyring.Set(serviceName, testKey, "probe"); err != nil {
		return false
	}
	_ = keyring.Delete(serviceName, testKey)
	return true
}

// SaveKey validates a service-account key and stores it under profile
func (m *Manager) SaveKey(profile string, keyJSON []byte) (*ServiceAccountKey, error) {
	if !profileName.MatchString(profile) {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("invalid profile name %q", profile)).Build())
	}
	key, err := ParseServiceAccountKey(keyJSON)
	if err != nil {
		return nil, err
	}
	if err := m.storage.Save(profile, keyJSON); err != nil {
		return nil, fmt.Errorf("store key: %w", err)
	}
	if err := m.trackProfile(profile, true); err != nil {
		m.logger.Warn("Cannot update profile list", logging.F("error", err.Error()))
	}
	return key, nil
}

// DeleteKey removes the key stored under profile
func (m *Manager) DeleteKey(profile string) error {
	if err := m.storage.Delete(profile); err != nil {
		return err
	}
	if err := m.trackProfile(profile, false); err != nil {
		m.logger.Warn("Cannot update profile list", logging.F("error", err.Error()))
	}
	return nil
}

// ResolveKey returns the key to authenticate with: the key file when one is
// given, else the key stored under profile
func (m *Manager) ResolveKey(keyFile, profile string) ([]byte, error) {
	var data []byte
	var err error
	if keyFile != "" {
		data, err = os.ReadFile(keyFile)
		if err != nil {
			return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
				fmt.Sprintf("cannot read service account key file: %v", err)).
				WithContext("file", keyFile).
				Build())
		}
	} else {
		data, err = m.storage.Load(profile)
		if err != nil {
			return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
				fmt.Sprintf("No service account key for profile %q. Run 'docdr auth set-key <key-file>' first.", profile)).
				Build(), err)
		}
	}
	if _, err := ParseServiceAccountKey(data); err != nil {
		return nil, err
	}
	return data, nil
}

// UseKeyring returns whether the manager is using the system keyring
func (m *Manager) UseKeyring() bool {
	return m.useKeyring
}

// ConfigDir returns the configuration directory
func (m *Manager) ConfigDir() string {
	return m.configDir
}

// GetStorageBackend returns the name of the storage backend being used
func (m *Manager) GetStorageBackend() string {
	return m.storage.Name()
}

// GetStorageWarning returns any warning message about the storage backend
func (m *Manager) GetStorageWarning() string {
	return m.storageWarning
}
