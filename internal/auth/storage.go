package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/dl-alexandre/docdr/internal/utils"
)

// StorageBackend keeps service-account keys by profile
type StorageBackend interface {
	Save(profile string, data []byte) error
	// Load returns utils.ErrNotFound when nothing is stored for profile.
	Load(profile string) ([]byte, error)
	Delete(profile string) error
	Name() string
}

// KeyringStorage uses the system keyring
type KeyringStorage struct {
	serviceName string
}

func NewKeyringStorage(serviceName string) *KeyringStorage {
	return &KeyringStorage{serviceName: serviceName}
}

func (s *KeyringStorage) Save(profile string, data []byte) error {
	// keys hold newlines and quotes some keyring backends mangle
	return keyring.Set(s.serviceName, profile, base64.StdEncoding.EncodeToString(data))
}

func (s *KeyringStorage) Load(profile string) ([]byte, error) {
	encoded, err := keyring.Get(s.serviceName, profile)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("no key stored for profile '%s': %w", profile, utils.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("keyring: %w", err)
	}
	return base64.StdEncoding.DecodeString(encoded)
}

func (s *KeyringStorage) Delete(profile string) error {
	err := keyring.Delete(s.serviceName, profile)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

func (s *KeyringStorage) Name() string {
	return "system-keyring"
}

// EncryptedFileStorage stores keys in AES-GCM encrypted files
type EncryptedFileStorage struct {
	baseDir string
	key     []byte
}

// NewEncryptedFileStorage creates an encrypted file storage backend
func NewEncryptedFileStorage(baseDir string) (*EncryptedFileStorage, error) {
	key, err := getOrCreateEncryptionKey(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get encryption key: %w", err)
	}
	return &EncryptedFileStorage{baseDir: baseDir, key: key}, nil
}

func (s *EncryptedFileStorage) Save(profile string, data []byte) error {
	encrypted, err := s.encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt key: %w", err)
	}
	return writeKeyFile(keyFilePath(s.baseDir, profile, ".enc"), encrypted)
}

func (s *EncryptedFileStorage) Load(profile string) ([]byte, error) {
	encrypted, err := readKeyFile(keyFilePath(s.baseDir, profile, ".enc"), profile)
	if err != nil {
		return nil, err
	}
	return s.decrypt(encrypted)
}

func (s *EncryptedFileStorage) Delete(profile string) error {
	return removeKeyFile(keyFilePath(s.baseDir, profile, ".enc"))
}

func (s *EncryptedFileStorage) Name() string {
	return "encrypted-file"
}

func (s *EncryptedFileStorage) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (s *EncryptedFileStorage) encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *EncryptedFileStorage) decrypt(ciphertext []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("invalid ciphertext")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt key: %w", err)
	}
	return plaintext, nil
}

// PlainFileStorage stores keys as they are (development only)
type PlainFileStorage struct {
	baseDir string
}

func NewPlainFileStorage(baseDir string) *PlainFileStorage {
	return &PlainFileStorage{baseDir: baseDir}
}

func (s *PlainFileStorage) Save(profile string, data []byte) error {
	return writeKeyFile(keyFilePath(s.baseDir, profile, ".json"), data)
}

func (s *PlainFileStorage) Load(profile string) ([]byte, error) {
	return readKeyFile(keyFilePath(s.baseDir, profile, ".json"), profile)
}

func (s *PlainFileStorage) Delete(profile string) error {
	return removeKeyFile(keyFilePath(s.baseDir, profile, ".json"))
}

func (s *PlainFileStorage) Name() string {
	return "plain-file"
}

func keyFilePath(baseDir, profile, ext string) string {
	return filepath.Join(baseDir, "keys", profile+ext)
}

func writeKeyFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func readKeyFile(path, profile string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("no key stored for profile '%s': %w", profile, utils.ErrNotFound)
	}
	return data, err
}

func removeKeyFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// getOrCreateEncryptionKey loads the file encryption key, creating it on
// first use
func getOrCreateEncryptionKey(baseDir string) ([]byte, error) {
	keyFile := filepath.Join(baseDir, ".keyfile")

	if data, err := os.ReadFile(keyFile); err == nil {
		key, err := base64.StdEncoding.DecodeString(string(data))
		if err == nil && len(key) == 32 {
			return key, nil
		}
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, err
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(keyFile, []byte(encoded), 0600); err != nil {
		return nil, err
	}
	return key, nil
}

// ListProfiles lists the stored key profiles, sorted
func (m *Manager) ListProfiles() ([]string, error) {
	var profiles []string

	if m.useKeyring {
		// the keyring cannot be enumerated, so profiles are tracked in a file
		data, err := os.ReadFile(m.profilesFile())
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &profiles); err != nil {
			return nil, err
		}
	} else {
		entries, err := os.ReadDir(filepath.Join(m.configDir, "keys"))
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			if ext := filepath.Ext(name); ext == ".json" || ext == ".enc" {
				profiles = append(profiles, strings.TrimSuffix(name, ext))
			}
		}
	}

	sort.Strings(profiles)
	return profiles, nil
}

func (m *Manager) profilesFile() string {
	return filepath.Join(m.configDir, "profiles.json")
}

// trackProfile adds or removes profile from the keyring profile list
func (m *Manager) trackProfile(profile string, present bool) error {
	if !m.useKeyring {
		return nil
	}
	profiles, err := m.ListProfiles()
	if err != nil {
		return err
	}

	updated := make([]string, 0, len(profiles)+1)
	for _, p := range profiles {
		if p != profile {
			updated = append(updated, p)
		}
	}
	if present {
		updated = append(updated, profile)
	}
	data, err := json.Marshal(updated)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return err
	}
	return os.WriteFile(m.profilesFile(), data, 0600)
}
