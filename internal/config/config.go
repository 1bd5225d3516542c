package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultListenPort is the port the control server binds when the
// configuration holds none.
const DefaultListenPort = 7676

const configFileName = "config.json"

// settings is the on-disk shape of the remote-control configuration.
type settings struct {
	Version             int    `json:"version"`
	ListenPort          int    `json:"listen_port,omitempty"`
	AccessToken         string `json:"access_token,omitempty"`
	CertificateFile     string `json:"certificate_file,omitempty"`
	CertificatePassword string `json:"certificate_password,omitempty"`
	CipherList          string `json:"cipher_list,omitempty"`
}

// Store persists remote-control settings for a client installation as a
// JSON file under the base directory. Writes go through a temp file and an
// atomic rename. The store serializes read-modify-write sequences within
// this process only; two processes racing on the same file are not
// coordinated.
type Store struct {
	mu      sync.Mutex
	baseDir string
}

// NewStore creates a settings store rooted at baseDir.
// If baseDir is empty, uses ~/.picoremote/
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".picoremote")
	}

	// The directory holds the access token and certificate key material.
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	store := &Store{baseDir: baseDir}

	if err := store.ensureSettings(); err != nil {
		return nil, err
	}

	log.Debug().Str("baseDir", baseDir).Msg("config store initialized")

	return store, nil
}

// Dir returns the base directory holding the settings file.
func (s *Store) Dir() string {
	return s.baseDir
}

// ListenPort returns the configured control server port.
func (s *Store) ListenPort() (int, error) {
	cfg, err := s.load()
	if err != nil {
		return 0, err
	}
	if cfg.ListenPort == 0 {
		return DefaultListenPort, nil
	}
	return cfg.ListenPort, nil
}

// SetListenPort persists the control server port.
func (s *Store) SetListenPort(port int) error {
	return s.update(func(cfg *settings) {
		cfg.ListenPort = port
	})
}

// AccessToken returns the shared-secret access token, empty when none has
// been generated yet.
func (s *Store) AccessToken() (string, error) {
	cfg, err := s.load()
	if err != nil {
		return "", err
	}
	return cfg.AccessToken, nil
}

// SetAccessToken persists the shared-secret access token.
func (s *Store) SetAccessToken(token string) error {
	return s.update(func(cfg *settings) {
		cfg.AccessToken = token
	})
}

// CertificateFile returns the path of the combined certificate+key file,
// defaulting to certificate.pem under the base directory.
func (s *Store) CertificateFile() (string, error) {
	cfg, err := s.load()
	if err != nil {
		return "", err
	}
	if cfg.CertificateFile == "" {
		return filepath.Join(s.baseDir, "certificate.pem"), nil
	}
	return cfg.CertificateFile, nil
}

// SetCertificateFile persists the certificate file path.
func (s *Store) SetCertificateFile(path string) error {
	return s.update(func(cfg *settings) {
		cfg.CertificateFile = path
	})
}

// CertificatePassword returns the password protecting the certificate's
// private key, empty when the key is stored unencrypted.
func (s *Store) CertificatePassword() (string, error) {
	cfg, err := s.load()
	if err != nil {
		return "", err
	}
	return cfg.CertificatePassword, nil
}

// SetCertificatePassword persists the certificate key password.
func (s *Store) SetCertificatePassword(password string) error {
	return s.update(func(cfg *settings) {
		cfg.CertificatePassword = password
	})
}

// CipherList returns the configured TLS cipher list string, empty for the
// built-in default suite set.
func (s *Store) CipherList() (string, error) {
	cfg, err := s.load()
	if err != nil {
		return "", err
	}
	return cfg.CipherList, nil
}

// SetCipherList persists the TLS cipher list string.
func (s *Store) SetCipherList(list string) error {
	return s.update(func(cfg *settings) {
		cfg.CipherList = list
	})
}

// ensureSettings creates an empty settings file if none exists.
func (s *Store) ensureSettings() error {
	path := filepath.Join(s.baseDir, configFileName)

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	return s.save(&settings{Version: 1})
}

// load reads the settings file.
func (s *Store) load() (*settings, error) {
	path := filepath.Join(s.baseDir, configFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg settings
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// update applies fn to the current settings under the store mutex and
// persists the result.
func (s *Store) update(fn func(*settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.load()
	if err != nil {
		return err
	}

	fn(cfg)

	return s.save(cfg)
}

// save writes the settings file atomically.
func (s *Store) save(cfg *settings) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(s.baseDir, configFileName)
	tempPath := path + ".tmp"

	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}
