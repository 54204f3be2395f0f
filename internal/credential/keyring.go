package credential

import (
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "mail-digest"

// Store reads and writes secrets in the system keyring. It satisfies
// model.SecretSource so configuration can fall back to it.
type Store struct {
	cfg keyring.Config
}

// New returns a Store using the platform keyring backends, falling back
// to an encrypted file under ~/.config/mail-digest/credentials.
func New() *Store {
	return &Store{cfg: keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mail-digest/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mail-digest-file-key"),
		KeychainTrustApplication: true,
	}}
}

// NewFileStore returns a Store restricted to the encrypted file backend
// rooted at dir.
func NewFileStore(dir, password string) *Store {
	return &Store{cfg: keyring.Config{
		ServiceName:      serviceName,
		AllowedBackends:  []keyring.BackendType{keyring.FileBackend},
		FileDir:          dir,
		FilePasswordFunc: keyring.FixedStringPrompt(password),
	}}
}

func (s *Store) open() (keyring.Keyring, error) {
	ring, err := keyring.Open(s.cfg)
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key.
func (s *Store) Get(key string) (string, error) {
	ring, err := s.open()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key.
func (s *Store) Set(key string, value string) error {
	ring, err := s.open()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}
