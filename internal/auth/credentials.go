package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/99designs/keyring"
)

const keyringService = "portalmail"

// ErrNoCredentials is returned when the keyring holds no password for the
// configured username. Callers decide whether to prompt; this package never
// talks to a terminal.
var ErrNoCredentials = errors.New("no stored credentials")

func openRing() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.KeychainBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/portalmail/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("portalmail-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return ring, nil
}

// Password retrieves the portal password stored for username.
func Password(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", fmt.Errorf("%w: username is empty", ErrNoCredentials)
	}
	ring, err := openRing()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(username)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", fmt.Errorf("%w for %q", ErrNoCredentials, username)
		}
		return "", fmt.Errorf("read keyring: %w", err)
	}
	return string(item.Data), nil
}

// StorePassword saves the portal password for username.
func StorePassword(username, password string) error {
	ring, err := openRing()
	if err != nil {
		return err
	}
	if err := ring.Set(keyring.Item{Key: username, Data: []byte(password)}); err != nil {
		return fmt.Errorf("write keyring: %w", err)
	}
	return nil
}

// DeletePassword removes the stored portal password for username.
func DeletePassword(username string) error {
	ring, err := openRing()
	if err != nil {
		return err
	}
	if err := ring.Remove(username); err != nil {
		return fmt.Errorf("delete keyring entry: %w", err)
	}
	return nil
}
