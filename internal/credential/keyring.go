package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/99designs/keyring"

	"github.com/nhle/liman-notify/internal/model"
)

const serviceName = "liman-notify"

// ErrNoSession is returned when no token is stored for a host.
var ErrNoSession = errors.New("no stored session")

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(model.ConfigDir(), "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt("liman-notify-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrNoSession
		}
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "Liman session",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring. Deleting a
// missing key is not an error.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

func sessionKey(host string) string {
	return "session-" + host
}

// SaveSession stores the access token issued by host.
func SaveSession(host string, token model.AccessToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return Set(sessionKey(host), string(data))
}

// LoadSession returns the access token stored for host, or ErrNoSession.
func LoadSession(host string) (model.AccessToken, error) {
	raw, err := Get(sessionKey(host))
	if err != nil {
		return model.AccessToken{}, err
	}

	var token model.AccessToken
	if err := json.Unmarshal([]byte(raw), &token); err != nil {
		return model.AccessToken{}, fmt.Errorf("decoding stored session: %w", err)
	}
	if token.AccessToken == "" {
		return model.AccessToken{}, ErrNoSession
	}
	return token, nil
}

// DeleteSession forgets the token stored for host.
func DeleteSession(host string) error {
	return Delete(sessionKey(host))
}
