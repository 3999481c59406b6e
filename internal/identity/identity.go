// Package identity keeps the device identity of a client on disk.
//
// The device ID tags this device's writes on the server. It is not a
// credential and grants nothing.
package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const fileName = "device.json"

// Device is the persisted identity of this client.
type Device struct {
	ID             string    `json:"device_id"`
	Token          string    `json:"token,omitempty"`
	TokenExpiresAt time.Time `json:"token_expires_at,omitzero"`
}

// HasValidToken reports whether the stored token is still usable at now.
// Tokens expiring within a minute are treated as expired.
func (d Device) HasValidToken(now time.Time) bool {
	return d.Token != "" && now.Add(time.Minute).Before(d.TokenExpiresAt)
}

// FileStore reads and writes device.json in a state directory.
type FileStore struct {
	path string
}

// NewFileStore returns a store for dir/device.json.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, fileName)}
}

// Path returns the file the identity lives in.
func (s *FileStore) Path() string { return s.path }

// LoadOrCreate returns the stored device, generating and saving a new one
// on first run. A file without a device ID is replaced.
func (s *FileStore) LoadOrCreate() (Device, error) {
	payload, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		var d Device
		if err := json.Unmarshal(payload, &d); err != nil {
			return Device{}, fmt.Errorf("decode device identity: %w", err)
		}
		if d.ID != "" {
			return d, nil
		}
	case !os.IsNotExist(err):
		return Device{}, fmt.Errorf("read device identity: %w", err)
	}

	d := Device{ID: uuid.NewString()}
	if err := s.Save(d); err != nil {
		return Device{}, err
	}
	return d, nil
}

// Save writes the device, replacing the previous file atomically.
func (s *FileStore) Save(d Device) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	payload, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal device identity: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write device identity: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace device identity: %w", err)
	}
	return nil
}
