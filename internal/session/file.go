package session

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// State is the persisted session.
type State struct {
	UserID     int64     `toml:"user_id"`
	Email      string    `toml:"email"`
	Token      string    `toml:"token"`
	LoggedInAt time.Time `toml:"logged_in_at"`
}

// FileStore persists the session as TOML.
//
// Every read goes to disk so that a login or logout performed by another
// process (the CLI while the daemon runs) is observed immediately.
type FileStore struct {
	path   string
	logger *log.Logger
}

// NewFileStore returns a store backed by path. The file need not exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:   path,
		logger: log.New(os.Stderr, "[session] ", log.LstdFlags),
	}
}

// Path returns the session file path.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the session file. A missing file yields an empty State.
func (f *FileStore) Load() (State, error) {
	var st State
	_, err := toml.DecodeFile(f.path, &st)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to read session %s: %w", f.path, err)
	}
	return st, nil
}

// Save writes st atomically (temp file + rename) with owner-only permissions.
func (f *FileStore) Save(st State) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmpPath := f.path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if err := toml.NewEncoder(file).Encode(st); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Clear removes the session file. Clearing an absent session is not an error.
func (f *FileStore) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session: %w", err)
	}
	return nil
}

// CurrentUserID implements Provider. An unreadable file counts as logged out.
func (f *FileStore) CurrentUserID() (int64, bool) {
	st, err := f.Load()
	if err != nil {
		f.logger.Printf("WARNING: %v", err)
		return 0, false
	}
	return st.UserID, st.UserID != 0
}

// Token implements Credentials.
func (f *FileStore) Token() string {
	st, err := f.Load()
	if err != nil {
		f.logger.Printf("WARNING: %v", err)
		return ""
	}
	return st.Token
}

// Invalidate implements Credentials. Only the token is dropped, and only
// while it is still the rejected one.
func (f *FileStore) Invalidate(rejected string) {
	st, err := f.Load()
	if err != nil || st.Token == "" || st.Token != rejected {
		return
	}
	st.Token = ""
	if err := f.Save(st); err != nil {
		f.logger.Printf("WARNING: failed to invalidate token: %v", err)
	}
}
