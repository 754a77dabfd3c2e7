package session

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
)

// Store reads and writes the session file at a single well-known
// location. Only one run is expected to use the file at a time,
// concurrent runs may clobber each other and that is an accepted
// constraint, not something the store guards against.
type Store struct {
	path string
}

func NewStore(path string) Store {
	return Store{path: path}
}

func (s Store) Path() string {
	return s.path
}

// DefaultPath returns ~/.scholar-seeker/arxiv_auth_state.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".scholar-seeker", "arxiv_auth_state.json"), nil
}

// Load returns the persisted session, or ok=false when there is none.
// A missing, unreadable or corrupt file all read as "no session",
// forcing a fresh login instead of failing the run.
func (s Store) Load() (Session, bool) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to read session file", "path", s.path, "err", err)
		}
		return Session{}, false
	}

	var loaded Session
	err = json.Unmarshal(raw, &loaded)
	if err != nil {
		slog.Warn("session file is corrupt, ignoring it", "path", s.path, "err", err)
		return Session{}, false
	}
	if loaded.IsZero() {
		return Session{}, false
	}
	return loaded, true
}

// Save writes the session atomically: a partial write can never be
// loaded as a valid-but-wrong session, it either parses whole or reads
// as absent.
func (s Store) Save(sess Session) error {
	err := os.MkdirAll(filepath.Dir(s.path), 0700)
	if err != nil {
		return err
	}

	serialized, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".auth_state_*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(serialized)
	if err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	err = tmp.Close()
	if err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, s.path)
}

// Clear removes the session file. Removing an absent file is fine.
func (s Store) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
