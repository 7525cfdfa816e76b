package state

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/cairnhq/cairn/internal/logging"
)

// staleAfter is how old a lock may be before another process may steal it.
// Covers the crashed-holder case without requiring manual cleanup.
const staleAfter = 10 * time.Minute

type lockInfo struct {
	ID      string    `json:"id"`
	Who     string    `json:"who"`
	PID     int       `json:"pid"`
	Created time.Time `json:"created"`
}

// Lock acquires the run-level lock for the state file. It fails when
// another live process holds the lock, and reclaims locks older than
// staleAfter.
func (s *FileStore) Lock() error {
	path := s.lockPath()

	info := lockInfo{
		ID:      uuid.NewString(),
		Who:     hostIdentity(),
		PID:     os.Getpid(),
		Created: time.Now().UTC(),
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode lock: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err == nil {
		defer f.Close()
		if _, err := f.Write(data); err != nil {
			os.Remove(path)
			return fmt.Errorf("failed to write lock file: %w", err)
		}
		return nil
	}
	if !os.IsExist(err) {
		return fmt.Errorf("failed to create lock file %s: %w", path, err)
	}

	existing, readErr := os.ReadFile(path)
	if readErr != nil {
		return fmt.Errorf("state locked by another process (and lock file unreadable: %v)", readErr)
	}
	var held lockInfo
	if json.Unmarshal(existing, &held) == nil && time.Since(held.Created) < staleAfter {
		return fmt.Errorf("state locked by %s (pid %d) since %s",
			held.Who, held.PID, held.Created.Format(time.RFC3339))
	}

	// Stale or corrupt lock: steal it.
	logging.Warn("reclaiming stale state lock", "path", path, "held_by", held.Who)
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove stale lock: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

// Unlock releases the run-level lock.
func (s *FileStore) Unlock() error {
	if err := os.Remove(s.lockPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release state lock: %w", err)
	}
	return nil
}

func (s *FileStore) lockPath() string {
	return s.path + ".lock"
}

func hostIdentity() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return host
}
