package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wobblecap/wobblecap/pkg/errors"
	"github.com/wobblecap/wobblecap/pkg/observability"
)

const backendFile = "file"

// FileStore is a file-based challenge store.
// Challenges are stored as JSON files in a directory, one per id.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
	now     func() time.Time
}

// NewFileStore creates a new file-based challenge store.
// If baseDir is empty, defaults to ~/.config/wobblecap/challenges/
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "get home dir")
		}
		baseDir = filepath.Join(home, ".config", "wobblecap", "challenges")
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "create challenge dir")
	}
	return &FileStore{baseDir: baseDir, now: time.Now}, nil
}

func (s *FileStore) challengePath(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}

func (s *FileStore) Get(ctx context.Context, id string) (*Challenge, error) {
	s.mu.RLock()
	c, err := s.read(id)
	s.mu.RUnlock()
	return s.finish(ctx, id, c, err, false)
}

func (s *FileStore) Take(ctx context.Context, id string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.read(id)
	return s.finish(ctx, id, c, err, true)
}

func (s *FileStore) read(id string) (*Challenge, error) {
	if !ValidID(id) {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(s.challengePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "read challenge file")
	}

	var c Challenge
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "parse challenge")
	}
	return &c, nil
}

// finish removes expired or consumed files and reports the outcome.
// Removal of an expired file under a read lock races only with other
// removals of the same file, which os.Remove tolerates.
func (s *FileStore) finish(ctx context.Context, id string, c *Challenge, err error, consume bool) (*Challenge, error) {
	if err != nil {
		if errors.Is(err, errors.ErrCodeNotFound) {
			observability.Store().OnChallengeMiss(ctx, backendFile)
		}
		return nil, err
	}
	if c.expiredAt(s.now()) {
		os.Remove(s.challengePath(id))
		observability.Store().OnChallengeMiss(ctx, backendFile)
		return nil, ErrExpired
	}
	if consume {
		if err := os.Remove(s.challengePath(id)); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "remove challenge file")
		}
	}
	observability.Store().OnChallengeHit(ctx, backendFile)
	return c, nil
}

func (s *FileStore) Set(ctx context.Context, c *Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkSet(c, s.now()); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "marshal challenge")
	}
	if err := os.WriteFile(s.challengePath(c.ID), data, 0600); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "write challenge file")
	}
	observability.Store().OnChallengeSet(ctx, backendFile)
	return nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	if !ValidID(id) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.challengePath(id)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.ErrCodeInternal, err, "remove challenge file")
	}
	return nil
}

func (s *FileStore) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "read challenge dir")
	}

	now := s.now()
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(s.baseDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var c Challenge
		if err := json.Unmarshal(data, &c); err != nil {
			continue
		}
		if c.expiredAt(now) {
			os.Remove(path)
		}
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// Path returns the base directory for challenge files.
func (s *FileStore) Path() string {
	return s.baseDir
}

var _ Store = (*FileStore)(nil)
