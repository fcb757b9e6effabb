package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/bobarin/imagetiming/internal/logging"
	"github.com/bobarin/imagetiming/internal/models"
)

const lockRetryDelay = 50 * time.Millisecond

// FileStore keeps allocations in a single JSON object on disk. Writes are
// serialised in-process by a mutex and across processes by a lock file, and
// merge with whatever another process wrote in the meantime.
type FileStore struct {
	path    string
	lock    *flock.Flock
	logger  *zap.Logger
	mu      sync.RWMutex
	entries map[string][]models.Assignment
}

// NewFileStore loads path if it exists. An unreadable cache file is logged
// and the store starts empty.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	s := &FileStore{
		path:    path,
		lock:    flock.New(path + ".lock"),
		logger:  logging.OrNop(logger).Named("cache"),
		entries: make(map[string][]models.Assignment),
	}

	entries, err := s.read()
	if err != nil {
		s.logger.Warn("failed to load allocation cache, starting empty",
			zap.String("path", path),
			zap.Error(err))
		return s
	}
	s.entries = entries
	s.logger.Debug("loaded allocation cache",
		zap.String("path", path),
		zap.Int("entries", len(entries)))
	return s
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(_ context.Context, key string) ([]models.Assignment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.entries[key]
	return cloneAssignments(a), ok, nil
}

// Put stores assignments under key and persists the merged cache.
func (s *FileStore) Put(ctx context.Context, key string, assignments []models.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withFileLock(ctx, func() error {
		merged, err := s.read()
		if err != nil {
			s.logger.Warn("cache file unreadable, overwriting",
				zap.String("path", s.path),
				zap.Error(err))
			merged = make(map[string][]models.Assignment)
		}
		for k, v := range s.entries {
			if _, ok := merged[k]; !ok {
				merged[k] = v
			}
		}
		merged[key] = cloneAssignments(assignments)

		if err := s.write(merged); err != nil {
			return err
		}
		s.entries = merged
		return nil
	})
}

// Clear empties the cache on disk and in memory.
func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withFileLock(ctx, func() error {
		empty := make(map[string][]models.Assignment)
		if err := s.write(empty); err != nil {
			return err
		}
		s.entries = empty
		return nil
	})
}

func (s *FileStore) withFileLock(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to lock cache file: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to lock cache file %s", s.path)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("failed to unlock cache file", zap.Error(err))
		}
	}()

	return fn()
}

func (s *FileStore) read() (map[string][]models.Assignment, error) {
	entries := make(map[string][]models.Assignment)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return entries, nil
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse cache file: %w", err)
	}
	return entries, nil
}

func (s *FileStore) write(entries map[string][]models.Assignment) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}
