package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// profileFile is the on-disk layout: one token pair per profile (API base URL),
// so several backends can share a single token file.
type profileFile struct {
	Profiles map[string]*Tokens `json:"profiles"`
}

// FileStore persists tokens for one profile in a JSON file. Reads are served
// from memory; every write goes to disk under the file lock.
type FileStore struct {
	path    string
	profile string
	lock    lockConfig

	mu     sync.RWMutex
	tokens Tokens
}

// OpenFileStore loads the tokens saved for profile in path. A missing file is
// not an error: the store simply starts empty.
func OpenFileStore(path, profile string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("token file path cannot be empty")
	}
	s := &FileStore{path: path, profile: profile, lock: defaultLockConfig}

	pf, err := readProfileFile(path)
	if err != nil {
		return nil, err
	}
	if t, ok := pf.Profiles[profile]; ok && t != nil {
		s.tokens = *t
	}
	return s, nil
}

// Path returns the token file location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Tokens() (Tokens, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens, s.tokens.Access != ""
}

func (s *FileStore) SetTokens(t Tokens) error {
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(&t); err != nil {
		return err
	}
	s.tokens = t
	return nil
}

func (s *FileStore) SetAccess(access string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens.Access == "" && s.tokens.Refresh == "" {
		return ErrNoTokens
	}
	t := s.tokens
	t.Access = access
	t.UpdatedAt = time.Now()
	if err := s.write(&t); err != nil {
		return err
	}
	s.tokens = t
	return nil
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = Tokens{}
	return s.write(nil)
}

// write merges t into the file under the profile key (nil deletes the
// profile), keeping the entries of other profiles intact.
func (s *FileStore) write(t *Tokens) error {
	lock, err := acquireFileLock(context.Background(), s.path, s.lock)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if releaseErr := lock.release(); releaseErr != nil {
			fmt.Fprintf(os.Stderr, "failed to release lock: %v\n", releaseErr)
		}
	}()

	// re-read inside the lock so concurrent writers for other profiles survive
	pf, err := readProfileFile(s.path)
	if err != nil {
		pf = &profileFile{}
	}
	if pf.Profiles == nil {
		pf.Profiles = make(map[string]*Tokens)
	}
	if t == nil {
		delete(pf.Profiles, s.profile)
	} else {
		pf.Profiles[s.profile] = t
	}

	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		if removeErr := os.Remove(tmp); removeErr != nil {
			return fmt.Errorf(
				"failed to rename temp file: %v; additionally failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func readProfileFile(path string) (*profileFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &profileFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	var pf profileFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &pf, nil
}
