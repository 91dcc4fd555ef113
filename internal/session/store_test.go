package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Lifecycle(t *testing.T) {
	s := NewMemoryStore()

	_, ok := s.Tokens()
	assert.False(t, ok, "new store must be empty")
	require.ErrorIs(t, s.SetAccess("a"), ErrNoTokens)

	require.NoError(t, s.SetTokens(Tokens{Access: "access-1", Refresh: "refresh-1"}))
	tok, ok := s.Tokens()
	require.True(t, ok)
	assert.Equal(t, "access-1", tok.Access)
	assert.False(t, tok.UpdatedAt.IsZero())

	require.NoError(t, s.SetAccess("access-2"))
	tok, _ = s.Tokens()
	assert.Equal(t, "access-2", tok.Access)
	assert.Equal(t, "refresh-1", tok.Refresh, "refresh token is kept")

	require.NoError(t, s.Clear())
	tok, ok = s.Tokens()
	assert.False(t, ok)
	assert.Empty(t, tok.Refresh)
}

func TestMemoryStore_RefreshOnlyIsNotAuthenticated(t *testing.T) {
	s := NewMemoryStore(Tokens{Refresh: "refresh-only"})
	_, ok := s.Tokens()
	assert.False(t, ok)
	require.NoError(t, s.SetAccess("fresh"))
	_, ok = s.Tokens()
	assert.True(t, ok)
}

func TestFileStore_PersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	s, err := OpenFileStore(path, "https://api.example.com/api/")
	require.NoError(t, err)
	require.NoError(t, s.SetTokens(Tokens{Access: "access", Refresh: "refresh"}))
	require.NoError(t, s.SetAccess("access-2"))

	reopened, err := OpenFileStore(path, "https://api.example.com/api/")
	require.NoError(t, err)
	tok, ok := reopened.Tokens()
	require.True(t, ok)
	assert.Equal(t, "access-2", tok.Access)
	assert.Equal(t, "refresh", tok.Refresh)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_PreservesOtherProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	first, err := OpenFileStore(path, "profile-1")
	require.NoError(t, err)
	second, err := OpenFileStore(path, "profile-2")
	require.NoError(t, err)

	require.NoError(t, first.SetTokens(Tokens{Access: "a1", Refresh: "r1"}))
	require.NoError(t, second.SetTokens(Tokens{Access: "a2", Refresh: "r2"}))
	require.NoError(t, first.Clear())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var pf profileFile
	require.NoError(t, json.Unmarshal(data, &pf))

	assert.NotContains(t, pf.Profiles, "profile-1")
	require.Contains(t, pf.Profiles, "profile-2")
	assert.Equal(t, "a2", pf.Profiles["profile-2"].Access)
}

func TestFileStore_ConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	const writers = 10
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func(id int) {
			defer wg.Done()
			s, err := OpenFileStore(path, fmt.Sprintf("profile-%d", id))
			if err != nil {
				t.Errorf("writer %d: open: %v", id, err)
				return
			}
			if err := s.SetTokens(Tokens{
				Access:  fmt.Sprintf("access-%d", id),
				Refresh: fmt.Sprintf("refresh-%d", id),
			}); err != nil {
				t.Errorf("writer %d: save: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var pf profileFile
	require.NoError(t, json.Unmarshal(data, &pf))
	require.Len(t, pf.Profiles, writers)
	for i := 0; i < writers; i++ {
		assert.Equal(t, fmt.Sprintf("access-%d", i), pf.Profiles[fmt.Sprintf("profile-%d", i)].Access)
	}

	_, err = os.Stat(path + ".lock")
	assert.True(t, os.IsNotExist(err), "no lock file may remain")
}

func TestOpenFileStore_Errors(t *testing.T) {
	_, err := OpenFileStore("", "p")
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err = OpenFileStore(path, "p")
	require.ErrorContains(t, err, "failed to parse token file")
}

func BenchmarkFileStore_SetTokens(b *testing.B) {
	s, err := OpenFileStore(filepath.Join(b.TempDir(), "tokens.json"), "bench")
	if err != nil {
		b.Fatal(err)
	}
	tok := Tokens{Access: "access-token", Refresh: "refresh-token"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.SetTokens(tok); err != nil {
			b.Fatalf("save: %v", err)
		}
	}
}
