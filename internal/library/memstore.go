package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is wrapped in the StorageError ReadSong returns for a missing key.
var ErrNotFound = errors.New("object not found")

// MemStore is an in-memory Store. Listings are sorted by key.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string][]byte)}
}

// Put stores data under key directly.
func (m *MemStore) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
}

// Len returns the number of stored objects.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

func (m *MemStore) sortedKeys() []string {
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *MemStore) ListFolders(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StorageError{Op: "list folders", Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var folders []string
	for _, k := range m.sortedKeys() {
		folder, _, ok := strings.Cut(k, "/")
		if !ok || folder == "" || seen[folder] {
			continue
		}
		seen[folder] = true
		folders = append(folders, folder)
	}
	return folders, nil
}

func (m *MemStore) ListSongs(ctx context.Context, folder string) ([]Song, error) {
	prefix := folder + "/"
	if err := ctx.Err(); err != nil {
		return nil, &StorageError{Op: "list songs", Key: prefix, Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var songs []Song
	for _, k := range m.sortedKeys() {
		if strings.HasPrefix(k, prefix) && IsSongKey(k) {
			songs = append(songs, songFromKey(folder, k, int64(len(m.objects[k]))))
		}
	}
	return songs, nil
}

func (m *MemStore) ReadSong(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StorageError{Op: "read", Key: key, Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[key]
	if !ok {
		return nil, &StorageError{Op: "read", Key: key, Err: ErrNotFound}
	}
	return append([]byte(nil), data...), nil
}

func (m *MemStore) WriteSong(ctx context.Context, localPath, folder string) (string, error) {
	key := SongKey(folder, filepath.Base(localPath))
	if err := ctx.Err(); err != nil {
		return "", &StorageError{Op: "write", Key: key, Err: err}
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", &StorageError{Op: "write", Key: key, Err: err}
	}

	m.Put(key, data)
	return key, nil
}
