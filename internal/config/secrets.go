package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
)

// Secret names recognized in the environment and in secrets files.
const (
	KeyB2Endpoint          = "B2_ENDPOINT"
	KeyB2KeyID             = "B2_KEY_ID"
	KeyB2AppKey            = "B2_APP_KEY"
	KeyB2Bucket            = "B2_BUCKET"
	KeySpotifyClientID     = "SPOTIFY_CLIENT_ID"
	KeySpotifyClientSecret = "SPOTIFY_CLIENT_SECRET"
	KeyAccessCode          = "ACCESS_CODE"
)

// StorageKeys are the secrets needed by the object store.
var StorageKeys = []string{KeyB2Endpoint, KeyB2KeyID, KeyB2AppKey, KeyB2Bucket}

// SpotifyKeys are the secrets needed by the playlist resolver.
var SpotifyKeys = []string{KeySpotifyClientID, KeySpotifyClientSecret}

// Secrets holds credentials resolved at startup.
type Secrets struct {
	B2Endpoint          string
	B2KeyID             string
	B2AppKey            string
	B2Bucket            string
	SpotifyClientID     string
	SpotifyClientSecret string
	AccessCode          string
}

// Get returns a secret by its environment name.
func (s Secrets) Get(key string) string {
	switch key {
	case KeyB2Endpoint:
		return s.B2Endpoint
	case KeyB2KeyID:
		return s.B2KeyID
	case KeyB2AppKey:
		return s.B2AppKey
	case KeyB2Bucket:
		return s.B2Bucket
	case KeySpotifyClientID:
		return s.SpotifyClientID
	case KeySpotifyClientSecret:
		return s.SpotifyClientSecret
	case KeyAccessCode:
		return s.AccessCode
	}
	return ""
}

// SecretSource looks up a single secret by name.
type SecretSource interface {
	Lookup(key string) (string, bool)
}

// EnvSource reads secrets from the process environment.
type EnvSource struct{}

func (EnvSource) Lookup(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

// FileSource reads secrets from a flat TOML file of KEY = "value" pairs.
type FileSource struct {
	Path   string
	values map[string]interface{}
}

// NewFileSource parses the TOML file at path. A missing file yields an empty source.
func NewFileSource(path string) (*FileSource, error) {
	src := &FileSource{Path: path, values: map[string]interface{}{}}
	if path == "" {
		return src, nil
	}

	if _, err := toml.DecodeFile(path, &src.values); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return src, nil
		}
		return nil, fmt.Errorf("failed to parse secrets file %s: %w", path, err)
	}
	return src, nil
}

func (f *FileSource) Lookup(key string) (string, bool) {
	raw, ok := f.values[key]
	if !ok {
		return "", false
	}
	var v string
	switch val := raw.(type) {
	case string:
		v = val
	case int64, float64, bool:
		v = fmt.Sprint(val)
	default:
		return "", false
	}
	return v, v != ""
}

// ResolveSecrets asks each source in order and keeps the first non-empty value per key.
func ResolveSecrets(sources ...SecretSource) Secrets {
	lookup := func(key string) string {
		for _, src := range sources {
			if v, ok := src.Lookup(key); ok {
				return v
			}
		}
		return ""
	}

	s := Secrets{
		B2Endpoint:          lookup(KeyB2Endpoint),
		B2KeyID:             lookup(KeyB2KeyID),
		B2AppKey:            lookup(KeyB2AppKey),
		B2Bucket:            lookup(KeyB2Bucket),
		SpotifyClientID:     lookup(KeySpotifyClientID),
		SpotifyClientSecret: lookup(KeySpotifyClientSecret),
		AccessCode:          lookup(KeyAccessCode),
	}
	if s.AccessCode == "" {
		s.AccessCode = DefaultAccessCode
	}
	return s
}

// LoadSecrets resolves secrets from the environment, then the local secrets
// file, then the deployment secrets file.
func LoadSecrets(localPath, filePath string) (Secrets, error) {
	local, err := NewFileSource(localPath)
	if err != nil {
		return Secrets{}, err
	}
	file, err := NewFileSource(filePath)
	if err != nil {
		return Secrets{}, err
	}
	return ResolveSecrets(EnvSource{}, local, file), nil
}
