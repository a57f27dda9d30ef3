// Package artifacts content-addresses submission evidence: page snapshots,
// screenshots, and confirmation bodies captured by the webform worker. Blobs
// are keyed by their SHA-256 so re-captures of identical evidence are free.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const hashPrefix = "sha256:"

// Store persists evidence blobs by content hash.
type Store interface {
	// Store writes data and returns "sha256:<hex>". Writing the same bytes
	// twice returns the same hash without a second write.
	Store(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, hash string) ([]byte, error)
	Exists(ctx context.Context, hash string) (bool, error)
	Delete(ctx context.Context, hash string) error
}

// Digest computes the prefixed content hash without storing anything.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hashPrefix + hex.EncodeToString(sum[:])
}

// rawHash strips and validates the "sha256:" prefix.
func rawHash(hash string) (string, error) {
	raw, ok := strings.CutPrefix(hash, hashPrefix)
	if !ok {
		return "", fmt.Errorf("malformed artifact hash %q", hash)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("malformed artifact hash %q: %w", hash, err)
	}
	return raw, nil
}

// FileStore keeps blobs on local disk, sharded by the first byte of the hash
// to keep directory listings manageable.
type FileStore struct {
	baseDir string
}

// NewFileStore creates the base directory if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) path(raw string) string {
	return filepath.Join(s.baseDir, raw[:2], raw+".blob")
}

func (s *FileStore) Store(ctx context.Context, data []byte) (string, error) {
	hash := Digest(data)
	raw := hash[len(hashPrefix):]
	path := s.path(raw)

	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create shard dir: %w", err)
	}

	// Write-then-rename so a crashed writer never leaves a truncated blob
	// under the final name.
	tmp, err := os.CreateTemp(filepath.Dir(path), raw+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return hash, nil
}

func (s *FileStore) Get(ctx context.Context, hash string) ([]byte, error) {
	raw, err := rawHash(hash)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(raw))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact %s not found", hash)
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

func (s *FileStore) Exists(ctx context.Context, hash string) (bool, error) {
	raw, err := rawHash(hash)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(s.path(raw)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat blob: %w", err)
	}
	return true, nil
}

func (s *FileStore) Delete(ctx context.Context, hash string) error {
	raw, err := rawHash(hash)
	if err != nil {
		return err
	}
	if err := os.Remove(s.path(raw)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
