package store

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// The store for a loaded document is a transient cache, rebuilt per load,
// not a durable artifact. It lives under the user cache directory so a
// re-open of the same source file can skip ingestion entirely.

// CacheDir returns the directory holding cached store databases,
// creating it if needed.
func CacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolve cache dir: %w", err)
	}
	dir := filepath.Join(base, "twig")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	return dir, nil
}

// DBPathFor returns the deterministic store location for a source file:
// <base>_<md5 of absolute path>.db under the cache directory. Two source
// files with the same name never collide; the same file always maps to the
// same store.
func DBPathFor(sourcePath string) (string, error) {
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(sourcePath)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", sourcePath, err)
	}
	sum := md5.Sum([]byte(abs))
	name := fmt.Sprintf("%s_%s.db", filepath.Base(sourcePath), hex.EncodeToString(sum[:]))
	return filepath.Join(dir, name), nil
}

// ClearCache removes every cached store database, including WAL sidecars.
func ClearCache() error {
	dir, err := CacheDir()
	if err != nil {
		return err
	}
	for _, pattern := range []string{"*.db", "*.db-wal", "*.db-shm"} {
		files, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return err
		}
		for _, f := range files {
			_ = os.Remove(f) // best-effort cleanup
		}
	}
	return nil
}
