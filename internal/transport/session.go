package transport

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SessionDir wraps the filesystem directory holding opaque transport session
// material. Only its existence, emptiness, and age are ever inspected; the
// internal structure belongs to the transport.
type SessionDir struct {
	Path string
}

// NewSessionDir creates a session directory handle
func NewSessionDir(path string) *SessionDir {
	return &SessionDir{Path: path}
}

// Exists reports whether the session directory is present
func (d *SessionDir) Exists() bool {
	info, err := os.Stat(d.Path)
	return err == nil && info.IsDir()
}

// Empty reports whether the session directory holds no material
func (d *SessionDir) Empty() (bool, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("failed to read session dir: %w", err)
	}
	return len(entries) == 0, nil
}

// Age returns how old the newest piece of session material is
func (d *SessionDir) Age() (time.Duration, error) {
	newest := time.Time{}
	err := filepath.Walk(d.Path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to inspect session dir: %w", err)
	}
	if newest.IsZero() {
		return 0, fmt.Errorf("session dir has no files")
	}
	return time.Since(newest), nil
}

// Backup copies the session directory aside before it is cleared, keeping at
// most keep previous backups.
func (d *SessionDir) Backup(keep int) (string, error) {
	if !d.Exists() {
		return "", fmt.Errorf("session dir does not exist")
	}

	dest := fmt.Sprintf("%s.backup-%s-%s", d.Path,
		time.Now().Format("20060102-150405"), uuid.NewString()[:8])
	if err := copyTree(d.Path, dest); err != nil {
		return "", fmt.Errorf("failed to back up session dir: %w", err)
	}

	if err := d.pruneBackups(keep); err != nil {
		logrus.Warnf("Failed to prune old session backups: %v", err)
	}
	return dest, nil
}

// Clear removes all persisted session material
func (d *SessionDir) Clear() error {
	if err := os.RemoveAll(d.Path); err != nil {
		return fmt.Errorf("failed to clear session dir: %w", err)
	}
	return nil
}

func (d *SessionDir) pruneBackups(keep int) error {
	parent := filepath.Dir(d.Path)
	prefix := filepath.Base(d.Path) + ".backup-"

	entries, err := os.ReadDir(parent)
	if err != nil {
		return err
	}

	var backups []string
	for _, e := range entries {
		if e.IsDir() && len(e.Name()) > len(prefix) && e.Name()[:len(prefix)] == prefix {
			backups = append(backups, e.Name())
		}
	}

	// Backup names embed the timestamp, so lexical order is age order.
	sort.Strings(backups)
	for len(backups) > keep {
		victim := filepath.Join(parent, backups[0])
		if err := os.RemoveAll(victim); err != nil {
			return err
		}
		backups = backups[1:]
	}
	return nil
}

func copyTree(src, dest string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode())
	})
}
