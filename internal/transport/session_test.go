package transport

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionDir(t *testing.T, files map[string]string) *SessionDir {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session")
	require.NoError(t, os.MkdirAll(path, 0o755))
	for name, content := range files {
		full := filepath.Join(path, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o600))
	}
	return NewSessionDir(path)
}

func TestSessionDirExistsAndEmpty(t *testing.T) {
	missing := NewSessionDir(filepath.Join(t.TempDir(), "absent"))
	assert.False(t, missing.Exists())
	empty, err := missing.Empty()
	require.NoError(t, err)
	assert.True(t, empty, "a missing dir counts as empty")

	bare := newSessionDir(t, nil)
	assert.True(t, bare.Exists())
	empty, err = bare.Empty()
	require.NoError(t, err)
	assert.True(t, empty)

	populated := newSessionDir(t, map[string]string{"creds.json": "{}"})
	empty, err = populated.Empty()
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestSessionDirAge(t *testing.T) {
	d := newSessionDir(t, map[string]string{
		"old.json":        "{}",
		"nested/new.json": "{}",
		"nested/mid.json": "{}",
	})

	now := time.Now()
	require.NoError(t, os.Chtimes(filepath.Join(d.Path, "old.json"), now.Add(-72*time.Hour), now.Add(-72*time.Hour)))
	require.NoError(t, os.Chtimes(filepath.Join(d.Path, "nested", "mid.json"), now.Add(-48*time.Hour), now.Add(-48*time.Hour)))
	require.NoError(t, os.Chtimes(filepath.Join(d.Path, "nested", "new.json"), now.Add(-24*time.Hour), now.Add(-24*time.Hour)))

	age, err := d.Age()
	require.NoError(t, err)
	assert.InDelta(t, float64(24*time.Hour), float64(age), float64(time.Minute), "age tracks the newest file, not the oldest")
}

func TestSessionDirAgeWithoutFiles(t *testing.T) {
	d := newSessionDir(t, nil)
	_, err := d.Age()
	assert.Error(t, err)
}

func TestSessionDirBackupAndClear(t *testing.T) {
	d := newSessionDir(t, map[string]string{
		"creds.json":       `{"token":"abc"}`,
		"keys/noise.state": "k",
	})

	backup, err := d.Backup(3)
	require.NoError(t, err)
	assert.DirExists(t, backup)

	data, err := os.ReadFile(filepath.Join(backup, "creds.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"token":"abc"}`, string(data))
	assert.FileExists(t, filepath.Join(backup, "keys", "noise.state"))

	require.NoError(t, d.Clear())
	assert.False(t, d.Exists())
	assert.DirExists(t, backup, "clearing must not touch the backup")
}

func TestSessionDirBackupMissing(t *testing.T) {
	d := NewSessionDir(filepath.Join(t.TempDir(), "absent"))
	_, err := d.Backup(3)
	assert.Error(t, err)
}

func TestSessionDirPruneBackups(t *testing.T) {
	d := newSessionDir(t, map[string]string{"creds.json": "{}"})
	parent := filepath.Dir(d.Path)

	// Pre-seed older backups with lexically smaller timestamps.
	for _, stamp := range []string{"20240101-000000", "20240201-000000", "20240301-000000"} {
		old := d.Path + ".backup-" + stamp + "-deadbeef"
		require.NoError(t, os.MkdirAll(old, 0o755))
	}

	_, err := d.Backup(2)
	require.NoError(t, err)

	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	backups := 0
	for _, e := range entries {
		if e.IsDir() && e.Name() != "session" {
			backups++
		}
	}
	assert.Equal(t, 2, backups, "prune keeps only the newest backups")

	// The oldest seeded backup must be the one that went first.
	_, err = os.Stat(d.Path + ".backup-20240101-000000-deadbeef")
	assert.True(t, os.IsNotExist(err))
}
