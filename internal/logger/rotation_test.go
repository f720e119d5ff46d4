package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRotatingWriter(t *testing.T) {
	t.Run("should create parent directories", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "subdir", "scan.log")

		rw, err := NewRotatingWriter(logFile, 10, 7, false)
		require.NoError(t, err)
		defer rw.Close()

		_, err = os.Stat(logFile)
		assert.NoError(t, err)
	})
}

func TestRotatingWriter_Write(t *testing.T) {
	t.Run("should rotate once the size limit is crossed", func(t *testing.T) {
		dir := t.TempDir()
		logFile := filepath.Join(dir, "scan.log")

		rw, err := NewRotatingWriter(logFile, 1, 0, false)
		require.NoError(t, err)
		defer rw.Close()

		chunk := []byte(strings.Repeat("x", 600*1024))
		_, err = rw.Write(chunk)
		require.NoError(t, err)
		_, err = rw.Write(chunk)
		require.NoError(t, err)

		rotated, err := filepath.Glob(logFile + ".*")
		require.NoError(t, err)
		assert.Len(t, rotated, 1)

		info, err := os.Stat(logFile)
		require.NoError(t, err)
		assert.Equal(t, int64(len(chunk)), info.Size())
	})

	t.Run("should be safe to close twice", func(t *testing.T) {
		rw, err := NewRotatingWriter(filepath.Join(t.TempDir(), "a.log"), 1, 0, false)
		require.NoError(t, err)
		require.NoError(t, rw.Close())
		assert.NoError(t, rw.Close())
	})
}

func TestRotatingWriter_Prune(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "scan.log")
	old := logFile + ".20200101-000000.000"
	fresh := logFile + ".20990101-000000.000"
	require.NoError(t, os.WriteFile(old, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("new"), 0o644))

	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, past, past))

	rw := &RotatingWriter{filename: logFile, maxAge: 7}
	rw.prune(time.Now())

	_, err := os.Stat(old)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(fresh)
	assert.NoError(t, err)
}
