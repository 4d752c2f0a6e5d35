// Package local_test tests the local filesystem blob store.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/companyloc-platform/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("MissingDirIsCreatedLazily", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "logs", "ingest")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.Equal(t, dir, store.Dir())
		_, err = os.Stat(dir)
		assert.True(t, os.IsNotExist(err))
	})
	t.Run("EmptyBaseDir", func(t *testing.T) {
		t.Parallel()
		_, err := local.New(local.Config{BaseDir: " "})
		assert.Error(t, err)
	})
	t.Run("BaseDirIsAFile", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "reports")
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "weekly_ingest_20240610T000000Z.json", "application/json",
		strings.NewReader(`{"ok":1}`))
	require.NoError(t, err)
	want := filepath.Join(dir, "weekly_ingest_20240610T000000Z.json")
	assert.Equal(t, "file://"+want, uri)

	body, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":1}`, string(body))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPutObjectRejectsEscapes(t *testing.T) {
	t.Parallel()

	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../outside.json", "", strings.NewReader("x"))
	require.Error(t, err)
	_, err = store.PutObject(context.Background(), "", "", strings.NewReader("x"))
	require.Error(t, err)
}
