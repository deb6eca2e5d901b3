package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalImageStoreSave(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalImageStore(dir, "http://localhost:8080/media/")
	require.NoError(t, err)

	data := []byte{0x52, 0x49, 0x46, 0x46}
	url, err := store.Save("references", data, "webp")
	require.NoError(t, err)

	datePath := time.Now().UTC().Format("2006/01/02")
	prefix := "http://localhost:8080/media/references/" + datePath + "/"
	require.True(t, strings.HasPrefix(url, prefix), "got %s", url)
	assert.True(t, strings.HasSuffix(url, ".webp"))

	rel := strings.TrimPrefix(url, "http://localhost:8080/media/")
	written, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, data, written)
}

func TestLocalImageStoreDefaultExtension(t *testing.T) {
	store, err := NewLocalImageStore(t.TempDir(), "http://localhost:8080/media")
	require.NoError(t, err)

	url, err := store.Save("captures", []byte{0x01}, "")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(url, ".webp"))

	url, err = store.Save("captures", []byte{0x01}, ".jpg")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(url, ".jpg"))
}

func TestLocalImageStoreUniqueNames(t *testing.T) {
	store, err := NewLocalImageStore(t.TempDir(), "http://localhost:8080/media")
	require.NoError(t, err)

	first, err := store.Save("captures", []byte{0x01}, "webp")
	require.NoError(t, err)
	second, err := store.Save("captures", []byte{0x01}, "webp")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}
