package local

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwantia/gostow/pkg/storage"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(Config{Root: t.TempDir()})
	require.NoError(t, err)
	return b
}

func TestWriteReadRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	content := []byte("round trip payload")

	require.NoError(t, b.Write(ctx, "docs/2026/note.txt", bytes.NewReader(content), storage.WriteOptions{}))

	got, err := b.Read(ctx, "docs/2026/note.txt")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	rc, err := b.ReadStream(ctx, "docs/2026/note.txt")
	require.NoError(t, err)
	streamed, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, content, streamed)
}

func TestExistsLifecycle(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	ok, err := b.Exists(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Write(ctx, "a/b.txt", strings.NewReader("x"), storage.WriteOptions{}))
	ok, err = b.Exists(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, b.Delete(ctx, "a/b.txt"))
	ok, err = b.Exists(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteIdempotent(t *testing.T) {
	b := newTestBackend(t)
	assert.NoError(t, b.Delete(context.Background(), "never/existed.bin"))
}

func TestReadMissingIsNotFound(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.Read(context.Background(), "missing.txt")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = b.GetMetadata(context.Background(), "missing.txt")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = b.GetSize(context.Background(), "missing.txt")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUnsafePathsRejected(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	for _, p := range []string{"../escape.txt", "/abs.txt", "a/../../b.txt", "nul\x00l"} {
		err := b.Write(ctx, p, strings.NewReader("x"), storage.WriteOptions{})
		assert.ErrorIs(t, err, storage.ErrPathSecurity, p)

		_, err = b.Read(ctx, p)
		assert.ErrorIs(t, err, storage.ErrPathSecurity, p)

		err = b.Delete(ctx, p)
		assert.ErrorIs(t, err, storage.ErrPathSecurity, p)
	}
}

func TestCopyAndMove(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Write(ctx, "src/file.txt", strings.NewReader("payload"), storage.WriteOptions{}))

	require.NoError(t, b.Copy(ctx, "src/file.txt", "dst/copy.txt"))
	got, err := b.Read(ctx, "dst/copy.txt")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))

	ok, _ := b.Exists(ctx, "src/file.txt")
	assert.True(t, ok, "copy must keep the source")

	require.NoError(t, b.Move(ctx, "src/file.txt", "dst/moved.txt"))
	ok, _ = b.Exists(ctx, "src/file.txt")
	assert.False(t, ok)
	ok, _ = b.Exists(ctx, "dst/moved.txt")
	assert.True(t, ok)
}

func TestListContents(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	for _, p := range []string{"top.txt", "dir/one.txt", "dir/sub/two.txt"} {
		require.NoError(t, b.Write(ctx, p, strings.NewReader("x"), storage.WriteOptions{}))
	}

	flat, err := b.ListContents(ctx, "dir", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"dir/one.txt"}, flat, "non-recursive listing must not descend")

	all, err := b.ListContents(ctx, "dir", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"dir/one.txt", "dir/sub/two.txt"}, all)
}

func TestGetURL(t *testing.T) {
	b, err := New(Config{Root: t.TempDir(), BaseURL: "https://cdn.example.com/files/"})
	require.NoError(t, err)

	u, err := b.GetURL(context.Background(), "a/b.png", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/files/a/b.png", u)
}

func TestTestConnection(t *testing.T) {
	b := newTestBackend(t)
	assert.True(t, b.TestConnection(context.Background()))
}
