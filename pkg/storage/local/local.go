// Package local implements the storage backend for the local filesystem.
package local

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mwantia/gostow/pkg/pathgen"
	"github.com/mwantia/gostow/pkg/storage"
)

// Config holds local backend settings.
type Config struct {
	// Root is the directory all keys are resolved under.
	Root string
	// BaseURL prefixes direct URLs returned by GetURL. Optional.
	BaseURL string
}

// Backend stores objects under a root directory. Logical keys use
// forward slashes; the OS separator is applied on resolution. Writes go
// through a temp file plus rename so readers never observe partial
// content.
type Backend struct {
	root    string
	baseURL string
}

// New creates a local backend rooted at cfg.Root, creating the
// directory if needed.
func New(cfg Config) (*Backend, error) {
	if cfg.Root == "" {
		return nil, storage.InvalidConfigf("local backend requires a root directory")
	}
	if err := os.MkdirAll(cfg.Root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root %q: %w", cfg.Root, err)
	}
	absRoot, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	return &Backend{root: absRoot, baseURL: strings.TrimRight(cfg.BaseURL, "/")}, nil
}

// abs resolves a logical key to a filesystem path, rejecting anything
// that validates unsafe or escapes the root.
func (b *Backend) abs(path string) (string, error) {
	if err := pathgen.ValidatePath(path); err != nil {
		return "", err
	}
	joined := filepath.Join(b.root, filepath.Clean(filepath.FromSlash(path)))
	rel, err := filepath.Rel(b.root, joined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", storage.PathSecurityf("path %q escapes storage root", path)
	}
	return joined, nil
}

func (b *Backend) Write(_ context.Context, path string, content io.Reader, _ storage.WriteOptions) error {
	dest, err := b.abs(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("mkdir %q: %w", filepath.Dir(dest), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".gostow-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %q: %w", path, err)
	}
	tmpName := tmp.Name()

	_, werr := io.Copy(tmp, content)
	cerr := tmp.Close()
	if werr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("stream write %q: %w", path, werr)
	}
	if cerr != nil {
		os.Remove(tmpName)
		return fmt.Errorf("flush %q: %w", path, cerr)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename to %q: %w", path, err)
	}
	return nil
}

func (b *Backend) Read(ctx context.Context, path string) ([]byte, error) {
	rc, err := b.ReadStream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (b *Backend) ReadStream(_ context.Context, path string) (io.ReadCloser, error) {
	abs, err := b.abs(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.NotFoundf("local object %q", path)
		}
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	return f, nil
}

// Delete removes the object. Absent objects succeed silently.
func (b *Backend) Delete(_ context.Context, path string) error {
	abs, err := b.abs(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %q: %w", path, err)
	}
	return nil
}

func (b *Backend) Exists(_ context.Context, path string) (bool, error) {
	abs, err := b.abs(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(abs)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %q: %w", path, err)
	}
	return true, nil
}

func (b *Backend) Copy(ctx context.Context, from, to string) error {
	src, err := b.ReadStream(ctx, from)
	if err != nil {
		return err
	}
	defer src.Close()
	return b.Write(ctx, to, src, storage.WriteOptions{})
}

// Move renames where possible; the rename is atomic on the same volume.
func (b *Backend) Move(ctx context.Context, from, to string) error {
	absFrom, err := b.abs(from)
	if err != nil {
		return err
	}
	absTo, err := b.abs(to)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(absTo), 0o750); err != nil {
		return fmt.Errorf("mkdir for %q: %w", to, err)
	}
	if err := os.Rename(absFrom, absTo); err == nil {
		return nil
	}
	// Cross-device fallback: copy first, drop the source only once the
	// copy is confirmed.
	if err := b.Copy(ctx, from, to); err != nil {
		return err
	}
	return b.Delete(ctx, from)
}

// GetURL ignores ttl and returns a direct URL under the configured base.
func (b *Backend) GetURL(_ context.Context, path string, _ time.Duration) (string, error) {
	if err := pathgen.ValidatePath(path); err != nil {
		return "", err
	}
	if b.baseURL == "" {
		return "file://" + filepath.ToSlash(filepath.Join(b.root, filepath.FromSlash(path))), nil
	}
	return b.baseURL + "/" + path, nil
}

func (b *Backend) GetMetadata(_ context.Context, path string) (*storage.ObjectInfo, error) {
	abs, err := b.abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if os.IsNotExist(err) {
		return nil, storage.NotFoundf("local object %q", path)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", path, err)
	}
	return &storage.ObjectInfo{
		Path:         path,
		Size:         info.Size(),
		MimeType:     mime.TypeByExtension(filepath.Ext(abs)),
		LastModified: info.ModTime(),
		Visibility:   storage.VisibilityPrivate,
	}, nil
}

func (b *Backend) GetSize(ctx context.Context, path string) (int64, error) {
	info, err := b.GetMetadata(ctx, path)
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

func (b *Backend) GetMimeType(ctx context.Context, path string) (string, error) {
	info, err := b.GetMetadata(ctx, path)
	if err != nil {
		return "", err
	}
	return info.MimeType, nil
}

func (b *Backend) ListContents(_ context.Context, prefix string, recursive bool) ([]string, error) {
	base := b.root
	if prefix != "" {
		abs, err := b.abs(prefix)
		if err != nil {
			return nil, err
		}
		base = abs
	}

	var out []string
	if recursive {
		err := filepath.WalkDir(base, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(b.root, p)
			if err != nil {
				return err
			}
			out = append(out, filepath.ToSlash(rel))
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %q: %w", prefix, err)
		}
	} else {
		entries, err := os.ReadDir(base)
		if err != nil {
			if os.IsNotExist(err) {
				return []string{}, nil
			}
			return nil, fmt.Errorf("list %q: %w", prefix, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			rel, err := filepath.Rel(b.root, filepath.Join(base, e.Name()))
			if err != nil {
				return nil, err
			}
			out = append(out, filepath.ToSlash(rel))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (b *Backend) TestConnection(_ context.Context) bool {
	info, err := os.Stat(b.root)
	return err == nil && info.IsDir()
}

func (b *Backend) Type() storage.BackendType {
	return storage.TypeLocal
}

// Config exposes the non-secret settings; local storage has no
// credentials to mask.
func (b *Backend) Config() map[string]string {
	return map[string]string{
		"root":     b.root,
		"base_url": b.baseURL,
	}
}
