// Package storagetest provides an in-memory storage.Backend used by
// registry and engine tests.
package storagetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mwantia/gostow/pkg/storage"
)

type object struct {
	data       []byte
	mimeType   string
	visibility storage.Visibility
	modified   time.Time
}

// Memory is a thread-safe in-memory backend with failure injection and
// call counters.
type Memory struct {
	mu      sync.Mutex
	objects map[string]object

	backendType storage.BackendType

	// FailWrites / FailReads force every call of that kind to fail with
	// a transport error.
	FailWrites bool
	FailReads  bool
	// Unreachable makes TestConnection report false and Exists fail.
	Unreachable bool

	WriteCalls  int
	DeleteCalls int
	ReadCalls   int
}

// NewMemory returns an empty backend reporting the given type.
func NewMemory(t storage.BackendType) *Memory {
	return &Memory{
		objects:     make(map[string]object),
		backendType: t,
	}
}

// Seed stores content directly, bypassing counters and injected failures.
func (m *Memory) Seed(path, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = object{data: []byte(content), modified: time.Now()}
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func (m *Memory) Write(_ context.Context, path string, content io.Reader, opts storage.WriteOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WriteCalls++
	if m.FailWrites {
		return fmt.Errorf("injected write failure: %w", storage.ErrTransportFailure)
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("read content: %w", err)
	}
	m.objects[path] = object{
		data:       data,
		mimeType:   opts.MimeType,
		visibility: opts.Visibility,
		modified:   time.Now(),
	}
	return nil
}

func (m *Memory) Read(ctx context.Context, path string) ([]byte, error) {
	rc, err := m.ReadStream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (m *Memory) ReadStream(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadCalls++
	if m.FailReads {
		return nil, fmt.Errorf("injected read failure: %w", storage.ErrTransportFailure)
	}
	obj, ok := m.objects[path]
	if !ok {
		return nil, storage.NotFoundf("memory object %q", path)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *Memory) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	if m.FailWrites {
		return fmt.Errorf("injected delete failure: %w", storage.ErrTransportFailure)
	}
	delete(m.objects, path)
	return nil
}

func (m *Memory) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unreachable {
		return false, fmt.Errorf("injected outage: %w", storage.ErrTransportFailure)
	}
	_, ok := m.objects[path]
	return ok, nil
}

func (m *Memory) Copy(ctx context.Context, from, to string) error {
	data, err := m.Read(ctx, from)
	if err != nil {
		return err
	}
	return m.Write(ctx, to, bytes.NewReader(data), storage.WriteOptions{})
}

func (m *Memory) Move(ctx context.Context, from, to string) error {
	if err := m.Copy(ctx, from, to); err != nil {
		return err
	}
	return m.Delete(ctx, from)
}

func (m *Memory) GetURL(_ context.Context, path string, _ time.Duration) (string, error) {
	return fmt.Sprintf("memory://%s/%s", m.backendType, path), nil
}

func (m *Memory) GetMetadata(_ context.Context, path string) (*storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[path]
	if !ok {
		return nil, storage.NotFoundf("memory object %q", path)
	}
	return &storage.ObjectInfo{
		Path:         path,
		Size:         int64(len(obj.data)),
		MimeType:     obj.mimeType,
		LastModified: obj.modified,
		Visibility:   obj.visibility,
	}, nil
}

func (m *Memory) GetSize(ctx context.Context, path string) (int64, error) {
	info, err := m.GetMetadata(ctx, path)
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

func (m *Memory) GetMimeType(ctx context.Context, path string) (string, error) {
	info, err := m.GetMetadata(ctx, path)
	if err != nil {
		return "", err
	}
	return info.MimeType, nil
}

func (m *Memory) ListContents(_ context.Context, prefix string, recursive bool) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var out []string
	for path := range m.objects {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		if !recursive && strings.Contains(path[len(prefix):], "/") {
			continue
		}
		out = append(out, path)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) TestConnection(_ context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.Unreachable
}

func (m *Memory) Type() storage.BackendType {
	return m.backendType
}

func (m *Memory) Config() map[string]string {
	return map[string]string{"type": string(m.backendType)}
}
