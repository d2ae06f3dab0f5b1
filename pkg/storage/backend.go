// Package storage defines the Backend contract implemented by every
// storage adapter (local disk, S3, Spaces, GCS, Azure Blob) and the
// closed error taxonomy shared by all of them.
package storage

import (
	"context"
	"io"
	"time"
)

// Visibility classifies who may fetch an object without a signed URL.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// MaxSignedURLTTL caps time-limited URLs. Requests above the cap are
// clamped, never rejected.
const MaxSignedURLTTL = 24 * time.Hour

// WriteOptions carries per-object settings for Write.
type WriteOptions struct {
	MimeType   string
	Visibility Visibility
	Metadata   map[string]string
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Path         string
	Size         int64
	MimeType     string
	LastModified time.Time
	Visibility   Visibility
	// ProviderMetadata holds backend-specific attributes (etag, storage
	// class) and is advisory only.
	ProviderMetadata map[string]string
}

// Backend is the uniform contract over a concrete storage provider.
// All paths are backend-relative keys using forward slashes.
//
// Error policy: every operation except Exists and TestConnection reports
// failure through the typed errors in this package (NotFound, AuthFailure,
// TransportFailure, InvalidConfig, PathSecurity). Exists never fails on
// absence, only on transport or auth problems. TestConnection never fails
// at all; it swallows everything into the returned bool.
type Backend interface {
	// Write creates or overwrites the object at path. Implementations
	// must accept arbitrary readers and should avoid buffering the whole
	// payload when the provider allows streaming uploads.
	Write(ctx context.Context, path string, content io.Reader, opts WriteOptions) error

	// Read returns the full object content.
	Read(ctx context.Context, path string) ([]byte, error)

	// ReadStream returns the object as a stream. Caller closes it.
	ReadStream(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the object. Deleting an absent object is not an
	// error; delete is idempotent.
	Delete(ctx context.Context, path string) error

	// Exists reports whether an object is present at path.
	Exists(ctx context.Context, path string) (bool, error)

	// Copy duplicates an object within the backend.
	Copy(ctx context.Context, from, to string) error

	// Move relocates an object within the backend. Backends without a
	// native move copy first and delete the source only after the copy
	// is confirmed written.
	Move(ctx context.Context, from, to string) error

	// GetURL returns a URL for the object. ttl == 0 requests a permanent
	// public URL, valid only for public objects; for private objects the
	// backend falls back to a signed URL at the maximum TTL. ttl > 0
	// requests a signed URL, clamped to MaxSignedURLTTL. The local
	// backend ignores ttl and returns a direct URL.
	GetURL(ctx context.Context, path string, ttl time.Duration) (string, error)

	// GetMetadata returns object attributes, NotFound if absent.
	GetMetadata(ctx context.Context, path string) (*ObjectInfo, error)

	// GetSize returns the object size in bytes, NotFound if absent.
	GetSize(ctx context.Context, path string) (int64, error)

	// GetMimeType returns the stored content type, NotFound if absent.
	GetMimeType(ctx context.Context, path string) (string, error)

	// ListContents returns relative paths under prefix. When recursive
	// is false, entries nested more than one path segment below prefix
	// are not returned (delimiter-based listing on flat stores).
	ListContents(ctx context.Context, prefix string, recursive bool) ([]string, error)

	// TestConnection probes the backend. Never returns an error.
	TestConnection(ctx context.Context) bool

	// Type returns the backend type token ("local", "s3", ...).
	Type() BackendType

	// Config returns the backend configuration with every
	// credential-bearing field masked.
	Config() map[string]string
}

// BackendType identifies a storage provider family.
type BackendType string

const (
	TypeLocal  BackendType = "local"
	TypeS3     BackendType = "s3"
	TypeGCS    BackendType = "gcs"
	TypeAzure  BackendType = "azure"
	TypeSpaces BackendType = "spaces"
)

// Valid reports whether t is a known backend type.
func (t BackendType) Valid() bool {
	switch t {
	case TypeLocal, TypeS3, TypeGCS, TypeAzure, TypeSpaces:
		return true
	}
	return false
}

// MaskSecret redacts a credential value for Config output, keeping the
// first four characters as an operator hint.
func MaskSecret(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 4 {
		return "****"
	}
	return v[:4] + "****"
}

// ClampTTL applies the signed-URL cap. Zero stays zero; callers decide
// what zero means per the GetURL contract.
func ClampTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	if ttl > MaxSignedURLTTL {
		return MaxSignedURLTTL
	}
	return ttl
}
