// Package gcs implements the storage backend for Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/mwantia/gostow/pkg/storage"
)

// Config holds GCS connection parameters.
type Config struct {
	ProjectID string
	Bucket    string
	// CredentialsJSON is the raw service-account key. Empty falls back
	// to application default credentials.
	CredentialsJSON string
	Prefix          string
	PublicBaseURL   string
}

// Backend implements storage.Backend against a GCS bucket.
type Backend struct {
	cfg    Config
	client *gcstorage.Client
}

// New builds the client from cfg. Signed URLs require a service-account
// key, either via CredentialsJSON or ambient credentials.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, storage.InvalidConfigf("gcs backend requires a bucket")
	}

	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}

	client, err := gcstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, storage.InvalidConfigf("init gcs client: %v", err)
	}
	return &Backend{cfg: cfg, client: client}, nil
}

func (b *Backend) key(path string) string {
	if b.cfg.Prefix == "" {
		return path
	}
	return strings.TrimSuffix(b.cfg.Prefix, "/") + "/" + path
}

func (b *Backend) object(path string) *gcstorage.ObjectHandle {
	return b.client.Bucket(b.cfg.Bucket).Object(b.key(path))
}

func translate(err error, path string) error {
	if errors.Is(err, gcstorage.ErrObjectNotExist) {
		return storage.NotFoundf("gcs object %q", path)
	}
	if errors.Is(err, gcstorage.ErrBucketNotExist) {
		return storage.InvalidConfigf("gcs bucket missing: %v", err)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return storage.NotFoundf("gcs object %q", path)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("gcs %q: status %d: %w", path, apiErr.Code, storage.ErrAuthFailure)
		}
	}
	return fmt.Errorf("gcs %q: %v: %w", path, err, storage.ErrTransportFailure)
}

func (b *Backend) Write(ctx context.Context, path string, content io.Reader, opts storage.WriteOptions) error {
	w := b.object(path).NewWriter(ctx)
	w.ContentType = opts.MimeType
	if len(opts.Metadata) > 0 {
		w.Metadata = opts.Metadata
	}
	if opts.Visibility == storage.VisibilityPublic {
		w.PredefinedACL = "publicRead"
	}

	if _, err := io.Copy(w, content); err != nil {
		w.Close()
		return translate(err, path)
	}
	if err := w.Close(); err != nil {
		return translate(err, path)
	}
	return nil
}

func (b *Backend) Read(ctx context.Context, path string) ([]byte, error) {
	rc, err := b.ReadStream(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, rc); err != nil {
		return nil, translate(err, path)
	}
	return buf.Bytes(), nil
}

func (b *Backend) ReadStream(ctx context.Context, path string) (io.ReadCloser, error) {
	r, err := b.object(path).NewReader(ctx)
	if err != nil {
		return nil, translate(err, path)
	}
	return r, nil
}

func (b *Backend) Delete(ctx context.Context, path string) error {
	err := b.object(path).Delete(ctx)
	if err != nil && !errors.Is(err, gcstorage.ErrObjectNotExist) {
		return translate(err, path)
	}
	return nil
}

func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	_, err := b.object(path).Attrs(ctx)
	if err != nil {
		terr := translate(err, path)
		if storage.IsNotFound(terr) {
			return false, nil
		}
		return false, terr
	}
	return true, nil
}

func (b *Backend) Copy(ctx context.Context, from, to string) error {
	src := b.object(from)
	if _, err := b.object(to).CopierFrom(src).Run(ctx); err != nil {
		return translate(err, from)
	}
	return nil
}

func (b *Backend) Move(ctx context.Context, from, to string) error {
	if err := b.Copy(ctx, from, to); err != nil {
		return err
	}
	return b.Delete(ctx, from)
}

func (b *Backend) GetURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		if b.cfg.PublicBaseURL != "" {
			return strings.TrimRight(b.cfg.PublicBaseURL, "/") + "/" + b.key(path), nil
		}
		ttl = storage.MaxSignedURLTTL
	}

	u, err := b.client.Bucket(b.cfg.Bucket).SignedURL(b.key(path), &gcstorage.SignedURLOptions{
		Scheme:  gcstorage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(storage.ClampTTL(ttl)),
	})
	if err != nil {
		return "", translate(err, path)
	}
	return u, nil
}

func (b *Backend) GetMetadata(ctx context.Context, path string) (*storage.ObjectInfo, error) {
	attrs, err := b.object(path).Attrs(ctx)
	if err != nil {
		return nil, translate(err, path)
	}
	return &storage.ObjectInfo{
		Path:             path,
		Size:             attrs.Size,
		MimeType:         attrs.ContentType,
		LastModified:     attrs.Updated,
		Visibility:       storage.VisibilityPrivate,
		ProviderMetadata: map[string]string{"etag": attrs.Etag},
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

func (b *Backend) ListContents(ctx context.Context, prefix string, recursive bool) ([]string, error) {
	keyPrefix := b.key(prefix)
	if keyPrefix != "" && !strings.HasSuffix(keyPrefix, "/") {
		keyPrefix += "/"
	}

	query := &gcstorage.Query{Prefix: keyPrefix}
	if !recursive {
		query.Delimiter = "/"
	}

	strip := ""
	if b.cfg.Prefix != "" {
		strip = strings.TrimSuffix(b.cfg.Prefix, "/") + "/"
	}

	var out []string
	it := b.client.Bucket(b.cfg.Bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, translate(err, prefix)
		}
		// Synthetic prefixes have an empty Name.
		if attrs.Name == "" {
			continue
		}
		out = append(out, strings.TrimPrefix(attrs.Name, strip))
	}
	return out, nil
}

func (b *Backend) TestConnection(ctx context.Context) bool {
	_, err := b.client.Bucket(b.cfg.Bucket).Attrs(ctx)
	return err == nil
}

func (b *Backend) Type() storage.BackendType {
	return storage.TypeGCS
}

func (b *Backend) Config() map[string]string {
	creds := ""
	if b.cfg.CredentialsJSON != "" {
		creds = "****"
	}
	return map[string]string{
		"project_id":  b.cfg.ProjectID,
		"bucket":      b.cfg.Bucket,
		"prefix":      b.cfg.Prefix,
		"credentials": creds,
	}
}
