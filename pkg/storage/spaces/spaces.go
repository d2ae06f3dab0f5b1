// Package spaces implements the storage backend for DigitalOcean Spaces
// and other plain S3-compatible endpoints through the MinIO client,
// which is endpoint-first and skips the AWS configuration chain.
package spaces

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mwantia/gostow/pkg/storage"
)

// Config holds Spaces connection parameters.
type Config struct {
	// Endpoint is the bare host, e.g. "nyc3.digitaloceanspaces.com".
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
	// CDNBaseURL, when set, serves permanent URLs for public objects.
	CDNBaseURL string
}

// Backend implements storage.Backend over a minio client.
type Backend struct {
	cfg    Config
	client *minio.Client
}

// New builds the client from cfg without probing the endpoint.
func New(cfg Config) (*Backend, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, storage.InvalidConfigf("spaces backend requires endpoint and bucket")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, storage.InvalidConfigf("spaces backend requires credentials")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, storage.InvalidConfigf("init spaces client: %v", err)
	}
	return &Backend{cfg: cfg, client: client}, nil
}

func (b *Backend) key(path string) string {
	if b.cfg.Prefix == "" {
		return path
	}
	return strings.TrimSuffix(b.cfg.Prefix, "/") + "/" + path
}

func translate(err error, path string) error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "NoSuchKey", "NoSuchObject", "NotFound":
			return storage.NotFoundf("spaces object %q", path)
		case "NoSuchBucket":
			return storage.InvalidConfigf("spaces bucket missing: %v", err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("spaces %q: %s: %w", path, resp.Code, storage.ErrAuthFailure)
		}
	}
	return fmt.Errorf("spaces %q: %v: %w", path, err, storage.ErrTransportFailure)
}

func (b *Backend) Write(ctx context.Context, path string, content io.Reader, opts storage.WriteOptions) error {
	putOpts := minio.PutObjectOptions{
		ContentType:  opts.MimeType,
		UserMetadata: opts.Metadata,
	}
	if opts.Visibility == storage.VisibilityPublic {
		if putOpts.UserMetadata == nil {
			putOpts.UserMetadata = map[string]string{}
		}
		putOpts.UserMetadata["x-amz-acl"] = "public-read"
	}

	// Size -1 streams with multipart upload instead of buffering.
	if _, err := b.client.PutObject(ctx, b.cfg.Bucket, b.key(path), content, -1, putOpts); err != nil {
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
	obj, err := b.client.GetObject(ctx, b.cfg.Bucket, b.key(path), minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err, path)
	}
	// GetObject is lazy; stat now so absence surfaces here instead of
	// on the first read.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, translate(err, path)
	}
	return obj, nil
}

func (b *Backend) Delete(ctx context.Context, path string) error {
	err := b.client.RemoveObject(ctx, b.cfg.Bucket, b.key(path), minio.RemoveObjectOptions{})
	if err != nil {
		terr := translate(err, path)
		if storage.IsNotFound(terr) {
			return nil
		}
		return terr
	}
	return nil
}

func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	_, err := b.client.StatObject(ctx, b.cfg.Bucket, b.key(path), minio.StatObjectOptions{})
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
	_, err := b.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: b.cfg.Bucket, Object: b.key(to)},
		minio.CopySrcOptions{Bucket: b.cfg.Bucket, Object: b.key(from)},
	)
	if err != nil {
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
		if b.cfg.CDNBaseURL != "" {
			return strings.TrimRight(b.cfg.CDNBaseURL, "/") + "/" + b.key(path), nil
		}
		ttl = storage.MaxSignedURLTTL
	}

	u, err := b.client.PresignedGetObject(ctx, b.cfg.Bucket, b.key(path), storage.ClampTTL(ttl), url.Values{})
	if err != nil {
		return "", translate(err, path)
	}
	return u.String(), nil
}

func (b *Backend) GetMetadata(ctx context.Context, path string) (*storage.ObjectInfo, error) {
	stat, err := b.client.StatObject(ctx, b.cfg.Bucket, b.key(path), minio.StatObjectOptions{})
	if err != nil {
		return nil, translate(err, path)
	}
	return &storage.ObjectInfo{
		Path:             path,
		Size:             stat.Size,
		MimeType:         stat.ContentType,
		LastModified:     stat.LastModified,
		Visibility:       storage.VisibilityPrivate,
		ProviderMetadata: map[string]string{"etag": stat.ETag},
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

	strip := ""
	if b.cfg.Prefix != "" {
		strip = strings.TrimSuffix(b.cfg.Prefix, "/") + "/"
	}

	var out []string
	for obj := range b.client.ListObjects(ctx, b.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:    keyPrefix,
		Recursive: recursive,
	}) {
		if obj.Err != nil {
			return nil, translate(obj.Err, prefix)
		}
		// Delimiter listings report common prefixes as keys with a
		// trailing slash; those are pseudo-directories, not objects.
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		out = append(out, strings.TrimPrefix(obj.Key, strip))
	}
	return out, nil
}

func (b *Backend) TestConnection(ctx context.Context) bool {
	ok, err := b.client.BucketExists(ctx, b.cfg.Bucket)
	return err == nil && ok
}

func (b *Backend) Type() storage.BackendType {
	return storage.TypeSpaces
}

func (b *Backend) Config() map[string]string {
	return map[string]string{
		"endpoint":   b.cfg.Endpoint,
		"region":     b.cfg.Region,
		"bucket":     b.cfg.Bucket,
		"prefix":     b.cfg.Prefix,
		"use_ssl":    fmt.Sprintf("%t", b.cfg.UseSSL),
		"access_key": storage.MaskSecret(b.cfg.AccessKey),
		"secret_key": storage.MaskSecret(b.cfg.SecretKey),
	}
}
