// Package s3 implements the storage backend for AWS S3 using the
// aws-sdk-go-v2 client. A custom endpoint may be set for S3-compatible
// services that speak the AWS signing protocol.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/mwantia/gostow/pkg/storage"
)

// Config holds S3 connection parameters, typically loaded from an
// active BackendConfig row.
type Config struct {
	Region       string
	Bucket       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	// Prefix is prepended to every key, letting one bucket host several
	// configurations.
	Prefix string
	// PublicBaseURL, when set, is used for permanent URLs of public
	// objects (usually a CDN in front of the bucket).
	PublicBaseURL string
}

// Backend implements storage.Backend against an S3 bucket.
type Backend struct {
	cfg     Config
	client  *awss3.Client
	presign *awss3.PresignClient
}

// New builds the client and presigner from cfg. No network call is
// made; use TestConnection to probe.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, storage.InvalidConfigf("s3 backend requires a bucket")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, storage.InvalidConfigf("s3 backend requires credentials")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "",
		)))
	if err != nil {
		return nil, storage.InvalidConfigf("load aws config: %v", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Backend{
		cfg:     cfg,
		client:  client,
		presign: awss3.NewPresignClient(client),
	}, nil
}

func (b *Backend) key(path string) string {
	if b.cfg.Prefix == "" {
		return path
	}
	return strings.TrimSuffix(b.cfg.Prefix, "/") + "/" + path
}

// translate maps SDK failures onto the closed storage taxonomy so no
// provider error shape leaks above the adapter.
func translate(err error, path string) error {
	var noKey *types.NoSuchKey
	var noBucket *types.NoSuchBucket
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return storage.NotFoundf("s3 object %q", path)
	}
	if errors.As(err, &noBucket) {
		return storage.InvalidConfigf("s3 bucket missing: %v", err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return storage.NotFoundf("s3 object %q", path)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return fmt.Errorf("s3 %q: %s: %w", path, apiErr.ErrorCode(), storage.ErrAuthFailure)
		}
	}
	return fmt.Errorf("s3 %q: %v: %w", path, err, storage.ErrTransportFailure)
}

func (b *Backend) Write(ctx context.Context, path string, content io.Reader, opts storage.WriteOptions) error {
	input := &awss3.PutObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(path)),
		Body:   content,
	}
	if opts.MimeType != "" {
		input.ContentType = aws.String(opts.MimeType)
	}
	if opts.Visibility == storage.VisibilityPublic {
		input.ACL = types.ObjectCannedACLPublicRead
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = opts.Metadata
	}

	if _, err := b.client.PutObject(ctx, input); err != nil {
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
	out, err := b.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(path)),
	})
	if err != nil {
		return nil, translate(err, path)
	}
	return out.Body, nil
}

// Delete is idempotent; S3 reports success for absent keys.
func (b *Backend) Delete(ctx context.Context, path string) error {
	_, err := b.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(path)),
	})
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
	_, err := b.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(path)),
	})
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
	_, err := b.client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:     aws.String(b.cfg.Bucket),
		Key:        aws.String(b.key(to)),
		CopySource: aws.String(b.cfg.Bucket + "/" + b.key(from)),
	})
	if err != nil {
		return translate(err, from)
	}
	return nil
}

// Move copies then deletes; the source is only removed after the copy
// succeeded.
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
		// No public URL available; fall back to the longest allowed
		// signed URL.
		ttl = storage.MaxSignedURLTTL
	}

	req, err := b.presign.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(path)),
	}, awss3.WithPresignExpires(storage.ClampTTL(ttl)))
	if err != nil {
		return "", translate(err, path)
	}
	return req.URL, nil
}

func (b *Backend) GetMetadata(ctx context.Context, path string) (*storage.ObjectInfo, error) {
	out, err := b.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(b.key(path)),
	})
	if err != nil {
		return nil, translate(err, path)
	}

	info := &storage.ObjectInfo{
		Path:             path,
		Size:             aws.ToInt64(out.ContentLength),
		MimeType:         aws.ToString(out.ContentType),
		Visibility:       storage.VisibilityPrivate,
		ProviderMetadata: map[string]string{"etag": aws.ToString(out.ETag)},
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, nil
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

	input := &awss3.ListObjectsV2Input{
		Bucket: aws.String(b.cfg.Bucket),
		Prefix: aws.String(keyPrefix),
	}
	if !recursive {
		input.Delimiter = aws.String("/")
	}

	strip := ""
	if b.cfg.Prefix != "" {
		strip = strings.TrimSuffix(b.cfg.Prefix, "/") + "/"
	}

	var out []string
	paginator := awss3.NewListObjectsV2Paginator(b.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, translate(err, prefix)
		}
		for _, obj := range page.Contents {
			out = append(out, strings.TrimPrefix(aws.ToString(obj.Key), strip))
		}
	}
	return out, nil
}

func (b *Backend) TestConnection(ctx context.Context) bool {
	_, err := b.client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(b.cfg.Bucket),
	})
	return err == nil
}

func (b *Backend) Type() storage.BackendType {
	return storage.TypeS3
}

func (b *Backend) Config() map[string]string {
	return map[string]string{
		"region":     b.cfg.Region,
		"bucket":     b.cfg.Bucket,
		"endpoint":   b.cfg.Endpoint,
		"prefix":     b.cfg.Prefix,
		"access_key": storage.MaskSecret(b.cfg.AccessKey),
		"secret_key": storage.MaskSecret(b.cfg.SecretKey),
	}
}
