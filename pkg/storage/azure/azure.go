// Package azure implements the storage backend for Azure Blob Storage.
package azure

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/mwantia/gostow/pkg/storage"
)

// Config holds Azure Blob connection parameters.
type Config struct {
	AccountName string
	AccountKey  string
	Container   string
	// Endpoint overrides the default https://<account>.blob.core.windows.net
	// service URL, for Azurite and sovereign clouds.
	Endpoint      string
	Prefix        string
	PublicBaseURL string
}

// Backend implements storage.Backend against one blob container.
type Backend struct {
	cfg        Config
	client     *azblob.Client
	cred       *azblob.SharedKeyCredential
	serviceURL string
}

// New builds the client from cfg without probing the account.
func New(cfg Config) (*Backend, error) {
	if cfg.AccountName == "" || cfg.AccountKey == "" {
		return nil, storage.InvalidConfigf("azure backend requires account name and key")
	}
	if cfg.Container == "" {
		return nil, storage.InvalidConfigf("azure backend requires a container")
	}

	cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, storage.InvalidConfigf("azure credentials: %v", err)
	}

	serviceURL := cfg.Endpoint
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, storage.InvalidConfigf("init azure client: %v", err)
	}

	return &Backend{
		cfg:        cfg,
		client:     client,
		cred:       cred,
		serviceURL: strings.TrimRight(serviceURL, "/"),
	}, nil
}

func (b *Backend) key(path string) string {
	if b.cfg.Prefix == "" {
		return path
	}
	return strings.TrimSuffix(b.cfg.Prefix, "/") + "/" + path
}

func (b *Backend) blobClient(path string) *blob.Client {
	return b.client.ServiceClient().NewContainerClient(b.cfg.Container).NewBlobClient(b.key(path))
}

func translate(err error, path string) error {
	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound):
		return storage.NotFoundf("azure blob %q", path)
	case bloberror.HasCode(err, bloberror.ContainerNotFound):
		return storage.InvalidConfigf("azure container missing: %v", err)
	case bloberror.HasCode(err,
		bloberror.AuthenticationFailed,
		bloberror.AuthorizationFailure,
		bloberror.InvalidAuthenticationInfo,
		bloberror.InsufficientAccountPermissions):
		return fmt.Errorf("azure %q: %v: %w", path, err, storage.ErrAuthFailure)
	}
	return fmt.Errorf("azure %q: %v: %w", path, err, storage.ErrTransportFailure)
}

func (b *Backend) Write(ctx context.Context, path string, content io.Reader, opts storage.WriteOptions) error {
	uploadOpts := &azblob.UploadStreamOptions{}
	if opts.MimeType != "" {
		uploadOpts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &opts.MimeType}
	}
	if len(opts.Metadata) > 0 {
		md := make(map[string]*string, len(opts.Metadata))
		for k, v := range opts.Metadata {
			v := v
			md[k] = &v
		}
		uploadOpts.Metadata = md
	}
	// Azure has no per-blob public ACL; public access is a container
	// property, so Visibility is not applied here.

	if _, err := b.client.UploadStream(ctx, b.cfg.Container, b.key(path), content, uploadOpts); err != nil {
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
	resp, err := b.client.DownloadStream(ctx, b.cfg.Container, b.key(path), nil)
	if err != nil {
		return nil, translate(err, path)
	}
	return resp.Body, nil
}

func (b *Backend) Delete(ctx context.Context, path string) error {
	_, err := b.client.DeleteBlob(ctx, b.cfg.Container, b.key(path), nil)
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
	_, err := b.blobClient(path).GetProperties(ctx, nil)
	if err != nil {
		terr := translate(err, path)
		if storage.IsNotFound(terr) {
			return false, nil
		}
		return false, terr
	}
	return true, nil
}

// Copy goes through the data path instead of StartCopyFromURL so it
// works without a SAS-authorized source URL.
func (b *Backend) Copy(ctx context.Context, from, to string) error {
	rc, err := b.ReadStream(ctx, from)
	if err != nil {
		return err
	}
	defer rc.Close()

	mimeType := ""
	if props, err := b.blobClient(from).GetProperties(ctx, nil); err == nil && props.ContentType != nil {
		mimeType = *props.ContentType
	}
	return b.Write(ctx, to, rc, storage.WriteOptions{MimeType: mimeType})
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

	perms := sas.BlobPermissions{Read: true}
	values := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		ExpiryTime:    time.Now().UTC().Add(storage.ClampTTL(ttl)),
		Permissions:   perms.String(),
		ContainerName: b.cfg.Container,
		BlobName:      b.key(path),
	}
	params, err := values.SignWithSharedKey(b.cred)
	if err != nil {
		return "", fmt.Errorf("azure %q: sign url: %w", path, storage.ErrAuthFailure)
	}
	return fmt.Sprintf("%s/%s/%s?%s", b.serviceURL, b.cfg.Container, b.key(path), params.Encode()), nil
}

func (b *Backend) GetMetadata(ctx context.Context, path string) (*storage.ObjectInfo, error) {
	props, err := b.blobClient(path).GetProperties(ctx, nil)
	if err != nil {
		return nil, translate(err, path)
	}

	info := &storage.ObjectInfo{
		Path:             path,
		Visibility:       storage.VisibilityPrivate,
		ProviderMetadata: map[string]string{},
	}
	if props.ContentLength != nil {
		info.Size = *props.ContentLength
	}
	if props.ContentType != nil {
		info.MimeType = *props.ContentType
	}
	if props.LastModified != nil {
		info.LastModified = *props.LastModified
	}
	if props.ETag != nil {
		info.ProviderMetadata["etag"] = string(*props.ETag)
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

	strip := ""
	if b.cfg.Prefix != "" {
		strip = strings.TrimSuffix(b.cfg.Prefix, "/") + "/"
	}

	var out []string
	if recursive {
		pager := b.client.NewListBlobsFlatPager(b.cfg.Container, &azblob.ListBlobsFlatOptions{
			Prefix: &keyPrefix,
		})
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				return nil, translate(err, prefix)
			}
			for _, item := range page.Segment.BlobItems {
				if item.Name != nil {
					out = append(out, strings.TrimPrefix(*item.Name, strip))
				}
			}
		}
		return out, nil
	}

	containerClient := b.client.ServiceClient().NewContainerClient(b.cfg.Container)
	pager := containerClient.NewListBlobsHierarchyPager("/", &container.ListBlobsHierarchyOptions{
		Prefix: &keyPrefix,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, translate(err, prefix)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				out = append(out, strings.TrimPrefix(*item.Name, strip))
			}
		}
	}
	return out, nil
}

func (b *Backend) TestConnection(ctx context.Context) bool {
	containerClient := b.client.ServiceClient().NewContainerClient(b.cfg.Container)
	_, err := containerClient.GetProperties(ctx, nil)
	return err == nil
}

func (b *Backend) Type() storage.BackendType {
	return storage.TypeAzure
}

func (b *Backend) Config() map[string]string {
	return map[string]string{
		"account":   b.cfg.AccountName,
		"container": b.cfg.Container,
		"endpoint":  b.cfg.Endpoint,
		"prefix":    b.cfg.Prefix,
		"key":       storage.MaskSecret(b.cfg.AccountKey),
	}
}
