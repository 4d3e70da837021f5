package fetch

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
)

// ObjectFetcher fetches artifacts from S3-compatible object storage, where
// the export pipeline publishes database and embeddings images. URLs take
// the form s3://bucket/key.
type ObjectFetcher struct {
	client *minio.Client
}

// NewObjectFetcher wraps a configured minio client.
func NewObjectFetcher(client *minio.Client) *ObjectFetcher {
	return &ObjectFetcher{client: client}
}

// Fetch downloads the object addressed by rawURL.
func (f *ObjectFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	bucket, key, err := splitObjectURL(rawURL)
	if err != nil {
		return nil, err
	}
	obj, err := f.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("fetch: opening s3://%s/%s: %w", bucket, key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("fetch: reading s3://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

func splitObjectURL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("fetch: invalid object URL %q: %w", rawURL, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("fetch: object URL %q must be s3://bucket/key", rawURL)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("fetch: object URL %q is missing a key", rawURL)
	}
	return u.Host, key, nil
}
