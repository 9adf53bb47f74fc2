package source

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

// ObjectStoreConfig addresses an S3-compatible store holding circuit sources.
type ObjectStoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

func (c ObjectStoreConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("objectstore endpoint is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return errors.New("objectstore credentials are required")
	}
	return nil
}

// ObjectFetcher reads one object.
type ObjectFetcher interface {
	Fetch(ctx context.Context, bucket, key string) ([]byte, error)
}

// MinIOFetcher reads circuit sources through the MinIO client.
type MinIOFetcher struct {
	client *minio.Client
}

func NewMinIOFetcher(cfg ObjectStoreConfig) (*MinIOFetcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create minio client")
	}
	return &MinIOFetcher{client: client}, nil
}

func (f *MinIOFetcher) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := f.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "get object %s/%s", bucket, key)
	}
	defer obj.Close()
	data, err := io.ReadAll(io.LimitReader(obj, maxSourceBytes+1))
	if err != nil {
		return nil, errors.Wrapf(err, "read object %s/%s", bucket, key)
	}
	return data, nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
