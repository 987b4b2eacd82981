// Package blobstore wraps the object-store client behind the small surface
// the pipeline needs: list objects in a container with metadata, download
// object bytes, and (for the seeding tools) upload objects.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/logwarden/internal/model"
)

// Config contains the information required to talk to the object store.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Client represents the capabilities the pipeline and seeding tools expect.
type Client interface {
	List(ctx context.Context, container string) ([]model.BlobRef, error)
	Download(ctx context.Context, container, name string) ([]byte, error)
	Put(ctx context.Context, container, name string, data []byte, contentType string) error
	EnsureContainer(ctx context.Context, container string) error
}

// ParseConnectionString decodes the semicolon-delimited connection string
// used in configuration, e.g.
//
//	endpoint=localhost:9000;accessKey=minioadmin;secretKey=minioadmin;useSSL=false
func ParseConnectionString(raw string) (Config, error) {
	cfg := Config{}
	for _, pair := range strings.Split(raw, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return Config{}, fmt.Errorf("malformed connection string segment %q", pair)
		}
		switch strings.TrimSpace(key) {
		case "endpoint":
			cfg.Endpoint = strings.TrimSpace(value)
		case "accessKey":
			cfg.AccessKey = strings.TrimSpace(value)
		case "secretKey":
			cfg.SecretKey = strings.TrimSpace(value)
		case "region":
			cfg.Region = strings.TrimSpace(value)
		case "useSSL":
			cfg.UseSSL = strings.EqualFold(strings.TrimSpace(value), "true")
		default:
			return Config{}, fmt.Errorf("unknown connection string key %q", key)
		}
	}
	if cfg.Endpoint == "" {
		return Config{}, fmt.Errorf("connection string has no endpoint")
	}
	return cfg, nil
}

// New creates an object store client from the given configuration.
func New(cfg Config) (Client, error) {
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init blob store client: %w", err)
	}
	return &minioClient{client: cl}, nil
}

type minioClient struct {
	client *minio.Client
}

func (m *minioClient) List(ctx context.Context, container string) ([]model.BlobRef, error) {
	var refs []model.BlobRef
	for obj := range m.client.ListObjects(ctx, container, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list container %s: %w", container, obj.Err)
		}
		refs = append(refs, model.BlobRef{
			Container:    container,
			Name:         obj.Key,
			LastModified: obj.LastModified,
			ETag:         obj.ETag,
		})
	}
	return refs, nil
}

func (m *minioClient) Download(ctx context.Context, container, name string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, container, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", container, name, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", container, name, err)
	}
	return data, nil
}

func (m *minioClient) Put(ctx context.Context, container, name string, data []byte, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	_, err := m.client.PutObject(ctx, container, name, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", container, name, err)
	}
	return nil
}

func (m *minioClient) EnsureContainer(ctx context.Context, container string) error {
	exists, err := m.client.BucketExists(ctx, container)
	if err != nil {
		return fmt.Errorf("check container %s: %w", container, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, container, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create container %s: %w", container, err)
	}
	return nil
}
