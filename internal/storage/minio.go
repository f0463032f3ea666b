// Package storage keeps movie posters in S3-compatible object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	ErrNotImage = errors.New("file is not an image")
	ErrTooLarge = errors.New("file is too large")
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is the base of the returned object URLs. Defaults to the
	// endpoint.
	PublicURL string
	MaxSize   int64
}

type Minio struct {
	client *minio.Client
	cfg    Config
}

func New(cfg Config) (*Minio, error) {
	const op = "storage.New"

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 5 << 20
	}
	if cfg.PublicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		cfg.PublicURL = scheme + "://" + cfg.Endpoint
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")

	return &Minio{client: client, cfg: cfg}, nil
}

const readOnlyPolicy = `{
  "Version": "2012-10-17",
  "Statement": [{
    "Effect": "Allow",
    "Principal": {"AWS": ["*"]},
    "Action": ["s3:GetObject"],
    "Resource": ["arn:aws:s3:::%s/*"]
  }]
}`

// EnsureBucket creates the poster bucket with public read access when it
// does not exist yet.
func (m *Minio) EnsureBucket(ctx context.Context) error {
	const op = "storage.Minio.EnsureBucket"

	ok, err := m.client.BucketExists(ctx, m.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}
	if ok {
		return nil
	}

	if err := m.client.MakeBucket(ctx, m.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := m.client.SetBucketPolicy(ctx, m.cfg.Bucket, fmt.Sprintf(readOnlyPolicy, m.cfg.Bucket)); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Upload stores an image under a fresh object name and returns its public URL.
//
// Parameters:
//   - ctx: request-scoped context.
//   - filename: client file name; only its extension is kept.
//   - contentType: must be image/*.
//   - size: body length in bytes.
//   - body: file content.
//
// Returns:
//   - string: the public URL of the object.
//   - error: storage.ErrNotImage or storage.ErrTooLarge on rejected files.
func (m *Minio) Upload(ctx context.Context, filename, contentType string, size int64, body io.Reader) (string, error) {
	const op = "storage.Minio.Upload"

	if err := Check(contentType, size, m.cfg.MaxSize); err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	name := uuid.NewString() + strings.ToLower(path.Ext(filename))

	_, err := m.client.PutObject(ctx, m.cfg.Bucket, name, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("%s:%w", op, err)
	}

	return m.cfg.PublicURL + "/" + m.cfg.Bucket + "/" + name, nil
}

// Delete removes the object a previously returned URL points to.
func (m *Minio) Delete(ctx context.Context, objectURL string) error {
	const op = "storage.Minio.Delete"

	name, err := ObjectName(objectURL)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := m.client.RemoveObject(ctx, m.cfg.Bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Check accepts image/* content up to maxSize bytes.
func Check(contentType string, size, maxSize int64) error {
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return ErrNotImage
	}
	if size <= 0 || size > maxSize {
		return ErrTooLarge
	}
	return nil
}

// ObjectName returns the last path segment of an object URL.
func ObjectName(objectURL string) (string, error) {
	u, err := url.Parse(objectURL)
	if err != nil {
		return "", err
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return "", fmt.Errorf("no object in %q", objectURL)
	}
	return name, nil
}
