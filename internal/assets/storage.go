// Package assets generates and stores image assets for generated
// applications: model-backed rendering with an SVG placeholder path,
// persisted to local disk or S3.
package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// StorageProvider persists asset bytes under a key and returns a URL
// the generated application can reference.
type StorageProvider interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// LocalStorage writes assets under a base directory and returns
// relative file URLs.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates the base directory if needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if basePath == "" {
		basePath = "data/assets"
	}
	if err := os.MkdirAll(basePath, 0750); err != nil {
		return nil, fmt.Errorf("create asset directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (s *LocalStorage) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	fullPath := filepath.Join(s.basePath, key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0750); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0640); err != nil {
		return "", fmt.Errorf("write asset: %w", err)
	}
	return "/assets/" + key, nil
}

// Get reads an asset back, mainly for serving over HTTP.
func (s *LocalStorage) Get(ctx context.Context, key string, w io.Writer) error {
	f, err := os.Open(filepath.Join(s.basePath, key))
	if err != nil {
		return fmt.Errorf("open asset: %w", err)
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// S3Storage uploads assets to an S3 bucket via the upload manager.
type S3Storage struct {
	bucket   string
	region   string
	uploader *manager.Uploader
}

// NewS3Storage loads the default AWS credential chain for the region.
func NewS3Storage(ctx context.Context, bucket, region string) (*S3Storage, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Storage{
		bucket:   bucket,
		region:   region,
		uploader: manager.NewUploader(client),
	}, nil
}

func (s *S3Storage) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload asset %s: %w", key, err)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
}
