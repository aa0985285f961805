package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

// ObjectStore uploads a blob and returns a URL clients can fetch it from.
type ObjectStore interface {
	Upload(ctx context.Context, objectName string, r io.Reader, size int64) (string, error)
}

// MinIOStore is the ObjectStore backed by one MinIO bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
	expiry time.Duration
	log    zerolog.Logger
}

type MinIOOptions struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	UseSSL     bool
	PresignTTL time.Duration
}

func InitMinIO(opts MinIOOptions, log zerolog.Logger) (*MinIOStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio init: %w", err)
	}
	expiry := opts.PresignTTL
	if expiry <= 0 {
		expiry = 72 * time.Hour
	}
	return &MinIOStore{client: client, bucket: opts.Bucket, expiry: expiry, log: log}, nil
}

// Upload creates the bucket on first use, stores the object with a content
// type derived from its extension and returns a presigned GET URL.
func (s *MinIOStore) Upload(ctx context.Context, objectName string, reader io.Reader, size int64) (string, error) {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return "", fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return "", fmt.Errorf("make bucket: %w", err)
		}
		s.log.Info().Str("bucket", s.bucket).Msg("bucket created")
	}

	_, err = s.client.PutObject(ctx, s.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentTypeFor(objectName),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", objectName, err)
	}

	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, s.expiry, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", objectName, err)
	}
	s.log.Debug().Str("object", objectName).Msg("object uploaded")
	return presigned.String(), nil
}

func contentTypeFor(objectName string) string {
	switch strings.ToLower(filepath.Ext(objectName)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".json":
		return "application/json"
	}
	return "application/octet-stream"
}

// Mirror downloads sourceURL and re-uploads it under objectName.
func Mirror(ctx context.Context, store ObjectStore, httpClient *http.Client, sourceURL, objectName string) (string, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("download request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download status: %d", resp.StatusCode)
	}
	return store.Upload(ctx, objectName, resp.Body, resp.ContentLength)
}
