// Package snapshot provides optional S3-compatible backup of the local
// Embedded Store file, for device-loss recovery of the offline replica.
// When no bucket is configured, NoopUploader is used and the feature is
// entirely inert — the local store never depends on it.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fitsync/fitsync/internal/config"
)

// ErrNotConfigured is returned when S3 backup storage is not configured.
var ErrNotConfigured = errors.New("backup storage not configured")

// Uploader uploads a point-in-time copy of a device's local database and
// can generate pre-signed download URLs for recovery.
type Uploader interface {
	Upload(ctx context.Context, deviceID string, filePath string) error
	PresignedURL(ctx context.Context, deviceID string) (url string, expiry time.Time, err error)
}

// s3Client defines the minimal minio.Client surface Uploader depends on,
// so tests can substitute a fake without a real S3-compatible endpoint.
type s3Client interface {
	FPutObject(ctx context.Context, bucket, objectName, filePath string) error
	PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error)
}

type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) FPutObject(ctx context.Context, bucket, objectName, filePath string) error {
	_, err := w.client.FPutObject(ctx, bucket, objectName, filePath, minio.PutObjectOptions{
		ContentType: "application/vnd.sqlite3",
	})
	return err
}

func (w *minioClientWrapper) PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error) {
	return w.client.PresignedGetObject(ctx, bucket, objectName, expiry, nil)
}

// S3Uploader backs a device's local database up to S3-compatible storage.
type S3Uploader struct {
	client    s3Client
	bucket    string
	urlExpiry time.Duration
}

func (u *S3Uploader) Upload(ctx context.Context, deviceID, filePath string) error {
	if err := u.client.FPutObject(ctx, u.bucket, objectKey(deviceID), filePath); err != nil {
		return fmt.Errorf("upload snapshot to S3: %w", err)
	}
	return nil
}

func (u *S3Uploader) PresignedURL(ctx context.Context, deviceID string) (string, time.Time, error) {
	presigned, err := u.client.PresignedGetObject(ctx, u.bucket, objectKey(deviceID), u.urlExpiry)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate pre-signed URL: %w", err)
	}
	return presigned.String(), time.Now().Add(u.urlExpiry), nil
}

// NoopUploader is used when backup storage is not configured.
type NoopUploader struct{}

func (u *NoopUploader) Upload(ctx context.Context, deviceID, filePath string) error { return nil }

func (u *NoopUploader) PresignedURL(ctx context.Context, deviceID string) (string, time.Time, error) {
	return "", time.Time{}, ErrNotConfigured
}

// NewUploader returns NoopUploader when cfg.Bucket is empty, S3Uploader
// otherwise.
func NewUploader(cfg config.BackupConfig) (Uploader, error) {
	if cfg.Bucket == "" {
		return &NoopUploader{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Uploader{
		client:    &minioClientWrapper{client: client},
		bucket:    cfg.Bucket,
		urlExpiry: time.Duration(cfg.URLExpiry),
	}, nil
}

// objectKey is the S3 object key for a device's backup.
func objectKey(deviceID string) string {
	return deviceID + "/backup/current.db"
}
