// Package attach stores card attachments in S3-compatible object storage.
package attach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"tackboard/api/internal/util"
)

var (
	// ErrNotConfigured indicates object storage is not set up.
	ErrNotConfigured = errors.New("attachments not configured")
	// ErrEmptyFile indicates an upload with no content.
	ErrEmptyFile = errors.New("attachment is empty")
)

// Config holds object storage settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Attachment describes a stored file.
type Attachment struct {
	ID          string    `json:"id"`
	CardID      string    `json:"cardId"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Service uploads and serves card attachments.
type Service struct {
	client *minio.Client
	bucket string
}

// NewService connects to object storage and ensures the bucket exists.
// Returns (nil, nil) when no endpoint is configured so callers can run
// without attachments.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object storage: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		log.Printf("attach: created bucket %s", cfg.Bucket)
	}

	return &Service{client: client, bucket: cfg.Bucket}, nil
}

// objectKey builds the storage key for an attachment.
func objectKey(cardID, attachmentID, filename string) string {
	return path.Join("cards", cardID, attachmentID, sanitizeObjectName(filename))
}

func sanitizeObjectName(name string) string {
	name = path.Base(name)
	name = strings.ReplaceAll(name, "\\", "-")
	if name == "" || name == "." || name == ".." {
		name = "file"
	}
	return name
}

// Upload streams a file into object storage and returns its metadata.
func (s *Service) Upload(ctx context.Context, cardID, filename, contentType string, size int64, body io.Reader) (Attachment, error) {
	if s == nil {
		return Attachment{}, ErrNotConfigured
	}
	if size <= 0 {
		return Attachment{}, ErrEmptyFile
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	att := Attachment{
		ID:          util.NewID("att"),
		CardID:      cardID,
		Filename:    sanitizeObjectName(filename),
		ContentType: contentType,
		Size:        size,
		UploadedAt:  time.Now().UTC(),
	}

	key := objectKey(cardID, att.ID, att.Filename)
	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"card-id": cardID,
		},
	})
	if err != nil {
		return Attachment{}, fmt.Errorf("put object %s: %w", key, err)
	}

	return att, nil
}

// DownloadURL returns a presigned URL for fetching an attachment.
func (s *Service) DownloadURL(ctx context.Context, cardID, attachmentID, filename string, expiry time.Duration) (string, error) {
	if s == nil {
		return "", ErrNotConfigured
	}
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	key := objectKey(cardID, attachmentID, filename)
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", sanitizeObjectName(filename)))

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, params)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

// List returns attachment metadata for a card by walking its prefix.
func (s *Service) List(ctx context.Context, cardID string) ([]Attachment, error) {
	if s == nil {
		return nil, ErrNotConfigured
	}

	prefix := path.Join("cards", cardID) + "/"
	objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	attachments := make([]Attachment, 0)
	for obj := range objects {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects %s: %w", prefix, obj.Err)
		}
		// key layout: cards/<cardID>/<attachmentID>/<filename>
		rest := strings.TrimPrefix(obj.Key, prefix)
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 {
			continue
		}
		attachments = append(attachments, Attachment{
			ID:          parts[0],
			CardID:      cardID,
			Filename:    parts[1],
			ContentType: obj.ContentType,
			Size:        obj.Size,
			UploadedAt:  obj.LastModified,
		})
	}
	return attachments, nil
}

// Delete removes an attachment object.
func (s *Service) Delete(ctx context.Context, cardID, attachmentID, filename string) error {
	if s == nil {
		return ErrNotConfigured
	}
	key := objectKey(cardID, attachmentID, filename)
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}
