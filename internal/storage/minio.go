package storage

import (
	"context"
	"fmt"
	"mime/multipart"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/thereayou/esim-portal/internal/config"
	"go.uber.org/zap"
)

type MinioStore struct {
	client    *minio.Client
	bucket    string
	maxSize   int64
	publicURL string
	logger    *zap.Logger
}

func NewMinioStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (*MinioStore, error) {
	endpoint := cfg.MinioURL
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse minio URL: %w", err)
	}
	secure := u.Scheme == "https"

	logger.Info("Initializing MinIO", zap.String("host", u.Host), zap.Bool("secure", secure))

	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioUser, cfg.MinioPassword, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	publicURL := strings.TrimRight(cfg.MinioPublicURL, "/")
	if publicURL == "" {
		publicURL = fmt.Sprintf("%s://%s/%s", u.Scheme, u.Host, cfg.MinioBucket)
	}

	store := &MinioStore{
		client:    client,
		bucket:    cfg.MinioBucket,
		maxSize:   cfg.MaxFileSize,
		publicURL: publicURL,
		logger:    logger,
	}

	if err := store.ensureBucket(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

func (m *MinioStore) ensureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		m.logger.Info("Created MinIO bucket", zap.String("bucket", m.bucket))
	}

	// вложения открываются по прямой ссылке из чата
	policy := `{
		"Version": "2012-10-17",
		"Statement": [
			{
				"Effect": "Allow",
				"Principal": "*",
				"Action": ["s3:GetObject"],
				"Resource": ["arn:aws:s3:::` + m.bucket + `/attachments/*"]
			}
		]
	}`
	if err := m.client.SetBucketPolicy(ctx, m.bucket, policy); err != nil {
		m.logger.Warn("Failed to set bucket policy", zap.Error(err))
	}

	return nil
}

func (m *MinioStore) Upload(ctx context.Context, file *multipart.FileHeader) (*StoredFile, error) {
	if err := checkSize(file, m.maxSize); err != nil {
		return nil, err
	}

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	contentType := ContentType(file)
	objectName := ObjectName(file.Filename, time.Now())

	_, err = m.client.PutObject(ctx, m.bucket, objectName, src, file.Size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	m.logger.Info("Attachment uploaded",
		zap.String("filename", file.Filename),
		zap.String("object_name", objectName),
		zap.Int64("size", file.Size),
	)

	return &StoredFile{
		Name:       file.Filename,
		Type:       contentType,
		URL:        m.publicURL + "/" + objectName,
		Size:       file.Size,
		ObjectName: objectName,
	}, nil
}

// Delete используется для отката, если сообщение не удалось сохранить
func (m *MinioStore) Delete(ctx context.Context, objectName string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
