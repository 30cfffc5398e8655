// Package storage stores uploaded files in an S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/fx"

	"github.com/erlendps/thingbooker/internal/config"
	"github.com/erlendps/thingbooker/pkg/logger"
)

var Module = fx.Module("storage",
	fx.Provide(NewService),
)

// ErrDisabled is returned by every operation when storage is not configured.
var ErrDisabled = errors.New("storage service not enabled")

// Service provides S3-compatible storage operations
type Service struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	log           *slog.Logger
}

// UploadOptions configures an upload operation
type UploadOptions struct {
	ContentType string
	Metadata    map[string]string
}

// UploadResult contains information about an uploaded object
type UploadResult struct {
	Key         string
	Bucket      string
	ETag        string
	Size        int64
	ContentType string
}

// NewService creates a new storage service. Without credentials it returns
// a disabled service rather than failing startup.
func NewService(cfg *config.Config, log *slog.Logger) (*Service, error) {
	log = log.With(logger.Scope("storage"))
	sc := cfg.Storage
	if !sc.IsConfigured() {
		log.Warn("storage service disabled - no configuration provided")
		return &Service{bucket: sc.Bucket, log: log}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(sc.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			sc.AccessKeyID,
			sc.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := EndpointURL(sc.Endpoint, sc.UseSSL)
	// Path-style addressing is required for MinIO
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	log.Info("storage service initialized",
		slog.String("endpoint", endpoint),
		slog.String("bucket", sc.Bucket),
	)

	return &Service{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        sc.Bucket,
		log:           log,
	}, nil
}

// EndpointURL turns a host[:port] endpoint into a URL. Endpoints that
// already carry a scheme are returned unchanged.
func EndpointURL(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// Enabled returns true if the storage service is properly configured
func (s *Service) Enabled() bool {
	return s != nil && s.client != nil
}

// Upload uploads data to key
func (s *Service) Upload(ctx context.Context, key string, data io.Reader, size int64, opts UploadOptions) (*UploadResult, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          data,
		ContentLength: aws.Int64(size),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = opts.Metadata
	}

	result, err := s.client.PutObject(ctx, input)
	if err != nil {
		s.log.Error("failed to upload object", slog.String("key", key), logger.Error(err))
		return nil, fmt.Errorf("upload failed: %w", err)
	}

	etag := ""
	if result.ETag != nil {
		etag = strings.Trim(*result.ETag, "\"")
	}

	s.log.Debug("object uploaded", slog.String("key", key), slog.Int64("size", size))

	return &UploadResult{
		Key:         key,
		Bucket:      s.bucket,
		ETag:        etag,
		Size:        size,
		ContentType: opts.ContentType,
	}, nil
}

// Delete removes an object from storage
func (s *Service) Delete(ctx context.Context, key string) error {
	if !s.Enabled() {
		return ErrDisabled
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		s.log.Error("failed to delete object", slog.String("key", key), logger.Error(err))
		return fmt.Errorf("delete failed: %w", err)
	}

	s.log.Debug("object deleted", slog.String("key", key))
	return nil
}

// SignedURL returns a presigned GET URL for key, valid for expiresIn
// (one hour when zero).
func (s *Service) SignedURL(ctx context.Context, key string, expiresIn time.Duration) (string, error) {
	if !s.Enabled() {
		return "", ErrDisabled
	}
	if expiresIn == 0 {
		expiresIn = time.Hour
	}

	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(po *s3.PresignOptions) {
		po.Expires = expiresIn
	})
	if err != nil {
		s.log.Error("failed to generate presigned URL", slog.String("key", key), logger.Error(err))
		return "", fmt.Errorf("presign failed: %w", err)
	}
	return req.URL, nil
}

// PictureKey is the object key of a thing's picture.
// Format: things/pictures/{thingID}.{ext}
func PictureKey(thingID, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		return fmt.Sprintf("things/pictures/%s", thingID)
	}
	return fmt.Sprintf("things/pictures/%s.%s", thingID, ext)
}
