// Package storage uploads large or binary inputs to object storage so the
// processing backend can fetch them by reference instead of receiving the
// bytes inline.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/SimbaBuilds/sheetassist/internal/config"
	"github.com/SimbaBuilds/sheetassist/pkg/models"
)

// UploadResult identifies an uploaded object: its bucket key plus a
// time-limited URL the processing backend can fetch it from.
type UploadResult struct {
	Key string
	URL string
}

// Uploader is the object storage interface consumed by the query service.
type Uploader interface {
	Upload(ctx context.Context, userID uuid.UUID, file models.FileUpload) (*UploadResult, error)
}

// S3Uploader implements Uploader against AWS S3 or an S3-compatible store.
type S3Uploader struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	expiry  time.Duration
}

// New creates an S3Uploader. The SDK's default credential chain applies
// unless explicit credentials are configured.
func New(ctx context.Context, cfg config.S3Config) (*S3Uploader, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
		},
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}

	return &S3Uploader{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		expiry:  expiry,
	}, nil
}

// Upload puts the file under a per-user key and returns the key together
// with a presigned GET URL valid for the configured expiry.
func (u *S3Uploader) Upload(ctx context.Context, userID uuid.UUID, file models.FileUpload) (*UploadResult, error) {
	key := ObjectKey(userID, file.Name)

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file.Content),
		ContentType: aws.String(file.Type),
	})
	if err != nil {
		return nil, fmt.Errorf("put object %q: %w", key, err)
	}

	presigned, err := u.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(u.expiry))
	if err != nil {
		return nil, fmt.Errorf("presign object %q: %w", key, err)
	}

	return &UploadResult{Key: key, URL: presigned.URL}, nil
}

// ObjectKey builds an upload key scoped to the user, made unique by upload
// time and a random suffix so repeated uploads of the same filename never
// collide.
func ObjectKey(userID uuid.UUID, filename string) string {
	return fmt.Sprintf("uploads/%s/%d-%s-%s",
		userID, time.Now().UnixMilli(), uuid.NewString()[:8], filename)
}

var _ Uploader = (*S3Uploader)(nil)
