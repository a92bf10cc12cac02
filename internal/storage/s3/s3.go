// Package s3 provides the live object store backed by S3 or MinIO.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/keenon/AddBiomechanics-sub000/internal/logging"
	"github.com/keenon/AddBiomechanics-sub000/internal/metrics"
	"github.com/keenon/AddBiomechanics-sub000/internal/storage"
	"github.com/keenon/AddBiomechanics-sub000/pkg/models"
	"github.com/keenon/AddBiomechanics-sub000/pkg/retry"
)

// Config holds S3 connection settings.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Retry     retry.Config
}

// Live implements storage.ObjectStore on S3.
type Live struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	retry   retry.Config
}

var _ storage.ObjectStore = (*Live)(nil)

// New creates a live S3 store. An empty endpoint uses the AWS default
// resolver; a custom endpoint (MinIO) switches to path-style addressing.
func New(ctx context.Context, cfg Config) (*Live, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
			o.UsePathStyle = true
		}
	})

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	cfg.Retry.Notify = func(attempt int, err error, wait time.Duration) {
		logging.Warn("S3 request failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	return &Live{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		retry:   cfg.Retry,
	}, nil
}

func endpointURL(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// LoadPathData lists every key under path, following continuation tokens.
func (l *Live) LoadPathData(ctx context.Context, path string, recursive bool) (models.Listing, error) {
	start := time.Now()

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(l.bucket),
		Prefix: aws.String(path),
	}
	if !recursive {
		input.Delimiter = aws.String("/")
	}

	listing := models.Listing{Files: []models.FileRecord{}, Folders: []string{}}
	paginator := s3.NewListObjectsV2Paginator(l.client, input)
	for paginator.HasMorePages() {
		page, err := retry.DoWithResult(ctx, l.retry, func() (*s3.ListObjectsV2Output, error) {
			out, err := paginator.NextPage(ctx)
			return out, classify(ctx, err)
		})
		if err != nil {
			metrics.RecordStoreOperation("list_objects", time.Since(start), false)
			return models.Listing{}, fmt.Errorf("list %s: %w", path, err)
		}
		for _, obj := range page.Contents {
			listing.Files = append(listing.Files, models.FileRecord{
				Key:          aws.ToString(obj.Key),
				LastModified: aws.ToTime(obj.LastModified),
				Size:         aws.ToInt64(obj.Size),
			})
		}
		for _, p := range page.CommonPrefixes {
			listing.Folders = append(listing.Folders, aws.ToString(p.Prefix))
		}
	}

	metrics.RecordStoreOperation("list_objects", time.Since(start), true)
	logging.Debug("S3 list objects",
		zap.String("prefix", path),
		zap.Bool("recursive", recursive),
		zap.Int("files", len(listing.Files)),
		zap.Int("folders", len(listing.Folders)))
	return listing, nil
}

// GetSignedURL presigns a GET request for path.
func (l *Live) GetSignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	start := time.Now()
	req, err := l.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		metrics.RecordStoreOperation("presign_get", time.Since(start), false)
		return "", fmt.Errorf("presign %s: %w", path, err)
	}
	metrics.RecordStoreOperation("presign_get", time.Since(start), true)
	return req.URL, nil
}

// DownloadText reads the whole object as a string.
func (l *Live) DownloadText(ctx context.Context, path string) (string, error) {
	body, err := l.DownloadFile(ctx, path)
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// DownloadFile streams the object body.
func (l *Live) DownloadFile(ctx context.Context, path string) (io.ReadCloser, error) {
	start := time.Now()
	out, err := retry.DoWithResult(ctx, l.retry, func() (*s3.GetObjectOutput, error) {
		out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(l.bucket),
			Key:    aws.String(path),
		})
		return out, classify(ctx, err)
	})
	if err != nil {
		metrics.RecordStoreOperation("get_object", time.Since(start), false)
		if isNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get object %s: %w", path, err)
	}
	metrics.RecordStoreOperation("get_object", time.Since(start), true)
	return out.Body, nil
}

// UploadText stores text at path.
func (l *Live) UploadText(ctx context.Context, path, text string) error {
	return l.UploadFile(ctx, path, strings.NewReader(text), int64(len(text)), nil)
}

// UploadFile uploads size bytes from body. Uploads are not retried because
// the body cannot be rewound.
func (l *Live) UploadFile(ctx context.Context, path string, body io.Reader, size int64, onProgress storage.ProgressFunc) error {
	start := time.Now()

	_, err := l.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(l.bucket),
		Key:           aws.String(path),
		Body:          &storage.ProgressReader{R: body, Total: size, OnProgress: onProgress},
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		metrics.RecordStoreOperation("put_object", time.Since(start), false)
		return fmt.Errorf("put object %s: %w", path, err)
	}

	metrics.RecordStoreOperation("put_object", time.Since(start), true)
	metrics.RecordUpload(size)
	logging.Debug("S3 put object", zap.String("key", path), zap.Int64("size", size))
	return nil
}

// Delete removes the object at path.
func (l *Live) Delete(ctx context.Context, path string) error {
	start := time.Now()
	err := retry.Do(ctx, l.retry, func() error {
		_, err := l.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(l.bucket),
			Key:    aws.String(path),
		})
		return classify(ctx, err)
	})
	if err != nil {
		metrics.RecordStoreOperation("delete_object", time.Since(start), false)
		return fmt.Errorf("delete object %s: %w", path, err)
	}

	metrics.RecordStoreOperation("delete_object", time.Since(start), true)
	logging.Debug("S3 delete object", zap.String("key", path))
	return nil
}

// classify marks transport errors retryable. Missing keys and cancelled
// contexts are final.
func classify(ctx context.Context, err error) error {
	if err == nil || ctx.Err() != nil || isNotFound(err) {
		return err
	}
	return retry.Retryable(err)
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}
