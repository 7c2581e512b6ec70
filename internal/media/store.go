// Package media persists generated media. Model backends serve results
// from short-lived CDN URLs; rehosting copies them into our own bucket
// so gallery items outlive the backend's retention window.
package media

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// maxDownloadSize caps a single rehosted object at 512 MiB.
const maxDownloadSize = 512 << 20

// Config holds S3/MinIO connection settings for the media store.
type Config struct {
	// Endpoint for MinIO (e.g. "minio.reelforge.svc:9000"). Leave empty
	// for AWS S3.
	Endpoint string

	// Bucket name.
	Bucket string

	// Region (required for AWS S3, optional for MinIO).
	Region string

	// Credentials.
	AccessKeyID     string
	SecretAccessKey string

	// UseSSL enables HTTPS to the endpoint.
	UseSSL bool

	// PathPrefix is prepended to all object keys.
	PathPrefix string

	// PublicBaseURL, when set, is used to build stable object URLs.
	// Otherwise rehosted media is served through presigned GET URLs.
	PublicBaseURL string

	// PresignExpiry bounds presigned URL lifetime (default 24h).
	PresignExpiry time.Duration
}

// Store copies media into S3-compatible storage and hands out URLs.
type Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	http      *http.Client
	logger    *slog.Logger
	cfg       Config
}

// NewStore creates a media store backed by S3 or MinIO.
func NewStore(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.PresignExpiry == 0 {
		cfg.PresignExpiry = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		endpoint := fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true // MinIO requires path-style addressing
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return &Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		http:      &http.Client{Timeout: 2 * time.Minute},
		logger:    logger,
		cfg:       cfg,
	}, nil
}

func (s *Store) key(name string) string {
	if s.cfg.PathPrefix == "" {
		return name
	}
	return s.cfg.PathPrefix + "/" + name
}

// Rehost downloads the media at url and stores a copy, returning the
// durable URL. The source URL is returned unchanged if the download or
// upload fails, so a flaky bucket never fails a generation.
func (s *Store) Rehost(ctx context.Context, url, ext string) (string, error) {
	stored, err := s.copyObject(ctx, url, ext)
	if err != nil {
		s.logger.Warn("media rehost failed, passing source URL through",
			"url", url, "error", err)
		return url, nil
	}
	return stored, nil
}

func (s *Store) copyObject(ctx context.Context, url, ext string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download media: status %d", resp.StatusCode)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize))
	if err != nil {
		return "", fmt.Errorf("read media: %w", err)
	}

	hash := sha256.Sum256(content)
	name := fmt.Sprintf("media/%s-%s.%s", time.Now().UTC().Format("20060102"), hex.EncodeToString(hash[:8]), ext)
	key := s.key(name)

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeFor(ext)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(content))),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	return s.urlFor(ctx, key)
}

// urlFor builds the externally servable URL for a stored object.
func (s *Store) urlFor(ctx context.Context, key string) (string, error) {
	if s.cfg.PublicBaseURL != "" {
		return fmt.Sprintf("%s/%s", s.cfg.PublicBaseURL, key), nil
	}

	result, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.cfg.PresignExpiry))
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return result.URL, nil
}

// PresignUpload returns a presigned PUT URL so clients can upload static
// image or video assets directly to the bucket, plus the object's
// eventual GET URL.
func (s *Store) PresignUpload(ctx context.Context, ext, contentType string) (putURL, getURL string, err error) {
	if contentType == "" {
		contentType = contentTypeFor(ext)
	}
	key := s.key(fmt.Sprintf("uploads/%s.%s", uuid.NewString(), ext))

	put, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", "", fmt.Errorf("presign put: %w", err)
	}

	get, err := s.urlFor(ctx, key)
	if err != nil {
		return "", "", err
	}
	return put.URL, get, nil
}

func contentTypeFor(ext string) string {
	switch ext {
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
