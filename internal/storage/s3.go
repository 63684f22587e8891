package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/lalith-99/huddle/internal/config"
	"go.uber.org/zap"
)

// S3Storage writes to any S3-compatible bucket. Objects are expected to be
// publicly readable, either directly or through S3PublicBaseURL (a CDN).
type S3Storage struct {
	bucket     string
	region     string
	endpoint   string
	pathStyle  bool
	publicBase string
	client     *s3.Client
	logger     *zap.Logger
	disabled   bool
}

func NewS3Storage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*S3Storage, error) {
	logger = logger.Named("s3-storage")
	st := &S3Storage{
		bucket:     strings.TrimSpace(cfg.S3Bucket),
		region:     cfg.S3Region,
		endpoint:   strings.TrimSuffix(strings.TrimSpace(cfg.S3Endpoint), "/"),
		pathStyle:  cfg.S3UsePathStyle,
		publicBase: strings.TrimSuffix(strings.TrimSpace(cfg.S3PublicBaseURL), "/"),
		logger:     logger,
	}

	accessKey := strings.TrimSpace(cfg.S3AccessKeyID)
	secretKey := strings.TrimSpace(cfg.S3SecretKey)
	if st.bucket == "" || accessKey == "" || secretKey == "" {
		logger.Warn("S3_BUCKET or credentials are not set; attachment uploads will fail until configured")
		st.disabled = true
		return st, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	st.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = st.pathStyle
		if st.endpoint != "" {
			o.BaseEndpoint = aws.String(st.endpoint)
		}
	})

	logger.Info("s3 storage initialized",
		zap.String("bucket", st.bucket),
		zap.String("region", st.region),
		zap.Bool("custom_endpoint", st.endpoint != ""),
	)
	return st, nil
}

func (s *S3Storage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if s.disabled {
		return ErrStorageDisabled
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// PublicURL prefers the configured public base, then the custom endpoint,
// then the regional AWS host.
func (s *S3Storage) PublicURL(key string) string {
	escaped := escapeKey(key)
	switch {
	case s.publicBase != "":
		return s.publicBase + "/" + escaped
	case s.endpoint != "" && s.pathStyle:
		return s.endpoint + "/" + s.bucket + "/" + escaped
	case s.endpoint != "":
		if u, err := url.Parse(s.endpoint); err == nil && u.Host != "" {
			return u.Scheme + "://" + s.bucket + "." + u.Host + "/" + escaped
		}
		return s.endpoint + "/" + s.bucket + "/" + escaped
	case s.pathStyle:
		return fmt.Sprintf("https://s3.%s.amazonaws.com/%s/%s", s.region, s.bucket, escaped)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, escaped)
	}
}

func (s *S3Storage) Health(ctx context.Context) error {
	if s.disabled {
		return nil
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
