package blob

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"

	"github.com/petermazzocco/construction-portal/internal/apperr"
)

// S3Config describes an S3 compatible bucket. When AccountID is set
// and Endpoint is empty the Cloudflare R2 endpoint for that account is
// used.
type S3Config struct {
	Bucket          string
	Prefix          string
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Endpoint        string
	Region          string
}

// Bucket keeps objects in an S3 bucket under an optional key prefix.
type Bucket struct {
	client *s3.Client
	bucket string
	prefix string
	log    *logrus.Entry
}

var _ Store = (*Bucket)(nil)

// tlsClient keeps the default transport's proxy and timeout settings
// but only negotiates TLS 1.2+ with AEAD ECDHE suites.
func tlsClient() *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		},
	}
	return &http.Client{Transport: tr}
}

func NewBucket(ctx context.Context, cfg S3Config, log *logrus.Logger) (*Bucket, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 blob store: bucket is required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*config.LoadOptions) error{
		config.WithHTTPClient(tlsClient()),
		config.WithRegion(region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.AccessKeySecret, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 blob store: load aws config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" && cfg.AccountID != "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &Bucket{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		log:    log.WithFields(logrus.Fields{"component": "blob-s3", "bucket": cfg.Bucket}),
	}, nil
}

func (b *Bucket) key(name string) string {
	if b.prefix == "" {
		return name
	}
	return path.Join(b.prefix, name)
}

// Put uploads with If-None-Match so an existing key is never replaced.
func (b *Bucket) Put(ctx context.Context, name string, r io.Reader, contentType string) error {
	if !ValidName(name) {
		return fmt.Errorf("blob name %q: %w", name, apperr.ErrInvalidInput)
	}
	obj, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.key(name)),
		Body:        r,
		ContentType: aws.String(contentType),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed" {
			return fmt.Errorf("%s: %w", name, ErrExists)
		}
		return fmt.Errorf("upload %s: %w", name, err)
	}
	b.log.WithFields(logrus.Fields{"key": b.key(name), "etag": aws.ToString(obj.ETag)}).Debug("object uploaded")
	return nil
}

func (b *Bucket) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("%s: %w", name, apperr.ErrNotFound)
	}
	res, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(name)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%s: %w", name, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("get object %s: %w", name, err)
	}
	return res.Body, nil
}

func (b *Bucket) Delete(ctx context.Context, name string) error {
	if !ValidName(name) {
		return fmt.Errorf("blob name %q: %w", name, apperr.ErrInvalidInput)
	}
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(name)),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", name, err)
	}
	return nil
}
