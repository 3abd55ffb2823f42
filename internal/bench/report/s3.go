package report

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"
)

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
	// Endpoint is an optional custom endpoint such as MinIO or LocalStack.
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// S3Uploader stores report documents as JSON objects.
type S3Uploader struct {
	client     objectPutter
	bucket     string
	prefix     string
	maxRetries uint64
}

func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return newS3Uploader(s3.NewFromConfig(awsCfg, s3Opts...), cfg), nil
}

func newS3Uploader(client objectPutter, cfg S3Config) *S3Uploader {
	return &S3Uploader{
		client:     client,
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
		maxRetries: 3,
	}
}

// Key is the object key of doc: <prefix>/<start date>/<id>.json.
func (u *S3Uploader) Key(doc *Document) string {
	day := doc.Metadata.StartTime.UTC().Format("2006-01-02")
	return path.Join(u.prefix, day, doc.Metadata.ID+".json")
}

// Upload writes doc and returns its object key.
func (u *S3Uploader) Upload(ctx context.Context, doc *Document) (string, error) {
	data, err := Marshal(doc)
	if err != nil {
		return "", err
	}
	key := u.Key(doc)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(b, u.maxRetries), ctx)

	err = backoff.Retry(func() error {
		_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(u.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		return err
	}, policy)
	if err != nil {
		return "", fmt.Errorf("upload report to s3://%s/%s: %w", u.bucket, key, err)
	}
	return key, nil
}
