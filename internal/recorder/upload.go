package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrS3NotConfigured indicates bucket or credentials are missing
var ErrS3NotConfigured = errors.New("S3 is not configured")

// uploadTimeout bounds a single object upload
const uploadTimeout = 5 * time.Minute

// S3Config holds S3-compatible storage settings.
type S3Config struct {
	Endpoint        string // custom endpoint (empty for AWS)
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string // key prefix, e.g. "recordings"
}

// IsConfigured returns true if S3 settings are configured.
func (c S3Config) IsConfigured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// S3Uploader puts finished recordings into a bucket.
type S3Uploader struct {
	config S3Config
	client *s3.Client
}

// NewS3Uploader creates an uploader with static credentials. A custom
// endpoint switches to path-style addressing.
func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	if !cfg.IsConfigured() {
		return nil, ErrS3NotConfigured
	}

	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = creds
			o.Region = "auto"
		},
	}
	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Uploader{config: cfg, client: s3.New(s3.Options{}, options...)}, nil
}

// Key returns the object key for a local file
func (u *S3Uploader) Key(localPath string) string {
	return path.Join(u.config.Prefix, filepath.Base(localPath))
}

// Upload puts the file and returns its s3:// URI.
func (u *S3Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, uploadTimeout, errors.New("s3 upload timeout"))
	defer cancel()

	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open for upload: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat for upload: %w", err)
	}

	key := u.Key(localPath)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.config.Bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("audio/wav"),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}

	return fmt.Sprintf("s3://%s/%s", u.config.Bucket, key), nil
}
