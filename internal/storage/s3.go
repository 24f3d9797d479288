// Package storage archives finished documents in S3.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// Options configures the archive. Static credentials are used when
// AccessKeyID is set; otherwise the default AWS credential chain applies.
type Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	// SSE is the server-side encryption algorithm ("AES256", "aws:kms"),
	// empty for none.
	SSE string
}

type api interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// ResultArchive uploads results with the S3 transfer manager.
type ResultArchive struct {
	api      api
	uploader *manager.Uploader
	bucket   string
	sse      s3types.ServerSideEncryption
}

// NewResultArchive loads AWS configuration and builds the archive.
func NewResultArchive(ctx context.Context, opts Options) (*ResultArchive, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("bucket not configured")
	}
	var loadOpts []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	cli := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newResultArchive(cli, opts.Bucket, opts.SSE), nil
}

func newResultArchive(c api, bucket, sse string) *ResultArchive {
	return &ResultArchive{
		api:      c,
		uploader: manager.NewUploader(c, func(u *manager.Uploader) { u.PartSize = 16 << 20 }),
		bucket:   bucket,
		sse:      s3types.ServerSideEncryption(sse),
	}
}

// Bucket returns the configured bucket name.
func (a *ResultArchive) Bucket() string { return a.bucket }

// Put uploads a finished PDF under key.
func (a *ResultArchive) Put(ctx context.Context, key string, data []byte) error {
	in := &s3.PutObjectInput{
		Bucket:             aws.String(a.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(data),
		ContentType:        aws.String("application/pdf"),
		ContentDisposition: aws.String(`attachment; filename="extracted_drawing.pdf"`),
		Metadata:           map[string]string{"service": "drawcompress"},
	}
	if a.sse != "" {
		in.ServerSideEncryption = a.sse
	}
	out, err := a.uploader.Upload(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Info().Str("bucket", a.bucket).Str("key", key).Int("size", len(data)).Str("location", out.Location).Msg("archived result to S3")
	return nil
}

// Get downloads an archived result.
func (a *ResultArchive) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := a.api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object: %w", err)
	}
	return data, nil
}

// Ping checks that the bucket is reachable.
func (a *ResultArchive) Ping(ctx context.Context) error {
	_, err := a.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	return err
}
