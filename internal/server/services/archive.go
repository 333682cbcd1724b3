package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/coder/quartz"
	"github.com/dmitrijs2005/tiergate/internal/server/models"
)

var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = s3.NewFromConfig
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Options struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Bucket       string
}

// S3Archiver writes swept records to an S3 compatible bucket as JSON.
type S3Archiver struct {
	client objectPutter
	bucket string
	clock  quartz.Clock
}

func NewS3Archiver(ctx context.Context, opts S3Options, clock quartz.Clock) (*S3Archiver, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	if clock == nil {
		clock = quartz.NewReal()
	}
	return &S3Archiver{client: client, bucket: opts.Bucket, clock: clock}, nil
}

// ArchiveKey is the object key for a record swept at the current time.
func (a *S3Archiver) ArchiveKey(userID string) string {
	d := a.clock.Now().UTC()
	return fmt.Sprintf("archive/%04d/%02d/%02d/%s.json", d.Year(), d.Month(), d.Day(), userID)
}

func (a *S3Archiver) Archive(ctx context.Context, u *models.UserRecord) error {
	body, err := json.Marshal(u)
	if err != nil {
		return err
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.ArchiveKey(u.ID)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", u.ID, err)
	}
	return nil
}
