package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"livechat/internal/pkg/logx"
)

// ErrObjectNotFound is returned by Stat for a missing object.
var ErrObjectNotFound = errors.New("storage: object not found")

// s3Client implements the StorageService interface, handling interactions with S3-compatible storage.
type s3Client struct {
	cfg      ServiceConfig
	s3Client *s3.Client
	presign  *s3.PresignClient
	logger   zerolog.Logger
}

// newS3Client initializes the S3 client using a custom configuration that supports S3-compatible endpoints.
func newS3Client(cfg ServiceConfig) (*s3Client, error) {
	sdkCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKeyID,
			cfg.S3SecretAccessKey,
			"",
		)),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 client configuration: %w", err)
	}

	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		o.UsePathStyle = true
	})

	return &s3Client{
		cfg:      cfg,
		s3Client: client,
		presign:  s3.NewPresignClient(client),
		logger:   logx.Component("storage"),
	}, nil
}

// PresignUpload generates a presigned URL for uploading a file with the specified key, MIME type, and size.
func (c *s3Client) PresignUpload(
	ctx context.Context,
	key string,
	mimeType string,
	fileSize int64,
	duration time.Duration,
) (string, error) {
	presignInput := &s3.PutObjectInput{
		Bucket:        aws.String(c.cfg.S3BucketName),
		Key:           aws.String(key),
		ContentType:   aws.String(mimeType),
		ContentLength: aws.Int64(fileSize),
	}

	resp, err := c.presign.PresignPutObject(ctx, presignInput, s3.WithPresignExpires(duration))
	if err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("Failed to generate presigned upload URL")
		return "", fmt.Errorf("presign upload %s: %w", key, err)
	}

	return resp.URL, nil
}

// Stat retrieves the content type and size of an object.
func (c *s3Client) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	resp, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.cfg.S3BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, ErrObjectNotFound
		}
		c.logger.Error().Err(err).Str("key", key).Msg("Failed to get S3 object metadata")
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}

	return &ObjectInfo{
		ContentType: aws.ToString(resp.ContentType),
		Size:        aws.ToInt64(resp.ContentLength),
	}, nil
}

// Delete removes the file specified by the given key from the bucket.
func (c *s3Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.cfg.S3BucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		c.logger.Error().Err(err).Str("key", key).Msg("S3 delete failed")
		return fmt.Errorf("delete %s: %w", key, err)
	}

	return nil
}
