// Package store provides the AWS-backed persistence adapters: S3 for
// session record blobs and DynamoDB for their metadata entries.
package store

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/rtcpulse/internal/core"
)

// S3Store uploads session records to a single bucket, gzip-encoded by
// the caller or plain, under their dump key.
type S3Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	signTTL   time.Duration
}

type S3Options struct {
	Bucket string
	// SignedLinkTTL of zero disables SignedURL.
	SignedLinkTTL time.Duration
}

func NewS3Store(client *s3.Client, opts S3Options) *S3Store {
	s := &S3Store{
		client:  client,
		bucket:  opts.Bucket,
		signTTL: opts.SignedLinkTTL,
	}
	if opts.SignedLinkTTL > 0 {
		s.presigner = s3.NewPresignClient(client)
	}
	return s
}

func (s *S3Store) Put(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open record %s: %w", localPath, err)
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("upload %s to s3://%s: %w", key, s.bucket, err)
	}

	log.Debug().Str("module", "store").Str("bucket", s.bucket).Str("key", key).Msg("record uploaded")
	return nil
}

func (s *S3Store) SignedURL(ctx context.Context, key string) (string, error) {
	if s.presigner == nil {
		return "", core.ErrNotSupported
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.signTTL))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}
