package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/harmonialab/harmonia/internal/model"
)

// S3Store keeps payloads in an S3 bucket. Put returns a presigned GET URL
// valid for the configured TTL.
type S3Store struct {
	client *s3.S3
	bucket string
	urlTTL time.Duration
}

func NewS3Store(bucket, region string, urlTTL time.Duration) (*S3Store, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return &S3Store{
		client: s3.New(sess),
		bucket: bucket,
		urlTTL: urlTTL,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte) (string, error) {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("audio/wav"),
	})
	if err != nil {
		return "", fmt.Errorf("%w: upload %s: %v", model.ErrPersistenceFailure, key, err)
	}

	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(s.urlTTL)
	if err != nil {
		return "", fmt.Errorf("%w: presign %s: %v", model.ErrPersistenceFailure, key, err)
	}
	return url, nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, fmt.Errorf("audio %s: %w", key, model.ErrNotFoundOrForbidden)
		}
		return nil, fmt.Errorf("%w: fetch %s: %v", model.ErrPersistenceFailure, key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", model.ErrPersistenceFailure, key, err)
	}
	return nil
}
