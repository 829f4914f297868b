package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/thinkbook-lm/thinkbook/internal/core"
)

const uploadPrefix = "uploads/"

// S3Store keeps uploads as objects under a fixed key prefix. LocalPath
// downloads the object to a temp file so the extraction layer can work
// on it.
type S3Store struct {
	client *s3.Client
	bucket string
}

func NewS3Store(ctx context.Context, region, accessKey, secretKey, bucket string) (*S3Store, error) {
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("AWS credentials not set")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if bucket == "" {
		return nil, fmt.Errorf("S3 bucket name not set")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &S3Store{client: s3.NewFromConfig(awsCfg), bucket: bucket}, nil
}

func key(name string) string {
	return uploadPrefix + filepath.Base(name)
}

func (s *S3Store) Save(ctx context.Context, name string, r io.Reader) error {
	uploader := manager.NewUploader(s.client)

	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err := uploader.Upload(ctxUpload, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key(name)),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}

func (s *S3Store) LocalPath(ctx context.Context, name string) (string, func(), error) {
	ctxGet, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	resp, err := s.client.GetObject(ctxGet, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key(name)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return "", nil, core.ErrNotFound
		}
		return "", nil, fmt.Errorf("s3 get failed: %w", err)
	}
	defer resp.Body.Close()

	tmp, err := os.CreateTemp("", "thinkbook-*-"+filepath.Base(name))
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("s3 download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, err
	}

	p := tmp.Name()
	return p, func() { os.Remove(p) }, nil
}

func (s *S3Store) Delete(ctx context.Context, name string) error {
	ctxDel, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.client.DeleteObject(ctxDel, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key(name)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}

func (s *S3Store) Exists(ctx context.Context, name string) (bool, error) {
	ctxHead, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := s.client.HeadObject(ctxHead, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key(name)),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("s3 head failed: %w", err)
	}
	return true, nil
}

var _ UploadStore = (*S3Store)(nil)
