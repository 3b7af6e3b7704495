package service

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Storage implements Storage on an S3 bucket
type S3Storage struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Storage creates a Storage on s3://bucket/prefix
// If accessKeyID is empty, the default credential chain is used.
// endpoint is optional (S3-compatible servers)
func NewS3Storage(ctx context.Context, storageURI, accessKeyID, secretAccessKey, region, endpoint string) (*S3Storage, error) {
	bucket, prefix, err := splitBucketURI(storageURI, "s3://")
	if err != nil {
		return nil, fmt.Errorf("NewS3Storage: %w", err)
	}
	var opts []func(*config.LoadOptions) error
	if accessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")))
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewS3Storage.LoadDefaultConfig: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Storage{client: client, bucket: bucket, prefix: prefix}, nil
}

func splitBucketURI(storageURI, scheme string) (string, string, error) {
	s := strings.TrimPrefix(storageURI, scheme)
	splits := strings.SplitN(s, "/", 2)
	if splits[0] == "" {
		return "", "", fmt.Errorf("missing bucket in %s", storageURI)
	}
	if len(splits) == 1 {
		return splits[0], "", nil
	}
	return splits[0], strings.Trim(splits[1], "/"), nil
}

func (s *S3Storage) key(name string) string {
	return path.Join(s.prefix, name)
}

// Save implements Storage
func (s *S3Storage) Save(ctx context.Context, localPath, name string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("S3Storage.Save.Open: %w", err)
	}
	defer f.Close()

	uploader := manager.NewUploader(s.client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024 // 10MB per part
	})
	key := s.key(name)
	if _, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	}); err != nil {
		return "", fmt.Errorf("S3Storage.Save.Upload: %w", err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// Import implements Storage
func (s *S3Storage) Import(ctx context.Context, name, localPath string) error {
	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("S3Storage.Import.Create: %w", err)
	}
	defer file.Close()

	downloader := manager.NewDownloader(s.client, func(d *manager.Downloader) {
		d.PartSize = 10 * 1024 * 1024
	})
	key := s.key(name)
	if _, err = downloader.Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		os.Remove(localPath)
		if isErrNotFound(err) {
			return ErrFileNotFound{"s3://" + s.bucket + "/" + key}
		}
		return fmt.Errorf("S3Storage.Import.Download: %w", err)
	}
	return nil
}

// Delete implements Storage
func (s *S3Storage) Delete(ctx context.Context, name string) error {
	key := s.key(name)
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		if isErrNotFound(err) {
			return ErrFileNotFound{"s3://" + s.bucket + "/" + key}
		}
		return fmt.Errorf("S3Storage.Delete.HeadObject: %w", err)
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		return fmt.Errorf("S3Storage.Delete: %w", err)
	}
	return nil
}
