package storage

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	domain "github.com/mediscan/mediscan-api/internal/domain/analysis"
)

// Store keeps medication source images in an S3-compatible bucket and hands
// back public URLs for the history view.
type Store struct {
	client     *minio.Client
	bucketName string
	region     string
}

// New connects to the object storage backend and ensures the bucket exists.
func New(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}

	return &Store{client: cli, bucketName: bucket, region: region}, nil
}

// Filenames are restricted to [a-zA-Z0-9.-]; everything else becomes "_".
var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)

// Upload implements analysis.ImageStore. Keys follow
// {owner}/{timestamp}-{sanitizedFilename}.
func (s *Store) Upload(ctx context.Context, owner, filename string, img domain.SourceImage) (string, error) {
	if filename == "" {
		filename = "image.jpg"
	}
	name := unsafeChars.ReplaceAllString(filename, "_")
	key := fmt.Sprintf("%s/%d-%s", owner, time.Now().UnixMilli(), name)

	contentType := img.MIME
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(img.Data), int64(len(img.Data)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "max-age=3600",
	})
	if err != nil {
		return "", err
	}

	// URL publik (bucket public); private buckets would need presigned URLs
	base := strings.TrimRight(s.client.EndpointURL().String(), "/")
	return fmt.Sprintf("%s/%s/%s", base, s.bucketName, key), nil
}
