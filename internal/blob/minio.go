// Package blob stores intervention attachments in S3-compatible object
// storage. Rows carry only the object key (attachment_ref); bytes live here.
package blob

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"orienta/api/internal/util"
)

type Store struct {
	client *minio.Client
	bucket string
}

func New(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Store, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}

	return &Store{client: client, bucket: bucket}, nil
}

// Put stores an attachment under a fresh case-scoped key and returns the key.
func (s *Store) Put(ctx context.Context, caseID string, reader io.Reader, size int64, contentType string) (string, error) {
	ref := fmt.Sprintf("cases/%s/%s", caseID, util.NewID("att"))
	_, err := s.client.PutObject(ctx, s.bucket, ref, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("put attachment %s: %w", ref, err)
	}
	return ref, nil
}

// Get streams an attachment back. The caller closes the reader.
func (s *Store) Get(ctx context.Context, ref string) (io.ReadCloser, string, error) {
	object, err := s.client.GetObject(ctx, s.bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("get attachment %s: %w", ref, err)
	}
	info, err := object.Stat()
	if err != nil {
		_ = object.Close()
		return nil, "", fmt.Errorf("stat attachment %s: %w", ref, err)
	}
	return object, info.ContentType, nil
}

func (s *Store) Delete(ctx context.Context, ref string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, ref, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete attachment %s: %w", ref, err)
	}
	return nil
}
