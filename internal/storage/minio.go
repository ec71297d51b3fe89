package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"streetsight/internal/config"
	"streetsight/pkg/log"
)

// Store is the minio-backed blob store for stream and detected imagery.
type Store struct {
	cli       *minio.Client
	bucket    string
	urlPrefix string
}

func NewStore(conf config.S3Config) (*Store, error) {
	cli, err := minio.New(conf.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(conf.AccessKeyID, conf.SecretAccessKey, ""),
		Secure: conf.UseSSL,
		Region: conf.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &Store{
		cli:       cli,
		bucket:    conf.Bucket,
		urlPrefix: strings.TrimSuffix(conf.UrlPrefix(), "/"),
	}, nil
}

// UploadBytes stores data under key and returns the public URL.
func (s *Store) UploadBytes(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	_, err := s.cli.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.urlPrefix + "/" + key, nil
}

// RemovePrefix deletes every object under prefix. Used to reset the
// per-user stream folder at the start of a route run.
func (s *Store) RemovePrefix(ctx context.Context, prefix string) error {
	prefix = strings.TrimPrefix(prefix, "/")

	objectCh := s.cli.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	logger := log.GetLogger(ctx)
	removed := 0
	for object := range objectCh {
		if object.Err != nil {
			return fmt.Errorf("list objects under %s: %w", prefix, object.Err)
		}
		if err := s.cli.RemoveObject(ctx, s.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove object %s: %w", object.Key, err)
		}
		removed++
	}
	if removed > 0 {
		logger.Infof("deleted %d objects under %s", removed, prefix)
	}
	return nil
}
