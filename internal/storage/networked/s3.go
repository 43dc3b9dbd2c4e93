package networked

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// ObjectAPI is the subset of *s3.Client the blob store uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Options addresses an S3-compatible endpoint (MinIO in development).
type S3Options struct {
	User         string
	Password     string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// NewS3Client builds a path-style client with static credentials.
func NewS3Client(ctx context.Context, o S3Options) (ObjectAPI, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(o.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(o.User, o.Password, "")))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newS3ClientFromConfig(cfg, func(so *s3.Options) {
		if o.BaseEndpoint != "" {
			so.BaseEndpoint = aws.String(o.BaseEndpoint)
		}
		so.UsePathStyle = true
	}), nil
}

// S3Blobs stores attachment content as objects, keyed by blob key, with a
// small LRU of recently read or written blobs in front.
type S3Blobs struct {
	api    ObjectAPI
	bucket string
	cache  *lru.Cache[string, []byte]
	log    logging.Logger
}

// NewS3Blobs returns a blob store over api. cacheSize <= 0 disables caching.
func NewS3Blobs(api ObjectAPI, bucket string, cacheSize int, log logging.Logger) (*S3Blobs, error) {
	b := &S3Blobs{api: api, bucket: bucket, log: log}
	if cacheSize > 0 {
		c, err := lru.New[string, []byte](cacheSize)
		if err != nil {
			return nil, err
		}
		b.cache = c
	}
	return b, nil
}

func (b *S3Blobs) PutBlob(ctx context.Context, key string, data []byte) error {
	_, err := b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	if b.cache != nil {
		b.cache.Add(key, data)
	}
	return nil
}

func (b *S3Blobs) GetBlob(ctx context.Context, key string) ([]byte, error) {
	if b.cache != nil {
		if data, ok := b.cache.Get(key); ok {
			return data, nil
		}
	}

	out, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	b.log.Debug(ctx, "blob fetched", "key", key, "bytes", len(data))
	if b.cache != nil {
		b.cache.Add(key, data)
	}
	return data, nil
}

func (b *S3Blobs) DeleteBlob(ctx context.Context, key string) error {
	if b.cache != nil {
		b.cache.Remove(key)
	}
	_, err := b.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}
