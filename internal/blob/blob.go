package blob

import (
	"context"
	"io"
	"net/url"
	"strings"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/danielsherratt/webchat/internal/config"
)

// Store 是文件字节的外部存储边界：消息表只保存引用，从不保存字节。
type Store interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) error
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// Key 为上传文件生成随机存储键，同时保留原始文件名以便还原。
func Key(filename string) string {
	return uuid.NewString() + "_" + filename
}

// Filename 从存储键还原原始文件名。
func Filename(key string) string {
	if _, name, ok := strings.Cut(key, "_"); ok {
		return name
	}
	return key
}

// S3Store 基于 S3 兼容接口（R2/MinIO）的对象存储实现。
type S3Store struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

func NewS3Store(ctx context.Context, cfg config.Config) (*S3Store, error) {
	awscfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKey,
			cfg.S3SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awscfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = awsv2.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = true
	})
	return &S3Store{client: client, bucket: cfg.S3Bucket, baseURL: strings.TrimRight(cfg.PublicBaseURL, "/")}, nil
}

func (s *S3Store) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      awsv2.String(s.bucket),
		Key:         awsv2.String(key),
		Body:        body,
		ContentType: awsv2.String(contentType),
	})
	return err
}

func (s *S3Store) List(ctx context.Context) ([]string, error) {
	keys := make([]string, 0)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: awsv2.String(s.bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			keys = append(keys, awsv2.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: awsv2.String(s.bucket),
		Key:    awsv2.String(key),
	})
	return err
}

// URL 返回对象的公开访问地址。
func (s *S3Store) URL(key string) string {
	return s.baseURL + "/" + url.PathEscape(key)
}
