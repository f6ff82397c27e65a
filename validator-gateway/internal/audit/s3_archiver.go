package audit

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Archiver stores forwarded images and returns the object key.
type Archiver interface {
	ArchiveImage(ctx context.Context, data []byte) (string, error)
}

// uploader is the subset of *manager.Uploader the archiver needs.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archiver writes images to content-addressed keys:
//
//	s3://<bucket>/<prefix>/images/YYYY/MM/DD/<cid>
type S3Archiver struct {
	bucket   string
	prefix   string
	uploader uploader
	now      func() time.Time
}

// NewS3Archiver loads AWS configuration from the environment (AWS_REGION,
// AWS_PROFILE, AWS_ACCESS_KEY_ID/SECRET etc.).
func NewS3Archiver(ctx context.Context, bucket, prefix string) (*S3Archiver, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return newS3Archiver(bucket, prefix, manager.NewUploader(client)), nil
}

func newS3Archiver(bucket, prefix string, up uploader) *S3Archiver {
	return &S3Archiver{
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		uploader: up,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ObjectKey composes the key for data archived at ts.
func (s *S3Archiver) ObjectKey(data []byte, ts time.Time) (string, error) {
	id, err := ContentID(data)
	if err != nil {
		return "", fmt.Errorf("content id: %w", err)
	}
	year, month, day := ts.Date()
	return path.Join(s.prefix, "images",
		fmt.Sprintf("%04d", year),
		fmt.Sprintf("%02d", int(month)),
		fmt.Sprintf("%02d", day),
		id,
	), nil
}

// ArchiveImage uploads data and returns its object key.
func (s *S3Archiver) ArchiveImage(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image")
	}
	key, err := s.ObjectKey(data, s.now())
	if err != nil {
		return "", err
	}
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(data),
		ContentType:          aws.String(http.DetectContentType(data)),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return key, nil
}
