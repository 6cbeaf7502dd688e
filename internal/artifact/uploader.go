// Package artifact uploads dataset exports and graph buffers to an
// S3-compatible bucket such as Cloudflare R2.
package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// Kind selects the object extension and content type.
type Kind string

// Artifact kinds.
const (
	KindJSON   Kind = "json"
	KindCSV    Kind = "csv"
	KindBuffer Kind = "b64"
	KindCBOR   Kind = "cbor"
)

var contentTypes = map[Kind]string{
	KindJSON:   "application/json",
	KindCSV:    "text/csv",
	KindBuffer: "text/plain; charset=utf-8",
	KindCBOR:   "application/cbor",
}

// Validation errors.
var (
	ErrUnsupportedKind = errors.New("unsupported artifact kind")
	ErrInvalidDataset  = errors.New("invalid dataset name")
	ErrTooLarge        = errors.New("artifact exceeds maximum size")
)

// PutObjectAPI is the subset of the S3 client used for uploads.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds bucket credentials and limits.
type Config struct {
	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	MaxSizeMB       int

	// URLExpiryMinutes bounds presigned download URLs. Default: 15 minutes.
	URLExpiryMinutes int
}

// Uploaded describes a stored object.
type Uploaded struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Uploader writes artifacts under datasets/{name}/{uuid}.{ext}.
type Uploader struct {
	client        PutObjectAPI
	presignClient *s3.PresignClient
	bucketName    string
	maxSizeBytes  int64
	urlExpiry     time.Duration
	timeNow       func() time.Time
}

// NewUploader creates an uploader with an R2-compatible S3 client.
func NewUploader(cfg Config) (*Uploader, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 64
	}
	if cfg.URLExpiryMinutes <= 0 {
		cfg.URLExpiryMinutes = 15
	}

	client := s3.New(s3.Options{
		Region: "auto",
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,
	})

	u := newUploader(client, cfg.BucketName, int64(cfg.MaxSizeMB)*1024*1024)
	u.presignClient = s3.NewPresignClient(client)
	u.urlExpiry = time.Duration(cfg.URLExpiryMinutes) * time.Minute
	return u, nil
}

func newUploader(client PutObjectAPI, bucket string, maxSize int64) *Uploader {
	return &Uploader{
		client:       client,
		bucketName:   bucket,
		maxSizeBytes: maxSize,
		timeNow:      time.Now,
	}
}

// ObjectKey builds datasets/{dataset}/{uuid}.{ext}. The dataset name is
// reduced to [A-Za-z0-9_-].
func ObjectKey(dataset string, kind Kind) (string, error) {
	if _, ok := contentTypes[kind]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKind, kind)
	}
	name := sanitizePathComponent(dataset)
	if name == "" {
		return "", ErrInvalidDataset
	}
	return fmt.Sprintf("datasets/%s/%s.%s", name, uuid.New().String(), kind), nil
}

func sanitizePathComponent(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Upload stores body as a new object and returns its key.
func (u *Uploader) Upload(ctx context.Context, dataset string, kind Kind, body []byte) (*Uploaded, error) {
	if int64(len(body)) > u.maxSizeBytes {
		return nil, ErrTooLarge
	}
	key, err := ObjectKey(dataset, kind)
	if err != nil {
		return nil, err
	}
	contentType := contentTypes[kind]

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return nil, fmt.Errorf("put object %s: %w", key, err)
	}
	return &Uploaded{
		Key:         key,
		ContentType: contentType,
		SizeBytes:   int64(len(body)),
		UploadedAt:  u.timeNow().UTC(),
	}, nil
}

// PresignDownload returns a time-limited GET URL for key.
func (u *Uploader) PresignDownload(ctx context.Context, key string) (string, time.Time, error) {
	if u.presignClient == nil {
		return "", time.Time{}, errors.New("presigning is not configured")
	}
	req, err := u.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.bucketName),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = u.urlExpiry
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to presign request: %w", err)
	}
	return req.URL, u.timeNow().Add(u.urlExpiry), nil
}

// BucketName returns the target bucket.
func (u *Uploader) BucketName() string {
	return u.bucketName
}
