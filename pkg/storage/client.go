package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	apperrors "github.com/cecad-imaging/omerowatch/pkg/errors"
	"github.com/dustin/go-humanize"
)

// ErrObjectExists is returned by Upload when the key is already taken
var ErrObjectExists = errors.New("object already exists")

// Client provides S3 storage operations
type Client struct {
	s3Client *s3.Client
	bucket   string
}

// Options configures the S3 client. Endpoint is only needed for
// S3-compatible stores such as MinIO.
type Options struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// NewClient creates a new S3 client using the default credential chain
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	slog.Info("s3_client_init", "bucket", opts.Bucket, "region", opts.Region, "endpoint", opts.Endpoint)

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(opts.Region))
	if err != nil {
		slog.Error("aws_config_load_failed", "error", err)
		return nil, apperrors.Wrap(err, "failed to load AWS config")
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	slog.Info("s3_client_created", "bucket", opts.Bucket)

	return &Client{
		s3Client: s3Client,
		bucket:   opts.Bucket,
	}, nil
}

// Bucket returns the bucket the client writes to.
func (c *Client) Bucket() string {
	return c.bucket
}

// UploadResult contains upload metadata
type UploadResult struct {
	Key    string
	SHA256 string
	Size   int64
}

// Upload stores data under key and records its SHA256 as object metadata.
// The put is conditional: an existing object is never replaced and
// ErrObjectExists is returned instead.
func (c *Client) Upload(ctx context.Context, key string, data []byte, contentType string) (*UploadResult, error) {
	slog.Info("s3_upload_start", "bucket", c.bucket, "s3_key", key, "size", humanize.Bytes(uint64(len(data))))

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		Metadata:      map[string]string{"sha256": checksum},
		IfNoneMatch:   aws.String("*"),
	})
	if isConditionFailure(err) {
		slog.Info("s3_object_exists", "s3_key", key)
		return nil, ErrObjectExists
	}
	if err != nil {
		slog.Error("s3_put_object_failed", "s3_key", key, "error", err)
		return nil, apperrors.Wrap(err, "failed to put object to S3")
	}

	slog.Info("s3_upload_complete",
		"s3_key", key,
		"size", humanize.Bytes(uint64(len(data))),
		"sha256", checksum[:16]+"...",
	)

	return &UploadResult{
		Key:    key,
		SHA256: checksum,
		Size:   int64(len(data)),
	}, nil
}

// ListObjects lists all objects in the bucket with a given prefix
func (c *Client) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	slog.Info("s3_list_start", "bucket", c.bucket, "prefix", prefix)

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, input)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			slog.Error("s3_list_failed", "prefix", prefix, "error", err)
			return nil, apperrors.Wrap(err, "failed to list objects")
		}

		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
	}

	slog.Info("s3_list_complete", "prefix", prefix, "object_count", len(keys))

	return keys, nil
}

// Exists checks if an object exists in S3
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})

	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			slog.Info("s3_object_not_found", "s3_key", key)
			return false, nil
		}
		slog.Error("s3_head_object_failed", "s3_key", key, "error", err)
		return false, apperrors.Wrap(err, "failed to check object existence")
	}

	slog.Info("s3_object_exists", "s3_key", key)
	return true, nil
}

// isConditionFailure reports whether a conditional put lost to an existing
// object or to a concurrent write of the same key.
func isConditionFailure(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}
