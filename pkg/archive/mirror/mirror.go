// Package mirror copies verified archive files to S3-compatible object
// storage. Mirroring is best effort: the local file and catalog entry remain
// the source of truth.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"mercator-hq/archivist/pkg/archive"
	"mercator-hq/archivist/pkg/config"
	"mercator-hq/archivist/pkg/security/secrets"
)

// putObjectAPI is the subset of the S3 client used by the mirror.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror uploads archive files to a bucket under
// <prefix><table>/<file name>.
type S3Mirror struct {
	client  putObjectAPI
	bucket  string
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewS3Mirror creates a mirror from configuration. Static credentials are
// used when set and may be env: or file: references; otherwise requests are
// sent unsigned, which suits local S3-compatible servers.
func NewS3Mirror(cfg config.MirrorConfig) (*S3Mirror, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("mirror bucket cannot be empty")
	}

	ctx := context.Background()
	keyID, err := secrets.Resolve(ctx, cfg.AccessKeyID)
	if err != nil {
		return nil, fmt.Errorf("mirror access key: %w", err)
	}
	secret, err := secrets.Resolve(ctx, cfg.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("mirror secret key: %w", err)
	}

	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.UsePathStyle,
	}
	if keyID != "" && secret != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(keyID, secret, "")
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	return newS3Mirror(s3.New(opts), cfg.Bucket, cfg.Prefix, cfg.Timeout), nil
}

func newS3Mirror(client putObjectAPI, bucket, prefix string, timeout time.Duration) *S3Mirror {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Mirror{
		client:  client,
		bucket:  bucket,
		prefix:  prefix,
		timeout: timeout,
		logger:  slog.Default().With("component", "archive.mirror"),
	}
}

// Key returns the object key for record.
func (m *S3Mirror) Key(record *archive.ArchiveRecord) string {
	return m.prefix + path.Join(record.Table, filepath.Base(record.FilePath))
}

// Upload copies the archive file of record to the bucket. The catalog
// checksum and record count travel as object metadata.
func (m *S3Mirror) Upload(ctx context.Context, record *archive.ArchiveRecord) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	f, err := os.Open(record.FilePath)
	if err != nil {
		return fmt.Errorf("open archive %s for mirroring: %w", record.UUID, err)
	}
	defer f.Close()

	key := m.Key(record)
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(record.FileSizeBytes),
		ContentType:   aws.String("application/gzip"),
		Metadata: map[string]string{
			"archive-uuid": record.UUID,
			"sha256":       record.Checksum,
			"record-count": strconv.FormatInt(record.RecordCount, 10),
		},
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", m.bucket, key, err)
	}

	m.logger.InfoContext(ctx, "Archive mirrored",
		"archive_uuid", record.UUID,
		"bucket", m.bucket,
		"key", key,
	)
	return nil
}
