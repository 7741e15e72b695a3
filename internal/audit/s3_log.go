package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wolfman30/hospital-voice-booking/pkg/logging"
)

// S3API is the subset of the S3 client used by S3Log.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Log keeps one JSONL object per booking date. S3 has no append, so each
// write reads the day's object and rewrites it.
type S3Log struct {
	bucket string
	client S3API
	mu     sync.Mutex
	logger *logging.Logger
}

// NewS3Log creates an S3Log. With an empty bucket every call is a no-op.
func NewS3Log(client S3API, bucket string, logger *logging.Logger) *S3Log {
	if logger == nil {
		logger = logging.Default()
	}
	return &S3Log{bucket: bucket, client: client, logger: logger}
}

// Enabled reports whether a bucket and client are configured.
func (l *S3Log) Enabled() bool {
	return l != nil && l.bucket != "" && l.client != nil
}

const keyPrefix = "bookings/v1/by-date/"

func objectKey(date string) string {
	// date is YYYY-MM-DD
	return keyPrefix + strings.ReplaceAll(date, "-", "/") + ".jsonl"
}

// Append adds entry to its date's object.
func (l *S3Log) Append(ctx context.Context, entry Entry) error {
	if !l.Enabled() {
		return nil
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	key := objectKey(entry.Date)

	l.mu.Lock()
	defer l.mu.Unlock()

	existing, err := l.read(ctx, key)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = l.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(l.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("audit: s3 put %s: %w", key, err)
	}
	return nil
}

// Entries reads the object for date.
func (l *S3Log) Entries(ctx context.Context, date string) ([]Entry, error) {
	if !l.Enabled() {
		return nil, nil
	}
	data, err := l.read(ctx, objectKey(date))
	if err != nil {
		return nil, err
	}
	return decodeLines(data, onDate(date), l.logger), nil
}

// EntriesBetween lists the daily objects from..to and reads only those that
// exist. Keys sort by date, so the listing stops past the last day.
func (l *S3Log) EntriesBetween(ctx context.Context, from, to string) ([]Entry, error) {
	if !l.Enabled() {
		return nil, nil
	}
	last := objectKey(to)
	pages := s3.NewListObjectsV2Paginator(l.client, &s3.ListObjectsV2Input{
		Bucket:     aws.String(l.bucket),
		Prefix:     aws.String(keyPrefix),
		StartAfter: aws.String(strings.TrimSuffix(objectKey(from), ".jsonl")),
	})
	keep := between(from, to)
	var out []Entry
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("audit: s3 list %s: %w", keyPrefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key > last {
				return out, nil
			}
			data, err := l.read(ctx, key)
			if err != nil {
				return nil, err
			}
			out = append(out, decodeLines(data, keep, l.logger)...)
		}
	}
	return out, nil
}

func (l *S3Log) read(ctx context.Context, key string) ([]byte, error) {
	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("audit: s3 read %s: %w", key, err)
	}
	return data, nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *s3types.NotFound
	return errors.As(err, &nf)
}
