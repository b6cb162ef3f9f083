package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"reading-club-system/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gosimple/slug"
)

// R2Options configures the Cloudflare R2 (S3-compatible) backend.
type R2Options struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	// Namespace separates snapshots of different clubs in one bucket.
	Namespace string
	// Endpoint overrides the default https://<account>.r2.cloudflarestorage.com.
	Endpoint string
}

type objectClient interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// R2Store keeps the latest snapshot at snapshots/<namespace>/latest.json and
// one archive per UTC day at snapshots/<namespace>/archive/<date>.json; the
// day's archive is the last snapshot saved that day.
type R2Store struct {
	client objectClient
	bucket string
	prefix string
	now    func() time.Time
}

func NewR2Store(ctx context.Context, opts R2Options) (*R2Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("R2_BUCKET_NAME required for r2 storage")
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		if opts.AccountID == "" {
			return nil, fmt.Errorf("CLOUDFLARE_ACCOUNT_ID required for r2 storage")
		}
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", opts.AccountID)
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID, opts.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	return newR2Store(client, opts.Bucket, opts.Namespace), nil
}

func newR2Store(client objectClient, bucket, namespace string) *R2Store {
	ns := slug.Make(namespace)
	if ns == "" {
		ns = "default"
	}
	return &R2Store{
		client: client,
		bucket: bucket,
		prefix: "snapshots/" + ns,
		now:    time.Now,
	}
}

func (s *R2Store) latestKey() string { return s.prefix + "/latest.json" }

func (s *R2Store) archiveKey(t time.Time) string {
	return fmt.Sprintf("%s/archive/%s.json", s.prefix, t.UTC().Format("2006-01-02"))
}

func (s *R2Store) Save(ctx context.Context, snap *models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	for _, key := range []string{s.latestKey(), s.archiveKey(s.now())} {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("application/json"),
		})
		if err != nil {
			return fmt.Errorf("failed to upload %s to R2: %w", key, err)
		}
	}
	return nil
}

func (s *R2Store) Load(ctx context.Context) (*models.Snapshot, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.latestKey()),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to download %s from R2: %w", s.latestKey(), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot body: %w", err)
	}
	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	log.Printf("[Storage] loaded snapshot from r2: %s/%s", s.bucket, s.latestKey())
	return &snap, nil
}

func (s *R2Store) Close() error { return nil }
