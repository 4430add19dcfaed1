package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/docship/docship/agent/internal/config"
	"github.com/docship/docship/agent/internal/fault"
	"github.com/docship/docship/agent/internal/retry"
)

// ObjectStore uploads delivery units to an S3-compatible bucket.
type ObjectStore struct {
	client *minio.Client
	bucket string
	region string
	prefix string
	mode   string
	create bool
}

// NewObjectStore builds a minio client for cfg. No network call is made here.
func NewObjectStore(cfg config.ObjectStoreConfig, creds config.Credentials, mode string) (*ObjectStore, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("delivery: objectstore endpoint is required")
	}
	if creds.AccessKey == "" || creds.SecretKey == "" {
		return nil, fmt.Errorf("delivery: objectstore access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("delivery: objectstore bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = config.DefaultRegion
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(creds.AccessKey, creds.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
		// Retries belong to the pipeline's retry executor.
		MaxRetries: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("delivery: init s3 client: %w", err)
	}

	return &ObjectStore{
		client: client,
		bucket: bucket,
		region: region,
		prefix: strings.Trim(cfg.Prefix, "/"),
		mode:   mode,
		create: cfg.CreateBucket,
	}, nil
}

func (s *ObjectStore) Kind() string { return "objectstore" }

// Prepare finds the bucket, creating it when allowed.
func (s *ObjectStore) Prepare(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fault.New(fault.KindDestination, "lookup bucket "+s.bucket, err)
	}
	if exists {
		return nil
	}
	if !s.create {
		return retry.Permanent(fault.Errorf(fault.KindDestination, "lookup bucket",
			"bucket %q not found and create_bucket is disabled", s.bucket))
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		// Another agent may have created it in the meantime.
		if code := minio.ToErrorResponse(err).Code; code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return fault.New(fault.KindDestination, "create bucket "+s.bucket, err)
	}
	slog.Info("delivery: created bucket", "bucket", s.bucket, "region", s.region)
	return nil
}

// Plan returns one unit per uploaded object: the archive (archive mode) or
// every scanned file (files mode), then the run log.
func (s *ObjectStore) Plan(p Payload) []Unit {
	if p.Empty() {
		return nil
	}
	var units []Unit
	add := func(name, local string) {
		units = append(units, Unit{
			Name:        name,
			Key:         s.objectKey(p.RunID, name),
			Attachments: []string{local},
		})
	}

	switch {
	case s.mode == "files":
		for _, f := range p.Files {
			add(relName(p.Root, f.Path), f.Path)
		}
	case p.Artifact != nil:
		add(filepath.Base(p.Artifact.Path), p.Artifact.Path)
	}
	if p.LogPath != "" && len(units) > 0 {
		add(filepath.Base(p.LogPath), p.LogPath)
	}
	return units
}

// Send uploads the unit's single attachment under its object key.
func (s *ObjectStore) Send(ctx context.Context, u Unit) error {
	if len(u.Attachments) != 1 {
		return fault.Errorf(fault.KindDelivery, "upload "+u.Name, "expected one attachment, got %d", len(u.Attachments))
	}
	local := u.Attachments[0]

	contentType := mime.TypeByExtension(filepath.Ext(local))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	info, err := s.client.FPutObject(ctx, s.bucket, u.Key, local, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fault.New(fault.KindDelivery, "upload "+u.Name, err)
	}

	slog.Info("delivery: uploaded object",
		"bucket", s.bucket, "key", u.Key, "bytes", info.Size)
	return nil
}

func (s *ObjectStore) objectKey(runID, name string) string {
	parts := make([]string, 0, 3)
	if s.prefix != "" {
		parts = append(parts, s.prefix)
	}
	if runID != "" {
		parts = append(parts, runID)
	}
	parts = append(parts, strings.TrimLeft(name, "/"))
	return path.Join(parts...)
}
