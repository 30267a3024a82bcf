package minio

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TransitLedger/pkg/errors"
)

var (
	ErrObjectNotFound = errors.New(errors.ErrCodeNotFound, "object not found")
	ErrUploadFailed   = errors.New(errors.ErrCodeStorage, "upload failed")
	ErrInvalidRequest = errors.New(errors.ErrCodeValidation, "invalid request")
)

// ExportStore writes generated documents to the exports bucket.
type ExportStore interface {
	Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error)
	Exists(ctx context.Context, objectKey string) (bool, error)
	Delete(ctx context.Context, objectKey string) error
	PresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

type UploadRequest struct {
	ObjectKey   string
	Data        []byte
	ContentType string
	Metadata    map[string]string
	Tags        map[string]string
}

type UploadResult struct {
	Bucket     string
	ObjectKey  string
	ETag       string
	Size       int64
	UploadedAt time.Time
}

type minioRepository struct {
	client *MinIOClient
	logger logging.Logger
}

// NewExportStore builds an ExportStore over client.
func NewExportStore(client *MinIOClient, log logging.Logger) ExportStore {
	return &minioRepository{client: client, logger: log}
}

func (r *minioRepository) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	if r.client.isClosed() {
		return nil, ErrMinIOClientClosed
	}
	if req == nil || req.ObjectKey == "" || len(req.Data) == 0 {
		return nil, ErrInvalidRequest
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(req.Data[:min(512, len(req.Data))])
	}

	bucket := r.client.Bucket()
	info, err := r.client.GetClient().PutObject(ctx, bucket, req.ObjectKey,
		bytes.NewReader(req.Data), int64(len(req.Data)), minio.PutObjectOptions{
			ContentType:  contentType,
			UserMetadata: req.Metadata,
			UserTags:     req.Tags,
		})
	if err != nil {
		r.logger.Error("export upload failed",
			logging.String("object", req.ObjectKey),
			logging.Err(err))
		return nil, ErrUploadFailed.WithCause(err).WithMeta("object", req.ObjectKey)
	}

	r.logger.Info("export uploaded",
		logging.String("bucket", bucket),
		logging.String("object", req.ObjectKey),
		logging.Int64("size", info.Size))

	return &UploadResult{
		Bucket:     bucket,
		ObjectKey:  req.ObjectKey,
		ETag:       info.ETag,
		Size:       info.Size,
		UploadedAt: time.Now().UTC(),
	}, nil
}

func (r *minioRepository) Exists(ctx context.Context, objectKey string) (bool, error) {
	_, err := r.client.GetClient().StatObject(ctx, r.client.Bucket(), objectKey, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, errors.Wrap(err, errors.ErrCodeStorage, "stat failed")
	}
	return true, nil
}

func (r *minioRepository) Delete(ctx context.Context, objectKey string) error {
	if err := r.client.GetClient().RemoveObject(ctx, r.client.Bucket(), objectKey, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorage, "delete failed")
	}
	return nil
}

func (r *minioRepository) PresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	if objectKey == "" {
		return "", ErrInvalidRequest
	}
	if expiry <= 0 {
		expiry = r.client.config.PresignExpiry
	}
	u, err := r.client.GetClient().PresignedGetObject(ctx, r.client.Bucket(), objectKey, expiry, nil)
	if err != nil {
		if isNoSuchKey(err) {
			return "", ErrObjectNotFound
		}
		return "", errors.Wrap(err, errors.ErrCodeStorage, "presign failed")
	}
	return u.String(), nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
