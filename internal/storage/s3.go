package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/shopspring/decimal"
	"github.com/voxagent/billing/internal/config"
	ierr "github.com/voxagent/billing/internal/errors"
	"github.com/voxagent/billing/internal/logger"
)

// UsageReader reports the bytes a workspace currently stores
type UsageReader interface {
	WorkspaceStorageBytes(ctx context.Context, workspaceID string) (decimal.Decimal, error)
}

type s3UsageReader struct {
	client  *s3.Client
	bucket  string
	prefix  string
	timeout time.Duration
	logger  *logger.Logger
}

// NewUsageReader returns the S3 reader, or one that reports the collaborator as unavailable
func NewUsageReader(cfg *config.Configuration, logger *logger.Logger) (UsageReader, error) {
	if !cfg.Storage.S3Enabled {
		return &unavailableReader{}, nil
	}

	awsCfg, err := config.LoadAwsConfig(context.Background(), cfg.Storage)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to load AWS configuration").
			Mark(ierr.ErrConfiguration)
	}

	timeout := cfg.Storage.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &s3UsageReader{
		client:  s3.NewFromConfig(awsCfg),
		bucket:  cfg.Storage.Bucket,
		prefix:  cfg.Storage.KeyPrefix,
		timeout: timeout,
		logger:  logger,
	}, nil
}

func (r *s3UsageReader) workspacePrefix(workspaceID string) string {
	return workspaceKeyPrefix(r.prefix, workspaceID)
}

func workspaceKeyPrefix(prefix, workspaceID string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return workspaceID + "/"
	}
	return fmt.Sprintf("%s/%s/", prefix, workspaceID)
}

func (r *s3UsageReader) WorkspaceStorageBytes(ctx context.Context, workspaceID string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	key := r.workspacePrefix(workspaceID)
	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(key),
	})

	total := decimal.Zero
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			r.logger.Errorw("failed to list workspace storage",
				"error", err,
				"workspace_id", workspaceID,
				"bucket", r.bucket,
			)
			return decimal.Zero, ierr.WithError(err).
				WithHint("Storage usage is unavailable").
				WithMessagef("bucket:%s, prefix:%s", r.bucket, key).
				Mark(ierr.ErrExternalDependency)
		}
		for _, obj := range page.Contents {
			total = total.Add(decimal.NewFromInt(aws.ToInt64(obj.Size)))
		}
	}

	return total, nil
}

type unavailableReader struct{}

func (unavailableReader) WorkspaceStorageBytes(_ context.Context, workspaceID string) (decimal.Decimal, error) {
	return decimal.Zero, ierr.NewError("storage usage collaborator is not configured").
		WithHint("Storage usage is unavailable").
		WithReportableDetails(map[string]interface{}{
			"workspace_id": workspaceID,
		}).
		Mark(ierr.ErrExternalDependency)
}
