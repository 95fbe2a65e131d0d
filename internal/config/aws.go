package config

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
)

// LoadAwsConfig loads the default AWS credential chain pinned to the storage region
func LoadAwsConfig(ctx context.Context, storage StorageConfig) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{}
	if storage.Region != "" {
		opts = append(opts, config.WithRegion(storage.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	return cfg, nil
}
