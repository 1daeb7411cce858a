package blob

import (
	"errors"
	"strings"
)

type S3BlobConfig struct {
	BucketName string
	Region     string
	AccessKey  string
	SecretKey  string
	Endpoint   string
	// Prefix is prepended to every object key, so several catalogs can share a bucket.
	Prefix        string
	UseAccelerate bool
}

// WithS3Config creates a configuration for an S3 bucket
func WithS3Config(bucketName, region, accessKey, secretKey string, accelerate bool) *S3BlobConfig {
	return &S3BlobConfig{
		BucketName:    bucketName,
		Region:        region,
		AccessKey:     accessKey,
		SecretKey:     secretKey,
		UseAccelerate: accelerate,
	}
}

// WithMinioConfig creates a configuration for a Minio bucket
func WithMinioConfig(url, bucketName, accessKey, secretKey string) *S3BlobConfig {
	return &S3BlobConfig{
		BucketName: bucketName,
		Endpoint:   url,
		Region:     "us-east-1",
		AccessKey:  accessKey,
		SecretKey:  secretKey,
	}
}

func (c *S3BlobConfig) Validate() error {
	if c.BucketName == "" {
		return errors.New("s3 bucket name is required")
	}
	if c.Region == "" && c.Endpoint == "" {
		return errors.New("s3 region or endpoint is required")
	}
	if c.Endpoint != "" && !strings.HasPrefix(c.Endpoint, "http://") && !strings.HasPrefix(c.Endpoint, "https://") {
		return errors.New("s3 endpoint must be an http(s) url")
	}
	return nil
}
