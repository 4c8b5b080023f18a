package mirror

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig holds explicit construction parameters (mostly for tests).
// For prod we rely primarily on environment variables.
type ClientConfig struct {
	Bucket    string
	Region    string
	Endpoint  string // optional; if set enables a custom endpoint (MinIO, R2)
	AccessKey string // optional (falls back to the default credentials chain)
	SecretKey string // optional
	PathStyle bool
}

// Client uploads files to a single S3-compatible bucket.
type Client struct {
	s3     *s3.Client
	bucket string
}

func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Client{s3: client, bucket: cfg.Bucket}, nil
}

// OpenFromEnv constructs a client from process environment:
//
//	STEADING_MIRROR_BUCKET=<bucket> (required)
//	STEADING_MIRROR_REGION=<region> (default us-east-1)
//	STEADING_MIRROR_ENDPOINT=<url> (optional, for MinIO or R2)
//	STEADING_MIRROR_ACCESS_KEY / STEADING_MIRROR_SECRET_KEY (optional)
//	STEADING_MIRROR_PATH_STYLE=true|false (default false)
func OpenFromEnv(ctx context.Context) (*Client, error) {
	bucket := strings.TrimSpace(os.Getenv("STEADING_MIRROR_BUCKET"))
	if bucket == "" {
		return nil, fmt.Errorf("STEADING_MIRROR_BUCKET required")
	}
	return NewClient(ctx, ClientConfig{
		Bucket:    bucket,
		Region:    strings.TrimSpace(os.Getenv("STEADING_MIRROR_REGION")),
		Endpoint:  strings.TrimSpace(os.Getenv("STEADING_MIRROR_ENDPOINT")),
		AccessKey: strings.TrimSpace(os.Getenv("STEADING_MIRROR_ACCESS_KEY")),
		SecretKey: strings.TrimSpace(os.Getenv("STEADING_MIRROR_SECRET_KEY")),
		PathStyle: strings.EqualFold(strings.TrimSpace(os.Getenv("STEADING_MIRROR_PATH_STYLE")), "true"),
	})
}

func (c *Client) PutFile(ctx context.Context, key, localPath string) error {
	key = normalizeObjectKey(key)
	if key == "" {
		return fmt.Errorf("empty object key")
	}

	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.IsDir() {
		return fmt.Errorf("path is directory: %s", localPath)
	}

	input := &s3.PutObjectInput{Bucket: &c.bucket, Key: &key, Body: f}
	if ct := contentTypeFor(key); ct != "" {
		input.ContentType = &ct
	}
	_, err = c.s3.PutObject(ctx, input)
	return err
}

func normalizeObjectKey(key string) string {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return ""
	}
	clean := path.Clean("/" + key)
	clean = strings.TrimPrefix(clean, "/")
	if clean == "." || strings.HasPrefix(clean, "../") {
		return ""
	}
	return clean
}

func contentTypeFor(key string) string {
	switch {
	case strings.HasSuffix(key, ".zst"):
		return "application/zstd"
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
