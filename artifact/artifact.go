// CLAUDE:SUMMARY S3 artifact gateway: upload, download, presigned URLs.
// Package artifact stores pipeline outputs (custom report workbooks,
// 7501 batch PDFs) in an S3-compatible bucket and hands out presigned
// URLs for them.
package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config configures the gateway.
type Config struct {
	Bucket string
	Region string

	// Endpoint overrides the S3 endpoint (MinIO, LocalStack). Forces
	// path-style addressing.
	Endpoint string

	// AccessKey and SecretKey override the default credential chain
	// when both are set.
	AccessKey string
	SecretKey string

	// Prefix roots every object key. Default: "netchb-duty".
	Prefix string

	// PresignTTL is the default presigned-URL lifetime. Default: 1h.
	PresignTTL time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Prefix == "" {
		c.Prefix = "netchb-duty"
	}
	if c.PresignTTL <= 0 {
		c.PresignTTL = time.Hour
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Gateway is the artifact store client.
type Gateway struct {
	cfg     Config
	client  *s3.Client
	presign *s3.PresignClient
}

// New builds a Gateway. Credentials come from Config when set, the
// default AWS chain otherwise.
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	cfg.defaults()
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("artifact: bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("artifact: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Gateway{
		cfg:     cfg,
		client:  client,
		presign: s3.NewPresignClient(client),
	}, nil
}

// UploadBytes writes one object.
func (g *Gateway) UploadBytes(ctx context.Context, key, contentType string, data []byte) error {
	_, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("artifact: put %s: %w", key, err)
	}
	g.cfg.Logger.Info("artifact uploaded", "key", key, "bytes", len(data))
	return nil
}

// Download reads one object back.
func (g *Gateway) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("artifact: get %s: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("artifact: read %s: %w", key, err)
	}
	return data, nil
}

// Presign returns a time-limited GET URL. A non-positive ttl uses the
// configured default; keys outlive the URL and can be re-signed later.
func (g *Gateway) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = g.cfg.PresignTTL
	}
	req, err := g.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("artifact: presign %s: %w", key, err)
	}
	return req.URL, nil
}

// Prefix exposes the configured key prefix for key construction.
func (g *Gateway) Prefix() string {
	return g.cfg.Prefix
}
