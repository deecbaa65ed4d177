// Package download hands out short-lived presigned S3 URLs for
// purchased archives. A link is only minted against an entitlement that
// currently grants access; the bucket itself stays private.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/orunkhq/orunk/pkg/entitlement"
)

var (
	// ErrNotAccessible is returned when the entitlement does not
	// currently grant access.
	ErrNotAccessible = errors.New("download: entitlement does not grant access")

	// ErrNoArtifact is returned when the feature has no downloadable
	// archive configured.
	ErrNoArtifact = errors.New("download: no artifact for feature")
)

// Config holds the bucket settings.
type Config struct {
	Bucket      string        `env:"DOWNLOAD_S3_BUCKET,required"`
	Region      string        `env:"DOWNLOAD_S3_REGION,required"`
	AccessKeyID string        `env:"DOWNLOAD_S3_ACCESS_KEY_ID"`
	SecretKey   string        `env:"DOWNLOAD_S3_SECRET_KEY"`
	Endpoint    string        `env:"DOWNLOAD_S3_ENDPOINT"` // S3-compatible services
	URLTTL      time.Duration `env:"DOWNLOAD_URL_TTL" envDefault:"15m"`
}

// Presigner is the slice of *s3.PresignClient the service uses,
// extracted so tests can stub it.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Link is a minted download.
type Link struct {
	URL       string
	ExpiresAt time.Time
}

// Service mints download links. Artifacts map feature keys to object
// keys in the bucket.
type Service struct {
	presigner Presigner
	store     entitlement.Store
	artifacts map[string]string
	bucket    string
	urlTTL    time.Duration
	log       *slog.Logger
	now       func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPresigner replaces the presign client, used by tests.
func WithPresigner(p Presigner) ServiceOption {
	return func(s *Service) {
		if p != nil {
			s.presigner = p
		}
	}
}

// WithServiceLogger sets the logger.
func WithServiceLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithServiceClock overrides the time source, used by tests.
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the download service. Unless a presigner is
// injected, an S3 client is built from config.
func NewService(ctx context.Context, cfg Config, store entitlement.Store, artifacts map[string]string, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("download: entitlement store is required")
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = 15 * time.Minute
	}

	s := &Service{
		store:     store,
		artifacts: artifacts,
		bucket:    cfg.Bucket,
		urlTTL:    cfg.URLTTL,
		log:       slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.presigner == nil {
		presigner, err := buildPresigner(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.presigner = presigner
	}
	return s, nil
}

func buildPresigner(ctx context.Context, cfg Config) (Presigner, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, errors.New("download: bucket and region are required")
	}

	awsOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		awsOpts = append(awsOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("download: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return s3.NewPresignClient(client), nil
}

// LinkFor mints a presigned URL for the entitlement's artifact.
func (s *Service) LinkFor(ctx context.Context, entitlementID uuid.UUID) (*Link, error) {
	ent, err := s.store.Get(ctx, entitlementID)
	if err != nil {
		return nil, err
	}
	if !ent.IsAccessible(s.now()) {
		return nil, ErrNotAccessible
	}

	key, ok := s.artifacts[ent.FeatureKey]
	if !ok {
		return nil, ErrNoArtifact
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) {
		o.Expires = s.urlTTL
	})
	if err != nil {
		return nil, fmt.Errorf("download: presign object %s: %w", key, err)
	}

	s.log.InfoContext(ctx, "download link minted",
		"entitlement_id", ent.ID, "feature_key", ent.FeatureKey)

	return &Link{URL: req.URL, ExpiresAt: s.now().Add(s.urlTTL)}, nil
}
