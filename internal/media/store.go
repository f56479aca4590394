package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jdziat/newsdesk/internal/config"
	"github.com/jdziat/newsdesk/pkg/core"
)

// Stored locates a saved image.
type Stored struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// Store saves rendered images. Put with the same key overwrites, so a
// retried job does not leave orphans behind.
type Store interface {
	Put(ctx context.Context, key string, img *Image) (*Stored, error)
}

// ObjectKey is the storage key of an article's social card.
func ObjectKey(articleID, template, contentType string) string {
	if template == "" {
		template = "default"
	}
	return articleID + "/" + template + extensionFor(contentType)
}

func extensionFor(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(contentType, "image/webp"):
		return ".webp"
	default:
		return ".png"
	}
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

// ──────────────────────────────────────────────────────────────────────────────
// Local filesystem
// ──────────────────────────────────────────────────────────────────────────────

// LocalStore writes images below a directory served at baseURL.
type LocalStore struct {
	dir     string
	baseURL string
}

func NewLocalStore(dir, baseURL string) *LocalStore {
	return &LocalStore{dir: dir, baseURL: baseURL}
}

func (s *LocalStore) Put(ctx context.Context, key string, img *Image) (*Stored, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clean := path.Clean("/" + key)[1:]
	if clean == "" {
		return nil, core.NoRetry(fmt.Errorf("invalid media key %q", key))
	}

	full := filepath.Join(s.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, core.ExternalFailure("media store", err)
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, img.Data, 0o644); err != nil {
		return nil, core.ExternalFailure("media store", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return nil, core.ExternalFailure("media store", err)
	}
	return &Stored{URL: joinURL(s.baseURL, clean), Path: full}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// S3
// ──────────────────────────────────────────────────────────────────────────────

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads images to a bucket. URLs use baseURL when set, otherwise
// the virtual-hosted bucket address.
type S3Store struct {
	client  objectPutter
	bucket  string
	prefix  string
	baseURL string
}

// NewS3Store builds a store from the default AWS credential chain.
func NewS3Store(ctx context.Context, cfg config.MediaConfig) (*S3Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.S3Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3PathStyle
	})

	baseURL := cfg.BaseURL
	if baseURL == "" || !strings.HasPrefix(baseURL, "http") {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3Bucket, awsCfg.Region)
	}
	return newS3Store(client, cfg.S3Bucket, cfg.S3Prefix, baseURL), nil
}

func newS3Store(client objectPutter, bucket, prefix, baseURL string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), baseURL: baseURL}
}

func (s *S3Store) Put(ctx context.Context, key string, img *Image) (*Stored, error) {
	objectKey := strings.TrimLeft(key, "/")
	if s.prefix != "" {
		objectKey = s.prefix + "/" + objectKey
	}
	contentType := img.ContentType
	if contentType == "" {
		contentType = "image/png"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(objectKey),
		Body:         bytes.NewReader(img.Data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=31536000"),
	})
	if err != nil {
		return nil, core.ExternalFailure("s3", err)
	}
	return &Stored{URL: joinURL(s.baseURL, objectKey), Path: "s3://" + s.bucket + "/" + objectKey}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Construction
// ──────────────────────────────────────────────────────────────────────────────

// NewRenderer returns the configured renderer.
func NewRenderer(cfg config.MediaConfig) Renderer {
	if cfg.Renderer == "http" {
		return NewHTTPRenderer(cfg.RenderEndpoint, cfg.RenderTimeout)
	}
	return PlaceholderRenderer{}
}

// NewStore returns the configured image store.
func NewStore(ctx context.Context, cfg config.MediaConfig) (Store, error) {
	if cfg.Storage == "s3" {
		s, err := NewS3Store(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return NewLocalStore(cfg.LocalDir, cfg.BaseURL), nil
}
