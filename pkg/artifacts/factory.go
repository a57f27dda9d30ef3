package artifacts

import (
	"context"
	"fmt"
)

// Backend names a storage backend.
type Backend string

const (
	BackendFS  Backend = "fs"
	BackendS3  Backend = "s3"
	BackendGCS Backend = "gcs"
)

// GCSConfig configures the GCS backend. Credentials come from ADC. The
// implementation is behind the gcp build tag.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// Config selects and configures a backend.
type Config struct {
	Backend Backend
	// Dir is the base directory for the fs backend.
	Dir string
	S3  S3Config
	GCS GCSConfig
}

// New builds the configured store. Backend defaults to fs.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendFS, "":
		dir := cfg.Dir
		if dir == "" {
			dir = "data/artifacts"
		}
		return NewFileStore(dir)
	case BackendS3:
		return NewS3Store(ctx, cfg.S3)
	case BackendGCS:
		return newGCSStore(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", cfg.Backend)
	}
}
