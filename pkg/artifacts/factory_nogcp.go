//go:build !gcp

package artifacts

import (
	"context"
	"fmt"
)

func newGCSStore(ctx context.Context, cfg GCSConfig) (Store, error) {
	return nil, fmt.Errorf("gcs artifact backend requires building with -tags gcp")
}
