package async

import (
	"context"
	"time"
)

// Service is a long running background worker.
type Service interface {
	// Start runs the service until ctx is done. interval is the cadence of
	// any periodic work the service performs.
	Start(ctx context.Context, interval time.Duration) error
}
