package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/push"
)

// JobName groups the pushed series on the Pushgateway.
const JobName = "geocode_backfill"

// Push sends the current values of m to a Prometheus Pushgateway.
func Push(ctx context.Context, url string, m *Metrics) error {
	if err := push.New(url, JobName).Gatherer(m.Registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
