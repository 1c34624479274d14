package observability

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog/log"
)

const UploadJob = "cictl_upload"

// PushUploadMetrics sends m to a Pushgateway. Grouping labels identify the
// build so concurrent pipelines do not overwrite each other.
func PushUploadMetrics(ctx context.Context, gatewayURL string, m *UploadMetrics, grouping map[string]string) error {
	gatewayURL = strings.TrimSpace(gatewayURL)
	if gatewayURL == "" || m == nil {
		return nil
	}
	pusher := push.New(gatewayURL, UploadJob).Gatherer(m.Registry)
	for k, v := range grouping {
		if strings.TrimSpace(v) == "" {
			continue
		}
		pusher = pusher.Grouping(k, v)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push upload metrics to %s: %w", gatewayURL, err)
	}
	log.Debug().Str("gateway", gatewayURL).Msg("upload metrics pushed")
	return nil
}
