package async_timelock

import (
	"context"
	"fmt"
	"time"

	"github.com/code-payments/code-timelock/pkg/data/timelock"
	"github.com/code-payments/code-timelock/pkg/metrics"
)

const (
	timelockLockedEventName = "TimelockLocked"
	timelockClosedEventName = "TimelockUnlocked"

	timelockCountMetricNameFormat = "Timelock/Count/%s"
)

func (p *service) metricsGaugeWorker(ctx context.Context) error {
	delay := time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			start := time.Now()

			for _, state := range []timelock.State{
				timelock.StateLocked,
				timelock.StateClosed,
			} {
				count, err := p.records.GetCountByState(ctx, state)
				if err != nil {
					continue
				}
				recordTimelockCount(ctx, state, count)
			}

			delay = p.conf.metricsInterval.Get(ctx) - time.Since(start)
		}
	}
}

func recordTimelockCount(ctx context.Context, state timelock.State, count uint64) {
	metrics.RecordCount(ctx, fmt.Sprintf(timelockCountMetricNameFormat, state), count)
}

func recordTimelockLockedEvent(ctx context.Context, record *timelock.Record) {
	metrics.RecordEvent(ctx, timelockLockedEventName, map[string]interface{}{
		"timelock":    record.Address,
		"receiver":    record.Receiver,
		"initializer": record.Initializer,
		"amount":      record.Amount,
		"unlock_at":   record.UnlockAt,
		"slot":        record.Slot,
	})
}

func recordTimelockClosedEvent(ctx context.Context, record *timelock.Record) {
	metrics.RecordEvent(ctx, timelockClosedEventName, map[string]interface{}{
		"timelock": record.Address,
		"receiver": record.Receiver,
		"amount":   record.Amount,
		"slot":     record.Slot,
	})
}
