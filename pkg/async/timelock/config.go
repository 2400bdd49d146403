package async_timelock

import (
	"time"

	"github.com/code-payments/code-timelock/pkg/config"
	"github.com/code-payments/code-timelock/pkg/config/env"
	"github.com/code-payments/code-timelock/pkg/config/memory"
	"github.com/code-payments/code-timelock/pkg/config/wrapper"
)

const (
	envConfigPrefix = "TIMELOCK_INDEXER_SERVICE_"

	MetricsIntervalConfigEnvName = envConfigPrefix + "METRICS_INTERVAL"
	defaultMetricsInterval       = 30 * time.Second

	SaveAttemptsConfigEnvName = envConfigPrefix + "SAVE_ATTEMPTS"
	defaultSaveAttempts       = 5

	WorkerCountConfigEnvName = envConfigPrefix + "WORKER_COUNT"
	defaultWorkerCount       = 16

	WorkerQueueSizeConfigEnvName = envConfigPrefix + "WORKER_QUEUE_SIZE"
	defaultWorkerQueueSize       = 1024

	RecordCacheSizeConfigEnvName = envConfigPrefix + "RECORD_CACHE_SIZE"
	defaultRecordCacheSize       = 100_000

	ReconcileBatchSizeConfigEnvName = envConfigPrefix + "RECONCILE_BATCH_SIZE"
	defaultReconcileBatchSize       = 100
)

type conf struct {
	metricsInterval    config.Duration
	saveAttempts       config.Uint64
	workerCount        config.Uint64
	workerQueueSize    config.Uint64
	recordCacheSize    config.Uint64
	reconcileBatchSize config.Uint64
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			metricsInterval:    env.NewDurationConfig(MetricsIntervalConfigEnvName, defaultMetricsInterval),
			saveAttempts:       env.NewUint64Config(SaveAttemptsConfigEnvName, defaultSaveAttempts),
			workerCount:        env.NewUint64Config(WorkerCountConfigEnvName, defaultWorkerCount),
			workerQueueSize:    env.NewUint64Config(WorkerQueueSizeConfigEnvName, defaultWorkerQueueSize),
			recordCacheSize:    env.NewUint64Config(RecordCacheSizeConfigEnvName, defaultRecordCacheSize),
			reconcileBatchSize: env.NewUint64Config(ReconcileBatchSizeConfigEnvName, defaultReconcileBatchSize),
		}
	}
}

type testOverrides struct {
	metricsInterval    time.Duration
	workerCount        uint64
	reconcileBatchSize uint64
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		return &conf{
			metricsInterval:    wrapper.NewDurationConfig(memory.NewConfig(overrides.metricsInterval), defaultMetricsInterval),
			saveAttempts:       wrapper.NewUint64Config(memory.NewConfig(uint64(1)), defaultSaveAttempts),
			workerCount:        wrapper.NewUint64Config(memory.NewConfig(overrides.workerCount), defaultWorkerCount),
			workerQueueSize:    wrapper.NewUint64Config(memory.NewConfig(uint64(defaultWorkerQueueSize)), defaultWorkerQueueSize),
			recordCacheSize:    wrapper.NewUint64Config(memory.NewConfig(uint64(defaultRecordCacheSize)), defaultRecordCacheSize),
			reconcileBatchSize: wrapper.NewUint64Config(memory.NewConfig(overrides.reconcileBatchSize), defaultReconcileBatchSize),
		}
	}
}
