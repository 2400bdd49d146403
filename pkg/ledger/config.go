package ledger

import (
	"time"

	"github.com/code-payments/code-timelock/pkg/config"
	"github.com/code-payments/code-timelock/pkg/config/env"
)

const (
	envConfigPrefix = "LEDGER_"

	LamportsPerByteYearConfigEnvName = envConfigPrefix + "LAMPORTS_PER_BYTE_YEAR"
	defaultLamportsPerByteYear       = 3480

	RentExemptionYearsConfigEnvName = envConfigPrefix + "RENT_EXEMPTION_YEARS"
	defaultRentExemptionYears       = 2

	AccountStorageOverheadConfigEnvName = envConfigPrefix + "ACCOUNT_STORAGE_OVERHEAD"
	defaultAccountStorageOverhead       = 128

	MaxCallDepthConfigEnvName = envConfigPrefix + "MAX_CALL_DEPTH"
	defaultMaxCallDepth       = 4

	LockTimeoutConfigEnvName = envConfigPrefix + "LOCK_TIMEOUT"
	defaultLockTimeout       = 10 * time.Second

	MaxTransactionsPerPayerConfigEnvName = envConfigPrefix + "MAX_TRANSACTIONS_PER_PAYER_PER_SECOND"
	defaultMaxTransactionsPerPayer       = 0

	LockStripesConfigEnvName = envConfigPrefix + "LOCK_STRIPES"
	defaultLockStripes       = 1024
)

type conf struct {
	lamportsPerByteYear     config.Uint64
	rentExemptionYears      config.Uint64
	accountStorageOverhead  config.Uint64
	maxCallDepth            config.Uint64
	lockTimeout             config.Duration
	maxTransactionsPerPayer config.Uint64
	lockStripes             config.Uint64
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			lamportsPerByteYear:     env.NewUint64Config(LamportsPerByteYearConfigEnvName, defaultLamportsPerByteYear),
			rentExemptionYears:      env.NewUint64Config(RentExemptionYearsConfigEnvName, defaultRentExemptionYears),
			accountStorageOverhead:  env.NewUint64Config(AccountStorageOverheadConfigEnvName, defaultAccountStorageOverhead),
			maxCallDepth:            env.NewUint64Config(MaxCallDepthConfigEnvName, defaultMaxCallDepth),
			lockTimeout:             env.NewDurationConfig(LockTimeoutConfigEnvName, defaultLockTimeout),
			maxTransactionsPerPayer: env.NewUint64Config(MaxTransactionsPerPayerConfigEnvName, defaultMaxTransactionsPerPayer),
			lockStripes:             env.NewUint64Config(LockStripesConfigEnvName, defaultLockStripes),
		}
	}
}
