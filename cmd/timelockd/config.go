package main

import (
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/code-timelock/pkg/app"
	pg "github.com/code-payments/code-timelock/pkg/database/postgres"
)

const (
	lockBackendMemory = "memory"
	lockBackendEtcd   = "etcd"
)

type config struct {
	ApiListenAddress string `mapstructure:"api_listen_address"`

	// Stores are kept in memory when no postgres host is configured
	Postgres    postgresConfig `mapstructure:"postgres"`
	ApplySchema bool           `mapstructure:"apply_schema"`

	LockBackend   string        `mapstructure:"lock_backend"`
	EtcdEndpoints []string      `mapstructure:"etcd_endpoints"`
	EtcdRootKey   string        `mapstructure:"etcd_root_key"`
	EtcdLockTTL   time.Duration `mapstructure:"etcd_lock_ttl"`
	EtcdNodeTTL   time.Duration `mapstructure:"etcd_node_ttl"`

	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`

	// Accounts funded with lamports at startup, for local clusters
	Airdrops []airdropConfig `mapstructure:"airdrops"`
}

type postgresConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	DbName             string `mapstructure:"db_name"`
	SslMode            string `mapstructure:"ssl_mode"`
	MaxOpenConnections int    `mapstructure:"max_open_connections"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections"`
}

type airdropConfig struct {
	Address  string `mapstructure:"address"`
	Lamports uint64 `mapstructure:"lamports"`
}

var defaultAppConfig = config{
	ApiListenAddress: ":8085",

	Postgres: postgresConfig{
		Port:    5432,
		SslMode: "disable",
	},

	LockBackend: lockBackendMemory,
	EtcdRootKey: "/timelock",
	EtcdLockTTL: 10 * time.Second,
	EtcdNodeTTL: 10 * time.Second,

	ReconcileInterval: time.Minute,
}

func decodeConfig(raw app.Config) (*config, error) {
	conf := defaultAppConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &conf,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create config decoder")
	}
	if err := decoder.Decode(map[string]interface{}(raw)); err != nil {
		return nil, errors.Wrap(err, "failed to decode app config")
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (c *config) validate() error {
	switch c.LockBackend {
	case lockBackendMemory:
		// Only valid when this is the only process writing to the store
	case lockBackendEtcd:
		if len(c.EtcdEndpoints) == 0 {
			return errors.New("etcd_endpoints is required for the etcd lock backend")
		}
		if !c.usePostgres() {
			return errors.New("the etcd lock backend requires a postgres store")
		}
	default:
		return errors.Errorf("unknown lock backend: %q", c.LockBackend)
	}

	if c.ReconcileInterval <= 0 {
		return errors.New("reconcile_interval must be positive")
	}

	for _, airdrop := range c.Airdrops {
		decoded, err := base58.Decode(airdrop.Address)
		if err != nil || len(decoded) != 32 {
			return errors.Errorf("invalid airdrop address: %q", airdrop.Address)
		}
		if airdrop.Lamports == 0 {
			return errors.Errorf("airdrop to %s must be positive", airdrop.Address)
		}
	}

	return nil
}

func (c *config) usePostgres() bool {
	return len(c.Postgres.Host) > 0
}

func (c *config) postgres() pg.Config {
	return pg.Config{
		User:               c.Postgres.User,
		Host:               c.Postgres.Host,
		Password:           c.Postgres.Password,
		Port:               c.Postgres.Port,
		DbName:             c.Postgres.DbName,
		SslMode:            c.Postgres.SslMode,
		MaxOpenConnections: c.Postgres.MaxOpenConnections,
		MaxIdleConnections: c.Postgres.MaxIdleConnections,
	}
}
