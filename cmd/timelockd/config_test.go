package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-timelock/pkg/app"
)

func TestDecodeConfig_Defaults(t *testing.T) {
	conf, err := decodeConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8085", conf.ApiListenAddress)
	assert.Equal(t, lockBackendMemory, conf.LockBackend)
	assert.Equal(t, time.Minute, conf.ReconcileInterval)
	assert.False(t, conf.usePostgres())
}

func TestDecodeConfig(t *testing.T) {
	conf, err := decodeConfig(app.Config{
		"api_listen_address": ":9000",
		"postgres": map[string]interface{}{
			"host":     "db",
			"port":     "5433",
			"user":     "timelock",
			"password": "secret",
			"db_name":  "timelock",
		},
		"apply_schema":       true,
		"lock_backend":       "etcd",
		"etcd_endpoints":     []interface{}{"etcd-0:2379", "etcd-1:2379"},
		"etcd_lock_ttl":      "15s",
		"reconcile_interval": "30s",
		"airdrops": []interface{}{
			map[string]interface{}{
				"address":  "11111111111111111111111111111112",
				"lamports": 1_000_000,
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, ":9000", conf.ApiListenAddress)
	assert.True(t, conf.usePostgres())
	assert.True(t, conf.ApplySchema)
	assert.Equal(t, []string{"etcd-0:2379", "etcd-1:2379"}, conf.EtcdEndpoints)
	assert.Equal(t, 15*time.Second, conf.EtcdLockTTL)
	assert.Equal(t, 10*time.Second, conf.EtcdNodeTTL)
	assert.Equal(t, 30*time.Second, conf.ReconcileInterval)
	require.Len(t, conf.Airdrops, 1)
	assert.EqualValues(t, 1_000_000, conf.Airdrops[0].Lamports)

	pgConf := conf.postgres()
	assert.Equal(t, "postgres://timelock:secret@db:5433/timelock?sslmode=disable", pgConf.DSN())
}

func TestDecodeConfig_Invalid(t *testing.T) {
	for name, raw := range map[string]app.Config{
		"unknown key":         {"unknown": true},
		"unknown backend":     {"lock_backend": "zookeeper"},
		"etcd no endpoints":   {"lock_backend": "etcd", "postgres": map[string]interface{}{"host": "db"}},
		"etcd no postgres":    {"lock_backend": "etcd", "etcd_endpoints": []interface{}{"etcd:2379"}},
		"bad interval":        {"reconcile_interval": "-1s"},
		"bad duration":        {"reconcile_interval": "soon"},
		"bad airdrop address": {"airdrops": []interface{}{map[string]interface{}{"address": "nope", "lamports": 1}}},
		"empty airdrop":       {"airdrops": []interface{}{map[string]interface{}{"address": "11111111111111111111111111111112", "lamports": 0}}},
	} {
		_, err := decodeConfig(raw)
		assert.Error(t, err, name)
	}
}
