package app

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	defer viper.Reset()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app_name: timelockd
log_level: debug
shutdown_grace_period: 5s
enable_pprof: false
app:
  lock_backend: etcd
  etcd_endpoints:
    - localhost:2379
`), 0o600))

	original := *configPath
	*configPath = path
	defer func() { *configPath = original }()

	config, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, "timelockd", config.AppName)
	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, 5*time.Second, config.ShutdownGracePeriod)
	assert.False(t, config.EnablePprof)
	assert.True(t, config.EnableExpvar)
	assert.Equal(t, defaultConfig.DebugListenAddress, config.DebugListenAddress)
	assert.Equal(t, "etcd", config.AppConfig["lock_backend"])
}

func TestLoadConfig_MissingAppName(t *testing.T) {
	defer viper.Reset()

	original := *configPath
	*configPath = filepath.Join(t.TempDir(), "missing.yaml")
	defer func() { *configPath = original }()

	_, err := loadConfig()
	assert.Error(t, err)
}

func TestBallastSize(t *testing.T) {
	assert.EqualValues(t, 250, ballastSize(0.25, 1000))
	assert.EqualValues(t, 500, ballastSize(0.9, 1000))
	assert.EqualValues(t, 0, ballastSize(-1, 1000))
}

func TestDebugMux(t *testing.T) {
	for _, tc := range []struct {
		config BaseConfig
		path   string
		status int
	}{
		{BaseConfig{EnableExpvar: true}, "/debug/vars", http.StatusOK},
		{BaseConfig{EnableExpvar: false}, "/debug/vars", http.StatusNotFound},
		{BaseConfig{EnablePprof: true}, "/debug/pprof/", http.StatusOK},
		{BaseConfig{EnablePprof: false}, "/debug/pprof/", http.StatusNotFound},
	} {
		rec := httptest.NewRecorder()
		newDebugMux(tc.config).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		assert.Equal(t, tc.status, rec.Code, tc.path)
	}
}

func TestConfigureLogger(t *testing.T) {
	defer logrus.SetLevel(logrus.GetLevel())

	configureLogger(BaseConfig{LogLevel: "WARN"}, nil)
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())

	configureLogger(BaseConfig{LogLevel: "nonsense"}, nil)
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())
}
