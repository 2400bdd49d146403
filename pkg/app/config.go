package app

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the application specific configuration, passed to App.Init.
//
// Apps decode it with mapstructure.Decode.
type Config map[string]interface{}

// BaseConfig contains the process configuration, as well as the application's
// own configuration.
type BaseConfig struct {
	LogLevel string `mapstructure:"log_level"`

	AppName string `mapstructure:"app_name"`

	DebugListenAddress string `mapstructure:"debug_listen_address"`

	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`

	EnablePprof  bool `mapstructure:"enable_pprof"`
	EnableExpvar bool `mapstructure:"enable_expvar"`

	// Ballast for improving Go GC performance. Capacity is limited to 50% of
	// the total memory.
	EnableBallast   bool    `mapstructure:"enable_ballast"`
	BallastCapacity float32 `mapstructure:"ballast_capacity"`

	// Periodically restart the process
	EnableRestartCron   bool   `mapstructure:"enable_restart_cron"`
	RestartCronSchedule string `mapstructure:"restart_cron_schedule"`

	NewRelicLicenseKey string `mapstructure:"new_relic_license_key"`

	AppConfig Config `mapstructure:"app"`
}

var defaultConfig = BaseConfig{
	LogLevel:            "info",
	DebugListenAddress:  ":8123",
	ShutdownGracePeriod: 30 * time.Second,
	EnablePprof:         true,
	EnableExpvar:        true,
	BallastCapacity:     0.25,
	RestartCronSchedule: "0 5 * * *",
}

// Every process setting can be overridden by the upper-cased environment
// variable of the same name.
func init() {
	for _, key := range []string{
		"log_level",
		"app_name",
		"debug_listen_address",
		"shutdown_grace_period",
		"enable_pprof",
		"enable_expvar",
		"enable_ballast",
		"ballast_capacity",
		"enable_restart_cron",
		"restart_cron_schedule",
		"new_relic_license_key",
	} {
		_ = viper.BindEnv(key, strings.ToUpper(key))
	}
}
