package app

import (
	"expvar"
	"flag"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/code-payments/code-timelock/pkg/metrics"
	"github.com/code-payments/code-timelock/pkg/osutil"
)

// App is a long lived application whose lifecycle is tied to the process.
type App interface {
	// Init initializes the application in a blocking fashion. When Init
	// returns, the application is expected to be running.
	Init(config Config, metricsProvider *newrelic.Application) error

	// ShutdownChan returns a channel that is closed when the application has
	// shut down on its own, at which point the process stops.
	ShutdownChan() <-chan struct{}

	// Stop stops the application, allowing it to clean up any resources. When
	// Stop returns, the process exits.
	//
	// Stop must be idempotent.
	Stop()
}

var (
	configPath = flag.String("config", "config.yaml", "configuration file path")

	osSigCh = make(chan os.Signal, 1)
)

func init() {
	signal.Notify(osSigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
}

// Run loads the process configuration, initializes the app and blocks until
// the process is asked to stop.
func Run(app App) error {
	flag.Parse()

	log := logrus.StandardLogger().WithField("type", "app")
	fatal := func(err error, msg string) {
		log.WithError(err).Error(msg)
		os.Exit(1)
	}

	config, err := loadConfig()
	if err != nil {
		fatal(err, "failed to load config")
	}

	nr, err := newMetricsProvider(config)
	if err != nil {
		fatal(err, "failed to create new relic application")
	}

	configureLogger(config, nr)
	serveDebug(log, config)

	var ballast []byte
	if config.EnableBallast {
		ballast = make([]byte, ballastSize(config.BallastCapacity, osutil.GetTotalMemory()))
	}

	restartCh, stopCron, err := scheduleRestart(config)
	if err != nil {
		fatal(err, "failed to schedule restarts")
	}
	defer stopCron()

	if err := app.Init(config.AppConfig, nr); err != nil {
		fatal(err, "failed to initialize application")
	}

	select {
	case sig := <-osSigCh:
		log.WithField("signal", sig.String()).Info("Shutting down")
	case <-restartCh:
		log.Info("Restarting on schedule")
	case <-app.ShutdownChan():
		log.Info("Application stopped on its own")
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		app.Stop()
	}()

	select {
	case <-stopped:
	case <-time.After(config.ShutdownGracePeriod):
		return errors.Errorf("application did not stop within %v", config.ShutdownGracePeriod)
	}

	runtime.KeepAlive(ballast)

	if nr != nil {
		nr.Shutdown(config.ShutdownGracePeriod)
	}
	return nil
}

// newMetricsProvider returns nil when no license key is configured.
func newMetricsProvider(config BaseConfig) (*newrelic.Application, error) {
	if len(config.NewRelicLicenseKey) == 0 {
		return nil, nil
	}

	return newrelic.NewApplication(
		newrelic.ConfigFromEnvironment(),
		newrelic.ConfigAppName(config.AppName),
		newrelic.ConfigLicense(config.NewRelicLicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
}

// serveDebug serves pprof and expvar on the debug address. Both packages
// register on http.DefaultServeMux, which is replaced so nothing else can
// expose them by accident.
func serveDebug(log *logrus.Entry, config BaseConfig) {
	http.DefaultServeMux = http.NewServeMux()

	if !config.EnableExpvar && !config.EnablePprof {
		return
	}

	mux := newDebugMux(config)
	go func() {
		for {
			err := http.ListenAndServe(config.DebugListenAddress, mux)
			log.WithError(err).Warn("Debug server stopped, restarting")
			time.Sleep(5 * time.Second)
		}
	}()
}

// scheduleRestart returns a channel closed at the first scheduled restart. The
// channel is nil when restarts are disabled.
func scheduleRestart(config BaseConfig) (<-chan struct{}, func(), error) {
	if !config.EnableRestartCron {
		return nil, func() {}, nil
	}

	restartCh := make(chan struct{})
	var once sync.Once

	c := cron.New(cron.WithLocation(time.Local))
	if _, err := c.AddFunc(config.RestartCronSchedule, func() {
		once.Do(func() { close(restartCh) })
	}); err != nil {
		return nil, nil, errors.Wrapf(err, "invalid restart schedule %q", config.RestartCronSchedule)
	}
	c.Start()

	return restartCh, func() { c.Stop() }, nil
}

func loadConfig() (BaseConfig, error) {
	// viper.ReadInConfig only reports a missing file when it has to search for
	// a default one, so an explicit path is only set when it exists.
	if _, err := os.Stat(*configPath); err == nil {
		viper.SetConfigFile(*configPath)
	} else if !os.IsNotExist(err) {
		return BaseConfig{}, errors.Wrap(err, "failed to check if config exists")
	}

	err := viper.ReadInConfig()
	if _, isConfigNotFound := err.(viper.ConfigFileNotFoundError); err != nil && !isConfigNotFound {
		return BaseConfig{}, errors.Wrap(err, "failed to read config")
	}

	config := defaultConfig
	if err := viper.Unmarshal(&config); err != nil {
		return BaseConfig{}, errors.Wrap(err, "failed to unmarshal config")
	}

	if len(config.AppName) == 0 {
		return BaseConfig{}, errors.New("must specify an application name")
	}

	return config, nil
}

func newDebugMux(config BaseConfig) *http.ServeMux {
	mux := http.NewServeMux()
	if config.EnableExpvar {
		mux.Handle("/debug/vars", expvar.Handler())
	}
	if !config.EnablePprof {
		return mux
	}

	for path, handler := range map[string]http.HandlerFunc{
		"":        pprof.Index,
		"cmdline": pprof.Cmdline,
		"profile": pprof.Profile,
		"symbol":  pprof.Symbol,
		"trace":   pprof.Trace,
	} {
		mux.HandleFunc("/debug/pprof/"+path, handler)
	}
	return mux
}

// ballastSize clamps the capacity to [0, 0.5] of total memory.
func ballastSize(capacity float32, totalMemory uint64) uint64 {
	capacity = min(max(capacity, 0), 0.5)
	return uint64(capacity * float32(totalMemory))
}

// configureLogger writes JSON logs to stdout, forwarding them to New Relic when
// a provider is set. An unknown level leaves the current one in place.
func configureLogger(config BaseConfig, nr *newrelic.Application) {
	var formatter logrus.Formatter = &logrus.JSONFormatter{}
	if nr != nil {
		formatter = metrics.NewLogFormatter(nr, formatter)
	}
	logrus.SetFormatter(formatter)
	logrus.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		logrus.WithField("log_level", config.LogLevel).Warn("Unknown log level, ignoring")
		return
	}
	logrus.SetLevel(level)
}
