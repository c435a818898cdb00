package cli

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netbootlab/bootlab/core"
	"github.com/netbootlab/bootlab/metrics"
)

// DaemonCommand runs the scheduler as a long-lived process.
type DaemonCommand struct {
	ConfigFile     string        `long:"config" env:"BOOTLAB_CONFIG" default:"/etc/bootlab/config.ini"`
	LogLevel       string        `long:"log-level" env:"BOOTLAB_LOG_LEVEL"`
	EnableMetrics  bool          `long:"enable-metrics" env:"BOOTLAB_ENABLE_METRICS"`
	MetricsAddr    string        `long:"metrics-address" env:"BOOTLAB_METRICS_ADDRESS" default:":8081"`
	ReloadInterval time.Duration `long:"reload-interval" env:"BOOTLAB_RELOAD_INTERVAL" default:"1m" description:"how often the config file is checked for changes"`

	scheduler     *core.Scheduler
	config        *Config
	collector     *metrics.Collector
	metricsServer *http.Server
	done          chan struct{}
	signals       chan os.Signal
	Logger        core.Logger
}

// Execute runs the daemon
func (c *DaemonCommand) Execute(_ []string) error {
	if err := c.boot(); err != nil {
		return err
	}

	if err := c.start(); err != nil {
		return err
	}
	return c.shutdown()
}

func (c *DaemonCommand) boot() error {
	ApplyLogLevel(c.LogLevel)
	c.done = make(chan struct{})

	config, err := BuildFromFile(c.ConfigFile, c.Logger)
	if err != nil {
		c.Logger.Warningf("Could not load config file %q: %v", c.ConfigFile, err)
		config = NewConfig(c.Logger)
	}
	c.applyOptions(config)

	if !c.EnableMetrics {
		c.EnableMetrics = config.Global.EnableMetrics
	}
	if c.MetricsAddr == ":8081" && config.Global.MetricsAddr != "" {
		c.MetricsAddr = config.Global.MetricsAddr
	}
	if c.LogLevel == "" {
		ApplyLogLevel(config.Global.LogLevel)
	}

	if c.EnableMetrics {
		c.collector = metrics.NewCollector()
		config.SetMetrics(c.collector)
	}

	if err := config.InitializeApp(); err != nil {
		c.Logger.Criticalf("Can't start the app: %v", err)
		return err
	}
	c.scheduler = config.Scheduler()
	c.config = config

	return nil
}

func (c *DaemonCommand) start() error {
	c.signals = make(chan os.Signal, 1)
	signal.Notify(c.signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-c.signals
		c.Logger.Noticef("Received signal %v, shutting down", sig)
		close(c.done)
	}()

	if err := c.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	if c.EnableMetrics {
		mux := http.NewServeMux()
		mux.Handle("/metrics", c.collector.Handler())
		c.metricsServer = &http.Server{
			Addr:              c.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		c.Logger.Noticef("Starting metrics server on %s", c.MetricsAddr)
		go func() {
			if err := c.metricsServer.ListenAndServe(); err != http.ErrServerClosed {
				c.Logger.Errorf("Error starting metrics server: %v", err)
			}
		}()
	}

	if c.ReloadInterval > 0 {
		go c.watchConfig()
	}

	return nil
}

// watchConfig polls the config file and reconciles the scheduler when it
// changes on disk.
func (c *DaemonCommand) watchConfig() {
	ticker := time.NewTicker(c.ReloadInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.config.iniConfigUpdate(); err != nil {
				c.Logger.Errorf("Config reload failed: %v", err)
			}
		}
	}
}

func (c *DaemonCommand) shutdown() error {
	<-c.done
	signal.Stop(c.signals)

	if c.metricsServer != nil {
		_ = c.metricsServer.Close()
	}

	c.Logger.Noticef("Waiting for running jobs to finish")
	return c.scheduler.StopWithTimeout(core.DefaultStopTimeout)
}

func (c *DaemonCommand) applyOptions(config *Config) {
	if config == nil {
		return
	}
	if c.EnableMetrics {
		config.Global.EnableMetrics = true
	}
	if c.MetricsAddr != ":8081" {
		config.Global.MetricsAddr = c.MetricsAddr
	}
	if c.LogLevel != "" {
		config.Global.LogLevel = c.LogLevel
	}
}

// Config returns the active configuration used by the daemon.
func (c *DaemonCommand) Config() *Config {
	return c.config
}
