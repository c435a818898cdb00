package cli

import (
	"os"
	"strings"
	"time"

	"github.com/netbootlab/bootlab/boottree"
	"github.com/netbootlab/bootlab/config"
	"github.com/netbootlab/bootlab/core"
	"github.com/netbootlab/bootlab/middlewares"
	"github.com/netbootlab/bootlab/settings"

	defaults "github.com/creasty/defaults"
	"github.com/mitchellh/mapstructure"
	ini "gopkg.in/ini.v1"
)

const (
	jobSuite = "job-suite"
	jobExec  = "job-exec"
	jobRun   = "job-run"
	jobLocal = "job-local"
	jobSync  = "job-sync"
)

// Config contains the configuration
type Config struct {
	Global struct {
		middlewares.SlackConfig `mapstructure:",squash"`
		middlewares.SaveConfig  `mapstructure:",squash"`
		middlewares.MailConfig  `mapstructure:",squash"`
		LogLevel                string `gcfg:"log-level" mapstructure:"log-level"`
		SettingsFile            string `gcfg:"settings-file" mapstructure:"settings-file"`
		EnableMetrics           bool   `gcfg:"enable-metrics" mapstructure:"enable-metrics" default:"false"`
		MetricsAddr             string `gcfg:"metrics-address" mapstructure:"metrics-address" default:":8081"`
	}
	SuiteJobs map[string]*SuiteJobConfig `gcfg:"job-suite" mapstructure:"job-suite,squash"`
	ExecJobs  map[string]*ExecJobConfig  `gcfg:"job-exec" mapstructure:"job-exec,squash"`
	RunJobs   map[string]*RunJobConfig   `gcfg:"job-run" mapstructure:"job-run,squash"`
	LocalJobs map[string]*LocalJobConfig `gcfg:"job-local" mapstructure:"job-local,squash"`
	SyncJobs  map[string]*SyncJobConfig  `gcfg:"job-sync" mapstructure:"job-sync,squash"`

	configPath    string
	configModTime time.Time
	sh            *core.Scheduler
	dockerClient  core.DockerClient
	settings      *settings.Settings
	treeManager   *boottree.Manager
	metrics       core.MetricsRecorder
	logger        core.Logger
}

func NewConfig(logger core.Logger) *Config {
	c := &Config{
		SuiteJobs: make(map[string]*SuiteJobConfig),
		ExecJobs:  make(map[string]*ExecJobConfig),
		RunJobs:   make(map[string]*RunJobConfig),
		LocalJobs: make(map[string]*LocalJobConfig),
		SyncJobs:  make(map[string]*SyncJobConfig),
		logger:    logger,
	}

	defaults.Set(c)
	return c
}

// BuildFromFile builds a configuration from an INI file
func BuildFromFile(filename string, logger core.Logger) (*Config, error) {
	c := NewConfig(logger)
	cfg, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true, InsensitiveKeys: true}, filename)
	if err != nil {
		return nil, err
	}
	if err := parseIni(cfg, c); err != nil {
		return nil, err
	}
	c.configPath = filename
	if info, statErr := os.Stat(filename); statErr == nil {
		c.configModTime = info.ModTime()
	}
	logger.Debugf("loaded config file %s", filename)
	return c, nil
}

// BuildFromString builds a configuration from an INI document in memory
func BuildFromString(cfgStr string, logger core.Logger) (*Config, error) {
	c := NewConfig(logger)
	cfg, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true, InsensitiveKeys: true}, []byte(cfgStr))
	if err != nil {
		return nil, err
	}
	if err := parseIni(cfg, c); err != nil {
		return nil, err
	}
	return c, nil
}

// newDockerClient allows overriding Docker client creation for tests
var newDockerClient = core.NewDockerClient

// SetMetrics installs a metrics recorder picked up by InitializeApp.
func (c *Config) SetMetrics(m core.MetricsRecorder) {
	c.metrics = m
}

// Scheduler returns the scheduler built by InitializeApp.
func (c *Config) Scheduler() *core.Scheduler {
	return c.sh
}

// Settings returns the settings loaded by InitializeApp, or nil when no
// settings file is configured.
func (c *Config) Settings() *settings.Settings {
	return c.settings
}

// TreeManager returns the boot tree manager, or nil when no settings file is
// configured.
func (c *Config) TreeManager() *boottree.Manager {
	return c.treeManager
}

// InitializeApp builds the scheduler and registers every configured job.
// Call this only once at app init.
func (c *Config) InitializeApp() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.metrics != nil {
		c.sh = core.NewSchedulerWithMetrics(c.logger, c.metrics)
	} else {
		c.sh = core.NewScheduler(c.logger)
	}
	c.buildSchedulerMiddlewares(c.sh)

	if c.needsDocker() {
		client, err := newDockerClient()
		if err != nil {
			return err
		}
		c.dockerClient = client
	}

	if err := c.initBootTree(); err != nil {
		return err
	}

	for name, j := range c.SuiteJobs {
		defaults.Set(j)
		j.Client = c.dockerClient
		j.Name = name
		j.InitializeRuntimeFields()
		j.buildMiddlewares()
		c.sh.AddJob(j)
	}

	for name, j := range c.ExecJobs {
		defaults.Set(j)
		j.Client = c.dockerClient
		j.Name = name
		j.buildMiddlewares()
		c.sh.AddJob(j)
	}

	for name, j := range c.RunJobs {
		defaults.Set(j)
		j.Client = c.dockerClient
		j.Name = name
		j.InitializeRuntimeFields()
		j.buildMiddlewares()
		c.sh.AddJob(j)
	}

	for name, j := range c.LocalJobs {
		defaults.Set(j)
		j.Name = name
		j.buildMiddlewares()
		c.sh.AddJob(j)
	}

	for name, j := range c.SyncJobs {
		defaults.Set(j)
		if c.treeManager == nil {
			c.logger.Warningf("Skipping sync job %q: no settings-file configured", name)
			continue
		}
		j.Syncer = c.treeManager
		j.Name = name
		j.buildMiddlewares()
		c.sh.AddJob(j)
	}

	return nil
}

// needsDocker reports whether any configured job talks to the Docker daemon.
func (c *Config) needsDocker() bool {
	return len(c.SuiteJobs) > 0 || len(c.ExecJobs) > 0 || len(c.RunJobs) > 0
}

// initBootTree loads the settings file and builds the boot tree manager when
// one is configured.
func (c *Config) initBootTree() error {
	if c.Global.SettingsFile == "" {
		return nil
	}

	s, err := settings.Load(c.Global.SettingsFile)
	if err != nil {
		return err
	}
	c.settings = s

	inv, err := boottree.LoadInventory(s.InventoryFile)
	if err != nil {
		return err
	}

	c.treeManager = boottree.NewManager(boottree.Config{
		Root:           s.TFTPRoot,
		WebDir:         s.WebDir,
		BootloadersDir: s.BootloadersDir,
	}, inv, c.logger)

	return nil
}

func (c *Config) buildSchedulerMiddlewares(sh *core.Scheduler) {
	sh.Use(middlewares.NewSlack(&c.Global.SlackConfig))
	sh.Use(middlewares.NewSave(&c.Global.SaveConfig))
	sh.Use(middlewares.NewMail(&c.Global.MailConfig))
}

// Validate checks every job section before anything is scheduled, so a bad
// file reports all its problems in one pass.
func (c *Config) Validate() error {
	v := config.NewValidator()
	s := config.DefaultSanitizer

	v.ValidateLogLevel("log-level", c.Global.LogLevel)
	if c.Global.EnableMetrics {
		v.ValidateAddress("metrics-address", c.Global.MetricsAddr)
	}
	v.ValidateEmail("email-to", c.Global.MailConfig.EmailTo)
	v.ValidateURL("slack-webhook", c.Global.SlackConfig.SlackWebhook)

	for name, j := range c.SuiteJobs {
		c.validateJobName(v, s, name)
		v.ValidateCronExpression(name+".schedule", j.Schedule)
		v.ValidateRequired(name+".image", j.Image)
		if j.Image != "" {
			if err := s.ValidateDockerImage(j.Image); err != nil {
				v.AddError(name+".image", j.Image, err.Error())
			}
		}
		if len(j.Setup) == 0 && j.Test == "" {
			v.AddError(name, "", "defines no setup or test commands")
		}
	}

	for name, j := range c.ExecJobs {
		c.validateJobName(v, s, name)
		v.ValidateCronExpression(name+".schedule", j.Schedule)
		v.ValidateRequired(name+".container", j.Container)
		v.ValidateRequired(name+".command", j.Command)
	}

	for name, j := range c.RunJobs {
		c.validateJobName(v, s, name)
		v.ValidateCronExpression(name+".schedule", j.Schedule)
		if j.Image == "" && j.Container == "" {
			v.AddError(name, "", "needs an image or an existing container")
		}
		if j.Image != "" {
			if err := s.ValidateDockerImage(j.Image); err != nil {
				v.AddError(name+".image", j.Image, err.Error())
			}
		}
	}

	for name, j := range c.LocalJobs {
		c.validateJobName(v, s, name)
		v.ValidateCronExpression(name+".schedule", j.Schedule)
		v.ValidateRequired(name+".command", j.Command)
	}

	for name, j := range c.SyncJobs {
		c.validateJobName(v, s, name)
		v.ValidateCronExpression(name+".schedule", j.Schedule)
	}

	if v.HasErrors() {
		return v.Errors()
	}
	return nil
}

func (c *Config) validateJobName(v *config.Validator, s *config.Sanitizer, name string) {
	if err := s.ValidateJobName(name); err != nil {
		v.AddError("job name", name, err.Error())
	}
}

// jobConfig is implemented by all job configuration types that can be
// scheduled. It allows handling job maps in a generic way.
type jobConfig interface {
	core.Job
	buildMiddlewares()
	Hash() (string, error)
}

// syncJobMap updates the scheduler and the provided job map based on the
// parsed configuration. The prep function is called on each job before
// comparison or registration to set fields such as Name or Client and apply
// defaults.
func syncJobMap[J jobConfig](c *Config, current map[string]J, parsed map[string]J, prep func(string, J)) {
	for name, j := range current {
		newJob, ok := parsed[name]
		if !ok {
			c.sh.RemoveJob(j)
			delete(current, name)
			continue
		}
		prep(name, newJob)
		newHash, err1 := newJob.Hash()
		if err1 != nil {
			c.logger.Errorf("hash calculation failed: %v", err1)
			continue
		}
		oldHash, err2 := j.Hash()
		if err2 != nil {
			c.logger.Errorf("hash calculation failed: %v", err2)
			continue
		}
		if newHash != oldHash {
			c.sh.RemoveJob(j)
			newJob.buildMiddlewares()
			c.sh.AddJob(newJob)
			current[name] = newJob
		}
	}

	for name, j := range parsed {
		if _, ok := current[name]; ok {
			continue
		}
		prep(name, j)
		j.buildMiddlewares()
		c.sh.AddJob(j)
		current[name] = j
	}
}

// iniConfigUpdate reloads the config file when its modification time changes
// and reconciles the scheduler with the new job set.
func (c *Config) iniConfigUpdate() error {
	if c.configPath == "" {
		return nil
	}

	info, err := os.Stat(c.configPath)
	if err != nil {
		return err
	}
	if info.ModTime().Equal(c.configModTime) {
		return nil
	}

	c.logger.Debugf("reloading config from %s", c.configPath)

	parsed, err := BuildFromFile(c.configPath, c.logger)
	if err != nil {
		return err
	}
	if err := parsed.Validate(); err != nil {
		return err
	}
	c.configModTime = info.ModTime()

	suitePrep := func(name string, j *SuiteJobConfig) {
		defaults.Set(j)
		j.Client = c.dockerClient
		j.Name = name
		j.InitializeRuntimeFields()
	}
	syncJobMap(c, c.SuiteJobs, parsed.SuiteJobs, suitePrep)

	execPrep := func(name string, j *ExecJobConfig) {
		defaults.Set(j)
		j.Client = c.dockerClient
		j.Name = name
	}
	syncJobMap(c, c.ExecJobs, parsed.ExecJobs, execPrep)

	runPrep := func(name string, j *RunJobConfig) {
		defaults.Set(j)
		j.Client = c.dockerClient
		j.Name = name
		j.InitializeRuntimeFields()
	}
	syncJobMap(c, c.RunJobs, parsed.RunJobs, runPrep)

	localPrep := func(name string, j *LocalJobConfig) {
		defaults.Set(j)
		j.Name = name
	}
	syncJobMap(c, c.LocalJobs, parsed.LocalJobs, localPrep)

	if c.treeManager != nil {
		syncPrep := func(name string, j *SyncJobConfig) {
			defaults.Set(j)
			j.Syncer = c.treeManager
			j.Name = name
		}
		syncJobMap(c, c.SyncJobs, parsed.SyncJobs, syncPrep)
	} else if len(parsed.SyncJobs) > 0 {
		c.logger.Warningf("Skipping sync job reload: no settings-file configured")
	}

	return nil
}

// SuiteJobConfig contains all configuration params needed to build a SuiteJob
type SuiteJobConfig struct {
	core.SuiteJob             `mapstructure:",squash"`
	middlewares.OverlapConfig `mapstructure:",squash"`
	middlewares.SlackConfig   `mapstructure:",squash"`
	middlewares.SaveConfig    `mapstructure:",squash"`
	middlewares.MailConfig    `mapstructure:",squash"`
}

func (c *SuiteJobConfig) buildMiddlewares() {
	c.SuiteJob.Use(middlewares.NewOverlap(&c.OverlapConfig))
	c.SuiteJob.Use(middlewares.NewSlack(&c.SlackConfig))
	c.SuiteJob.Use(middlewares.NewSave(&c.SaveConfig))
	c.SuiteJob.Use(middlewares.NewMail(&c.MailConfig))
}

// ExecJobConfig contains all configuration params needed to build an ExecJob
type ExecJobConfig struct {
	core.ExecJob              `mapstructure:",squash"`
	middlewares.OverlapConfig `mapstructure:",squash"`
	middlewares.SlackConfig   `mapstructure:",squash"`
	middlewares.SaveConfig    `mapstructure:",squash"`
	middlewares.MailConfig    `mapstructure:",squash"`
}

func (c *ExecJobConfig) buildMiddlewares() {
	c.ExecJob.Use(middlewares.NewOverlap(&c.OverlapConfig))
	c.ExecJob.Use(middlewares.NewSlack(&c.SlackConfig))
	c.ExecJob.Use(middlewares.NewSave(&c.SaveConfig))
	c.ExecJob.Use(middlewares.NewMail(&c.MailConfig))
}

type RunJobConfig struct {
	core.RunJob               `mapstructure:",squash"`
	middlewares.OverlapConfig `mapstructure:",squash"`
	middlewares.SlackConfig   `mapstructure:",squash"`
	middlewares.SaveConfig    `mapstructure:",squash"`
	middlewares.MailConfig    `mapstructure:",squash"`
}

func (c *RunJobConfig) buildMiddlewares() {
	c.RunJob.Use(middlewares.NewOverlap(&c.OverlapConfig))
	c.RunJob.Use(middlewares.NewSlack(&c.SlackConfig))
	c.RunJob.Use(middlewares.NewSave(&c.SaveConfig))
	c.RunJob.Use(middlewares.NewMail(&c.MailConfig))
}

// LocalJobConfig contains all configuration params needed to build a LocalJob
type LocalJobConfig struct {
	core.LocalJob             `mapstructure:",squash"`
	middlewares.OverlapConfig `mapstructure:",squash"`
	middlewares.SlackConfig   `mapstructure:",squash"`
	middlewares.SaveConfig    `mapstructure:",squash"`
	middlewares.MailConfig    `mapstructure:",squash"`
}

func (c *LocalJobConfig) buildMiddlewares() {
	c.LocalJob.Use(middlewares.NewOverlap(&c.OverlapConfig))
	c.LocalJob.Use(middlewares.NewSlack(&c.SlackConfig))
	c.LocalJob.Use(middlewares.NewSave(&c.SaveConfig))
	c.LocalJob.Use(middlewares.NewMail(&c.MailConfig))
}

// SyncJobConfig contains all configuration params needed to build a SyncJob
type SyncJobConfig struct {
	core.SyncJob              `mapstructure:",squash"`
	middlewares.OverlapConfig `mapstructure:",squash"`
	middlewares.SlackConfig   `mapstructure:",squash"`
	middlewares.SaveConfig    `mapstructure:",squash"`
	middlewares.MailConfig    `mapstructure:",squash"`
}

func (c *SyncJobConfig) buildMiddlewares() {
	c.SyncJob.Use(middlewares.NewOverlap(&c.OverlapConfig))
	c.SyncJob.Use(middlewares.NewSlack(&c.SlackConfig))
	c.SyncJob.Use(middlewares.NewSave(&c.SaveConfig))
	c.SyncJob.Use(middlewares.NewMail(&c.MailConfig))
}

func parseIni(cfg *ini.File, c *Config) error {
	if sec, err := cfg.GetSection("global"); err == nil {
		if err := mapstructure.WeakDecode(sectionToMap(sec), &c.Global); err != nil {
			return err
		}
	}

	for _, section := range cfg.Sections() {
		name := strings.TrimSpace(section.Name())
		switch {
		case strings.HasPrefix(name, jobSuite):
			jobName := parseJobName(name, jobSuite)
			job := &SuiteJobConfig{}
			if err := mapstructure.WeakDecode(sectionToMap(section), job); err != nil {
				return err
			}
			c.SuiteJobs[jobName] = job
		case strings.HasPrefix(name, jobExec):
			jobName := parseJobName(name, jobExec)
			job := &ExecJobConfig{}
			if err := mapstructure.WeakDecode(sectionToMap(section), job); err != nil {
				return err
			}
			c.ExecJobs[jobName] = job
		case strings.HasPrefix(name, jobRun):
			jobName := parseJobName(name, jobRun)
			job := &RunJobConfig{}
			if err := mapstructure.WeakDecode(sectionToMap(section), job); err != nil {
				return err
			}
			c.RunJobs[jobName] = job
		case strings.HasPrefix(name, jobLocal):
			jobName := parseJobName(name, jobLocal)
			job := &LocalJobConfig{}
			if err := mapstructure.WeakDecode(sectionToMap(section), job); err != nil {
				return err
			}
			c.LocalJobs[jobName] = job
		case strings.HasPrefix(name, jobSync):
			jobName := parseJobName(name, jobSync)
			job := &SyncJobConfig{}
			if err := mapstructure.WeakDecode(sectionToMap(section), job); err != nil {
				return err
			}
			c.SyncJobs[jobName] = job
		}
	}
	return nil
}

func parseJobName(section, prefix string) string {
	s := strings.TrimPrefix(section, prefix)
	s = strings.TrimSpace(s)
	return strings.Trim(s, "\"")
}

func sectionToMap(section *ini.Section) map[string]interface{} {
	m := make(map[string]interface{})
	for _, key := range section.Keys() {
		vals := key.ValueWithShadows()
		if len(vals) > 1 {
			cp := make([]string, len(vals))
			copy(cp, vals)
			m[key.Name()] = cp
		} else if len(vals) == 1 {
			m[key.Name()] = vals[0]
		} else {
			m[key.Name()] = ""
		}
	}
	return m
}
