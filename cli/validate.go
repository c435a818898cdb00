package cli

import (
	"encoding/json"
	"fmt"

	defaults "github.com/creasty/defaults"

	"github.com/netbootlab/bootlab/core"
	"github.com/netbootlab/bootlab/settings"
)

// ValidateCommand validates the config file and the settings file it points
// at, and prints the resolved configuration.
type ValidateCommand struct {
	ConfigFile string `long:"config" env:"BOOTLAB_CONFIG" description:"configuration file" default:"/etc/bootlab/config.ini"`
	LogLevel   string `long:"log-level" env:"BOOTLAB_LOG_LEVEL" description:"Set log level (overrides config)"`
	Migrate    bool   `long:"migrate" description:"rewrite the settings file at the current schema version"`
	Logger     core.Logger
}

// Execute runs the validation command
func (c *ValidateCommand) Execute(_ []string) error {
	ApplyLogLevel(c.LogLevel)
	c.Logger.Debugf("Validating %q ... ", c.ConfigFile)
	conf, err := BuildFromFile(c.ConfigFile, c.Logger)
	if err != nil {
		c.Logger.Errorf("ERROR")
		return err
	}
	if c.LogLevel == "" {
		ApplyLogLevel(conf.Global.LogLevel)
	}

	applyConfigDefaults(conf)
	if err := conf.Validate(); err != nil {
		return err
	}

	if conf.Global.SettingsFile != "" {
		s, err := settings.Load(conf.Global.SettingsFile)
		if err != nil {
			return err
		}
		c.Logger.Debugf("settings %q valid at schema version %d",
			conf.Global.SettingsFile, s.SchemaVersion)

		if c.Migrate && s.SchemaVersion == settings.CurrentSchemaVersion {
			if err := settings.Save(conf.Global.SettingsFile, s); err != nil {
				return err
			}
			c.Logger.Noticef("Rewrote %q at schema version %d",
				conf.Global.SettingsFile, s.SchemaVersion)
		}
	}

	out, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	c.Logger.Debugf("OK")
	return nil
}

func applyConfigDefaults(conf *Config) {
	for _, j := range conf.SuiteJobs {
		_ = defaults.Set(j)
	}
	for _, j := range conf.ExecJobs {
		_ = defaults.Set(j)
	}
	for _, j := range conf.RunJobs {
		_ = defaults.Set(j)
	}
	for _, j := range conf.LocalJobs {
		_ = defaults.Set(j)
	}
	for _, j := range conf.SyncJobs {
		_ = defaults.Set(j)
	}
}
