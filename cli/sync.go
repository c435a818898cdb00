package cli

import (
	"fmt"

	"github.com/netbootlab/bootlab/core"
)

// SyncCommand writes the boot tree once and exits. With system names given,
// only the PXE configuration of those systems is rewritten.
type SyncCommand struct {
	ConfigFile string `long:"config" env:"BOOTLAB_CONFIG" description:"configuration file" default:"/etc/bootlab/config.ini"`
	LogLevel   string `long:"log-level" env:"BOOTLAB_LOG_LEVEL" description:"Set log level (overrides config)"`
	Args       struct {
		Systems []string `positional-arg-name:"system" description:"systems to sync; the whole tree when empty"`
	} `positional-args:"yes"`
	Logger core.Logger
}

// Execute runs the command
func (c *SyncCommand) Execute(_ []string) error {
	ApplyLogLevel(c.LogLevel)

	conf, err := BuildFromFile(c.ConfigFile, c.Logger)
	if err != nil {
		return err
	}
	if c.LogLevel == "" {
		ApplyLogLevel(conf.Global.LogLevel)
	}

	if conf.Global.SettingsFile == "" {
		return fmt.Errorf("no settings-file configured in [global]")
	}
	if err := conf.initBootTree(); err != nil {
		return err
	}

	m := conf.TreeManager()
	if len(c.Args.Systems) > 0 {
		return m.SyncSystems(c.Args.Systems)
	}
	return m.Sync()
}
