package cli

import (
	"fmt"
	"sort"

	"github.com/netbootlab/bootlab/core"
)

// RunCommand runs configured jobs once, in the foreground, and exits
// non-zero when any of them fails. This is the entrypoint used from CI.
type RunCommand struct {
	ConfigFile string `long:"config" env:"BOOTLAB_CONFIG" description:"configuration file" default:"/etc/bootlab/config.ini"`
	LogLevel   string `long:"log-level" env:"BOOTLAB_LOG_LEVEL" description:"Set log level (overrides config)"`
	Args       struct {
		Jobs []string `positional-arg-name:"job" description:"job names to run; all suite jobs when empty"`
	} `positional-args:"yes"`
	Logger core.Logger
}

// Execute runs the command
func (c *RunCommand) Execute(_ []string) error {
	ApplyLogLevel(c.LogLevel)

	conf, err := BuildFromFile(c.ConfigFile, c.Logger)
	if err != nil {
		return err
	}
	if c.LogLevel == "" {
		ApplyLogLevel(conf.Global.LogLevel)
	}

	if err := conf.InitializeApp(); err != nil {
		return err
	}

	names := c.Args.Jobs
	if len(names) == 0 {
		for name := range conf.SuiteJobs {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	if len(names) == 0 {
		return fmt.Errorf("no jobs to run")
	}

	sh := conf.Scheduler()
	var failed []string
	for _, name := range names {
		j := sh.GetJob(name)
		if j == nil {
			return fmt.Errorf("%w: %q", core.ErrJobNotFound, name)
		}

		c.Logger.Noticef("Running job %q", name)
		if err := sh.RunJob(j); err != nil {
			c.Logger.Errorf("Job %q failed: %v", name, err)
			failed = append(failed, name)
			continue
		}
		c.Logger.Noticef("Job %q finished", name)
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d jobs failed: %v", len(failed), len(names), failed)
	}
	return nil
}
