package core

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/gobs/args"
)

// LocalJob runs a command on the host, outside any container. Used for lab
// helper scripts that need direct access to the scheduler host, such as
// report generation or tftp root housekeeping.
type LocalJob struct {
	BareJob     `mapstructure:",squash"`
	Dir         string   `hash:"true"`
	Environment []string `mapstructure:"environment" hash:"true"`
}

func NewLocalJob() *LocalJob {
	return &LocalJob{}
}

func (j *LocalJob) Run(ctx *Context) error {
	cmdArgs := args.GetArgs(j.Command)
	if len(cmdArgs) == 0 {
		return ErrEmptyCommand
	}

	bin, err := exec.LookPath(cmdArgs[0])
	if err != nil {
		return fmt.Errorf("look path %q: %w", cmdArgs[0], err)
	}

	cmd := exec.CommandContext(ctx.Ctx, bin, cmdArgs[1:]...)
	cmd.Stdout = ctx.Execution.OutputStream
	cmd.Stderr = ctx.Execution.ErrorStream
	// job env extends the host env rather than replacing it
	cmd.Env = append(os.Environ(), j.Environment...)
	cmd.Dir = j.Dir

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("local run: %w", err)
	}
	return nil
}
