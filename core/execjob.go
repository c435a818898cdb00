package core

import (
	"fmt"

	docker "github.com/fsouza/go-dockerclient"
	"github.com/gobs/args"
)

type ExecJob struct {
	BareJob     `mapstructure:",squash"`
	Client      DockerClient `json:"-"`
	Container   string       `hash:"true"`
	User        string       `default:"root" hash:"true"`
	TTY         bool         `default:"false" hash:"true"`
	Environment []string     `mapstructure:"environment" hash:"true"`

	execID string
}

func NewExecJob(c DockerClient) *ExecJob {
	return &ExecJob{Client: c}
}

func (j *ExecJob) Run(ctx *Context) error {
	exec, err := j.buildExec()
	if err != nil {
		return err
	}

	if exec != nil {
		j.execID = exec.ID
	}

	if err := j.startExec(ctx.Execution); err != nil {
		return err
	}

	inspect, err := j.inspectExec()
	if err != nil {
		return err
	}

	switch inspect.ExitCode {
	case 0:
		return nil
	case -1:
		return ErrUnexpected
	default:
		return NonZeroExitError{ExitCode: inspect.ExitCode}
	}
}

func (j *ExecJob) buildExec() (*docker.Exec, error) {
	cmdArgs := args.GetArgs(j.Command)
	if len(cmdArgs) == 0 {
		return nil, ErrEmptyCommand
	}

	exec, err := j.Client.CreateExec(docker.CreateExecOptions{
		AttachStdin:  false,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          j.TTY,
		Cmd:          cmdArgs,
		Container:    j.Container,
		User:         j.User,
		Env:          j.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("create exec: %w", err)
	}

	return exec, nil
}

func (j *ExecJob) startExec(e *Execution) error {
	err := j.Client.StartExec(j.execID, docker.StartExecOptions{
		Tty:          j.TTY,
		OutputStream: e.OutputStream,
		ErrorStream:  e.ErrorStream,
		RawTerminal:  j.TTY,
	})
	if err != nil {
		return fmt.Errorf("start exec: %w", err)
	}

	return nil
}

func (j *ExecJob) inspectExec() (*docker.ExecInspect, error) {
	inspect, err := j.Client.InspectExec(j.execID)
	if err != nil {
		return nil, fmt.Errorf("inspect exec: %w", err)
	}

	return inspect, nil
}
