package core

import (
	"fmt"
	"strconv"
	"time"

	docker "github.com/fsouza/go-dockerclient"
	"github.com/gobs/args"
)

// SuiteJob runs a verification suite against a provisioning server image:
// the image is pulled, a container is started (typically with NET_ADMIN so
// the server can manage dhcp/tftp interfaces), the setup commands and the
// test command are executed inside it in order, and the container is always
// stopped and removed afterwards, even when a step fails. The first failing
// step aborts the remaining ones.
type SuiteJob struct {
	BareJob `mapstructure:",squash"`
	Client  DockerClient `json:"-"`

	Image       string   `hash:"true"`
	User        string   `default:"root" hash:"true"`
	Network     string   `mapstructure:"network" hash:"true"`
	Hostname    string   `hash:"true"`
	Volume      []string `hash:"true"`
	Environment []string `mapstructure:"environment" hash:"true"`
	CapAdd      []string `mapstructure:"cap-add" hash:"true"`

	// Setup commands run before Test, in declaration order.
	Setup []string `mapstructure:"setup" hash:"true"`
	// Test is the command the suite exists for, e.g. "make system-test".
	Test string `hash:"true"`

	Pull   string `default:"true" hash:"true"`
	Delete string `default:"true" hash:"true"`

	// MaxRuntime bounds the whole suite, container boot included.
	MaxRuntime time.Duration `mapstructure:"max-runtime"`
	// StopTimeout is how long the engine waits for a clean stop before
	// killing the container during teardown.
	StopTimeout time.Duration `mapstructure:"stop-timeout" default:"10s"`

	dockerOps *DockerOperations `json:"-"`

	containerID string
}

func NewSuiteJob(c DockerClient) *SuiteJob {
	j := &SuiteJob{Client: c}
	j.InitializeRuntimeFields()
	return j
}

// InitializeRuntimeFields initializes fields that depend on the Docker
// client. Called after Client is set, typically during config loading.
func (j *SuiteJob) InitializeRuntimeFields() {
	if j.Client == nil {
		return
	}
	if j.dockerOps == nil {
		j.dockerOps = NewDockerOperations(j.Client, &SimpleLogger{}, nil)
	}
}

func (j *SuiteJob) Run(ctx *Context) error {
	if j.Image == "" {
		return ErrImageRequired
	}
	if j.Test == "" && len(j.Setup) == 0 {
		return ErrNoSuiteSteps
	}

	j.dockerOps.SetContext(ctx.Logger, schedulerMetrics(ctx))

	deadline := time.Time{}
	if j.MaxRuntime > 0 {
		deadline = time.Now().Add(j.MaxRuntime)
	}

	pull, _ := strconv.ParseBool(j.Pull)
	if err := j.dockerOps.EnsureImage(j.Image, pull); err != nil {
		return err
	}
	ctx.Log("Image " + j.Image + " is available")

	// Registered before startContainer so a container that was created but
	// failed to start, or exited during startup, is still cleaned up.
	defer j.teardown(ctx)

	if err := j.startContainer(ctx); err != nil {
		return err
	}

	return j.runSteps(ctx, deadline)
}

func (j *SuiteJob) startContainer(ctx *Context) error {
	opts := docker.CreateContainerOptions{
		Name: j.Name,
		Config: &docker.Config{
			Image:        j.Image,
			AttachStdin:  false,
			AttachStdout: true,
			AttachStderr: true,
			Cmd:          args.GetArgs(j.Command),
			User:         j.User,
			Env:          j.Environment,
			Hostname:     j.Hostname,
		},
		HostConfig: &docker.HostConfig{
			Binds:  j.Volume,
			CapAdd: j.CapAdd,
		},
	}
	if j.Network != "" {
		opts.HostConfig.NetworkMode = j.Network
	}

	container, err := j.Client.CreateContainer(opts)
	if err != nil {
		return WrapContainerError("create", j.Name, err)
	}
	j.containerID = container.ID

	if err := j.Client.StartContainer(j.containerID, nil); err != nil {
		return WrapContainerError("start", j.containerID, err)
	}

	// The server must still be up when the steps start; a container that
	// exits immediately is a failed suite, not a passed empty one.
	inspected, err := j.Client.InspectContainerWithOptions(docker.InspectContainerOptions{ID: j.containerID})
	if err != nil {
		return WrapContainerError("inspect", j.containerID, err)
	}
	if !inspected.State.Running {
		return fmt.Errorf("%w: container exited during startup with code %d",
			ErrContainerStartFailed, inspected.State.ExitCode)
	}

	ctx.Log("Started container " + j.containerID[:12])
	return nil
}

func (j *SuiteJob) runSteps(ctx *Context, deadline time.Time) error {
	steps := make([]string, 0, len(j.Setup)+1)
	steps = append(steps, j.Setup...)
	if j.Test != "" {
		steps = append(steps, j.Test)
	}

	for i, step := range steps {
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return ErrMaxTimeRunning
		}

		ctx.Log(fmt.Sprintf("Step %d/%d: %s", i+1, len(steps), step))
		if err := j.execStep(ctx, step); err != nil {
			return fmt.Errorf("%w: step %d/%d %q: %w", ErrSuiteStepFailed, i+1, len(steps), step, err)
		}
	}

	return nil
}

func (j *SuiteJob) execStep(ctx *Context, command string) error {
	cmdArgs := args.GetArgs(command)
	if len(cmdArgs) == 0 {
		return ErrEmptyCommand
	}

	exec, err := j.Client.CreateExec(docker.CreateExecOptions{
		AttachStdin:  false,
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          cmdArgs,
		Container:    j.containerID,
		User:         j.User,
		Env:          j.Environment,
	})
	if err != nil {
		return fmt.Errorf("create exec: %w", err)
	}

	if err := j.Client.StartExec(exec.ID, docker.StartExecOptions{
		OutputStream: ctx.Execution.OutputStream,
		ErrorStream:  ctx.Execution.ErrorStream,
	}); err != nil {
		return fmt.Errorf("start exec: %w", err)
	}

	inspect, err := j.Client.InspectExec(exec.ID)
	if err != nil {
		return fmt.Errorf("inspect exec: %w", err)
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

// teardown stops and removes the suite container. It runs even when a step
// failed; teardown problems are logged, never promoted to a suite failure.
func (j *SuiteJob) teardown(ctx *Context) {
	if j.containerID == "" {
		return
	}

	timeout := uint(j.StopTimeout / time.Second)
	if err := j.Client.StopContainer(j.containerID, timeout); err != nil {
		ctx.Warn("failed to stop container: " + err.Error())
	}

	if del, _ := strconv.ParseBool(j.Delete); del {
		if err := j.Client.RemoveContainer(docker.RemoveContainerOptions{ID: j.containerID, Force: true}); err != nil {
			ctx.Warn("failed to remove container: " + err.Error())
		}
	}
	j.containerID = ""
}
