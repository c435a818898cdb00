package core

import (
	"strconv"
	"strings"
	"sync"
	"time"

	docker "github.com/fsouza/go-dockerclient"
	"github.com/gobs/args"
)

type RunJob struct {
	BareJob `mapstructure:",squash"`
	Client  DockerClient `json:"-"`

	User string `default:"root" hash:"true"`

	// ContainerName specifies the name of the container to be created. If
	// nil, the job name is used. An empty string lets Docker assign a
	// random name.
	ContainerName *string `mapstructure:"container-name" hash:"true"`

	TTY bool `default:"false" hash:"true"`

	// Delete and Pull are strings, not bools: with a bool an explicit
	// "false" in the config would be clobbered by the "true" default.
	Delete string `default:"true" hash:"true"`
	Pull   string `default:"true" hash:"true"`

	Image       string   `hash:"true"`
	Network     string   `mapstructure:"network" hash:"true"`
	Hostname    string   `hash:"true"`
	Entrypoint  *string  `hash:"true"`
	Container   string   `hash:"true"`
	Volume      []string `hash:"true"`
	Environment []string `mapstructure:"environment" hash:"true"`
	// CapAdd lists Linux capabilities granted to the container, e.g.
	// NET_ADMIN for provisioning servers that manage dhcp/tftp interfaces.
	CapAdd []string `mapstructure:"cap-add" hash:"true"`

	MaxRuntime time.Duration `mapstructure:"max-runtime"`

	monitor   *ContainerMonitor `json:"-"`
	dockerOps *DockerOperations `json:"-"`

	containerID string
	mu          sync.RWMutex // protects containerID
}

func NewRunJob(c DockerClient) *RunJob {
	j := &RunJob{Client: c}
	j.InitializeRuntimeFields()
	return j
}

// InitializeRuntimeFields initializes fields that depend on the Docker
// client. Called after Client is set, typically during config loading.
func (j *RunJob) InitializeRuntimeFields() {
	if j.Client == nil {
		return
	}
	if j.monitor == nil {
		j.monitor = NewContainerMonitor(j.Client, &SimpleLogger{})
	}
	if j.dockerOps == nil {
		j.dockerOps = NewDockerOperations(j.Client, &SimpleLogger{}, nil)
	}
}

func (j *RunJob) setContainerID(id string) {
	j.mu.Lock()
	j.containerID = id
	j.mu.Unlock()
}

func (j *RunJob) getContainerID() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.containerID
}

func entrypointSlice(ep *string) []string {
	if ep == nil {
		return nil
	}
	return args.GetArgs(*ep)
}

func (j *RunJob) Run(ctx *Context) error {
	j.dockerOps.SetContext(ctx.Logger, schedulerMetrics(ctx))
	pull, _ := strconv.ParseBool(j.Pull)

	if j.Image != "" && j.Container == "" {
		if err := j.dockerOps.EnsureImage(j.Image, pull); err != nil {
			return err
		}
		ctx.Log("Image " + j.Image + " is available")
	}

	container, err := j.createOrInspectContainer()
	if err != nil {
		return err
	}
	if container != nil {
		j.setContainerID(container.ID)
	}

	created := j.Container == ""
	if created {
		if del, _ := strconv.ParseBool(j.Delete); del {
			defer func() {
				if delErr := j.deleteContainer(); delErr != nil {
					ctx.Warn("failed to delete container: " + delErr.Error())
				}
			}()
		}
	}

	return j.startAndWait(ctx)
}

func (j *RunJob) createOrInspectContainer() (*docker.Container, error) {
	if j.Image != "" && j.Container == "" {
		return j.buildContainer()
	}

	container, err := j.Client.InspectContainerWithOptions(docker.InspectContainerOptions{ID: j.Container})
	if err != nil {
		return nil, WrapContainerError("inspect", j.Container, err)
	}
	return container, nil
}

func (j *RunJob) buildContainer() (*docker.Container, error) {
	name := j.Name
	if j.ContainerName != nil {
		name = *j.ContainerName
	}

	opts := docker.CreateContainerOptions{
		Name: name,
		Config: &docker.Config{
			Image:        j.Image,
			AttachStdin:  false,
			AttachStdout: true,
			AttachStderr: true,
			Tty:          j.TTY,
			Cmd:          args.GetArgs(j.Command),
			Entrypoint:   entrypointSlice(j.Entrypoint),
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
		return nil, WrapContainerError("create", name, err)
	}
	return container, nil
}

// startAndWait starts the container, waits for completion and tails logs.
func (j *RunJob) startAndWait(ctx *Context) error {
	startTime := time.Now()
	if err := j.Client.StartContainer(j.getContainerID(), nil); err != nil {
		// fsouza returns this when the container is already up
		if !strings.Contains(err.Error(), "already running") {
			return WrapContainerError("start", j.getContainerID(), err)
		}
	}

	j.monitor.logger = ctx.Logger
	state, err := j.monitor.WaitForContainer(j.getContainerID(), j.MaxRuntime)

	if logsErr := j.dockerOps.GetLogsSince(j.getContainerID(), startTime,
		ctx.Execution.OutputStream, ctx.Execution.ErrorStream); logsErr != nil {
		ctx.Warn("failed to fetch container logs: " + logsErr.Error())
	}

	if err != nil {
		return err
	}

	switch state.ExitCode {
	case 0:
		return nil
	case -1:
		return ErrUnexpected
	default:
		return NonZeroExitError{ExitCode: state.ExitCode}
	}
}

func (j *RunJob) deleteContainer() error {
	id := j.getContainerID()
	if id == "" {
		return nil
	}
	if err := j.Client.RemoveContainer(docker.RemoveContainerOptions{ID: id, Force: true}); err != nil {
		return WrapContainerError("remove", id, err)
	}
	j.setContainerID("")
	return nil
}

// schedulerMetrics extracts the metrics recorder from the context, if any.
func schedulerMetrics(ctx *Context) MetricsRecorder {
	if ctx.Scheduler == nil {
		return nil
	}
	return ctx.Scheduler.metricsRecorder
}
