package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/distribution/reference"
	dockercliconfig "github.com/docker/cli/cli/config"
	docker "github.com/fsouza/go-dockerclient"
	"golang.org/x/time/rate"
)

// dockercfg caches the legacy ~/.dockercfg style credentials as a fallback
// when the docker CLI config has no entry for a registry.
var dockercfg *docker.AuthConfigurations

func init() {
	dockercfg, _ = docker.NewAuthConfigurationsFromDockerCfg()
}

// DockerClient is the narrow surface of the Docker API used by the jobs.
// *docker.Client satisfies it; tests use a fake.
type DockerClient interface {
	InspectImage(name string) (*docker.Image, error)
	PullImage(opts docker.PullImageOptions, auth docker.AuthConfiguration) error
	ListImages(opts docker.ListImagesOptions) ([]docker.APIImages, error)
	CreateContainer(opts docker.CreateContainerOptions) (*docker.Container, error)
	StartContainer(id string, hostConfig *docker.HostConfig) error
	StopContainer(id string, timeout uint) error
	RemoveContainer(opts docker.RemoveContainerOptions) error
	InspectContainerWithOptions(opts docker.InspectContainerOptions) (*docker.Container, error)
	Logs(opts docker.LogsOptions) error
	CreateExec(opts docker.CreateExecOptions) (*docker.Exec, error)
	StartExec(id string, opts docker.StartExecOptions) error
	InspectExec(id string) (*docker.ExecInspect, error)
	AddEventListenerWithOptions(opts docker.EventsOptions, listener chan<- *docker.APIEvents) error
	RemoveEventListener(listener chan *docker.APIEvents) error
}

var _ DockerClient = (*docker.Client)(nil)

// NewDockerClient builds a client from the DOCKER_HOST / DOCKER_CERT_PATH
// environment, falling back to the default local socket.
func NewDockerClient() (DockerClient, error) {
	c, err := docker.NewClientFromEnv()
	if err != nil {
		return nil, fmt.Errorf("docker client from env: %w", err)
	}
	return c, nil
}

// buildPullOptions parses an image reference into pull options plus the
// credentials configured for its registry.
func buildPullOptions(image string) (docker.PullImageOptions, docker.AuthConfiguration) {
	repository, tag, registry := parseImageRef(image)

	return docker.PullImageOptions{
		Repository: repository,
		Registry:   registry,
		Tag:        tag,
	}, buildAuthConfiguration(registry)
}

// parseImageRef normalizes an image reference using the distribution rules,
// defaulting the tag to "latest".
func parseImageRef(image string) (repository, tag, registry string) {
	named, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return image, "latest", ""
	}

	named = reference.TagNameOnly(named)
	tag = "latest"
	if tagged, ok := named.(reference.Tagged); ok {
		tag = tagged.Tag()
	}

	return reference.FamiliarName(named), tag, reference.Domain(named)
}

// buildAuthConfiguration resolves registry credentials, preferring the docker
// CLI config (which understands credential helpers) and falling back to the
// legacy dockercfg cache. Missing credentials are not an error: public images
// pull anonymously.
func buildAuthConfiguration(registry string) docker.AuthConfiguration {
	if cfg, err := dockercliconfig.Load(""); err == nil {
		if auth, err := cfg.GetAuthConfig(normalizeRegistry(registry)); err == nil &&
			(auth.Username != "" || auth.Password != "" || auth.IdentityToken != "") {
			return docker.AuthConfiguration{
				Username:      auth.Username,
				Password:      auth.Password,
				ServerAddress: auth.ServerAddress,
				IdentityToken: auth.IdentityToken,
				RegistryToken: auth.RegistryToken,
			}
		}
	}

	if dockercfg == nil {
		return docker.AuthConfiguration{}
	}

	if c, ok := dockercfg.Configs[registry]; ok {
		return c
	}
	if registry == "" || registry == "docker.io" {
		for _, index := range []string{"https://index.docker.io/v2/", "https://index.docker.io/v1/"} {
			if c, ok := dockercfg.Configs[index]; ok {
				return c
			}
		}
	}
	return docker.AuthConfiguration{}
}

// normalizeRegistry maps the distribution domain to the key used in the
// docker CLI config file.
func normalizeRegistry(registry string) string {
	if registry == "" || registry == "docker.io" || registry == "index.docker.io" {
		return "https://index.docker.io/v1/"
	}
	return registry
}

// DockerOperations provides a small high-level wrapper over the client with
// consistent error handling, logging and metrics.
type DockerOperations struct {
	client  DockerClient
	logger  Logger
	metrics MetricsRecorder
}

// NewDockerOperations creates a new Docker operations wrapper
func NewDockerOperations(client DockerClient, logger Logger, metrics MetricsRecorder) *DockerOperations {
	return &DockerOperations{
		client:  client,
		logger:  logger,
		metrics: metrics,
	}
}

// SetContext updates the logger and metrics used for subsequent operations.
func (d *DockerOperations) SetContext(logger Logger, metrics MetricsRecorder) {
	if logger != nil {
		d.logger = logger
	}
	if metrics != nil {
		d.metrics = metrics
	}
}

func (d *DockerOperations) record(op string) {
	if d.metrics != nil {
		d.metrics.RecordDockerOperation(op)
	}
}

func (d *DockerOperations) recordError(op string) {
	if d.metrics != nil {
		d.metrics.RecordDockerError(op)
	}
}

// PullImage pulls an image with registry authentication.
func (d *DockerOperations) PullImage(image string) error {
	d.record("pull_image")

	opts, auth := buildPullOptions(image)
	if err := d.client.PullImage(opts, auth); err != nil {
		d.recordError("pull_image")
		return fmt.Errorf("%w: %s: %s", ErrImagePullFailed, image, err)
	}

	d.logger.Noticef("Pulled image %s", image)
	return nil
}

// HasImageLocally checks if an image exists locally.
func (d *DockerOperations) HasImageLocally(image string) (bool, error) {
	d.record("check_image")

	repository, tag, _ := parseImageRef(image)
	images, err := d.client.ListImages(docker.ListImagesOptions{
		Filters: map[string][]string{
			"reference": {fmt.Sprintf("%s:%s", repository, tag)},
		},
	})
	if err != nil {
		d.recordError("check_image")
		return false, WrapImageError("check", image, err)
	}

	return len(images) > 0, nil
}

// EnsureImage makes the image available locally, pulling when forced or when
// the image is missing.
func (d *DockerOperations) EnsureImage(image string, forcePull bool) error {
	var pullError error

	if forcePull {
		if pullError = d.PullImage(image); pullError == nil {
			return nil
		}
	}

	hasImage, checkErr := d.HasImageLocally(image)
	if checkErr == nil && hasImage {
		d.logger.Noticef("Found image %s locally", image)
		return nil
	}

	if !forcePull {
		if pullError = d.PullImage(image); pullError == nil {
			return nil
		}
	}

	if pullError != nil {
		return pullError
	}
	return WrapImageError("ensure", image, ErrImageNotFound)
}

// GetLogsSince copies container logs produced after `since` into the given
// streams.
func (d *DockerOperations) GetLogsSince(
	containerID string, since time.Time, outputStream, errorStream io.Writer,
) error {
	d.record("get_logs")

	opts := docker.LogsOptions{
		Container:    containerID,
		Stdout:       true,
		Stderr:       true,
		Since:        since.Unix(),
		OutputStream: outputStream,
		ErrorStream:  errorStream,
		RawTerminal:  false,
	}

	if err := d.client.Logs(opts); err != nil {
		d.recordError("get_logs")
		return WrapContainerError("get_logs", containerID, err)
	}
	return nil
}

// ContainerMonitor waits for container completion, preferring the Docker
// events API with a rate-limited inspect loop as fallback.
type ContainerMonitor struct {
	client       DockerClient
	logger       Logger
	useEventsAPI bool
	pollLimiter  *rate.Limiter
}

// NewContainerMonitor creates a new container monitor
func NewContainerMonitor(client DockerClient, logger Logger) *ContainerMonitor {
	return &ContainerMonitor{
		client:       client,
		logger:       logger,
		useEventsAPI: true,
		// polling fallback inspects at most twice per second
		pollLimiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}
}

// SetUseEventsAPI allows toggling between events API and polling.
func (cm *ContainerMonitor) SetUseEventsAPI(use bool) {
	cm.useEventsAPI = use
}

// WaitForContainer blocks until the container stops or maxRuntime elapses
// (when maxRuntime > 0). It returns the final container state.
func (cm *ContainerMonitor) WaitForContainer(containerID string, maxRuntime time.Duration) (*docker.State, error) {
	if cm.useEventsAPI {
		state, err := cm.waitWithEvents(containerID, maxRuntime)
		if err == nil || errors.Is(err, ErrMaxTimeRunning) {
			return state, err
		}
		cm.logger.Warningf("Events API wait failed, falling back to polling: %v", err)
	}

	return cm.waitWithPolling(containerID, maxRuntime)
}

func (cm *ContainerMonitor) waitWithEvents(containerID string, maxRuntime time.Duration) (*docker.State, error) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if maxRuntime > 0 {
		ctx, cancel = context.WithTimeout(ctx, maxRuntime)
		defer cancel()
	}

	eventChan := make(chan *docker.APIEvents, 10)
	opts := docker.EventsOptions{
		Filters: map[string][]string{
			"container": {containerID},
			"event":     {"die", "kill", "stop", "oom"},
		},
	}

	if err := cm.client.AddEventListenerWithOptions(opts, eventChan); err != nil {
		return nil, fmt.Errorf("add event listener: %w", err)
	}
	defer func() {
		if err := cm.client.RemoveEventListener(eventChan); err != nil {
			cm.logger.Warningf("Failed to remove event listener: %v", err)
		}
	}()

	// The container may already have stopped before the listener was attached.
	container, err := cm.inspect(ctx, containerID)
	if err != nil {
		return nil, err
	}
	if !container.State.Running {
		return &container.State, nil
	}

	for {
		select {
		case <-ctx.Done():
			if maxRuntime > 0 {
				return nil, ErrMaxTimeRunning
			}
			return nil, ctx.Err()

		case event, ok := <-eventChan:
			if !ok {
				return nil, ErrEventChannelClosed
			}

			if event.ID == containerID || event.Actor.ID == containerID {
				container, err := cm.inspect(ctx, containerID)
				if err != nil {
					return nil, err
				}
				return &container.State, nil
			}
		}
	}
}

func (cm *ContainerMonitor) waitWithPolling(containerID string, maxRuntime time.Duration) (*docker.State, error) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if maxRuntime > 0 {
		ctx, cancel = context.WithTimeout(ctx, maxRuntime)
		defer cancel()
	}

	for {
		if err := cm.pollLimiter.Wait(ctx); err != nil {
			if maxRuntime > 0 {
				return nil, ErrMaxTimeRunning
			}
			return nil, fmt.Errorf("wait for poll slot: %w", err)
		}

		container, err := cm.inspect(ctx, containerID)
		if err != nil {
			return nil, err
		}
		if !container.State.Running {
			return &container.State, nil
		}
	}
}

func (cm *ContainerMonitor) inspect(ctx context.Context, containerID string) (*docker.Container, error) {
	container, err := cm.client.InspectContainerWithOptions(docker.InspectContainerOptions{
		ID:      containerID,
		Context: ctx,
	})
	if err != nil {
		return nil, WrapContainerError("inspect", containerID, err)
	}
	return container, nil
}
