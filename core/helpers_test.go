package core

import (
	"errors"
	"sync"
	"time"

	docker "github.com/fsouza/go-dockerclient"
)

type TestMiddleware struct {
	Called int
}

func (m *TestMiddleware) ContinueOnStop() bool   { return false }
func (m *TestMiddleware) Run(ctx *Context) error { m.Called++; return nil }

type TestJob struct {
	BareJob
	Called int
}

func (j *TestJob) Run(ctx *Context) error {
	j.Called++
	time.Sleep(time.Millisecond * 50)
	return nil
}

type TestLogger struct{}

func (*TestLogger) Criticalf(string, ...interface{}) {}
func (*TestLogger) Debugf(string, ...interface{})    {}
func (*TestLogger) Errorf(string, ...interface{})    {}
func (*TestLogger) Noticef(string, ...interface{})   {}
func (*TestLogger) Warningf(string, ...interface{})  {}

// fakeDockerClient implements DockerClient in memory. Zero value behaves as a
// daemon with the image present, a container that starts and stays running,
// and execs that exit 0.
type fakeDockerClient struct {
	mu sync.Mutex

	PullErr    error
	ListErr    error
	ListResult []docker.APIImages
	HasImage   bool

	CreateErr  error
	StartErr   error
	StopErr    error
	RemoveErr  error
	InspectErr error
	// ContainerExited makes the container report a stopped state on inspect.
	ContainerExited bool
	ContainerExit   int

	CreateExecErr  error
	StartExecErr   error
	InspectExecErr error
	// ExecExitCodes are consumed one per exec; execs beyond the list exit 0.
	ExecExitCodes []int
	ExecStdout    string

	LogsErr   error
	LogsOut   string
	EventsErr error

	Pulled  []docker.PullImageOptions
	Created []docker.CreateContainerOptions
	Started []string
	Stopped []string
	Removed []docker.RemoveContainerOptions
	Execs   []docker.CreateExecOptions
	execSeq int
}

var _ DockerClient = (*fakeDockerClient)(nil)

func (f *fakeDockerClient) InspectImage(name string) (*docker.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.HasImage {
		return nil, docker.ErrNoSuchImage
	}
	return &docker.Image{ID: "img-" + name}, nil
}

func (f *fakeDockerClient) PullImage(opts docker.PullImageOptions, _ docker.AuthConfiguration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pulled = append(f.Pulled, opts)
	if f.PullErr != nil {
		return f.PullErr
	}
	f.HasImage = true
	return nil
}

func (f *fakeDockerClient) ListImages(_ docker.ListImagesOptions) ([]docker.APIImages, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	if f.ListResult != nil {
		return f.ListResult, nil
	}
	if f.HasImage {
		return []docker.APIImages{{ID: "img"}}, nil
	}
	return nil, nil
}

func (f *fakeDockerClient) CreateContainer(opts docker.CreateContainerOptions) (*docker.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Created = append(f.Created, opts)
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	return &docker.Container{ID: "container-0123456789ab"}, nil
}

func (f *fakeDockerClient) StartContainer(id string, _ *docker.HostConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Started = append(f.Started, id)
	return f.StartErr
}

func (f *fakeDockerClient) StopContainer(id string, _ uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Stopped = append(f.Stopped, id)
	return f.StopErr
}

func (f *fakeDockerClient) RemoveContainer(opts docker.RemoveContainerOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Removed = append(f.Removed, opts)
	return f.RemoveErr
}

func (f *fakeDockerClient) InspectContainerWithOptions(opts docker.InspectContainerOptions) (*docker.Container, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InspectErr != nil {
		return nil, f.InspectErr
	}
	return &docker.Container{
		ID: opts.ID,
		State: docker.State{
			Running:  !f.ContainerExited,
			ExitCode: f.ContainerExit,
		},
	}, nil
}

func (f *fakeDockerClient) Logs(opts docker.LogsOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LogsErr != nil {
		return f.LogsErr
	}
	if opts.OutputStream != nil && f.LogsOut != "" {
		_, _ = opts.OutputStream.Write([]byte(f.LogsOut))
	}
	return nil
}

func (f *fakeDockerClient) CreateExec(opts docker.CreateExecOptions) (*docker.Exec, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Execs = append(f.Execs, opts)
	if f.CreateExecErr != nil {
		return nil, f.CreateExecErr
	}
	return &docker.Exec{ID: "exec-" + string(rune('a'+len(f.Execs)-1))}, nil
}

func (f *fakeDockerClient) StartExec(_ string, opts docker.StartExecOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartExecErr != nil {
		return f.StartExecErr
	}
	if opts.OutputStream != nil && f.ExecStdout != "" {
		_, _ = opts.OutputStream.Write([]byte(f.ExecStdout))
	}
	return nil
}

func (f *fakeDockerClient) InspectExec(_ string) (*docker.ExecInspect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InspectExecErr != nil {
		return nil, f.InspectExecErr
	}
	code := 0
	if f.execSeq < len(f.ExecExitCodes) {
		code = f.ExecExitCodes[f.execSeq]
	}
	f.execSeq++
	return &docker.ExecInspect{ExitCode: code, Running: false}, nil
}

func (f *fakeDockerClient) AddEventListenerWithOptions(_ docker.EventsOptions, _ chan<- *docker.APIEvents) error {
	if f.EventsErr != nil {
		return f.EventsErr
	}
	return errors.New("events not supported by fake")
}

func (f *fakeDockerClient) RemoveEventListener(_ chan *docker.APIEvents) error {
	return nil
}
