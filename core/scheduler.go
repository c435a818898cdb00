package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/netresearch/go-cron"
)

var (
	ErrEmptyScheduler = errors.New("unable to start an empty scheduler")
	ErrEmptySchedule  = errors.New("unable to add a job with an empty schedule")
)

// DefaultStopTimeout is the default timeout for graceful shutdown.
const DefaultStopTimeout = 30 * time.Second

type Scheduler struct {
	Jobs   []Job
	Logger Logger

	middlewareContainer
	cron            *cron.Cron
	wg              sync.WaitGroup
	mu              sync.RWMutex
	jobsByName      map[string]Job
	retryExecutor   *RetryExecutor
	metricsRecorder MetricsRecorder
	onJobComplete   func(jobName string, success bool)
}

func NewScheduler(l Logger) *Scheduler {
	return NewSchedulerWithMetrics(l, nil)
}

// NewSchedulerWithMetrics creates a scheduler that records job lifecycle
// events through the given recorder.
func NewSchedulerWithMetrics(l Logger, metricsRecorder MetricsRecorder) *Scheduler {
	cronUtils := NewCronUtils(l)
	cronInstance := cron.New(
		cron.WithParser(cron.FullParser()),
		cron.WithLogger(cronUtils),
		cron.WithChain(cron.Recover(cronUtils)),
	)

	s := &Scheduler{
		Logger:          l,
		cron:            cronInstance,
		jobsByName:      make(map[string]Job),
		retryExecutor:   NewRetryExecutor(l),
		metricsRecorder: metricsRecorder,
	}
	if metricsRecorder != nil {
		s.retryExecutor.SetMetricsRecorder(metricsRecorder)
	}
	return s
}

// SetOnJobComplete registers a callback fired after every job run. Used by
// the daemon for logging and by tests for synchronization.
func (s *Scheduler) SetOnJobComplete(callback func(jobName string, success bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onJobComplete = callback
}

func (s *Scheduler) AddJob(j Job) error {
	if j.GetSchedule() == "" {
		return ErrEmptySchedule
	}

	opts := []cron.JobOption{cron.WithName(j.GetName())}
	if j.ShouldRunOnStartup() {
		opts = append(opts, cron.WithRunImmediately())
	}

	// Apply global middlewares before registering: WithRunImmediately may
	// fire the job right after AddJob returns.
	j.Use(s.Middlewares()...)

	id, err := s.cron.AddJob(j.GetSchedule(), &jobWrapper{s, j}, opts...)
	if err != nil {
		s.Logger.Warningf("Failed to register job %q - %q - %q",
			j.GetName(), j.GetCommand(), j.GetSchedule())
		return fmt.Errorf("add cron job: %w", err)
	}
	j.SetCronJobID(uint64(id))

	s.mu.Lock()
	s.Jobs = append(s.Jobs, j)
	s.jobsByName[j.GetName()] = j
	s.mu.Unlock()

	s.Logger.Noticef("New job registered %q - %q - %q - ID: %v",
		j.GetName(), j.GetCommand(), j.GetSchedule(), id)
	return nil
}

func (s *Scheduler) RemoveJob(j Job) error {
	s.Logger.Noticef("Job deregistered (will not fire again) %q - %q - %q - ID: %v",
		j.GetName(), j.GetCommand(), j.GetSchedule(), j.GetCronJobID())

	s.cron.RemoveByName(j.GetName())
	s.cron.WaitForJobByName(j.GetName())

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, job := range s.Jobs {
		if job == j || job.GetCronJobID() == j.GetCronJobID() {
			s.Jobs = append(s.Jobs[:i], s.Jobs[i+1:]...)
			break
		}
	}
	delete(s.jobsByName, j.GetName())
	return nil
}

// GetJob returns the registered job with the given name, or nil.
func (s *Scheduler) GetJob(name string) Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobsByName[name]
}

func (s *Scheduler) Start() error {
	s.mu.RLock()
	empty := len(s.Jobs) == 0
	s.mu.RUnlock()
	if empty {
		return ErrEmptyScheduler
	}

	s.Logger.Debugf("Starting scheduler")
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() error {
	return s.StopWithTimeout(DefaultStopTimeout)
}

// StopWithTimeout stops the scheduler, waiting up to the timeout for running
// jobs to complete.
func (s *Scheduler) StopWithTimeout(timeout time.Duration) error {
	completed := s.cron.StopWithTimeout(timeout)
	s.wg.Wait()

	if !completed {
		s.Logger.Warningf("Scheduler stop timed out after %v - some jobs may still be running", timeout)
		return fmt.Errorf("%w after %v", ErrSchedulerTimeout, timeout)
	}
	s.Logger.Debugf("Scheduler stopped gracefully")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	return s.cron.IsRunning()
}

// RunJob executes a job synchronously, outside of its cron schedule, with
// the full middleware chain. Used by the one-shot commands.
func (s *Scheduler) RunJob(j Job) error {
	e, err := NewExecution()
	if err != nil {
		return fmt.Errorf("create execution: %w", err)
	}
	defer e.Cleanup()

	j.Use(s.Middlewares()...)
	ctx := NewContext(s, j, e)

	ctx.Start()
	ctx.Log("Started - " + j.GetCommand())

	err = s.retryExecutor.ExecuteWithRetry(j, ctx, func(c *Context) error {
		return c.Next()
	})
	ctx.Stop(err)

	if bare, ok := j.(interface{ SetLastRun(*Execution) }); ok {
		bare.SetLastRun(e)
	}

	errText := "none"
	if ctx.Execution.Error != nil {
		errText = ctx.Execution.Error.Error()
	}
	ctx.Log(fmt.Sprintf("Finished in %q, failed: %t, skipped: %t, error: %s",
		ctx.Execution.Duration, ctx.Execution.Failed, ctx.Execution.Skipped, errText))

	if ctx.Execution.Failed {
		if ctx.Execution.Error != nil {
			return ctx.Execution.Error
		}
		return ErrUnexpected
	}
	return nil
}

type jobWrapper struct {
	s *Scheduler
	j Job
}

// Compile-time assertion: jobWrapper implements cron.JobWithContext.
var _ cron.JobWithContext = (*jobWrapper)(nil)

// Run implements cron.Job.
func (w *jobWrapper) Run() {
	w.runWithCtx(context.Background())
}

// RunWithContext implements cron.JobWithContext. go-cron cancels the context
// when the entry is removed or replaced.
func (w *jobWrapper) RunWithContext(ctx context.Context) {
	w.runWithCtx(ctx)
}

func (w *jobWrapper) runWithCtx(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.s.Logger.Errorf("Job %q panicked: %v", w.j.GetName(), r)
		}
	}()

	if !w.s.cron.IsRunning() {
		return
	}

	e, err := NewExecution()
	if err != nil {
		w.s.Logger.Errorf("failed to create execution: %v", err)
		return
	}
	defer e.Cleanup()

	jctx := NewContextWithContext(ctx, w.s, w.j, e)

	w.start(jctx)
	err = w.s.retryExecutor.ExecuteWithRetry(w.j, jctx, func(c *Context) error {
		return c.Next()
	})
	w.stop(jctx, err)

	if w.s.onJobComplete != nil {
		success := err == nil && !jctx.Execution.Failed
		w.s.onJobComplete(w.j.GetName(), success)
	}
}

func (w *jobWrapper) start(ctx *Context) {
	ctx.Start()
	ctx.Log("Started - " + ctx.Job.GetCommand())

	if w.s.metricsRecorder != nil {
		w.s.metricsRecorder.RecordJobStart(ctx.Job.GetName())
	}
}

func (w *jobWrapper) stop(ctx *Context, err error) {
	ctx.Stop(err)

	if bare, ok := ctx.Job.(interface{ SetLastRun(*Execution) }); ok {
		bare.SetLastRun(ctx.Execution)
	}

	errText := "none"
	if ctx.Execution.Error != nil {
		errText = ctx.Execution.Error.Error()
	}

	if ctx.Execution.OutputStream != nil && ctx.Execution.OutputStream.TotalWritten() > 0 {
		ctx.Log("StdOut: " + ctx.Execution.OutputStream.String())
	}

	if ctx.Execution.ErrorStream != nil && ctx.Execution.ErrorStream.TotalWritten() > 0 {
		ctx.Log("StdErr: " + ctx.Execution.ErrorStream.String())
	}

	ctx.Log(fmt.Sprintf("Finished in %q, failed: %t, skipped: %t, error: %s",
		ctx.Execution.Duration, ctx.Execution.Failed, ctx.Execution.Skipped, errText))

	if w.s.metricsRecorder != nil {
		w.s.metricsRecorder.RecordJobComplete(
			ctx.Job.GetName(), ctx.Execution.Duration.Seconds(), ctx.Execution.Failed)
	}
}
