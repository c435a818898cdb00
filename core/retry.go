package core

import (
	"math"
	"time"
)

// RetryConfig contains retry configuration for a job
type RetryConfig struct {
	MaxRetries       int
	RetryDelayMs     int
	RetryExponential bool
	RetryMaxDelayMs  int
}

// RetryableJob interface for jobs that support retries
type RetryableJob interface {
	Job
	GetRetryConfig() RetryConfig
}

// GetRetryConfig returns the retry configuration for the job
func (j *BareJob) GetRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:       j.MaxRetries,
		RetryDelayMs:     j.RetryDelayMs,
		RetryExponential: j.RetryExponential,
		RetryMaxDelayMs:  j.RetryMaxDelayMs,
	}
}

// MetricsRecorder is implemented by the metrics package; the scheduler and
// docker plumbing record through it when one is configured.
type MetricsRecorder interface {
	RecordJobStart(jobName string)
	RecordJobComplete(jobName string, seconds float64, failed bool)
	RecordJobRetry(jobName string, attempt int, success bool)
	RecordDockerOperation(op string)
	RecordDockerError(op string)
	RecordTreeSync(err error)
}

// RetryExecutor wraps job execution with retry logic
type RetryExecutor struct {
	logger  Logger
	metrics MetricsRecorder
}

// NewRetryExecutor creates a new retry executor
func NewRetryExecutor(logger Logger) *RetryExecutor {
	return &RetryExecutor{logger: logger}
}

// SetMetricsRecorder sets the metrics recorder for the retry executor
func (re *RetryExecutor) SetMetricsRecorder(metrics MetricsRecorder) {
	re.metrics = metrics
}

// ExecuteWithRetry executes a job with retry logic
func (re *RetryExecutor) ExecuteWithRetry(job Job, ctx *Context, runFunc func(*Context) error) error {
	retryableJob, ok := job.(RetryableJob)
	if !ok {
		return runFunc(ctx)
	}

	config := retryableJob.GetRetryConfig()
	if config.MaxRetries <= 0 {
		return runFunc(ctx)
	}

	var lastErr error
	attempt := 0

	for attempt <= config.MaxRetries {
		err := runFunc(ctx)
		if err == nil {
			if attempt > 0 {
				re.logger.Noticef("Job %s succeeded after %d retries", job.GetName(), attempt)
				if re.metrics != nil {
					re.metrics.RecordJobRetry(job.GetName(), attempt, true)
				}
			}
			return nil
		}

		lastErr = err
		if attempt >= config.MaxRetries {
			break
		}

		delay := re.calculateDelay(config, attempt)
		re.logger.Warningf("Job %s failed (attempt %d/%d): %v. Retrying in %v",
			job.GetName(), attempt+1, config.MaxRetries+1, err, delay)
		if re.metrics != nil {
			re.metrics.RecordJobRetry(job.GetName(), attempt+1, false)
		}

		time.Sleep(delay)
		attempt++
	}

	re.logger.Errorf("Job %s failed after %d attempts: %v",
		job.GetName(), config.MaxRetries+1, lastErr)
	if re.metrics != nil {
		re.metrics.RecordJobRetry(job.GetName(), config.MaxRetries, false)
	}
	return lastErr
}

// calculateDelay computes the backoff delay for the given attempt.
func (re *RetryExecutor) calculateDelay(config RetryConfig, attempt int) time.Duration {
	delayMs := config.RetryDelayMs
	if delayMs <= 0 {
		delayMs = 1000
	}

	if config.RetryExponential {
		delayMs = int(float64(delayMs) * math.Pow(2, float64(attempt)))
	}

	maxDelayMs := config.RetryMaxDelayMs
	if maxDelayMs <= 0 {
		maxDelayMs = 60000
	}
	if delayMs > maxDelayMs {
		delayMs = maxDelayMs
	}

	return time.Duration(delayMs) * time.Millisecond
}
