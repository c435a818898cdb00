package core

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors used across the package
var (
	// Container errors
	ErrContainerNotFound     = errors.New("container not found")
	ErrContainerStartFailed  = errors.New("failed to start container")
	ErrContainerCreateFailed = errors.New("failed to create container")
	ErrContainerStopFailed   = errors.New("failed to stop container")
	ErrContainerRemoveFailed = errors.New("failed to remove container")

	// Image errors
	ErrImageNotFound   = errors.New("image not found")
	ErrImagePullFailed = errors.New("failed to pull image")

	// Job errors
	ErrJobNotFound    = errors.New("job not found")
	ErrMaxTimeRunning = errors.New("max runtime exceeded")
	ErrUnexpected     = errors.New("unexpected error")

	// Suite errors
	ErrSuiteStepFailed = errors.New("suite step failed")
	ErrNoSuiteSteps    = errors.New("suite has no steps")

	// Validation errors
	ErrEmptyCommand         = errors.New("command cannot be empty")
	ErrUnsupportedFieldType = errors.New("unsupported field type")
	ErrImageRequired        = errors.New("suite requires 'image'")

	// Scheduler errors
	ErrSchedulerTimeout = errors.New("scheduler stop timed out")

	// Docker errors
	ErrEventChannelClosed = errors.New("event channel closed unexpectedly")
)

// WrapContainerError wraps a container-related error with context
func WrapContainerError(op string, containerID string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s container %q: %w", op, containerID, err)
}

// WrapImageError wraps an image-related error with context
func WrapImageError(op string, image string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s image %q: %w", op, image, err)
}

// WrapJobError wraps a job-related error with context
func WrapJobError(op string, jobName string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s job %q: %w", op, jobName, err)
}

// IsRetryableError checks if an error should trigger a retry
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrContainerStartFailed) ||
		errors.Is(err, ErrImagePullFailed) ||
		containsNetworkError(err)
}

// containsNetworkError checks if the error is network-related
func containsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	networkErrors := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"no such host",
		"network unreachable",
	}

	for _, pattern := range networkErrors {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// NonZeroExitError represents a container or exec exit with non-zero code
type NonZeroExitError struct {
	ExitCode int
}

func (e NonZeroExitError) Error() string {
	return fmt.Sprintf("non-zero exit code: %d", e.ExitCode)
}

// IsNonZeroExitError checks if the error is a non-zero exit code error
func IsNonZeroExitError(err error) bool {
	var target NonZeroExitError
	return errors.As(err, &target)
}
