package middlewares

import (
	"github.com/netbootlab/bootlab/core"
)

// OverlapConfig configuration for the Overlap middleware
type OverlapConfig struct {
	NoOverlap bool `gcfg:"no-overlap" mapstructure:"no-overlap"`
}

// NewOverlap returns an Overlap middleware if the given configuration is not empty
func NewOverlap(c *OverlapConfig) core.Middleware {
	var m core.Middleware
	if !IsEmpty(c) {
		m = &Overlap{*c}
	}

	return m
}

// Overlap skips executions of a job while a previous execution of the same
// job is still running.
type Overlap struct {
	OverlapConfig
}

// ContinueOnStop returns false; a skipped execution has nothing to report
func (m *Overlap) ContinueOnStop() bool {
	return false
}

// Run skips the execution if another run of the job is in progress
func (m *Overlap) Run(ctx *core.Context) error {
	if m.NoOverlap && ctx.Job.Running() > 1 {
		ctx.Stop(core.ErrSkippedExecution)
		return nil
	}

	return ctx.Next()
}
