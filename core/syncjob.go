package core

// TreeSyncer is implemented by boottree.Manager. It is consumed as an
// interface so the job engine stays independent of the boot tree layout.
type TreeSyncer interface {
	Sync() error
	SyncSystems(names []string) error
}

// SyncJob makes boot tree synchronization schedulable: a sync gets the same
// execution tracking, middlewares and metrics as any container job.
type SyncJob struct {
	BareJob `mapstructure:",squash"`
	Syncer  TreeSyncer `json:"-"`

	// Systems restricts the sync to the named systems. Empty means a full
	// tree sync including bootloaders and distro images.
	Systems []string `mapstructure:"systems" hash:"true"`
}

func NewSyncJob(s TreeSyncer) *SyncJob {
	return &SyncJob{Syncer: s}
}

func (j *SyncJob) Run(ctx *Context) error {
	var err error
	if len(j.Systems) > 0 {
		err = j.Syncer.SyncSystems(j.Systems)
	} else {
		err = j.Syncer.Sync()
	}
	if m := schedulerMetrics(ctx); m != nil {
		m.RecordTreeSync(err)
	}
	if err != nil {
		op := "sync"
		if len(j.Systems) > 0 {
			op = "sync systems"
		}
		return WrapJobError(op, j.Name, err)
	}
	return nil
}
