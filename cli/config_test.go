package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netbootlab/bootlab/boottree"
	"github.com/netbootlab/bootlab/core"
)

type testLogger struct{}

func (*testLogger) Criticalf(format string, args ...any) {}
func (*testLogger) Debugf(format string, args ...any)    {}
func (*testLogger) Errorf(format string, args ...any)    {}
func (*testLogger) Noticef(format string, args ...any)   {}
func (*testLogger) Warningf(format string, args ...any)  {}

const testConfigINI = `
[global]
log-level = debug
slack-webhook = https://hooks.example.com/T000/B000
save-folder = /var/log/bootlab
enable-metrics = true
metrics-address = :9090

[job-suite "system-test"]
schedule = @daily
image = provision/server:latest
network = host
cap-add = NET_ADMIN
setup = make setup
setup = ip tuntap add mode tap tap0
test = make system-test
volume = /srv/lab:/lab

[job-exec "cleanup"]
schedule = @hourly
container = provision-server
command = rm -rf /var/cache/provision

[job-run "smoke"]
schedule = 0 2 * * *
image = busybox:latest
command = true

[job-local "report"]
schedule = @hourly
command = ./report.sh

[job-sync "tree"]
schedule = @daily
`

func TestBuildFromString(t *testing.T) {
	t.Parallel()

	c, err := BuildFromString(testConfigINI, &testLogger{})
	require.NoError(t, err)

	assert.Equal(t, "debug", c.Global.LogLevel)
	assert.Equal(t, "https://hooks.example.com/T000/B000", c.Global.SlackConfig.SlackWebhook)
	assert.Equal(t, "/var/log/bootlab", c.Global.SaveConfig.SaveFolder)
	assert.True(t, c.Global.EnableMetrics)
	assert.Equal(t, ":9090", c.Global.MetricsAddr)

	require.Len(t, c.SuiteJobs, 1)
	suite := c.SuiteJobs["system-test"]
	require.NotNil(t, suite)
	assert.Equal(t, "@daily", suite.Schedule)
	assert.Equal(t, "provision/server:latest", suite.Image)
	assert.Equal(t, "host", suite.Network)
	assert.Equal(t, []string{"NET_ADMIN"}, suite.CapAdd)
	// Shadowed keys become ordered slices.
	assert.Equal(t, []string{"make setup", "ip tuntap add mode tap tap0"}, suite.Setup)
	assert.Equal(t, "make system-test", suite.Test)
	assert.Equal(t, []string{"/srv/lab:/lab"}, suite.Volume)

	require.Len(t, c.ExecJobs, 1)
	assert.Equal(t, "provision-server", c.ExecJobs["cleanup"].Container)

	require.Len(t, c.RunJobs, 1)
	assert.Equal(t, "busybox:latest", c.RunJobs["smoke"].Image)

	require.Len(t, c.LocalJobs, 1)
	assert.Equal(t, "./report.sh", c.LocalJobs["report"].Command)

	require.Len(t, c.SyncJobs, 1)
}

func TestBuildFromStringInvalidINI(t *testing.T) {
	t.Parallel()

	_, err := BuildFromString("[unclosed\nkey=", &testLogger{})
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	c, err := BuildFromString(testConfigINI, &testLogger{})
	require.NoError(t, err)
	require.NoError(t, c.Validate())
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	c, err := BuildFromString(`
[job-suite "no-image"]
schedule = @daily
test = make test

[job-suite "no-steps"]
schedule = @daily
image = busybox

[job-exec "no-command"]
schedule = @daily
container = foo

[job-run "nothing"]
schedule = not a cron

[job-local "empty"]
schedule = @daily
`, &testLogger{})
	require.NoError(t, err)

	err = c.Validate()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "no-image.image")
	assert.Contains(t, msg, "defines no setup or test commands")
	assert.Contains(t, msg, "no-command.command")
	assert.Contains(t, msg, "needs an image or an existing container")
	assert.Contains(t, msg, "nothing.schedule")
	assert.Contains(t, msg, "empty.command")
}

func TestConfigValidateBadJobName(t *testing.T) {
	t.Parallel()

	c, err := BuildFromString(`
[job-local "bad name!"]
schedule = @daily
command = true
`, &testLogger{})
	require.NoError(t, err)

	err = c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job name")
}

func TestParseJobName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "system-test", parseJobName(`job-suite "system-test"`, jobSuite))
	assert.Equal(t, "plain", parseJobName("job-exec plain", jobExec))
}

func TestInitializeAppWithoutDocker(t *testing.T) {
	t.Parallel()

	c, err := BuildFromString(`
[job-local "report"]
schedule = @hourly
command = ./report.sh

[job-sync "tree"]
schedule = @daily
`, &testLogger{})
	require.NoError(t, err)

	require.NoError(t, c.InitializeApp())
	sh := c.Scheduler()
	require.NotNil(t, sh)

	// The local job registers; the sync job is skipped without a
	// settings-file.
	assert.NotNil(t, sh.GetJob("report"))
	assert.Nil(t, sh.GetJob("tree"))
	assert.Nil(t, c.Settings())
	assert.Nil(t, c.TreeManager())
}

func TestConfigReloadReconcilesSyncJobs(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.ini")
	write := func(content string, mtime time.Time) {
		t.Helper()
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}

	write("[job-local \"report\"]\nschedule = @hourly\ncommand = ./report.sh\n", time.Now())

	c, err := BuildFromFile(path, &testLogger{})
	require.NoError(t, err)
	c.sh = core.NewScheduler(&testLogger{})
	c.treeManager = boottree.NewManager(boottree.Config{Root: t.TempDir()}, &boottree.Inventory{}, &testLogger{})

	// A sync job added while the daemon runs is picked up on reload.
	write("[job-local \"report\"]\nschedule = @hourly\ncommand = ./report.sh\n\n[job-sync \"tree\"]\nschedule = @daily\n",
		time.Now().Add(time.Hour))
	require.NoError(t, c.iniConfigUpdate())

	require.Contains(t, c.SyncJobs, "tree")
	require.NotNil(t, c.sh.GetJob("tree"))
	assert.Same(t, c.treeManager, c.SyncJobs["tree"].Syncer)

	// Removing the section deregisters the job.
	write("[job-local \"report\"]\nschedule = @hourly\ncommand = ./report.sh\n", time.Now().Add(2*time.Hour))
	require.NoError(t, c.iniConfigUpdate())

	assert.NotContains(t, c.SyncJobs, "tree")
	assert.Nil(t, c.sh.GetJob("tree"))
}

func TestConfigReloadSkipsSyncJobsWithoutTree(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.ini")
	require.NoError(t, os.WriteFile(path, []byte("[job-local \"report\"]\nschedule = @hourly\ncommand = true\n"), 0o644))

	c, err := BuildFromFile(path, &testLogger{})
	require.NoError(t, err)
	c.sh = core.NewScheduler(&testLogger{})

	content := "[job-local \"report\"]\nschedule = @hourly\ncommand = true\n\n[job-sync \"tree\"]\nschedule = @daily\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	require.NoError(t, c.iniConfigUpdate())
	assert.Nil(t, c.sh.GetJob("tree"))
}

func TestSyncJobMapReconciles(t *testing.T) {
	t.Parallel()

	c := NewConfig(&testLogger{})
	c.sh = core.NewScheduler(&testLogger{})

	prep := func(name string, j *LocalJobConfig) { j.Name = name }

	makeJob := func(name, command string) *LocalJobConfig {
		j := &LocalJobConfig{}
		j.Name = name
		j.Schedule = "@daily"
		j.Command = command
		return j
	}

	current := map[string]*LocalJobConfig{
		"keep":    makeJob("keep", "true"),
		"change":  makeJob("change", "old-command"),
		"removed": makeJob("removed", "true"),
	}
	for _, j := range current {
		require.NoError(t, c.sh.AddJob(j))
	}

	parsed := map[string]*LocalJobConfig{
		"keep":   makeJob("keep", "true"),
		"change": makeJob("change", "new-command"),
		"added":  makeJob("added", "true"),
	}

	syncJobMap(c, current, parsed, prep)

	assert.Len(t, current, 3)
	assert.Contains(t, current, "keep")
	assert.Contains(t, current, "change")
	assert.Contains(t, current, "added")
	assert.NotContains(t, current, "removed")

	assert.Equal(t, "new-command", current["change"].Command)
	assert.NotNil(t, c.sh.GetJob("added"))
	assert.Nil(t, c.sh.GetJob("removed"))
}
