package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecJobRun(t *testing.T) {
	t.Parallel()

	client := &fakeDockerClient{ExecStdout: "inventory ok\n"}
	j := NewExecJob(client)
	j.Name = "inventory-check"
	j.Container = "boot-server"
	j.Command = `sh -c "bootlab-inventory --check"`
	j.User = "root"

	ctx := newSuiteTestContext(t, j)
	err := j.Run(ctx)
	ctx.Stop(err)

	require.NoError(t, err)
	require.Len(t, client.Execs, 1)
	assert.Equal(t, "boot-server", client.Execs[0].Container)
	assert.Equal(t, []string{"sh", "-c", "bootlab-inventory --check"}, client.Execs[0].Cmd)
	assert.Contains(t, ctx.Execution.GetStdout(), "inventory ok")
}

func TestExecJobNonZeroExit(t *testing.T) {
	t.Parallel()

	client := &fakeDockerClient{ExecExitCodes: []int{42}}
	j := NewExecJob(client)
	j.Name = "fails"
	j.Container = "boot-server"
	j.Command = "false"

	ctx := newSuiteTestContext(t, j)
	err := j.Run(ctx)

	var exitErr NonZeroExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 42, exitErr.ExitCode)
}

func TestExecJobEmptyCommand(t *testing.T) {
	t.Parallel()

	client := &fakeDockerClient{}
	j := NewExecJob(client)
	j.Name = "empty"
	j.Container = "boot-server"

	ctx := newSuiteTestContext(t, j)
	require.ErrorIs(t, j.Run(ctx), ErrEmptyCommand)
	assert.Empty(t, client.Execs)
}
