package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunJobRunsToCompletion(t *testing.T) {
	t.Parallel()

	client := &fakeDockerClient{HasImage: true, ContainerExited: true, LogsOut: "booted\n"}
	j := NewRunJob(client)
	j.Name = "image-check"
	j.Image = "provision/server"
	j.Command = "sh -c 'exit 0'"
	j.Pull = "false"
	j.Delete = "true"

	ctx := newSuiteTestContext(t, j)
	err := j.Run(ctx)
	ctx.Stop(err)

	require.NoError(t, err)
	assert.Len(t, client.Started, 1)
	assert.Len(t, client.Removed, 1)
	assert.Contains(t, ctx.Execution.GetStdout(), "booted")
}

func TestRunJobNonZeroExit(t *testing.T) {
	t.Parallel()

	client := &fakeDockerClient{HasImage: true, ContainerExited: true, ContainerExit: 7}
	j := NewRunJob(client)
	j.Name = "fails"
	j.Image = "provision/server"
	j.Pull = "false"
	j.Delete = "true"

	ctx := newSuiteTestContext(t, j)
	err := j.Run(ctx)

	var exitErr NonZeroExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 7, exitErr.ExitCode)
	assert.Len(t, client.Removed, 1, "failed containers are still deleted")
}

func TestRunJobKeepsContainerWhenDeleteFalse(t *testing.T) {
	t.Parallel()

	client := &fakeDockerClient{HasImage: true, ContainerExited: true}
	j := NewRunJob(client)
	j.Name = "keep"
	j.Image = "provision/server"
	j.Pull = "false"
	j.Delete = "false"

	ctx := newSuiteTestContext(t, j)
	require.NoError(t, j.Run(ctx))
	assert.Empty(t, client.Removed)
}

func TestRunJobExistingContainer(t *testing.T) {
	t.Parallel()

	client := &fakeDockerClient{ContainerExited: true}
	j := NewRunJob(client)
	j.Name = "reuse"
	j.Container = "existing-server"
	j.Delete = "true"

	ctx := newSuiteTestContext(t, j)
	require.NoError(t, j.Run(ctx))

	assert.Empty(t, client.Created, "no container is created when one is named")
	assert.Empty(t, client.Removed, "named containers are never deleted")
	assert.Len(t, client.Started, 1)
}

func TestRunJobContainerNameOverride(t *testing.T) {
	t.Parallel()

	name := "custom-name"
	client := &fakeDockerClient{HasImage: true, ContainerExited: true}
	j := NewRunJob(client)
	j.Name = "job-name"
	j.Image = "provision/server"
	j.Pull = "false"
	j.ContainerName = &name

	ctx := newSuiteTestContext(t, j)
	require.NoError(t, j.Run(ctx))

	require.Len(t, client.Created, 1)
	assert.Equal(t, "custom-name", client.Created[0].Name)
}

func TestEntrypointSlice(t *testing.T) {
	t.Parallel()

	assert.Nil(t, entrypointSlice(nil))

	empty := ""
	assert.Empty(t, entrypointSlice(&empty))

	ep := "/bin/sh -c"
	assert.Equal(t, []string{"/bin/sh", "-c"}, entrypointSlice(&ep))
}
