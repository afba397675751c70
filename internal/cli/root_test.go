package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd(&bytes.Buffer{})

	names := make([]string, 0)
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "worker", "migrate"})

	migrate, _, err := cmd.Find([]string{"migrate", "status"})
	require.NoError(t, err)
	assert.Equal(t, "status", migrate.Name())
}

func TestRootCmd_InvalidConfigFailsBeforeRunning(t *testing.T) {
	t.Setenv("LEARNHUB_LOG_FORMAT", "xml")

	cmd := newRootCmd(&bytes.Buffer{})
	cmd.SetArgs([]string{"migrate", "status", "--env-file", ""})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRootCmd_UnknownMigrateAction(t *testing.T) {
	cmd := newRootCmd(&bytes.Buffer{})
	cmd.SetArgs([]string{"migrate", "sideways", "--env-file", ""})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sideways")
}

func TestRootCmd_RejectsExtraArgs(t *testing.T) {
	cmd := newRootCmd(&bytes.Buffer{})
	cmd.SetArgs([]string{"serve", "extra", "--env-file", ""})
	assert.Error(t, cmd.Execute())
}
