package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCMD.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"api", "worker", "migrate", "tui", "check-config"} {
		require.True(t, names[name], "missing command %s", name)
	}

	limit, err := tuiCMD.Flags().GetInt("limit")
	require.NoError(t, err)
	require.Zero(t, limit)

	worker, err := apiCMD.Flags().GetBool("worker")
	require.NoError(t, err)
	require.False(t, worker)
}
