package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootRegistersCommands(t *testing.T) {
	root := newRootCmd()
	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	require.ElementsMatch(t, []string{"serve", "migrate", "sweep", "import"}, names)
}

func TestSweepDefaultsToAllProjects(t *testing.T) {
	cmd := newSweepCmd()
	flag := cmd.Flags().Lookup("project")
	require.NotNil(t, flag)
	require.Equal(t, "all", flag.DefValue)
}

func TestImportRequiresProjectAndFile(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"import"})

	err := root.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "required flag")
}
