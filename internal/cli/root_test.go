package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"--version"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		assert.Contains(t, output.String(), "bounter version")
		assert.Contains(t, output.String(), GetVersion())
	})

	t.Run("help flag", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"--help"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		helpText := output.String()
		assert.Contains(t, helpText, "bounter")
		assert.Contains(t, helpText, "fallback")
		assert.Contains(t, helpText, "scan")
		assert.Contains(t, helpText, "reports")
	})

	t.Run("global flags", func(t *testing.T) {
		cmd := GetRootCmd()

		configFlag := cmd.PersistentFlags().Lookup("config")
		require.NotNil(t, configFlag)
		assert.Equal(t, "", configFlag.DefValue)

		envFlag := cmd.PersistentFlags().Lookup("env-file")
		require.NotNil(t, envFlag)
		assert.Equal(t, ".env", envFlag.DefValue)

		// empty means "use the configured level"
		logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
		require.NotNil(t, logLevelFlag)
		assert.Equal(t, "", logLevelFlag.DefValue)
	})
}

func TestSubcommands(t *testing.T) {
	root := GetRootCmd()

	tests := []struct {
		args []string
		use  string
	}{
		{[]string{"scan"}, "scan <target>"},
		{[]string{"init"}, "init"},
		{[]string{"configure"}, "init"},
		{[]string{"reports", "list"}, "list"},
		{[]string{"reports", "prune"}, "prune"},
		{[]string{"version"}, "version"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			cmd, _, err := root.Find(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.use, cmd.Use)
		})
	}

	t.Run("scan flags", func(t *testing.T) {
		cmd, _, err := root.Find([]string{"scan"})
		require.NoError(t, err)
		flag := cmd.Flags().Lookup("description")
		require.NotNil(t, flag)
		assert.Equal(t, "d", flag.Shorthand)
	})

	t.Run("scan requires a target", func(t *testing.T) {
		cmd, _, err := root.Find([]string{"scan"})
		require.NoError(t, err)
		assert.Error(t, cmd.Args(cmd, nil))
		assert.NoError(t, cmd.Args(cmd, []string{"http://testphp.vulnweb.com"}))
	})
}

func TestVersionCommand(t *testing.T) {
	cmd := GetRootCmd()
	cmd.SetArgs([]string{"version"})
	output := &bytes.Buffer{}
	cmd.SetOut(output)

	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(output.String(), "bounter version "+GetVersion()))
}

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	assert.NotEmpty(t, version)
	assert.True(t, strings.HasPrefix(version, "0."))
}
