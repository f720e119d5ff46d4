package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{name: "default", mutate: func(c *Config) {}},
		{name: "docker", mutate: func(c *Config) { c.Runtime = RuntimeDocker }},
		{name: "bad runtime", mutate: func(c *Config) { c.Runtime = "vm" }, want: ErrInvalidRuntime},
		{name: "docker without image", mutate: func(c *Config) { c.Runtime = RuntimeDocker; c.Docker.Image = " " }, want: ErrDockerImageRequired},
		{name: "negative cpu", mutate: func(c *Config) { c.ResourceLimits.MaxCPU = -1 }, want: ErrInvalidCPULimit},
		{name: "negative memory", mutate: func(c *Config) { c.ResourceLimits.MaxMemoryMB = -1 }, want: ErrInvalidMemoryLimit},
		{name: "negative pids", mutate: func(c *Config) { c.ResourceLimits.MaxProcesses = -1 }, want: ErrInvalidProcessLimit},
		{name: "negative timeout", mutate: func(c *Config) { c.ResourceLimits.Timeout = -1 }, want: ErrInvalidTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(cfg)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNew_SelectsRuntime(t *testing.T) {
	sb, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &HostSandbox{}, sb)

	cfg := DefaultConfig()
	cfg.Runtime = RuntimeDocker
	sb, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &DockerSandbox{}, sb)

	cfg.Runtime = "vm"
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrInvalidRuntime)
}

func TestShellRequest(t *testing.T) {
	req := ShellRequest("id && whoami", 0)
	assert.Equal(t, "/bin/sh", req.Command)
	assert.Equal(t, []string{"-c", "id && whoami"}, req.Args)
}
