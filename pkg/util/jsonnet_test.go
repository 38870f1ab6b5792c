package util

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/require"
)

const exampleConfiguration = `{
	reporter: {
		backend: 'stdout',
		stdout: {
			prettyPrint: true,
		},
	},
	diagnosticsHttpServer: {
		listenAddress: ':9980',
		enablePrometheus: true,
	},
	sampler: {
		rate: std.extVar('SAMPLE_RATE'),
	},
}`

func TestUnmarshalConfigurationFromFile(t *testing.T) {
	type samplerConfiguration struct {
		Rate string `json:"rate"`
	}
	type diagnosticsConfiguration struct {
		ListenAddress    string `json:"listenAddress"`
		EnablePrometheus bool   `json:"enablePrometheus"`
	}
	type reporterConfiguration struct {
		Backend string `json:"backend"`
		Stdout  struct {
			PrettyPrint bool `json:"prettyPrint"`
		} `json:"stdout"`
	}
	type configuration struct {
		Reporter              reporterConfiguration   `json:"reporter"`
		DiagnosticsHTTPServer diagnosticsConfiguration `json:"diagnosticsHttpServer"`
		Sampler               samplerConfiguration    `json:"sampler"`
	}

	os.Setenv("SAMPLE_RATE", "10")
	defer os.Unsetenv("SAMPLE_RATE")

	td := t.TempDir()
	confFile := path.Join(td, "disttrace.jsonnet")
	require.NoError(t, os.WriteFile(confFile, []byte(exampleConfiguration), 0o644))

	var c configuration
	require.NoError(t, UnmarshalConfigurationFromFile(confFile, &c))
	require.Equal(t, "stdout", c.Reporter.Backend)
	require.True(t, c.Reporter.Stdout.PrettyPrint)
	require.Equal(t, ":9980", c.DiagnosticsHTTPServer.ListenAddress)
	require.True(t, c.DiagnosticsHTTPServer.EnablePrometheus)
	require.Equal(t, "10", c.Sampler.Rate)
}

func TestUnmarshalConfigurationFromFileMissing(t *testing.T) {
	var c struct{}
	require.Error(t, UnmarshalConfigurationFromFile("/nonexistent/disttrace.jsonnet", &c))
}
