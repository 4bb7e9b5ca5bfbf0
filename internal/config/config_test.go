package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubteamSet(t *testing.T) {
	s := NewSubteamSet("OLM", " Storage ", "", "OLM")

	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has("OLM"))
	assert.True(t, s.Has("Storage"))
	assert.False(t, s.Has("olm"))
	assert.Equal(t, []string{"OLM", "Storage"}, s.Names())
	assert.Equal(t, "OLM", s.Resolve("OLM"))
	assert.Equal(t, UnknownSubteam, s.Resolve("should"))
}

func TestLoadDefaults(t *testing.T) {
	v := viper.New()
	require.NoError(t, Init(v, ""))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultRPEndpoint, cfg.ReportPortal.Endpoint)
	assert.Equal(t, DefaultRPProject, cfg.ReportPortal.Project)
	assert.Equal(t, DefaultBugzillaURL, cfg.Bugzilla.Endpoint)
	assert.True(t, cfg.SubteamSet().Has("OLM"))
	assert.Equal(t, "", cfg.Owner("OLM"))
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qetools.yaml")
	content := `
subteams: [OLM, Storage]
owners:
  OLM: "@olm-qe-team"
reportportal:
  project: ocptrial
  token: file-token
slack:
  webhook-url: https://hooks.example.com/x
bugzilla:
  endpoint: https://bugzilla.example.com/rest
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("QETOOLS_REPORTPORTAL_TOKEN", "env-token")
	t.Setenv("QETOOLS_BUGZILLA_API_KEY", "env-key")

	v := viper.New()
	require.NoError(t, Init(v, path))
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, []string{"OLM", "Storage"}, cfg.SubteamSet().Names())
	assert.False(t, cfg.SubteamSet().Has("SDN"))
	assert.Equal(t, "@olm-qe-team", cfg.Owner("OLM"))
	assert.Equal(t, "ocptrial", cfg.ReportPortal.Project)
	assert.Equal(t, "env-token", cfg.ReportPortal.Token)
	assert.Equal(t, "https://hooks.example.com/x", cfg.Slack.WebhookURL)
	assert.Equal(t, "https://bugzilla.example.com/rest", cfg.Bugzilla.Endpoint)
	assert.Equal(t, "env-key", cfg.Bugzilla.APIKey)
}

func TestInitMissingFile(t *testing.T) {
	v := viper.New()
	err := Init(v, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
