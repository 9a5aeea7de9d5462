package conf

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("STATE_DIR", "/tmp/bridge-state")
	t.Setenv("POLICY_CONFIG_PATH", "")
	t.Setenv("AGENT_TIMEOUT_SECONDS", "oops")
	t.Setenv("AGENT_ARGS", "--profile  work")

	cfg := LoadFromEnv()

	assert.Equal(t, filepath.Join("/tmp/bridge-state", "policy.yaml"), cfg.Storage.PolicyPath)
	assert.Equal(t, 120*time.Second, cfg.Agent.Timeout)
	assert.Equal(t, []string{"--profile", "work"}, cfg.Agent.Args)
	assert.Equal(t, TransportWebSocket, cfg.Feishu.Transport)
	assert.Equal(t, filepath.Join("/tmp/bridge-state", "media"), cfg.MediaDir())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Feishu: FeishuConfig{AppID: "cli_x", AppSecret: "s", Domain: "feishu", Transport: TransportWebSocket},
			Agent:  AgentConfig{Mode: AgentModeExec, Command: "agent"},
			Log:    LogConfig{Format: "text"},
		}
	}

	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing credentials", func(c *Config) { c.Feishu.AppSecret = "" }, "FEISHU_APP_ID/FEISHU_APP_SECRET"},
		{"bad domain", func(c *Config) { c.Feishu.Domain = "slack" }, "FEISHU_DOMAIN"},
		{"webhook without token", func(c *Config) { c.Feishu.Transport = TransportWebhook }, "FEISHU_VERIFICATION_TOKEN"},
		{"exec without command", func(c *Config) { c.Agent.Command = "" }, "AGENT_COMMAND"},
		{"openai without key", func(c *Config) { c.Agent.Mode = AgentModeOpenAI }, "OPENAI_API_KEY"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestParsePolicyCanonical(t *testing.T) {
	cfg, err := ParsePolicy([]byte(`
dm_policy: allowlist
dm_allow_from: [ou_a, " ou_b "]
group_policy: allowlist
default_history_limit: 30
groups:
  oc_team:
    name: Team
    mode: smart
    allow_from: ["*"]
    history_limit: 50
messages:
  dm_rejected: go away
`))
	require.NoError(t, err)

	assert.Equal(t, domain.DMPolicyAllowlist, cfg.DMPolicy)
	assert.Equal(t, []string{"ou_a", "ou_b"}, cfg.DMAllowFrom)
	assert.Equal(t, 30, cfg.DefaultHistoryLimit)
	assert.Equal(t, domain.GroupModeSmart, cfg.Groups["oc_team"].Mode)
	assert.Equal(t, 50, cfg.HistoryLimitFor("oc_team"))
	assert.Equal(t, 30, cfg.HistoryLimitFor("oc_other"))
	assert.Equal(t, "go away", cfg.Messages.DMRejected)
	assert.Equal(t, domain.DefaultMessages.GroupRejected, cfg.Messages.GroupRejected)
}

func TestParsePolicyFoldsLegacySchema(t *testing.T) {
	cfg, err := ParsePolicy([]byte(`
group_policy: allowlist
require_mention: false
group_allow_from: [oc_old, oc_new]
groups:
  oc_new:
    require_mention: true
`))
	require.NoError(t, err)

	require.Contains(t, cfg.Groups, "oc_old")
	assert.Equal(t, domain.GroupModeSmart, cfg.Groups["oc_old"].Mode)
	// The explicit entry wins over the flat list
	assert.Equal(t, domain.GroupModeMention, cfg.Groups["oc_new"].Mode)
	assert.Equal(t, domain.DMPolicyOwner, cfg.DMPolicy)
	// Unlisted groups keep the legacy global meaning
	assert.Equal(t, domain.GroupModeSmart, cfg.DefaultGroupMode)
}

func TestParsePolicyDefaultGroupMode(t *testing.T) {
	cfg, err := ParsePolicy([]byte("group_policy: open\n"))
	require.NoError(t, err)
	assert.Equal(t, domain.GroupModeMention, cfg.DefaultGroupMode)

	cfg, err = ParsePolicy([]byte(`
group_policy: open
default_group_mode: smart
groups:
  oc_quiet:
    mode: mention
`))
	require.NoError(t, err)
	assert.Equal(t, domain.GroupModeSmart, cfg.DefaultGroupMode)
	assert.Equal(t, domain.GroupModeMention, cfg.Groups["oc_quiet"].Mode)

	_, err = ParsePolicy([]byte("default_group_mode: loud\n"))
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "default_group_mode", cfgErr.Field)
}

func TestParsePolicyRejectsUnknownValues(t *testing.T) {
	_, err := ParsePolicy([]byte("dm_policy: everyone\n"))
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "dm_policy", cfgErr.Field)

	_, err = ParsePolicy([]byte("groups:\n  oc_x:\n    mode: loud\n"))
	require.Error(t, err)
}

func TestLoadPolicyMissingFile(t *testing.T) {
	cfg, err := LoadPolicy(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, domain.DMPolicyOwner, cfg.DMPolicy)
	assert.Empty(t, cfg.Groups)
}

func TestPolicyStoreKeepsSnapshotOnBadReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dm_policy: open\n"), 0o600))

	cfg, err := LoadPolicy(path)
	require.NoError(t, err)
	store := NewPolicyStore(path, cfg)
	before := store.Snapshot()

	require.NoError(t, os.WriteFile(path, []byte("dm_policy: [\n"), 0o600))
	require.Error(t, store.Reload())
	assert.Same(t, before, store.Snapshot())

	require.NoError(t, os.WriteFile(path, []byte("dm_policy: allowlist\n"), 0o600))
	require.NoError(t, store.Reload())
	assert.Equal(t, domain.DMPolicyAllowlist, store.Snapshot().DMPolicy)
	assert.Equal(t, domain.DMPolicyOpen, before.DMPolicy)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dm_policy: owner\n"), 0o600))
	store := NewPolicyStore(path, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- NewWatcher(store, nil).Run(ctx) }()

	// Give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("dm_policy: open\n"), 0o600))

	assert.Eventually(t, func() bool {
		return store.Snapshot().DMPolicy == domain.DMPolicyOpen
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestLoadPromptsConfigFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("payload:\n  preamble: You are on call.\n  current_marker: \"[Now]\"\n"), 0o600))

	cfg, err := LoadPromptsConfig(path)
	require.NoError(t, err)

	def := DefaultPromptsConfig().Payload
	assert.Equal(t, "You are on call.", cfg.Payload.Preamble)
	assert.Equal(t, "[Now]", cfg.Payload.CurrentMarker)
	assert.Equal(t, def.HistoryMarker, cfg.Payload.HistoryMarker)
	assert.Equal(t, def.MaxTextRunes, cfg.Payload.MaxTextRunes)
}

func TestLoadPromptsConfigErrors(t *testing.T) {
	_, err := LoadPromptsConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("payload: [\n"), 0o600))
	cfg, err := LoadPromptsConfig(path)
	assert.Error(t, err)
	assert.Equal(t, DefaultPromptsConfig(), cfg)
}
