package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/usecase"
)

// Transport names
const (
	TransportWebSocket = "websocket"
	TransportWebhook   = "webhook"
)

// Agent delivery modes
const (
	AgentModeExec   = "exec"
	AgentModeOpenAI = "openai"
)

// Config represents application configuration
type Config struct {
	// Feishu configuration
	Feishu FeishuConfig

	// Bot identity and indicator
	Bot BotConfig

	// Agent delivery configuration
	Agent AgentConfig

	// OpenAI-compatible delivery (AGENT_MODE=openai)
	OpenAI OpenAIConfig

	// State directory and policy file
	Storage StorageConfig

	// Local HTTP server (webhook, API, MCP)
	HTTP HTTPConfig

	// Logging
	Log LogConfig

	// Prompts configuration (loaded from YAML)
	Prompts *PromptsConfig
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID             string
	AppSecret         string
	Domain            string // feishu or lark
	Transport         string // websocket or webhook
	VerificationToken string
	EncryptKey        string
}

// BotConfig describes how the bot presents itself
type BotConfig struct {
	DisplayName    string
	IndicatorEmoji string
}

// AgentConfig contains the external agent settings
type AgentConfig struct {
	Mode    string
	Command string
	Args    []string
	Channel string
	Timeout time.Duration
}

// OpenAIConfig contains OpenAI-compatible API settings
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// StorageConfig contains on-disk locations
type StorageConfig struct {
	StateDir   string
	PolicyPath string
}

// HTTPConfig contains the local HTTP server settings
type HTTPConfig struct {
	Addr        string
	WebhookPath string
}

// LogConfig contains logger settings
type LogConfig struct {
	Level  string
	Format string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// State directory
	stateDir := os.Getenv("STATE_DIR")
	if stateDir == "" {
		homeDir, _ := os.UserHomeDir()
		stateDir = filepath.Join(homeDir, ".feishu-agent-bridge")
	}

	// Policy file, relative to the state dir when unset
	policyPath := os.Getenv("POLICY_CONFIG_PATH")
	if policyPath == "" {
		policyPath = filepath.Join(stateDir, "policy.yaml")
	}

	// Agent timeout
	agentTimeoutSec := 120
	if val := os.Getenv("AGENT_TIMEOUT_SECONDS"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			agentTimeoutSec = parsed
		}
	}

	promptsConfig, _ := LoadPromptsConfig(os.Getenv("PROMPTS_CONFIG_PATH"))

	return &Config{
		Feishu: FeishuConfig{
			AppID:             os.Getenv("FEISHU_APP_ID"),
			AppSecret:         os.Getenv("FEISHU_APP_SECRET"),
			Domain:            envOr("FEISHU_DOMAIN", "feishu"),
			Transport:         envOr("FEISHU_TRANSPORT", TransportWebSocket),
			VerificationToken: os.Getenv("FEISHU_VERIFICATION_TOKEN"),
			EncryptKey:        os.Getenv("FEISHU_ENCRYPT_KEY"),
		},
		Bot: BotConfig{
			DisplayName:    envOr("BOT_DISPLAY_NAME", "Assistant"),
			IndicatorEmoji: envOr("INDICATOR_EMOJI", usecase.DefaultIndicatorEmoji),
		},
		Agent: AgentConfig{
			Mode:    envOr("AGENT_MODE", AgentModeExec),
			Command: os.Getenv("AGENT_COMMAND"),
			Args:    strings.Fields(os.Getenv("AGENT_ARGS")),
			Channel: envOr("AGENT_CHANNEL", "feishu"),
			Timeout: time.Duration(agentTimeoutSec) * time.Second,
		},
		OpenAI: OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Model:   envOr("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Storage: StorageConfig{
			StateDir:   stateDir,
			PolicyPath: policyPath,
		},
		HTTP: HTTPConfig{
			Addr:        envOr("BRIDGE_HTTP_ADDR", "127.0.0.1:9876"),
			WebhookPath: envOr("WEBHOOK_PATH", "/webhook/event"),
		},
		Log: LogConfig{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "text"),
		},
		Prompts: promptsConfig,
	}
}

func envOr(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// MediaDir is where downloaded attachments are stored
func (c *Config) MediaDir() string {
	return filepath.Join(c.Storage.StateDir, "media")
}

// AuditDBPath is the sqlite file backing the audit log
func (c *Config) AuditDBPath() string {
	return filepath.Join(c.Storage.StateDir, "audit.db")
}

// ToPromptConfig converts to payload prompt configuration
func (c *Config) ToPromptConfig() usecase.PromptConfig {
	if c.Prompts == nil {
		return usecase.DefaultPromptConfig
	}
	return usecase.PromptConfig{
		Preamble:      c.Prompts.Payload.Preamble,
		HistoryMarker: c.Prompts.Payload.HistoryMarker,
		CurrentMarker: c.Prompts.Payload.CurrentMarker,
		SmartHint:     c.Prompts.Payload.SmartHint,
		MediaFormat:   c.Prompts.Payload.MediaFormat,
		MaxTextRunes:  c.Prompts.Payload.MaxTextRunes,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
	}
	switch c.Feishu.Domain {
	case "feishu", "lark":
	default:
		return &ConfigError{Field: "FEISHU_DOMAIN", Message: "must be feishu or lark"}
	}
	switch c.Feishu.Transport {
	case TransportWebSocket:
	case TransportWebhook:
		if c.Feishu.VerificationToken == "" && c.Feishu.EncryptKey == "" {
			return &ConfigError{Field: "FEISHU_VERIFICATION_TOKEN", Message: "required for webhook transport"}
		}
	default:
		return &ConfigError{Field: "FEISHU_TRANSPORT", Message: "must be websocket or webhook"}
	}
	switch c.Agent.Mode {
	case AgentModeExec:
		if c.Agent.Command == "" {
			return &ConfigError{Field: "AGENT_COMMAND", Message: "required for exec mode"}
		}
	case AgentModeOpenAI:
		if c.OpenAI.APIKey == "" {
			return &ConfigError{Field: "OPENAI_API_KEY", Message: "required for openai mode"}
		}
	default:
		return &ConfigError{Field: "AGENT_MODE", Message: "must be exec or openai"}
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return &ConfigError{Field: "LOG_FORMAT", Message: "must be text or json"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
