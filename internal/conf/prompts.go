package conf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/usecase"
)

// PromptsConfig is the prompts.yaml document
type PromptsConfig struct {
	Payload PayloadPrompts `yaml:"payload"`
}

// PayloadPrompts overrides the wording of forwarded payloads.
// Zero values keep the built-in wording.
type PayloadPrompts struct {
	Preamble      string `yaml:"preamble"`
	HistoryMarker string `yaml:"history_marker"`
	CurrentMarker string `yaml:"current_marker"`
	SmartHint     string `yaml:"smart_hint"`
	MediaFormat   string `yaml:"media_format"`
	MaxTextRunes  int    `yaml:"max_text_runes"`
}

// promptSearchPaths lists where prompts.yaml is looked up when no path is configured
func promptSearchPaths() []string {
	paths := []string{"configs/prompts.yaml", "/etc/feishu-agent-bridge/prompts.yaml"}
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), "configs", "prompts.yaml"))
	}
	return paths
}

// LoadPromptsConfig reads the first prompts file found. An explicit path
// must exist; with no path, an absent file just yields the defaults.
func LoadPromptsConfig(path string) (*PromptsConfig, error) {
	candidates := []string{path}
	if path == "" {
		candidates = promptSearchPaths()
	}

	for _, p := range candidates {
		raw, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) && path == "" {
			continue
		}
		if err != nil {
			return DefaultPromptsConfig(), fmt.Errorf("read prompts %s: %w", p, err)
		}
		var cfg PromptsConfig
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return DefaultPromptsConfig(), fmt.Errorf("parse prompts %s: %w", p, err)
		}
		cfg.Payload = cfg.Payload.withDefaults()
		return &cfg, nil
	}
	return DefaultPromptsConfig(), nil
}

func (p PayloadPrompts) withDefaults() PayloadPrompts {
	d := DefaultPromptsConfig().Payload
	pick := func(v, def string) string {
		if v == "" {
			return def
		}
		return v
	}
	p.HistoryMarker = pick(p.HistoryMarker, d.HistoryMarker)
	p.CurrentMarker = pick(p.CurrentMarker, d.CurrentMarker)
	p.SmartHint = pick(p.SmartHint, d.SmartHint)
	p.MediaFormat = pick(p.MediaFormat, d.MediaFormat)
	if p.MaxTextRunes <= 0 {
		p.MaxTextRunes = d.MaxTextRunes
	}
	return p
}

// DefaultPromptsConfig mirrors the payload builder's built-in wording
func DefaultPromptsConfig() *PromptsConfig {
	d := usecase.DefaultPromptConfig
	return &PromptsConfig{Payload: PayloadPrompts{
		Preamble:      d.Preamble,
		HistoryMarker: d.HistoryMarker,
		CurrentMarker: d.CurrentMarker,
		SmartHint:     d.SmartHint,
		MediaFormat:   d.MediaFormat,
		MaxTextRunes:  d.MaxTextRunes,
	}}
}
