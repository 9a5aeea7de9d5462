package conf

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
)

// PolicyFile is the on-disk YAML shape of the access policy.
// It accepts both the current schema and the older flat one.
type PolicyFile struct {
	DMPolicy            string                     `yaml:"dm_policy"`
	DMAllowFrom         []string                   `yaml:"dm_allow_from"`
	GroupPolicy         string                     `yaml:"group_policy"`
	DefaultGroupMode    string                     `yaml:"default_group_mode"`
	Groups              map[string]GroupFileConfig `yaml:"groups"`
	DefaultHistoryLimit int                        `yaml:"default_history_limit"`
	Messages            MessagesFile               `yaml:"messages"`

	// Legacy: flat list of allowed chat ids, superseded by groups
	GroupAllowFrom []string `yaml:"group_allow_from"`
	// Legacy: global mention requirement, superseded by groups.*.mode
	RequireMention *bool `yaml:"require_mention"`
}

// GroupFileConfig is one entry of the groups map
type GroupFileConfig struct {
	Name         string   `yaml:"name"`
	Mode         string   `yaml:"mode"`
	AllowFrom    []string `yaml:"allow_from"`
	HistoryLimit int      `yaml:"history_limit"`

	// Legacy: require_mention: false means smart mode
	RequireMention *bool `yaml:"require_mention"`
}

// MessagesFile overrides the user-facing strings
type MessagesFile struct {
	DMRejected     string `yaml:"dm_rejected"`
	GroupRejected  string `yaml:"group_rejected"`
	MediaFailed    string `yaml:"media_failed"`
	DispatchFailed string `yaml:"dispatch_failed"`
}

// DefaultPolicy is used when no policy file exists: only the owner may talk, no groups.
func DefaultPolicy() *domain.PolicyConfig {
	return &domain.PolicyConfig{
		DMPolicy:            domain.DMPolicyOwner,
		GroupPolicy:         domain.GroupPolicyAllowlist,
		Groups:              map[string]domain.GroupConfig{},
		DefaultGroupMode:    domain.GroupModeMention,
		DefaultHistoryLimit: domain.DefaultHistoryLimit,
		Messages:            domain.DefaultMessages,
	}
}

// LoadPolicy reads and normalizes the policy file. A missing file yields DefaultPolicy.
func LoadPolicy(path string) (*domain.PolicyConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultPolicy(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes YAML and normalizes it into the canonical model
func ParsePolicy(data []byte) (*domain.PolicyConfig, error) {
	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	return file.Normalize()
}

// Normalize folds legacy fields into the canonical model.
// This is the only place that knows about older schemas.
func (f *PolicyFile) Normalize() (*domain.PolicyConfig, error) {
	cfg := DefaultPolicy()

	switch p := domain.DMPolicy(strings.ToLower(strings.TrimSpace(f.DMPolicy))); p {
	case "":
	case domain.DMPolicyOpen, domain.DMPolicyAllowlist, domain.DMPolicyOwner:
		cfg.DMPolicy = p
	default:
		return nil, &ConfigError{Field: "dm_policy", Message: fmt.Sprintf("unknown value %q", f.DMPolicy)}
	}
	cfg.DMAllowFrom = cleanIDs(f.DMAllowFrom)

	switch p := domain.GroupPolicy(strings.ToLower(strings.TrimSpace(f.GroupPolicy))); p {
	case "":
	case domain.GroupPolicyOpen, domain.GroupPolicyAllowlist, domain.GroupPolicyDisabled:
		cfg.GroupPolicy = p
	default:
		return nil, &ConfigError{Field: "group_policy", Message: fmt.Sprintf("unknown value %q", f.GroupPolicy)}
	}

	if f.DefaultHistoryLimit > 0 {
		cfg.DefaultHistoryLimit = f.DefaultHistoryLimit
	}

	defaultMode, err := groupMode(GroupFileConfig{Mode: f.DefaultGroupMode, RequireMention: f.RequireMention}, domain.GroupModeMention)
	if err != nil {
		return nil, &ConfigError{Field: "default_group_mode", Message: err.Error()}
	}
	cfg.DefaultGroupMode = defaultMode

	for id, g := range f.Groups {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		mode, err := groupMode(g, defaultMode)
		if err != nil {
			return nil, &ConfigError{Field: "groups." + id + ".mode", Message: err.Error()}
		}
		cfg.Groups[id] = domain.GroupConfig{
			DisplayName:  g.Name,
			Mode:         mode,
			AllowFrom:    cleanIDs(g.AllowFrom),
			HistoryLimit: g.HistoryLimit,
		}
	}

	// Legacy flat allow list: every listed chat becomes a group entry
	// unless the new map already describes it.
	for _, id := range cleanIDs(f.GroupAllowFrom) {
		if _, ok := cfg.Groups[id]; ok {
			continue
		}
		cfg.Groups[id] = domain.GroupConfig{Mode: defaultMode}
	}

	cfg.Messages = mergeMessages(f.Messages)
	return cfg, nil
}

func groupMode(g GroupFileConfig, fallback domain.GroupMode) (domain.GroupMode, error) {
	switch m := domain.GroupMode(strings.ToLower(strings.TrimSpace(g.Mode))); m {
	case domain.GroupModeMention, domain.GroupModeSmart:
		return m, nil
	case "":
		if g.RequireMention != nil {
			if *g.RequireMention {
				return domain.GroupModeMention, nil
			}
			return domain.GroupModeSmart, nil
		}
		return fallback, nil
	default:
		return "", fmt.Errorf("unknown value %q", g.Mode)
	}
}

func cleanIDs(ids []string) []string {
	var out []string
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func mergeMessages(m MessagesFile) domain.Messages {
	out := domain.DefaultMessages
	if m.DMRejected != "" {
		out.DMRejected = m.DMRejected
	}
	if m.GroupRejected != "" {
		out.GroupRejected = m.GroupRejected
	}
	if m.MediaFailed != "" {
		out.MediaFailed = m.MediaFailed
	}
	if m.DispatchFailed != "" {
		out.DispatchFailed = m.DispatchFailed
	}
	return out
}
