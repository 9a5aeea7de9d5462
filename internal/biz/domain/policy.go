package domain

import "strings"

// DMPolicy controls who may talk to the bot in direct chats
type DMPolicy string

const (
	DMPolicyOpen      DMPolicy = "open"
	DMPolicyAllowlist DMPolicy = "allowlist"
	DMPolicyOwner     DMPolicy = "owner"
)

// GroupPolicy controls which group chats the bot listens to
type GroupPolicy string

const (
	GroupPolicyOpen      GroupPolicy = "open"
	GroupPolicyAllowlist GroupPolicy = "allowlist"
	GroupPolicyDisabled  GroupPolicy = "disabled"
)

// GroupMode decides whether a group needs an explicit @mention
type GroupMode string

const (
	GroupModeMention GroupMode = "mention"
	GroupModeSmart   GroupMode = "smart"
)

// Wildcard in an allow list admits every sender
const Wildcard = "*"

// GroupConfig is the per-group policy entry
type GroupConfig struct {
	DisplayName  string
	Mode         GroupMode
	AllowFrom    []string
	HistoryLimit int
}

// Messages holds the short user-facing strings the pipeline may send
type Messages struct {
	DMRejected     string
	GroupRejected  string
	MediaFailed    string
	DispatchFailed string
}

// DefaultMessages are used when the policy file leaves a message empty
var DefaultMessages = Messages{
	DMRejected:     "Sorry, I only talk to approved users here.",
	GroupRejected:  "Sorry, I'm not enabled for this group.",
	MediaFailed:    "I couldn't download your attachment, please resend it.",
	DispatchFailed: "",
}

// PolicyConfig is the canonical access configuration.
// Legacy schemas are folded into this shape once at load time.
type PolicyConfig struct {
	DMPolicy            DMPolicy
	DMAllowFrom         []string
	GroupPolicy         GroupPolicy
	Groups              map[string]GroupConfig
	DefaultGroupMode    GroupMode // for groups without an entry
	DefaultHistoryLimit int
	Messages            Messages
}

// DefaultHistoryLimit is the buffer limit when neither the group nor the policy sets one
const DefaultHistoryLimit = 20

// HistoryLimitFor returns the effective buffer limit for a conversation
func (p *PolicyConfig) HistoryLimitFor(conversationID string) int {
	if g, ok := p.Groups[conversationID]; ok && g.HistoryLimit > 0 {
		return g.HistoryLimit
	}
	if p.DefaultHistoryLimit > 0 {
		return p.DefaultHistoryLimit
	}
	return DefaultHistoryLimit
}

// ContainsID reports whether either identifier is in the list, ignoring case
func ContainsID(list []string, id, altID string) bool {
	for _, entry := range list {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if id != "" && strings.EqualFold(entry, id) {
			return true
		}
		if altID != "" && strings.EqualFold(entry, altID) {
			return true
		}
	}
	return false
}

// Action is the outcome of policy evaluation
type Action string

const (
	ActionDeny    Action = "deny"
	ActionLogOnly Action = "log_only"
	ActionAllow   Action = "allow"
)

// Decision is what the pipeline does with one event
type Decision struct {
	Action        Action
	Reply         bool // send a rejection reply
	RecordHistory bool
	Smart         bool // forwarded without a mention in a smart group
	Reason        string
}
