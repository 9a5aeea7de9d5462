package usecase

import (
	"github.com/devricklin/feishu-agent-bridge/internal/biz/domain"
)

// PolicyEvaluator answers access questions against one immutable policy
// snapshot and one owner binding. It has no side effects.
type PolicyEvaluator struct {
	cfg   *domain.PolicyConfig
	owner domain.OwnerBinding
}

// NewPolicyEvaluator creates an evaluator for a single pipeline pass
func NewPolicyEvaluator(cfg *domain.PolicyConfig, owner domain.OwnerBinding) *PolicyEvaluator {
	if cfg == nil {
		cfg = &domain.PolicyConfig{}
	}
	return &PolicyEvaluator{cfg: cfg, owner: owner}
}

// IsOwner reports whether either identifier matches the bound owner
func (e *PolicyEvaluator) IsOwner(senderID, senderAltID string) bool {
	return e.owner.Matches(senderID, senderAltID)
}

// IsDMAllowed applies the direct-message policy
func (e *PolicyEvaluator) IsDMAllowed(senderID, senderAltID string) bool {
	if e.IsOwner(senderID, senderAltID) {
		return true
	}
	switch e.cfg.DMPolicy {
	case domain.DMPolicyOpen:
		return true
	case domain.DMPolicyAllowlist:
		return domain.ContainsID(e.cfg.DMAllowFrom, senderID, senderAltID)
	default:
		// owner, and anything unrecognized
		return false
	}
}

// CanBindOwner reports whether a direct message from this sender may claim
// an unbound owner slot. It is false once an owner is bound.
func (e *PolicyEvaluator) CanBindOwner(senderID, senderAltID string) bool {
	if e.owner.Bound {
		return false
	}
	switch e.cfg.DMPolicy {
	case domain.DMPolicyOpen, domain.DMPolicyOwner:
		return true
	case domain.DMPolicyAllowlist:
		return domain.ContainsID(e.cfg.DMAllowFrom, senderID, senderAltID)
	default:
		return false
	}
}

// ResolveGroupAllowed applies the group policy to a conversation
func (e *PolicyEvaluator) ResolveGroupAllowed(conversationID string) bool {
	switch e.cfg.GroupPolicy {
	case domain.GroupPolicyOpen:
		return true
	case domain.GroupPolicyAllowlist:
		_, ok := e.cfg.Groups[conversationID]
		return ok
	default:
		return false
	}
}

// IsSmartGroup reports whether the group receives every message without a mention
func (e *PolicyEvaluator) IsSmartGroup(conversationID string) bool {
	if g, ok := e.cfg.Groups[conversationID]; ok {
		return g.Mode == domain.GroupModeSmart
	}
	return e.cfg.DefaultGroupMode == domain.GroupModeSmart
}

// IsSenderAllowedInGroup applies the per-group sender allow list
func (e *PolicyEvaluator) IsSenderAllowedInGroup(conversationID, senderID, senderAltID string) bool {
	g, ok := e.cfg.Groups[conversationID]
	if !ok || len(g.AllowFrom) == 0 {
		return true
	}
	for _, entry := range g.AllowFrom {
		if entry == domain.Wildcard {
			return true
		}
	}
	return domain.ContainsID(g.AllowFrom, senderID, senderAltID)
}

// EvaluateDM decides what to do with a direct message
func (e *PolicyEvaluator) EvaluateDM(senderID, senderAltID string) domain.Decision {
	if e.IsDMAllowed(senderID, senderAltID) {
		return domain.Decision{Action: domain.ActionAllow, RecordHistory: true, Reason: "dm allowed"}
	}
	return domain.Decision{Action: domain.ActionDeny, Reply: true, Reason: "dm policy " + string(e.cfg.DMPolicy)}
}

// EvaluateGroup decides what to do with a group message. Checks run in a
// fixed order and the first failing one wins.
func (e *PolicyEvaluator) EvaluateGroup(conversationID, senderID, senderAltID string, mentioned bool) domain.Decision {
	if e.cfg.GroupPolicy == domain.GroupPolicyDisabled {
		return domain.Decision{Action: domain.ActionDeny, Reply: mentioned, Reason: "group policy disabled"}
	}

	owner := e.IsOwner(senderID, senderAltID)
	allowed := e.ResolveGroupAllowed(conversationID)
	if !allowed && !(owner && mentioned) {
		if owner {
			// Same observable outcome as a silent deny, but the owner is never denied.
			return domain.Decision{Action: domain.ActionLogOnly, Reason: "owner in unlisted group, not mentioned"}
		}
		return domain.Decision{Action: domain.ActionDeny, Reply: mentioned, Reason: "group not allowed"}
	}

	if !owner && !e.IsSenderAllowedInGroup(conversationID, senderID, senderAltID) {
		return domain.Decision{Action: domain.ActionDeny, Reply: mentioned, Reason: "sender not allowed in group"}
	}

	smart := e.IsSmartGroup(conversationID)
	if !smart && !mentioned {
		return domain.Decision{Action: domain.ActionLogOnly, RecordHistory: allowed, Reason: "not mentioned"}
	}

	return domain.Decision{
		Action:        domain.ActionAllow,
		RecordHistory: true,
		Smart:         smart && !mentioned,
		Reason:        "group allowed",
	}
}
