package service

import (
	"context"
	"errors"

	"github.com/devricklin/feishu-agent-bridge/internal/biz/repo"
	"github.com/devricklin/feishu-agent-bridge/internal/biz/usecase"
)

// ErrNoOwner is returned when an operator notice has nobody to go to
var ErrNoOwner = errors.New("no owner bound")

// OwnerNotifier sends operator notices to the bound owner by direct message
type OwnerNotifier struct {
	owner    *usecase.OwnerRegistry
	messages repo.MessageRepo
}

var _ usecase.OperatorNotifier = (*OwnerNotifier)(nil)

// NewOwnerNotifier creates a notifier
func NewOwnerNotifier(owner *usecase.OwnerRegistry, messages repo.MessageRepo) *OwnerNotifier {
	return &OwnerNotifier{owner: owner, messages: messages}
}

// NotifyOperator implements usecase.OperatorNotifier
func (n *OwnerNotifier) NotifyOperator(ctx context.Context, text string) error {
	owner := n.owner.Current()
	if !owner.Bound {
		return ErrNoOwner
	}
	return n.messages.SendText(ctx, owner.PrimaryID, text)
}
