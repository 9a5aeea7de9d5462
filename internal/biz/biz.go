package biz

import (
	"github.com/devricklin/feishu-agent-bridge/internal/biz/usecase"
)

// Usecases contains all usecases
type Usecases struct {
	Dedup      *usecase.DedupLedger
	Owner      *usecase.OwnerRegistry
	Context    *usecase.ContextCache
	Identity   *usecase.IdentityResolver
	Indicator  *usecase.EngagementIndicator
	Dispatcher *usecase.Dispatcher
	Payload    *usecase.ContextBuilderUsecase
}
