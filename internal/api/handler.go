package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/devricklin/feishu-agent-bridge/internal/biz"
	"github.com/devricklin/feishu-agent-bridge/internal/biz/usecase"
	"github.com/devricklin/feishu-agent-bridge/internal/service"
)

// Replier posts agent answers and completion signals
type Replier interface {
	Reply(ctx context.Context, endpoint, text string) error
	Complete(ctx context.Context, endpoint string) error
}

// Status is the bridge's runtime summary
type Status struct {
	BotID            string `json:"bot_id"`
	OwnerBound       bool   `json:"owner_bound"`
	OwnerID          string `json:"owner_id,omitempty"`
	DedupEntries     int    `json:"dedup_entries"`
	ActiveIndicators int    `json:"active_indicators"`
	ContextKeys      int    `json:"context_keys"`
	Identities       int    `json:"identities"`
}

// ReplyRequest is the body of POST /api/reply
type ReplyRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	Text     string `json:"text" binding:"required"`
}

// CompleteRequest is the body of POST /api/complete
type CompleteRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// Result is the body of every write response
type Result struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Handler serves the local JSON API the agent calls back into
type Handler struct {
	replies Replier
	uc      *biz.Usecases
	bot     *service.BotIdentity
}

// NewHandler creates the API handler
func NewHandler(replies Replier, uc *biz.Usecases, bot *service.BotIdentity) *Handler {
	return &Handler{replies: replies, uc: uc, bot: bot}
}

// Register mounts the routes
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.health)
	api := r.Group("/api")
	api.GET("/status", h.status)
	api.POST("/reply", h.reply)
	api.POST("/complete", h.complete)
}

func (h *Handler) health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Snapshot collects the current status
func (h *Handler) Snapshot() Status {
	st := Status{}
	if h.bot != nil {
		st.BotID = h.bot.ID()
	}
	if h.uc == nil {
		return st
	}
	owner := h.uc.Owner.Current()
	st.OwnerBound = owner.Bound
	st.OwnerID = owner.PrimaryID
	st.DedupEntries = h.uc.Dedup.Len()
	st.ActiveIndicators = h.uc.Indicator.Active()
	st.ContextKeys = h.uc.Context.Len()
	st.Identities = h.uc.Identity.Len()
	return st
}

func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.Snapshot())
}

func (h *Handler) reply(c *gin.Context) {
	var req ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Result{Error: "endpoint and text are required"})
		return
	}
	if err := h.replies.Reply(c.Request.Context(), req.Endpoint, req.Text); err != nil {
		c.JSON(statusFor(err), Result{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, Result{OK: true})
}

func (h *Handler) complete(c *gin.Context) {
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Result{Error: "endpoint is required"})
		return
	}
	if err := h.replies.Complete(c.Request.Context(), req.Endpoint); err != nil {
		c.JSON(statusFor(err), Result{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, Result{OK: true})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrInvalidEndpoint),
		errors.Is(err, service.ErrEmptyReply),
		errors.Is(err, service.ErrNoMessage):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
