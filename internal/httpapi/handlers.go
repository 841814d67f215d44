package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"voicecall-platform/internal/agents"
	"voicecall-platform/internal/audit"
	"voicecall-platform/internal/auth"
	"voicecall-platform/internal/calls"
	"voicecall-platform/internal/elevenlabs"
	"voicecall-platform/internal/reporting"
	"voicecall-platform/internal/translate"
	"voicecall-platform/pkg/logger"
)

// ConversationSource fetches single conversations for the detail view.
type ConversationSource interface {
	GetConversation(ctx context.Context, conversationID string) (elevenlabs.Conversation, error)
}

// Handlers groups HTTP handlers for dependency injection. They parse input,
// call one service and render its result; nothing else.
type Handlers struct {
	Tokens        *auth.Manager
	Passwords     *auth.Authenticator
	Calls         *calls.Service
	Reports       *reporting.Service
	Conversations ConversationSource
	Translator    *translate.Client
	Agents        *agents.Verifier
	Audit         *audit.Service

	// Ready reports dependency health for /healthz; nil means always ready.
	Ready func(ctx context.Context) error
}

func (h Handlers) Health(c *gin.Context) {
	if h.Ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ready(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Auth ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h Handlers) Login(c *gin.Context) {
	if h.Tokens == nil || h.Passwords == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured", "kind": KindConfiguration})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	role, err := h.Passwords.Login(req.Username, req.Password)
	if err != nil {
		logger.FromGin(c).Info("login rejected", "username", req.Username)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials", "kind": KindUnauthorized})
		return
	}
	pair, err := h.Tokens.IssuePair(time.Now(), req.Username, role)
	if err != nil {
		writeError(c, err)
		return
	}
	if h.Audit != nil {
		actor := audit.Actor{UserID: req.Username, Role: role, IP: c.ClientIP()}
		if err := h.Audit.LogLogin(context.WithoutCancel(c.Request.Context()), actor); err != nil {
			logger.FromGin(c).Warn("audit append failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"tokens": pair, "role": role})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h Handlers) Refresh(c *gin.Context) {
	if h.Tokens == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured", "kind": KindConfiguration})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		badRequest(c, "refresh_token required")
		return
	}
	pair, claims, err := h.Tokens.Refresh(req.RefreshToken, time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token", "kind": KindUnauthorized})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": pair, "role": claims.Role})
}

func actorFrom(c *gin.Context) audit.Actor {
	uid, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	return audit.Actor{UserID: uid, Role: role, IP: c.ClientIP()}
}

// requireService aborts with a configuration error when a dependency is nil.
func requireService(c *gin.Context, ok bool, name string) bool {
	if !ok {
		writeError(c, errors.New(name+" not configured"))
		return false
	}
	return true
}
