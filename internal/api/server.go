// Package api exposes the chat agent over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ggonzalez94/solchat/internal/agent"
	clierr "github.com/ggonzalez94/solchat/internal/errors"
	"github.com/ggonzalez94/solchat/internal/model"
)

const requestIDHeader = "X-Request-ID"

// Chat is the subset of the agent the HTTP front end drives.
type Chat interface {
	Exchange(ctx context.Context, userID, text string) (string, error)
	History(ctx context.Context, userID string) ([]model.Turn, error)
	Reset(ctx context.Context, userID string) error
}

type chatRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Message string `json:"message" binding:"required"`
}

type chatResponse struct {
	UserID string `json:"user_id"`
	Reply  string `json:"reply"`
}

type historyResponse struct {
	UserID string       `json:"user_id"`
	Turns  []model.Turn `json:"turns"`
}

// NewRouter builds the gin engine. production switches gin to release mode.
func NewRouter(chat Chat, logger *zap.Logger, production bool) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if production {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(requestID())
	router.Use(ginLogger(logger))
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &handlers{chat: chat, logger: logger}
	api := router.Group("/api")
	{
		api.POST("/chat", h.postChat)
		api.GET("/conversations/:user", h.history)
		api.POST("/conversations/:user/reset", h.reset)
	}
	return router
}

type handlers struct {
	chat   Chat
	logger *zap.Logger
}

func (h *handlers) postChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reply, err := h.chat.Exchange(c.Request.Context(), req.UserID, req.Message)
	if err != nil {
		if clierr.Is(err, clierr.CodeUsage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("chat exchange failed",
			zap.String("user_id", req.UserID),
			zap.String("request_id", c.GetString(requestIDHeader)),
			zap.Error(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": agent.FailureMessage})
		return
	}
	c.JSON(http.StatusOK, chatResponse{UserID: req.UserID, Reply: reply})
}

func (h *handlers) history(c *gin.Context) {
	user := c.Param("user")
	turns, err := h.chat.History(c.Request.Context(), user)
	if err != nil {
		h.logger.Error("read conversation failed", zap.String("user_id", user), zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if turns == nil {
		turns = []model.Turn{}
	}
	c.JSON(http.StatusOK, historyResponse{UserID: user, Turns: turns})
}

func (h *handlers) reset(c *gin.Context) {
	user := c.Param("user")
	if err := h.chat.Reset(c.Request.Context(), user); err != nil {
		h.logger.Error("reset conversation failed", zap.String("user_id", user), zap.Error(err))
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset", "user_id": user})
}

func statusFor(err error) int {
	if clierr.Is(err, clierr.CodeUsage) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		log.Info("http request",
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
			zap.String("request_id", c.GetString(requestIDHeader)),
		)
	}
}

// Serve runs handler on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("server started", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return clierr.Wrap(clierr.CodeInternal, "start server", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return clierr.Wrap(clierr.CodeInternal, "shutdown server", err)
	}
	logger.Info("server exited")
	return nil
}
