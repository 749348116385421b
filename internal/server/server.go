// Package server exposes chats, streamed generation, app previews and the
// game coin ledger over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/zhubert/gameforge/internal/agent"
	"github.com/zhubert/gameforge/internal/chat"
	ctxmgr "github.com/zhubert/gameforge/internal/context"
	"github.com/zhubert/gameforge/internal/coin"
	"github.com/zhubert/gameforge/internal/fixloop"
	"github.com/zhubert/gameforge/internal/llm"
	"github.com/zhubert/gameforge/internal/sandbox"
	"github.com/zhubert/gameforge/internal/stream"
)

// Options wires a Server to its collaborators. Coins may be nil, which
// disables the coin endpoints.
type Options struct {
	Chats    *chat.Store
	Provider llm.Provider
	Model    string
	Contexts *ctxmgr.Manager
	Runner   *sandbox.Runner
	Fixes    *fixloop.Tracker
	Coins    *coin.Factory
	Logger   *slog.Logger

	ShutdownTimeout time.Duration
}

// fixOffer is an error seen while previewing a version, waiting for the user
// to ask for a fix.
type fixOffer struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

// Server handles HTTP requests.
type Server struct {
	opts   Options
	logger *slog.Logger
	engine *gin.Engine

	mu     sync.Mutex
	live   map[string]*stream.Consumer // chat id -> reply being streamed
	offers map[string]fixOffer         // chat id -> pending fix
}

// New builds a Server and its routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Runner == nil {
		opts.Runner = sandbox.NewRunner(sandbox.Options{Logger: opts.Logger})
	}
	if opts.Fixes == nil {
		opts.Fixes = fixloop.NewTracker(fixloop.DefaultConfig())
	}
	if opts.Model == "" {
		opts.Model = llm.DefaultModel(opts.Provider.Name())
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		opts:   opts,
		logger: opts.Logger,
		live:   make(map[string]*stream.Consumer),
		offers: make(map[string]fixOffer),
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	api := r.Group("/api")
	api.GET("/models", s.listModels)

	api.POST("/chats", s.createChat)
	api.GET("/chats", s.listChats)
	api.GET("/chats/:id", s.getChat)
	api.DELETE("/chats/:id", s.deleteChat)
	api.POST("/chats/:id/messages", s.addMessage)
	api.POST("/chats/:id/completion", s.completion)
	api.POST("/chats/:id/fix", s.fix)

	api.GET("/frames/:slot", s.getFrame)
	api.POST("/frames/:slot/errors", s.reportFrameError)
	api.POST("/frames/:slot/refresh", s.refreshFrame)

	api.GET("/messages/:messageId/coin-draft", s.coinDraft)
	coins := api.Group("", s.requireCoins)
	coins.POST("/coins", s.createCoin)
	coins.GET("/coins", s.listCoins)
	coins.GET("/coins/:id", s.getCoin)
	coins.GET("/coins/:id/events", s.coinEvents)
	coins.GET("/coins/:id/balances/:address", s.coinBalance)
	coins.POST("/coins/:id/mint", s.mintCoin)
	coins.POST("/coins/:id/burn", s.burnCoin)
	coins.POST("/coins/:id/transfer", s.transferCoin)
	coins.GET("/wallets/:address/coins", s.walletCoins)

	r.GET("/apps/:messageId", s.app)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		s.logger.Info("http server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// newAgent restores an agent over the stored history of ch.
func (s *Server) newAgent(ch *chat.Chat) *agent.Agent {
	model := ch.Model
	if model == "" {
		model = s.opts.Model
	}
	ag := agent.New(s.opts.Provider, model, s.opts.Contexts, s.logger)
	ag.Restore(ch.History())
	return ag
}

func (s *Server) startLive(chatID string, c *stream.Consumer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.live[chatID]; busy {
		return false
	}
	s.live[chatID] = c
	return true
}

func (s *Server) endLive(chatID string) {
	s.mu.Lock()
	delete(s.live, chatID)
	s.mu.Unlock()
}

func (s *Server) liveSnapshot(chatID string) (stream.Update, bool) {
	s.mu.Lock()
	c, ok := s.live[chatID]
	s.mu.Unlock()
	if !ok {
		return stream.Update{}, false
	}
	return c.Snapshot(), true
}

// offerFix returns the fix callback of a preview of messageID.
func (s *Server) offerFix(chatID, messageID string) sandbox.FixFunc {
	return func(errText string) {
		s.logger.Info("fix offered", "chat_id", chatID, "message_id", messageID)
		s.mu.Lock()
		s.offers[chatID] = fixOffer{MessageID: messageID, Error: errText}
		s.mu.Unlock()
	}
}

func (s *Server) pendingFix(chatID string) (fixOffer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[chatID]
	return o, ok
}

func (s *Server) clearFix(chatID string) {
	s.mu.Lock()
	delete(s.offers, chatID)
	s.mu.Unlock()
}

func errorJSON(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, chat.ErrNotFound), errors.Is(err, coin.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, coin.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, coin.ErrEmptyName), errors.Is(err, coin.ErrSymbolLength),
		errors.Is(err, coin.ErrInvalidAddress), errors.Is(err, coin.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, coin.ErrCapExceeded), errors.Is(err, coin.ErrInsufficientBalance):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
