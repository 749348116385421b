package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zhubert/gameforge/internal/agent"
	"github.com/zhubert/gameforge/internal/chat"
	"github.com/zhubert/gameforge/internal/fence"
	"github.com/zhubert/gameforge/internal/llm"
	"github.com/zhubert/gameforge/internal/sandbox"
	"github.com/zhubert/gameforge/internal/stream"
)

type messageView struct {
	chat.Message
	Segments []fence.Segment `json:"segments"`
	Version  int             `json:"version,omitempty"`
}

type chatView struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Prompt    string         `json:"prompt"`
	Model     string         `json:"model"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Messages  []messageView  `json:"messages"`
	Live      *stream.Update `json:"live,omitempty"`
	FixOffer  *fixOffer      `json:"fix_offer,omitempty"`
}

func (s *Server) viewOf(ch *chat.Chat) chatView {
	v := chatView{
		ID:        ch.ID,
		Title:     ch.Title,
		Prompt:    ch.Prompt,
		Model:     ch.Model,
		CreatedAt: ch.CreatedAt,
		UpdatedAt: ch.UpdatedAt,
		Messages:  make([]messageView, 0, len(ch.Messages)),
	}
	versions := make(map[string]int)
	for _, ver := range ch.AssistantVersions() {
		versions[ver.Message.ID] = ver.Number
	}
	for _, m := range ch.Messages {
		mv := messageView{Message: m, Version: versions[m.ID]}
		if m.Role == llm.RoleAssistant {
			mv.Segments = fence.SplitByFirstFence(m.Content)
		} else {
			mv.Segments = []fence.Segment{fence.Text(m.Content)}
		}
		v.Messages = append(v.Messages, mv)
	}
	if u, ok := s.liveSnapshot(ch.ID); ok {
		u.Segments = fence.SplitByFirstFence(u.Text)
		v.Live = &u
	}
	if o, ok := s.pendingFix(ch.ID); ok {
		v.FixOffer = &o
	}
	return v
}

func (s *Server) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"default": s.opts.Model, "models": llm.Models()})
}

type createChatRequest struct {
	Prompt string `json:"prompt" binding:"required"`
	Model  string `json:"model"`
}

func (s *Server) createChat(c *gin.Context) {
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		errorJSON(c, http.StatusBadRequest, errors.New("prompt cannot be empty"))
		return
	}
	model := req.Model
	if model == "" {
		model = s.opts.Model
	} else if _, ok := llm.ModelByID(model); !ok {
		errorJSON(c, http.StatusBadRequest, fmt.Errorf("unknown model %q", model))
		return
	}

	ch, err := s.opts.Chats.Create(req.Prompt, model)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	s.logger.Info("chat created", "chat_id", ch.ID, "model", model)
	c.JSON(http.StatusCreated, s.viewOf(ch))
}

func (s *Server) listChats(c *gin.Context) {
	summaries, err := s.opts.Chats.List()
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	if summaries == nil {
		summaries = []chat.Summary{}
	}
	c.JSON(http.StatusOK, summaries)
}

func (s *Server) getChat(c *gin.Context) {
	ch, err := s.opts.Chats.Load(c.Param("id"))
	if err != nil {
		errorJSON(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusOK, s.viewOf(ch))
}

func (s *Server) deleteChat(c *gin.Context) {
	id := c.Param("id")
	if err := s.opts.Chats.Delete(id); err != nil {
		errorJSON(c, statusOf(err), err)
		return
	}
	s.opts.Runner.Unmount(id)
	s.opts.Fixes.Reset(id)
	s.clearFix(id)
	c.Status(http.StatusNoContent)
}

type addMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

func (s *Server) addMessage(c *gin.Context) {
	var req addMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	msg, err := s.opts.Chats.AddMessage(c.Param("id"), llm.RoleUser, req.Content, chat.StateNone)
	if err != nil {
		errorJSON(c, statusOf(err), err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// completion streams the next assistant reply as raw UTF-8 text, flushing
// each chunk. The same stream is consumed here so the final reply is stored
// with its terminal state. The stored message id and state are sent as
// trailers.
func (s *Server) completion(c *gin.Context) {
	id := c.Param("id")
	ch, err := s.opts.Chats.Load(id)
	if err != nil {
		errorJSON(c, statusOf(err), err)
		return
	}
	if last, ok := ch.LastMessage(); !ok || last.Role != llm.RoleUser {
		errorJSON(c, http.StatusConflict, errors.New("the last message must come from the user"))
		return
	}

	w := c.Writer
	consumer := stream.NewConsumer(s.logger, func(u stream.Update) {
		if u.Delta == "" {
			return
		}
		if _, err := w.WriteString(u.Delta); err != nil {
			s.logger.Debug("writing chunk", "chat_id", id, "error", err)
			return
		}
		w.Flush()
	})
	if !s.startLive(id, consumer) {
		errorJSON(c, http.StatusConflict, errors.New("a reply is already streaming"))
		return
	}
	defer s.endLive(id)

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Trailer", "X-Message-Id, X-Stream-State")
	c.Status(http.StatusOK)
	w.WriteHeaderNow()
	w.Flush()

	ctx := c.Request.Context()
	ag := s.newAgent(ch)
	res, err := consumer.Run(ctx, stream.NewChanSource(ag.Continue(ctx)))
	w.Header().Set("X-Stream-State", res.State.String())
	if err != nil {
		if res.State == stream.StateCancelled {
			s.logger.Info("completion cancelled by client", "chat_id", id)
		} else {
			s.logger.Error("completion failed", "chat_id", id, "error", err)
		}
		return
	}

	state := chat.StateComplete
	if res.State == stream.StateIncomplete {
		state = chat.StateIncomplete
	}
	msg, err := s.opts.Chats.AddMessage(id, llm.RoleAssistant, res.Text, state)
	if err != nil {
		s.logger.Error("storing reply", "chat_id", id, "error", err)
		return
	}
	w.Header().Set("X-Message-Id", msg.ID)
	s.afterReply(ctx, id, msg)
}

// afterReply names the chat after its first app and previews the new
// version so errors can be offered for fixing.
func (s *Server) afterReply(ctx context.Context, chatID string, msg chat.Message) {
	block, ok := fence.ExtractFirstCodeBlock(msg.Content)
	if !ok {
		return
	}

	ch, err := s.opts.Chats.Load(chatID)
	if err == nil && ch.VersionOf(msg.ID) == 1 && block.Filename.Name != "" {
		if err := s.opts.Chats.SetTitle(chatID, fence.TitleCase(block.Filename.Name)); err != nil {
			s.logger.Warn("saving chat title", "chat_id", chatID, "error", err)
		}
	}

	s.clearFix(chatID)
	s.opts.Runner.Render(ctx, chatID, requestFor(msg, block), s.offerFix(chatID, msg.ID))
}

func requestFor(msg chat.Message, block fence.CodeBlock) sandbox.Request {
	return sandbox.Request{
		Key:      msg.ID,
		Language: block.Language,
		Code:     block.Code,
		Filename: block.Filename.String(),
	}
}

type fixRequest struct {
	Error string `json:"error"`
}

// fix appends the fix prompt for an error. Without an explicit error the
// pending offer of the chat is used.
func (s *Server) fix(c *gin.Context) {
	id := c.Param("id")
	var req fixRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	if req.Error == "" {
		o, ok := s.pendingFix(id)
		if !ok {
			errorJSON(c, http.StatusBadRequest, errors.New("no error to fix"))
			return
		}
		req.Error = o.Error
	}
	if _, err := s.opts.Chats.Load(id); err != nil {
		errorJSON(c, statusOf(err), err)
		return
	}

	if d := s.opts.Fixes.Allow(id, req.Error); d.Detected {
		s.logger.Warn("fix loop detected", "chat_id", id, "reason", d.Reason)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "fix loop detected", "reason": d.Reason})
		return
	}

	msg, err := s.opts.Chats.AddMessage(id, llm.RoleUser, agent.FixPrompt(req.Error), chat.StateNone)
	if err != nil {
		errorJSON(c, statusOf(err), err)
		return
	}
	s.clearFix(id)
	c.JSON(http.StatusCreated, msg)
}
