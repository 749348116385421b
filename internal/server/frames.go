package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/zhubert/gameforge/internal/fence"
	"github.com/zhubert/gameforge/internal/sandbox"
)

func appSlot(messageID string) string {
	return "app-" + messageID
}

// app serves the sandboxed preview document of a message's first code
// block.
func (s *Server) app(c *gin.Context) {
	ch, msg, err := s.opts.Chats.FindMessage(c.Param("messageId"))
	if err != nil {
		c.String(statusOf(err), "App not found")
		return
	}
	block, ok := fence.ExtractFirstCodeBlock(msg.Content)
	if !ok {
		c.String(http.StatusNotFound, "This message has no app")
		return
	}

	slot := appSlot(msg.ID)
	frame, mounted := s.opts.Runner.Frame(slot)
	if !mounted || frame.Request.Code != block.Code {
		frame = s.opts.Runner.Render(c.Request.Context(), slot, requestFor(msg, block), s.offerFix(ch.ID, msg.ID))
	}

	doc, err := sandbox.Document(frame, sandbox.DocumentOptions{ReportURL: "/api/frames/" + slot + "/errors"})
	if err != nil {
		s.logger.Error("rendering app document", "message_id", msg.ID, "error", err)
		c.String(http.StatusInternalServerError, "Could not render app")
		return
	}
	c.Header("Content-Security-Policy", sandbox.ContentSecurityPolicy)
	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, "text/html; charset=utf-8", doc)
}

func (s *Server) getFrame(c *gin.Context) {
	f, ok := s.opts.Runner.Frame(c.Param("slot"))
	if !ok {
		errorJSON(c, http.StatusNotFound, errors.New("nothing mounted in slot"))
		return
	}
	c.JSON(http.StatusOK, f)
}

type frameErrorRequest struct {
	Key   string `json:"key" binding:"required"`
	Error string `json:"error" binding:"required"`
}

// reportFrameError receives errors from a preview document. The document
// runs in an opaque origin and posts text/plain, so the body is decoded as
// JSON regardless of its content type.
func (s *Server) reportFrameError(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	var req frameErrorRequest
	if err := c.ShouldBindWith(&req, binding.JSON); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	slot := c.Param("slot")
	forwarded := s.opts.Runner.ReportError(slot, req.Key, req.Error)
	s.logger.Info("frame error reported", "slot", slot, "key", req.Key, "forwarded", forwarded)
	c.JSON(http.StatusOK, gin.H{"forwarded": forwarded})
}

func (s *Server) refreshFrame(c *gin.Context) {
	f, ok := s.opts.Runner.Refresh(c.Request.Context(), c.Param("slot"))
	if !ok {
		errorJSON(c, http.StatusNotFound, errors.New("nothing mounted in slot"))
		return
	}
	c.JSON(http.StatusOK, f)
}
