package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/leofalp/chatkeeper/providers/ai"
)

type initializeRequest struct {
	SystemInstruction string `json:"system_instruction"`
}

type messageBody struct {
	Role      ai.MessageRole `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
}

type sessionBody struct {
	SessionID         string        `json:"session_id"`
	SystemInstruction string        `json:"system_instruction"`
	RetentionLimit    int           `json:"retention_limit"`
	Messages          []messageBody `json:"messages"`
}

func newSessionBody(id, instruction string, limit int, history []ai.Message) sessionBody {
	body := sessionBody{
		SessionID:         id,
		SystemInstruction: instruction,
		RetentionLimit:    limit,
		Messages:          make([]messageBody, 0, len(history)),
	}
	for _, m := range history {
		body.Messages = append(body.Messages, messageBody(m))
	}
	return body
}

// initializeSession creates or resets a session. An empty body uses the
// default instruction.
func (s *Server) initializeSession(c *gin.Context) {
	var req initializeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorBody("invalid body"))
		return
	}
	instruction := req.SystemInstruction
	if instruction == "" {
		instruction = s.defaultInstruction
	}

	sess, err := s.sessions.Initialize(c.Request.Context(), c.Param("id"), instruction)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionBody(sess.ID, sess.SystemInstruction, sess.RetentionLimit, sess.History))
}

func (s *Server) sessionHistory(c *gin.Context) {
	sess, err := s.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionBody(sess.ID, sess.SystemInstruction, sess.RetentionLimit, sess.History))
}

func (s *Server) clearSession(c *gin.Context) {
	if err := s.sessions.Clear(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (s *Server) deleteSession(c *gin.Context) {
	if err := s.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
