package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/leofalp/chatkeeper/core/turn"
	"github.com/leofalp/chatkeeper/providers/messaging/line"
)

// RelayFallback is relayed when a webhook turn produced no text.
const RelayFallback = "Sorry, I did not understand that."

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"    binding:"required"`
}

// chat runs one turn. A body without session_id talks to the default
// session. Generation failures answer 200 with status "error" and the
// fallback text.
func (s *Server) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("message is required"))
		return
	}
	if req.SessionID == "" {
		req.SessionID = s.defaultSession
	}
	if req.SessionID == "" {
		c.JSON(http.StatusBadRequest, errorBody("session_id is required"))
		return
	}

	reply, err := s.turns.SendMessage(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		s.fail(c, err)
		return
	}
	if reply.Status != turn.StatusSuccess {
		c.JSON(http.StatusOK, errorBody(reply.Message))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "response": reply.Message})
}

// webhook answers every text message event of a LINE delivery.
func (s *Server) webhook(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody("unreadable body"))
		return
	}
	if s.channelSecret != "" && !line.VerifySignature(s.channelSecret, body, c.GetHeader(line.SignatureHeader)) {
		c.JSON(http.StatusUnauthorized, errorBody("invalid signature"))
		return
	}

	hook, err := line.ParseWebhook(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	for _, ev := range hook.Events {
		if !ev.IsText() || ev.ReplyToken == "" {
			continue
		}

		text := RelayFallback
		reply, err := s.turns.SendMessage(ctx, ev.SessionID(), ev.Message.Text)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "webhook turn failed",
				slog.String("session_id", ev.SessionID()),
				slog.String("error", err.Error()),
			)
		case strings.TrimSpace(reply.Message) != "":
			text = reply.Message
		}

		if err := s.relay.ReplyText(ctx, ev.ReplyToken, text); err != nil {
			s.logger.ErrorContext(ctx, "webhook relay failed",
				slog.String("session_id", ev.SessionID()),
				slog.String("error", err.Error()),
			)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Webhook received"})
}
