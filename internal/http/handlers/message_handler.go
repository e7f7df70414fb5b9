// Message HTTP handlers.
//
// This file exposes REST endpoints for user-to-user messages:
//   - POST /messages             (send a message, optionally about a transaction)
//   - GET  /messages             (conversation list with unread counts)
//   - GET  /messages/{userId}    (one conversation; marks received messages read)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (line endings, blank-line runs)
//   - delegate to application services (MessageService)
//   - implement conditional responses (ETag) for conversations
package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/ecoprenda-backend/internal/domain"
)

//
// DTOs
//

// SendMessageRequest is the JSON payload for sending a message.
//
// Content is normalized by the handler (line endings and excessive blank
// lines) before being passed to the service layer, which enforces length.
type SendMessageRequest struct {
	ReceiverID    uint   `json:"receiver_id" binding:"required" example:"7"`
	Content       string `json:"content"     binding:"required,min=1" example:"¿La chaqueta aún está disponible?"`
	TransactionID *uint  `json:"transaction_id,omitempty" example:"31"`
}

// ConversationResponse is a conversation ordered oldest first.
type ConversationResponse struct {
	With     uint             `json:"with"`
	Messages []domain.Message `json:"messages"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

//
// Handlers
//

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a message
// @Description Sends a message to another user. When transaction_id is set, the sender must be a party of that transaction.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.SendMessageRequest  true  "Message"
// @Success     201   {object}  domain.Message
// @Failure     400   {object}  handlers.ErrorResponse "Bad request"
// @Failure     401   {object}  handlers.ErrorResponse "Authentication required"
// @Failure     404   {object}  handlers.ErrorResponse "Receiver or transaction not found"
// @Router      /messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "receiver_id and content are required")
		return
	}
	content := sanitizeContent(req.Content)
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	m, err := h.messages.Send(c.Request.Context(), a, req.ReceiverID, content, req.TransactionID)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusCreated, m)
}

// ListConversations godoc
// @ID          listConversations
// @Summary     My conversations
// @Description One entry per counterpart with the latest message and the unread count, newest first.
// @Tags        Messages
// @Produce     json
// @Success     200  {array}   services.Conversation
// @Failure     401  {object}  handlers.ErrorResponse "Authentication required"
// @Router      /messages [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	convs, err := h.messages.Conversations(c.Request.Context(), a)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, convs)
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Conversation with a user
// @Description Returns every message exchanged with the user, oldest first, and marks the received ones read.
// @Description Supports conditional requests with If-None-Match.
// @Tags        Messages
// @Produce     json
// @Param       userId  path      int  true  "Counterpart user ID"
// @Success     200  {object}  handlers.ConversationResponse
// @Success     304  "Not modified"
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "User not found"
// @Router      /messages/{userId} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	a, okActor := h.actor(c)
	if !okActor {
		return
	}
	other, okID := pathID(c, "userId")
	if !okID {
		return
	}
	ctx := c.Request.Context()

	// ETag pre-check (best effort).
	if h.convStats != nil {
		count, latest, err := h.convStats(ctx, a.UserID, other)
		if err == nil {
			var ts int64
			if latest != nil {
				ts = latest.UnixNano()
			}
			etag := fmt.Sprintf(`W/"conversation:%d:%d:%d:%d"`, a.UserID, other, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	msgs, err := h.messages.Conversation(ctx, a, other)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, ConversationResponse{With: other, Messages: msgs})
}
