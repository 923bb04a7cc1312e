package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/wenjin/chatd/chat"
	"github.com/wenjin/chatd/store"
)

type conversationResponse struct {
	ID           int32  `json:"id"`
	UID          string `json:"uid"`
	UserID       string `json:"userId"`
	Title        string `json:"title"`
	MessageCount int32  `json:"messageCount"`
	CreatedAt    int64  `json:"createdAt"`
	UpdatedAt    int64  `json:"updatedAt"`
}

type messageResponse struct {
	ID             string   `json:"id"`
	ConversationID int32    `json:"conversationId"`
	Role           string   `json:"role"`
	Content        string   `json:"content"`
	Attachments    []string `json:"attachments,omitempty"`
	Status         string   `json:"status"`
	Streaming      bool     `json:"streaming"`
	CreatedAt      int64    `json:"createdAt"`
}

func toConversationResponse(c *store.Conversation) *conversationResponse {
	return &conversationResponse{
		ID:           c.ID,
		UID:          c.UID,
		UserID:       c.UserID,
		Title:        c.Title,
		MessageCount: c.MessageCount,
		CreatedAt:    c.CreatedTs,
		UpdatedAt:    c.UpdatedTs,
	}
}

func toMessageResponse(m *store.Message) *messageResponse {
	return &messageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           string(m.Role),
		Content:        m.Content,
		Attachments:    m.Attachments,
		Status:         string(m.Status),
		Streaming:      m.Streaming,
		CreatedAt:      m.CreatedTs,
	}
}

func (s *Server) registerConversationRoutes(g *echo.Group) {
	g.POST("/conversations", s.createConversation)
	g.GET("/conversations", s.listConversations)
	g.GET("/conversations/:id/messages", s.listMessages)
	g.DELETE("/conversations/:id", s.deleteConversation)
}

// sessionFromRequest builds per-request session state for the caller. The
// user identity comes from the external identity layer in front of this
// service; only the opaque id is consumed here.
func (s *Server) sessionFromRequest(c echo.Context) *chat.Session {
	return chat.NewSession(chat.User{ID: c.Request().Header.Get("X-User-ID")})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, chat.ErrNotAuthenticated):
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, chat.ErrPermissionDenied):
		return echo.NewHTTPError(http.StatusForbidden, "permission denied")
	case errors.Is(err, chat.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	case errors.Is(err, chat.ErrTurnInProgress):
		return echo.NewHTTPError(http.StatusConflict, "a turn is already in progress")
	case errors.Is(err, chat.ErrNoActiveConversation):
		return echo.NewHTTPError(http.StatusBadRequest, "no active conversation")
	default:
		// Driver errors can carry DSN or SQL fragments; keep those out of
		// the response body.
		slog.Error("request failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}

func conversationIDParam(c echo.Context) (int32, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid conversation id")
	}
	return int32(id), nil
}

type createConversationRequest struct {
	Title string `json:"title"`
}

func (s *Server) createConversation(c echo.Context) error {
	sess := s.sessionFromRequest(c)
	req := &createConversationRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	conversation, err := s.orchestrator.CreateConversationIfAbsent(c.Request().Context(), sess, req.Title)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, toConversationResponse(conversation))
}

func (s *Server) listConversations(c echo.Context) error {
	sess := s.sessionFromRequest(c)
	conversations, err := s.orchestrator.ListConversations(c.Request().Context(), sess)
	if err != nil {
		return httpError(err)
	}

	response := make([]*conversationResponse, 0, len(conversations))
	for _, conversation := range conversations {
		response = append(response, toConversationResponse(conversation))
	}
	return c.JSON(http.StatusOK, response)
}

func (s *Server) listMessages(c echo.Context) error {
	sess := s.sessionFromRequest(c)
	id, err := conversationIDParam(c)
	if err != nil {
		return err
	}

	messages, err := s.orchestrator.ListMessages(c.Request().Context(), sess, id)
	if err != nil {
		return httpError(err)
	}

	response := make([]*messageResponse, 0, len(messages))
	for _, message := range messages {
		response = append(response, toMessageResponse(message))
	}
	return c.JSON(http.StatusOK, response)
}

func (s *Server) deleteConversation(c echo.Context) error {
	sess := s.sessionFromRequest(c)
	id, err := conversationIDParam(c)
	if err != nil {
		return err
	}

	if err := s.orchestrator.DeleteConversation(c.Request().Context(), sess, id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
