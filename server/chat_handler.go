package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wenjin/chatd/store"
)

func (s *Server) registerChatRoutes(g *echo.Group) {
	g.POST("/conversations/:id/messages", s.sendMessage)
	g.GET("/conversations/:id/watch", s.watchMessages)
}

type sendMessageRequest struct {
	Content     string   `json:"content"`
	Attachments []string `json:"attachments"`
}

// sendMessage runs one turn and streams the message snapshots to the
// client as SSE events: the persisted user message, the assistant
// placeholder, one update per delta, the final assistant message, then a
// terminating done event.
func (s *Server) sendMessage(c echo.Context) error {
	sess := s.sessionFromRequest(c)
	id, err := conversationIDParam(c)
	if err != nil {
		return err
	}

	req := &sendMessageRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content required")
	}

	if sess.UserID() != "" && !s.limiter.Allow(sess.UserID()) {
		turnsTotal.WithLabelValues("rejected").Inc()
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
	}

	ctx := c.Request().Context()
	if _, err := s.orchestrator.LoadConversation(ctx, sess, id); err != nil {
		return httpError(err)
	}

	snapshots, errs, err := s.orchestrator.SendMessage(ctx, sess, req.Content, req.Attachments)
	if err != nil {
		turnsTotal.WithLabelValues("rejected").Inc()
		return httpError(err)
	}

	sse := newSSEWriter(c)
	activeStreams.Inc()
	defer activeStreams.Dec()

	for snapshot := range snapshots {
		if snapshot.Role == store.RoleAssistant && snapshot.Streaming {
			deltasTotal.Inc()
		}
		if err := sse.writeJSON("message", toMessageResponse(snapshot)); err != nil {
			// Client went away; the orchestrator finishes and persists on
			// its own.
			drain(snapshots, errs)
			turnsTotal.WithLabelValues("disconnected").Inc()
			return nil
		}
	}

	if turnErr := <-errs; turnErr != nil {
		turnsTotal.WithLabelValues("failed").Inc()
		_ = sse.writeJSON("error", map[string]string{"message": turnErr.Error()})
		return nil
	}

	turnsTotal.WithLabelValues("completed").Inc()
	_ = sse.writeEvent("done", "{}")
	return nil
}

// watchMessages streams the persisted message feed: the full current list
// once, then a fresh full snapshot after every write. The stream runs
// until the client disconnects.
func (s *Server) watchMessages(c echo.Context) error {
	sess := s.sessionFromRequest(c)
	id, err := conversationIDParam(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	feed, err := s.orchestrator.WatchMessages(ctx, sess, id)
	if err != nil {
		return httpError(err)
	}

	sse := newSSEWriter(c)
	watchSubscribers.Inc()
	defer watchSubscribers.Dec()

	for snapshot := range feed {
		response := make([]*messageResponse, 0, len(snapshot))
		for _, message := range snapshot {
			response = append(response, toMessageResponse(message))
		}
		if err := sse.writeJSON("snapshot", response); err != nil {
			return nil
		}
	}
	return nil
}

type sseWriter struct {
	c echo.Context
}

func newSSEWriter(c echo.Context) *sseWriter {
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
	return &sseWriter{c: c}
}

func (w *sseWriter) writeEvent(event, data string) error {
	if _, err := fmt.Fprintf(w.c.Response(), "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	w.c.Response().Flush()
	return nil
}

func (w *sseWriter) writeJSON(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return w.writeEvent(event, string(data))
}

// drain consumes the remainder of a turn after the client disconnects so
// the orchestrator goroutine is never blocked on an abandoned channel.
func drain(snapshots <-chan *store.Message, errs <-chan error) {
	go func() {
		for range snapshots {
		}
		for range errs {
		}
	}()
}
