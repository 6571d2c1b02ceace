package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/flowengine/workflow"
)

// eventWriteTimeout bounds one websocket write to a subscriber.
const eventWriteTimeout = 5 * time.Second

// EventSource is satisfied by *workflow.EventBus.
type EventSource interface {
	Subscribe() (<-chan workflow.Event, func())
}

// EventsHandler streams engine events over a websocket.
type EventsHandler struct {
	source  EventSource
	origins []string
	logger  *zap.Logger
}

// NewEventsHandler creates an events handler. origins are host patterns
// accepted for cross-origin upgrades; same-origin is always allowed.
func NewEventsHandler(source EventSource, origins []string, logger *zap.Logger) *EventsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventsHandler{
		source:  source,
		origins: origins,
		logger:  logger.With(zap.String("component", "events_handler")),
	}
}

// HandleEvents upgrades to a websocket and writes one JSON message per event.
// ?workflowId= and ?executionId= narrow the stream. Client messages are ignored.
// @Summary Stream workflow events
// @Tags events
// @Param workflowId query string false "Only events of this workflow"
// @Param executionId query string false "Only events of this run"
// @Router /api/v1/events [get]
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	workflowID := r.URL.Query().Get("workflowId")
	executionID := r.URL.Query().Get("executionId")

	events, unsubscribe := h.source.Subscribe()
	defer unsubscribe()

	// CloseRead 丢弃客户端消息，连接关闭时取消 ctx
	ctx := conn.CloseRead(r.Context())

	h.logger.Debug("event subscriber connected",
		zap.String("workflow_id", workflowID),
		zap.String("execution_id", executionID))

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "event stream closed")
				return
			}
			if workflowID != "" && ev.WorkflowID != workflowID {
				continue
			}
			if executionID != "" && ev.ExecutionID != executionID {
				continue
			}
			if err := h.write(ctx, conn, ev); err != nil {
				if !errors.Is(err, context.Canceled) {
					h.logger.Debug("event subscriber write failed", zap.Error(err))
				}
				return
			}
		}
	}
}

func (h *EventsHandler) write(ctx context.Context, conn *websocket.Conn, ev workflow.Event) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
