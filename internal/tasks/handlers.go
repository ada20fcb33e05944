package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/familiar-chat/mediagate/internal/presence"
	"github.com/familiar-chat/mediagate/pkg/queue"
	"github.com/hibiken/asynq"
)

type Handler struct {
	aggregator *presence.Aggregator
	logger     *slog.Logger
}

func NewHandler(aggregator *presence.Aggregator, logger *slog.Logger) *Handler {
	return &Handler{
		aggregator: aggregator,
		logger:     logger,
	}
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypePresenceRecount, h.HandlePresenceRecount)
}

func (h *Handler) HandlePresenceRecount(ctx context.Context, t *asynq.Task) error {
	var payload PresenceRecountPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.OrganizationID == "" || payload.VisitorID == "" {
		return fmt.Errorf("incomplete payload: %w", asynq.SkipRetry)
	}

	outcome, err := h.aggregator.Recount(ctx, payload.OrganizationID, payload.VisitorID)
	if err != nil {
		h.logger.Error("presence recount failed",
			"organization_id", payload.OrganizationID,
			"visitor_id", payload.VisitorID,
			"error", err,
		)
		return err
	}

	h.logger.Debug("presence recount done",
		"organization_id", payload.OrganizationID,
		"visitor_id", payload.VisitorID,
		"outcome", outcome,
	)
	return nil
}

// Enqueuer schedules presence recounts on the worker queue.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

func (e *Enqueuer) ConnectionsChanged(ctx context.Context, organizationID, visitorID string) error {
	task, err := NewPresenceRecountTask(PresenceRecountPayload{
		OrganizationID: organizationID,
		VisitorID:      visitorID,
	})
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task, asynq.Queue(queue.QueuePresence))
	return err
}

var _ presence.Notifier = (*Enqueuer)(nil)
