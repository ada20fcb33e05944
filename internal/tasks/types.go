package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// Task type names
const (
	TypePresenceRecount = "presence:recount"
)

// PresenceRecountPayload names the visitor whose connections changed.
type PresenceRecountPayload struct {
	OrganizationID string `json:"organization_id"`
	VisitorID      string `json:"visitor_id"`
}

// NewPresenceRecountTask builds a recount task. Tasks are not deduplicated:
// an event arriving while an earlier recount is running must still produce
// a recount that observes it.
func NewPresenceRecountTask(payload PresenceRecountPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePresenceRecount, data,
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	), nil
}
