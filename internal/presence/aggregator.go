// Package presence maintains the denormalized connected_count of visitors.
package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/familiar-chat/mediagate/internal/database/models"
	"github.com/familiar-chat/mediagate/pkg/metrics"
	"gorm.io/gorm"
)

const DefaultMaxRetries = 25

// Outcome reports what a recount did.
type Outcome string

const (
	OutcomeUpdated Outcome = "updated"
	OutcomeNoop    Outcome = "noop"
	OutcomeDropped Outcome = "dropped"
)

// Aggregator recomputes connected_count as a compare-and-swap on the
// visitor's version. Every write to a visitor's connections bumps that
// version, so a recount that raced with any other writer fails its swap and
// starts over from a fresh read.
type Aggregator struct {
	db         *gorm.DB
	logger     *slog.Logger
	maxRetries int

	// afterRead runs between the read and the swap. Tests use it to inject
	// a conflicting write.
	afterRead func(ctx context.Context)
}

func NewAggregator(db *gorm.DB, logger *slog.Logger, maxRetries int) *Aggregator {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Aggregator{
		db:         db,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Recount sets the visitor's connected_count to the number of its
// connections that are connected. A missing visitor is a no-op. Exhausting
// the retry budget drops the update and returns a nil error; only backend
// failures are returned.
func (a *Aggregator) Recount(ctx context.Context, organizationID, visitorID string) (Outcome, error) {
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		var visitor models.Visitor
		err := a.db.WithContext(ctx).
			Where("organization_id = ? AND id = ?", organizationID, visitorID).
			Take(&visitor).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				metrics.PresenceRecounts.WithLabelValues(string(OutcomeNoop)).Inc()
				return OutcomeNoop, nil
			}
			metrics.PresenceRecounts.WithLabelValues("error").Inc()
			return "", fmt.Errorf("loading visitor %s/%s: %w", organizationID, visitorID, err)
		}

		var connected int64
		err = a.db.WithContext(ctx).
			Model(&models.Connection{}).
			Where("organization_id = ? AND visitor_id = ? AND connected = ?", organizationID, visitorID, true).
			Count(&connected).Error
		if err != nil {
			metrics.PresenceRecounts.WithLabelValues("error").Inc()
			return "", fmt.Errorf("counting connections of %s/%s: %w", organizationID, visitorID, err)
		}

		if a.afterRead != nil {
			a.afterRead(ctx)
		}

		res := a.db.WithContext(ctx).
			Model(&models.Visitor{}).
			Where("organization_id = ? AND id = ? AND version = ?", organizationID, visitorID, visitor.Version).
			Updates(map[string]interface{}{
				"connected_count": connected,
				"version":         gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			metrics.PresenceRecounts.WithLabelValues("error").Inc()
			return "", fmt.Errorf("updating connected_count of %s/%s: %w", organizationID, visitorID, res.Error)
		}
		if res.RowsAffected == 1 {
			metrics.PresenceRecounts.WithLabelValues(string(OutcomeUpdated)).Inc()
			a.logger.Debug("connected_count updated",
				"organization_id", organizationID,
				"visitor_id", visitorID,
				"connected_count", connected,
				"attempt", attempt+1,
			)
			return OutcomeUpdated, nil
		}

		metrics.PresenceRecounts.WithLabelValues("conflict").Inc()
		metrics.PresenceRetries.Inc()
	}

	metrics.PresenceRecounts.WithLabelValues(string(OutcomeDropped)).Inc()
	a.logger.Error("connected_count update dropped after contention",
		"organization_id", organizationID,
		"visitor_id", visitorID,
		"attempts", a.maxRetries+1,
	)
	return OutcomeDropped, nil
}
