package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/familiar-chat/mediagate/internal/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrVisitorNotFound = errors.New("visitor not found")

// Notifier is told after every committed change to a visitor's connections.
type Notifier interface {
	ConnectionsChanged(ctx context.Context, organizationID, visitorID string) error
}

// Inline recounts synchronously in the writer's goroutine.
type Inline struct {
	Aggregator *Aggregator
}

func (n Inline) ConnectionsChanged(ctx context.Context, organizationID, visitorID string) error {
	_, err := n.Aggregator.Recount(ctx, organizationID, visitorID)
	return err
}

// Store writes connection records on behalf of the real-time transport.
type Store struct {
	db       *gorm.DB
	notifier Notifier
	logger   *slog.Logger
}

func NewStore(db *gorm.DB, notifier Notifier, logger *slog.Logger) *Store {
	return &Store{db: db, notifier: notifier, logger: logger}
}

// SetConnection creates or updates one connection of a visitor.
func (s *Store) SetConnection(ctx context.Context, organizationID, visitorID, connectionID string, connected bool) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := bumpVersion(tx, organizationID, visitorID); err != nil {
			return err
		}

		conn := models.Connection{
			ID:             connectionID,
			OrganizationID: organizationID,
			VisitorID:      visitorID,
			Connected:      connected,
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "id"},
				{Name: "organization_id"},
				{Name: "visitor_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"connected", "updated_at"}),
		}).Create(&conn).Error
	})
	if err != nil {
		return err
	}
	return s.notify(ctx, organizationID, visitorID)
}

// RemoveConnection deletes one connection of a visitor. Removing an unknown
// connection still triggers a recount.
func (s *Store) RemoveConnection(ctx context.Context, organizationID, visitorID, connectionID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := bumpVersion(tx, organizationID, visitorID); err != nil {
			return err
		}
		return tx.
			Where("id = ? AND organization_id = ? AND visitor_id = ?", connectionID, organizationID, visitorID).
			Delete(&models.Connection{}).Error
	})
	if err != nil {
		return err
	}
	return s.notify(ctx, organizationID, visitorID)
}

// ConnectedCount reads the last recomputed count.
func (s *Store) ConnectedCount(ctx context.Context, organizationID, visitorID string) (int, error) {
	var visitor models.Visitor
	err := s.db.WithContext(ctx).
		Select("connected_count").
		Where("organization_id = ? AND id = ?", organizationID, visitorID).
		Take(&visitor).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrVisitorNotFound
		}
		return 0, fmt.Errorf("loading visitor %s/%s: %w", organizationID, visitorID, err)
	}
	return visitor.ConnectedCount, nil
}

func (s *Store) notify(ctx context.Context, organizationID, visitorID string) error {
	if s.notifier == nil {
		return nil
	}
	if err := s.notifier.ConnectionsChanged(ctx, organizationID, visitorID); err != nil {
		s.logger.Error("failed to schedule connection recount",
			"organization_id", organizationID,
			"visitor_id", visitorID,
			"error", err,
		)
		return fmt.Errorf("scheduling recount: %w", err)
	}
	return nil
}

func bumpVersion(tx *gorm.DB, organizationID, visitorID string) error {
	res := tx.Model(&models.Visitor{}).
		Where("organization_id = ? AND id = ?", organizationID, visitorID).
		UpdateColumn("version", gorm.Expr("version + 1"))
	if res.Error != nil {
		return fmt.Errorf("touching visitor %s/%s: %w", organizationID, visitorID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVisitorNotFound
	}
	return nil
}
