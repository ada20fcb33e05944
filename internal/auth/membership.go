package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/familiar-chat/mediagate/internal/database/models"
	"gorm.io/gorm"
)

// Principal is an addressable actor inside an organization.
type Principal struct {
	OrganizationID string
	Role           models.Role
	ID             string
}

type Resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

func (r *Resolver) ResolveMembership(ctx context.Context, accountID, organizationID string, role models.Role) (*models.Membership, error) {
	var m models.Membership
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND organization_id = ? AND role = ?", accountID, organizationID, role).
		Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading %s membership: %w", role, err)
	}
	return &m, nil
}

func (r *Resolver) ResolvePrincipal(ctx context.Context, organizationID string, role models.Role, principalID string) (*Principal, error) {
	var model interface{}
	switch role {
	case models.RoleUser:
		model = &models.User{}
	case models.RoleVisitor:
		model = &models.Visitor{}
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}

	var count int64
	err := r.db.WithContext(ctx).
		Model(model).
		Where("organization_id = ? AND id = ?", organizationID, principalID).
		Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("loading %s %s: %w", role, principalID, err)
	}
	if count == 0 {
		return nil, nil
	}

	return &Principal{
		OrganizationID: organizationID,
		Role:           role,
		ID:             principalID,
	}, nil
}
