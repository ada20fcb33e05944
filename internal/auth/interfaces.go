package auth

import (
	"context"

	"github.com/familiar-chat/mediagate/internal/database/models"
)

// TokenVerifier turns a bearer credential into a caller identity.
type TokenVerifier interface {
	Verify(tokenString string) (*Identity, error)
}

// MembershipResolver reads the membership and principal records the
// authorization chain is built on. Absence is reported as a nil record and a
// nil error; errors are reserved for backend failures.
type MembershipResolver interface {
	ResolveMembership(ctx context.Context, accountID, organizationID string, role models.Role) (*models.Membership, error)
	ResolvePrincipal(ctx context.Context, organizationID string, role models.Role, principalID string) (*Principal, error)
}

// Compile-time interface satisfaction checks
var (
	_ TokenVerifier      = (*JWTService)(nil)
	_ MembershipResolver = (*Resolver)(nil)
)
