package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/familiar-chat/mediagate/internal/database/models"
	"github.com/familiar-chat/mediagate/pkg/metrics"
)

// Scope names what an endpoint acts on: an organization, the role namespace
// the caller must belong to, and optionally the exact principal named in the
// URL.
type Scope struct {
	OrganizationID string
	Role           models.Role

	principalID    string
	matchPrincipal bool
}

// OrgScope authorizes any member of the organization in the given role.
func OrgScope(organizationID string, role models.Role) Scope {
	return Scope{OrganizationID: organizationID, Role: role}
}

// PrincipalScope additionally requires the caller's resolved principal to be
// principalID.
func PrincipalScope(organizationID string, role models.Role, principalID string) Scope {
	return Scope{
		OrganizationID: organizationID,
		Role:           role,
		principalID:    principalID,
		matchPrincipal: true,
	}
}

// Grant is the outcome of a successful authorization.
type Grant struct {
	Identity       *Identity
	OrganizationID string
	Role           models.Role
	PrincipalID    string
}

type Authorizer struct {
	verifier TokenVerifier
	members  MembershipResolver
	logger   *slog.Logger
}

func NewAuthorizer(verifier TokenVerifier, members MembershipResolver, logger *slog.Logger) *Authorizer {
	return &Authorizer{
		verifier: verifier,
		members:  members,
		logger:   logger,
	}
}

// Authenticate is step one of the chain.
func (a *Authorizer) Authenticate(credential string) (*Identity, error) {
	id, err := a.verifier.Verify(credential)
	if err != nil {
		metrics.AuthzDenials.WithLabelValues("unauthenticated").Inc()
		return nil, ErrUnauthenticated
	}
	return id, nil
}

// Check runs the whole chain for a raw bearer credential.
func (a *Authorizer) Check(ctx context.Context, credential string, scope Scope) (*Grant, error) {
	id, err := a.Authenticate(credential)
	if err != nil {
		return nil, err
	}
	return a.Authorize(ctx, id, scope)
}

// Authorize runs the membership steps of the chain for an authenticated
// caller. Every step must resolve before the next one starts, and every
// missing record is a denial. The principal lookup uses the membership's
// owner id rather than the URL's so a pointer to a deleted principal is
// rejected even when the ids agree.
func (a *Authorizer) Authorize(ctx context.Context, id *Identity, scope Scope) (*Grant, error) {
	if id == nil || id.Subject == "" {
		return nil, a.deny("unauthenticated", scope, ErrUnauthenticated)
	}
	if scope.OrganizationID == "" {
		return nil, a.deny("no_membership", scope, ErrForbidden)
	}

	membership, err := a.members.ResolveMembership(ctx, id.Subject, scope.OrganizationID, scope.Role)
	if err != nil {
		return nil, a.fail("membership", scope, err)
	}
	if membership == nil || membership.PrincipalID == nil || *membership.PrincipalID == "" {
		return nil, a.deny("no_membership", scope, ErrForbidden)
	}
	ownerID := *membership.PrincipalID

	if scope.matchPrincipal && scope.principalID != ownerID {
		return nil, a.deny("principal_mismatch", scope, ErrForbidden)
	}

	principal, err := a.members.ResolvePrincipal(ctx, scope.OrganizationID, scope.Role, ownerID)
	if err != nil {
		return nil, a.fail("principal", scope, err)
	}
	if principal == nil {
		return nil, a.deny("principal_missing", scope, ErrForbidden)
	}

	return &Grant{
		Identity:       id,
		OrganizationID: scope.OrganizationID,
		Role:           scope.Role,
		PrincipalID:    principal.ID,
	}, nil
}

func (a *Authorizer) deny(reason string, scope Scope, err error) error {
	metrics.AuthzDenials.WithLabelValues(reason).Inc()
	a.logger.Debug("authorization denied",
		"reason", reason,
		"organization_id", scope.OrganizationID,
		"role", scope.Role,
	)
	return err
}

func (a *Authorizer) fail(step string, scope Scope, err error) error {
	a.logger.Error("authorization lookup failed",
		"step", step,
		"organization_id", scope.OrganizationID,
		"role", scope.Role,
		"error", err,
	)
	return fmt.Errorf("%w: %s: %v", ErrBackend, step, err)
}
