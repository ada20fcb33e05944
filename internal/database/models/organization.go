package models

type Organization struct {
	Node
	Name string `json:"name"`
}

func (Organization) TableName() string {
	return "organizations"
}

// Role namespaces a membership. The two namespaces are disjoint: an account
// mapped as a user of an organization is not thereby a visitor of it.
type Role string

const (
	RoleUser    Role = "user"
	RoleVisitor Role = "visitor"
)

// Membership links an authenticated account to the principal it may act as
// inside one organization. PrincipalID is nil when the mapping exists but
// points nowhere, which is treated the same as no mapping at all.
type Membership struct {
	AccountID      string  `gorm:"primaryKey;size:128"`
	OrganizationID string  `gorm:"primaryKey;size:128"`
	Role           Role    `gorm:"primaryKey;size:16"`
	PrincipalID    *string `gorm:"size:128"`
}

func (Membership) TableName() string {
	return "memberships"
}
