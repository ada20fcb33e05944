package models

// User is an agent-side principal of an organization.
type User struct {
	ID             string `gorm:"primaryKey;size:128" json:"id"`
	OrganizationID string `gorm:"primaryKey;size:128" json:"organization_id"`
	Name           string `json:"name"`
	Role           string `gorm:"default:'member'" json:"role"` // master, member
}

func (User) TableName() string {
	return "users"
}

// Visitor is an end-customer principal of an organization. ConnectedCount is
// derived from Connections and owned by the presence aggregator; Version is
// bumped by every write to the visitor or its connections.
type Visitor struct {
	ID             string `gorm:"primaryKey;size:128" json:"id"`
	OrganizationID string `gorm:"primaryKey;size:128" json:"organization_id"`
	Name           string `json:"name,omitempty"`
	ConnectedCount int    `gorm:"not null;default:0" json:"connected_count"`
	Version        int64  `gorm:"not null;default:0" json:"-"`
}

func (Visitor) TableName() string {
	return "visitors"
}

// Connection is one real-time session of a visitor.
type Connection struct {
	ID             string `gorm:"primaryKey;size:128" json:"id"`
	OrganizationID string `gorm:"primaryKey;size:128;index:idx_connections_visitor,priority:1" json:"organization_id"`
	VisitorID      string `gorm:"primaryKey;size:128;index:idx_connections_visitor,priority:2" json:"visitor_id"`
	Connected      bool   `gorm:"not null;default:false" json:"connected"`
	UpdatedAt      int64  `gorm:"autoUpdateTime:milli" json:"updated_at"`
}

func (Connection) TableName() string {
	return "visitor_connections"
}
