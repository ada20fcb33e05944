package models

// OwnerKind identifies which placement family an uploaded asset belongs to.
type OwnerKind string

const (
	OwnerSite                   OwnerKind = "site"
	OwnerUser                   OwnerKind = "user"
	OwnerVisitorMessage         OwnerKind = "visitor_message"
	OwnerVisitorReceivedMessage OwnerKind = "visitor_received_message"
	OwnerDocumentImage          OwnerKind = "document_image"
	OwnerDocumentVideo          OwnerKind = "document_video"
)

// MediaAsset is the manifest entry recorded for every stored object.
type MediaAsset struct {
	Base
	OrganizationID string    `gorm:"size:128;not null;index:idx_media_assets_owner,priority:1" json:"organization_id"`
	OwnerKind      OwnerKind `gorm:"size:32;not null;index:idx_media_assets_owner,priority:2" json:"owner_kind"`
	OwnerID        string    `gorm:"size:128;index:idx_media_assets_owner,priority:3" json:"owner_id,omitempty"`
	StoragePath    string    `gorm:"size:512;not null;uniqueIndex" json:"storage_path"`
	ContentType    string    `json:"content_type,omitempty"`
	Size           int64     `json:"size"`
	UploadedBy     string    `gorm:"size:128" json:"uploaded_by,omitempty"`
}

func (MediaAsset) TableName() string {
	return "media_assets"
}
