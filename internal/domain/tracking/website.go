package tracking

import (
	"time"
)

// Website is a tracked third-party site. SiteID is the public key embedded in
// the tracking script; ID is the internal join key.
type Website struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID string `gorm:"column:owner_id;not null;default:'';index" json:"owner_id,omitempty"`
	Name    string `gorm:"column:name;not null;default:''" json:"name"`
	SiteID  string `gorm:"column:site_id;not null;uniqueIndex" json:"site_id"`
	Domain  string `gorm:"column:domain;not null" json:"domain"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Website) TableName() string { return "website" }

func (w *Website) DisplayName() string {
	if w == nil {
		return "Unknown Website"
	}
	if w.Name != "" {
		return w.Name
	}
	if w.Domain != "" {
		return w.Domain
	}
	return "Website " + w.SiteID
}
