package tracking

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ActivityViewedPage     = "Viewed Page"
	ActivityFormSubmission = "Form Submission"
	ActivityHeartbeat      = "Heartbeat"
	ActivityInquiry        = "Inquiry"
)

func IsActivityType(s string) bool {
	switch s {
	case ActivityViewedPage, ActivityFormSubmission, ActivityHeartbeat, ActivityInquiry:
		return true
	default:
		return false
	}
}

// Activity is an immutable tracking record. The only mutable field is
// LastHeartbeat, and only on the single Heartbeat row kept per website/visitor.
type Activity struct {
	ID           uint64  `gorm:"primaryKey;autoIncrement" json:"id"`
	WebsiteID    uint64  `gorm:"column:website_id;not null;index" json:"website_id"`
	PersonID     *uint64 `gorm:"column:person_id;index" json:"person_id,omitempty"`
	ActivityType string  `gorm:"column:activity_type;not null;index" json:"activity_type"`

	Message      string         `gorm:"column:message;type:text;not null;default:''" json:"message,omitempty"`
	PageTitle    string         `gorm:"column:page_title;not null;default:''" json:"page_title,omitempty"`
	PageURL      string         `gorm:"column:page_url;type:text;not null;default:''" json:"page_url,omitempty"`
	PageReferrer string         `gorm:"column:page_referrer;type:text;not null;default:''" json:"page_referrer,omitempty"`
	FormData     datatypes.JSON `gorm:"column:form_data" json:"form_data,omitempty"`
	Metadata     datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`

	OccurredAt    time.Time  `gorm:"column:occurred_at;not null;index" json:"occurred_at"`
	LastHeartbeat *time.Time `gorm:"column:last_heartbeat;index" json:"last_heartbeat,omitempty"`

	VisitorID        string `gorm:"column:visitor_id;not null;default:'';index" json:"visitor_id,omitempty"`
	UserAgent        string `gorm:"column:user_agent;type:text;not null;default:''" json:"user_agent,omitempty"`
	Language         string `gorm:"column:language;not null;default:''" json:"language,omitempty"`
	ScreenResolution string `gorm:"column:screen_resolution;not null;default:''" json:"screen_resolution,omitempty"`
	Timezone         string `gorm:"column:timezone;not null;default:''" json:"timezone,omitempty"`
}

func (Activity) TableName() string { return "activity" }

func (a *Activity) IsAnonymous() bool { return a == nil || a.PersonID == nil }
