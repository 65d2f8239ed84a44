package tracking

import (
	"time"
)

const (
	StageContact    = "Contact"
	StageBuyer      = "Buyer"
	StageLead       = "Lead"
	StageNurture    = "Nurture"
	StageClosed     = "Closed"
	StagePastClient = "Past Client"
	StageSphere     = "Sphere"
	StageTrash      = "Trash"
)

var stages = map[string]bool{
	StageContact: true, StageBuyer: true, StageLead: true, StageNurture: true,
	StageClosed: true, StagePastClient: true, StageSphere: true, StageTrash: true,
}

func IsStage(s string) bool { return stages[s] }

// Person is a resolved human identity. The relay only reads and writes
// VisitorID, Email and LastActivity; everything else belongs to the CRM side.
type Person struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string `gorm:"column:name;not null;default:''" json:"name"`
	Email     string `gorm:"column:email;not null;default:'';index" json:"email"`
	Phone     string `gorm:"column:phone;not null;default:''" json:"phone"`
	Stage     string `gorm:"column:stage;not null;default:''" json:"stage,omitempty"`
	Source    string `gorm:"column:source;not null;default:''" json:"source,omitempty"`
	SourceURL string `gorm:"column:source_url;not null;default:''" json:"source_url,omitempty"`

	VisitorID        string `gorm:"column:visitor_id;not null;default:'';index" json:"visitor_id,omitempty"`
	UserAgent        string `gorm:"column:user_agent;type:text;not null;default:''" json:"-"`
	Language         string `gorm:"column:language;not null;default:''" json:"-"`
	ScreenResolution string `gorm:"column:screen_resolution;not null;default:''" json:"-"`
	Timezone         string `gorm:"column:timezone;not null;default:''" json:"-"`

	LastActivity *time.Time `gorm:"column:last_activity;index" json:"last_activity,omitempty"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null" json:"updated_at"`
}

func (Person) TableName() string { return "person" }
