package tracking

import "time"

// HeartbeatMark is the latest heartbeat seen for a visitor.
type HeartbeatMark struct {
	VisitorID string    `json:"visitor_id"`
	WebsiteID uint64    `json:"website_id"`
	At        time.Time `json:"last_heartbeat"`
}

// Online reports whether a heartbeat at last still counts as live at now.
// A heartbeat stamped after now (client clock skew) counts as live.
func Online(last, now time.Time, threshold time.Duration) bool {
	if last.IsZero() {
		return false
	}
	return now.Sub(last) < threshold
}

type PageRef struct {
	URL   string    `json:"url"`
	Title string    `json:"title"`
	At    time.Time `json:"viewed_at"`
}

// OnlineVisitor is one row of the live-visitors dashboard.
type OnlineVisitor struct {
	VisitorID     string    `json:"visitor_id"`
	WebsiteID     uint64    `json:"website_id"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	PersonID      *uint64   `json:"person_id,omitempty"`
	Name          string    `json:"name,omitempty"`
	Email         string    `json:"email,omitempty"`
	CurrentPage   *PageRef  `json:"current_page,omitempty"`
}
