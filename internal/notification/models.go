package notification

import (
	"time"
)

// Role is the role of a signed-in user.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleParent  Role = "parent"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleParent, RoleAdmin:
		return true
	}
	return false
}

// Group audiences. Any other non-empty audience value is the ID of a single user.
const (
	AudienceAll      = "all"
	AudienceStudents = "students"
	AudienceTeachers = "teachers"
	AudienceParents  = "parents"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

const (
	TypeAnnouncement = "announcement"
	TypeAssignment   = "assignment"
	TypePayment      = "payment"
	TypeGeneral      = "general"
)

// Notification is an immutable record addressed to an audience.
// IsRead and ReadAt describe the state for one recipient and are only
// populated in per-user views.
type Notification struct {
	ID             string     `json:"id" firestore:"id"`
	Title          string     `json:"title" firestore:"title"`
	Body           string     `json:"body" firestore:"body"`
	Type           string     `json:"type" firestore:"type"`
	TargetAudience string     `json:"target_audience" firestore:"targetAudience"`
	Priority       Priority   `json:"priority" firestore:"priority"`
	PostedBy       string     `json:"posted_by" firestore:"postedBy"`
	PostedByRole   Role       `json:"posted_by_role" firestore:"postedByRole"`
	CreatedAt      time.Time  `json:"created_at" firestore:"createdAt"`
	IsRead         bool       `json:"is_read" firestore:"-"`
	ReadAt         *time.Time `json:"read_at,omitempty" firestore:"-"`
}

// ListParams selects one page of a user's notifications.
type ListParams struct {
	Type     string
	Page     int
	PageSize int
}

// ListFilter is what repositories receive: the audiences already resolved for the viewer.
type ListFilter struct {
	UserID    string
	Audiences []string
	Type      string
	Limit     int
	Offset    int
}

// Page is one page of a user's notifications, newest first.
type Page struct {
	Items       []Notification `json:"items"`
	CurrentPage int            `json:"current_page"`
	TotalPages  int            `json:"total_pages"`
	Total       int64          `json:"total"`
}
