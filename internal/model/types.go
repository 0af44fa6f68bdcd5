package model

import "time"

// Session is the persisted identity of the current browser profile.
type Session struct {
	LoggedIn bool   `json:"loggedIn"`
	Identity string `json:"identity,omitempty"`
	Role     string `json:"role,omitempty"`
}

// PortalUser is a self-service account of the client portal.
type PortalUser struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Email        string           `json:"email"`
	Phone        string           `json:"phone"`
	PasswordHash string           `json:"passwordHash"`
	Address      string           `json:"address"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
	LastLogin    *time.Time       `json:"lastLogin,omitempty"`
	Requests     []ServiceRequest `json:"requests"`
	Preferences  UserPreferences  `json:"preferences"`
}

// UserPreferences are the notification settings of a portal user.
type UserPreferences struct {
	Notifications bool   `json:"notifications"`
	SMSAlerts     bool   `json:"smsAlerts"`
	Language      string `json:"language"`
}

// Service request types offered by the portal.
const (
	RequestUrgent    = "urgent"
	RequestTransport = "transport"
	RequestDoctor    = "doctor"
)

// Service request statuses.
const (
	RequestPending    = "pending"
	RequestInProgress = "in-progress"
	RequestCompleted  = "completed"
	RequestCancelled  = "cancelled"
)

// RequestStatuses lists the statuses in lifecycle order.
var RequestStatuses = []string{RequestPending, RequestInProgress, RequestCompleted, RequestCancelled}

// ServiceRequest is one ambulance or doctor request made from the portal.
type ServiceRequest struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Status        string            `json:"status"`
	Address       string            `json:"address"`
	Details       map[string]string `json:"details,omitempty"`
	EstimatedTime string            `json:"estimatedTime"`
	CreatedAt     time.Time         `json:"createdAt"`
	Rating        int               `json:"rating,omitempty"`
	Review        string            `json:"review,omitempty"`
}
