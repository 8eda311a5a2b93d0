package model

import "time"

// Role is a session-level role. Permissions layer under these defaults.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// User is a stable collaborator identity within a session.
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color,omitempty"` // cursor/selection tint in the UI
	Role     Role   `json:"role"`
	JoinedAt int64  `json:"joinedAt,omitempty"` // unix millis
}

// ActivityStatus describes how recently a collaborator interacted.
type ActivityStatus string

const (
	StatusActive ActivityStatus = "active"
	StatusIdle   ActivityStatus = "idle"
	StatusAway   ActivityStatus = "away"
)

// Presence is ephemeral per-user position/activity info. It is shared
// over the session channel and never persisted.
type Presence struct {
	UserID        string         `json:"userId"`
	CursorX       float64        `json:"cursorX"`
	CursorY       float64        `json:"cursorY"`
	SelectionIDs  []string       `json:"selectionIds,omitempty"`
	ActiveTrackID string         `json:"activeTrackId,omitempty"`
	Status        ActivityStatus `json:"status"`
	LastSeen      int64          `json:"lastSeen"` // unix millis
}

// Permission is a per-user capability set layered under role defaults.
type Permission struct {
	UserID     string `json:"userId"`
	CanEdit    bool   `json:"canEdit"`
	CanComment bool   `json:"canComment"`
	CanShare   bool   `json:"canShare"`
	CanExport  bool   `json:"canExport"`
}

// DefaultPermissions returns the capability set implied by a role.
func DefaultPermissions(userID string, role Role) Permission {
	switch role {
	case RoleOwner:
		return Permission{UserID: userID, CanEdit: true, CanComment: true, CanShare: true, CanExport: true}
	case RoleEditor:
		return Permission{UserID: userID, CanEdit: true, CanComment: true}
	default:
		return Permission{UserID: userID, CanComment: true}
	}
}

// NowMillis is the timestamp convention used across session messages.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
