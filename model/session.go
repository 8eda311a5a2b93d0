package model

// CollaborationSession aggregates all collaborative state for one
// project. It is created on join and torn down on leave; nothing in it
// outlives the process.
type CollaborationSession struct {
	ProjectID   string                 `json:"projectId"`
	LocalUserID string                 `json:"localUserId"`
	Users       map[string]*User       `json:"users"`
	Presences   map[string]*Presence   `json:"presences"`
	Comments    map[string]*Comment    `json:"comments"`
	Permissions map[string]*Permission `json:"permissions"`
	Changes     []*Change              `json:"changes"`
}

// NewCollaborationSession builds an empty session for a project.
func NewCollaborationSession(projectID, localUserID string) *CollaborationSession {
	return &CollaborationSession{
		ProjectID:   projectID,
		LocalUserID: localUserID,
		Users:       make(map[string]*User),
		Presences:   make(map[string]*Presence),
		Comments:    make(map[string]*Comment),
		Permissions: make(map[string]*Permission),
	}
}
