// Package proto defines the message envelope and payloads exchanged
// over the session channel. Both the collab client and the relay speak
// this protocol; the transport underneath is interchangeable.
package proto

import (
	"encoding/json"
	"time"

	"comproom/model"
)

// MsgType tags a session channel message.
type MsgType string

const (
	MsgJoin              MsgType = "join"
	MsgLeave             MsgType = "leave"
	MsgUserJoined        MsgType = "user-joined"
	MsgUserLeft          MsgType = "user-left"
	MsgPresenceUpdate    MsgType = "presence-update"
	MsgChange            MsgType = "change"
	MsgCommentAdded      MsgType = "comment-added"
	MsgCommentUpdated    MsgType = "comment-updated"
	MsgCommentResolved   MsgType = "comment-resolved"
	MsgPermissionUpdated MsgType = "permission-updated"
	MsgSyncState         MsgType = "sync-state"
	MsgRequestSync       MsgType = "request-sync"
	MsgResolveConflict   MsgType = "resolve-conflict"
)

// Message is the channel envelope. Data carries the relevant model
// entity; UserID and ProjectID are routing fields.
type Message struct {
	Type      MsgType         `json:"type"`
	ProjectID string          `json:"projectId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// New builds an envelope around a payload.
func New(t MsgType, projectID, userID string, payload interface{}) (*Message, error) {
	msg := &Message{
		Type:      t,
		ProjectID: projectID,
		UserID:    userID,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Data = data
	}
	return msg, nil
}

// Encode marshals the envelope for the wire.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// JoinData rides join and user-joined messages.
type JoinData struct {
	User model.User `json:"user"`
}

// UserLeftData rides leave and user-left messages.
type UserLeftData struct {
	UserID string `json:"userId"`
}

// CommentData rides comment-added/updated/resolved messages.
type CommentData struct {
	Comment *model.Comment `json:"comment"`
}

// PermissionData rides permission-updated messages.
type PermissionData struct {
	Permission model.Permission `json:"permission"`
}

// SyncStateData is the full-session snapshot sent to a newcomer or in
// answer to request-sync.
type SyncStateData struct {
	Users       []*model.User       `json:"users"`
	Presences   []*model.Presence   `json:"presences,omitempty"`
	Comments    []*model.Comment    `json:"comments,omitempty"`
	Permissions []*model.Permission `json:"permissions,omitempty"`
	Changes     []*model.Change     `json:"changes,omitempty"`
}
