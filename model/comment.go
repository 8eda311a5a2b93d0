package model

// CommentScope says what a comment is attached to.
type CommentScope string

const (
	ScopeTrack   CommentScope = "track"
	ScopeClip    CommentScope = "clip"
	ScopeMarker  CommentScope = "marker"
	ScopeGeneral CommentScope = "general"
)

// Comment is addressed to a track, clip, marker or the project in
// general, and carries nested replies.
type Comment struct {
	ID        string       `json:"id"`
	AuthorID  string       `json:"authorId"`
	Scope     CommentScope `json:"scope"`
	TargetID  string       `json:"targetId,omitempty"` // track/clip/marker id, empty for general
	Body      string       `json:"body"`
	Time      float64      `json:"time,omitempty"` // timeline position for marker comments, seconds
	Resolved  bool         `json:"resolved"`
	Replies   []*Comment   `json:"replies,omitempty"`
	CreatedAt int64        `json:"createdAt"` // unix millis
}
