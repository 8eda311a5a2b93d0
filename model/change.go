package model

import "encoding/json"

// ChangeType tags an entry in the session change log. The payload is
// opaque to the sync layer; the host applies it onto the comp engine.
type ChangeType string

const (
	ChangeTakeAdded     ChangeType = "take-added"
	ChangeTakeDeleted   ChangeType = "take-deleted"
	ChangeTakeRated     ChangeType = "take-rated"
	ChangeActiveTake    ChangeType = "active-take"
	ChangeRegionCreated ChangeType = "region-created"
	ChangeRegionSplit   ChangeType = "region-split"
	ChangeRegionsMerged ChangeType = "regions-merged"
	ChangeRegionDeleted ChangeType = "region-deleted"
	ChangeAutoComp      ChangeType = "auto-comp"
)

// Change is an append-only session log entry.
type Change struct {
	ID        string          `json:"id"`
	AuthorID  string          `json:"authorId"`
	Type      ChangeType      `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"` // unix millis
	Applied   bool            `json:"applied"`
}
