package collab

import (
	"time"

	"comproom/core/proto"
	"comproom/model"
)

// awayFactor scales the idle window into the idle -> away threshold.
const awayFactor = 5

// TouchActivity records local key/pointer activity. Status returns to
// active immediately; the heartbeat pushes it outbound.
func (s *Session) TouchActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
	s.presence.Status = model.StatusActive
}

// UpdateCursor moves the local presence cursor.
func (s *Session) UpdateCursor(x, y float64) {
	s.mu.Lock()
	s.presence.CursorX = x
	s.presence.CursorY = y
	s.lastActivity = time.Now()
	s.presence.Status = model.StatusActive
	s.mu.Unlock()
}

// SetActiveTrack records which track the local user is working on.
func (s *Session) SetActiveTrack(trackID string) {
	s.mu.Lock()
	s.presence.ActiveTrackID = trackID
	s.lastActivity = time.Now()
	s.presence.Status = model.StatusActive
	s.mu.Unlock()
}

// SetSelection records the local user's current selection ids.
func (s *Session) SetSelection(ids []string) {
	s.mu.Lock()
	s.presence.SelectionIDs = append([]string(nil), ids...)
	s.lastActivity = time.Now()
	s.presence.Status = model.StatusActive
	s.mu.Unlock()
}

// LocalPresence returns a copy of the local presence record.
func (s *Session) LocalPresence() model.Presence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence
}

// heartbeat pushes the local presence outbound at a fixed interval and
// ages the activity status: active -> idle after the idle window,
// idle -> away after awayFactor times that.
func (s *Session) heartbeat(stop chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.PresenceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.pushPresence()
		}
	}
}

func (s *Session) pushPresence() {
	s.mu.Lock()
	if s.state == nil {
		s.mu.Unlock()
		return
	}
	sinceActivity := time.Since(s.lastActivity)
	switch {
	case sinceActivity >= awayFactor*s.opts.IdleWindow:
		s.presence.Status = model.StatusAway
	case sinceActivity >= s.opts.IdleWindow:
		s.presence.Status = model.StatusIdle
	}
	s.presence.LastSeen = model.NowMillis()
	presence := s.presence
	projectID := s.state.ProjectID
	userID := s.local.ID
	s.mu.Unlock()

	msg, err := proto.New(proto.MsgPresenceUpdate, projectID, userID, presence)
	if err != nil {
		return
	}
	// Presence is ephemeral; a stale heartbeat is worthless after a
	// reconnect, so it is never queued.
	_ = s.send(msg, false)
}
