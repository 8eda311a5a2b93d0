package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"comproom/core/proto"
	"comproom/logger"
	"comproom/model"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyJoined means JoinSession was called twice without an
	// intervening leave. That is a programming error, not a retry case.
	ErrAlreadyJoined = errors.New("collab: session already joined")

	// ErrNotJoined means the operation needs an established session.
	ErrNotJoined = errors.New("collab: no session")

	// ErrNotOwner means a permission mutation was attempted by a
	// non-owner. The call is a local no-op.
	ErrNotOwner = errors.New("collab: owner role required")

	// ErrNotPermitted means the local advisory permission gate denied
	// the action. Server-side authorization lives elsewhere.
	ErrNotPermitted = errors.New("collab: not permitted")

	// ErrNotFound means a referenced comment does not exist locally.
	ErrNotFound = errors.New("collab: not found")
)

// Options configures a session.
type Options struct {
	URL              string        // relay endpoint, project id is appended
	Transport        Transport     // nil selects the websocket transport
	BaseDelay        time.Duration // linear backoff base
	MaxAttempts      int           // reconnect attempt cap
	PresenceInterval time.Duration // heartbeat push interval
	IdleWindow       time.Duration // active -> idle threshold
}

// Session is the client side of session sync: collaborative state,
// channel lifecycle with capped linear-backoff reconnect, FIFO
// outbound queueing while disconnected, and origin-tag echo
// suppression on inbound changes.
type Session struct {
	opts Options
	obs  *observers

	mu           sync.Mutex
	state        *model.CollaborationSession
	local        model.User
	presence     model.Presence
	lastActivity time.Time
	conn         Conn
	connState    ConnState
	queue        [][]byte // encoded outbound messages, FIFO
	joined       bool
	stop         chan struct{}
	wg           sync.WaitGroup
}

// NewSession builds a session with the given options.
func NewSession(opts Options) *Session {
	if opts.Transport == nil {
		opts.Transport = NewWebsocketTransport()
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.PresenceInterval <= 0 {
		opts.PresenceInterval = 5 * time.Second
	}
	if opts.IdleWindow <= 0 {
		opts.IdleWindow = time.Minute
	}
	return &Session{opts: opts, obs: newObservers(), connState: StateIdle}
}

// Subscribe registers an observer for session events and returns its
// unsubscribe func.
func (s *Session) Subscribe(obs Observer) func() {
	return s.obs.subscribe(obs)
}

// State returns the collaborative session state. Read-only for callers.
func (s *Session) State() *model.CollaborationSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConnState reports the connection lifecycle state.
func (s *Session) ConnState() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connState
}

// JoinSession establishes the session object and opens the channel. A
// second join without a prior leave returns ErrAlreadyJoined.
func (s *Session) JoinSession(ctx context.Context, projectID string, user model.User) error {
	s.mu.Lock()
	if s.joined {
		s.mu.Unlock()
		return ErrAlreadyJoined
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.JoinedAt = model.NowMillis()

	s.joined = true
	s.local = user
	s.state = model.NewCollaborationSession(projectID, user.ID)
	s.state.Users[user.ID] = &user
	perm := model.DefaultPermissions(user.ID, user.Role)
	s.state.Permissions[user.ID] = &perm
	s.presence = model.Presence{UserID: user.ID, Status: model.StatusActive, LastSeen: model.NowMillis()}
	s.lastActivity = time.Now()
	s.queue = nil
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	s.wg.Add(2)
	go s.run(ctx, stop, 0)
	go s.heartbeat(stop)

	logger.Info("session joined",
		logger.String("project", projectID),
		logger.String("user", user.ID))
	return nil
}

// LeaveSession sends a leave notice, closes the channel and clears all
// session state. Safe to call when not joined.
func (s *Session) LeaveSession() error {
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		return nil
	}
	projectID := s.state.ProjectID
	if s.conn != nil && s.connState == StateConnected {
		if msg, err := proto.New(proto.MsgLeave, projectID, s.local.ID, proto.UserLeftData{UserID: s.local.ID}); err == nil {
			if data, err := msg.Encode(); err == nil {
				s.conn.WriteMessage(data) // best effort
			}
		}
	}
	s.joined = false
	close(s.stop)
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connState = StateIdle
	s.state = nil
	s.queue = nil
	s.mu.Unlock()

	s.wg.Wait()
	logger.Info("session left", logger.String("project", projectID))
	return nil
}

// Dispose tears the session down. Double-dispose is safe.
func (s *Session) Dispose() {
	_ = s.LeaveSession()
}

// Reconnect re-arms the connection after the attempt cap was
// exhausted. It is the only resume path out of the failed state.
func (s *Session) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		return ErrNotJoined
	}
	if s.connState != StateFailed {
		s.mu.Unlock()
		return nil
	}
	s.connState = StateIdle
	stop := s.stop
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, stop, 0)
	return nil
}

// run owns the connection lifecycle FSM:
// connecting -> connected -> (error|closed) -> backoff -> connecting,
// capped at MaxAttempts, then failed until Reconnect().
func (s *Session) run(ctx context.Context, stop chan struct{}, attempt int) {
	defer s.wg.Done()

	for {
		select {
		case <-stop:
			return
		default:
		}

		s.setConnState(StateConnecting)
		url := s.dialURL()
		conn, err := s.opts.Transport.Dial(ctx, url)
		if err == nil {
			attempt = 0
			// Join and backlog go out before the connected state is
			// published, so a concurrent broadcast cannot slip a live
			// change in ahead of the queued ones.
			s.mu.Lock()
			s.conn = conn
			s.sendJoinLocked()
			s.flushQueueLocked()
			s.connState = StateConnected
			s.mu.Unlock()
			logger.Info("channel connected", logger.String("url", url))

			s.readLoop(conn, stop)

			s.mu.Lock()
			s.conn = nil
			s.mu.Unlock()
			select {
			case <-stop:
				return
			default:
			}
		} else {
			logger.Warn("channel dial failed", logger.ErrorField(err), logger.String("url", url))
		}

		attempt++
		if attempt > s.opts.MaxAttempts {
			s.setConnState(StateFailed)
			s.obs.emit(Disconnected{Attempts: attempt - 1, Final: true})
			logger.Error("reconnect attempts exhausted", logger.Int("attempts", attempt-1))
			return
		}

		delay := backoffDelay(s.opts.BaseDelay, attempt)
		s.setConnState(StateBackoff)
		s.obs.emit(Disconnected{Attempts: attempt, Final: false})
		s.obs.emit(Reconnecting{Attempt: attempt, Delay: delay})

		select {
		case <-time.After(delay):
		case <-stop:
			return
		}
	}
}

func (s *Session) dialURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return s.opts.URL
	}
	return s.opts.URL + "/" + s.state.ProjectID
}

func (s *Session) setConnState(st ConnState) {
	s.mu.Lock()
	s.connState = st
	s.mu.Unlock()
}

// sendJoinLocked announces the local user as the first message on a
// fresh connection. Needs s.mu held.
func (s *Session) sendJoinLocked() {
	if s.state == nil || s.conn == nil {
		return
	}
	msg, err := proto.New(proto.MsgJoin, s.state.ProjectID, s.local.ID, proto.JoinData{User: s.local})
	if err != nil {
		return
	}
	data, err := msg.Encode()
	if err != nil {
		return
	}
	if err := s.conn.WriteMessage(data); err != nil {
		logger.Warn("join send failed", logger.ErrorField(err))
	}
}

// flushQueueLocked delivers changes queued while disconnected, in
// original call order. Needs s.mu held.
func (s *Session) flushQueueLocked() {
	if s.conn == nil {
		return
	}
	for len(s.queue) > 0 {
		data := s.queue[0]
		if err := s.conn.WriteMessage(data); err != nil {
			logger.Warn("queue flush interrupted", logger.ErrorField(err))
			return
		}
		s.queue = s.queue[1:]
	}
}

// send writes an envelope if connected. When queueable, the message is
// held FIFO across a disconnect instead of being dropped.
func (s *Session) send(msg *proto.Message, queueable bool) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connState == StateConnected && s.conn != nil {
		if err := s.conn.WriteMessage(data); err == nil {
			return nil
		}
		// fall through to the queue on a write error
	}
	if queueable {
		s.queue = append(s.queue, data)
		return nil
	}
	return nil
}

// BroadcastChange appends a change to the log, tags it with the local
// user and sends it immediately or enqueues it while disconnected. The
// caller has already applied the mutation locally (optimistic apply).
func (s *Session) BroadcastChange(t model.ChangeType, payload interface{}) (*model.Change, error) {
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		return nil, ErrNotJoined
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("marshal change payload: %w", err)
		}
		raw = data
	}
	change := &model.Change{
		ID:        uuid.NewString(),
		AuthorID:  s.local.ID,
		Type:      t,
		Payload:   raw,
		Timestamp: model.NowMillis(),
		Applied:   true,
	}
	s.state.Changes = append(s.state.Changes, change)
	projectID := s.state.ProjectID
	userID := s.local.ID
	s.mu.Unlock()

	msg, err := proto.New(proto.MsgChange, projectID, userID, change)
	if err != nil {
		return nil, err
	}
	return change, s.send(msg, true)
}

// AddComment creates a comment locally and mirrors it outbound. The
// local CanComment gate is advisory only.
func (s *Session) AddComment(scope model.CommentScope, targetID, body string, at float64) (*model.Comment, error) {
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		return nil, ErrNotJoined
	}
	if perm := s.state.Permissions[s.local.ID]; perm != nil && !perm.CanComment {
		s.mu.Unlock()
		return nil, ErrNotPermitted
	}
	comment := &model.Comment{
		ID:        uuid.NewString(),
		AuthorID:  s.local.ID,
		Scope:     scope,
		TargetID:  targetID,
		Body:      body,
		Time:      at,
		CreatedAt: model.NowMillis(),
	}
	s.state.Comments[comment.ID] = comment
	projectID := s.state.ProjectID
	userID := s.local.ID
	s.mu.Unlock()

	msg, err := proto.New(proto.MsgCommentAdded, projectID, userID, proto.CommentData{Comment: comment})
	if err != nil {
		return nil, err
	}
	return comment, s.send(msg, true)
}

// ReplyToComment nests a reply under an existing comment.
func (s *Session) ReplyToComment(commentID, body string) (*model.Comment, error) {
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		return nil, ErrNotJoined
	}
	parent, ok := s.state.Comments[commentID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}
	reply := &model.Comment{
		ID:        uuid.NewString(),
		AuthorID:  s.local.ID,
		Scope:     parent.Scope,
		TargetID:  parent.TargetID,
		Body:      body,
		CreatedAt: model.NowMillis(),
	}
	parent.Replies = append(parent.Replies, reply)
	projectID := s.state.ProjectID
	userID := s.local.ID
	s.mu.Unlock()

	msg, err := proto.New(proto.MsgCommentUpdated, projectID, userID, proto.CommentData{Comment: parent})
	if err != nil {
		return nil, err
	}
	return reply, s.send(msg, true)
}

// ResolveComment flips the resolved flag and mirrors it outbound.
func (s *Session) ResolveComment(commentID string) error {
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		return ErrNotJoined
	}
	comment, ok := s.state.Comments[commentID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}
	comment.Resolved = true
	projectID := s.state.ProjectID
	userID := s.local.ID
	s.mu.Unlock()

	msg, err := proto.New(proto.MsgCommentResolved, projectID, userID, proto.CommentData{Comment: comment})
	if err != nil {
		return err
	}
	return s.send(msg, true)
}

// SetPermission updates a user's capability set. Only the owner role
// may do this; for anyone else the call is a no-op.
func (s *Session) SetPermission(perm model.Permission) error {
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		return ErrNotJoined
	}
	if s.local.Role != model.RoleOwner {
		s.mu.Unlock()
		return ErrNotOwner
	}
	stored := perm
	s.state.Permissions[perm.UserID] = &stored
	projectID := s.state.ProjectID
	userID := s.local.ID
	s.mu.Unlock()

	msg, err := proto.New(proto.MsgPermissionUpdated, projectID, userID, proto.PermissionData{Permission: perm})
	if err != nil {
		return err
	}
	return s.send(msg, true)
}

// RequestSync asks the relay for a fresh sync-state snapshot.
func (s *Session) RequestSync() error {
	s.mu.Lock()
	if !s.joined {
		s.mu.Unlock()
		return ErrNotJoined
	}
	projectID := s.state.ProjectID
	userID := s.local.ID
	s.mu.Unlock()

	msg, err := proto.New(proto.MsgRequestSync, projectID, userID, nil)
	if err != nil {
		return err
	}
	return s.send(msg, false)
}

// readLoop dispatches inbound messages until the connection errors.
func (s *Session) readLoop(conn Conn, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleMessage(data)
	}
}

// handleMessage applies one inbound message. Malformed payloads are
// logged and dropped; they never tear down the session.
func (s *Session) handleMessage(data []byte) {
	var msg proto.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Warn("malformed channel message", logger.ErrorField(err))
		return
	}

	switch msg.Type {
	case proto.MsgUserJoined:
		var payload proto.JoinData
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			logger.Warn("malformed user-joined payload", logger.ErrorField(err))
			return
		}
		s.mu.Lock()
		if s.state != nil {
			user := payload.User
			s.state.Users[user.ID] = &user
			if _, ok := s.state.Permissions[user.ID]; !ok {
				perm := model.DefaultPermissions(user.ID, user.Role)
				s.state.Permissions[user.ID] = &perm
			}
		}
		s.mu.Unlock()
		s.obs.emit(UserJoined{User: payload.User})

	case proto.MsgUserLeft:
		var payload proto.UserLeftData
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			logger.Warn("malformed user-left payload", logger.ErrorField(err))
			return
		}
		s.mu.Lock()
		if s.state != nil {
			delete(s.state.Users, payload.UserID)
			delete(s.state.Presences, payload.UserID)
		}
		s.mu.Unlock()
		s.obs.emit(UserLeft{UserID: payload.UserID})

	case proto.MsgPresenceUpdate:
		var presence model.Presence
		if err := json.Unmarshal(msg.Data, &presence); err != nil {
			logger.Warn("malformed presence payload", logger.ErrorField(err))
			return
		}
		s.mu.Lock()
		local := s.local.ID
		if s.state != nil && presence.UserID != local {
			stored := presence
			s.state.Presences[presence.UserID] = &stored
		}
		s.mu.Unlock()
		if presence.UserID != local {
			s.obs.emit(PresenceUpdated{Presence: presence})
		}

	case proto.MsgChange:
		var change model.Change
		if err := json.Unmarshal(msg.Data, &change); err != nil {
			logger.Warn("malformed change payload", logger.ErrorField(err))
			return
		}
		s.mu.Lock()
		local := s.local.ID
		if change.AuthorID != local && s.state != nil {
			stored := change
			s.state.Changes = append(s.state.Changes, &stored)
		}
		s.mu.Unlock()
		// Origin-tag echo suppression: our own changes were applied
		// optimistically at authoring time.
		if change.AuthorID == local {
			return
		}
		s.obs.emit(RemoteChange{Change: change})

	case proto.MsgCommentAdded, proto.MsgCommentUpdated, proto.MsgCommentResolved:
		var payload proto.CommentData
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.Comment == nil {
			logger.Warn("malformed comment payload", logger.ErrorField(err))
			return
		}
		s.mu.Lock()
		local := s.local.ID
		if s.state != nil && msg.UserID != local {
			s.state.Comments[payload.Comment.ID] = payload.Comment
		}
		s.mu.Unlock()
		if msg.UserID == local {
			return
		}
		switch msg.Type {
		case proto.MsgCommentAdded:
			s.obs.emit(CommentAdded{Comment: payload.Comment})
		case proto.MsgCommentUpdated:
			s.obs.emit(CommentUpdated{Comment: payload.Comment})
		default:
			s.obs.emit(CommentResolved{CommentID: payload.Comment.ID})
		}

	case proto.MsgPermissionUpdated:
		var payload proto.PermissionData
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			logger.Warn("malformed permission payload", logger.ErrorField(err))
			return
		}
		s.mu.Lock()
		if s.state != nil {
			stored := payload.Permission
			s.state.Permissions[payload.Permission.UserID] = &stored
		}
		s.mu.Unlock()
		s.obs.emit(PermissionUpdated{Permission: payload.Permission})

	case proto.MsgSyncState:
		var payload proto.SyncStateData
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			logger.Warn("malformed sync-state payload", logger.ErrorField(err))
			return
		}
		s.applySyncState(&payload)
		s.obs.emit(StateSynced{})

	case proto.MsgResolveConflict:
		var change model.Change
		if err := json.Unmarshal(msg.Data, &change); err != nil {
			logger.Warn("malformed resolve-conflict payload", logger.ErrorField(err))
			return
		}
		// Relay resolutions are authoritative; no origin check here.
		s.obs.emit(ConflictResolved{Change: change})

	case proto.MsgRequestSync, proto.MsgJoin, proto.MsgLeave:
		// Relay-bound message types; nothing to do on the client.

	default:
		logger.Warn("unknown channel message type", logger.String("type", string(msg.Type)))
	}
}

// applySyncState replaces collaborative state with a relay snapshot.
func (s *Session) applySyncState(snap *proto.SyncStateData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return
	}

	for _, user := range snap.Users {
		s.state.Users[user.ID] = user
	}
	for _, presence := range snap.Presences {
		if presence.UserID != s.local.ID {
			s.state.Presences[presence.UserID] = presence
		}
	}
	for _, comment := range snap.Comments {
		s.state.Comments[comment.ID] = comment
	}
	for _, perm := range snap.Permissions {
		s.state.Permissions[perm.UserID] = perm
	}
	for _, change := range snap.Changes {
		if change.AuthorID != s.local.ID {
			s.state.Changes = append(s.state.Changes, change)
		}
	}
}
