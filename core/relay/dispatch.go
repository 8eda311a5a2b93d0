package relay

import (
	"context"
	"encoding/json"

	"comproom/cache"
	"comproom/core/proto"
	"comproom/logger"
	"comproom/model"
)

// HandleMessage applies one inbound client message to the relay:
// bookkeeping into the project state, then fan-out excluding the
// origin. Malformed payloads are logged and dropped.
func (h *Hub) HandleMessage(ctx context.Context, client *Client, msg *proto.Message) {
	switch msg.Type {
	case proto.MsgJoin:
		h.handleJoin(ctx, client, msg)

	case proto.MsgLeave:
		h.handleLeave(ctx, client, msg)

	case proto.MsgPresenceUpdate:
		var presence model.Presence
		if err := json.Unmarshal(msg.Data, &presence); err != nil {
			logger.Warn("relay malformed presence", logger.ErrorField(err))
			return
		}
		presence.UserID = client.UserID

		h.mu.Lock()
		stored := presence
		h.stateFor(client.ProjectID).presences[client.UserID] = &stored
		h.mu.Unlock()

		presenceCache := cache.NewPresenceCache()
		if err := presenceCache.UpdatePresence(ctx, client.ProjectID, &presence); err != nil {
			logger.Warn("presence cache update failed",
				logger.ErrorField(err),
				logger.String("project", client.ProjectID),
				logger.String("user", client.UserID))
		}
		h.relay(msg, client)

	case proto.MsgChange:
		var change model.Change
		if err := json.Unmarshal(msg.Data, &change); err != nil {
			logger.Warn("relay malformed change", logger.ErrorField(err))
			return
		}
		h.mu.Lock()
		h.stateFor(client.ProjectID).changes = append(h.stateFor(client.ProjectID).changes, &change)
		h.mu.Unlock()
		h.relay(msg, client)

	case proto.MsgCommentAdded, proto.MsgCommentUpdated, proto.MsgCommentResolved:
		var payload proto.CommentData
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.Comment == nil {
			logger.Warn("relay malformed comment", logger.ErrorField(err))
			return
		}
		h.mu.Lock()
		h.stateFor(client.ProjectID).comments[payload.Comment.ID] = payload.Comment
		h.mu.Unlock()
		h.relay(msg, client)

	case proto.MsgPermissionUpdated:
		var payload proto.PermissionData
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			logger.Warn("relay malformed permission", logger.ErrorField(err))
			return
		}
		// Advisory gate mirrored server-side: only the owner's
		// connection may move permissions through the relay.
		if client.Role != string(model.RoleOwner) {
			logger.Warn("permission update from non-owner dropped",
				logger.String("project", client.ProjectID),
				logger.String("user", client.UserID))
			return
		}
		h.mu.Lock()
		stored := payload.Permission
		h.stateFor(client.ProjectID).permissions[stored.UserID] = &stored
		h.mu.Unlock()
		h.relay(msg, client)

	case proto.MsgRequestSync:
		h.sendSyncState(client)

	case proto.MsgResolveConflict:
		// Authoritative pass-through to everyone, origin included, so
		// all replicas converge on the same resolution.
		h.relayAll(msg)

	default:
		logger.Warn("relay unknown message type",
			logger.String("type", string(msg.Type)),
			logger.String("project", client.ProjectID))
	}
}

func (h *Hub) handleJoin(ctx context.Context, client *Client, msg *proto.Message) {
	var payload proto.JoinData
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		logger.Warn("relay malformed join", logger.ErrorField(err))
		return
	}
	user := payload.User

	client.UserID = user.ID
	client.Username = user.Name
	client.Role = string(user.Role)

	h.Register(client)

	h.mu.Lock()
	state := h.stateFor(client.ProjectID)
	state.users[user.ID] = &user
	if _, ok := state.permissions[user.ID]; !ok {
		perm := model.DefaultPermissions(user.ID, user.Role)
		state.permissions[user.ID] = &perm
	}
	h.mu.Unlock()

	presenceCache := cache.NewPresenceCache()
	joined := &model.Presence{UserID: user.ID, Status: model.StatusActive, LastSeen: model.NowMillis()}
	if err := presenceCache.UpdatePresence(ctx, client.ProjectID, joined); err != nil {
		logger.Warn("presence cache update failed on join",
			logger.ErrorField(err),
			logger.String("project", client.ProjectID),
			logger.String("user", user.ID))
	}

	// Tell the room, then hand the newcomer the current session state.
	if out, err := proto.New(proto.MsgUserJoined, client.ProjectID, user.ID, proto.JoinData{User: user}); err == nil {
		h.BroadcastEnvelope(out, user.ID)
	}
	h.sendSyncState(client)
}

func (h *Hub) handleLeave(ctx context.Context, client *Client, msg *proto.Message) {
	presenceCache := cache.NewPresenceCache()
	if err := presenceCache.RemovePresence(ctx, client.ProjectID, client.UserID); err != nil {
		logger.Warn("presence cache remove failed",
			logger.ErrorField(err),
			logger.String("project", client.ProjectID),
			logger.String("user", client.UserID))
	}

	if out, err := proto.New(proto.MsgUserLeft, client.ProjectID, client.UserID, proto.UserLeftData{UserID: client.UserID}); err == nil {
		h.BroadcastEnvelope(out, client.UserID)
	}
	h.Unregister(client)
}

// relay fans a message out to the origin's project, excluding the
// origin itself.
func (h *Hub) relay(msg *proto.Message, origin *Client) {
	msg.ProjectID = origin.ProjectID
	msg.UserID = origin.UserID
	if err := h.BroadcastEnvelope(msg, origin.UserID); err != nil {
		logger.Warn("relay broadcast failed", logger.ErrorField(err))
	}
}

// relayAll fans a message out without excluding anyone.
func (h *Hub) relayAll(msg *proto.Message) {
	if err := h.BroadcastEnvelope(msg, ""); err != nil {
		logger.Warn("relay broadcast failed", logger.ErrorField(err))
	}
}

func (h *Hub) sendSyncState(client *Client) {
	h.mu.RLock()
	var snap *proto.SyncStateData
	if state, ok := h.state[client.ProjectID]; ok {
		snap = state.snapshot()
	} else {
		snap = &proto.SyncStateData{}
	}
	h.mu.RUnlock()

	msg, err := proto.New(proto.MsgSyncState, client.ProjectID, "", snap)
	if err != nil {
		logger.Warn("sync-state encode failed", logger.ErrorField(err))
		return
	}
	data, err := msg.Encode()
	if err != nil {
		logger.Warn("sync-state encode failed", logger.ErrorField(err))
		return
	}
	// Written straight to the client's send channel: registration may
	// still be in flight on the hub loop. trySend guards against a
	// concurrent rejoin kick closing the channel under us.
	if !h.trySend(client, data) {
		logger.Warn("sync-state not delivered", logger.String("user", client.UserID))
	}
}
