package relay

import (
	"fmt"
	"sync"

	"comproom/core/proto"
	"comproom/logger"
	"comproom/model"
)

// projectState is the relay's in-memory view of one project's session:
// enough to hand a sync-state snapshot to a newcomer. Nothing here is
// durable; persistence is an external collaborator.
type projectState struct {
	users       map[string]*model.User
	presences   map[string]*model.Presence
	comments    map[string]*model.Comment
	permissions map[string]*model.Permission
	changes     []*model.Change
}

func newProjectState() *projectState {
	return &projectState{
		users:       make(map[string]*model.User),
		presences:   make(map[string]*model.Presence),
		comments:    make(map[string]*model.Comment),
		permissions: make(map[string]*model.Permission),
	}
}

func (p *projectState) snapshot() *proto.SyncStateData {
	snap := &proto.SyncStateData{}
	for _, u := range p.users {
		snap.Users = append(snap.Users, u)
	}
	for _, pr := range p.presences {
		snap.Presences = append(snap.Presences, pr)
	}
	for _, c := range p.comments {
		snap.Comments = append(snap.Comments, c)
	}
	for _, perm := range p.permissions {
		snap.Permissions = append(snap.Permissions, perm)
	}
	snap.Changes = p.changes
	return snap
}

// BroadcastMessage fans a message out to one project's clients.
type BroadcastMessage struct {
	ProjectID string
	Message   []byte
	ExcludeID string // origin user id; never echoed back
}

// Hub is the session relay: it tracks clients per project, fans
// messages out excluding the origin, and answers sync requests from
// its in-memory project state.
type Hub struct {
	projects    map[string]map[*Client]bool
	userClients map[string]*Client // key: projectID:userID
	state       map[string]*projectState

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	mu   sync.RWMutex
	done chan struct{}
}

// NewHub creates a relay hub.
func NewHub() *Hub {
	return &Hub{
		projects:    make(map[string]map[*Client]bool),
		userClients: make(map[string]*Client),
		state:       make(map[string]*projectState),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		broadcast:   make(chan *BroadcastMessage, 256),
		done:        make(chan struct{}),
	}
}

// Run drives the hub loop until Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case msg := <-h.broadcast:
			h.broadcastToProject(msg)
		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop shuts the hub down.
func (h *Hub) Stop() {
	close(h.done)
}

// Register hands a new client to the hub loop.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast fans a raw message out to a project.
func (h *Hub) Broadcast(projectID string, message []byte, excludeUserID string) {
	h.broadcast <- &BroadcastMessage{
		ProjectID: projectID,
		Message:   message,
		ExcludeID: excludeUserID,
	}
}

// BroadcastEnvelope marshals and fans out a protocol message.
func (h *Hub) BroadcastEnvelope(msg *proto.Message, excludeUserID string) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	h.Broadcast(msg.ProjectID, data, excludeUserID)
	return nil
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := h.userKey(client.ProjectID, client.UserID)
	// One connection per user per project; a rejoin kicks the old one.
	if old, exists := h.userClients[key]; exists {
		h.removeClient(old)
	}

	if h.projects[client.ProjectID] == nil {
		h.projects[client.ProjectID] = make(map[*Client]bool)
	}
	h.projects[client.ProjectID][client] = true
	h.userClients[key] = client

	logger.Info("relay client registered",
		logger.String("project", client.ProjectID),
		logger.String("user", client.UserID))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeClient(client)
}

// removeClient needs the write lock held.
func (h *Hub) removeClient(client *Client) {
	projectID := client.ProjectID
	key := h.userKey(projectID, client.UserID)

	if clients, ok := h.projects[projectID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			client.closed = true
			close(client.Send)
			if len(clients) == 0 {
				delete(h.projects, projectID)
				// Last client gone: the session state dies with it.
				delete(h.state, projectID)
			}
		}
	}
	// The key may already point at a replacement connection; only the
	// departing client's own mapping goes.
	if h.userClients[key] == client {
		delete(h.userClients, key)
	}

	if state, ok := h.state[projectID]; ok {
		delete(state.users, client.UserID)
		delete(state.presences, client.UserID)
	}

	logger.Info("relay client unregistered",
		logger.String("project", projectID),
		logger.String("user", client.UserID))
}

func (h *Hub) broadcastToProject(msg *BroadcastMessage) {
	h.mu.RLock()
	clients, ok := h.projects[msg.ProjectID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]*Client, 0, len(clients))
	for client := range clients {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if msg.ExcludeID != "" && client.UserID == msg.ExcludeID {
			continue
		}
		if !h.trySend(client, msg.Message) {
			// Send buffer full; drop the client inline. Pushing it
			// through the unregister channel would block the hub loop
			// on itself.
			h.unregisterClient(client)
		}
	}
}

// trySend delivers one message unless the client's channel is closed
// or its buffer is full. The read lock orders it against the close in
// removeClient.
func (h *Hub) trySend(client *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client.closed {
		return false
	}
	select {
	case client.Send <- data:
		return true
	default:
		return false
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.projects {
		for client := range clients {
			client.closed = true
			close(client.Send)
		}
	}
	h.projects = make(map[string]map[*Client]bool)
	h.userClients = make(map[string]*Client)
	h.state = make(map[string]*projectState)
}

// ClientCount reports the number of connections in a project.
func (h *Hub) ClientCount(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.projects[projectID])
}

// SendToUser delivers one message to a single client.
func (h *Hub) SendToUser(projectID, userID string, msg *proto.Message) error {
	h.mu.RLock()
	client := h.userClients[h.userKey(projectID, userID)]
	h.mu.RUnlock()

	if client == nil {
		return fmt.Errorf("relay: user %s not connected", userID)
	}
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	if !h.trySend(client, data) {
		return fmt.Errorf("relay: send buffer full for user %s", userID)
	}
	return nil
}

func (h *Hub) userKey(projectID, userID string) string {
	return projectID + ":" + userID
}

// stateFor returns (creating if needed) a project's session state.
// Needs the write lock held.
func (h *Hub) stateFor(projectID string) *projectState {
	state, ok := h.state[projectID]
	if !ok {
		state = newProjectState()
		h.state[projectID] = state
	}
	return state
}
