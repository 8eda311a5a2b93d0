package server

import (
	"encoding/json"
	"net/http"

	"comproom/cache"
	"comproom/core/relay"
	"comproom/logger"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// SessionHandler upgrades session websocket connections and exposes a
// small HTTP surface around the relay.
type SessionHandler struct {
	hub      *relay.Hub
	upgrader websocket.Upgrader
}

// NewSessionHandler builds the handler around a running hub.
func NewSessionHandler(hub *relay.Hub) *SessionHandler {
	return &SessionHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeSession upgrades the connection and runs the client pumps. The
// first message on the socket must be a join carrying the user.
func (h *SessionHandler) ServeSession(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectId"]
	if projectID == "" {
		http.Error(w, "missing project id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed",
			logger.ErrorField(err),
			logger.String("project", projectID))
		return
	}

	client := relay.NewClient(h.hub, conn, projectID)
	go client.WritePump()
	client.ReadPump(r.Context(), h.hub.HandleMessage)
}

// OnlineCount reports how many collaborators hold a live presence
// heartbeat for a project.
func (h *SessionHandler) OnlineCount(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["projectId"]

	count, err := cache.NewPresenceCache().ActiveCount(r.Context(), projectID)
	if err != nil {
		logger.Error("online count failed",
			logger.ErrorField(err),
			logger.String("project", projectID))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"projectId": projectID,
		"online":    count,
	})
}
