package collab

import (
	"sync"
	"time"

	"comproom/model"
)

// Event is the tagged union of everything a session can report to its
// host. Hosts switch on the concrete type; there are no string topics.
type Event interface {
	sessionEvent()
}

// UserJoined reports a collaborator entering the session.
type UserJoined struct {
	User model.User
}

// UserLeft reports a collaborator leaving the session.
type UserLeft struct {
	UserID string
}

// PresenceUpdated reports a remote collaborator's presence record.
type PresenceUpdated struct {
	Presence model.Presence
}

// RemoteChange delivers a change authored by another collaborator.
// Changes authored locally are suppressed by origin id before this
// event is ever raised.
type RemoteChange struct {
	Change model.Change
}

// CommentAdded, CommentUpdated and CommentResolved report remote
// comment mutations.
type CommentAdded struct {
	Comment *model.Comment
}

type CommentUpdated struct {
	Comment *model.Comment
}

type CommentResolved struct {
	CommentID string
}

// PermissionUpdated reports a capability change for some user.
type PermissionUpdated struct {
	Permission model.Permission
}

// StateSynced fires after a sync-state snapshot has been applied.
type StateSynced struct{}

// ConflictResolved delivers a relay-authored resolution. It bypasses
// origin echo suppression because the relay is authoritative for it.
type ConflictResolved struct {
	Change model.Change
}

// Reconnecting fires when a reconnect attempt has been scheduled.
type Reconnecting struct {
	Attempt int
	Delay   time.Duration
}

// Disconnected fires when the channel drops. Final is set once the
// attempt cap is exhausted; after that only Reconnect() resumes.
type Disconnected struct {
	Attempts int
	Final    bool
}

func (UserJoined) sessionEvent()         {}
func (UserLeft) sessionEvent()           {}
func (PresenceUpdated) sessionEvent()    {}
func (RemoteChange) sessionEvent()       {}
func (CommentAdded) sessionEvent()       {}
func (CommentUpdated) sessionEvent()     {}
func (CommentResolved) sessionEvent()    {}
func (PermissionUpdated) sessionEvent()  {}
func (StateSynced) sessionEvent()        {}
func (ConflictResolved) sessionEvent()   {}
func (Reconnecting) sessionEvent()       {}
func (Disconnected) sessionEvent()       {}

// Observer receives session events in arrival order.
type Observer interface {
	OnSessionEvent(Event)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnSessionEvent(e Event) { f(e) }

// observers is a subscription registry. Dispatch is serialized by the
// session's read loop, so observers never race with each other.
type observers struct {
	mu   sync.RWMutex
	subs map[int]Observer
	next int
}

func newObservers() *observers {
	return &observers{subs: make(map[int]Observer)}
}

// subscribe registers an observer and returns its cancel func.
func (o *observers) subscribe(obs Observer) func() {
	o.mu.Lock()
	id := o.next
	o.next++
	o.subs[id] = obs
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

// emit delivers an event to every current subscriber.
func (o *observers) emit(e Event) {
	o.mu.RLock()
	targets := make([]Observer, 0, len(o.subs))
	for _, obs := range o.subs {
		targets = append(targets, obs)
	}
	o.mu.RUnlock()

	for _, obs := range targets {
		obs.OnSessionEvent(e)
	}
}
