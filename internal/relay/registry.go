package relay

import (
	"slices"
	"sync"

	"github.com/johndosdos/skillxchange/internal/model"
)

// Registry tracks which connections are joined to which user room.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[*Client]struct{})}
}

// Join adds c to the room of userID and reports whether it is the user's
// first connection.
func (r *Registry) Join(userID string, c *Client) bool {
	userID = model.Canonical(userID)

	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[userID]
	if !ok {
		room = make(map[*Client]struct{})
		r.rooms[userID] = room
	}
	room[c] = struct{}{}
	return !ok
}

// Leave removes c from the room of userID and reports whether the user has
// no connections left. The room is evicted once empty.
func (r *Registry) Leave(userID string, c *Client) bool {
	userID = model.Canonical(userID)

	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[userID]
	if !ok {
		return false
	}
	if _, member := room[c]; !member {
		return false
	}

	delete(room, c)
	if len(room) > 0 {
		return false
	}
	delete(r.rooms, userID)
	return true
}

func (r *Registry) Members(userID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[model.Canonical(userID)]
	members := make([]*Client, 0, len(room))
	for c := range room {
		members = append(members, c)
	}
	return members
}

// All returns every joined connection.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []*Client
	for _, room := range r.rooms {
		for c := range room {
			all = append(all, c)
		}
	}
	return all
}

// Online lists the users with at least one connection, sorted.
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		users = append(users, id)
	}
	slices.Sort(users)
	return users
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[model.Canonical(userID)]
	return ok
}
