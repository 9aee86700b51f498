// Package room tracks which connections belong to which named
// broadcast scope. Battle rooms are not registered here — their
// membership is owned by the battle session itself.
package room

// Name identifies a broadcast scope.
type Name string

// Server is the room every authenticated connection sits in.
func Server() Name { return "server" }

// User is the private room for one user's connections.
func User(username string) Name { return Name("user:" + username) }

// Registry maps rooms to member connection IDs. It is owned and
// mutated by a single dispatcher goroutine and carries no locks;
// membership changes are visible to broadcasts as soon as the mutating
// handler returns.
type Registry struct {
	rooms map[Name]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[Name]map[string]struct{})}
}

func (r *Registry) Join(connID string, room Name) {
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	members[connID] = struct{}{}
}

func (r *Registry) Leave(connID string, room Name) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// Members returns the member connection IDs in no particular order.
func (r *Registry) Members(room Name) []string {
	members := r.rooms[room]
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) Contains(room Name, connID string) bool {
	_, ok := r.rooms[room][connID]
	return ok
}

func (r *Registry) Count(room Name) int {
	return len(r.rooms[room])
}
