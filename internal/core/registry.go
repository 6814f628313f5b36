package core

import (
	"sort"
	"sync"
)

// connState holds the mutable attributes of a registered connection.
type connState struct {
	conn    *Connection
	userID  string
	rooms   [categoryCount]string
	watches map[string]struct{}
}

func (st *connState) info(id string) ConnectionInfo {
	return ConnectionInfo{
		ID:            id,
		UserID:        st.userID,
		Room:          st.rooms[CategoryPrimary],
		EditorContext: st.rooms[CategoryEditorContext],
		Watches:       sortedKeys(st.watches),
	}
}

// Registry is the authoritative set of live connections together with the
// indexes derived from their attributes: user id, room rosters per category
// and watch subscriptions. All indexes share one lock so that removing a
// connection releases every derived membership at once.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]*connState
	users    map[string]map[string]struct{}
	rooms    [categoryCount]map[string]map[string]struct{}
	watchers map[string]map[string]struct{}
}

// ConnectionInfo is a point-in-time copy of a connection's attributes.
type ConnectionInfo struct {
	ID            string
	UserID        string
	Room          string
	EditorContext string
	Watches       []string
}

// Stats summarizes registry occupancy.
type Stats struct {
	Connections    int
	Identified     int
	Users          int
	PrimaryRooms   int
	EditorContexts int
	WatchLabels    int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{
		conns:    make(map[string]*connState),
		users:    make(map[string]map[string]struct{}),
		watchers: make(map[string]map[string]struct{}),
	}
	for i := range r.rooms {
		r.rooms[i] = make(map[string]map[string]struct{})
	}
	return r
}

// Register adds a connection with no user, rooms or watches.
func (r *Registry) Register(c *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[c.ID]; exists {
		return ErrDuplicateConnection
	}
	r.conns[c.ID] = &connState{
		conn:    c,
		watches: make(map[string]struct{}),
	}
	return nil
}

// Unregister removes the connection and every membership derived from it,
// returning the attributes it held. Returns false if the connection was not
// registered.
func (r *Registry) Unregister(id string) (ConnectionInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.conns[id]
	if !ok {
		return ConnectionInfo{}, false
	}
	info := st.info(id)

	if st.userID != "" {
		removeFromIndex(r.users, st.userID, id)
	}
	for cat, label := range st.rooms {
		if label != "" {
			removeFromIndex(r.rooms[cat], label, id)
		}
	}
	for label := range st.watches {
		removeFromIndex(r.watchers, label, id)
	}
	delete(r.conns, id)

	return info, true
}

// Get returns the registered connection with the given id.
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return st.conn, true
}

// Info returns a copy of the connection's attributes.
func (r *Registry) Info(id string) (ConnectionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.conns[id]
	if !ok {
		return ConnectionInfo{}, false
	}
	return st.info(id), true
}

// SetUser associates userID with the connection, replacing any previous one.
// It returns the previous user id.
func (r *Registry) SetUser(id, userID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.conns[id]
	if !ok {
		return "", ErrUnknownConnection
	}

	prev := st.userID
	if prev == userID {
		return prev, nil
	}
	if prev != "" {
		removeFromIndex(r.users, prev, id)
	}
	st.userID = userID
	if userID != "" {
		addToIndex(r.users, userID, id)
	}
	return prev, nil
}

// ClearUser removes the user association. It returns the cleared user id
// and false when there was nothing to clear.
func (r *Registry) ClearUser(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.conns[id]
	if !ok || st.userID == "" {
		return "", false
	}
	prev := st.userID
	removeFromIndex(r.users, prev, id)
	st.userID = ""
	return prev, true
}

// FindByUser returns every connection currently associated with userID,
// ordered by connection id.
func (r *Registry) FindByUser(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.connectionsLocked(r.users[userID], nil)
}

// Connections returns a snapshot of all registered connections.
func (r *Registry) Connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.conns))
	for _, st := range r.conns {
		out = append(out, st.conn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Stats returns occupancy counters.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		Connections:    len(r.conns),
		Users:          len(r.users),
		PrimaryRooms:   len(r.rooms[CategoryPrimary]),
		EditorContexts: len(r.rooms[CategoryEditorContext]),
		WatchLabels:    len(r.watchers),
	}
	for _, st := range r.conns {
		if st.userID != "" {
			s.Identified++
		}
	}
	return s
}

// connectionsLocked resolves a set of ids into connections, skipping any id
// present in exclude. Caller must hold r.mu.
func (r *Registry) connectionsLocked(ids map[string]struct{}, exclude map[string]struct{}) []*Connection {
	if len(ids) == 0 {
		return nil
	}
	out := make([]*Connection, 0, len(ids))
	for id := range ids {
		if _, skip := exclude[id]; skip {
			continue
		}
		if st, ok := r.conns[id]; ok {
			out = append(out, st.conn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func addToIndex(index map[string]map[string]struct{}, key, id string) bool {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	if _, exists := set[id]; exists {
		return false
	}
	set[id] = struct{}{}
	return true
}

func removeFromIndex(index map[string]map[string]struct{}, key, id string) bool {
	set, ok := index[key]
	if !ok {
		return false
	}
	if _, exists := set[id]; !exists {
		return false
	}
	delete(set, id)
	if len(set) == 0 {
		delete(index, key)
	}
	return true
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
