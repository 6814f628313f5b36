package core

// Watch subscribes the connection to events about label. Idempotent; returns
// true only when a new subscription was created.
func (r *Registry) Watch(id, label string) bool {
	if label == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.conns[id]
	if !ok {
		return false
	}
	if _, exists := st.watches[label]; exists {
		return false
	}
	st.watches[label] = struct{}{}
	addToIndex(r.watchers, label, id)
	return true
}

// Unwatch cancels a subscription. Returns false if there was none.
func (r *Registry) Unwatch(id, label string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.conns[id]
	if !ok {
		return false
	}
	if _, exists := st.watches[label]; !exists {
		return false
	}
	delete(st.watches, label)
	removeFromIndex(r.watchers, label, id)
	return true
}

// WatchersOf returns the sorted ids of connections watching label.
func (r *Registry) WatchersOf(label string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedKeys(r.watchers[label])
}
