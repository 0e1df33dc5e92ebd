package store

// Log is an ordered append-only sequence. Entries are never edited, removed
// or reordered; iteration follows insertion order.
type Log[T any] struct {
	items []T
}

// Append adds v at the end of the log.
func (l *Log[T]) Append(v T) {
	l.items = append(l.items, v)
}

// Len returns the number of entries.
func (l *Log[T]) Len() int { return len(l.items) }

// Snapshot returns a copy of the entries; callers may keep it after the lock is released.
func (l *Log[T]) Snapshot() []T {
	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

// Roster is an ordered set of identities: join order is kept and an identity
// appears at most once.
type Roster struct {
	members []string
	index   map[string]struct{}
}

// Add appends user unless already present. It reports whether the roster changed.
func (r *Roster) Add(user string) bool {
	if r.index == nil {
		r.index = make(map[string]struct{})
	}
	if _, ok := r.index[user]; ok {
		return false
	}
	r.index[user] = struct{}{}
	r.members = append(r.members, user)
	return true
}

// Remove drops user keeping the relative order of the rest. It reports whether the roster changed.
func (r *Roster) Remove(user string) bool {
	if _, ok := r.index[user]; !ok {
		return false
	}
	delete(r.index, user)
	for i, m := range r.members {
		if m == user {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
	return true
}

// Has reports whether user is on the roster.
func (r *Roster) Has(user string) bool {
	_, ok := r.index[user]
	return ok
}

// Len returns the number of members.
func (r *Roster) Len() int { return len(r.members) }

// Snapshot returns a copy of the members in join order.
func (r *Roster) Snapshot() []string {
	out := make([]string, len(r.members))
	copy(out, r.members)
	return out
}
