package server

import (
	"sync"
)

// Registry is the authoritative map from username to the Session that owns
// it. Entries are added only by a successful CONNECT (after ban and
// uniqueness checks) and removed on disconnect, kick, ban, or heartbeat
// timeout. All reads and writes are serialized under a single lock, and
// claiming a username is a single atomic "insert-if-absent" rather than a
// separate check-then-insert, closing the race where two simultaneous
// CONNECTs for the same name could both "win".
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Session
	banList *BanList
}

// NewRegistry creates an empty registry backed by the given ban list.
func NewRegistry(bans *BanList) *Registry {
	return &Registry{
		byName:  make(map[string]*Session),
		banList: bans,
	}
}

// ClaimResult reports the outcome of a TryClaim call.
type ClaimResult int

const (
	// ClaimOK means the username was free and now belongs to the session.
	ClaimOK ClaimResult = iota
	// ClaimBanned means the username is on the ban list; the caller should
	// reply ERROR and close the session.
	ClaimBanned
	// ClaimTaken means the username is already registered to a live
	// session; the caller should reply ERROR and keep the session open.
	ClaimTaken
)

// TryClaim attempts to register username for sess. The ban check runs first,
// under the ban list's own lock; the uniqueness check and the insert then
// happen as one atomic operation under the registry lock. This is the only
// way entries are added to the registry.
func (r *Registry) TryClaim(username string, sess *Session) ClaimResult {
	// isBanned acquires the ban lock, which is never held alongside the
	// registry lock, so this check happens before we take the registry lock.
	if r.banList.IsBanned(username) {
		return ClaimBanned
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[username]; exists {
		return ClaimTaken
	}
	r.byName[username] = sess
	return ClaimOK
}

// Remove deletes username's registry entry if it still points at sess. It is
// a no-op if the entry is missing or now belongs to a different session
// (e.g. the username was freed and immediately reclaimed).
func (r *Registry) Remove(username string, sess *Session) {
	if username == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byName[username]; ok && cur == sess {
		delete(r.byName, username)
	}
}

// Lookup returns the session registered under username, if any.
func (r *Registry) Lookup(username string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byName[username]
	return sess, ok
}

// Usernames returns every currently registered username, in no particular
// order, for LIST_USERS and /list.
func (r *Registry) Usernames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	return out
}

// Snapshot returns a (username, session) pair for every registered entry.
// Used by the heartbeat supervisor and broadcast fan-out, both of which must
// not hold the registry lock while doing socket I/O: callers take this
// snapshot under the lock, release it, and then act on the copy.
func (r *Registry) Snapshot() []RegistryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RegistryEntry, 0, len(r.byName))
	for name, sess := range r.byName {
		out = append(out, RegistryEntry{Username: name, Session: sess})
	}
	return out
}

// RegistryEntry is one (username, session) pair from a Snapshot.
type RegistryEntry struct {
	Username string
	Session  *Session
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
