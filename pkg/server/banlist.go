package server

import (
	"bufio"
	"fmt"
	"os"
	"sync"
)

// BanList is the persisted set of usernames forbidden to connect. It has
// its own lock, distinct from the Registry's, and the two are never nested
// in either order. Every mutation rewrites the backing file in full while
// holding the lock, trading efficiency for a dead-simple recovery story:
// the file on disk is always exactly the in-memory set.
type BanList struct {
	mu      sync.Mutex
	path    string
	members map[string]bool
}

// LoadBanList reads path into a BanList, creating an empty one (and an empty
// file) if path doesn't exist yet.
func LoadBanList(path string) (*BanList, error) {
	bl := &BanList{
		path:    path,
		members: make(map[string]bool),
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		if werr := bl.rewriteLocked(); werr != nil {
			return nil, werr
		}
		return bl, nil
	}
	if err != nil {
		return nil, fmt.Errorf("server: open ban list %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := scanner.Text()
		if name == "" {
			continue
		}
		bl.members[name] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("server: read ban list %s: %w", path, err)
	}
	return bl, nil
}

// IsBanned reports whether username is on the ban list.
func (bl *BanList) IsBanned(username string) bool {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	return bl.members[username]
}

// Add bans username, persisting the change. Returns true if username was
// newly added (false if it was already banned).
func (bl *BanList) Add(username string) (bool, error) {
	bl.mu.Lock()
	defer bl.mu.Unlock()

	if bl.members[username] {
		return false, nil
	}
	bl.members[username] = true
	if err := bl.rewriteLocked(); err != nil {
		delete(bl.members, username)
		return false, err
	}
	return true, nil
}

// Remove unbans username, persisting the change. Returns false (and leaves
// the file untouched) if username wasn't banned; unbanning a name that
// isn't banned is not an error.
func (bl *BanList) Remove(username string) (bool, error) {
	bl.mu.Lock()
	defer bl.mu.Unlock()

	if !bl.members[username] {
		return false, nil
	}
	delete(bl.members, username)
	if err := bl.rewriteLocked(); err != nil {
		bl.members[username] = true
		return false, err
	}
	return true, nil
}

// Usernames returns every banned username, in no particular order.
func (bl *BanList) Usernames() []string {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	out := make([]string, 0, len(bl.members))
	for name := range bl.members {
		out = append(out, name)
	}
	return out
}

// rewriteLocked truncates and rewrites the backing file from the in-memory
// set. Callers must hold bl.mu.
func (bl *BanList) rewriteLocked() error {
	f, err := createTruncate(bl.path)
	if err != nil {
		return fmt.Errorf("server: write ban list %s: %w", bl.path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for name := range bl.members {
		if _, err := fmt.Fprintln(w, name); err != nil {
			return fmt.Errorf("server: write ban list %s: %w", bl.path, err)
		}
	}
	return w.Flush()
}
