package session

import "sync"

// Cache is the session-scoped read-through cache of backend truth (menu
// entries, backend tokens, the sign-in secret). It is never the system of
// record. Purge must
// remove everything belonging to a session in one step: partial purges
// leak the previous user's menu to the next login on a shared device.
type Cache interface {
	StoreMenu(sessionID string, items []string)
	Menu(sessionID string) ([]string, bool)
	HasMenuData(sessionID string) bool
	StoreCredentials(sessionID string, creds Credentials)
	Credentials(sessionID string) (Credentials, bool)
	StoreLogin(sessionID string, login LoginCredentials)
	Login(sessionID string) (LoginCredentials, bool)
	Purge(sessionID string)
}

type cacheEntry struct {
	menu  []string
	creds Credentials
	login LoginCredentials
	has   struct {
		menu  bool
		creds bool
		login bool
	}
}

// MemoryCache implements Cache behind a single lock, so a purge is atomic
// with respect to every reader.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*cacheEntry)}
}

func (c *MemoryCache) entry(sessionID string) *cacheEntry {
	e, ok := c.entries[sessionID]
	if !ok {
		e = &cacheEntry{}
		c.entries[sessionID] = e
	}
	return e
}

func (c *MemoryCache) StoreMenu(sessionID string, items []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(sessionID)
	e.menu = append([]string(nil), items...)
	e.has.menu = true
}

func (c *MemoryCache) Menu(sessionID string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[sessionID]
	if !ok || !e.has.menu {
		return nil, false
	}
	return append([]string(nil), e.menu...), true
}

func (c *MemoryCache) HasMenuData(sessionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[sessionID]
	return ok && e.has.menu
}

func (c *MemoryCache) StoreCredentials(sessionID string, creds Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(sessionID)
	e.creds = creds
	e.has.creds = true
}

func (c *MemoryCache) Credentials(sessionID string) (Credentials, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[sessionID]
	if !ok || !e.has.creds {
		return Credentials{}, false
	}
	return e.creds, true
}

func (c *MemoryCache) StoreLogin(sessionID string, login LoginCredentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(sessionID)
	e.login = login
	e.has.login = true
}

func (c *MemoryCache) Login(sessionID string) (LoginCredentials, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[sessionID]
	if !ok || !e.has.login {
		return LoginCredentials{}, false
	}
	return e.login, true
}

// Purge drops everything stored for the session in one critical section.
func (c *MemoryCache) Purge(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
}
