package i18n

import "sync"

// Cache holds fetched locale maps for the lifetime of a session.
type Cache struct {
	mu      sync.RWMutex
	locales map[string]map[string]string
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{locales: make(map[string]map[string]string)}
}

// Get returns a cached locale map, or nil.
func (c *Cache) Get(locale string) map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.locales[locale]
}

// Put stores a locale map.
func (c *Cache) Put(locale string, translations map[string]string) {
	c.mu.Lock()
	c.locales[locale] = translations
	c.mu.Unlock()
}

// Contains reports whether a locale is cached.
func (c *Cache) Contains(locale string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.locales[locale]
	return ok
}

// Clear drops all cached locales.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.locales = make(map[string]map[string]string)
	c.mu.Unlock()
}
