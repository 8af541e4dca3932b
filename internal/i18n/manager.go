package i18n

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ellykits/lite-quest/internal/questionnaire"
)

// Manager resolves translation keys for one questionnaire's translation
// descriptor. Resolution falls back from the requested locale to the default
// locale's map, and finally to the raw key; it never fails the caller.
type Manager struct {
	translations questionnaire.Translations
	loader       Loader
	cache        *Cache

	mu      sync.RWMutex
	current string
}

// NewManager creates a manager; a nil loader defaults to HTTP fetching.
func NewManager(t questionnaire.Translations, loader Loader) *Manager {
	if loader == nil {
		loader = NewHTTPLoader()
	}
	return &Manager{
		translations: t,
		loader:       loader,
		cache:        NewCache(),
		current:      t.DefaultLocale,
	}
}

// LoadLocale fetches (or returns the cached) string map for a locale.
func (m *Manager) LoadLocale(ctx context.Context, locale string) (map[string]string, error) {
	if cached := m.cache.Get(locale); cached != nil {
		return cached, nil
	}

	url, ok := m.translations.Sources[locale]
	if !ok {
		return nil, fmt.Errorf("no translation source for locale %q", locale)
	}

	translations, err := m.loader.Load(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("load locale %q: %w", locale, err)
	}
	m.cache.Put(locale, translations)
	return translations, nil
}

// SetLocale switches the current locale after loading it.
func (m *Manager) SetLocale(ctx context.Context, locale string) error {
	if _, err := m.LoadLocale(ctx, locale); err != nil {
		return err
	}
	m.mu.Lock()
	m.current = locale
	m.mu.Unlock()
	return nil
}

// CurrentLocale returns the active locale.
func (m *Manager) CurrentLocale() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Resolve looks a key up in the given locale (current locale when empty),
// falling back to the default locale and then to the key itself.
func (m *Manager) Resolve(ctx context.Context, key, locale string) string {
	if locale == "" {
		locale = m.CurrentLocale()
	}

	if value, ok := m.lookup(ctx, key, locale); ok {
		return value
	}

	if locale != m.translations.DefaultLocale {
		if value, ok := m.lookup(ctx, key, m.translations.DefaultLocale); ok {
			return value
		}
	}

	return key
}

func (m *Manager) lookup(ctx context.Context, key, locale string) (string, bool) {
	translations := m.cache.Get(locale)
	if translations == nil {
		loaded, err := m.LoadLocale(ctx, locale)
		if err != nil {
			return "", false
		}
		translations = loaded
	}
	value, ok := translations[key]
	return value, ok
}

// Interpolate substitutes {placeholder} markers with the given values; a nil
// value becomes the empty string.
func (m *Manager) Interpolate(template string, values map[string]any) string {
	result := template
	for key, value := range values {
		replacement := ""
		if value != nil {
			replacement = fmt.Sprint(value)
		}
		result = strings.ReplaceAll(result, "{"+key+"}", replacement)
	}
	return result
}

// ResolveAndInterpolate resolves a key and applies placeholder substitution
// in one step.
func (m *Manager) ResolveAndInterpolate(ctx context.Context, key string, values map[string]any) string {
	return m.Interpolate(m.Resolve(ctx, key, ""), values)
}
