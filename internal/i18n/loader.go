// Package i18n resolves translated strings for questionnaire labels and
// validation messages. Locale maps are fetched lazily from per-locale URLs,
// cached, and resolved with default-locale fallback; a key that cannot be
// resolved anywhere comes back as itself so rendering never breaks.
package i18n

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Loader fetches the flat string map for one locale.
type Loader interface {
	Load(ctx context.Context, url string) (map[string]string, error)
}

// HTTPLoader fetches locale maps over HTTP. The zero value uses a client
// with a sane timeout.
type HTTPLoader struct {
	Client *http.Client
}

// NewHTTPLoader creates a loader with a default client.
func NewHTTPLoader() *HTTPLoader {
	return &HTTPLoader{Client: &http.Client{Timeout: 10 * time.Second}}
}

// Load implements Loader.
func (l *HTTPLoader) Load(ctx context.Context, url string) (map[string]string, error) {
	client := l.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build translation request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch translations: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch translations: unexpected status %d", res.StatusCode)
	}

	var translations map[string]string
	if err := json.NewDecoder(res.Body).Decode(&translations); err != nil {
		return nil, fmt.Errorf("decode translations: %w", err)
	}
	return translations, nil
}
