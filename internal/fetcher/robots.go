package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"flatwatch/internal/observability"
)

type RobotsCache struct {
	cache  map[string]*RobotsTxt
	ttl    time.Duration
	mu     sync.RWMutex
	logger *observability.Logger
}

// RobotsTxt — разобранный robots.txt хоста. data == nil значит «всё разрешено».
type RobotsTxt struct {
	data      *robotstxt.RobotsData
	expiresAt time.Time
}

func NewRobotsCache(ttl time.Duration, logger *observability.Logger) *RobotsCache {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &RobotsCache{
		cache:  make(map[string]*RobotsTxt),
		ttl:    ttl,
		logger: logger,
	}
}

// IsAllowed проверяет target по robots.txt его хоста.
// Недоступный или битый robots.txt трактуется как «всё разрешено».
func (rc *RobotsCache) IsAllowed(ctx context.Context, target *url.URL, userAgent string, client *http.Client) bool {
	host := target.Scheme + "://" + target.Host

	rc.mu.RLock()
	cached, exists := rc.cache[host]
	rc.mu.RUnlock()

	if exists && time.Now().Before(cached.expiresAt) {
		// Cache hit
		return cached.allowed(target.RequestURI(), userAgent)
	}

	robots := &RobotsTxt{expiresAt: time.Now().Add(rc.ttl)}
	if content, ok := rc.fetch(ctx, host+"/robots.txt", userAgent, client); ok {
		data, err := robotstxt.FromBytes(content)
		if err != nil {
			rc.logger.Warn("Failed to parse robots.txt", "host", host, "error", err)
		} else {
			robots.data = data
		}
	}

	// Cache it
	rc.mu.Lock()
	rc.cache[host] = robots
	rc.mu.Unlock()

	return robots.allowed(target.RequestURI(), userAgent)
}

func (rc *RobotsCache) fetch(ctx context.Context, robotsURL, userAgent string, client *http.Client) ([]byte, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, false
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		// Network error: assume allowed
		rc.logger.Debug("robots.txt unavailable", "url", robotsURL, "error", err)
		return nil, false
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			rc.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		// No robots.txt: assume allowed
		return nil, false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return nil, false
	}
	return body, true
}

func (r *RobotsTxt) allowed(path, userAgent string) bool {
	if r.data == nil {
		return true
	}
	return r.data.TestAgent(path, userAgent)
}
