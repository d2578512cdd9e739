package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"flatwatch/internal/config"
	"flatwatch/internal/observability"
)

// guard — проверки перед каждым запросом, общие для HTTP и браузерного
// загрузчика: robots.txt и лимит частоты на хост.
type guard struct {
	cfg     *config.Config
	robots  *RobotsCache
	limiter *RateLimiter
	// client нужен только для загрузки robots.txt
	client *http.Client
}

func newGuard(cfg *config.Config, client *http.Client, logger *observability.Logger) *guard {
	return &guard{
		cfg:     cfg,
		robots:  NewRobotsCache(cfg.GetRobotsCacheTTL(), logger),
		limiter: NewRateLimiter(cfg.RateLimit.RPM, cfg.RateLimit.Burst),
		client:  client,
	}
}

// admit разбирает URL, сверяется с robots.txt и ждёт токен лимитера.
// Все ошибки возвращаются как *FetchError без попыток.
func (g *guard) admit(ctx context.Context, urlStr string) (*url.URL, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, &FetchError{URL: urlStr, Err: fmt.Errorf("invalid URL: %w", err)}
	}

	if g.cfg.HTTP.RespectRobots && !g.robots.IsAllowed(ctx, parsedURL, g.cfg.HTTP.UserAgent, g.client) {
		return nil, &FetchError{URL: urlStr, Err: ErrDisallowed}
	}

	if err := g.limiter.Wait(ctx, parsedURL.Host); err != nil {
		return nil, &FetchError{URL: urlStr, Err: fmt.Errorf("rate limit: %w", err)}
	}
	return parsedURL, nil
}
