package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"flatwatch/internal/config"
	"flatwatch/internal/observability"
)

// RodFetcher загружает страницу в headless-браузере, для сайтов,
// которые дорисовывают список объявлений скриптами. robots.txt и лимит
// частоты соблюдаются так же, как в Fetcher.
type RodFetcher struct {
	cfg      *config.Config
	logger   *observability.Logger
	guard    *guard
	launcher *launcher.Launcher
	browser  *rod.Browser
	mu       sync.Mutex
}

func NewRodFetcher(cfg *config.Config, logger *observability.Logger) *RodFetcher {
	if logger == nil {
		logger = observability.NewNop()
	}
	return &RodFetcher{
		cfg:    cfg,
		logger: logger,
		guard:  newGuard(cfg, newHTTPClient(cfg), logger),
	}
}

// connect запускает браузер при первом обращении.
func (r *RodFetcher) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New().Headless(true)
	if r.cfg.Rod.ChromePath != "" {
		l = l.Bin(r.cfg.Rod.ChromePath)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	r.logger.Info("Headless browser started", "control_url", controlURL)
	r.launcher = l
	r.browser = browser
	return browser, nil
}

func (r *RodFetcher) Fetch(ctx context.Context, urlStr string) (*FetchResponse, error) {
	// проверки до запуска браузера
	if _, err := r.guard.admit(ctx, urlStr); err != nil {
		return nil, err
	}

	browser, err := r.connect()
	if err != nil {
		return nil, &FetchError{URL: urlStr, Attempts: 1, Err: err}
	}

	page, err := browser.Context(ctx).Timeout(r.cfg.GetRodPageTimeout()).Page(proto.TargetCreateTarget{URL: urlStr})
	if err != nil {
		return nil, &FetchError{URL: urlStr, Attempts: 1, Err: fmt.Errorf("open page: %w", err)}
	}
	defer func() {
		if err := page.Close(); err != nil {
			r.logger.Warn("Failed to close page", "error", err)
		}
	}()

	if err := page.Timeout(r.cfg.GetRodWaitLoadTimeout()).WaitLoad(); err != nil {
		return nil, &FetchError{URL: urlStr, Attempts: 1, Err: fmt.Errorf("wait load: %w", err)}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, &FetchError{URL: urlStr, Attempts: 1, Err: fmt.Errorf("read html: %w", err)}
	}

	r.logger.Debug("Page rendered", "url", urlStr, "size", len(html))

	return &FetchResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(html),
		URL:        urlStr,
	}, nil
}

// Close закрывает браузер, если он был запущен.
func (r *RodFetcher) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.launcher.Kill()
	r.browser, r.launcher = nil, nil
	return err
}
