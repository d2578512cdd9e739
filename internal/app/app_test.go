package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flatwatch/internal/config"
	"flatwatch/internal/fetcher"
	"flatwatch/internal/listing"
	"flatwatch/internal/normalize"
	"flatwatch/internal/notify"
	"flatwatch/internal/observability"
	"flatwatch/internal/source"
)

const listingPage = `<html><body>
<div class="immo-preview-group asidemain-container">
	<div class="immo-prev-thumb module"><img src="/img/633.jpg"></div>
	<h3><a href="/wohnungsdetail/?object_id=633">Altbau Zellerau</a></h3>
	<div class="immo-data"><span>Kaltmiete:</span> <span>450 €</span></div>
</div>
<div class="immo-preview-group asidemain-container">
	<div class="immo-prev-thumb module"><img src="/img/634.jpg"></div>
	<h3><a href="/wohnungsdetail/?object_id=634">Dachgeschoss</a></h3>
	<div class="immo-data"><span>Kaltmiete:</span> <span>610 €</span></div>
</div>
</body></html>`

func testAppConfig(t *testing.T, url string, threshold int) *config.Config {
	t.Helper()
	yaml := fmt.Sprintf(`
source:
  url: %q
storage:
  driver: memory
http:
  max_retries: 0
rate_limit:
  rpm: 6000
  burst: 10
backoff:
  min_ms: 1
  max_ms: 5
scheduler:
  interval_s: 1
  failure_threshold: %d
notify:
  dry_run: true
`, url, threshold)
	cfg, err := config.Decode(strings.NewReader(yaml))
	require.NoError(t, err)
	return cfg
}

func TestAppNotifiesNewListings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(listingPage))
	}))
	defer srv.Close()

	a, err := New(context.Background(), testAppConfig(t, srv.URL+"/wohnungssuche/", 3), observability.NewNop())
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return len(a.cache.Known()) == 2 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop after cancel")
	}

	known := a.cache.Known()
	assert.Equal(t, int64(633), known[0].ID)
	assert.Equal(t, srv.URL+"/wohnungsdetail/?object_id=633", known[0].Link)
	assert.Equal(t, "450 €", known[0].Price)
	assert.Equal(t, int64(634), known[1].ID)
}

func TestAppGivesUpAfterThreshold(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	a, err := New(context.Background(), testAppConfig(t, srv.URL, 2), observability.NewNop())
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	sink := &recordingSink{}
	a.sink = sink

	err = a.Run(context.Background())
	var te *ThresholdError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 2, te.Failures)
	assert.Equal(t, KindFetch, Classify(te.Last))

	require.Equal(t, 1, sink.count())
	assert.Equal(t, "Anwendungsfehler", sink.titles[0])
	assert.Contains(t, sink.bodies[0], "zu vielen Fehlern")
}

func TestBuildSink(t *testing.T) {
	cfg := &config.Config{}
	cfg.Notify.DryRun = true
	assert.IsType(t, &notify.LogSink{}, buildSink(cfg, observability.NewNop()))

	cfg.Notify.DryRun = false
	cfg.Notify.SMTP.Host = "smtp.example.org"
	assert.IsType(t, &notify.SMTPSink{}, buildSink(cfg, observability.NewNop()))

	cfg.Notify.Telegram.Token = "t"
	assert.IsType(t, &notify.Multi{}, buildSink(cfg, observability.NewNop()))
}

func TestNewRejectsUnknownLayout(t *testing.T) {
	cfg := testAppConfig(t, "https://example.org", 1)
	cfg.Source.Layout = "grid"
	_, err := New(context.Background(), cfg, observability.NewNop())
	assert.ErrorContains(t, err, "unknown layout")
}

type staticPage string

func (p staticPage) Fetch(_ context.Context, u string) (*fetcher.FetchResponse, error) {
	return &fetcher.FetchResponse{StatusCode: http.StatusOK, Body: []byte(p), URL: u}, nil
}

func TestShippedConfigMatchesShippedLayout(t *testing.T) {
	root := filepath.Join("..", "..")
	cfg, err := config.LoadConfig(filepath.Join(root, "configs", "config.yaml"), "")
	require.NoError(t, err)

	u, err := url.Parse(cfg.Source.URL)
	require.NoError(t, err)
	assert.Equal(t, "www.stadtbau-wuerzburg.de", u.Host)
	assert.Equal(t, "/wohnungssuche/", u.Path)

	layout, err := listing.ResolveLayout(cfg.Source.Layout, filepath.Join(root, cfg.Source.LayoutsFile))
	require.NoError(t, err)

	src, err := source.New(staticPage(listingPage), layout, source.Options{
		URL:        cfg.Source.URL,
		Query:      cfg.Source.Query,
		AllowEmpty: cfg.Source.AllowEmpty,
		Normalizer: normalize.NewNormalizer(cfg.Normalize),
	})
	require.NoError(t, err)

	seq, err := src.Listings(context.Background())
	require.NoError(t, err)
	var ids []int64
	for l, err := range seq {
		require.NoError(t, err)
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []int64{633, 634}, ids)
}
