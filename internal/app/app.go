// Package app собирает зависимости из конфига и управляет циклом опроса.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"flatwatch/internal/config"
	"flatwatch/internal/dedup"
	"flatwatch/internal/fetcher"
	"flatwatch/internal/listing"
	"flatwatch/internal/normalize"
	"flatwatch/internal/notify"
	"flatwatch/internal/observability"
	"flatwatch/internal/source"
	"flatwatch/internal/storage"
	"flatwatch/internal/storage/file"
	"flatwatch/internal/storage/memory"
	"flatwatch/internal/storage/mssql"
	"flatwatch/internal/storage/mysql"
	"flatwatch/internal/storage/postgres"
)

const alertTimeout = 30 * time.Second

type App struct {
	cfg     *config.Config
	logger  *observability.Logger
	cache   *dedup.Cache
	sink    notify.Sink
	poller  *Poller
	status  *http.Server
	closers []io.Closer
}

// New строит приложение по конфигу. При ошибке уже открытые ресурсы закрываются.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger) (_ *App, err error) {
	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	layout, err := listing.ResolveLayout(cfg.Source.Layout, cfg.Source.LayoutsFile)
	if err != nil {
		return nil, err
	}

	var pf source.PageFetcher
	if cfg.Rod.Enabled {
		rf := fetcher.NewRodFetcher(cfg, logger.Named("rod"))
		a.closers = append(a.closers, rf)
		pf = rf
	} else {
		pf = fetcher.NewFetcher(cfg, logger.Named("fetcher"))
	}

	src, err := source.New(pf, layout, source.Options{
		URL:        cfg.Source.URL,
		Query:      cfg.Source.Query,
		AllowEmpty: cfg.Source.AllowEmpty,
		Normalizer: normalize.NewNormalizer(cfg.Normalize),
		Logger:     logger.Named("source"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build source: %w", err)
	}

	repo, err := openRepository(ctx, cfg, logger.Named("storage"))
	if err != nil {
		return nil, err
	}
	a.cache = dedup.New(repo, logger.Named("dedup"))
	a.closers = append(a.closers, a.cache)

	renderer, err := notify.NewRenderer(cfg.Notify.TemplateFile)
	if err != nil {
		return nil, err
	}
	a.sink = buildSink(cfg, logger.Named("notify"))

	a.poller = NewPoller(src, a.cache, a.sink, renderer, PollerOptions{
		Interval:         cfg.GetSchedulerInterval(),
		FailureThreshold: cfg.Scheduler.FailureThreshold,
		ResultsBuffer:    cfg.Scheduler.ResultsBuffer,
		Subject:          cfg.Notify.Subject,
		Logger:           logger.Named("poller"),
	})

	if cfg.Status.Addr != "" {
		a.status = &http.Server{
			Addr:              cfg.Status.Addr,
			Handler:           NewStatusHandler(a.poller, a.cache),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	logger.Info("Application configured",
		"url", cfg.Source.URL,
		"layout", layout.Name,
		"storage", cfg.Storage.Driver,
		"rod", cfg.Rod.Enabled,
		"dry_run", cfg.Notify.DryRun,
	)
	return a, nil
}

func (a *App) Poller() *Poller {
	return a.poller
}

// Run крутит опрос до отмены ctx или до превышения порога ошибок.
// Во втором случае отправляется письмо об остановке и возвращается *ThresholdError.
func (a *App) Run(ctx context.Context) error {
	if a.status != nil {
		go func() {
			a.logger.Info("Status API listening", "addr", a.status.Addr)
			if err := a.status.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("Status API failed", "error", err)
			}
		}()
		defer a.shutdownStatus()
	}

	if err := a.poller.Start(ctx); err != nil {
		return err
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for res := range a.poller.Results() {
			a.logger.Debug("Cycle result", "cycle", res.Cycle, "id", res.ID, "kind", res.Kind.String(), "sent", res.Sent)
		}
	}()

	err := a.poller.Wait()
	<-drained

	var te *ThresholdError
	if errors.As(err, &te) {
		a.sendGivingUp(te)
	}
	return err
}

// sendGivingUp — попытка сообщить об остановке; сбой только логируется.
func (a *App) sendGivingUp(cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), alertTimeout)
	defer cancel()

	if err := a.sink.Send(ctx, a.cfg.Notify.ErrorSubject, notify.RenderFailure(cause)); err != nil {
		a.logger.Error("Failed to send giving-up notification", "error", err)
		return
	}
	a.logger.Info("Giving-up notification sent")
}

func (a *App) shutdownStatus() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.status.Shutdown(ctx); err != nil {
		a.logger.Warn("Status API shutdown failed", "error", err)
	}
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func openRepository(ctx context.Context, cfg *config.Config, logger *observability.Logger) (storage.Repository, error) {
	sc := cfg.Storage
	switch sc.Driver {
	case "file":
		return file.NewRepository(sc.Path, logger)
	case "memory":
		return memory.NewRepository(), nil
	case "mssql":
		return mssql.NewRepository(sc.DSN, sc.Table, cfg.GetCommandTimeout(), logger)
	case "postgres":
		return postgres.NewRepository(ctx, sc.DSN, sc.Table, cfg.GetCommandTimeout())
	case "mysql":
		return mysql.NewRepository(sc.DSN, sc.Table, cfg.GetCommandTimeout())
	default:
		return nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
	}
}

func buildSink(cfg *config.Config, logger *observability.Logger) notify.Sink {
	if cfg.Notify.DryRun {
		return notify.NewLogSink(logger)
	}

	var sinks []notify.Sink
	if cfg.Notify.SMTP.Host != "" {
		sinks = append(sinks, notify.NewSMTPSink(cfg.Notify.SMTP))
	}
	if cfg.Notify.Telegram.Token != "" {
		sinks = append(sinks, notify.NewTelegramSink(cfg.Notify.Telegram, nil))
	}
	if len(sinks) == 1 {
		return sinks[0]
	}
	return notify.NewMulti(logger, sinks...)
}
