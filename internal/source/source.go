// Package source выполняет один проход по странице результатов: загрузка,
// выбор кандидатов, отсев рекламных карточек и ленивый разбор записей.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"golang.org/x/net/html"

	"flatwatch/internal/fetcher"
	"flatwatch/internal/listing"
	"flatwatch/internal/markup"
	"flatwatch/internal/normalize"
	"flatwatch/internal/observability"
)

var (
	// ErrNoCandidates — выражение выбора ничего не нашло на странице.
	ErrNoCandidates = fmt.Errorf("%w: selection query matched no candidates", listing.ErrMarkupShape)
	// ErrConsumed — последовательность уже была пройдена.
	ErrConsumed = errors.New("listing sequence already consumed")
)

// PageFetcher загружает страницу. Реализуют fetcher.Fetcher и fetcher.RodFetcher.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.FetchResponse, error)
}

type Options struct {
	URL string
	// Query — выражение выбора; пустое значит Query из раскладки.
	Query      string
	AllowEmpty bool
	Normalizer *normalize.Normalizer
	Logger     *observability.Logger
}

type Source struct {
	fetcher    PageFetcher
	layout     listing.Layout
	selector   Selector
	url        string
	allowEmpty bool
	norm       *normalize.Normalizer
	logger     *observability.Logger
}

func New(f PageFetcher, layout listing.Layout, opts Options) (*Source, error) {
	query := opts.Query
	if query == "" {
		query = layout.Query
	}
	sel, err := CompileSelector(query)
	if err != nil {
		return nil, err
	}
	if opts.URL == "" {
		return nil, fmt.Errorf("source url is empty")
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewNop()
	}
	norm := opts.Normalizer
	if norm == nil {
		norm = normalize.Default()
	}
	return &Source{
		fetcher:    f,
		layout:     layout,
		selector:   sel,
		url:        opts.URL,
		allowEmpty: opts.AllowEmpty,
		norm:       norm,
		logger:     logger,
	}, nil
}

// Listings загружает страницу и возвращает ленивую конечную последовательность
// записей в порядке документа. Ошибка загрузки возвращается без изменений.
// Первая ошибка разбора отдаётся последним элементом и прерывает проход.
// Последовательность одноразовая: повторный проход отдаёт ErrConsumed.
func (s *Source) Listings(ctx context.Context) (iter.Seq2[listing.Listing, error], error) {
	resp, err := s.fetcher.Fetch(ctx, s.url)
	if err != nil {
		return nil, err
	}

	root, err := html.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	candidates := s.selector.Select(root)
	s.logger.Debug("Candidates selected", "selector", s.selector.String(), "count", len(candidates))
	if len(candidates) == 0 && !s.allowEmpty {
		return nil, ErrNoCandidates
	}

	base := resp.URL
	if base == "" {
		base = s.url
	}
	parser := listing.NewParser(s.layout, listing.WithBaseURL(base), listing.WithNormalizer(s.norm))

	var used atomic.Bool
	seq := func(yield func(listing.Listing, error) bool) {
		if !used.CompareAndSwap(false, true) {
			yield(listing.Listing{}, ErrConsumed)
			return
		}
		for i, c := range candidates {
			node := markup.Wrap(c)
			if s.sponsored(node) {
				s.logger.Debug("Skipping sponsored candidate", "position", i+1)
				continue
			}
			rec, err := parser.Parse(node)
			if err != nil {
				yield(listing.Listing{}, fmt.Errorf("candidate %d: %w", i+1, err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
	return seq, nil
}

// sponsored ищет маркер рекламы в самом кандидате и во всех его потомках.
func (s *Source) sponsored(node markup.Node) bool {
	if s.layout.Sponsored == "" {
		return false
	}
	return markup.FindByClassToken([]markup.Node{node}, s.layout.Sponsored, true) != nil
}
