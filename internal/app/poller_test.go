package app

import (
	"context"
	"errors"
	"iter"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flatwatch/internal/dedup"
	"flatwatch/internal/fetcher"
	"flatwatch/internal/listing"
	"flatwatch/internal/notify"
	"flatwatch/internal/storage"
	"flatwatch/internal/storage/memory"
)

// step — поведение источника в одном цикле.
type step struct {
	recs    []listing.Listing
	err     error // ошибка загрузки
	itemErr error // ошибка разбора после recs
}

type scriptedSource struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (s *scriptedSource) Listings(context.Context) (iter.Seq2[listing.Listing, error], error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()

	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	st := s.steps[i]
	if st.err != nil {
		return nil, st.err
	}
	return func(yield func(listing.Listing, error) bool) {
		for _, r := range st.recs {
			if !yield(r, nil) {
				return
			}
		}
		if st.itemErr != nil {
			yield(listing.Listing{}, st.itemErr)
		}
	}, nil
}

type recordingSink struct {
	mu     sync.Mutex
	err    error
	titles []string
	bodies []string
}

func (s *recordingSink) Send(_ context.Context, title, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	s.bodies = append(s.bodies, body)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.titles)
}

type failingPutRepo struct {
	storage.Repository
	err error
}

func (r failingPutRepo) Put(context.Context, *storage.Marker) (bool, error) {
	return false, r.err
}

func recs(ids ...int64) []listing.Listing {
	out := make([]listing.Listing, 0, len(ids))
	for _, id := range ids {
		out = append(out, listing.Listing{ID: id, Title: "Wohnung " + strconv.FormatInt(id, 10), Link: "https://example.org/expose?object_id=" + strconv.FormatInt(id, 10)})
	}
	return out
}

func newTestPoller(t *testing.T, src ListingSource, d Admitter, sink notify.Sink, threshold int, interval time.Duration) *Poller {
	t.Helper()
	r, err := notify.NewRenderer("")
	require.NoError(t, err)
	return NewPoller(src, d, sink, r, PollerOptions{
		Interval:         interval,
		FailureThreshold: threshold,
		ResultsBuffer:    64,
		Subject:          "Neue Wohnung gefunden",
	})
}

// collect читает итоги, пока stop не вернёт true, затем останавливает опрос
// и дочитывает очередь до закрытия.
func collect(t *testing.T, p *Poller, stop func([]CycleResult) bool) []CycleResult {
	t.Helper()
	var out []CycleResult
	timeout := time.After(5 * time.Second)
	for {
		select {
		case res, ok := <-p.Results():
			if !ok {
				return out
			}
			out = append(out, res)
			if stop != nil && stop(out) {
				p.Stop()
				stop = nil
			}
		case <-timeout:
			t.Fatal("timed out waiting for cycle results")
		}
	}
}

func TestPollerStopsAtThreshold(t *testing.T) {
	fetchErr := &fetcher.FetchError{URL: "https://example.org", StatusCode: 503, Attempts: 3}
	src := &scriptedSource{steps: []step{{err: fetchErr}}}
	p := newTestPoller(t, src, dedup.New(memory.NewRepository(), nil), &recordingSink{}, 3, time.Millisecond)

	require.NoError(t, p.Start(context.Background()))
	results := collect(t, p, nil)
	err := p.Wait()

	var te *ThresholdError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 3, te.Failures)
	assert.ErrorIs(t, err, fetchErr)
	assert.Equal(t, StateStopped, p.State())

	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, i+1, r.Cycle)
		assert.Equal(t, i+1, r.ConsecutiveFailures)
		assert.Equal(t, KindFetch, r.Kind)
		assert.NotEmpty(t, r.ID)
	}
}

func TestPollerResetsCounterAfterCleanCycle(t *testing.T) {
	fetchErr := &fetcher.FetchError{URL: "https://example.org", Attempts: 1, Err: errors.New("connection reset")}
	src := &scriptedSource{steps: []step{{err: fetchErr}, {err: fetchErr}, {recs: recs(1)}}}
	p := newTestPoller(t, src, dedup.New(memory.NewRepository(), nil), &recordingSink{}, 3, time.Millisecond)

	require.NoError(t, p.Start(context.Background()))
	results := collect(t, p, func(rs []CycleResult) bool { return len(rs) == 3 })
	require.NoError(t, p.Wait())

	require.GreaterOrEqual(t, len(results), 3)
	assert.Equal(t, 1, results[0].ConsecutiveFailures)
	assert.Equal(t, 2, results[1].ConsecutiveFailures)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, 0, results[2].ConsecutiveFailures)
	assert.Equal(t, 0, p.ConsecutiveFailures())
	assert.Equal(t, StateStopped, p.State())
}

func TestPollerNotifiesOncePerIdentity(t *testing.T) {
	src := &scriptedSource{steps: []step{{recs: recs(1, 2)}, {recs: recs(2, 3)}}}
	sink := &recordingSink{}
	p := newTestPoller(t, src, dedup.New(memory.NewRepository(), nil), sink, 3, time.Millisecond)

	require.NoError(t, p.Start(context.Background()))
	results := collect(t, p, func(rs []CycleResult) bool { return len(rs) == 3 })
	require.NoError(t, p.Wait())

	assert.Equal(t, 3, sink.count())
	assert.Equal(t, 2, results[0].Sent)
	assert.Equal(t, 1, results[1].Sent)
	assert.Equal(t, 0, results[2].Sent)
	assert.Equal(t, 2, results[2].Seen)

	for _, title := range sink.titles {
		assert.Equal(t, "Neue Wohnung gefunden", title)
	}
	assert.Contains(t, sink.bodies[0], "Wohnung 1")
}

func TestPollerSendFailureIsNotCounted(t *testing.T) {
	src := &scriptedSource{steps: []step{{recs: recs(1, 2)}}}
	sink := &recordingSink{err: &notify.DeliveryError{Sink: "smtp", Err: errors.New("421 try later")}}
	p := newTestPoller(t, src, dedup.New(memory.NewRepository(), nil), sink, 1, time.Millisecond)

	require.NoError(t, p.Start(context.Background()))
	results := collect(t, p, func(rs []CycleResult) bool { return len(rs) == 2 })
	require.NoError(t, p.Wait())

	require.GreaterOrEqual(t, len(results), 2)
	for _, r := range results[:2] {
		assert.NoError(t, r.Err)
		assert.Equal(t, 2, r.DeliveryFailures)
		assert.Equal(t, 0, r.Sent)
		assert.Equal(t, 0, r.ConsecutiveFailures)
	}
	// записи остались неизвестными, поэтому отправка повторяется
	assert.GreaterOrEqual(t, sink.count(), 4)
}

func TestPollerDeliveryKindDoesNotFailCycle(t *testing.T) {
	delivery := &notify.DeliveryError{Sink: "telegram", Err: errors.New("chat not found")}
	src := &scriptedSource{steps: []step{{recs: recs(1), itemErr: delivery}}}
	p := newTestPoller(t, src, dedup.New(memory.NewRepository(), nil), &recordingSink{}, 1, time.Millisecond)

	require.NoError(t, p.Start(context.Background()))
	results := collect(t, p, func(rs []CycleResult) bool { return len(rs) == 2 })
	require.NoError(t, p.Wait())

	require.GreaterOrEqual(t, len(results), 2)
	for _, r := range results[:2] {
		assert.Equal(t, KindDelivery, r.Kind)
		assert.ErrorIs(t, r.Err, delivery)
		assert.Equal(t, 0, r.ConsecutiveFailures)
	}
}

func TestPollerMarkFailureIsCounted(t *testing.T) {
	cause := errors.New("read-only file system")
	cache := dedup.New(failingPutRepo{Repository: memory.NewRepository(), err: cause}, nil)
	src := &scriptedSource{steps: []step{{recs: recs(7, 8)}}}
	sink := &recordingSink{}
	p := newTestPoller(t, src, cache, sink, 1, time.Millisecond)

	require.NoError(t, p.Start(context.Background()))
	results := collect(t, p, nil)
	err := p.Wait()

	var se *dedup.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, int64(7), se.ID)
	require.Len(t, results, 1)
	assert.Equal(t, KindStore, results[0].Kind)
	assert.Equal(t, 1, results[0].Sent)
	assert.Equal(t, 1, sink.count())
}

func TestPollerAbortsCycleOnParseError(t *testing.T) {
	idErr := &listing.IdentityFormatError{Link: "/expose?object_id=abc", Param: "object_id", Err: strconv.ErrSyntax}
	src := &scriptedSource{steps: []step{{recs: recs(1), itemErr: idErr}}}
	sink := &recordingSink{}
	p := newTestPoller(t, src, dedup.New(memory.NewRepository(), nil), sink, 1, time.Millisecond)

	require.NoError(t, p.Start(context.Background()))
	results := collect(t, p, nil)

	var te *ThresholdError
	require.ErrorAs(t, p.Wait(), &te)
	require.Len(t, results, 1)
	assert.Equal(t, KindIdentity, results[0].Kind)
	assert.Equal(t, 1, results[0].Seen)
	assert.Equal(t, 1, sink.count())
}

func TestPollerCancelDuringWait(t *testing.T) {
	src := &scriptedSource{steps: []step{{recs: recs(1)}}}
	p := newTestPoller(t, src, dedup.New(memory.NewRepository(), nil), &recordingSink{}, 3, time.Hour)

	require.NoError(t, p.Start(context.Background()))
	results := collect(t, p, func(rs []CycleResult) bool { return len(rs) == 1 })

	require.NoError(t, p.Wait())
	assert.Len(t, results, 1)
	assert.Equal(t, StateStopped, p.State())
	assert.Equal(t, int64(1), p.Cycles())
	require.NotNil(t, p.LastResult())
	assert.Equal(t, 1, p.LastResult().Sent)
}

func TestPollerCancelledBeforeFirstCycle(t *testing.T) {
	src := &scriptedSource{steps: []step{{recs: recs(1)}}}
	p := newTestPoller(t, src, dedup.New(memory.NewRepository(), nil), &recordingSink{}, 3, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Start(ctx))

	assert.Empty(t, collect(t, p, nil))
	require.NoError(t, p.Wait())
	assert.Equal(t, int64(0), p.Cycles())
}

func TestPollerControlErrors(t *testing.T) {
	src := &scriptedSource{steps: []step{{recs: recs(1)}}}
	p := newTestPoller(t, src, dedup.New(memory.NewRepository(), nil), &recordingSink{}, 3, time.Hour)

	assert.ErrorIs(t, p.Wait(), ErrNotStarted)
	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyStarted)

	p.Stop()
	collect(t, p, nil)
	require.NoError(t, p.Wait())
}

func TestPollerDropsResultsWhenQueueFull(t *testing.T) {
	r, err := notify.NewRenderer("")
	require.NoError(t, err)
	fetchErr := &fetcher.FetchError{URL: "https://example.org", StatusCode: 500}
	p := NewPoller(&scriptedSource{steps: []step{{err: fetchErr}}}, dedup.New(memory.NewRepository(), nil), &recordingSink{}, r, PollerOptions{
		Interval:         time.Millisecond,
		FailureThreshold: 5,
		ResultsBuffer:    1,
	})

	require.NoError(t, p.Start(context.Background()))
	var te *ThresholdError
	require.ErrorAs(t, p.Wait(), &te)

	var got []CycleResult
	for res := range p.Results() {
		got = append(got, res)
	}
	assert.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Cycle)
	assert.Equal(t, 5, p.LastResult().Cycle)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureKind
	}{
		{"nil", nil, KindNone},
		{"fetch", &fetcher.FetchError{URL: "u", StatusCode: 502}, KindFetch},
		{"robots", &fetcher.FetchError{URL: "u", Err: fetcher.ErrDisallowed}, KindFetch},
		{"format mismatch", listing.ErrFormatMismatch, KindMarkupShape},
		{"wrapped anchor", errors.Join(errors.New("candidate 2"), listing.ErrMissingAnchor), KindMarkupShape},
		{"identity", &listing.IdentityFormatError{Link: "l", Param: "object_id", Err: strconv.ErrSyntax}, KindIdentity},
		{"store", &dedup.StoreError{ID: 1, Err: errors.New("disk")}, KindStore},
		{"delivery", &notify.DeliveryError{Sink: "smtp", Err: errors.New("x")}, KindDelivery},
		{"cancelled", context.Canceled, KindCancelled},
		{"other", errors.New("boom"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.False(t, KindDelivery.Counted())
	assert.True(t, KindStore.Counted())
}
