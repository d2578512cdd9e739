package app

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"flatwatch/internal/config"
	"flatwatch/internal/dedup"
	"flatwatch/internal/listing"
	"flatwatch/internal/notify"
	"flatwatch/internal/observability"
)

var (
	ErrAlreadyStarted = errors.New("poller already started")
	ErrNotStarted     = errors.New("poller not started")
)

// State — состояние цикла опроса.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ListingSource — один проход по странице результатов.
type ListingSource interface {
	Listings(ctx context.Context) (iter.Seq2[listing.Listing, error], error)
}

// Admitter — проверка, отправка и отметка одной записи.
type Admitter interface {
	Admit(ctx context.Context, rec listing.Listing, send func(context.Context) error) (bool, error)
}

// CycleResult — итог одного цикла. Публикуется ровно один на цикл.
type CycleResult struct {
	ID                  string        `json:"id"`
	Cycle               int           `json:"cycle"`
	StartedAt           time.Time     `json:"started_at"`
	Duration            time.Duration `json:"duration"`
	Seen                int           `json:"seen"`
	Sent                int           `json:"sent"`
	DeliveryFailures    int           `json:"delivery_failures"`
	Err                 error         `json:"-"`
	Kind                FailureKind   `json:"-"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
}

// ThresholdError — опрос остановлен после threshold неудачных циклов подряд.
type ThresholdError struct {
	Failures int
	Last     error
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf("giving up after %d consecutive failed cycles: %v", e.Failures, e.Last)
}

func (e *ThresholdError) Unwrap() error {
	return e.Last
}

type PollerOptions struct {
	Interval         time.Duration
	FailureThreshold int
	ResultsBuffer    int
	Subject          string
	Logger           *observability.Logger
}

type Poller struct {
	source    ListingSource
	dedup     Admitter
	sink      notify.Sink
	renderer  *notify.Renderer
	subject   string
	interval  time.Duration
	threshold int
	logger    *observability.Logger

	results chan CycleResult

	state    atomic.Int32
	failures atomic.Int32
	cycles   atomic.Int64

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	last    *CycleResult
}

func NewPoller(src ListingSource, d Admitter, sink notify.Sink, renderer *notify.Renderer, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = time.Duration(config.DefaultIntervalS) * time.Second
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = config.DefaultFailureThreshold
	}
	if opts.ResultsBuffer < 0 {
		opts.ResultsBuffer = 0
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewNop()
	}
	return &Poller{
		source:    src,
		dedup:     d,
		sink:      sink,
		renderer:  renderer,
		subject:   opts.Subject,
		interval:  opts.Interval,
		threshold: opts.FailureThreshold,
		logger:    opts.Logger,
		results:   make(chan CycleResult, opts.ResultsBuffer),
		done:      make(chan struct{}),
	}
}

// Results — очередь итогов циклов. Закрывается, когда опрос завершён.
// Если владелец не успевает читать, итоги отбрасываются с записью в лог.
func (p *Poller) Results() <-chan CycleResult {
	return p.results
}

func (p *Poller) State() State {
	return State(p.state.Load())
}

func (p *Poller) ConsecutiveFailures() int {
	return int(p.failures.Load())
}

func (p *Poller) Cycles() int64 {
	return p.cycles.Load()
}

// LastResult — итог последнего завершённого цикла, nil до первого.
func (p *Poller) LastResult() *CycleResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return nil
	}
	r := *p.last
	return &r
}

// Start запускает опрос в отдельной горутине. Повторный вызов — ErrAlreadyStarted.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)
	return nil
}

// Stop просит опрос завершиться. Текущий цикл доводится до конца.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// Wait ждёт завершения опроса. nil — остановлен отменой,
// *ThresholdError — слишком много неудачных циклов подряд.
func (p *Poller) Wait() error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return ErrNotStarted
	}

	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)
	defer close(p.results)
	defer p.cancel()

	p.logger.Info("Polling started", "interval", p.interval, "failure_threshold", p.threshold)

	for {
		if ctx.Err() != nil {
			p.stop(nil)
			return
		}

		res := p.runCycle(ctx)
		p.publish(res)

		if res.Err != nil && res.ConsecutiveFailures >= p.threshold {
			p.stop(&ThresholdError{Failures: res.ConsecutiveFailures, Last: res.Err})
			return
		}
		p.state.Store(int32(StateIdle))

		timer := time.NewTimer(p.interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			p.stop(nil)
			return
		}
	}
}

func (p *Poller) stop(err error) {
	p.state.Store(int32(StateStopped))

	p.mu.Lock()
	p.err = err
	p.mu.Unlock()

	if err != nil {
		p.logger.Error("Polling stopped: too many consecutive failures", "failures", p.ConsecutiveFailures(), "error", err)
		return
	}
	p.logger.Info("Polling cancelled", "cycles", p.Cycles())
}

// runCycle выполняет один цикл. Отмена внутри цикла не учитывается:
// она проверяется только между циклами.
func (p *Poller) runCycle(ctx context.Context) CycleResult {
	cycle := int(p.cycles.Add(1))
	res := CycleResult{
		ID:        uuid.NewString(),
		Cycle:     cycle,
		StartedAt: time.Now(),
	}
	p.state.Store(int32(StateRunning))

	err := p.process(context.WithoutCancel(ctx), &res)
	res.Duration = time.Since(res.StartedAt)
	prefix := fmt.Sprintf("[%04d]", cycle)

	if err != nil {
		res.Err = err
		res.Kind = Classify(err)
	}
	// ошибки доставки не считаются неудачей цикла
	if res.Kind.Counted() {
		res.ConsecutiveFailures = int(p.failures.Add(1))
		p.state.Store(int32(StateFailed))
		p.logger.Warn(prefix+" Cycle failed",
			"cycle_id", res.ID,
			"kind", res.Kind.String(),
			"seen", res.Seen,
			"sent", res.Sent,
			"consecutive_failures", res.ConsecutiveFailures,
			"error", err,
		)
		return res
	}

	p.failures.Store(0)
	p.state.Store(int32(StateSucceeded))
	p.logger.Info(prefix+" Cycle completed",
		"cycle_id", res.ID,
		"seen", res.Seen,
		"sent", res.Sent,
		"delivery_failures", res.DeliveryFailures,
		"duration", res.Duration,
	)
	return res
}

func (p *Poller) process(ctx context.Context, res *CycleResult) error {
	seq, err := p.source.Listings(ctx)
	if err != nil {
		return err
	}

	for rec, err := range seq {
		if err != nil {
			return err
		}
		res.Seen++

		sent, err := p.dedup.Admit(ctx, rec, func(ctx context.Context) error {
			return p.sink.Send(ctx, p.subject, p.renderer.Render(rec.Fields()))
		})
		if sent {
			res.Sent++
		}
		if err == nil {
			continue
		}

		var storeErr *dedup.StoreError
		if errors.As(err, &storeErr) {
			return err
		}
		// Не доставлено: запись осталась неизвестной, следующий цикл повторит отправку
		res.DeliveryFailures++
		p.logger.Warn("Notification failed", "id", rec.ID, "link", rec.Link, "error", err)
	}
	return nil
}

func (p *Poller) publish(res CycleResult) {
	p.mu.Lock()
	p.last = &res
	p.mu.Unlock()

	select {
	case p.results <- res:
	default:
		p.logger.Warn("Results queue full, dropping cycle result", "cycle", res.Cycle)
	}
}
