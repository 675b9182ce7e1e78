package render

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options tunes the Browser resource manager.
type Options struct {
	// MaxPages bounds concurrently open pages. Values <= 0 mean 1.
	MaxPages int
	// DomainQPS bounds navigations per second per host. 0 disables the budget.
	DomainQPS float64
	// Observer, when set, receives page occupancy and budget waits.
	Observer Observer
}

// Observer receives renderer usage (metrics).
type Observer interface {
	PageOpened()
	PageClosed()
	ObserveBudgetWait(host string, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) PageOpened()                             {}
func (nopObserver) PageClosed()                             {}
func (nopObserver) ObserveBudgetWait(string, time.Duration) {}

// Browser is the process-wide page renderer. The engine starts lazily on the
// first WithPage call and is torn down by Close.
type Browser struct {
	factory  EngineFactory
	logger   *zap.Logger
	sem      chan struct{}
	qps      float64
	observer Observer

	mu      sync.Mutex
	engine  Engine
	closed  bool
	started time.Time

	domainLimiters sync.Map
}

// NewBrowser wraps factory in a Browser. Nothing is started until first use.
func NewBrowser(factory EngineFactory, opts Options, logger *zap.Logger) *Browser {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Browser{
		factory:  factory,
		logger:   logger,
		sem:      make(chan struct{}, maxPages),
		qps:      opts.DomainQPS,
		observer: observer,
	}
}

// WithPage checks out a page, runs fn with it, and closes the page on every
// exit path.
func (b *Browser) WithPage(ctx context.Context, fn func(ctx context.Context, page Page) error) error {
	release, err := b.acquireSlot(ctx)
	if err != nil {
		return err
	}
	defer release()

	engine, err := b.ensureEngine(ctx)
	if err != nil {
		return err
	}
	page, err := engine.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	b.observer.PageOpened()
	defer func() {
		b.observer.PageClosed()
		if cerr := page.Close(); cerr != nil {
			b.logger.Warn("close page failed", zap.Error(cerr))
		}
	}()

	return fn(ctx, &budgetedPage{Page: page, browser: b})
}

// Started reports whether the engine has been started and not yet closed.
func (b *Browser) Started() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.engine != nil && !b.closed
}

// Close shuts the engine down. Later WithPage calls fail with ErrBrowserClosed.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.engine == nil {
		return nil
	}
	b.logger.Info("closing renderer", zap.Duration("uptime", time.Since(b.started)))
	err := b.engine.Close()
	b.engine = nil
	if err != nil {
		return fmt.Errorf("close engine: %w", err)
	}
	return nil
}

func (b *Browser) ensureEngine(ctx context.Context) (Engine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrowserClosed
	}
	if b.engine != nil {
		return b.engine, nil
	}
	engine, err := b.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("start renderer: %w", err)
	}
	b.engine = engine
	b.started = time.Now()
	b.logger.Info("renderer started")
	return engine, nil
}

func (b *Browser) acquireSlot(ctx context.Context) (func(), error) {
	select {
	case b.sem <- struct{}{}:
		return func() { <-b.sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire page slot: %w", ctx.Err())
	}
}

func (b *Browser) waitDomainBudget(ctx context.Context, rawURL string) error {
	if b.qps <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse navigation url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := b.domainLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(b.qps), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait domain budget: %w", err)
	}
	b.observer.ObserveBudgetWait(host, time.Since(start))
	return nil
}

// budgetedPage applies the per-host navigation budget before delegating.
type budgetedPage struct {
	Page
	browser *Browser
}

func (p *budgetedPage) Navigate(ctx context.Context, rawURL string, wait WaitCondition, timeout time.Duration) (Response, error) {
	if err := p.browser.waitDomainBudget(ctx, rawURL); err != nil {
		return Response{}, err
	}
	return p.Page.Navigate(ctx, rawURL, wait, timeout)
}

// IsConnectionClosed reports whether err looks like a dropped renderer or
// origin connection.
func IsConnectionClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectionClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range closedMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

var closedMarkers = []string{
	"connection closed",
	"connection reset",
	"target closed",
	"channel closed",
	"websocket: close",
	"err_connection_closed",
	"err_connection_reset",
	"err_empty_response",
	"eof",
}
