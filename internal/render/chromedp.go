package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ChromedpConfig controls the headless Chrome engine.
type ChromedpConfig struct {
	Headless  bool
	UserAgent string
}

// ChromedpEngine renders pages with JavaScript in a shared headless Chrome.
type ChromedpEngine struct {
	cfg           ChromedpConfig
	logger        *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// ChromedpFactory returns an EngineFactory that launches Chrome on demand.
func ChromedpFactory(cfg ChromedpConfig, logger *zap.Logger) EngineFactory {
	return func(ctx context.Context) (Engine, error) {
		return NewChromedpEngine(ctx, cfg, logger)
	}
}

// NewChromedpEngine launches Chrome and waits for the first target.
func NewChromedpEngine(ctx context.Context, cfg ChromedpConfig, logger *zap.Logger) (*ChromedpEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	// The allocator outlives ctx; only the warmup honors it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(logger.Sugar().Errorf),
	)
	stop := forwardCancel(ctx, browserCancel)
	err := chromedp.Run(browserCtx)
	stop()
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return &ChromedpEngine{
		cfg:           cfg,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// NewPage opens a new tab.
func (e *ChromedpEngine) NewPage(ctx context.Context) (Page, error) {
	tabCtx, cancel := chromedp.NewContext(e.browserCtx)
	watch := newLifecycleWatch()
	chromedp.ListenTarget(tabCtx, watch.captureEvent)

	stop := forwardCancel(ctx, cancel)
	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return fmt.Errorf("enable lifecycle events: %w", err)
		}
		if e.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(e.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	}))
	stop()
	if err != nil {
		cancel()
		return nil, classifyChromedpErr(fmt.Errorf("open tab: %w", err))
	}
	return &chromedpPage{ctx: tabCtx, cancel: cancel, watch: watch}, nil
}

// Close shuts Chrome down.
func (e *ChromedpEngine) Close() error {
	err := chromedp.Cancel(e.browserCtx)
	e.browserCancel()
	e.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("cancel browser: %w", err)
	}
	return nil
}

type chromedpPage struct {
	ctx    context.Context
	cancel context.CancelFunc
	watch  *lifecycleWatch
}

func (p *chromedpPage) Navigate(ctx context.Context, rawURL string, wait WaitCondition, timeout time.Duration) (Response, error) {
	taskCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	var resp Response
	err := chromedp.Run(taskCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, loaderID, errText, _, err := page.Navigate(rawURL).Do(ctx)
		if err != nil {
			return err
		}
		if errText != "" {
			return navigationError(rawURL, errText)
		}
		if loaderID == "" {
			// same-document navigation: nothing to wait for
			resp = Response{URL: rawURL}
			return nil
		}
		if err := p.watch.wait(ctx, loaderID, lifecycleName(wait)); err != nil {
			return err
		}
		resp = p.watch.response(loaderID, rawURL)
		return nil
	}))
	if err != nil {
		return Response{}, classifyChromedpErr(fmt.Errorf("navigate %s: %w", rawURL, err))
	}
	return resp, nil
}

func (p *chromedpPage) WaitReady(ctx context.Context, timeout time.Duration) error {
	taskCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()
	if err := chromedp.Run(taskCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return classifyChromedpErr(fmt.Errorf("wait ready: %w", err))
	}
	return nil
}

func (p *chromedpPage) Document(ctx context.Context) (*goquery.Document, error) {
	taskCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	var html string
	if err := chromedp.Run(taskCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, classifyChromedpErr(fmt.Errorf("snapshot dom: %w", err))
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse dom: %w", err)
	}
	return doc, nil
}

func (p *chromedpPage) Close() error {
	p.cancel()
	return nil
}

func lifecycleName(wait WaitCondition) string {
	switch wait {
	case WaitLoad:
		return "load"
	case WaitNetworkIdle:
		return "networkIdle"
	default:
		return "DOMContentLoaded"
	}
}

// lifecycleWatch records lifecycle milestones and main document responses
// per loader, so a navigation only ever waits on its own events.
type lifecycleWatch struct {
	mu        sync.Mutex
	seen      map[cdp.LoaderID]map[string]bool
	responses map[cdp.LoaderID]Response
	notify    chan struct{}
}

func newLifecycleWatch() *lifecycleWatch {
	return &lifecycleWatch{
		seen:      make(map[cdp.LoaderID]map[string]bool),
		responses: make(map[cdp.LoaderID]Response),
		notify:    make(chan struct{}, 1),
	}
}

func (w *lifecycleWatch) captureEvent(ev any) {
	switch e := ev.(type) {
	case *page.EventLifecycleEvent:
		w.mark(e.LoaderID, e.Name)
	case *network.EventResponseReceived:
		if e.Type != network.ResourceTypeDocument || e.Response == nil {
			return
		}
		w.mu.Lock()
		w.responses[e.LoaderID] = Response{
			URL:        e.Response.URL,
			StatusCode: int(e.Response.Status),
			Headers:    toHTTPHeader(e.Response.Headers),
		}
		w.mu.Unlock()
	}
}

func (w *lifecycleWatch) mark(loaderID cdp.LoaderID, name string) {
	w.mu.Lock()
	names, ok := w.seen[loaderID]
	if !ok {
		names = make(map[string]bool)
		w.seen[loaderID] = names
	}
	names[name] = true
	w.mu.Unlock()
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *lifecycleWatch) has(loaderID cdp.LoaderID, name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seen[loaderID][name]
}

func (w *lifecycleWatch) wait(ctx context.Context, loaderID cdp.LoaderID, name string) error {
	for !w.has(loaderID, name) {
		select {
		case <-w.notify:
		case <-ctx.Done():
			return fmt.Errorf("wait for %s: %w", name, ctx.Err())
		}
	}
	return nil
}

func (w *lifecycleWatch) response(loaderID cdp.LoaderID, fallbackURL string) Response {
	w.mu.Lock()
	defer w.mu.Unlock()
	resp, ok := w.responses[loaderID]
	if !ok {
		return Response{URL: fallbackURL}
	}
	if resp.URL == "" {
		resp.URL = fallbackURL
	}
	return resp
}

func navigationError(rawURL, errText string) error {
	err := fmt.Errorf("navigation to %s failed: %s", rawURL, errText)
	if IsConnectionClosed(err) {
		return fmt.Errorf("%w: %s", ErrConnectionClosed, errText)
	}
	if strings.Contains(errText, "ERR_TIMED_OUT") {
		return fmt.Errorf("%s: %w", errText, context.DeadlineExceeded)
	}
	return err
}

func classifyChromedpErr(err error) error {
	if err == nil || errors.Is(err, ErrConnectionClosed) {
		return err
	}
	if errors.Is(err, chromedp.ErrChannelClosed) || errors.Is(err, chromedp.ErrInvalidTarget) ||
		errors.Is(err, chromedp.ErrInvalidContext) {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) && IsConnectionClosed(err) {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	return err
}

func toHTTPHeader(src network.Headers) http.Header {
	headers := http.Header{}
	for key, value := range src {
		switch v := value.(type) {
		case string:
			for _, line := range strings.Split(v, "\n") {
				headers.Add(key, line)
			}
		case []any:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	return headers
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
