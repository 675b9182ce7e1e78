package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/chordsheet-resolver/internal/render"
)

// Extractor reads a typed result out of a rendered document.
type Extractor[T any] func(doc *goquery.Document) (T, error)

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Observer receives per-attempt outcomes. Outcome is "success" or "failure".
type Observer interface {
	ObserveAttempt(strategy, outcome string)
	ObserveExhausted()
}

// Config controls a Loader.
type Config struct {
	Strategies   []Strategy
	Backoff      Backoff
	ReadyTimeout time.Duration
}

// Loader is a RetryingPageLoader bound to one strategy set.
type Loader struct {
	cfg      Config
	logger   *zap.Logger
	sleep    Sleeper
	observer Observer
}

// Option customizes a Loader.
type Option func(*Loader)

// WithSleeper replaces the context-aware timer sleep (tests).
func WithSleeper(s Sleeper) Option {
	return func(l *Loader) { l.sleep = s }
}

// WithObserver attaches an attempt observer (metrics).
func WithObserver(o Observer) Option {
	return func(l *Loader) { l.observer = o }
}

// New validates cfg and builds a Loader.
func New(cfg Config, logger *zap.Logger, opts ...Option) (*Loader, error) {
	if err := ValidateStrategies(cfg.Strategies); err != nil {
		return nil, err
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loader{cfg: cfg, logger: logger, sleep: sleepContext}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Strategies returns a copy of the configured strategy set.
func (l *Loader) Strategies() []Strategy {
	return append([]Strategy(nil), l.cfg.Strategies...)
}

// Load renders url into page with each strategy in turn and returns the
// first successful extraction. ctx is checked before every attempt and
// interrupts the backoff sleep.
func Load[T any](ctx context.Context, l *Loader, page render.Page, url string, extract Extractor[T]) (T, error) {
	var zero T
	plan := NewPlan(l.cfg.Strategies, l.cfg.Backoff)
	strategy, ok := plan.Start()
	for ok {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("load %s: %w", url, err)
		}
		_, index := plan.Current()
		result, err := attempt(ctx, l, page, url, strategy, extract)
		if err == nil {
			plan.Succeed()
			l.observe(strategy.Name, "success")
			if index > 0 {
				l.logger.Info("page loaded after escalation",
					zap.String("url", url), zap.String("strategy", strategy.Name), zap.Int("attempt", index+1))
			}
			return result, nil
		}
		l.observe(strategy.Name, "failure")
		l.logger.Warn("page load attempt failed",
			zap.String("url", url),
			zap.String("strategy", strategy.Name),
			zap.Int("attempt", index+1),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			return zero, fmt.Errorf("load %s: %w", url, ctx.Err())
		}

		var delay time.Duration
		strategy, delay, ok = plan.Fail(err)
		if !ok {
			break
		}
		if err := l.sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("load %s: backoff interrupted: %w", url, err)
		}
	}

	exhausted := plan.Exhausted(url)
	if l.observer != nil {
		l.observer.ObserveExhausted()
	}
	l.logger.Error("all load strategies failed",
		zap.String("url", url),
		zap.Int("attempts", len(exhausted.Attempts)),
		zap.Error(exhausted.Last),
	)
	return zero, exhausted
}

func attempt[T any](
	ctx context.Context,
	l *Loader,
	page render.Page,
	url string,
	s Strategy,
	extract Extractor[T],
) (T, error) {
	var zero T
	resp, err := page.Navigate(ctx, url, s.Wait, s.Timeout)
	if err != nil {
		return zero, err
	}
	if err := resp.Err(); err != nil {
		return zero, err
	}
	if err := l.sleep(ctx, s.Settle); err != nil {
		return zero, fmt.Errorf("settle: %w", err)
	}
	if err := page.WaitReady(ctx, l.cfg.ReadyTimeout); err != nil {
		l.logger.Debug("readiness signal missing", zap.String("url", url), zap.Error(err))
	}
	doc, err := page.Document(ctx)
	if err != nil {
		return zero, err
	}
	result, err := extract(doc)
	if err != nil {
		return zero, fmt.Errorf("extract: %w", err)
	}
	return result, nil
}

func (l *Loader) observe(strategy, outcome string) {
	if l.observer != nil {
		l.observer.ObserveAttempt(strategy, outcome)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
