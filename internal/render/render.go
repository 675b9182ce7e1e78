// Package render owns the page renderer: a lazily started engine (headless
// Chrome or a static HTTP collector) that hands out one page per logical fetch.
package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// WaitCondition is the navigation milestone a page load waits for.
type WaitCondition string

// Supported wait conditions, from least to most patient.
const (
	WaitDOMContentLoaded WaitCondition = "domcontentloaded"
	WaitLoad             WaitCondition = "load"
	WaitNetworkIdle      WaitCondition = "networkidle"
)

// ParseWaitCondition maps a config string onto a WaitCondition.
func ParseWaitCondition(raw string) (WaitCondition, error) {
	switch w := WaitCondition(strings.ToLower(strings.TrimSpace(raw))); w {
	case WaitDOMContentLoaded, WaitLoad, WaitNetworkIdle:
		return w, nil
	default:
		return "", fmt.Errorf("unknown wait condition %q", raw)
	}
}

var (
	// ErrConnectionClosed indicates the renderer lost its connection to the
	// page or the origin hung up mid-navigation.
	ErrConnectionClosed = errors.New("renderer connection closed")
	// ErrBadStatus indicates the main document returned a non-2xx status.
	ErrBadStatus = errors.New("unexpected http status")
	// ErrBrowserClosed is returned by WithPage after Close.
	ErrBrowserClosed = errors.New("browser closed")
)

// Response describes the main document response of a navigation.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
}

// OK reports whether the status is 2xx. A zero status means the engine could
// not observe it (served from cache, same-document navigation) and counts as OK.
func (r Response) OK() bool {
	return r.StatusCode == 0 || (r.StatusCode >= 200 && r.StatusCode < 300)
}

// Err returns a StatusError when the response is not OK.
func (r Response) Err() error {
	if r.OK() {
		return nil
	}
	return &StatusError{URL: r.URL, StatusCode: r.StatusCode}
}

// StatusError carries the offending status of a non-OK navigation.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is matches ErrBadStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrBadStatus
}

// Page is a single renderable tab. Pages are not safe for concurrent use.
type Page interface {
	// Navigate loads url and blocks until wait is reached or timeout expires.
	Navigate(ctx context.Context, url string, wait WaitCondition, timeout time.Duration) (Response, error)
	// WaitReady waits for a basic readiness signal (a body element).
	WaitReady(ctx context.Context, timeout time.Duration) error
	// Document snapshots the current DOM.
	Document(ctx context.Context) (*goquery.Document, error)
	// Close releases the page.
	Close() error
}

// Engine creates pages on top of one shared underlying session.
type Engine interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// EngineFactory starts an engine. Browser calls it at most once, on first use.
type EngineFactory func(ctx context.Context) (Engine, error)
