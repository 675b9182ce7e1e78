package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// CollyConfig controls the static HTML engine.
type CollyConfig struct {
	UserAgent string
}

// CollyEngine fetches pages over plain HTTP without running JavaScript. Every
// page shares one pooled transport.
type CollyEngine struct {
	cfg       CollyConfig
	transport http.RoundTripper
	logger    *zap.Logger
}

// CollyFactory returns an EngineFactory for the static engine.
func CollyFactory(cfg CollyConfig, logger *zap.Logger) EngineFactory {
	return func(context.Context) (Engine, error) {
		return NewCollyEngine(cfg, nil, logger), nil
	}
}

// NewCollyEngine builds a static engine. A nil transport gets a pooled default.
func NewCollyEngine(cfg CollyConfig, transport http.RoundTripper, logger *zap.Logger) *CollyEngine {
	if transport == nil {
		transport = newHTTPTransport()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CollyEngine{cfg: cfg, transport: transport, logger: logger}
}

// NewPage returns an empty page.
func (e *CollyEngine) NewPage(context.Context) (Page, error) {
	return &collyPage{engine: e}, nil
}

// Close releases idle connections.
func (e *CollyEngine) Close() error {
	if t, ok := e.transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
	return nil
}

type collyPage struct {
	engine *CollyEngine
	url    string
	body   []byte
}

// Navigate performs a single GET. Static HTML has no lifecycle, so wait is
// satisfied as soon as the body is read.
func (p *collyPage) Navigate(ctx context.Context, rawURL string, _ WaitCondition, timeout time.Duration) (Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	collector := colly.NewCollector(
		colly.StdlibContext(reqCtx),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	if p.engine.cfg.UserAgent != "" {
		collector.UserAgent = p.engine.cfg.UserAgent
	}
	collector.WithTransport(p.engine.transport)
	collector.SetRequestTimeout(timeout)

	var (
		resp     Response
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		resp = Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
		}
		if r.Headers != nil {
			resp.Headers = r.Headers.Clone()
		}
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := collector.Visit(rawURL); err != nil {
		return Response{}, classifyHTTPErr(fmt.Errorf("visit %s: %w", rawURL, err))
	}
	if fetchErr != nil {
		return Response{}, classifyHTTPErr(fmt.Errorf("fetch %s: %w", rawURL, fetchErr))
	}
	p.url = resp.URL
	p.body = body
	return resp, nil
}

// WaitReady succeeds once a document has been fetched.
func (p *collyPage) WaitReady(context.Context, time.Duration) error {
	if p.body == nil {
		return errors.New("no document loaded")
	}
	return nil
}

func (p *collyPage) Document(context.Context) (*goquery.Document, error) {
	if p.body == nil {
		return nil, errors.New("no document loaded")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.body))
	if err != nil {
		return nil, fmt.Errorf("parse dom: %w", err)
	}
	return doc, nil
}

func (p *collyPage) Close() error {
	p.body = nil
	return nil
}

func classifyHTTPErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	if IsConnectionClosed(err) {
		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	return err
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
