package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleWatchFiltersByLoader(t *testing.T) {
	t.Parallel()

	w := newLifecycleWatch()
	w.captureEvent(&page.EventLifecycleEvent{LoaderID: "old", Name: "load"})
	w.captureEvent(&page.EventLifecycleEvent{LoaderID: "nav", Name: "DOMContentLoaded"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := w.wait(ctx, "nav", "load")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	go w.captureEvent(&page.EventLifecycleEvent{LoaderID: "nav", Name: "load"})
	require.NoError(t, w.wait(context.Background(), "nav", "load"))
	require.NoError(t, w.wait(context.Background(), "nav", "DOMContentLoaded"))
}

func TestLifecycleWatchResponse(t *testing.T) {
	t.Parallel()

	w := newLifecycleWatch()
	w.captureEvent(&network.EventResponseReceived{
		LoaderID: "nav",
		Type:     network.ResourceTypeImage,
		Response: &network.Response{URL: "https://x/img.png", Status: 404},
	})
	w.captureEvent(&network.EventResponseReceived{
		LoaderID: "nav",
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{
			URL:     "https://x/oasis/",
			Status:  200,
			Headers: network.Headers{"Set-Cookie": "a=1\nb=2", "Content-Type": "text/html"},
		},
	})

	resp := w.response("nav", "https://fallback/")
	assert.Equal(t, "https://x/oasis/", resp.URL)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, []string{"a=1", "b=2"}, resp.Headers.Values("Set-Cookie"))

	missing := w.response("other", "https://fallback/")
	assert.Equal(t, "https://fallback/", missing.URL)
	assert.True(t, missing.OK())
}

func TestLifecycleName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "DOMContentLoaded", lifecycleName(WaitDOMContentLoaded))
	assert.Equal(t, "load", lifecycleName(WaitLoad))
	assert.Equal(t, "networkIdle", lifecycleName(WaitNetworkIdle))
}

func TestClassifyChromedpErr(t *testing.T) {
	t.Parallel()

	closed := classifyChromedpErr(fmt.Errorf("navigate: %w", chromedp.ErrChannelClosed))
	assert.ErrorIs(t, closed, ErrConnectionClosed)
	assert.ErrorIs(t, closed, chromedp.ErrChannelClosed)

	timeout := classifyChromedpErr(fmt.Errorf("navigate: %w", context.DeadlineExceeded))
	assert.ErrorIs(t, timeout, context.DeadlineExceeded)
	assert.NotErrorIs(t, timeout, ErrConnectionClosed)

	other := errors.New("boom")
	assert.Equal(t, other, classifyChromedpErr(other))
}

func TestNavigationError(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, navigationError("https://x/", "net::ERR_CONNECTION_CLOSED"), ErrConnectionClosed)
	assert.ErrorIs(t, navigationError("https://x/", "net::ERR_TIMED_OUT"), context.DeadlineExceeded)
	err := navigationError("https://x/", "net::ERR_NAME_NOT_RESOLVED")
	assert.NotErrorIs(t, err, ErrConnectionClosed)
	assert.Contains(t, err.Error(), "ERR_NAME_NOT_RESOLVED")
}

func TestChromedpEngineRendersScript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<!doctype html><html><body><script>document.body.innerHTML = '<pre>late chords</pre>';</script></body></html>`)
	}))
	defer srv.Close()

	engine, err := NewChromedpEngine(context.Background(), ChromedpConfig{Headless: true, UserAgent: "chords-test"}, nil)
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	defer engine.Close()

	p, err := engine.NewPage(context.Background())
	require.NoError(t, err)
	defer p.Close()

	resp, err := p.Navigate(context.Background(), srv.URL, WaitLoad, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	require.NoError(t, p.WaitReady(context.Background(), 5*time.Second))

	doc, err := p.Document(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late chords", doc.Find("pre").Text())
}
