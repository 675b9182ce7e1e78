package render

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollyPageNavigateAndDocument(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "chords-test", r.UserAgent())
		w.Header().Set("X-Origin", "test")
		fmt.Fprint(w, `<html><body><h1 class="t1">Wonderwall</h1></body></html>`)
	}))
	defer srv.Close()

	engine := NewCollyEngine(CollyConfig{UserAgent: "chords-test"}, nil, nil)
	defer engine.Close()
	page, err := engine.NewPage(context.Background())
	require.NoError(t, err)
	defer page.Close()

	require.Error(t, page.WaitReady(context.Background(), time.Second))

	resp, err := page.Navigate(context.Background(), srv.URL+"/oasis/wonderwall/", WaitLoad, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "test", resp.Headers.Get("X-Origin"))
	require.NoError(t, page.WaitReady(context.Background(), time.Second))

	doc, err := page.Document(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Wonderwall", doc.Find("h1.t1").Text())
}

func TestCollyPageReportsErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	page, err := NewCollyEngine(CollyConfig{}, nil, nil).NewPage(context.Background())
	require.NoError(t, err)

	resp, err := page.Navigate(context.Background(), srv.URL, WaitDOMContentLoaded, time.Second)
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.ErrorIs(t, resp.Err(), ErrBadStatus)
}

func TestCollyPageTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	page, err := NewCollyEngine(CollyConfig{}, nil, nil).NewPage(context.Background())
	require.NoError(t, err)

	_, err = page.Navigate(context.Background(), srv.URL, WaitLoad, 50*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCollyFactoryWithBrowser(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><pre>Am G</pre></body></html>`)
	}))
	defer srv.Close()

	b := NewBrowser(CollyFactory(CollyConfig{}, nil), Options{MaxPages: 1, DomainQPS: 100}, nil)
	defer b.Close()

	var text string
	err := b.WithPage(context.Background(), func(ctx context.Context, page Page) error {
		if _, err := page.Navigate(ctx, srv.URL, WaitLoad, time.Second); err != nil {
			return err
		}
		doc, err := page.Document(ctx)
		if err != nil {
			return err
		}
		text = doc.Find("pre").Text()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Am G", text)
}
