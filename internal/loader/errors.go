package loader

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/JakeFAU/chordsheet-resolver/internal/catalog"
	"github.com/JakeFAU/chordsheet-resolver/internal/render"
)

// ExhaustedError is returned when every strategy failed. It wraps the last
// attempt's error and classifies itself against the catalog upstream errors.
type ExhaustedError struct {
	URL      string
	Attempts []Attempt
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("could not load %s: no load strategies", e.URL)
	}
	return fmt.Sprintf("could not load %s after %d attempts: %v", e.URL, len(e.Attempts), e.Last)
}

// Unwrap exposes the last attempt's error.
func (e *ExhaustedError) Unwrap() error { return e.Last }

// Is matches ErrUpstream always, ErrUpstreamTimeout when the last attempt
// timed out, ErrUpstreamBlocked when it lost its connection, and ErrNotFound
// when the origin answered 404.
func (e *ExhaustedError) Is(target error) bool {
	switch target {
	case catalog.ErrUpstream:
		return true
	case catalog.ErrUpstreamTimeout:
		return errors.Is(e.Last, context.DeadlineExceeded)
	case catalog.ErrUpstreamBlocked:
		return !errors.Is(e.Last, context.DeadlineExceeded) && render.IsConnectionClosed(e.Last)
	case catalog.ErrNotFound:
		var status *render.StatusError
		return errors.As(e.Last, &status) && status.StatusCode == http.StatusNotFound
	default:
		return false
	}
}
