// Package loader loads a URL into a rendered page, escalating through an
// ordered set of load strategies with backoff between attempts.
package loader

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/chordsheet-resolver/internal/render"
)

// Strategy is one way of loading a page: what to wait for, how long to allow
// for navigation, and how long to let the page settle afterwards.
type Strategy struct {
	Name    string               `mapstructure:"name"`
	Wait    render.WaitCondition `mapstructure:"wait"`
	Timeout time.Duration        `mapstructure:"timeout"`
	Settle  time.Duration        `mapstructure:"settle"`
}

// DefaultStrategies is the content strategy set: fast, standard, patient.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "fast", Wait: render.WaitDOMContentLoaded, Timeout: 30 * time.Second, Settle: 2 * time.Second},
		{Name: "standard", Wait: render.WaitLoad, Timeout: 45 * time.Second, Settle: 3 * time.Second},
		{Name: "patient", Wait: render.WaitNetworkIdle, Timeout: 60 * time.Second, Settle: 5 * time.Second},
	}
}

// MetadataStrategies is the cheaper set used when only header fields are read.
func MetadataStrategies() []Strategy {
	return []Strategy{
		{Name: "fast", Wait: render.WaitDOMContentLoaded, Timeout: 15 * time.Second, Settle: 500 * time.Millisecond},
		{Name: "standard", Wait: render.WaitLoad, Timeout: 25 * time.Second, Settle: time.Second},
	}
}

// ValidateStrategies checks the set is non-empty, well-formed, and strictly
// more patient at each step.
func ValidateStrategies(strategies []Strategy) error {
	if len(strategies) == 0 {
		return errors.New("at least one load strategy is required")
	}
	for i, s := range strategies {
		if s.Name == "" {
			return fmt.Errorf("strategy %d: name is required", i)
		}
		if _, err := render.ParseWaitCondition(string(s.Wait)); err != nil {
			return fmt.Errorf("strategy %q: %w", s.Name, err)
		}
		if s.Timeout <= 0 {
			return fmt.Errorf("strategy %q: timeout must be > 0", s.Name)
		}
		if s.Settle < 0 {
			return fmt.Errorf("strategy %q: settle must be >= 0", s.Name)
		}
		if i == 0 {
			continue
		}
		prev := strategies[i-1]
		if s.Timeout <= prev.Timeout || s.Settle <= prev.Settle {
			return fmt.Errorf("strategy %q must be more patient than %q", s.Name, prev.Name)
		}
	}
	return nil
}

// Backoff is the progressive delay between attempts: Step times the number of
// failed attempts so far, capped at Max.
type Backoff struct {
	Step time.Duration
	Max  time.Duration
}

// DefaultBackoff is 2s per failed attempt, capped at 5s.
func DefaultBackoff() Backoff {
	return Backoff{Step: 2 * time.Second, Max: 5 * time.Second}
}

// Delay returns the pause after the given number of failed attempts (1-based).
func (b Backoff) Delay(failed int) time.Duration {
	if failed <= 0 || b.Step <= 0 {
		return 0
	}
	delay := b.Step * time.Duration(failed)
	if b.Max > 0 && delay > b.Max {
		return b.Max
	}
	return delay
}
