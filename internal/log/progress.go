// Package log supplies terminal progress feedback for long-running CLI
// operations (full/incremental scans), layered on top of zerolog's
// structured logging rather than replacing it.
package log

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Spinner animates a rotating character while an indeterminate operation
// runs. The Marketplace Client doesn't report per-page progress, so the
// CLI only ever shows indeterminate feedback, never a percentage bar.
type Spinner struct {
	chars    []string
	current  int
	interval time.Duration
	stop     chan bool
	running  bool
	mu       sync.Mutex
}

// SpinnerStyle names one of the rotation styles below.
type SpinnerStyle string

const (
	SpinnerDots SpinnerStyle = "dots"
	SpinnerLine SpinnerStyle = "line"
)

// NewSpinner creates a spinner with the given style.
func NewSpinner(style SpinnerStyle) *Spinner {
	s := &Spinner{interval: 100 * time.Millisecond, stop: make(chan bool, 1)}
	switch style {
	case SpinnerLine:
		s.chars = []string{"-", "\\", "|", "/"}
	default:
		s.chars = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	}
	return s
}

// Start begins the spinner's rotation goroutine.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.spin()
}

// Stop ends the rotation goroutine.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.stop <- true
}

func (s *Spinner) spin() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.current = (s.current + 1) % len(s.chars)
			s.mu.Unlock()
		}
	}
}

// Current returns the spinner's current frame.
func (s *Spinner) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chars[s.current]
}

// OperationLogger wraps one named, indeterminate-length CLI operation
// (a full or incremental scan run) with a spinner and a structured
// completion/failure log line.
type OperationLogger struct {
	name      string
	startTime time.Time
	spinner   *Spinner
}

// StartOperation begins timing and animating name.
func StartOperation(name string) *OperationLogger {
	sp := NewSpinner(SpinnerDots)
	sp.Start()
	fmt.Printf("%s %s...\n", sp.Current(), name)
	return &OperationLogger{name: name, startTime: time.Now(), spinner: sp}
}

// Finish stops the spinner and logs a success line with the result count.
func (o *OperationLogger) Finish(resultCount int) {
	o.spinner.Stop()
	duration := time.Since(o.startTime).Round(time.Millisecond)
	fmt.Printf("✓ %s completed (%d opportunities, %v)\n", o.name, resultCount, duration)
	log.Info().Str("operation", o.name).Int("result_count", resultCount).Dur("duration", duration).Msg("cli operation completed")
}

// Fail stops the spinner and logs a failure line with reason.
func (o *OperationLogger) Fail(err error) {
	o.spinner.Stop()
	duration := time.Since(o.startTime).Round(time.Millisecond)
	fmt.Printf("✗ %s failed: %v (%v)\n", o.name, err, duration)
	log.Error().Str("operation", o.name).Err(err).Dur("duration", duration).Msg("cli operation failed")
}
