package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner is a single-line progress indicator. Its message can be updated
// while it runs and it stops when its context is canceled.
type Spinner struct {
	w       io.Writer
	parent  context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	started atomic.Bool
	once    sync.Once

	mu      sync.Mutex
	message string
	width   int // widest line written, for clearing
}

// newSpinner creates a spinner writing to w that stops with ctx.
func newSpinner(ctx context.Context, w io.Writer, message string) *Spinner {
	spinnerCtx, cancel := context.WithCancel(ctx)
	return &Spinner{
		w:       w,
		parent:  ctx,
		ctx:     spinnerCtx,
		cancel:  cancel,
		stopped: make(chan struct{}),
		message: message,
	}
}

// Start begins the animation.
func (s *Spinner) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for i := 0; ; i++ {
			select {
			case <-s.ctx.Done():
				s.clearLine()
				return
			case <-ticker.C:
				frame := spinnerFrames[i%len(spinnerFrames)]
				s.mu.Lock()
				s.width = max(s.width, len(s.message)+2)
				fmt.Fprintf(s.w, "\r%s %s", styleIconSpinner.Render(frame), StyleDim.Render(s.message))
				s.mu.Unlock()
			}
		}
	}()
}

// SetMessage replaces the message shown next to the spinner.
func (s *Spinner) SetMessage(format string, args ...any) {
	s.mu.Lock()
	s.message = fmt.Sprintf(format, args...)
	s.mu.Unlock()
}

// Stop stops the spinner and clears its line. It may be called more than once.
func (s *Spinner) Stop() {
	s.once.Do(func() {
		s.cancel()
		if s.started.Load() {
			<-s.stopped
		}
	})
}

func (s *Spinner) clearLine() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.width > 0 {
		fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", s.width+2))
	}
}

// StopWithSuccess stops the spinner and prints a success line.
func (s *Spinner) StopWithSuccess(format string, args ...any) {
	s.Stop()
	printSuccess(s.w, format, args...)
}

// StopWithError stops the spinner and prints an error line.
func (s *Spinner) StopWithError(format string, args ...any) {
	s.Stop()
	printError(s.w, format, args...)
}

// Cancelled reports whether the spinner stopped because its parent context
// was canceled rather than through Stop.
func (s *Spinner) Cancelled() bool {
	return s.parent.Err() != nil
}
