package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

const spinInterval = 100 * time.Millisecond

// Spinner shows an indeterminate progress indicator while a backend call runs.
type Spinner struct {
	bar     *progressbar.ProgressBar
	done    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// StartSpinner starts spinning with description on w. A nil w or a disabled
// spinner returns a Spinner whose Stop is a no-op.
func StartSpinner(w io.Writer, description string, enabled bool) *Spinner {
	s := &Spinner{done: make(chan struct{})}
	if w == nil || !enabled {
		return s
	}

	s.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset]", description)),
		progressbar.OptionClearOnFinish(),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(spinInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				if err := s.bar.Add(1); err != nil {
					slog.Debug("Failed to update spinner", "error", err)
				}
			}
		}
	}()
	return s
}

// Stop halts the spinner and clears its line. It is safe to call twice.
func (s *Spinner) Stop() {
	s.stopped.Do(func() {
		close(s.done)
		s.wg.Wait()
		if s.bar != nil {
			if err := s.bar.Finish(); err != nil {
				slog.Debug("Failed to finish spinner", "error", err)
			}
		}
	})
}
