package runtime

import (
	"io"
	"sync"
)

// OutputSink is the writer plugin code prints to. Its target can be swapped
// while interpreters created earlier keep writing to the sink.
type OutputSink struct {
	mu     sync.Mutex
	target io.Writer
}

// NewOutputSink creates a sink writing to target. A nil target discards output.
func NewOutputSink(target io.Writer) *OutputSink {
	if target == nil {
		target = io.Discard
	}
	return &OutputSink{target: target}
}

// Write forwards p to the current target
func (s *OutputSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target.Write(p)
}

// Redirect sends output to target until the returned restore func is called
func (s *OutputSink) Redirect(target io.Writer) (restore func()) {
	if target == nil {
		target = io.Discard
	}

	s.mu.Lock()
	previous := s.target
	s.target = target
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.target = previous
		s.mu.Unlock()
	}
}
