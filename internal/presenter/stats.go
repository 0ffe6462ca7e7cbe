package presenter

import (
	"fmt"
	"time"
)

// FrameStats counts presented frames and swapchain rebuilds and keeps a frame
// rate averaged over one second windows.
type FrameStats struct {
	Frames       uint64
	Recreations  uint64
	FPS          float64
	windowFrames int
	windowStart  time.Time
}

// tick counts one presented frame at now and reports whether FPS was
// refreshed.
func (s *FrameStats) tick(now time.Time) bool {
	s.Frames++
	if s.windowStart.IsZero() {
		s.windowStart = now
		return false
	}
	s.windowFrames++
	elapsed := now.Sub(s.windowStart)
	if elapsed < time.Second {
		return false
	}
	s.FPS = float64(s.windowFrames) / elapsed.Seconds()
	s.windowFrames = 0
	s.windowStart = now
	return true
}

func (s FrameStats) String() string {
	return fmt.Sprintf("FPS: %.1f frames=%d recreations=%d", s.FPS, s.Frames, s.Recreations)
}
