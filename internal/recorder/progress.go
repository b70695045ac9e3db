package recorder

import "time"

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusPending   Status = "pending"
	StatusRecording Status = "recording"
	StatusPaused    Status = "paused"
	StatusStopping  Status = "stopping"
	StatusStopped   Status = "stopped"
)

// Progress is a snapshot of the current recording for display.
type Progress struct {
	Status          Status        `json:"status"`
	Frequency       string        `json:"frequency,omitempty"`
	FrameCount      uint64        `json:"frame_count"`
	EventCount      uint64        `json:"event_count"`
	DroppedEvents   uint64        `json:"dropped_events"`
	ImpreciseTiming bool          `json:"imprecise_timing"`
	Elapsed         time.Duration `json:"elapsed"`
	Path            string        `json:"path,omitempty"`
	LastError       string        `json:"last_error,omitempty"`
}

func (s *Session) status() Status {
	st, _ := s.state.Load().(Status)
	return st
}

func (s *Session) setStatus(st Status) {
	s.state.Store(st)
}

// Progress returns the current snapshot, or the final one of the last
// recording when none is running.
func (s *Session) Progress() Progress {
	r := s.cur.Load()
	if r == nil {
		p := *s.final.Load()
		p.Status = s.status()
		if msg := s.lastErr.Load(); msg != nil {
			p.LastError = *msg
		}
		return p
	}
	return s.progressOf(r)
}

func (s *Session) progressOf(r *run) Progress {
	p := Progress{
		Status:        s.status(),
		Frequency:     r.frequency.String(),
		FrameCount:    r.project.FrameCount(),
		EventCount:    r.pipeline.Written(),
		DroppedEvents: r.pipeline.Dropped(),
		Elapsed:       r.clock.Elapsed(),
		Path:          r.project.Root,
	}
	if sched := r.sched.Load(); sched != nil {
		p.ImpreciseTiming = sched.Imprecise()
	}
	if msg := s.lastErr.Load(); msg != nil {
		p.LastError = *msg
	}
	return p
}

// Subscribe returns a channel receiving a snapshot after every state change
// and stored frame. Slow subscribers miss snapshots instead of blocking
// capture.
func (s *Session) Subscribe() chan Progress {
	ch := make(chan Progress, 10)
	s.subMu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (s *Session) Unsubscribe(ch chan Progress) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for i, sub := range s.subscribers {
		if sub == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

func (s *Session) publish() {
	p := s.Progress()

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, sub := range s.subscribers {
		select {
		case sub <- p:
		default:
		}
	}
}
