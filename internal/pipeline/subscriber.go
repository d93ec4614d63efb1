package pipeline

import "sync"

// subscriber delivers events to one callback from its own goroutine. push
// never blocks.
type subscriber struct {
	fn func(PageResult)

	mu      sync.Mutex
	queue   []PageResult
	closed  bool
	stopped bool
	wake    chan struct{}
}

func newSubscriber(fn func(PageResult)) *subscriber {
	return &subscriber{fn: fn, wake: make(chan struct{}, 1)}
}

func (s *subscriber) push(ev PageResult) {
	s.mu.Lock()
	if !s.closed && !s.stopped {
		s.queue = append(s.queue, ev)
	}
	s.mu.Unlock()
	s.signal()
}

// close lets the subscriber exit once its queue is drained.
func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()
}

// stop drops anything not yet delivered.
func (s *subscriber) stop() {
	s.mu.Lock()
	s.stopped = true
	s.queue = nil
	s.mu.Unlock()
	s.signal()
}

func (s *subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			if s.closed {
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			<-s.wake
			continue
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.fn(ev)
	}
}
