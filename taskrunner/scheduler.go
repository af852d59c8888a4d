package taskrunner

import (
	"sync"
	"time"
)

// Scheduler runs functions on recurring periods. One Scheduler is shared by every sub-pool of a manager; fn should
// only hand work to a Runner and return.
type Scheduler struct {
	mu      sync.Mutex
	stopped bool
	next    int
	jobs    map[int]chan struct{}
	wg      sync.WaitGroup
}

func NewScheduler() *Scheduler {
	return &Scheduler{jobs: make(map[int]chan struct{})}
}

// Schedule calls fn every period until the returned cancel func or Stop is called. A non-positive period or a stopped
// scheduler schedules nothing.
func (s *Scheduler) Schedule(period time.Duration, fn func()) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || period <= 0 {
		return func() {}
	}

	id := s.next
	s.next++
	done := make(chan struct{})
	s.jobs[id] = done

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if ch, ok := s.jobs[id]; ok {
				delete(s.jobs, id)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
}

// Len returns the number of live scheduled jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Stop cancels every scheduled job and waits for running callbacks to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		for id, ch := range s.jobs {
			delete(s.jobs, id)
			close(ch)
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}
