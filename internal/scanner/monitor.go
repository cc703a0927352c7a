package scanner

import (
	"context"
	"os"
	"time"
)

// monitor samples every active task's last-action timestamp and declares
// a task "hung" once it has been idle longer than ScanOpTimeout. Hung
// tasks are passed to recoverHungTask unless ExitOnTimeout is set,
// in which case the process exits so an external supervisor can restart
// it cleanly.
func (s *Scanner) monitor(ctx context.Context) error {
	interval := s.cfg.CheckInterval
	if interval <= 0 {
		interval = s.cfg.ScanOpTimeout / 4
	}
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case <-ticker.C:
			s.checkHungTasks()
		}
	}
}

func (s *Scanner) checkHungTasks() {
	now := time.Now().UnixNano()
	var hung []*Task
	s.tasksMu.Lock()
	for t := range s.active {
		if time.Duration(now-t.LastAction()) > s.cfg.ScanOpTimeout {
			hung = append(hung, t)
		}
	}
	s.tasksMu.Unlock()

	for _, t := range hung {
		if s.cfg.ExitOnTimeout {
			s.logger.Error().Str("path", t.Path).Msg("scanner: worker hung, exiting per exit_on_timeout")
			os.Exit(1)
		}
		s.recoverHungTask(t)
	}
}

// recoverHungTask releases a hung task's own-work flag so the release
// cascade runs (possibly completing the scan), then removes it from the
// active set. The worker goroutine that was holding it is abandoned, not
// killed — Go has no thread cancellation — and a replacement slot opens
// implicitly since workers simply loop back to Pop.
func (s *Scanner) recoverHungTask(t *Task) {
	s.logger.Warn().Str("path", t.Path).Msg("scanner: recovering hung task")
	s.untrackTask(t)
	s.finishTask(t)
}
