package client

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dealerhub/announce-api/internal/models"
)

// State is the display state machine position.
type State string

const (
	StateIdle     State = "idle"
	StateShowing  State = "showing"
	StateCooldown State = "cooldown"
)

// DefaultCooldown is the pause between dismissing one announcement and
// presenting the next.
const DefaultCooldown = 500 * time.Millisecond

// Scheduler decides which single announcement, if any, is presented to the
// user and drives the show, dismiss, show-next sequence. The queue is a pure
// function of the registry snapshot minus the ids already dismissed this
// session; dismissed ids stay excluded even when a stale refetch still
// reports them unread. Dismissals belong to the session that made them:
// call ResetSession when the registry is re-bound to a new sign-in.
type Scheduler struct {
	registry *Registry
	syncer   *Syncer
	logger   *zap.Logger
	cooldown time.Duration

	mu        sync.Mutex
	state     State
	current   *models.Announcement
	dismissed map[string]struct{}
	timer     *time.Timer
	stopped   bool
}

// NewScheduler wires a scheduler to the registry and syncer. A non-positive
// cooldown falls back to DefaultCooldown.
func NewScheduler(registry *Registry, syncer *Syncer, cooldown time.Duration, logger *zap.Logger) *Scheduler {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		registry:  registry,
		syncer:    syncer,
		logger:    logger,
		cooldown:  cooldown,
		state:     StateIdle,
		dismissed: map[string]struct{}{},
	}
	registry.OnChange(func(Snapshot) { s.Refresh() })
	return s
}

// State returns the current state machine position.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the announcement being shown, or nil.
func (s *Scheduler) Current() *models.Announcement {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	copied := *s.current
	return &copied
}

// Refresh re-evaluates the queue against the registry snapshot. Only an idle
// scheduler picks up a new item; Showing and Cooldown states are left to run
// their course.
func (s *Scheduler) Refresh() {
	s.mu.Lock()
	if s.stopped || s.state != StateIdle {
		s.mu.Unlock()
		return
	}
	queue := s.buildQueueLocked(s.registry.Snapshot())
	if len(queue) == 0 {
		s.mu.Unlock()
		return
	}
	head := queue[0]
	s.state = StateShowing
	s.current = &head
	s.mu.Unlock()

	// Viewing is recorded at display time, not at dismissal. The display
	// sequence never blocks on the remote call succeeding.
	s.registry.MarkViewed(head.ID)
	s.syncer.SyncViewed(head.ID)
	s.logger.Debug("announcement shown", zap.String("announcement_id", head.ID), zap.String("priority", string(head.Priority)))
}

// Acknowledge records acknowledgment for the shown item without changing
// state; the machine still waits for the explicit close.
func (s *Scheduler) Acknowledge() {
	s.mu.Lock()
	if s.state != StateShowing || s.current == nil {
		s.mu.Unlock()
		return
	}
	id := s.current.ID
	s.mu.Unlock()

	s.registry.MarkAcknowledged(id)
	s.syncer.SyncAcknowledged(id)
}

// Dismiss closes the shown item and enters cooldown before presenting the
// next one.
func (s *Scheduler) Dismiss() {
	s.mu.Lock()
	if s.state != StateShowing || s.current == nil {
		s.mu.Unlock()
		return
	}
	s.dismissed[s.current.ID] = struct{}{}
	s.current = nil
	s.state = StateCooldown
	s.timer = time.AfterFunc(s.cooldown, s.endCooldown)
	s.mu.Unlock()
}

// Stop tears the scheduler down, cancelling any pending cooldown transition
// so it cannot fire against a finished session.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.current = nil
	s.state = StateIdle
	s.mu.Unlock()
}

// ResetSession clears the per-session dismissal memory and revives a stopped
// scheduler for a new sign-in. Any pending cooldown is cancelled.
func (s *Scheduler) ResetSession() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.dismissed = map[string]struct{}{}
	s.stopped = false
	s.current = nil
	s.state = StateIdle
	s.mu.Unlock()
	s.Refresh()
}

func (s *Scheduler) endCooldown() {
	s.mu.Lock()
	if s.stopped || s.state != StateCooldown {
		s.mu.Unlock()
		return
	}
	s.state = StateIdle
	s.timer = nil
	s.mu.Unlock()
	s.Refresh()
}

// buildQueueLocked filters the snapshot to eligible announcements and orders
// them by priority descending, newest first within a band.
func (s *Scheduler) buildQueueLocked(snapshot Snapshot) []models.Announcement {
	queue := make([]models.Announcement, 0, len(snapshot.Announcements))
	for _, a := range snapshot.Announcements {
		if a.Status != models.AnnouncementStatusActive || a.HasViewed {
			continue
		}
		if _, ok := s.dismissed[a.ID]; ok {
			continue
		}
		queue = append(queue, a)
	}
	sort.SliceStable(queue, func(i, j int) bool {
		ri, rj := queue[i].Priority.Rank(), queue[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return queue[i].CreatedAt.After(queue[j].CreatedAt)
	})
	return queue
}
