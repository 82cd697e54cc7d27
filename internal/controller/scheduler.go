package controller

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/descriptor"
	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/infrastructure/config"
)

// Scheduler defaults.
const (
	defaultRearmAttempts = 3
	defaultRetryInterval = 500 * time.Millisecond
	storeTimeout         = 5 * time.Second
)

// Timer is the handle of a pending callback. *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc is the default.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	// Policy is config.RearmReplace (default), config.RearmReject or
	// config.RearmUnbounded.
	Policy string

	// Delay between Schedule and delivery.
	Delay time.Duration

	// Attempts bounds the publish tries of one firing re-arm.
	Attempts int

	// RetryInterval is the first backoff interval between attempts.
	RetryInterval time.Duration

	// Publish delivers a due re-arm. Required.
	Publish func(r Rearm) error

	// Store makes pending re-arms durable. Optional.
	Store Store

	Recorder  Recorder
	Logger    Logger
	Metrics   *Metrics
	Now       func() time.Time
	AfterFunc AfterFunc
}

type pendingRearm struct {
	rearm Rearm
	timer Timer
}

// Scheduler delivers one-shot delayed actions, keeping at most one pending
// per device unless the policy is unbounded.
//
// Thread Safety: All methods are safe for concurrent use. Timer callbacks run
// on their own goroutines.
type Scheduler struct {
	opts SchedulerOptions

	mu      sync.Mutex
	pending map[string][]*pendingRearm
	stopped bool
}

// NewScheduler creates a scheduler. Publish and a positive Delay are required.
func NewScheduler(opts SchedulerOptions) (*Scheduler, error) {
	if opts.Publish == nil {
		return nil, fmt.Errorf("%w: scheduler publish function is required", ErrInvalidOptions)
	}
	if opts.Delay <= 0 {
		return nil, fmt.Errorf("%w: re-arm delay must be positive", ErrInvalidOptions)
	}

	switch opts.Policy {
	case "":
		opts.Policy = config.RearmReplace
	case config.RearmReplace, config.RearmReject, config.RearmUnbounded:
	default:
		return nil, fmt.Errorf("%w: unknown re-arm policy %q", ErrInvalidOptions, opts.Policy)
	}

	if opts.Attempts < 1 {
		opts.Attempts = defaultRearmAttempts
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultRetryInterval
	}
	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = realAfterFunc
	}

	return &Scheduler{
		opts:    opts,
		pending: make(map[string][]*pendingRearm),
	}, nil
}

// Schedule arranges for action to be published on topic after the configured
// delay. scheduled is false when the reject policy kept an existing re-arm;
// the returned Rearm is then the one still pending.
func (s *Scheduler) Schedule(ctx context.Context, deviceID, topic string, action descriptor.ActionDescriptor) (r Rearm, scheduled bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return Rearm{}, false, ErrSchedulerStopped
	}

	existing := s.pending[deviceID]
	switch s.opts.Policy {
	case config.RearmReject:
		if len(existing) > 0 {
			kept := existing[0].rearm
			s.opts.Logger.Info("re-arm already pending, new breach ignored",
				"device_id", deviceID, "pending_id", kept.ID, "due_at", kept.DueAt)
			s.opts.Metrics.incRearm(RearmRejected)
			s.opts.Recorder.RecordRearm(deviceID, RearmRejected)
			return kept, false, nil
		}
	case config.RearmReplace:
		for _, p := range existing {
			p.timer.Stop()
			s.deleteDurable(ctx, p.rearm.ID)
			s.opts.Logger.Info("pending re-arm replaced", "device_id", deviceID, "replaced_id", p.rearm.ID)
			s.opts.Metrics.incRearm(RearmReplaced)
			s.opts.Recorder.RecordRearm(deviceID, RearmReplaced)
		}
		delete(s.pending, deviceID)
	}

	now := s.opts.Now()
	r = Rearm{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Topic:     topic,
		Action:    action,
		DueAt:     now.Add(s.opts.Delay),
		CreatedAt: now,
	}

	if s.opts.Store != nil {
		if err := s.opts.Store.Save(ctx, r); err != nil {
			// The in-memory timer still delivers; only restart safety is lost.
			s.opts.Logger.Error("persisting re-arm", "device_id", deviceID, "rearm_id", r.ID, "error", err)
		}
	}

	s.armLocked(r, s.opts.Delay)

	s.opts.Logger.Info("re-arm scheduled",
		"device_id", deviceID, "rearm_id", r.ID, "action", action.ActionValue, "delay", s.opts.Delay)
	s.opts.Metrics.incRearm(RearmScheduled)
	s.opts.Recorder.RecordRearm(deviceID, RearmScheduled)

	return r, true, nil
}

// armLocked starts the timer for r. Caller holds mu.
func (s *Scheduler) armLocked(r Rearm, delay time.Duration) {
	id, deviceID := r.ID, r.DeviceID
	p := &pendingRearm{rearm: r}
	p.timer = s.opts.AfterFunc(delay, func() { s.fire(deviceID, id) })
	s.pending[deviceID] = append(s.pending[deviceID], p)
	s.opts.Metrics.setPending(s.countLocked())
}

// fire delivers a due re-arm unless it was cancelled or replaced meanwhile.
func (s *Scheduler) fire(deviceID, id string) {
	defer func() {
		if p := recover(); p != nil {
			s.opts.Logger.Error("re-arm callback panic recovered",
				"device_id", deviceID, "rearm_id", id,
				"error", fmt.Errorf("%w: panic: %v", ErrSchedulingFault, p))
		}
	}()

	r, ok := s.take(deviceID, id)
	if !ok {
		return
	}

	if err := s.deliver(r); err != nil {
		// The durable entry stays so a restart retries it.
		s.opts.Logger.Error("re-arm delivery failed",
			"device_id", deviceID, "rearm_id", id, "attempts", s.opts.Attempts, "error", err)
		s.opts.Metrics.incRearm(RearmFailed)
		s.opts.Recorder.RecordRearm(deviceID, RearmFailed)
		return
	}

	s.deleteDurable(context.Background(), id)
	s.opts.Logger.Info("re-arm delivered", "device_id", deviceID, "rearm_id", id, "action", r.Action.ActionValue)
	s.opts.Metrics.incRearm(RearmFired)
	s.opts.Recorder.RecordRearm(deviceID, RearmFired)
}

// take removes the pending entry with the given id, reporting whether it was
// still pending.
func (s *Scheduler) take(deviceID, id string) (Rearm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.pending[deviceID]
	for i, p := range list {
		if p.rearm.ID != id {
			continue
		}
		list = append(list[:i], list[i+1:]...)
		if len(list) == 0 {
			delete(s.pending, deviceID)
		} else {
			s.pending[deviceID] = list
		}
		s.opts.Metrics.setPending(s.countLocked())
		return p.rearm, true
	}
	return Rearm{}, false
}

// deliver publishes r with bounded exponential backoff. Panics in Publish
// are turned into errors.
func (s *Scheduler) deliver(r Rearm) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.RetryInterval
	bo.MaxElapsedTime = 0

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := s.safePublish(r)
		if err != nil {
			s.opts.Logger.Warn("re-arm publish attempt failed",
				"device_id", r.DeviceID, "rearm_id", r.ID, "attempt", attempt, "error", err)
		}
		return err
	}, backoff.WithMaxRetries(bo, uint64(s.opts.Attempts-1))) //nolint:gosec // Attempts >= 1
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSchedulingFault, err)
	}
	return nil
}

func (s *Scheduler) safePublish(r Rearm) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("publish panic: %v", p)
		}
	}()
	return s.opts.Publish(r)
}

// Restore re-arms every re-arm found in the store. Overdue entries fire
// immediately. With the replace and reject policies only the latest entry
// per device is kept and older ones are deleted.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	if s.opts.Store == nil {
		return 0, nil
	}

	stored, err := s.opts.Store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("restoring re-arms: %w", err)
	}

	byDevice := make(map[string][]Rearm)
	for _, r := range stored {
		byDevice[r.DeviceID] = append(byDevice[r.DeviceID], r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return 0, ErrSchedulerStopped
	}

	now := s.opts.Now()
	restored := 0
	for deviceID, list := range byDevice {
		sort.Slice(list, func(i, j int) bool { return list[i].DueAt.Before(list[j].DueAt) })

		if s.opts.Policy != config.RearmUnbounded && len(list) > 1 {
			for _, stale := range list[:len(list)-1] {
				s.deleteDurable(ctx, stale.ID)
			}
			list = list[len(list)-1:]
		}

		for _, r := range list {
			if s.hasLocked(deviceID, r.ID) {
				continue
			}
			delay := r.DueAt.Sub(now)
			if delay < 0 {
				delay = 0
			}
			s.armLocked(r, delay)
			restored++
			s.opts.Logger.Info("re-arm restored", "device_id", deviceID, "rearm_id", r.ID, "delay", delay)
		}
	}

	return restored, nil
}

// Cancel stops and forgets every pending re-arm of a device, returning how
// many were cancelled.
func (s *Scheduler) Cancel(ctx context.Context, deviceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.pending[deviceID]
	for _, p := range list {
		p.timer.Stop()
		s.deleteDurable(ctx, p.rearm.ID)
		s.opts.Metrics.incRearm(RearmCancelled)
		s.opts.Recorder.RecordRearm(deviceID, RearmCancelled)
	}
	delete(s.pending, deviceID)
	s.opts.Metrics.setPending(s.countLocked())
	return len(list)
}

// Pending returns the re-arms of a device still waiting, earliest first.
func (s *Scheduler) Pending(deviceID string) []Rearm {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Rearm, 0, len(s.pending[deviceID]))
	for _, p := range s.pending[deviceID] {
		out = append(out, p.rearm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out
}

// PendingCount returns the number of re-arms waiting across all devices.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countLocked()
}

// Stop cancels every timer. Durable entries are kept for the next Restore.
// Schedule fails with ErrSchedulerStopped afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	for _, list := range s.pending {
		for _, p := range list {
			p.timer.Stop()
		}
	}
	s.pending = make(map[string][]*pendingRearm)
	s.opts.Metrics.setPending(0)
}

func (s *Scheduler) hasLocked(deviceID, id string) bool {
	for _, p := range s.pending[deviceID] {
		if p.rearm.ID == id {
			return true
		}
	}
	return false
}

func (s *Scheduler) countLocked() int {
	n := 0
	for _, list := range s.pending {
		n += len(list)
	}
	return n
}

func (s *Scheduler) deleteDurable(ctx context.Context, id string) {
	if s.opts.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := s.opts.Store.Delete(ctx, id); err != nil {
		s.opts.Logger.Error("deleting persisted re-arm", "rearm_id", id, "error", err)
	}
}
