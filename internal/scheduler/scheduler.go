// Package scheduler keeps one daily cron job per subscribed group.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"starrail_calendar/internal/metrics"
	"starrail_calendar/internal/model"
)

// Subscriptions is the registry view the scheduler needs at fire time.
type Subscriptions interface {
	Get(groupID int64) (model.Subscription, bool)
	MarkDelivered(ctx context.Context, groupID int64, at time.Time) error
}

// Deliverer sends the calendar for a subscription.
type Deliverer interface {
	DeliverCalendar(ctx context.Context, sub model.Subscription) error
}

// Config controls job timing.
type Config struct {
	Location     *time.Location
	MisfireGrace time.Duration
	SendTimeout  time.Duration
}

type job struct {
	entry cron.EntryID
	spec  string
	sched cron.Schedule
}

// Scheduler synchronizes cron jobs with the subscription registry.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	parser cron.Parser
	jobs   map[int64]job
	subs   Subscriptions
	cfg    Config
	log    *slog.Logger
	now    func() time.Time

	runMu     sync.Mutex
	running   bool
	ctx       context.Context
	deliverer Deliverer
	inflight  sync.WaitGroup
}

// New creates a Scheduler. Jobs may be registered before Start.
func New(subs Subscriptions, cfg Config, log *slog.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(cfg.Location),
		cron.WithChain(cron.Recover(cronLogger{log: log})),
		cron.WithLogger(cronLogger{log: log}),
	)
	return &Scheduler{
		cron:   c,
		parser: parser,
		jobs:   make(map[int64]job),
		subs:   subs,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
		ctx:    context.Background(),
	}
}

// JobName is the job identifier for a group.
func JobName(groupID int64) string {
	return fmt.Sprintf("calendar_%d", groupID)
}

// Spec returns the daily cron expression for hour:minute.
func Spec(hour, minute int) string {
	return fmt.Sprintf("%d %d * * *", minute, hour)
}

// Start begins firing jobs, delivering through d.
func (s *Scheduler) Start(ctx context.Context, d Deliverer) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return
	}
	s.ctx = ctx
	s.deliverer = d
	s.running = true
	s.cron.Start()
	s.log.Info("scheduler started", "tz", s.cfg.Location.String(), "jobs", len(s.Jobs()))
}

// Stop halts cron and waits for running deliveries or ctx expiry.
func (s *Scheduler) Stop(ctx context.Context) {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	s.running = false
	s.runMu.Unlock()

	done := make(chan struct{})
	go func() {
		<-s.cron.Stop().Done()
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out", "error", ctx.Err())
	}
	s.log.Info("scheduler stopped")
}

// Ensure registers the group's job, replacing any existing one.
func (s *Scheduler) Ensure(groupID int64, sub model.Subscription) error {
	if err := sub.Validate(); err != nil {
		return fmt.Errorf("invalid subscription: %w", err)
	}
	spec := Spec(sub.Hour, sub.Minute)
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("parse spec %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.jobs[groupID]; ok {
		s.cron.Remove(old.entry)
		delete(s.jobs, groupID)
	}
	entry, err := s.cron.AddJob(spec, cron.FuncJob(func() { s.fire(groupID, sched) }))
	if err != nil {
		return fmt.Errorf("add job %s: %w", JobName(groupID), err)
	}
	s.jobs[groupID] = job{entry: entry, spec: spec, sched: sched}
	s.log.Debug("job registered", "job", JobName(groupID), "spec", spec)
	return nil
}

// Remove unregisters the group's job. It reports whether a job existed.
func (s *Scheduler) Remove(groupID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[groupID]
	if !ok {
		return false
	}
	s.cron.Remove(j.entry)
	delete(s.jobs, groupID)
	s.log.Debug("job removed", "job", JobName(groupID))
	return true
}

// Has reports whether the group has a registered job.
func (s *Scheduler) Has(groupID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[groupID]
	return ok
}

// Jobs returns the registered job names in order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		names = append(names, JobName(id))
	}
	sort.Strings(names)
	return names
}

// Next returns the group's next fire time.
func (s *Scheduler) Next(groupID int64) (time.Time, bool) {
	s.mu.Lock()
	j, ok := s.jobs[groupID]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return j.sched.Next(s.now().In(s.cfg.Location)), true
}

// Reconcile makes the job set match subs exactly. Groups whose latest
// scheduled delivery was missed within the grace window get it now.
func (s *Scheduler) Reconcile(subs []model.Subscription) error {
	want := make(map[int64]struct{}, len(subs))
	var errs []error
	for _, sub := range subs {
		want[sub.GroupID] = struct{}{}
		if err := s.Ensure(sub.GroupID, sub); err != nil {
			errs = append(errs, err)
		}
	}

	s.mu.Lock()
	var stale []int64
	for id := range s.jobs {
		if _, ok := want[id]; !ok {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()
	for _, id := range stale {
		s.Remove(id)
	}

	caughtUp := 0
	for _, sub := range subs {
		scheduled, missed := s.missed(sub)
		if !missed {
			continue
		}
		caughtUp++
		s.log.Info("delivering missed calendar", "job", JobName(sub.GroupID), "scheduled", scheduled)
		s.goDeliver(sub.GroupID)
	}

	s.log.Info("jobs reconciled", "jobs", len(subs), "removed", len(stale), "caught_up", caughtUp)
	return errors.Join(errs...)
}

func (s *Scheduler) missed(sub model.Subscription) (time.Time, bool) {
	if s.cfg.MisfireGrace <= 0 {
		return time.Time{}, false
	}
	s.mu.Lock()
	j, ok := s.jobs[sub.GroupID]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}

	now := s.now().In(s.cfg.Location)
	scheduled := previous(j.sched, now)
	if scheduled.IsZero() || now.Sub(scheduled) > s.cfg.MisfireGrace {
		return time.Time{}, false
	}
	if sub.LastSentAt != nil && !sub.LastSentAt.Before(scheduled) {
		return time.Time{}, false
	}
	return scheduled, true
}

func (s *Scheduler) fire(groupID int64, sched cron.Schedule) {
	now := s.now().In(s.cfg.Location)
	scheduled := previous(sched, now)
	if lag := now.Sub(scheduled); s.cfg.MisfireGrace > 0 && !scheduled.IsZero() && lag > s.cfg.MisfireGrace {
		s.log.Warn("skipping late job", "job", JobName(groupID), "scheduled", scheduled, "lag", lag)
		metrics.Deliveries.WithLabelValues("skipped").Inc()
		return
	}
	s.deliver(groupID)
}

func (s *Scheduler) goDeliver(groupID int64) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.deliver(groupID)
	}()
}

func (s *Scheduler) deliver(groupID int64) {
	s.runMu.Lock()
	ctx, d := s.ctx, s.deliverer
	s.runMu.Unlock()

	log := s.log.With("job", JobName(groupID), "delivery_id", uuid.NewString())
	if d == nil {
		log.Warn("no deliverer configured")
		return
	}
	sub, ok := s.subs.Get(groupID)
	if !ok {
		log.Debug("subscription gone, skipping")
		return
	}

	sendCtx := ctx
	if s.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, s.cfg.SendTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := d.DeliverCalendar(sendCtx, sub); err != nil {
		log.Error("deliver calendar", "error", err)
		metrics.Deliveries.WithLabelValues("error").Inc()
		return
	}
	metrics.Deliveries.WithLabelValues("ok").Inc()
	log.Info("calendar delivered", "took", time.Since(start))

	if err := s.subs.MarkDelivered(ctx, groupID, s.now()); err != nil {
		log.Error("record delivery", "error", err)
	}
}

// previous returns the latest activation of sched at or before now.
func previous(sched cron.Schedule, now time.Time) time.Time {
	t := sched.Next(now.Add(-48 * time.Hour))
	if t.IsZero() || t.After(now) {
		return time.Time{}
	}
	for {
		n := sched.Next(t)
		if n.IsZero() || n.After(now) {
			return t
		}
		t = n
	}
}

type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
