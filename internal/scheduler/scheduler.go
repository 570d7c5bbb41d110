package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	checkoutdomain "github.com/smallbiznis/nftcheckout/internal/checkout/domain"
	"github.com/smallbiznis/nftcheckout/internal/clock"
	"github.com/smallbiznis/nftcheckout/internal/config"
	deliverydomain "github.com/smallbiznis/nftcheckout/internal/delivery/domain"
	obsmetrics "github.com/smallbiznis/nftcheckout/internal/observability/metrics"
	"github.com/smallbiznis/nftcheckout/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependencies")

// Locker is the cross-instance lease each job takes before running.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Policy   *config.PolicyHolder
	Delivery deliverydomain.Service
	Checkout checkoutdomain.Service
	Locker   *ratelimit.Locker `optional:"true"`
	Config   Config            `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	policy   *config.PolicyHolder
	delivery deliverydomain.Service
	checkout checkoutdomain.Service
	locker   Locker
	metrics  *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Delivery == nil || p.Checkout == nil {
		return nil, ErrInvalidConfig
	}
	s := &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		policy:   p.Policy,
		delivery: p.Delivery,
		checkout: p.Checkout,
		metrics:  obsmetrics.Scheduler(),
	}
	if p.Locker != nil {
		s.locker = p.Locker
	}
	return s, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up the rest
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// withLock runs fn only if this instance wins the job lease. Without a
// locker every instance runs the job; row-level claims keep that safe.
func (s *Scheduler) withLock(ctx context.Context, job string, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	token, ok, err := s.locker.TryLock(ctx, job, s.cfg.LockTTL)
	if err != nil {
		s.logger(ctx).Warn("scheduler lock unavailable, running unlocked",
			zap.String("job", job),
			zap.Error(err),
		)
		return fn(ctx)
	}
	if !ok {
		s.metrics.IncJobSkipped(job, obsmetrics.SchedulerSkipReasonLockHeld)
		s.logger(ctx).Debug("scheduler job skipped", zap.String("job", job), zap.String("reason", obsmetrics.SchedulerSkipReasonLockHeld))
		return nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, job, token); err != nil {
			s.log.Warn("scheduler lock release failed", zap.String("job", job), zap.Error(err))
		}
	}()
	return fn(ctx)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	batch := s.policy.Get().Delivery.BatchSize

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobRecoverStale, func(ctx context.Context) error {
			return s.runJob(ctx, JobRecoverStale, batch, s.cfg.JobTimeout, s.RecoverStaleJob)
		}},
		{JobDeliverPending, func(ctx context.Context) error {
			return s.runJob(ctx, JobDeliverPending, batch, s.cfg.JobTimeout, s.DeliverPendingJob)
		}},
		{JobExpireIntents, func(ctx context.Context) error {
			return s.runJob(ctx, JobExpireIntents, batch, s.cfg.JobTimeout, s.ExpireIntentsJob)
		}},
		{JobBacklog, func(ctx context.Context) error {
			return s.runJob(ctx, JobBacklog, 0, s.cfg.JobTimeout, s.BacklogJob)
		}},
	}

	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

// RunForever sweeps on the policy interval and additionally runs the
// delivery job whenever a settlement kicks the queue.
func (s *Scheduler) RunForever(ctx context.Context) {
	interval := s.sweepInterval()
	timer := time.NewTimer(interval)
	defer timer.Stop()
	nextRun := s.clock.Now().Add(interval)
	kicks := s.delivery.Kicks()

	if err := s.RunOnce(ctx); err != nil {
		s.log.Warn("scheduler run failed", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-kicks:
			if s.isJobEnabled(JobDeliverPending) {
				if err := s.runJob(ctx, JobDeliverPending, s.policy.Get().Delivery.BatchSize, s.cfg.JobTimeout, s.DeliverPendingJob); err != nil {
					s.log.Warn("scheduler kick run failed", zap.Error(err))
				}
			}
		case <-timer.C:
			if lag := s.clock.Now().Sub(nextRun); lag > 0 {
				s.metrics.ObserveRunLoopLag(lag)
			}
			if err := s.RunOnce(ctx); err != nil {
				s.log.Warn("scheduler run failed", zap.Error(err))
			}
			interval = s.sweepInterval()
			nextRun = s.clock.Now().Add(interval)
			timer.Reset(interval)
		}
	}
}

func (s *Scheduler) sweepInterval() time.Duration {
	return s.policy.Get().Delivery.SweepInterval
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// DeliverPendingJob mints every due delivery up to the policy batch size.
func (s *Scheduler) DeliverPendingJob(ctx context.Context) error {
	return s.withLock(ctx, JobDeliverPending, func(ctx context.Context) error {
		run := jobRunFromContext(ctx)
		processed, err := s.delivery.ProcessDue(ctx, s.policy.Get().Delivery.BatchSize)
		run.AddProcessed(processed)
		s.metrics.AddProcessed(JobDeliverPending, processed)
		if err != nil {
			s.logSchedulerError(ctx, run, "deliver pending failed", JobDeliverPending, err)
		}
		return err
	})
}

// RecoverStaleJob returns deliveries whose claim outlived StaleAfter to the queue.
func (s *Scheduler) RecoverStaleJob(ctx context.Context) error {
	return s.withLock(ctx, JobRecoverStale, func(ctx context.Context) error {
		run := jobRunFromContext(ctx)
		recovered, err := s.delivery.RecoverStale(ctx, s.policy.Get().Delivery.StaleAfter)
		if err != nil {
			s.logSchedulerError(ctx, run, "recover stale deliveries failed", JobRecoverStale, err)
			return err
		}
		run.AddProcessed(int(recovered))
		s.metrics.AddProcessed(JobRecoverStale, int(recovered))
		if recovered > 0 {
			s.logger(ctx).Warn("recovered stale deliveries", zap.Int64("count", recovered))
			s.delivery.Kick()
		}
		return nil
	})
}

func (s *Scheduler) ExpireIntentsJob(ctx context.Context) error {
	return s.withLock(ctx, JobExpireIntents, func(ctx context.Context) error {
		run := jobRunFromContext(ctx)
		expired, err := s.checkout.ExpireIntents(ctx)
		if err != nil {
			s.logSchedulerError(ctx, run, "expire checkout intents failed", JobExpireIntents, err)
			return err
		}
		run.AddProcessed(int(expired))
		s.metrics.AddProcessed(JobExpireIntents, int(expired))
		return nil
	})
}

// BacklogJob publishes the per-status delivery gauge. Every instance reports
// the same numbers so it needs no lease.
func (s *Scheduler) BacklogJob(ctx context.Context) error {
	counts, err := s.delivery.Stats(ctx)
	if err != nil {
		s.logSchedulerError(ctx, jobRunFromContext(ctx), "delivery backlog failed", JobBacklog, err)
		return err
	}
	seen := make(map[deliverydomain.Status]bool, len(counts))
	for _, c := range counts {
		seen[c.Status] = true
		s.metrics.SetBacklog(string(c.Status), c.Count)
	}
	for _, status := range []deliverydomain.Status{
		deliverydomain.StatusPending,
		deliverydomain.StatusInFlight,
		deliverydomain.StatusDelivered,
		deliverydomain.StatusFailed,
	} {
		if !seen[status] {
			s.metrics.SetBacklog(string(status), 0)
		}
	}
	return nil
}
