package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tiergate/internal/server/models"
	"go.uber.org/multierr"
)

const (
	DefaultRetentionWindow = 90 * 24 * time.Hour
	DefaultSweepInterval   = 24 * time.Hour
	DefaultSweepStartDelay = time.Minute
	DefaultSweepBatchSize  = 500
)

// Archiver stores a copy of a record before the sweeper deletes it.
type Archiver interface {
	Archive(ctx context.Context, u *models.UserRecord) error
}

type RetentionOptions struct {
	Window     time.Duration
	Interval   time.Duration
	StartDelay time.Duration
	BatchSize  int
	// Archiver is optional.
	Archiver Archiver
}

// Retention deletes anonymous records that have been inactive for longer
// than the retention window. It never touches the installation counter:
// deleted user numbers are not reused.
type Retention struct {
	core
	opts RetentionOptions
}

func NewRetention(d Deps, opts RetentionOptions) *Retention {
	if opts.Window <= 0 {
		opts.Window = DefaultRetentionWindow
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultSweepInterval
	}
	if opts.StartDelay <= 0 {
		opts.StartDelay = DefaultSweepStartDelay
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultSweepBatchSize
	}
	return &Retention{core: newCore(d, "retention"), opts: opts}
}

// Run sweeps once after the start delay and then on every interval until
// ctx is done.
func (s *Retention) Run(ctx context.Context) error {
	timer := s.clock.NewTimer(s.opts.StartDelay, "retention", "start")
	select {
	case <-ctx.Done():
		timer.Stop()
		return nil
	case <-timer.C:
	}

	s.sweepAndLog(ctx)

	w := s.clock.TickerFunc(ctx, s.opts.Interval, func() error {
		s.sweepAndLog(ctx)
		return nil
	}, "retention", "tick")

	if err := w.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Retention) sweepAndLog(ctx context.Context) {
	n, err := s.Sweep(ctx)
	if err != nil {
		s.log.Error(ctx, "retention sweep finished with errors", "deleted", n, "error", err)
		return
	}
	s.log.Info(ctx, "retention sweep finished", "deleted", n)
}

// Sweep deletes every stale anonymous record and returns how many were
// deleted. A failure on one record is logged and collected; the batch
// continues with the next record.
func (s *Retention) Sweep(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().UTC().Add(-s.opts.Window)

	var (
		deleted int
		errs    error
		failed  = make(map[string]struct{})
	)
	for {
		// Records that failed earlier are still stale and come back first.
		limit := s.opts.BatchSize + len(failed)
		rctx, cancel := s.remote(ctx)
		batch, err := s.records.ListStale(rctx, cutoff, limit)
		cancel()
		if err != nil {
			return deleted, multierr.Append(errs, err)
		}

		progressed := false
		for _, u := range batch {
			if _, ok := failed[u.ID]; ok {
				continue
			}
			if err := s.remove(ctx, u); err != nil {
				failed[u.ID] = struct{}{}
				s.metrics.sweepFailures.Inc()
				s.log.Error(ctx, "failed to delete stale record", "user_id", u.ID, "error", err)
				errs = multierr.Append(errs, fmt.Errorf("user %s: %w", u.ID, err))
				continue
			}
			deleted++
			progressed = true
			s.metrics.sweepDeleted.Inc()
		}

		if !progressed || len(batch) < limit || ctx.Err() != nil {
			break
		}
	}

	return deleted, errs
}

func (s *Retention) remove(ctx context.Context, u *models.UserRecord) error {
	if s.opts.Archiver != nil {
		if err := s.opts.Archiver.Archive(ctx, u); err != nil {
			return fmt.Errorf("archive: %w", err)
		}
	}

	rctx, cancel := s.remote(ctx)
	defer cancel()

	if err := s.identities.DeleteByUser(rctx, u.ID); err != nil {
		return fmt.Errorf("delete identities: %w", err)
	}
	if err := s.records.Delete(rctx, u.ID); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	if err := s.cache.Remove(ctx, recordKey(u.ID)); err != nil {
		s.log.Warn(ctx, "failed to drop cached record", "user_id", u.ID, "error", err)
	}
	return nil
}
