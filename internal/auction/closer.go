package auction

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jensholdgaard/sneakerbid/internal/clock"
	"github.com/jensholdgaard/sneakerbid/internal/config"
	"github.com/jensholdgaard/sneakerbid/internal/event"
	"github.com/jensholdgaard/sneakerbid/internal/notification"
	"github.com/jensholdgaard/sneakerbid/internal/store"
)

// Closer periodically finalizes auctions whose end time has passed.
// Every expired auction is closed exactly once: only the call that performs
// the conditional close sends notifications and events, so overlapping or
// repeated sweeps are harmless.
type Closer struct {
	auctions  store.AuctionRepository
	notifier  Notifier
	publisher event.Publisher
	cfg       config.CloserConfig
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *metrics
	clock     clock.Clock
}

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	Expired int
	Closed  int
	Failed  int
}

// NewCloser creates a new Closer.
func NewCloser(
	auctions store.AuctionRepository,
	notifier Notifier,
	publisher event.Publisher,
	cfg config.CloserConfig,
	logger *slog.Logger,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	clk clock.Clock,
) (*Closer, error) {
	m, err := newMetrics(mp)
	if err != nil {
		return nil, err
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Closer{
		auctions:  auctions,
		notifier:  notifier,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		tracer:    tp.Tracer(instrumentationName),
		metrics:   m,
		clock:     clk,
	}, nil
}

// Run sweeps once immediately and then every cfg.Interval until ctx is
// done. A sweep that overruns the interval delays the next one instead of
// overlapping it.
func (c *Closer) Run(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(c.cfg.Interval),
		gocron.NewTask(func() {
			c.Sweep(ctx)
		}),
		gocron.WithName("auction-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("scheduling sweep: %w", err)
	}

	c.logger.InfoContext(ctx, "auction closer started",
		slog.Duration("interval", c.cfg.Interval),
		slog.Int("concurrency", c.cfg.Concurrency),
	)
	scheduler.Start()

	<-ctx.Done()

	if err := scheduler.Shutdown(); err != nil {
		return fmt.Errorf("stopping scheduler: %w", err)
	}
	c.logger.Info("auction closer stopped")
	return nil
}

// Sweep closes every auction that has expired as of now. Records are
// processed independently with their own timeout; a failure is logged and
// the record is picked up again by the next sweep.
func (c *Closer) Sweep(ctx context.Context) SweepResult {
	ctx, span := c.tracer.Start(ctx, "Closer.Sweep")
	defer span.End()

	start := time.Now()
	defer func() {
		c.metrics.sweepDuration.Record(ctx, time.Since(start).Seconds())
	}()

	now := c.clock.Now()

	lctx, cancel := context.WithTimeout(ctx, c.cfg.RecordTimeout)
	expired, err := c.auctions.ListExpired(lctx, now, c.cfg.BatchSize)
	cancel()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.logger.ErrorContext(ctx, "listing expired auctions failed", slog.Any("error", err))
		return SweepResult{}
	}

	var closed, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for i := range expired {
		id := expired[i].ID
		g.Go(func() error {
			ok, err := c.closeOne(ctx, id, now)
			switch {
			case err != nil:
				failed.Add(1)
			case ok:
				closed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := SweepResult{
		Expired: len(expired),
		Closed:  int(closed.Load()),
		Failed:  int(failed.Load()),
	}
	span.SetAttributes(
		attribute.Int("sweep.expired", res.Expired),
		attribute.Int("sweep.closed", res.Closed),
		attribute.Int("sweep.failed", res.Failed),
	)
	if res.Expired > 0 {
		c.logger.InfoContext(ctx, "sweep complete",
			slog.Int("expired", res.Expired),
			slog.Int("closed", res.Closed),
			slog.Int("failed", res.Failed),
		)
	}
	return res
}

// closeOne reports whether this call performed the close.
func (c *Closer) closeOne(ctx context.Context, id string, now time.Time) (bool, error) {
	ctx, span := c.tracer.Start(ctx, "Closer.closeOne",
		trace.WithAttributes(attribute.String("auction.id", id)),
	)
	defer span.End()

	rctx, cancel := context.WithTimeout(ctx, c.cfg.RecordTimeout)
	a, closed, err := c.auctions.CloseExpired(rctx, id, now)
	cancel()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.metrics.sweepFailed.Add(ctx, 1)
		c.logger.WarnContext(ctx, "closing auction failed, will retry next sweep",
			slog.String("auction_id", id),
			slog.Any("error", err),
		)
		return false, err
	}
	if !closed {
		// Closed by buy-now, extended by a late bid, or closed by another
		// sweep since it was listed.
		return false, nil
	}

	c.metrics.sweepClosed.Add(ctx, 1)
	c.logger.InfoContext(ctx, "auction closed",
		slog.String("auction_id", a.ID),
		slog.String("final_price", a.CurrentPrice.String()),
		slog.Bool("has_winner", a.CurrentLeaderID != nil),
	)

	if a.CurrentLeaderID != nil {
		c.notifier.Notify(ctx, *a.CurrentLeaderID, a.ID, notification.Won(a.Title, a.CurrentPrice))
		c.notifier.Notify(ctx, a.SellerID, a.ID, notification.ClosedForSeller(a.Title, a.CurrentPrice))
	} else {
		c.notifier.Notify(ctx, a.SellerID, a.ID, notification.ClosedNoBids(a.Title))
	}

	evt, err := event.NewAuctionEnded(a, event.ReasonExpired, c.clock.Now())
	if err == nil {
		err = c.publisher.Publish(ctx, evt)
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to publish event",
			slog.String("auction_id", a.ID),
			slog.String("type", string(event.AuctionEnded)),
			slog.Any("error", err),
		)
	}
	return true, nil
}
