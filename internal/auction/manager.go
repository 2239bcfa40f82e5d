package auction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/sneakerbid/internal/clock"
	"github.com/jensholdgaard/sneakerbid/internal/config"
	"github.com/jensholdgaard/sneakerbid/internal/event"
	"github.com/jensholdgaard/sneakerbid/internal/notification"
	"github.com/jensholdgaard/sneakerbid/internal/store"
)

// Notifier records a message for a user. Implementations must not fail the
// caller; *notification.Manager logs and swallows write errors.
type Notifier interface {
	Notify(ctx context.Context, userID, auctionID, message string)
}

// Manager runs the bid and buy-now paths against the auction store and
// fans successful changes out to notifications and subscribers.
type Manager struct {
	auctions  store.AuctionRepository
	notifier  Notifier
	publisher event.Publisher
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *metrics
	clock     clock.Clock

	window       time.Duration
	storeTimeout time.Duration
}

// NewManager creates a new auction Manager.
func NewManager(
	auctions store.AuctionRepository,
	notifier Notifier,
	publisher event.Publisher,
	cfg config.AuctionConfig,
	logger *slog.Logger,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	clk clock.Clock,
) (*Manager, error) {
	m, err := newMetrics(mp)
	if err != nil {
		return nil, err
	}
	return &Manager{
		auctions:     auctions,
		notifier:     notifier,
		publisher:    publisher,
		logger:       logger,
		tracer:       tp.Tracer(instrumentationName),
		metrics:      m,
		clock:        clk,
		window:       cfg.ExtensionWindow,
		storeTimeout: cfg.StoreTimeout,
	}, nil
}

// storeErr translates a store failure into the auction error taxonomy.
// Rule errors returned from inside an update pass through unchanged.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case isRuleError(err):
		return err
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
	}
}

func (m *Manager) withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.storeTimeout)
}

// Create validates the listing and stores a new open auction owned by
// sellerID.
func (m *Manager) Create(ctx context.Context, sellerID string, l Listing) (*store.Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Create",
		trace.WithAttributes(attribute.String("seller.id", sellerID)),
	)
	defer span.End()

	a, err := NewAuction(l, sellerID, m.clock.Now())
	if err != nil {
		return nil, err
	}

	sctx, cancel := m.withStoreTimeout(ctx)
	defer cancel()
	if err := m.auctions.Create(sctx, a); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, storeErr("creating auction", err)
	}

	span.SetAttributes(attribute.String("auction.id", a.ID))
	m.logger.InfoContext(ctx, "auction created",
		slog.String("auction_id", a.ID),
		slog.String("seller_id", sellerID),
		slog.String("title", a.Title),
		slog.Time("ends_at", a.EndsAt),
	)
	return a, nil
}

// Get returns a single auction.
func (m *Manager) Get(ctx context.Context, id string) (*store.Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Get",
		trace.WithAttributes(attribute.String("auction.id", id)),
	)
	defer span.End()

	ctx, cancel := m.withStoreTimeout(ctx)
	defer cancel()
	a, err := m.auctions.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("getting auction", err)
	}
	return a, nil
}

// ListOpen returns auctions that have not ended yet, newest first.
func (m *Manager) ListOpen(ctx context.Context) ([]store.Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ListOpen")
	defer span.End()

	ctx, cancel := m.withStoreTimeout(ctx)
	defer cancel()
	list, err := m.auctions.ListOpen(ctx, m.clock.Now())
	if err != nil {
		return nil, storeErr("listing open auctions", err)
	}
	return nonNil(list), nil
}

// ListBySeller returns every auction listed by sellerID.
func (m *Manager) ListBySeller(ctx context.Context, sellerID string) ([]store.Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ListBySeller",
		trace.WithAttributes(attribute.String("seller.id", sellerID)),
	)
	defer span.End()

	ctx, cancel := m.withStoreTimeout(ctx)
	defer cancel()
	list, err := m.auctions.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, storeErr("listing auctions by seller", err)
	}
	return nonNil(list), nil
}

// ListByBidder returns every auction bidderID currently leads or has won.
func (m *Manager) ListByBidder(ctx context.Context, bidderID string) ([]store.Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ListByBidder",
		trace.WithAttributes(attribute.String("bidder.id", bidderID)),
	)
	defer span.End()

	ctx, cancel := m.withStoreTimeout(ctx)
	defer cancel()
	list, err := m.auctions.ListByLeader(ctx, bidderID)
	if err != nil {
		return nil, storeErr("listing auctions by bidder", err)
	}
	return nonNil(list), nil
}

func nonNil(list []store.Auction) []store.Auction {
	if list == nil {
		return []store.Auction{}
	}
	return list
}

// PlaceBid evaluates and applies a bid as one atomic step per auction.
// A rejected bid below the minimum returns *BidTooLowError.
func (m *Manager) PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (*store.Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.PlaceBid",
		trace.WithAttributes(
			attribute.String("auction.id", auctionID),
			attribute.String("bidder.id", bidderID),
			attribute.String("bid.amount", amount.String()),
		),
	)
	defer span.End()

	if err := ValidateAmount(amount); err != nil {
		m.reject(ctx, span, "bid", auctionID, err)
		return nil, err
	}

	var previous *string
	sctx, cancel := m.withStoreTimeout(ctx)
	updated, err := m.auctions.Update(sctx, auctionID, func(a *store.Auction) error {
		previous = a.CurrentLeaderID
		return ApplyBid(a, bidderID, amount, m.clock.Now(), m.window)
	})
	cancel()
	if err != nil {
		err = storeErr("placing bid", err)
		m.reject(ctx, span, "bid", auctionID, err)
		return nil, err
	}

	m.metrics.bidsAccepted.Add(ctx, 1)
	m.logger.InfoContext(ctx, "bid accepted",
		slog.String("auction_id", auctionID),
		slog.String("bidder_id", bidderID),
		slog.String("amount", amount.String()),
		slog.Time("ends_at", updated.EndsAt),
		slog.Int64("version", updated.Version),
	)

	m.notifier.Notify(ctx, updated.SellerID, updated.ID, notification.NewBidForSeller(updated.Title, amount))
	m.notifier.Notify(ctx, bidderID, updated.ID, notification.LeadingBid(updated.Title, amount))
	if previous != nil && *previous != bidderID {
		m.notifier.Notify(ctx, *previous, updated.ID, notification.Outbid(updated.Title, amount))
	}

	evt, evtErr := event.NewBidAccepted(updated, m.clock.Now())
	m.publish(ctx, evt, evtErr)
	return updated, nil
}

// BuyNow sells the auction to buyerID at its buy-now price and closes it.
func (m *Manager) BuyNow(ctx context.Context, auctionID, buyerID string) (*store.Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.BuyNow",
		trace.WithAttributes(
			attribute.String("auction.id", auctionID),
			attribute.String("buyer.id", buyerID),
		),
	)
	defer span.End()

	sctx, cancel := m.withStoreTimeout(ctx)
	updated, err := m.auctions.Update(sctx, auctionID, func(a *store.Auction) error {
		return ApplyBuyNow(a, buyerID, m.clock.Now())
	})
	cancel()
	if err != nil {
		err = storeErr("buying now", err)
		m.reject(ctx, span, "buy_now", auctionID, err)
		return nil, err
	}

	m.metrics.buyNowAccepted.Add(ctx, 1)
	m.logger.InfoContext(ctx, "auction bought",
		slog.String("auction_id", auctionID),
		slog.String("buyer_id", buyerID),
		slog.String("price", updated.CurrentPrice.String()),
	)

	m.notifier.Notify(ctx, buyerID, updated.ID, notification.BoughtNow(updated.Title, updated.CurrentPrice))
	m.notifier.Notify(ctx, updated.SellerID, updated.ID, notification.SoldNow(updated.Title, updated.CurrentPrice))

	evt, evtErr := event.NewAuctionEnded(updated, event.ReasonBuyNow, m.clock.Now())
	m.publish(ctx, evt, evtErr)
	return updated, nil
}

// Delete removes a listing. Only its seller may delete it.
func (m *Manager) Delete(ctx context.Context, auctionID, userID string) error {
	ctx, span := m.tracer.Start(ctx, "Manager.Delete",
		trace.WithAttributes(
			attribute.String("auction.id", auctionID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	if err := m.CheckSeller(ctx, auctionID, userID); err != nil {
		return err
	}

	sctx, cancel := m.withStoreTimeout(ctx)
	defer cancel()
	if err := m.auctions.Delete(sctx, auctionID); err != nil {
		return storeErr("deleting auction", err)
	}

	m.logger.InfoContext(ctx, "auction deleted",
		slog.String("auction_id", auctionID),
		slog.String("seller_id", userID),
	)
	return nil
}

// CheckSeller returns ErrForbidden unless userID listed the auction.
func (m *Manager) CheckSeller(ctx context.Context, auctionID, userID string) error {
	a, err := m.Get(ctx, auctionID)
	if err != nil {
		return err
	}
	if a.SellerID != userID {
		return fmt.Errorf("%w: only the seller can modify this listing", ErrForbidden)
	}
	return nil
}

// AttachImages appends already-uploaded image URLs to the seller's listing.
func (m *Manager) AttachImages(ctx context.Context, auctionID, userID string, urls []string) (*store.Auction, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.AttachImages",
		trace.WithAttributes(
			attribute.String("auction.id", auctionID),
			attribute.Int("images", len(urls)),
		),
	)
	defer span.End()

	sctx, cancel := m.withStoreTimeout(ctx)
	defer cancel()
	updated, err := m.auctions.Update(sctx, auctionID, func(a *store.Auction) error {
		if a.SellerID != userID {
			return fmt.Errorf("%w: only the seller can modify this listing", ErrForbidden)
		}
		a.ImageURLs = append(a.ImageURLs, urls...)
		return nil
	})
	if err != nil {
		return nil, storeErr("attaching images", err)
	}
	return updated, nil
}

func (m *Manager) reject(ctx context.Context, span trace.Span, op, auctionID string, err error) {
	r := reason(err)
	m.metrics.bidsRejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("reason", r),
	))
	span.SetAttributes(attribute.String("rejected.reason", r))

	if errors.Is(err, ErrStorageUnavailable) {
		span.SetStatus(codes.Error, err.Error())
		m.logger.ErrorContext(ctx, "auction update failed",
			slog.String("op", op),
			slog.String("auction_id", auctionID),
			slog.Any("error", err),
		)
		return
	}
	m.logger.DebugContext(ctx, "auction update rejected",
		slog.String("op", op),
		slog.String("auction_id", auctionID),
		slog.String("reason", r),
	)
}

// publish hands e to the broadcaster. Failures are logged only: the write
// has committed and subscribers reconcile by re-fetching.
func (m *Manager) publish(ctx context.Context, e event.Event, buildErr error) {
	err := buildErr
	if err == nil {
		err = m.publisher.Publish(ctx, e)
	}
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to publish event",
			slog.String("auction_id", e.AuctionID),
			slog.String("type", string(e.Type)),
			slog.Any("error", err),
		)
	}
}
