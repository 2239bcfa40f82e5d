package auction_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jensholdgaard/sneakerbid/internal/auction"
	"github.com/jensholdgaard/sneakerbid/internal/clock"
	"github.com/jensholdgaard/sneakerbid/internal/config"
	"github.com/jensholdgaard/sneakerbid/internal/event"
	"github.com/jensholdgaard/sneakerbid/internal/store"
	"github.com/jensholdgaard/sneakerbid/internal/store/memory"
)

// --- mock helpers ---

type note struct {
	userID    string
	auctionID string
	message   string
}

type mockNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (m *mockNotifier) Notify(_ context.Context, userID, auctionID, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = append(m.notes, note{userID, auctionID, message})
}

func (m *mockNotifier) forUser(userID string) []note {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []note
	for _, n := range m.notes {
		if n.userID == userID {
			out = append(out, n)
		}
	}
	return out
}

type mockPublisher struct {
	mu     sync.Mutex
	events []event.Event
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, e event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *mockPublisher) ofType(t event.Type) []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []event.Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// failingRepo fails every write with a storage error.
type failingRepo struct {
	store.AuctionRepository
}

func (failingRepo) Update(context.Context, string, store.MutateFunc) (*store.Auction, error) {
	return nil, errors.New("connection reset by peer")
}

type fixture struct {
	mgr       *auction.Manager
	repo      *memory.AuctionRepo
	clock     *clock.Mock
	notifier  *mockNotifier
	publisher *mockPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewMock(t0)
	repo := memory.NewAuctionRepo(clk)
	n := &mockNotifier{}
	p := &mockPublisher{}
	mgr, err := auction.NewManager(repo, n, p,
		config.AuctionConfig{ExtensionWindow: window, StoreTimeout: time.Second},
		slog.Default(), noop.NewTracerProvider(), metricnoop.NewMeterProvider(), clk)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return &fixture{mgr: mgr, repo: repo, clock: clk, notifier: n, publisher: p}
}

func (f *fixture) create(t *testing.T, l auction.Listing) *store.Auction {
	t.Helper()
	a, err := f.mgr.Create(context.Background(), "seller", l)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return a
}

func sampleListing() auction.Listing {
	return auction.Listing{
		Title:         "Travis Scott Jordan 1",
		Category:      "Collaboration",
		Description:   "Reverse swoosh, pristine",
		Brand:         "Jordan",
		Edition:       "Travis Scott",
		Size:          "US 10",
		StartingPrice: price(1000),
		BidIncrement:  price(100),
		BuyNowPrice:   ptr(price(5000)),
		EndsAt:        t0.Add(time.Hour),
	}
}

// --- tests ---

func TestManager_SampleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, sampleListing())

	got, err := f.mgr.PlaceBid(ctx, a.ID, "alice", price(1100))
	if err != nil {
		t.Fatalf("bid 1100: %v", err)
	}
	if !got.CurrentPrice.Equal(price(1100)) {
		t.Errorf("CurrentPrice = %v, want 1100", got.CurrentPrice)
	}

	_, err = f.mgr.PlaceBid(ctx, a.ID, "bob", price(1150))
	var tooLow *auction.BidTooLowError
	if !errors.As(err, &tooLow) || !tooLow.MinBid.Equal(price(1200)) {
		t.Fatalf("bid 1150 error = %v, want BidTooLow with minBid 1200", err)
	}

	if _, err := f.mgr.PlaceBid(ctx, a.ID, "bob", price(1200)); err != nil {
		t.Fatalf("bid 1200: %v", err)
	}

	got, err = f.mgr.BuyNow(ctx, a.ID, "carol")
	if err != nil {
		t.Fatalf("BuyNow: %v", err)
	}
	if !got.CurrentPrice.Equal(price(5000)) || !got.IsClosed || *got.CurrentLeaderID != "carol" {
		t.Errorf("after buy now: price=%v closed=%v leader=%v", got.CurrentPrice, got.IsClosed, *got.CurrentLeaderID)
	}

	if _, err := f.mgr.PlaceBid(ctx, a.ID, "alice", price(10000)); !errors.Is(err, auction.ErrAuctionClosed) {
		t.Errorf("bid after buy now error = %v, want ErrAuctionClosed", err)
	}
	if _, err := f.mgr.BuyNow(ctx, a.ID, "alice"); !errors.Is(err, auction.ErrAuctionClosed) {
		t.Errorf("second buy now error = %v, want ErrAuctionClosed", err)
	}
}

func TestManager_PlaceBid_SideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, sampleListing())

	if _, err := f.mgr.PlaceBid(ctx, a.ID, "alice", price(1100)); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}
	if _, err := f.mgr.PlaceBid(ctx, a.ID, "bob", price(1300)); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}

	if n := len(f.notifier.forUser("seller")); n != 2 {
		t.Errorf("seller notifications = %d, want 2", n)
	}
	if n := len(f.notifier.forUser("bob")); n != 1 {
		t.Errorf("bob notifications = %d, want 1", n)
	}
	// alice: leading, then outbid.
	if n := len(f.notifier.forUser("alice")); n != 2 {
		t.Errorf("alice notifications = %d, want 2", n)
	}

	events := f.publisher.ofType(event.BidAccepted)
	if len(events) != 2 {
		t.Fatalf("bid-accepted events = %d, want 2", len(events))
	}
	if events[0].Version >= events[1].Version {
		t.Errorf("event versions not increasing: %d then %d", events[0].Version, events[1].Version)
	}
	var data event.BidAcceptedData
	if err := json.Unmarshal(events[1].Data, &data); err != nil {
		t.Fatalf("unmarshalling payload: %v", err)
	}
	if !data.CurrentPrice.Equal(price(1300)) || data.LeaderID != "bob" || data.Auction == nil || data.Auction.ID != a.ID {
		t.Errorf("unexpected payload: %+v", data)
	}
}

func TestManager_PlaceBid_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, sampleListing())

	tests := []struct {
		name    string
		id      string
		bidder  string
		amount  decimal.Decimal
		wantErr error
	}{
		{"not found", "missing", "alice", price(2000), auction.ErrNotFound},
		{"invalid amount", a.ID, "alice", price(-1), auction.ErrInvalidAmount},
		{"seller", a.ID, "seller", price(2000), auction.ErrForbidden},
		{"too low", a.ID, "alice", price(1000), auction.ErrBidTooLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.mgr.PlaceBid(ctx, tt.id, tt.bidder, tt.amount); !errors.Is(err, tt.wantErr) {
				t.Errorf("PlaceBid error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if len(f.notifier.notes) != 0 || len(f.publisher.events) != 0 {
		t.Error("rejected bids must not notify or publish")
	}
}

func TestManager_PlaceBid_AntiSnipe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := sampleListing()
	l.EndsAt = t0.Add(10 * time.Second)
	a := f.create(t, l)

	f.clock.Advance(4 * time.Second)
	accepted := f.clock.Now()

	got, err := f.mgr.PlaceBid(ctx, a.ID, "alice", price(1100))
	if err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}
	if !got.EndsAt.Equal(accepted.Add(window)) {
		t.Errorf("EndsAt = %v, want %v", got.EndsAt, accepted.Add(window))
	}
	if got.EndsAt.Before(a.EndsAt) {
		t.Error("EndsAt moved backwards")
	}
}

func TestManager_PlaceBid_AfterExpiry(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, sampleListing())
	f.clock.Advance(time.Hour + time.Second)

	if _, err := f.mgr.PlaceBid(context.Background(), a.ID, "alice", price(5000)); !errors.Is(err, auction.ErrAuctionClosed) {
		t.Errorf("PlaceBid error = %v, want ErrAuctionClosed", err)
	}
}

func TestManager_ConcurrentBidRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := sampleListing()
	l.StartingPrice = price(50)
	l.BidIncrement = decimal.Zero
	l.BuyNowPrice = nil
	a := f.create(t, l)

	var wg sync.WaitGroup
	errs := make(map[int64]error)
	var mu sync.Mutex
	for _, amount := range []int64{100, 101} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.mgr.PlaceBid(ctx, a.ID, "bidder", price(amount))
			mu.Lock()
			errs[amount] = err
			mu.Unlock()
		}()
	}
	wg.Wait()

	if errs[101] != nil {
		t.Fatalf("bid 101 rejected: %v", errs[101])
	}
	if err := errs[100]; err != nil {
		var tooLow *auction.BidTooLowError
		if !errors.As(err, &tooLow) || !tooLow.MinBid.Equal(price(101)) {
			t.Errorf("bid 100 error = %v, want BidTooLow with minBid 101", err)
		}
	}

	got, _ := f.mgr.Get(ctx, a.ID)
	if !got.CurrentPrice.Equal(price(101)) {
		t.Errorf("CurrentPrice = %v, want 101 (higher bid lost)", got.CurrentPrice)
	}
}

func TestManager_MonotonicPriceUnderLoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := sampleListing()
	l.BidIncrement = price(1)
	l.BuyNowPrice = nil
	a := f.create(t, l)

	const bidders = 40
	var wg sync.WaitGroup
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = f.mgr.PlaceBid(ctx, a.ID, "bidder", price(int64(1001+i*7%bidders)))
		}(i)
	}
	wg.Wait()

	// Each accepted bid bumps the version by one, so the events replay every
	// committed price in order.
	byVersion := make(map[int64]decimal.Decimal)
	for _, e := range f.publisher.ofType(event.BidAccepted) {
		var d event.BidAcceptedData
		if err := json.Unmarshal(e.Data, &d); err != nil {
			t.Fatalf("unmarshalling payload: %v", err)
		}
		byVersion[e.Version] = d.CurrentPrice
	}

	got, _ := f.mgr.Get(ctx, a.ID)
	last := got.StartingPrice
	for v := int64(2); v <= got.Version; v++ {
		p, ok := byVersion[v]
		if !ok {
			t.Fatalf("missing event for version %d", v)
		}
		if p.LessThan(last) {
			t.Fatalf("price decreased at version %d: %v < %v", v, p, last)
		}
		last = p
	}
	if !got.CurrentPrice.Equal(last) {
		t.Errorf("CurrentPrice = %v, last accepted = %v", got.CurrentPrice, last)
	}
}

func TestManager_StorageUnavailable(t *testing.T) {
	mgr, err := auction.NewManager(failingRepo{}, &mockNotifier{}, &mockPublisher{},
		config.AuctionConfig{ExtensionWindow: window, StoreTimeout: time.Second},
		slog.Default(), noop.NewTracerProvider(), metricnoop.NewMeterProvider(), clock.NewMock(t0))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if _, err := mgr.PlaceBid(context.Background(), "a1", "alice", price(10)); !errors.Is(err, auction.ErrStorageUnavailable) {
		t.Errorf("PlaceBid error = %v, want ErrStorageUnavailable", err)
	}
	if _, err := mgr.BuyNow(context.Background(), "a1", "alice"); !errors.Is(err, auction.ErrStorageUnavailable) {
		t.Errorf("BuyNow error = %v, want ErrStorageUnavailable", err)
	}
}

func TestManager_PublishFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("redis down")
	a := f.create(t, sampleListing())

	if _, err := f.mgr.PlaceBid(context.Background(), a.ID, "alice", price(1100)); err != nil {
		t.Fatalf("PlaceBid failed because of publish error: %v", err)
	}
}

func TestManager_BuyNow_SideEffects(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, sampleListing())

	if _, err := f.mgr.BuyNow(context.Background(), a.ID, "carol"); err != nil {
		t.Fatalf("BuyNow: %v", err)
	}
	if len(f.notifier.forUser("carol")) != 1 || len(f.notifier.forUser("seller")) != 1 {
		t.Errorf("notifications = %+v", f.notifier.notes)
	}
	ended := f.publisher.ofType(event.AuctionEnded)
	if len(ended) != 1 {
		t.Fatalf("auction-ended events = %d, want 1", len(ended))
	}
	var d event.AuctionEndedData
	if err := json.Unmarshal(ended[0].Data, &d); err != nil {
		t.Fatalf("unmarshalling payload: %v", err)
	}
	if !d.FinalPrice.Equal(price(5000)) || d.WinnerID == nil || *d.WinnerID != "carol" || d.Reason != event.ReasonBuyNow {
		t.Errorf("unexpected payload: %+v", d)
	}
}

func TestManager_BuyNow_Unavailable(t *testing.T) {
	f := newFixture(t)
	l := sampleListing()
	l.BuyNowPrice = nil
	a := f.create(t, l)

	if _, err := f.mgr.BuyNow(context.Background(), a.ID, "carol"); !errors.Is(err, auction.ErrNoBuyNow) {
		t.Errorf("BuyNow error = %v, want ErrNoBuyNow", err)
	}
}

func TestManager_DeleteAndImages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, sampleListing())

	if _, err := f.mgr.AttachImages(ctx, a.ID, "mallory", []string{"x"}); !errors.Is(err, auction.ErrForbidden) {
		t.Errorf("AttachImages by non-seller error = %v, want ErrForbidden", err)
	}
	got, err := f.mgr.AttachImages(ctx, a.ID, "seller", []string{"https://img/1", "https://img/2"})
	if err != nil {
		t.Fatalf("AttachImages: %v", err)
	}
	if len(got.ImageURLs) != 2 {
		t.Errorf("ImageURLs = %v", got.ImageURLs)
	}

	if err := f.mgr.Delete(ctx, a.ID, "mallory"); !errors.Is(err, auction.ErrForbidden) {
		t.Errorf("Delete by non-seller error = %v, want ErrForbidden", err)
	}
	if err := f.mgr.Delete(ctx, a.ID, "seller"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.mgr.Get(ctx, a.ID); !errors.Is(err, auction.ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}
	if err := f.mgr.Delete(ctx, a.ID, "seller"); !errors.Is(err, auction.ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestManager_Lists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.create(t, sampleListing())
	f.create(t, sampleListing())

	if _, err := f.mgr.PlaceBid(ctx, a.ID, "alice", price(1100)); err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}

	open, err := f.mgr.ListOpen(ctx)
	if err != nil || len(open) != 2 {
		t.Errorf("ListOpen = %d, %v; want 2", len(open), err)
	}
	mine, _ := f.mgr.ListBySeller(ctx, "seller")
	if len(mine) != 2 {
		t.Errorf("ListBySeller = %d, want 2", len(mine))
	}
	bids, _ := f.mgr.ListByBidder(ctx, "alice")
	if len(bids) != 1 || bids[0].ID != a.ID {
		t.Errorf("ListByBidder = %+v", bids)
	}
	none, _ := f.mgr.ListByBidder(ctx, "nobody")
	if none == nil || len(none) != 0 {
		t.Errorf("ListByBidder(nobody) = %v, want empty slice", none)
	}

	f.clock.Advance(2 * time.Hour)
	if open, _ := f.mgr.ListOpen(ctx); len(open) != 0 {
		t.Errorf("ListOpen after expiry = %d, want 0", len(open))
	}
}
