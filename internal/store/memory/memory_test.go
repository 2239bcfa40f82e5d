package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/sneakerbid/internal/clock"
	"github.com/jensholdgaard/sneakerbid/internal/store"
	"github.com/jensholdgaard/sneakerbid/internal/store/memory"
)

var t0 = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newAuction(seller string, endsAt time.Time) *store.Auction {
	return &store.Auction{
		Title:         "Jordan 1 Chicago",
		Category:      "Sneakers",
		StartingPrice: decimal.NewFromInt(100),
		CurrentPrice:  decimal.NewFromInt(100),
		SellerID:      seller,
		EndsAt:        endsAt,
	}
}

func TestAuctionRepo_CreateAndGetByID(t *testing.T) {
	repo := memory.NewAuctionRepo(clock.NewMock(t0))
	ctx := context.Background()

	a := newAuction("seller-1", t0.Add(time.Hour))
	if err := repo.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.ID == "" {
		t.Fatal("expected ID to be set after Create")
	}
	if a.Version != 1 {
		t.Errorf("Version = %d, want 1", a.Version)
	}

	got, err := repo.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Title != "Jordan 1 Chicago" {
		t.Errorf("Title = %q", got.Title)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrNotFound", err)
	}
}

func TestAuctionRepo_UpdateAbortsOnError(t *testing.T) {
	repo := memory.NewAuctionRepo(clock.NewMock(t0))
	ctx := context.Background()
	a := newAuction("seller-1", t0.Add(time.Hour))
	_ = repo.Create(ctx, a)

	boom := errors.New("boom")
	_, err := repo.Update(ctx, a.ID, func(x *store.Auction) error {
		x.CurrentPrice = decimal.NewFromInt(999)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update error = %v, want boom", err)
	}

	got, _ := repo.GetByID(ctx, a.ID)
	if !got.CurrentPrice.Equal(decimal.NewFromInt(100)) || got.Version != 1 {
		t.Errorf("aborted update leaked: price=%v version=%d", got.CurrentPrice, got.Version)
	}
}

func TestAuctionRepo_UpdateSerializesPerAuction(t *testing.T) {
	repo := memory.NewAuctionRepo(clock.Real{})
	ctx := context.Background()
	a := newAuction("seller-1", time.Now().Add(time.Hour))
	_ = repo.Create(ctx, a)

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.Update(ctx, a.ID, func(x *store.Auction) error {
				x.CurrentPrice = x.CurrentPrice.Add(decimal.NewFromInt(1))
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := repo.GetByID(ctx, a.ID)
	if !got.CurrentPrice.Equal(decimal.NewFromInt(100 + workers)) {
		t.Errorf("CurrentPrice = %v, want %d (lost updates)", got.CurrentPrice, 100+workers)
	}
	if got.Version != 1+workers {
		t.Errorf("Version = %d, want %d", got.Version, 1+workers)
	}
}

func TestAuctionRepo_CloseExpired(t *testing.T) {
	repo := memory.NewAuctionRepo(clock.NewMock(t0))
	ctx := context.Background()

	expired := newAuction("s", t0.Add(-time.Minute))
	live := newAuction("s", t0.Add(time.Minute))
	_ = repo.Create(ctx, expired)
	_ = repo.Create(ctx, live)

	list, err := repo.ListExpired(ctx, t0, 10)
	if err != nil {
		t.Fatalf("ListExpired: %v", err)
	}
	if len(list) != 1 || list[0].ID != expired.ID {
		t.Fatalf("ListExpired = %+v, want only %s", list, expired.ID)
	}

	got, closed, err := repo.CloseExpired(ctx, expired.ID, t0)
	if err != nil || !closed {
		t.Fatalf("CloseExpired first call: closed=%v err=%v", closed, err)
	}
	if !got.IsClosed || got.ClosedAt == nil {
		t.Errorf("expected closed auction with ClosedAt, got %+v", got)
	}

	if _, closed, _ := repo.CloseExpired(ctx, expired.ID, t0); closed {
		t.Error("second CloseExpired should be a no-op")
	}
	if _, closed, _ := repo.CloseExpired(ctx, live.ID, t0); closed {
		t.Error("CloseExpired must not close an auction that has not ended")
	}

	if list, _ := repo.ListExpired(ctx, t0, 10); len(list) != 0 {
		t.Errorf("ListExpired after close = %d, want 0", len(list))
	}
}

func TestAuctionRepo_Lists(t *testing.T) {
	clk := clock.NewMock(t0)
	repo := memory.NewAuctionRepo(clk)
	ctx := context.Background()

	first := newAuction("seller-1", t0.Add(time.Hour))
	_ = repo.Create(ctx, first)
	clk.Advance(time.Second)
	second := newAuction("seller-2", t0.Add(time.Hour))
	_ = repo.Create(ctx, second)
	ended := newAuction("seller-1", t0.Add(-time.Hour))
	_ = repo.Create(ctx, ended)

	leader := "bidder-1"
	_, _ = repo.Update(ctx, first.ID, func(a *store.Auction) error {
		a.CurrentLeaderID = &leader
		return nil
	})

	open, _ := repo.ListOpen(ctx, t0)
	if len(open) != 2 || open[0].ID != second.ID {
		t.Errorf("ListOpen = %d items (first %v), want 2 newest first", len(open), open)
	}

	mine, _ := repo.ListBySeller(ctx, "seller-1")
	if len(mine) != 2 {
		t.Errorf("ListBySeller = %d, want 2", len(mine))
	}

	bids, _ := repo.ListByLeader(ctx, leader)
	if len(bids) != 1 || bids[0].ID != first.ID {
		t.Errorf("ListByLeader = %+v, want %s", bids, first.ID)
	}
}

func TestAuctionRepo_Delete(t *testing.T) {
	repo := memory.NewAuctionRepo(clock.NewMock(t0))
	ctx := context.Background()
	a := newAuction("s", t0.Add(time.Hour))
	_ = repo.Create(ctx, a)

	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, a.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
	if _, err := repo.Update(ctx, a.ID, func(*store.Auction) error { return nil }); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Update after Delete error = %v, want ErrNotFound", err)
	}
}

func TestNotificationRepo_OrderingAndOwnership(t *testing.T) {
	clk := clock.NewMock(t0)
	repo := memory.NewNotificationRepo(clk)
	ctx := context.Background()

	var ids []string
	for _, msg := range []string{"oldest", "middle", "newest"} {
		n := &store.Notification{UserID: "u1", Message: msg}
		if err := repo.Create(ctx, n); err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, n.ID)
		clk.Advance(time.Minute)
	}
	_ = repo.Create(ctx, &store.Notification{UserID: "u2", Message: "other user"})

	if _, err := repo.MarkRead(ctx, ids[2], "u1"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	list, err := repo.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	var got []string
	for _, n := range list {
		got = append(got, n.Message)
	}
	want := []string{"middle", "oldest", "newest"}
	if len(got) != len(want) {
		t.Fatalf("ListByUser = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ListByUser = %v, want %v", got, want)
		}
	}

	if _, err := repo.MarkRead(ctx, ids[0], "u2"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("MarkRead by non-owner error = %v, want ErrNotFound", err)
	}
}
