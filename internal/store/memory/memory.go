// Package memory provides a store.Driver that keeps everything in process
// memory. It is used for local development and unit tests; state is lost on
// restart.
//
// Each auction is guarded by its own mutex so that concurrent bids on one
// auction are serialized without blocking bids on unrelated auctions.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jensholdgaard/sneakerbid/internal/clock"
	"github.com/jensholdgaard/sneakerbid/internal/config"
	"github.com/jensholdgaard/sneakerbid/internal/store"
)

func init() {
	store.Register("memory", openMemory)
}

// openMemory is the store.Driver for the "memory" backend.
func openMemory(_ context.Context, _ config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	return &store.Repositories{
		Auctions:      NewAuctionRepo(clk),
		Notifications: NewNotificationRepo(clk),
		Closer:        store.NopCloser{},
		Ping:          func(context.Context) error { return nil },
	}, nil
}

type entry struct {
	mu      sync.Mutex
	a       *store.Auction
	deleted bool
}

// AuctionRepo implements store.AuctionRepository in memory.
type AuctionRepo struct {
	entries sync.Map // id -> *entry
	clock   clock.Clock
}

// NewAuctionRepo returns an empty AuctionRepo.
func NewAuctionRepo(clk clock.Clock) *AuctionRepo {
	return &AuctionRepo{clock: clk}
}

func (r *AuctionRepo) Create(ctx context.Context, a *store.Auction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := r.clock.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	a.Version = 1
	r.entries.Store(a.ID, &entry{a: a.Clone()})
	return nil
}

func (r *AuctionRepo) lookup(id string) (*entry, bool) {
	v, ok := r.entries.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*entry), true
}

func (r *AuctionRepo) GetByID(ctx context.Context, id string) (*store.Auction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := r.lookup(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, store.ErrNotFound
	}
	return e.a.Clone(), nil
}

func (r *AuctionRepo) Update(ctx context.Context, id string, fn store.MutateFunc) (*store.Auction, error) {
	e, ok := r.lookup(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.deleted {
		return nil, store.ErrNotFound
	}

	next := e.a.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Version = e.a.Version + 1
	next.UpdatedAt = r.clock.Now().UTC()
	e.a = next
	return next.Clone(), nil
}

func (r *AuctionRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, ok := r.lookup(id)
	if !ok {
		return store.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return store.ErrNotFound
	}
	e.deleted = true
	r.entries.Delete(id)
	return nil
}

func (r *AuctionRepo) CloseExpired(ctx context.Context, id string, now time.Time) (*store.Auction, bool, error) {
	e, ok := r.lookup(id)
	if !ok {
		return nil, false, store.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if e.deleted {
		return nil, false, store.ErrNotFound
	}
	if e.a.IsClosed || !e.a.EndsAt.Before(now) {
		return e.a.Clone(), false, nil
	}

	next := e.a.Clone()
	closedAt := now.UTC()
	next.IsClosed = true
	next.ClosedAt = &closedAt
	next.Version = e.a.Version + 1
	next.UpdatedAt = r.clock.Now().UTC()
	e.a = next
	return next.Clone(), true, nil
}

// snapshot copies every auction matching keep, newest first.
func (r *AuctionRepo) snapshot(ctx context.Context, keep func(a *store.Auction) bool) ([]store.Auction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []store.Auction
	r.entries.Range(func(_, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		if !e.deleted && keep(e.a) {
			out = append(out, *e.a.Clone())
		}
		e.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *AuctionRepo) ListOpen(ctx context.Context, now time.Time) ([]store.Auction, error) {
	return r.snapshot(ctx, func(a *store.Auction) bool {
		return !a.IsClosed && a.EndsAt.After(now)
	})
}

func (r *AuctionRepo) ListBySeller(ctx context.Context, sellerID string) ([]store.Auction, error) {
	return r.snapshot(ctx, func(a *store.Auction) bool {
		return a.SellerID == sellerID
	})
}

func (r *AuctionRepo) ListByLeader(ctx context.Context, leaderID string) ([]store.Auction, error) {
	return r.snapshot(ctx, func(a *store.Auction) bool {
		return a.CurrentLeaderID != nil && *a.CurrentLeaderID == leaderID
	})
}

func (r *AuctionRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]store.Auction, error) {
	out, err := r.snapshot(ctx, func(a *store.Auction) bool {
		return !a.IsClosed && a.EndsAt.Before(now)
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EndsAt.Before(out[j].EndsAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// NotificationRepo implements store.NotificationRepository in memory.
type NotificationRepo struct {
	mu     sync.RWMutex
	byID   map[string]*store.Notification
	byUser map[string][]string
	clock  clock.Clock
}

// NewNotificationRepo returns an empty NotificationRepo.
func NewNotificationRepo(clk clock.Clock) *NotificationRepo {
	return &NotificationRepo{
		byID:   make(map[string]*store.Notification),
		byUser: make(map[string][]string),
		clock:  clk,
	}
}

func (r *NotificationRepo) Create(ctx context.Context, n *store.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = r.clock.Now().UTC()

	cp := *n
	r.mu.Lock()
	r.byID[n.ID] = &cp
	r.byUser[n.UserID] = append(r.byUser[n.UserID], n.ID)
	r.mu.Unlock()
	return nil
}

func (r *NotificationRepo) ListByUser(ctx context.Context, userID string) ([]store.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	ids := r.byUser[userID]
	out := make([]store.Notification, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, *r.byID[ids[i]])
	}
	r.mu.RUnlock()

	// ids are in insertion order, so reversing gives newest first and a
	// stable sort keeps that order within each read group.
	sort.SliceStable(out, func(i, j int) bool {
		return !out[i].Read && out[j].Read
	})
	return out, nil
}

func (r *NotificationRepo) MarkRead(ctx context.Context, id, userID string) (*store.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.byID[id]
	if !ok || n.UserID != userID {
		return nil, store.ErrNotFound
	}
	n.Read = true
	cp := *n
	return &cp, nil
}
