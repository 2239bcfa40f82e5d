package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jensholdgaard/sneakerbid/internal/clock"
	"github.com/jensholdgaard/sneakerbid/internal/store"
)

const auctionColumns = `id, title, description, brand, edition, size, category, image_urls,
	starting_price, current_price, bid_increment, buy_now_price,
	seller_id, current_leader_id, ends_at, is_closed, ended_by_buy_now, closed_at,
	version, created_at, updated_at`

// AuctionRepo implements store.AuctionRepository with sqlx.
type AuctionRepo struct {
	db    *sqlx.DB
	clock clock.Clock
}

// NewAuctionRepo returns a new AuctionRepo.
func NewAuctionRepo(db *sqlx.DB, clk clock.Clock) *AuctionRepo {
	return &AuctionRepo{db: db, clock: clk}
}

// validID reports whether id can be compared against a UUID column. Anything
// else cannot exist, so callers short-circuit to store.ErrNotFound.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (r *AuctionRepo) Create(ctx context.Context, a *store.Auction) error {
	now := r.clock.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.ImageURLs == nil {
		a.ImageURLs = []string{}
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	a.Version = 1

	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO auctions (`+auctionColumns+`)
		 VALUES (:id, :title, :description, :brand, :edition, :size, :category, :image_urls,
		         :starting_price, :current_price, :bid_increment, :buy_now_price,
		         :seller_id, :current_leader_id, :ends_at, :is_closed, :ended_by_buy_now, :closed_at,
		         :version, :created_at, :updated_at)`, a)
	if err != nil {
		return fmt.Errorf("inserting auction: %w", err)
	}
	return nil
}

func (r *AuctionRepo) GetByID(ctx context.Context, id string) (*store.Auction, error) {
	if !validID(id) {
		return nil, store.ErrNotFound
	}
	var a store.Auction
	err := r.db.GetContext(ctx, &a, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting auction: %w", err)
	}
	return &a, nil
}

// Update locks the row with SELECT ... FOR UPDATE so concurrent writers to the
// same auction queue behind each other while other auctions proceed.
func (r *AuctionRepo) Update(ctx context.Context, id string, fn store.MutateFunc) (*store.Auction, error) {
	if !validID(id) {
		return nil, store.ErrNotFound
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var a store.Auction
	err = tx.GetContext(ctx, &a, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking auction: %w", err)
	}

	if err := fn(&a); err != nil {
		return nil, err
	}
	a.Version++
	a.UpdatedAt = r.clock.Now().UTC()

	_, err = tx.NamedExecContext(ctx,
		`UPDATE auctions SET
		    title = :title, description = :description, brand = :brand, edition = :edition,
		    size = :size, category = :category, image_urls = :image_urls,
		    current_price = :current_price, bid_increment = :bid_increment, buy_now_price = :buy_now_price,
		    current_leader_id = :current_leader_id, ends_at = :ends_at,
		    is_closed = :is_closed, ended_by_buy_now = :ended_by_buy_now, closed_at = :closed_at,
		    version = :version, updated_at = :updated_at
		 WHERE id = :id`, &a)
	if err != nil {
		return nil, fmt.Errorf("updating auction: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing auction update: %w", err)
	}
	return &a, nil
}

func (r *AuctionRepo) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return store.ErrNotFound
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM auctions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting auction: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CloseExpired is a single conditional UPDATE; when a bid transaction holds
// the row lock it waits, then re-evaluates the WHERE clause against the
// committed row, so a just-extended auction is left open.
func (r *AuctionRepo) CloseExpired(ctx context.Context, id string, now time.Time) (*store.Auction, bool, error) {
	if !validID(id) {
		return nil, false, store.ErrNotFound
	}
	var a store.Auction
	err := r.db.GetContext(ctx, &a,
		`UPDATE auctions
		 SET is_closed = TRUE, closed_at = $2, version = version + 1, updated_at = $3
		 WHERE id = $1 AND NOT is_closed AND ends_at < $2
		 RETURNING `+auctionColumns,
		id, now.UTC(), r.clock.Now().UTC(),
	)
	if err == nil {
		return &a, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("closing auction: %w", err)
	}

	// Nothing changed: already closed, extended, or deleted.
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

func (r *AuctionRepo) ListOpen(ctx context.Context, now time.Time) ([]store.Auction, error) {
	var auctions []store.Auction
	err := r.db.SelectContext(ctx, &auctions,
		`SELECT `+auctionColumns+` FROM auctions
		 WHERE NOT is_closed AND ends_at > $1 ORDER BY created_at DESC`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("listing open auctions: %w", err)
	}
	return auctions, nil
}

func (r *AuctionRepo) ListBySeller(ctx context.Context, sellerID string) ([]store.Auction, error) {
	var auctions []store.Auction
	err := r.db.SelectContext(ctx, &auctions,
		`SELECT `+auctionColumns+` FROM auctions WHERE seller_id = $1 ORDER BY created_at DESC`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("listing auctions by seller: %w", err)
	}
	return auctions, nil
}

func (r *AuctionRepo) ListByLeader(ctx context.Context, leaderID string) ([]store.Auction, error) {
	var auctions []store.Auction
	err := r.db.SelectContext(ctx, &auctions,
		`SELECT `+auctionColumns+` FROM auctions WHERE current_leader_id = $1 ORDER BY created_at DESC`, leaderID)
	if err != nil {
		return nil, fmt.Errorf("listing auctions by leader: %w", err)
	}
	return auctions, nil
}

func (r *AuctionRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]store.Auction, error) {
	if limit <= 0 {
		limit = 500
	}
	var auctions []store.Auction
	err := r.db.SelectContext(ctx, &auctions,
		`SELECT `+auctionColumns+` FROM auctions
		 WHERE NOT is_closed AND ends_at < $1 ORDER BY ends_at ASC LIMIT $2`, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("listing expired auctions: %w", err)
	}
	return auctions, nil
}
