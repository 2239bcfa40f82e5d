package store

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func init() {
	// Prices are JSON numbers on the wire.
	decimal.MarshalJSONWithoutQuotes = true
}

// ErrNotFound is returned when a record does not exist (or, for
// notifications, is not owned by the caller).
var ErrNotFound = errors.New("record not found")

// Auction is the persisted state of a single listing.
type Auction struct {
	ID          string         `db:"id" json:"id"`
	Title       string         `db:"title" json:"title"`
	Description string         `db:"description" json:"description"`
	Brand       string         `db:"brand" json:"brand"`
	Edition     string         `db:"edition" json:"edition"`
	Size        string         `db:"size" json:"size"`
	Category    string         `db:"category" json:"category"`
	ImageURLs   pq.StringArray `db:"image_urls" json:"imageUrls"`

	StartingPrice decimal.Decimal  `db:"starting_price" json:"startingPrice"`
	CurrentPrice  decimal.Decimal  `db:"current_price" json:"currentPrice"`
	BidIncrement  decimal.Decimal  `db:"bid_increment" json:"bidIncrement"`
	BuyNowPrice   *decimal.Decimal `db:"buy_now_price" json:"buyNowPrice,omitempty"`

	SellerID        string  `db:"seller_id" json:"sellerId"`
	CurrentLeaderID *string `db:"current_leader_id" json:"currentLeaderId"`

	EndsAt        time.Time  `db:"ends_at" json:"endsAt"`
	IsClosed      bool       `db:"is_closed" json:"isClosed"`
	EndedByBuyNow bool       `db:"ended_by_buy_now" json:"endedByBuyNow"`
	ClosedAt      *time.Time `db:"closed_at" json:"closedAt,omitempty"`

	// Version increments on every committed write. It orders broadcast events
	// for the same auction.
	Version   int64     `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Clone returns a deep copy so callers never share slices or pointers with
// the store.
func (a *Auction) Clone() *Auction {
	c := *a
	if a.ImageURLs != nil {
		c.ImageURLs = make(pq.StringArray, len(a.ImageURLs))
		copy(c.ImageURLs, a.ImageURLs)
	}
	if a.BuyNowPrice != nil {
		v := *a.BuyNowPrice
		c.BuyNowPrice = &v
	}
	if a.CurrentLeaderID != nil {
		v := *a.CurrentLeaderID
		c.CurrentLeaderID = &v
	}
	if a.ClosedAt != nil {
		v := *a.ClosedAt
		c.ClosedAt = &v
	}
	return &c
}

// Notification is a durable per-user message.
type Notification struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	AuctionID *string   `db:"auction_id" json:"auctionId,omitempty"`
	Message   string    `db:"message" json:"message"`
	Read      bool      `db:"read" json:"read"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// MutateFunc changes an auction in place. Returning an error aborts the
// update and nothing is written.
type MutateFunc func(a *Auction) error

// AuctionRepository defines auction persistence operations.
type AuctionRepository interface {
	Create(ctx context.Context, a *Auction) error
	GetByID(ctx context.Context, id string) (*Auction, error)
	// Update runs fn against the latest committed state of the auction while
	// holding it exclusively, then persists the result. Updates to different
	// auctions do not block each other.
	Update(ctx context.Context, id string, fn MutateFunc) (*Auction, error)
	Delete(ctx context.Context, id string) error
	ListOpen(ctx context.Context, now time.Time) ([]Auction, error)
	ListBySeller(ctx context.Context, sellerID string) ([]Auction, error)
	ListByLeader(ctx context.Context, leaderID string) ([]Auction, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Auction, error)
	// CloseExpired marks the auction closed if it is still open and ended
	// before now. The bool reports whether this call made the transition.
	CloseExpired(ctx context.Context, id string, now time.Time) (*Auction, bool, error)
}

// NotificationRepository defines notification persistence operations.
type NotificationRepository interface {
	Create(ctx context.Context, n *Notification) error
	// ListByUser returns unread notifications first, each group newest first.
	ListByUser(ctx context.Context, userID string) ([]Notification, error)
	MarkRead(ctx context.Context, id, userID string) (*Notification, error)
}
