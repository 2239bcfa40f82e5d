package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/sneakerbid/internal/store"
)

// Type identifies an event kind. The values are the names clients see on the
// wire.
type Type string

const (
	BidAccepted  Type = "bid-accepted"
	AuctionEnded Type = "auction-ended"
)

// End reasons carried by AuctionEnded events.
const (
	ReasonBuyNow  = "buy-now"
	ReasonExpired = "expired"
)

// Event is a single state change pushed to subscribers.
type Event struct {
	Type      Type   `json:"type"`
	AuctionID string `json:"auctionId"`
	// Version is the auction version the event was produced from. Events for
	// one auction are delivered in increasing Version order.
	Version   int64           `json:"version"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
}

// BidAcceptedData is the payload for BidAccepted events.
type BidAcceptedData struct {
	AuctionID    string          `json:"auctionId"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	LeaderID     string          `json:"leaderId"`
	EndsAt       time.Time       `json:"endsAt"`
	Auction      *store.Auction  `json:"auction"`
}

// AuctionEndedData is the payload for AuctionEnded events.
type AuctionEndedData struct {
	AuctionID  string          `json:"auctionId"`
	FinalPrice decimal.Decimal `json:"finalPrice"`
	WinnerID   *string         `json:"winnerId"`
	Reason     string          `json:"reason"`
}

// NewBidAccepted builds a BidAccepted event from the auction state right
// after the bid was committed.
func NewBidAccepted(a *store.Auction, at time.Time) (Event, error) {
	leader := ""
	if a.CurrentLeaderID != nil {
		leader = *a.CurrentLeaderID
	}
	return newEvent(BidAccepted, a, at, BidAcceptedData{
		AuctionID:    a.ID,
		CurrentPrice: a.CurrentPrice,
		LeaderID:     leader,
		EndsAt:       a.EndsAt,
		Auction:      a,
	})
}

// NewAuctionEnded builds an AuctionEnded event for a closed auction.
func NewAuctionEnded(a *store.Auction, reason string, at time.Time) (Event, error) {
	return newEvent(AuctionEnded, a, at, AuctionEndedData{
		AuctionID:  a.ID,
		FinalPrice: a.CurrentPrice,
		WinnerID:   a.CurrentLeaderID,
		Reason:     reason,
	})
}

func newEvent(t Type, a *store.Auction, at time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshalling %s payload: %w", t, err)
	}
	return Event{
		Type:      t,
		AuctionID: a.ID,
		Version:   a.Version,
		Data:      data,
		CreatedAt: at.UTC(),
	}, nil
}
