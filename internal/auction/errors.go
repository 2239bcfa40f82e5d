package auction

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Errors returned by auction operations.
var (
	ErrNotFound           = errors.New("auction not found")
	ErrAuctionClosed      = errors.New("auction has ended")
	ErrBidTooLow          = errors.New("bid is below minimum")
	ErrNoBuyNow           = errors.New("buy now not available")
	ErrInvalidAmount      = errors.New("amount must be a positive number")
	ErrForbidden          = errors.New("forbidden")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInvalidListing     = errors.New("invalid listing")
)

// BidTooLowError carries the smallest amount that would have been accepted.
type BidTooLowError struct {
	MinBid decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid must be at least %s", e.MinBid)
}

func (e *BidTooLowError) Unwrap() error { return ErrBidTooLow }

// isRuleError reports whether err is a decision made by the bidding rules
// rather than a failure of the store.
func isRuleError(err error) bool {
	for _, target := range []error{
		ErrAuctionClosed, ErrBidTooLow, ErrNoBuyNow, ErrInvalidAmount, ErrForbidden,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// reason is the metric label for a rejected operation.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAuctionClosed):
		return "closed"
	case errors.Is(err, ErrBidTooLow):
		return "too_low"
	case errors.Is(err, ErrNoBuyNow):
		return "no_buy_now"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "storage"
	}
}
