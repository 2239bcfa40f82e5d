package auction

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jensholdgaard/sneakerbid/internal/store"
)

// Category is the kind of sneaker listed.
type Category string

const (
	CategorySneakers       Category = "Sneakers"
	CategoryLimitedEdition Category = "Limited Edition"
	CategoryCollaboration  Category = "Collaboration"
	CategoryVintage        Category = "Vintage"
	CategoryCustom         Category = "Custom"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategorySneakers,
	CategoryLimitedEdition,
	CategoryCollaboration,
	CategoryVintage,
	CategoryCustom,
}

// ParseCategory matches s against the known categories, ignoring case.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrInvalidListing, s)
}

// ValidateAmount rejects amounts that are not positive.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

// MinAllowed is the smallest bid the auction currently accepts.
func MinAllowed(a *store.Auction) decimal.Decimal {
	return a.CurrentPrice.Add(a.BidIncrement)
}

// IsOpen reports whether the auction still accepts bids at now. An auction
// is still open at exactly EndsAt.
func IsOpen(a *store.Auction, now time.Time) bool {
	return !a.IsClosed && !now.After(a.EndsAt)
}

// ApplyBid validates a bid against a and, when it is accepted, mutates a in
// place. now must be the time of acceptance, taken while a is held
// exclusively, so the extension decision sees the committed EndsAt.
func ApplyBid(a *store.Auction, bidderID string, amount decimal.Decimal, now time.Time, window time.Duration) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	if !IsOpen(a, now) {
		return ErrAuctionClosed
	}
	if bidderID == a.SellerID {
		return fmt.Errorf("%w: sellers cannot bid on their own listing", ErrForbidden)
	}
	if minBid := MinAllowed(a); amount.LessThan(minBid) {
		return &BidTooLowError{MinBid: minBid}
	}

	a.CurrentPrice = amount
	leader := bidderID
	a.CurrentLeaderID = &leader

	// Late bids push the close out to give other bidders a chance to respond.
	if a.EndsAt.Sub(now) <= window {
		if extended := now.Add(window); extended.After(a.EndsAt) {
			a.EndsAt = extended
		}
	}
	return nil
}

// ApplyBuyNow validates a buy-now purchase and, when accepted, closes a at
// its buy-now price.
func ApplyBuyNow(a *store.Auction, buyerID string, now time.Time) error {
	if a.BuyNowPrice == nil {
		return ErrNoBuyNow
	}
	if !IsOpen(a, now) {
		return ErrAuctionClosed
	}
	if buyerID == a.SellerID {
		return fmt.Errorf("%w: sellers cannot buy their own listing", ErrForbidden)
	}
	// Bidding already reached the buy-now price; selling at it would lower
	// the price.
	if a.CurrentPrice.GreaterThanOrEqual(*a.BuyNowPrice) {
		return fmt.Errorf("%w: bidding has reached the buy now price", ErrNoBuyNow)
	}

	closedAt := now.UTC()
	buyer := buyerID
	a.CurrentPrice = *a.BuyNowPrice
	a.CurrentLeaderID = &buyer
	a.IsClosed = true
	a.EndedByBuyNow = true
	a.ClosedAt = &closedAt
	return nil
}

// Listing is the seller-supplied part of a new auction.
type Listing struct {
	Title         string
	Description   string
	Brand         string
	Edition       string
	Size          string
	Category      string
	ImageURLs     []string
	StartingPrice decimal.Decimal
	BidIncrement  decimal.Decimal
	BuyNowPrice   *decimal.Decimal
	EndsAt        time.Time
}

// NewAuction validates l and builds the initial record for sellerID.
func NewAuction(l Listing, sellerID string, now time.Time) (*store.Auction, error) {
	title := strings.TrimSpace(l.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidListing)
	}
	if sellerID == "" {
		return nil, fmt.Errorf("%w: seller is required", ErrInvalidListing)
	}
	details := []struct{ name, value string }{
		{"description", l.Description},
		{"brand", l.Brand},
		{"edition", l.Edition},
		{"size", l.Size},
	}
	for _, d := range details {
		if strings.TrimSpace(d.value) == "" {
			return nil, fmt.Errorf("%w: %s is required", ErrInvalidListing, d.name)
		}
	}
	category, err := ParseCategory(l.Category)
	if err != nil {
		return nil, err
	}
	if ValidateAmount(l.StartingPrice) != nil {
		return nil, fmt.Errorf("%w: startingPrice must be a positive number", ErrInvalidListing)
	}
	if l.BidIncrement.IsNegative() {
		return nil, fmt.Errorf("%w: bidIncrement must not be negative", ErrInvalidListing)
	}
	if l.BuyNowPrice != nil {
		if ValidateAmount(*l.BuyNowPrice) != nil || l.BuyNowPrice.LessThanOrEqual(l.StartingPrice) {
			return nil, fmt.Errorf("%w: buyNowPrice must exceed startingPrice", ErrInvalidListing)
		}
	}
	if l.EndsAt.IsZero() || !l.EndsAt.After(now) {
		return nil, fmt.Errorf("%w: endsAt must be in the future", ErrInvalidListing)
	}

	a := &store.Auction{
		Title:         title,
		Description:   strings.TrimSpace(l.Description),
		Brand:         strings.TrimSpace(l.Brand),
		Edition:       strings.TrimSpace(l.Edition),
		Size:          strings.TrimSpace(l.Size),
		Category:      string(category),
		ImageURLs:     append([]string{}, l.ImageURLs...),
		StartingPrice: l.StartingPrice,
		CurrentPrice:  l.StartingPrice,
		BidIncrement:  l.BidIncrement,
		SellerID:      sellerID,
		EndsAt:        l.EndsAt.UTC(),
	}
	if l.BuyNowPrice != nil {
		v := *l.BuyNowPrice
		a.BuyNowPrice = &v
	}
	return a, nil
}
