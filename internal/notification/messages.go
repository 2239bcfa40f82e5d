package notification

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// Price formats an amount with thousands separators and at most two
// decimals, e.g. 1234.5 -> "1,234.5".
func Price(v decimal.Decimal) string {
	return humanize.CommafWithDigits(v.Round(2).InexactFloat64(), 2)
}

// NewBidForSeller tells the seller a bid was accepted on their listing.
func NewBidForSeller(title string, amount decimal.Decimal) string {
	return fmt.Sprintf("New bid of %s on your auction %q.", Price(amount), title)
}

// LeadingBid confirms to the bidder that they now lead.
func LeadingBid(title string, amount decimal.Decimal) string {
	return fmt.Sprintf("You are the highest bidder on %q at %s.", title, Price(amount))
}

// Outbid is sent to the previous leader when someone else takes the lead.
func Outbid(title string, amount decimal.Decimal) string {
	return fmt.Sprintf("You have been outbid on %q. The current price is %s.", title, Price(amount))
}

// BoughtNow confirms a buy-now purchase to the buyer.
func BoughtNow(title string, amount decimal.Decimal) string {
	return fmt.Sprintf("You bought %q for %s.", title, Price(amount))
}

// SoldNow tells the seller the item was bought at its buy-now price.
func SoldNow(title string, amount decimal.Decimal) string {
	return fmt.Sprintf("Your item %q sold via buy now for %s.", title, Price(amount))
}

// Won is sent to the leader when an auction expires.
func Won(title string, amount decimal.Decimal) string {
	return fmt.Sprintf("You won the auction for %q at %s!", title, Price(amount))
}

// ClosedForSeller tells the seller the final price of an expired auction.
func ClosedForSeller(title string, amount decimal.Decimal) string {
	return fmt.Sprintf("Your auction %q closed at %s.", title, Price(amount))
}

// ClosedNoBids is sent to the seller when an auction expires without a
// single accepted bid.
func ClosedNoBids(title string) string {
	return fmt.Sprintf("Your auction %q closed with no bids.", title)
}
