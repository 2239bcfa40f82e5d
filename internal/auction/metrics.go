package auction

import (
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/jensholdgaard/sneakerbid/internal/auction"

type metrics struct {
	bidsAccepted   metric.Int64Counter
	bidsRejected   metric.Int64Counter
	buyNowAccepted metric.Int64Counter
	sweepClosed    metric.Int64Counter
	sweepFailed    metric.Int64Counter
	sweepDuration  metric.Float64Histogram
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter(instrumentationName)

	var m metrics
	var err, e error
	m.bidsAccepted, e = meter.Int64Counter("sneakerbid.bids.accepted",
		metric.WithDescription("Bids accepted."))
	err = errors.Join(err, e)
	m.bidsRejected, e = meter.Int64Counter("sneakerbid.bids.rejected",
		metric.WithDescription("Bid and buy-now attempts rejected, by reason."))
	err = errors.Join(err, e)
	m.buyNowAccepted, e = meter.Int64Counter("sneakerbid.buynow.accepted",
		metric.WithDescription("Buy-now purchases accepted."))
	err = errors.Join(err, e)
	m.sweepClosed, e = meter.Int64Counter("sneakerbid.sweep.closed",
		metric.WithDescription("Auctions closed by the sweep."))
	err = errors.Join(err, e)
	m.sweepFailed, e = meter.Int64Counter("sneakerbid.sweep.failed",
		metric.WithDescription("Auctions the sweep failed to close."))
	err = errors.Join(err, e)
	m.sweepDuration, e = meter.Float64Histogram("sneakerbid.sweep.duration",
		metric.WithDescription("Duration of one sweep pass."),
		metric.WithUnit("s"))
	err = errors.Join(err, e)

	if err != nil {
		return nil, fmt.Errorf("creating auction instruments: %w", err)
	}
	return &m, nil
}
