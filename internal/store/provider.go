package store

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/jensholdgaard/sneakerbid/internal/clock"
	"github.com/jensholdgaard/sneakerbid/internal/config"
)

// Repositories groups all repository implementations returned by a store driver.
type Repositories struct {
	Auctions      AuctionRepository
	Notifications NotificationRepository
	// Closer is called to release underlying resources (e.g. DB connection).
	Closer io.Closer
	// Ping checks the underlying connection health.
	Ping func(ctx context.Context) error
}

// Driver is a function that opens a connection and returns Repositories.
type Driver func(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*Repositories, error)

var (
	registryMu sync.RWMutex
	// registry maps driver names to their factory functions.
	registry = map[string]Driver{}
)

// Register adds a named driver to the global registry.
// It is intended to be called from init() in each driver package.
func Register(name string, d Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = d
}

// Open selects the driver specified in cfg.Driver and returns Repositories.
func Open(ctx context.Context, cfg config.DatabaseConfig, clk clock.Clock) (*Repositories, error) {
	registryMu.RLock()
	d, ok := registry[cfg.Driver]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown store driver %q (registered: %v)", cfg.Driver, registeredNames())
	}
	return d(ctx, cfg, clk)
}

// NopCloser is an io.Closer for drivers that hold no external resources.
type NopCloser struct{}

// Close does nothing.
func (NopCloser) Close() error { return nil }

func registeredNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for k := range registry {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
