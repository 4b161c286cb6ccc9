// Package cache provides TTL-based key-value caching behind a driver
// registry. Drivers self-register via init and are selected by config.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrExpired  = errors.New("key expired")
)

// Cache provides TTL-based key-value storage.
type Cache interface {
	// Get retrieves a value by key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. If TTL is 0, the driver
	// default applies.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists and is not expired.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases resources.
	Close() error
}

// Default TTLs for the agent's cache categories.
const (
	TTLUserInfo = 15 * time.Minute // user display-name lookups
	TTLUsage    = 1 * time.Minute  // photo usage-check results
)

// Factory creates a cache from a driver-specific config map.
type Factory func(config map[string]any) (Cache, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register registers a cache driver factory by name.
// Called from driver package init functions.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// NewFromConfig creates a cache using the named driver.
// drivers holds per-driver config maps keyed by driver name.
func NewFromConfig(driver string, drivers map[string]any) (Cache, error) {
	if driver == "" {
		driver = "memory"
	}

	registryMu.RLock()
	factory, ok := registry[driver]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown cache driver %q (registered: %v)", driver, registeredNames())
	}

	var driverCfg map[string]any
	if raw, ok := drivers[driver]; ok {
		if m, ok := raw.(map[string]any); ok {
			driverCfg = m
		}
	}

	return factory(driverCfg)
}

func registeredNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
