package store

import (
	"context"
	"fmt"
	"sync"
)

// DriverConfig holds configuration for driver selection and initialization.
type DriverConfig struct {
	// Driver is the driver name: json, sqlite
	Driver string `json:"driver"`

	// DataDir is the directory for data files (json files, sqlite db)
	DataDir string `json:"data_dir"`

	// Options holds driver-specific settings keyed by driver name.
	Options map[string]any `json:"options"`
}

// DriverFactory is a function that creates a driver instance.
type DriverFactory func(cfg *DriverConfig) (Driver, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]DriverFactory)
)

// Register registers a driver factory by name.
// This is typically called from init() in driver packages.
func Register(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// New creates a driver instance based on the configuration.
func New(cfg *DriverConfig) (Driver, error) {
	driversMu.RLock()
	factory, ok := drivers[cfg.Driver]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown driver: %s", cfg.Driver)
	}

	return factory(cfg)
}

// Open creates, initializes, and returns a full client store.
func Open(ctx context.Context, cfg *DriverConfig) (ClientStore, error) {
	drv, err := New(cfg)
	if err != nil {
		return nil, err
	}

	cs, ok := drv.(ClientStore)
	if !ok {
		return nil, fmt.Errorf("driver %s does not implement the client store", drv.Name())
	}

	if err := cs.Init(ctx); err != nil {
		cs.Close()
		return nil, fmt.Errorf("failed to initialize %s store: %w", drv.Name(), err)
	}

	return cs, nil
}

// AvailableDrivers returns the list of registered driver names.
func AvailableDrivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	return names
}
