// Package loader registers store drivers via blank imports.
// Import this package to ensure the default store drivers are available.
//
// Usage in main.go:
//
//	import _ "github.com/whitea-cloud/photoshare-go/internal/store/loader"
package loader

import (
	// Register the json file driver
	_ "github.com/whitea-cloud/photoshare-go/internal/store/json"

	// Register the sqlite driver
	_ "github.com/whitea-cloud/photoshare-go/internal/store/sqlite"
)
