// Package loader registers all built-in cache drivers.
// Import for side effects:
//
//	import _ "github.com/whitea-cloud/photoshare-go/internal/cache/loader"
package loader

import (
	_ "github.com/whitea-cloud/photoshare-go/internal/cache/memory"
)
