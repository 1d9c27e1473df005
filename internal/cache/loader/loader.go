// Package loader registers the cache drivers via blank imports.
//
//	import _ "github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/cache/loader"
package loader

import (
	_ "github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/cache/memory"
	_ "github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/cache/valkeycache"
)
